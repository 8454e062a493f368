//go:build opencv

// Package extractor runs keyframe extraction over one video at a time.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kai5263499/keyframe-sentry/internal/catalog"
	"github.com/kai5263499/keyframe-sentry/internal/config"
	"github.com/kai5263499/keyframe-sentry/internal/health"
	"github.com/kai5263499/keyframe-sentry/internal/keyframe"
	"github.com/kai5263499/keyframe-sentry/internal/motion"
	"github.com/kai5263499/keyframe-sentry/internal/report"
	"github.com/kai5263499/keyframe-sentry/internal/store"
	"github.com/kai5263499/keyframe-sentry/pkg/camera"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

const sourceTimeout = 5 * time.Second

// Service wires a config snapshot into a classifier run. Each Extract call
// builds fresh scorers, so calls never share background models.
type Service struct {
	cfg     *config.Config
	catalog *catalog.Store
	checker *health.Checker
}

// New creates a service. runs may be nil to skip cataloguing.
func New(cfg *config.Config, runs *catalog.Store) *Service {
	return &Service{
		cfg:     cfg,
		catalog: runs,
		checker: health.NewChecker(sourceTimeout),
	}
}

// Extract processes videoPath (or the configured video when empty) and
// returns the catalog run ID, empty when the catalog is disabled.
func (s *Service) Extract(ctx context.Context, videoPath string) (string, *keyframe.Report, error) {
	snap := s.cfg.Get()
	if videoPath != "" {
		snap.VideoPath = videoPath
	}
	if err := snap.Validate(true); err != nil {
		return "", nil, err
	}

	if res := s.checker.Check(snap.VideoPath); !res.Available {
		return "", nil, res.Err()
	}

	sink := store.NewFileSink(snap.Output)
	if err := sink.Reset(snap.Output.FlushOnStart, snap.Keyframe.SaveDebugMasks); err != nil {
		return "", nil, err
	}

	stream := camera.NewStream(filepath.Base(snap.VideoPath), snap.VideoPath)
	if err := stream.Open(); err != nil {
		return "", nil, fmt.Errorf("%w: %w", keyframe.ErrSourceUnavailable, err)
	}
	defer stream.Close()

	k := snap.Keyframe
	color := motion.NewScorer("color", k.MOGColor, k.Morphology)
	defer color.Close()
	texture := motion.NewTextureScorer(k.MOGTexture, k.Morphology, k.LBP)
	defer texture.Close()

	var persist keyframe.Sink[gocv.Mat] = sink
	runID := ""
	if s.catalog != nil {
		run, err := s.catalog.StartRun(ctx, snap.VideoPath)
		if err != nil {
			log.Warn().Err(err).Msg("Run will not be catalogued")
		} else {
			runID = run.ID
			persist = catalog.NewSink[gocv.Mat](ctx, sink, s.catalog, runID, sink.Path)
		}
	}

	prep := motion.Preparer{Scale: k.ResizeScale, Grayscale: k.ForceGrayscale}
	p := keyframe.New[gocv.Mat](keyframe.OptionsFromConfig(k), prep, color, texture, persist)

	var trace *report.Trace
	if snap.Debug.TracePath != "" {
		trace = report.NewTrace()
		p.SetObserver(trace)
	}

	log.Info().
		Str("video", snap.VideoPath).
		Str("output", snap.Output.Dir).
		Str("run", runID).
		Msg("Extracting keyframes")

	rep, runErr := p.Run(ctx, stream)

	if trace != nil {
		if err := trace.Save(snap.Debug.TracePath); err != nil {
			log.Warn().Err(err).Str("path", snap.Debug.TracePath).Msg("Failed to write decision trace")
		}
	}

	if runID != "" {
		// record the outcome even when the request was cancelled
		if err := s.catalog.FinishRun(context.WithoutCancel(ctx), runID, rep, runErr); err != nil {
			log.Warn().Err(err).Str("run", runID).Msg("Failed to finish catalog run")
		}
	}

	return runID, rep, runErr
}
