//go:build opencv

package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/felixge/fgprof"
	_ "github.com/kai5263499/keyframe-sentry/docs" // Swagger docs
	"github.com/kai5263499/keyframe-sentry/internal/catalog"
	"github.com/kai5263499/keyframe-sentry/internal/config"
	"github.com/kai5263499/keyframe-sentry/internal/extractor"
	"github.com/kai5263499/keyframe-sentry/internal/logger"
	"github.com/kai5263499/keyframe-sentry/internal/server"
	"github.com/rs/zerolog/log"
)

// @title Keyframe Sentry API
// @version 0.1.0
// @description Hybrid keyframe extraction: MOG2 background subtraction with an LBP texture second opinion

// @contact.name API Support
// @contact.url https://github.com/kai5263499/keyframe-sentry

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /
// @schemes http

// @tag.name Keyframes
// @tag.description Keyframe extraction

// @tag.name Runs
// @tag.description Catalogued extraction runs

// @tag.name Configuration
// @tag.description Runtime configuration

type configPaths []string

func (c *configPaths) String() string { return strings.Join(*c, ",") }

func (c *configPaths) Set(v string) error {
	*c = append(*c, v)
	return nil
}

func main() {
	var paths configPaths
	flag.Var(&paths, "config", "YAML config file; repeat to layer files, later ones win")
	video := flag.String("video", "", "video file or stream URL (overrides video_path)")
	serve := flag.Bool("serve", false, "run the HTTP API instead of a single extraction")
	saveConfig := flag.String("save-config", "", "file PUT /api/config writes the full merged config to, env overrides included; empty keeps updates in memory")
	flag.Parse()

	logger.Init("info", "console")

	if len(paths) == 0 {
		if _, err := os.Stat("config.yaml"); err == nil {
			paths = append(paths, "config.yaml")
		}
	}

	cfg, err := config.Load(paths...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	snap := cfg.Get()
	logger.Init(snap.Log.Level, snap.Log.Format)

	log.Info().Str("version", "0.1.0").Strs("config", paths).Msg("Starting keyframe-sentry")

	if snap.Profiling.Enabled {
		go startProfiling(snap.Profiling.Addr)
	}

	var runs *catalog.Store
	if snap.Catalog.Enabled {
		runs, err = catalog.Open(snap.Catalog.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open run catalog")
		}
		defer runs.Close()
	}

	svc := extractor.New(cfg, runs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		runServer(ctx, cfg, *saveConfig, svc, runs)
		return
	}

	runID, rep, err := svc.Extract(ctx, *video)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Extraction failed")
		stop()
		if runs != nil {
			runs.Close()
		}
		os.Exit(1)
	}
	if rep == nil {
		return
	}

	log.Info().
		Str("run", runID).
		Int("count", len(rep.Timestamps)).
		Floats64("keyframes", rep.Timestamps).
		Msg("Extraction complete")
}

func runServer(ctx context.Context, cfg *config.Config, savePath string, svc *extractor.Service, runs *catalog.Store) {
	// a typed nil store must not reach the server as a non-nil interface
	var store server.RunStore
	if runs != nil {
		store = runs
	}

	apiServer := server.New(cfg, savePath, svc, store)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start API server")
		}
	}()

	snap := cfg.Get()
	log.Info().Str("url", "http://"+net.JoinHostPort(snap.Server.Host, strconv.Itoa(snap.Server.Port))+"/swagger/index.html").Msg("Swagger UI available")

	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")
	_ = apiServer.Stop()
}

// startProfiling serves pprof and fgprof on a side port.
func startProfiling(addr string) {
	log.Info().Str("addr", addr).Msg("Starting profiling server")
	log.Info().Str("pprof", "http://localhost"+addr+"/debug/pprof").Msg("Standard pprof available")
	log.Info().Str("fgprof", "http://localhost"+addr+"/debug/fgprof").Msg("Full goroutine profiler available")

	http.DefaultServeMux.Handle("/debug/fgprof", fgprof.Handler())

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Error().Err(err).Msg("Profiling server error")
	}
}
