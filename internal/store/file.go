//go:build opencv

package store

import (
	"path/filepath"
	"strings"

	"github.com/kai5263499/keyframe-sentry/internal/config"
	"github.com/kai5263499/keyframe-sentry/internal/keyframe"
	"github.com/kai5263499/keyframe-sentry/internal/motion"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// FileSink persists keyframes as image files.
type FileSink struct {
	Dir            string
	MaskDir        string
	Ext            string
	JPEGQuality    int
	PNGCompression int
}

// NewFileSink creates a sink from the output configuration.
func NewFileSink(out config.OutputConfig) *FileSink {
	return &FileSink{
		Dir:            out.Dir,
		MaskDir:        out.MaskDir,
		Ext:            out.ImageExtension,
		JPEGQuality:    out.JPEGQuality,
		PNGCompression: out.PNGCompression,
	}
}

// Reset prepares the output directories for a run, emptying them first
// when flush is set. The mask directory is only touched when masks are
// being saved.
func (s *FileSink) Reset(flush, masks bool) error {
	dirs := []string{s.Dir}
	if masks {
		dirs = append(dirs, s.MaskDir)
	}
	for _, dir := range dirs {
		prepare := EnsureDir
		if flush {
			prepare = FlushDir
		}
		if err := prepare(dir); err != nil {
			return err
		}
	}
	log.Debug().Strs("dirs", dirs).Bool("flush", flush).Msg("Output directories ready")
	return nil
}

func (s *FileSink) params() []int {
	switch strings.ToLower(s.Ext) {
	case "jpg", "jpeg":
		return []int{int(gocv.IMWriteJpegQuality), s.JPEGQuality}
	case "png":
		return []int{int(gocv.IMWritePngCompression), s.PNGCompression}
	}
	return nil
}

// Persist writes the keyframe and, when present, its mask. Only a failed
// keyframe write is reported; a failed mask write is logged.
func (s *FileSink) Persist(ev keyframe.Event[gocv.Mat]) bool {
	if err := EnsureDir(s.Dir); err != nil {
		log.Error().Err(err).Str("dir", s.Dir).Msg("Keyframe directory unavailable")
		return false
	}

	path := s.Path(ev.Timestamp, ev.Stage)
	if !gocv.IMWriteWithParams(path, ev.Frame, s.params()) {
		log.Error().Str("path", path).Msg("Failed to write keyframe")
		return false
	}

	if ev.Mask != nil && s.MaskDir != "" {
		maskPath := filepath.Join(s.MaskDir, MaskName(ev.Timestamp, ev.Stage))
		if err := EnsureDir(s.MaskDir); err != nil || !gocv.IMWrite(maskPath, *ev.Mask) {
			log.Warn().Err(err).Str("path", maskPath).Msg("Failed to write debug mask")
		}
	}
	return true
}

// Path returns where the keyframe for ts and stage is written.
func (s *FileSink) Path(ts float64, stage motion.Stage) string {
	return filepath.Join(s.Dir, FileName(ts, stage, s.Ext))
}
