// Package store writes accepted keyframes and their debug masks to disk.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kai5263499/keyframe-sentry/internal/motion"
)

// ErrUnsafePath is returned when asked to flush a directory whose absolute
// path is too short to be anything but a filesystem root.
var ErrUnsafePath = errors.New("refusing to flush directory")

func timestampTag(ts float64) string {
	return strings.ReplaceAll(fmt.Sprintf("%.2f", ts), ".", "_")
}

// FileName returns the keyframe file name, e.g. kf_12_40_color.jpg.
func FileName(ts float64, stage motion.Stage, ext string) string {
	return fmt.Sprintf("kf_%s_%s.%s", timestampTag(ts), stage, ext)
}

// MaskName returns the debug mask file name. Masks are always PNG.
func MaskName(ts float64, stage motion.Stage) string {
	return fmt.Sprintf("mask_%s_%s.png", timestampTag(ts), stage)
}

// FlushDir removes dir and everything in it, then recreates it empty.
// An empty dir is a no-op.
func FlushDir(dir string) error {
	if dir == "" {
		return nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if len(abs) <= 3 {
		return fmt.Errorf("%w %s", ErrUnsafePath, abs)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to flush %s: %w", abs, err)
	}
	return EnsureDir(abs)
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	return nil
}
