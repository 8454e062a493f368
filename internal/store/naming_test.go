package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kai5263499/keyframe-sentry/internal/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNames(t *testing.T) {
	tests := []struct {
		ts    float64
		stage motion.Stage
		ext   string
		file  string
		mask  string
	}{
		{12.4, motion.StageColor, "jpg", "kf_12_40_color.jpg", "mask_12_40_color.png"},
		{0.033333, motion.StageTexture, "png", "kf_0_03_texture.png", "mask_0_03_texture.png"},
		{125, motion.StageColor, "jpeg", "kf_125_00_color.jpeg", "mask_125_00_color.png"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.file, FileName(tt.ts, tt.stage, tt.ext))
			assert.Equal(t, tt.mask, MaskName(tt.ts, tt.stage))
		})
	}
}

func TestFlushDirEmptiesAndRecreates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kf_1_00_color.jpg"), []byte("x"), 0o644))

	require.NoError(t, FlushDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFlushDirCreatesMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, FlushDir(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFlushDirRefusesRoots(t *testing.T) {
	assert.ErrorIs(t, FlushDir("/"), ErrUnsafePath)
	assert.ErrorIs(t, FlushDir("/ab"), ErrUnsafePath)
	assert.NoError(t, FlushDir(""))
}
