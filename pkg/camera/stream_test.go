//go:build opencv

package camera

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func writeClip(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.avi")

	writer, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	require.NoError(t, err)
	require.True(t, writer.IsOpened())

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for i := 0; i < frames; i++ {
		require.NoError(t, writer.Write(frame))
	}
	require.NoError(t, writer.Close())
	return path
}

func TestStreamReadsAllFrames(t *testing.T) {
	s := NewStream("clip", writeClip(t, 12))
	require.NoError(t, s.Open())
	defer s.Close()

	assert.InDelta(t, 10.0, s.FPS(), 0.01)
	assert.Equal(t, 12, s.FrameCount())
	assert.Equal(t, "64x48", s.GetInfo().Resolution)

	n := 0
	for {
		frame, ok := s.Read()
		if !ok {
			break
		}
		assert.False(t, frame.Empty())
		frame.Close()
		n++
	}
	assert.Equal(t, 12, n)
	assert.Error(t, s.Err())
}

func TestStreamOpenMissingFile(t *testing.T) {
	s := NewStream("missing", filepath.Join(t.TempDir(), "nope.mp4"))
	assert.Error(t, s.Open())
	assert.False(t, s.IsOpen())

	_, ok := s.Read()
	assert.False(t, ok)
}
