package health

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsStream(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"clip.mp4", false},
		{"/videos/clip.mp4", false},
		{`C:\videos\clip.mp4`, false},
		{"http://192.168.1.10:4747/video", true},
		{"rtsp://cam.local/stream", true},
		{"file:///videos/clip.mp4", false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStream(tt.source))
		})
	}
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o644))

	c := NewChecker(time.Second)

	res := c.Check(path)
	assert.True(t, res.Available)
	assert.Equal(t, KindFile, res.Kind)
	assert.EqualValues(t, 18, res.SizeBytes)
	assert.NoError(t, res.Err())

	res = c.Check(filepath.Join(dir, "missing.mp4"))
	assert.False(t, res.Available)
	assert.ErrorIs(t, res.Err(), ErrNotFound)

	res = c.Check(dir)
	assert.False(t, res.Available)
	assert.Error(t, res.Err())
	assert.NotErrorIs(t, res.Err(), ErrNotFound)
}

func TestCheckHTTPStream(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	c := NewChecker(2 * time.Second)

	res := c.Check(ok.URL + "/video")
	assert.Equal(t, KindStream, res.Kind)
	assert.True(t, res.HostReachable)
	assert.True(t, res.URLAccessible)
	assert.True(t, res.Available)

	res = c.Check(broken.URL + "/video")
	assert.True(t, res.HostReachable)
	assert.False(t, res.Available)
	assert.Equal(t, "HTTP 503", res.URLError)
	assert.ErrorIs(t, res.Err(), ErrUnreachable)
}

func TestCheckUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewChecker(500 * time.Millisecond).Check(url + "/video")
	assert.False(t, res.HostReachable)
	assert.Equal(t, "Host unreachable", res.URLError)
	assert.ErrorIs(t, res.Err(), ErrUnreachable)
}
