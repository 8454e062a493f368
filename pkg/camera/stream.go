//go:build opencv

// Package camera reads frames from video files and network streams.
package camera

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Stream is a frame source backed by a gocv VideoCapture. Frames returned
// by Read belong to the caller.
type Stream struct {
	Name       string
	URL        string
	capture    *gocv.VideoCapture
	isOpen     bool
	lastError  error
	frameCount int64
	mu         sync.RWMutex
}

type StreamInfo struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	Resolution string
}

func NewStream(name, url string) *Stream {
	return &Stream{
		Name: name,
		URL:  url,
	}
}

func (s *Stream) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Info().Str("source", s.Name).Str("url", s.URL).Msg("Opening stream")

	capture, err := gocv.OpenVideoCapture(s.URL)
	if err != nil {
		s.lastError = fmt.Errorf("failed to open stream: %w", err)
		return s.lastError
	}

	if !capture.IsOpened() {
		s.lastError = fmt.Errorf("stream opened but not ready")
		capture.Close()
		return s.lastError
	}

	s.capture = capture
	s.isOpen = true
	log.Info().Str("source", s.Name).Msg("Stream opened successfully")
	return nil
}

func (s *Stream) GetInfo() StreamInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isOpen || s.capture == nil {
		return StreamInfo{}
	}

	width := int(s.capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(s.capture.Get(gocv.VideoCaptureFrameHeight))

	return StreamInfo{
		Width:      width,
		Height:     height,
		FPS:        s.capture.Get(gocv.VideoCaptureFPS),
		FrameCount: int(s.capture.Get(gocv.VideoCaptureFrameCount)),
		Resolution: fmt.Sprintf("%dx%d", width, height),
	}
}

// FPS returns the nominal frame rate, 0 when the container does not say.
func (s *Stream) FPS() float64 {
	return max(s.GetInfo().FPS, 0)
}

// FrameCount returns the total frame count, 0 for live streams.
func (s *Stream) FrameCount() int {
	return max(s.GetInfo().FrameCount, 0)
}

// Read returns the next frame, or false at end of stream or on error.
func (s *Stream) Read() (gocv.Mat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isOpen || s.capture == nil {
		s.lastError = fmt.Errorf("stream not open")
		return gocv.Mat{}, false
	}

	frame := gocv.NewMat()
	if !s.capture.Read(&frame) || frame.Empty() {
		frame.Close()
		s.lastError = fmt.Errorf("no frame after %d", s.frameCount)
		return gocv.Mat{}, false
	}

	s.frameCount++
	return frame, true
}

// Err returns the error that ended the last Read, if any.
func (s *Stream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture != nil {
		s.capture.Close()
		s.capture = nil
	}
	s.isOpen = false
	log.Info().Str("source", s.Name).Int64("frames", s.frameCount).Msg("Stream closed")
	return nil
}

func (s *Stream) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOpen
}
