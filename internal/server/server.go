// Package server exposes keyframe extraction and the run catalog over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kai5263499/keyframe-sentry/internal/catalog"
	"github.com/kai5263499/keyframe-sentry/internal/config"
	"github.com/kai5263499/keyframe-sentry/internal/health"
	"github.com/kai5263499/keyframe-sentry/internal/keyframe"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Extractor runs one keyframe extraction and returns its catalog run ID
// (empty when the catalog is disabled) and report.
type Extractor interface {
	Extract(ctx context.Context, videoPath string) (string, *keyframe.Report, error)
}

// RunStore is the read side of the run catalog.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]catalog.Run, error)
	GetRun(ctx context.Context, id string) (catalog.Run, error)
	Keyframes(ctx context.Context, runID string) ([]catalog.Keyframe, error)
}

// ExtractRequest is the body of POST /api/keyframes/extract.
type ExtractRequest struct {
	VideoPath string `json:"video_path"`
}

// ExtractResponse lists the keyframe timestamps of a finished run.
// CapturePath is the video that was processed.
type ExtractResponse struct {
	Mode        string           `json:"mode"`
	Keyframes   []float64        `json:"keyframes"`
	Count       int              `json:"count"`
	CapturePath string           `json:"capture_path"`
	RunID       string           `json:"run_id,omitempty"`
	Report      *keyframe.Report `json:"report"`
}

// RunDetail is a catalog run with its keyframes.
type RunDetail struct {
	catalog.Run
	Keyframes []catalog.Keyframe `json:"keyframes"`
}

type Server struct {
	cfg        *config.Config
	configPath string
	extractor  Extractor
	runs       RunStore
	srv        *http.Server

	// runs share the output directory, so only one extraction at a time
	extractMu sync.Mutex
}

// New creates a server. runs may be nil when the catalog is disabled.
// configPath receives the full merged config on every update, env overrides
// included; leave it empty to keep updates in memory.
func New(cfg *config.Config, configPath string, extractor Extractor, runs RunStore) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		extractor:  extractor,
		runs:       runs,
	}
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/keyframes/extract", s.handleExtract)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRun)

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return s.corsMiddleware(mux)
}

func (s *Server) Start() error {
	snap := s.cfg.Get()
	addr := fmt.Sprintf("%s:%d", snap.Server.Host, snap.Server.Port)
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting API server")
	return s.srv.ListenAndServe()
}

func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// CORS middleware for web app
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleExtract godoc
// @Summary Extract keyframes from a video
// @Tags Keyframes
// @Accept json
// @Produce json
// @Param request body ExtractRequest false "Video to process; defaults to video_path from config"
// @Success 200 {object} ExtractResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/keyframes/extract [post]
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ExtractRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	}

	snap := s.cfg.Get()
	videoPath := strings.TrimSpace(req.VideoPath)
	if videoPath == "" {
		videoPath = snap.VideoPath
	}
	if videoPath == "" {
		respondError(w, http.StatusBadRequest, "video_path required")
		return
	}

	if !s.extractMu.TryLock() {
		respondError(w, http.StatusConflict, "An extraction is already running")
		return
	}
	defer s.extractMu.Unlock()

	runID, rep, err := s.extractor.Extract(r.Context(), videoPath)
	if err != nil {
		log.Error().Err(err).Str("video", videoPath).Msg("Extraction failed")
		respondError(w, extractStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ExtractResponse{
		Mode:        "file",
		Keyframes:   rep.Timestamps,
		Count:       len(rep.Timestamps),
		CapturePath: videoPath,
		RunID:       runID,
		Report:      rep,
	})
}

func extractStatus(err error) int {
	var missing *config.MissingError
	switch {
	case errors.Is(err, health.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &missing), errors.Is(err, config.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, health.ErrUnreachable), errors.Is(err, keyframe.ErrSourceUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleRuns godoc
// @Summary List extraction runs, newest first
// @Tags Runs
// @Produce json
// @Param limit query int false "Maximum number of runs"
// @Success 200 {array} catalog.Run
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/runs [get]
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run catalog disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// handleRun godoc
// @Summary Get one extraction run with its keyframes
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} RunDetail
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/runs/{id} [get]
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "Run catalog disabled")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if errors.Is(err, catalog.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	kfs, err := s.runs.Keyframes(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, RunDetail{Run: run, Keyframes: kfs})
}

// handleConfig godoc
// @Summary Get or update configuration
// @Description PUT merges the body into the current video_path, output, keyframe and debug settings.
// @Tags Configuration
// @Accept json
// @Produce json
// @Success 200 {object} config.Snapshot
// @Failure 400 {object} map[string]string
// @Router /api/config [get]
// @Router /api/config [put]
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, s.cfg.Get())

	case http.MethodPut:
		candidate := s.cfg.Get()
		if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if err := candidate.Validate(false); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.cfg.Update(func(c *config.Config) {
			c.VideoPath = candidate.VideoPath
			c.Output = candidate.Output
			c.Keyframe = candidate.Keyframe
			c.Debug = candidate.Debug
		})

		if s.configPath != "" {
			if err := s.cfg.Save(s.configPath); err != nil {
				log.Warn().Err(err).Str("path", s.configPath).Msg("Failed to save config")
			}
		}

		respondJSON(w, http.StatusOK, s.cfg.Get())

	default:
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
