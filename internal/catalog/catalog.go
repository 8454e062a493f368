// Package catalog records extraction runs and their keyframes in SQLite.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/kai5263499/keyframe-sentry/internal/keyframe"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one extraction over one video.
type Run struct {
	ID              string         `json:"id"`
	VideoPath       string         `json:"video_path"`
	Status          string         `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	FPS             float64        `json:"fps"`
	FramesRead      int            `json:"frames_read"`
	FramesScored    int            `json:"frames_scored"`
	KeyframeCount   int            `json:"keyframe_count"`
	PersistFailures int            `json:"persist_failures"`
	HitCap          bool           `json:"hit_cap"`
	Decisions       map[string]int `json:"decisions"`
	Error           string         `json:"error,omitempty"`
}

// Keyframe is a persisted keyframe belonging to a run.
type Keyframe struct {
	RunID      string  `json:"run_id"`
	FrameIndex int     `json:"frame_index"`
	Timestamp  float64 `json:"timestamp"`
	Stage      string  `json:"stage"`
	Path       string  `json:"path"`
}

// Store is a SQLite-backed run catalog. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the catalog at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// foreign_keys is per connection
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("Run catalog ready")
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: that would close s.db too.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a new running extraction and returns it.
func (s *Store) StartRun(ctx context.Context, videoPath string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		VideoPath: videoPath,
		Status:    StatusRunning,
		StartedAt: s.now().UTC(),
		Decisions: map[string]int{},
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, video_path, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.VideoPath, run.Status, run.StartedAt.UnixNano())
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the outcome of a run. rep may be nil when the run failed
// before classification started.
func (s *Store) FinishRun(ctx context.Context, id string, rep *keyframe.Report, runErr error) error {
	status := StatusCompleted
	errText := ""
	if runErr != nil {
		status = StatusFailed
		errText = runErr.Error()
	}
	if rep == nil {
		rep = &keyframe.Report{}
	}

	decisions, err := json.Marshal(rep.Decisions)
	if err != nil {
		return fmt.Errorf("failed to encode decisions: %w", err)
	}
	if rep.Decisions == nil {
		decisions = []byte("{}")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, finished_at = ?, fps = ?, frames_read = ?, frames_scored = ?,
			keyframe_count = ?, persist_failures = ?, hit_cap = ?, decisions = ?, error = ?
		WHERE id = ?`,
		status, s.now().UTC().UnixNano(), rep.FPS, rep.FramesRead, rep.FramesScored,
		len(rep.Timestamps), rep.PersistFailures, rep.HitCap, string(decisions), errText,
		id)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// AddKeyframe records a persisted keyframe.
func (s *Store) AddKeyframe(ctx context.Context, kf Keyframe) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO keyframes (run_id, frame_index, timestamp, stage, path) VALUES (?, ?, ?, ?, ?)`,
		kf.RunID, kf.FrameIndex, kf.Timestamp, kf.Stage, kf.Path)
	if err != nil {
		return fmt.Errorf("failed to insert keyframe: %w", err)
	}
	return nil
}

const runColumns = `id, video_path, status, started_at, finished_at, fps, frames_read,
	frames_scored, keyframe_count, persist_failures, hit_cap, decisions, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		started   int64
		finished  sql.NullInt64
		decisions string
	)
	err := row.Scan(&run.ID, &run.VideoPath, &run.Status, &started, &finished, &run.FPS,
		&run.FramesRead, &run.FramesScored, &run.KeyframeCount, &run.PersistFailures,
		&run.HitCap, &decisions, &run.Error)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		run.FinishedAt = &t
	}
	run.Decisions = map[string]int{}
	if err := json.NewDecoder(strings.NewReader(decisions)).Decode(&run.Decisions); err != nil {
		return Run{}, fmt.Errorf("failed to decode decisions: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return run, nil
}

// Keyframes returns a run's keyframes in timestamp order.
func (s *Store) Keyframes(ctx context.Context, runID string) ([]Keyframe, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, frame_index, timestamp, stage, path FROM keyframes WHERE run_id = ? ORDER BY frame_index`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query keyframes: %w", err)
	}
	defer rows.Close()

	kfs := []Keyframe{}
	for rows.Next() {
		var kf Keyframe
		if err := rows.Scan(&kf.RunID, &kf.FrameIndex, &kf.Timestamp, &kf.Stage, &kf.Path); err != nil {
			return nil, fmt.Errorf("failed to scan keyframe: %w", err)
		}
		kfs = append(kfs, kf)
	}
	return kfs, rows.Err()
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.Debug().Msgf("migrate: "+strings.TrimSuffix(format, "\n"), v...)
}

func (migrateLogger) Verbose() bool {
	return false
}
