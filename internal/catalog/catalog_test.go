package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kai5263499/keyframe-sentry/internal/keyframe"
	"github.com/kai5263499/keyframe-sentry/internal/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// tick returns a clock advancing one second per call.
func tick(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = tick(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	run, err := s.StartRun(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.NotEmpty(t, run.ID)

	rep := &keyframe.Report{
		Timestamps:   []float64{1.5, 3},
		FramesRead:   90,
		FramesScored: 45,
		Decisions: map[keyframe.Decision]int{
			keyframe.DecisionReject:          40,
			keyframe.DecisionAcceptImmediate: 5,
		},
		FPS:    30,
		HitCap: true,
	}
	require.NoError(t, s.FinishRun(ctx, run.ID, rep, nil))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)

	finished := time.Date(2026, 1, 2, 3, 4, 7, 0, time.UTC)
	want := Run{
		ID:            run.ID,
		VideoPath:     "clip.mp4",
		Status:        StatusCompleted,
		StartedAt:     time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		FinishedAt:    &finished,
		FPS:           30,
		FramesRead:    90,
		FramesScored:  45,
		KeyframeCount: 2,
		HitCap:        true,
		Decisions:     map[string]int{"reject": 40, "accept_immediate": 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetRun() mismatch (-want +got):\n%s", diff)
	}
}

func TestFinishRunFailure(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run, err := s.StartRun(ctx, "missing.mp4")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, run.ID, nil, errors.New("cannot open frame source")))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "cannot open frame source", got.Error)
	assert.Empty(t, got.Decisions)
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, "nope", nil, nil), ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = tick(time.Unix(1_700_000_000, 0))

	var ids []string
	for _, v := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		run, err := s.StartRun(ctx, v)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := Open(path)
	require.NoError(t, err)
	run, err := s.StartRun(ctx, "clip.mp4")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetRun(ctx, run.ID)
	assert.NoError(t, err)
}

type stubSink struct {
	ok    bool
	calls int
}

func (s *stubSink) Persist(keyframe.Event[string]) bool {
	s.calls++
	return s.ok
}

func TestSinkRecordsPersistedKeyframes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	run, err := s.StartRun(ctx, "clip.mp4")
	require.NoError(t, err)

	next := &stubSink{ok: true}
	sink := NewSink[string](ctx, next, s, run.ID, func(ts float64, stage motion.Stage) string {
		return "out/" + stage.String()
	})

	assert.True(t, sink.Persist(keyframe.Event[string]{FrameIndex: 30, Timestamp: 1, Stage: motion.StageColor}))
	assert.True(t, sink.Persist(keyframe.Event[string]{FrameIndex: 60, Timestamp: 2, Stage: motion.StageTexture}))

	next.ok = false
	assert.False(t, sink.Persist(keyframe.Event[string]{FrameIndex: 90, Timestamp: 3}))

	kfs, err := s.Keyframes(ctx, run.ID)
	require.NoError(t, err)
	want := []Keyframe{
		{RunID: run.ID, FrameIndex: 30, Timestamp: 1, Stage: "color", Path: "out/color"},
		{RunID: run.ID, FrameIndex: 60, Timestamp: 2, Stage: "texture", Path: "out/texture"},
	}
	if diff := cmp.Diff(want, kfs); diff != "" {
		t.Errorf("Keyframes() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, next.calls)
}

func TestSinkInsertFailureStillAccepts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	// No such run, so the foreign key rejects the insert.
	sink := NewSink[string](ctx, &stubSink{ok: true}, s, "ghost", nil)
	assert.True(t, sink.Persist(keyframe.Event[string]{FrameIndex: 1, Timestamp: 0.1}))

	kfs, err := s.Keyframes(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, kfs)
}
