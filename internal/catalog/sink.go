package catalog

import (
	"context"

	"github.com/kai5263499/keyframe-sentry/internal/keyframe"
	"github.com/kai5263499/keyframe-sentry/internal/motion"
	"github.com/rs/zerolog/log"
)

// PathFunc names the file a keyframe was written to.
type PathFunc func(ts float64, stage motion.Stage) string

// Sink records every keyframe the wrapped sink persists. A failed insert is
// logged and does not undo the accept.
type Sink[F any] struct {
	ctx   context.Context
	next  keyframe.Sink[F]
	store *Store
	runID string
	path  PathFunc
}

// NewSink wraps next. path may be nil.
func NewSink[F any](ctx context.Context, next keyframe.Sink[F], store *Store, runID string, path PathFunc) *Sink[F] {
	return &Sink[F]{ctx: ctx, next: next, store: store, runID: runID, path: path}
}

func (s *Sink[F]) Persist(ev keyframe.Event[F]) bool {
	if !s.next.Persist(ev) {
		return false
	}

	kf := Keyframe{
		RunID:      s.runID,
		FrameIndex: ev.FrameIndex,
		Timestamp:  ev.Timestamp,
		Stage:      ev.Stage.String(),
	}
	if s.path != nil {
		kf.Path = s.path(ev.Timestamp, ev.Stage)
	}
	if err := s.store.AddKeyframe(s.ctx, kf); err != nil {
		log.Warn().Err(err).Str("run", s.runID).Int("frame", ev.FrameIndex).Msg("Failed to catalog keyframe")
	}
	return true
}
