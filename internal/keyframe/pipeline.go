package keyframe

import (
	"context"
	"time"

	"github.com/kai5263499/keyframe-sentry/internal/motion"
	"github.com/kai5263499/keyframe-sentry/internal/threshold"
	"github.com/rs/zerolog/log"
)

// Report summarises a run.
type Report struct {
	Timestamps      []float64        `json:"keyframes"`
	FramesRead      int              `json:"frames_read"`
	FramesScored    int              `json:"frames_scored"`
	Decisions       map[Decision]int `json:"decisions"`
	Debounced       int              `json:"debounced"`
	PersistFailures int              `json:"persist_failures"`
	FPS             float64          `json:"fps"`
	HitCap          bool             `json:"hit_cap"`
	Elapsed         time.Duration    `json:"elapsed_ns"`
}

// Pipeline classifies the frames of one stream. It owns its scorers and
// threshold estimator; run independent pipelines for independent streams.
type Pipeline[F any] struct {
	opts     Options
	prep     Preparer[F]
	color    Scorer[F]
	texture  Scorer[F]
	sink     Sink[F]
	observer Observer

	estimator *threshold.Estimator
}

// New creates a pipeline. The scorers must not be shared with any other
// pipeline.
func New[F any](opts Options, prep Preparer[F], color, texture Scorer[F], sink Sink[F]) *Pipeline[F] {
	return &Pipeline[F]{
		opts:    opts,
		prep:    prep,
		color:   color,
		texture: texture,
		sink:    sink,
	}
}

// SetObserver registers an observer for per-frame samples.
func (p *Pipeline[F]) SetObserver(o Observer) {
	p.observer = o
}

// runState is reset at the start of every run.
type runState struct {
	frameIndex   int
	lastAccepted int
	minDistance  int
	fps          float64
	report       *Report
}

// Run classifies frames until the source is exhausted, the keyframe cap is
// reached or ctx is cancelled. A cancelled run returns the partial report
// together with ctx.Err().
func (p *Pipeline[F]) Run(ctx context.Context, src Source[F]) (*Report, error) {
	start := time.Now()

	fps := src.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}
	total := src.FrameCount()

	p.estimator = threshold.New(p.opts.Estimator)
	st := &runState{
		minDistance: p.opts.minDistanceFrames(fps),
		fps:         fps,
		report: &Report{
			Timestamps: []float64{},
			Decisions:  make(map[Decision]int),
			FPS:        fps,
		},
	}
	st.lastAccepted = -st.minDistance

	log.Info().
		Float64("fps", fps).
		Int("total_frames", total).
		Int("min_distance_frames", st.minDistance).
		Bool("adaptive", p.opts.Adaptive).
		Msg("Keyframe run started")

	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		raw, ok := src.Read()
		if !ok {
			if st.frameIndex == 0 {
				runErr = ErrSourceUnavailable
			}
			break
		}
		st.frameIndex++
		st.report.FramesRead++

		if p.opts.FrameStep > 1 && st.frameIndex%p.opts.FrameStep != 0 {
			p.prep.Release(raw)
			continue
		}

		frame, gray := p.prep.Prepare(raw)
		stop := p.classify(st, frame, gray)
		p.prep.Release(raw, frame, gray)

		if p.opts.ProgressInterval > 0 && st.frameIndex%p.opts.ProgressInterval == 0 {
			p.logProgress(st, total)
		}
		if stop {
			st.report.HitCap = true
			break
		}
	}

	rep := st.report
	rep.Elapsed = time.Since(start)

	evt := log.Info()
	if runErr != nil {
		evt = log.Warn().Err(runErr)
	}
	evt.
		Int("keyframes", len(rep.Timestamps)).
		Int("frames_read", rep.FramesRead).
		Int("frames_scored", rep.FramesScored).
		Int("persist_failures", rep.PersistFailures).
		Dur("elapsed", rep.Elapsed).
		Msg("Keyframe run finished")

	return rep, runErr
}

// classify runs the funnel for one frame and reports whether the keyframe
// cap has been reached.
func (p *Pipeline[F]) classify(st *runState, frame, gray F) bool {
	st.report.FramesScored++

	motion1, mask1 := p.color.Process(gray)
	thr, phase := p.thresholds(motion1)

	sample := Sample{
		FrameIndex: st.frameIndex,
		Timestamp:  float64(st.frameIndex) / st.fps,
		Motion1:    motion1,
		Motion2:    -1,
		Thresholds: thr,
		Phase:      phase,
	}
	defer func() {
		st.report.Decisions[sample.Decision]++
		if p.observer != nil {
			p.observer.Observe(sample)
		}
	}()

	if motion1 <= thr.Low {
		sample.Decision = DecisionReject
		return false
	}

	if motion1 >= thr.High {
		sample.Decision = DecisionAcceptImmediate
		sample.Persisted = p.accept(st, sample.Timestamp, motion.StageColor, frame, mask1)
		return sample.Persisted && p.capReached(st)
	}

	// Ambiguous band. The texture score is compared against the pair
	// computed from motion1; the estimator is not consulted again.
	motion2, mask2 := p.texture.Process(gray)
	sample.Motion2 = motion2
	if motion2 < thr.High {
		sample.Decision = DecisionEscalateReject
		return false
	}

	sample.Decision = DecisionEscalateConfirm
	sample.Persisted = p.accept(st, sample.Timestamp, motion.StageTexture, frame, mask2)
	return sample.Persisted && p.capReached(st)
}

func (p *Pipeline[F]) thresholds(motion1 int) (threshold.Pair, threshold.Phase) {
	if !p.opts.Adaptive {
		return p.opts.Static, threshold.PhaseActive
	}
	return p.estimator.Update(motion1), p.estimator.Phase()
}

// accept applies the debounce rule and hands the keyframe to the sink.
func (p *Pipeline[F]) accept(st *runState, ts float64, stage motion.Stage, frame, mask F) bool {
	if st.frameIndex-st.lastAccepted < st.minDistance {
		st.report.Debounced++
		return false
	}

	ev := Event[F]{
		FrameIndex: st.frameIndex,
		Timestamp:  ts,
		Stage:      stage,
		Frame:      frame,
	}
	if p.opts.SaveDebugMasks {
		ev.Mask = &mask
	}

	if !p.sink.Persist(ev) {
		st.report.PersistFailures++
		log.Warn().
			Int("frame", st.frameIndex).
			Float64("timestamp", ts).
			Stringer("stage", stage).
			Msg("Keyframe not persisted")
		return false
	}

	st.report.Timestamps = append(st.report.Timestamps, ts)
	st.lastAccepted = st.frameIndex
	log.Debug().
		Int("frame", st.frameIndex).
		Float64("timestamp", ts).
		Stringer("stage", stage).
		Msg("Keyframe saved")
	return true
}

func (p *Pipeline[F]) capReached(st *runState) bool {
	return p.opts.MaxKeyframes > 0 && len(st.report.Timestamps) >= p.opts.MaxKeyframes
}

func (p *Pipeline[F]) logProgress(st *runState, total int) {
	evt := log.Info().
		Int("frame", st.frameIndex).
		Int("keyframes", len(st.report.Timestamps))
	if total > 0 {
		evt = evt.Float64("percent", 100*float64(st.frameIndex)/float64(total))
	}
	evt.Msg("Keyframe progress")
}
