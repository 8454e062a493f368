package keyframe

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kai5263499/keyframe-sentry/internal/config"
	"github.com/kai5263499/keyframe-sentry/internal/motion"
	"github.com/kai5263499/keyframe-sentry/internal/threshold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Frames are their own 1-based index, so scorers can look scores up directly.

type fakeSource struct {
	frames int
	fps    float64
	reads  int
}

func (s *fakeSource) Read() (int, bool) {
	if s.reads >= s.frames {
		return 0, false
	}
	s.reads++
	return s.reads, true
}

func (s *fakeSource) FPS() float64    { return s.fps }
func (s *fakeSource) FrameCount() int { return s.frames }

type fakePreparer struct {
	released int
}

func (p *fakePreparer) Prepare(raw int) (int, int) { return raw, raw }
func (p *fakePreparer) Release(frames ...int)      { p.released += len(frames) }

type fakeScorer struct {
	scores map[int]int
	def    int
	calls  []int
}

func (s *fakeScorer) Process(frame int) (int, int) {
	s.calls = append(s.calls, frame)
	if v, ok := s.scores[frame]; ok {
		return v, -frame
	}
	return s.def, -frame
}

type fakeSink struct {
	events []Event[int]
	refuse map[int]bool
}

func (s *fakeSink) Persist(ev Event[int]) bool {
	if s.refuse[ev.FrameIndex] {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *fakeSink) frames() []int {
	out := make([]int, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.FrameIndex)
	}
	return out
}

type recorder struct {
	samples []Sample
}

func (r *recorder) Observe(s Sample) { r.samples = append(r.samples, s) }

func staticOptions(low, high int) Options {
	return Options{
		MinDistanceSeconds: 0,
		FrameStep:          1,
		Static:             threshold.Pair{Low: low, High: high},
	}
}

type harness struct {
	src     *fakeSource
	prep    *fakePreparer
	color   *fakeScorer
	texture *fakeScorer
	sink    *fakeSink
	obs     *recorder
	p       *Pipeline[int]
}

func newHarness(opts Options, frames int, fps float64) *harness {
	h := &harness{
		src:     &fakeSource{frames: frames, fps: fps},
		prep:    &fakePreparer{},
		color:   &fakeScorer{scores: map[int]int{}},
		texture: &fakeScorer{scores: map[int]int{}},
		sink:    &fakeSink{refuse: map[int]bool{}},
		obs:     &recorder{},
	}
	h.p = New[int](opts, h.prep, h.color, h.texture, h.sink)
	h.p.SetObserver(h.obs)
	return h
}

func (h *harness) run(t *testing.T) *Report {
	t.Helper()
	rep, err := h.p.Run(context.Background(), h.src)
	require.NoError(t, err)
	return rep
}

func TestFunnelDecisions(t *testing.T) {
	h := newHarness(staticOptions(10, 100), 4, 10)
	h.color.scores = map[int]int{1: 5, 2: 150, 3: 50, 4: 60}
	h.texture.scores = map[int]int{3: 120, 4: 20}

	rep := h.run(t)

	assert.Equal(t, []int{3, 4}, h.texture.calls, "texture runs only in the ambiguous band")
	assert.Equal(t, []int{2, 3}, h.sink.frames())
	assert.Equal(t, []float64{0.2, 0.3}, rep.Timestamps)
	assert.Equal(t, motion.StageColor, h.sink.events[0].Stage)
	assert.Equal(t, motion.StageTexture, h.sink.events[1].Stage)

	want := map[Decision]int{
		DecisionReject:          1,
		DecisionAcceptImmediate: 1,
		DecisionEscalateConfirm: 1,
		DecisionEscalateReject:  1,
	}
	assert.Equal(t, want, rep.Decisions)

	decisions := make([]Decision, 0, len(h.obs.samples))
	for _, s := range h.obs.samples {
		decisions = append(decisions, s.Decision)
	}
	assert.Equal(t, []Decision{DecisionReject, DecisionAcceptImmediate, DecisionEscalateConfirm, DecisionEscalateReject}, decisions)
	assert.Equal(t, -1, h.obs.samples[1].Motion2)
	assert.Equal(t, 120, h.obs.samples[2].Motion2)
}

func TestThresholdBoundaries(t *testing.T) {
	// motion1 == low rejects; motion1 == high accepts; motion2 == high confirms.
	h := newHarness(staticOptions(10, 100), 3, 10)
	h.color.scores = map[int]int{1: 10, 2: 100, 3: 11}
	h.texture.scores = map[int]int{3: 100}

	h.run(t)

	assert.Equal(t, []int{3}, h.texture.calls)
	assert.Equal(t, []int{2, 3}, h.sink.frames())
}

func TestDebounce(t *testing.T) {
	opts := staticOptions(10, 100)
	opts.MinDistanceSeconds = 0.5 // 5 frames at 10 fps
	h := newHarness(opts, 20, 10)
	h.color.def = 500

	rep := h.run(t)

	assert.Equal(t, []int{1, 6, 11, 16}, h.sink.frames())
	assert.Equal(t, 16, rep.Debounced)
	for i := 1; i < len(h.sink.events); i++ {
		assert.GreaterOrEqual(t, h.sink.events[i].FrameIndex-h.sink.events[i-1].FrameIndex, 5)
	}
}

func TestDebounceAtLeastOneFrame(t *testing.T) {
	opts := staticOptions(10, 100)
	opts.MinDistanceSeconds = 0.01
	h := newHarness(opts, 5, 10)
	h.color.def = 500

	h.run(t)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, h.sink.frames())
}

func TestMaxKeyframesStopsReading(t *testing.T) {
	opts := staticOptions(10, 100)
	opts.MaxKeyframes = 2
	h := newHarness(opts, 100, 10)
	h.color.def = 500

	rep := h.run(t)

	assert.Len(t, rep.Timestamps, 2)
	assert.True(t, rep.HitCap)
	assert.Equal(t, 2, h.src.reads, "no frames are read after the cap")
}

func TestRefusedPersistDoesNotCount(t *testing.T) {
	opts := staticOptions(10, 100)
	opts.MinDistanceSeconds = 0.3 // 3 frames
	opts.MaxKeyframes = 2
	h := newHarness(opts, 10, 10)
	h.color.def = 500
	h.sink.refuse[1] = true

	rep := h.run(t)

	// Frame 1 was refused so frame 2 is not debounced against it.
	assert.Equal(t, []int{2, 5}, h.sink.frames())
	assert.Equal(t, 1, rep.PersistFailures)
	assert.Equal(t, []float64{0.2, 0.5}, rep.Timestamps)
	assert.False(t, h.obs.samples[0].Persisted)
	assert.True(t, h.obs.samples[1].Persisted)
}

func TestFrameStep(t *testing.T) {
	opts := staticOptions(10, 100)
	opts.FrameStep = 3
	h := newHarness(opts, 10, 10)
	h.color.def = 500

	rep := h.run(t)

	assert.Equal(t, []int{3, 6, 9}, h.color.calls)
	assert.Equal(t, 10, rep.FramesRead)
	assert.Equal(t, 3, rep.FramesScored)
	// Skipped frames release the raw frame; scored frames release three.
	assert.Equal(t, 7+3*3, h.prep.released)
}

func TestFPSFallback(t *testing.T) {
	h := newHarness(staticOptions(10, 100), 3, 0)
	h.color.def = 500

	rep := h.run(t)

	assert.Equal(t, DefaultFPS, rep.FPS)
	assert.InDelta(t, 1.0/30, rep.Timestamps[0], 1e-12)
}

func TestEmptySourceIsUnavailable(t *testing.T) {
	h := newHarness(staticOptions(10, 100), 0, 25)

	rep, err := h.p.Run(context.Background(), h.src)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	require.NotNil(t, rep)
	assert.Empty(t, rep.Timestamps)
}

func TestCancelReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(staticOptions(10, 100), 100, 10)
	h.color.def = 500
	h.sink.refuse = nil

	obs := observerFunc(func(s Sample) {
		if s.FrameIndex == 3 {
			cancel()
		}
	})
	h.p.SetObserver(obs)

	rep, err := h.p.Run(ctx, h.src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, rep.FramesRead)
	assert.Len(t, rep.Timestamps, 3)
}

type observerFunc func(Sample)

func (f observerFunc) Observe(s Sample) { f(s) }

func TestDebugMasksAttachedOnlyWhenEnabled(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		opts := staticOptions(10, 100)
		opts.SaveDebugMasks = enabled
		h := newHarness(opts, 2, 10)
		h.color.scores = map[int]int{1: 500, 2: 50}
		h.texture.scores = map[int]int{2: 500}

		h.run(t)
		require.Len(t, h.sink.events, 2)
		for _, ev := range h.sink.events {
			if !enabled {
				assert.Nil(t, ev.Mask)
				continue
			}
			require.NotNil(t, ev.Mask)
			assert.Equal(t, -ev.FrameIndex, *ev.Mask)
		}
	}
}

func TestAdaptiveWarmupUsesDefaults(t *testing.T) {
	opts := staticOptions(10, 100)
	opts.Adaptive = true
	opts.Estimator = threshold.Config{
		WindowSize: 50,
		KLow:       1,
		KHigh:      3,
		MinHistory: 10,
		Default:    threshold.Pair{Low: 10, High: 100},
	}
	h := newHarness(opts, 5, 10)
	h.color.def = 50

	h.run(t)

	for _, s := range h.obs.samples {
		assert.Equal(t, threshold.Pair{Low: 10, High: 100}, s.Thresholds)
		assert.Equal(t, threshold.PhaseWarmup, s.Phase)
	}
	assert.Equal(t, 5, h.p.estimator.HistoryLen())
}

func TestTextureScoreUsesColorThresholds(t *testing.T) {
	opts := staticOptions(0, 0)
	opts.Adaptive = true
	opts.Estimator = threshold.Config{
		WindowSize: 100,
		KLow:       0,
		KHigh:      1,
		MinHistory: 2,
		Default:    threshold.Pair{Low: 1, High: 2},
	}
	h := newHarness(opts, 6, 10)
	h.color.scores = map[int]int{1: 0, 2: 100, 3: 0, 4: 100, 5: 60, 6: 60}
	h.texture.def = 95

	h.run(t)

	// Only the color scores feed the estimator.
	assert.Equal(t, 6, h.p.estimator.HistoryLen())
	assert.Equal(t, []int{5, 6}, h.texture.calls)

	// Frame 5 sees (52, 96) and frame 6 sees (53, 94); the texture score of
	// 95 is judged against each frame's own pair.
	s5, s6 := h.obs.samples[4], h.obs.samples[5]
	assert.Equal(t, threshold.Pair{Low: 52, High: 96}, s5.Thresholds)
	assert.Equal(t, DecisionEscalateReject, s5.Decision)
	assert.Equal(t, threshold.Pair{Low: 53, High: 94}, s6.Thresholds)
	assert.Equal(t, DecisionEscalateConfirm, s6.Decision)
	assert.Equal(t, []int{2, 4, 6}, h.sink.frames())
}

func TestRunResetsState(t *testing.T) {
	opts := staticOptions(10, 100)
	opts.MinDistanceSeconds = 1
	h := newHarness(opts, 3, 10)
	h.color.def = 500

	first := h.run(t)
	h.src.reads = 0
	second := h.run(t)

	if diff := cmp.Diff(first.Timestamps, second.Timestamps); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, []int{1, 1}, h.sink.frames())
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.Default().Get().Keyframe)

	assert.Equal(t, threshold.Pair{Low: 5000, High: 10000}, opts.Static)
	assert.Equal(t, opts.Static, opts.Estimator.Default)
	assert.True(t, opts.Adaptive)
	assert.Equal(t, 300, opts.Estimator.WindowSize)
	assert.Equal(t, 30, opts.minDistanceFrames(30))
	assert.Equal(t, 1, Options{}.minDistanceFrames(30))
}

func TestDecisionText(t *testing.T) {
	b, err := DecisionEscalateConfirm.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "escalate_confirm", string(b))
	assert.Equal(t, "unknown", Decision(42).String())
}
