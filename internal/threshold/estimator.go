// Package threshold derives motion-score thresholds from recent history.
//
// An Estimator keeps a sliding window of motion scores and turns it into a
// (low, high) pair of mean + k*std bounds. Until the window holds MinHistory
// samples it answers with a configured default pair.
package threshold

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Pair separates "no motion" (<= Low), "ambiguous" and "definite motion"
// (>= High). High is always greater than Low.
type Pair struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// Phase is the estimator's adaptation state.
type Phase int

const (
	PhaseWarmup Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	if p == PhaseActive {
		return "active"
	}
	return "warmup"
}

// Config holds estimator parameters.
type Config struct {
	WindowSize   int
	KLow         float64
	KHigh        float64
	MinHistory   int
	Default      Pair
	SmoothFactor float64 // 0 disables smoothing
}

// Estimator is not safe for concurrent use; it belongs to a single run.
type Estimator struct {
	cfg Config

	window []float64
	next   int
	count  int

	emaSeeded bool
	emaLow    float64
	emaHigh   float64
}

// New creates an estimator with an empty window.
func New(cfg Config) *Estimator {
	capacity := max(cfg.WindowSize, 0)
	return &Estimator{
		cfg:    cfg,
		window: make([]float64, capacity),
	}
}

// Update records score and returns the thresholds to apply to it.
func (e *Estimator) Update(score int) Pair {
	e.push(float64(score))
	if e.Phase() == PhaseWarmup {
		return e.cfg.Default
	}

	raw := e.raw()
	if e.cfg.SmoothFactor <= 0 {
		return raw
	}

	if !e.emaSeeded {
		e.emaLow = float64(raw.Low)
		e.emaHigh = float64(raw.High)
		e.emaSeeded = true
	} else {
		alpha := e.cfg.SmoothFactor
		e.emaLow = (1-alpha)*e.emaLow + alpha*float64(raw.Low)
		e.emaHigh = (1-alpha)*e.emaHigh + alpha*float64(raw.High)
	}
	return e.ema()
}

// Current returns the thresholds Update last produced without recording a
// new score.
func (e *Estimator) Current() Pair {
	if e.Phase() == PhaseWarmup {
		return e.cfg.Default
	}
	if e.cfg.SmoothFactor > 0 && e.emaSeeded {
		return e.ema()
	}
	return e.raw()
}

// HistoryLen returns the number of scores currently in the window.
func (e *Estimator) HistoryLen() int {
	return e.count
}

// Phase reports whether enough history has been collected to adapt.
func (e *Estimator) Phase() Phase {
	if e.count < e.cfg.MinHistory {
		return PhaseWarmup
	}
	return PhaseActive
}

func (e *Estimator) push(v float64) {
	if len(e.window) == 0 {
		return
	}
	e.window[e.next] = v
	e.next = (e.next + 1) % len(e.window)
	if e.count < len(e.window) {
		e.count++
	}
}

// raw computes the unsmoothed pair from the current window.
func (e *Estimator) raw() Pair {
	mean, std := e.meanStd()
	p := Pair{
		Low:  int(math.Floor(mean + e.cfg.KLow*std)),
		High: int(math.Floor(mean + e.cfg.KHigh*std)),
	}
	if p.High <= p.Low {
		p.High = p.Low + 1
	}
	return p
}

func (e *Estimator) ema() Pair {
	p := Pair{
		Low:  int(math.Floor(e.emaLow)),
		High: int(math.Floor(e.emaHigh)),
	}
	// blended bounds stay at least 1 apart; only float rounding can trip this
	if p.High <= p.Low {
		p.High = p.Low + 1
	}
	return p
}

// meanStd returns the population mean and standard deviation of the window.
// Slot order does not matter for either statistic.
func (e *Estimator) meanStd() (float64, float64) {
	if e.count == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(e.window[:e.count], nil)
}
