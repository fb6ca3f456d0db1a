package guard

import (
	"sync"
	"time"
)

const (
	defaultStatsWindow = 100
	alertWindow        = 5 * time.Minute
	alertThreshold     = 50.0 // percent
)

// outcome is one recorded guarded-call result.
type outcome struct {
	at   time.Time
	ok   bool
	kind string
}

// Report is the operator-facing view of recent outcomes. Rate values are
// percentages in [0,100].
type Report struct {
	Total     int            `json:"total"`
	Errors    int            `json:"errors"`
	Rate      float64        `json:"rate"`
	Breakdown map[string]int `json:"breakdown"`
	Alert     bool           `json:"alert"`
}

// Stats is a passive observer of guarded-call outcomes: a bounded ring
// buffer of the last N results. All derived metrics are computed on
// demand from the buffer. Process-wide singleton, safe for concurrent use.
type Stats struct {
	mu   sync.Mutex
	buf  []outcome
	head int // next overwrite position once the buffer is full
	cap  int

	now func() time.Time
}

// NewStats creates a stats tracker over the last windowSize outcomes
// (default 100 when windowSize ≤ 0).
func NewStats(windowSize int) *Stats {
	if windowSize <= 0 {
		windowSize = defaultStatsWindow
	}
	return &Stats{
		buf: make([]outcome, 0, windowSize),
		cap: windowSize,
		now: time.Now,
	}
}

// Record appends one outcome; nil means success. Oldest entries are
// evicted past capacity.
func (s *Stats) Record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := outcome{at: s.now(), ok: err == nil, kind: Classify(err)}
	if len(s.buf) < s.cap {
		s.buf = append(s.buf, o)
		return
	}
	s.buf[s.head] = o
	s.head = (s.head + 1) % s.cap
}

// ErrorRate returns the failure percentage over the trailing window, or
// over the whole buffer when window is zero. Empty windows report 0.
func (s *Stats) ErrorRate(window time.Duration) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorRateLocked(window)
}

func (s *Stats) errorRateLocked(window time.Duration) float64 {
	total, errs := s.countLocked(window)
	if total == 0 {
		return 0
	}
	return float64(errs) / float64(total) * 100
}

func (s *Stats) countLocked(window time.Duration) (total, errs int) {
	var cutoff time.Time
	if window > 0 {
		cutoff = s.now().Add(-window)
	}
	for _, o := range s.buf {
		if window > 0 && !o.at.After(cutoff) {
			continue
		}
		total++
		if !o.ok {
			errs++
		}
	}
	return total, errs
}

// ShouldAlert reports whether the trailing 5-minute error rate exceeds
// the advisory threshold. Observable condition, never an error.
func (s *Stats) ShouldAlert() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorRateLocked(alertWindow) > alertThreshold
}

// Snapshot returns totals, rate and per-kind breakdown over the trailing
// window (whole buffer when window is zero).
func (s *Stats) Snapshot(window time.Duration) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cutoff time.Time
	if window > 0 {
		cutoff = s.now().Add(-window)
	}

	r := Report{Breakdown: make(map[string]int)}
	for _, o := range s.buf {
		if window > 0 && !o.at.After(cutoff) {
			continue
		}
		r.Total++
		if !o.ok {
			r.Errors++
			r.Breakdown[o.kind]++
		}
	}
	if r.Total > 0 {
		r.Rate = float64(r.Errors) / float64(r.Total) * 100
	}
	r.Alert = s.errorRateLocked(alertWindow) > alertThreshold
	return r
}
