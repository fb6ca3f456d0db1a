package guard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStats(size int) (*Stats, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStats(size)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestErrorRateEmpty(t *testing.T) {
	s, _ := newTestStats(0)
	if got := s.ErrorRate(0); got != 0 {
		t.Errorf("empty ErrorRate: got %v, want 0", got)
	}
	if s.ShouldAlert() {
		t.Error("empty stats should not alert")
	}
}

func TestErrorRateWholeBuffer(t *testing.T) {
	s, _ := newTestStats(0)
	s.Record(nil)
	s.Record(errors.New("down"))
	s.Record(nil)
	s.Record(errors.New("down"))

	if got := s.ErrorRate(0); got != 50 {
		t.Errorf("ErrorRate: got %v, want 50", got)
	}
}

func TestRingBufferEviction(t *testing.T) {
	s, _ := newTestStats(4)
	for i := 0; i < 4; i++ {
		s.Record(errors.New("down"))
	}
	// Four successes overwrite the four failures.
	for i := 0; i < 4; i++ {
		s.Record(nil)
	}
	if got := s.ErrorRate(0); got != 0 {
		t.Errorf("ErrorRate after eviction: got %v, want 0", got)
	}
	if r := s.Snapshot(0); r.Total != 4 {
		t.Errorf("Total after eviction: got %d, want 4", r.Total)
	}
}

func TestErrorRateTrailingWindow(t *testing.T) {
	s, now := newTestStats(0)

	s.Record(errors.New("down"))
	s.Record(errors.New("down"))

	*now = now.Add(10 * time.Minute)
	s.Record(nil)
	s.Record(nil)

	if got := s.ErrorRate(5 * time.Minute); got != 0 {
		t.Errorf("trailing 5m rate: got %v, want 0 (old failures aged out)", got)
	}
	if got := s.ErrorRate(0); got != 50 {
		t.Errorf("whole-buffer rate: got %v, want 50", got)
	}
}

func TestShouldAlert(t *testing.T) {
	s, _ := newTestStats(0)

	// Exactly 50% does not alert: the threshold is strict.
	s.Record(nil)
	s.Record(errors.New("down"))
	if s.ShouldAlert() {
		t.Error("50%% error rate should not alert")
	}

	s.Record(errors.New("down"))
	if !s.ShouldAlert() {
		t.Error("66%% error rate should alert")
	}
}

func TestSnapshotBreakdown(t *testing.T) {
	s, _ := newTestStats(0)

	s.Record(nil)
	s.Record(ErrCircuitOpen)
	s.Record(context.DeadlineExceeded)
	s.Record(Permanent(errors.New("bad request")))
	s.Record(&ExhaustedError{Attempts: 3, Last: errors.New("down")})
	s.Record(errors.New("connection reset"))

	r := s.Snapshot(0)
	if r.Total != 6 || r.Errors != 5 {
		t.Fatalf("snapshot: got total=%d errors=%d, want 6/5", r.Total, r.Errors)
	}

	want := map[string]int{
		KindCircuitOpen:    1,
		KindTimeout:        1,
		KindPermanent:      1,
		KindRetryExhausted: 1,
		KindDownstream:     1,
	}
	for kind, n := range want {
		if r.Breakdown[kind] != n {
			t.Errorf("breakdown[%s]: got %d, want %d", kind, r.Breakdown[kind], n)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"circuit open", ErrCircuitOpen, KindCircuitOpen},
		{"timeout", context.DeadlineExceeded, KindTimeout},
		{"wrapped timeout", &ExhaustedError{Attempts: 3, Last: context.DeadlineExceeded}, KindTimeout},
		{"permanent", Permanent(errors.New("forbidden")), KindPermanent},
		{"exhausted", &ExhaustedError{Attempts: 3, Last: errors.New("down")}, KindRetryExhausted},
		{"downstream", errors.New("connection refused"), KindDownstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify: got %q, want %q", got, tt.want)
			}
		})
	}
}
