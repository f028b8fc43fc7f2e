package cost

import (
	"sync"
	"sync/atomic"
)

// Sink receives the cost record of every finished pipeline run. Sinks are
// injected so tests can supply a recording or no-op sink; accounting must
// never block or fail a request.
type Sink interface {
	Observe(r Record)
}

// SessionTotals is the process-wide running total: an atomic micro-dollar
// counter with no persistence guarantee. Restart resets it. It exists for
// within-session cost visibility, not billing.
type SessionTotals struct {
	microUSD atomic.Int64
	requests atomic.Int64
	hits     atomic.Int64
}

func NewSessionTotals() *SessionTotals {
	return &SessionTotals{}
}

func (s *SessionTotals) Observe(r Record) {
	s.requests.Add(1)
	if r.CacheHit {
		s.hits.Add(1)
		return
	}
	s.microUSD.Add(int64(r.ActualUSD * 1e6))
}

// TotalUSD returns the session spend so far.
func (s *SessionTotals) TotalUSD() float64 {
	return float64(s.microUSD.Load()) / 1e6
}

func (s *SessionTotals) Requests() int64 { return s.requests.Load() }
func (s *SessionTotals) CacheHits() int64 { return s.hits.Load() }

// PromSink exports cost records as prometheus metrics.
type PromSink struct{}

func (PromSink) Observe(r Record) {
	if r.CacheHit {
		return
	}
	sessionCost.WithLabelValues(r.Model).Add(r.ActualUSD)
	outputTokenHistogram.Observe(float64(r.OutputTokens))
}

// Recording captures every record, for tests.
type Recording struct {
	mu      sync.Mutex
	records []Record
}

func (r *Recording) Observe(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *Recording) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// MultiSink fans one record out to several sinks.
type MultiSink []Sink

func (m MultiSink) Observe(r Record) {
	for _, s := range m {
		s.Observe(r)
	}
}
