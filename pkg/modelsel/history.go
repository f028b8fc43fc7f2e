package modelsel

import (
	"sync"

	"github.com/garagehq/docvision/pkg/doctype"
)

// Accuracy is the observed outcome tally for one document type.
type Accuracy struct {
	Validated int
	Samples   int
}

// ValidatedRate returns the share of runs that passed validation cleanly.
func (a Accuracy) ValidatedRate() float64 {
	if a.Samples == 0 {
		return 1
	}
	return float64(a.Validated) / float64(a.Samples)
}

// Snapshot is an immutable copy of per-type accuracy, safe to hand to the
// pure Select function.
type Snapshot map[doctype.Type]Accuracy

// History tallies validation outcomes per document type across the life of
// the process. It feeds back into model selection: types we keep getting
// wrong on a cheap tier earn an upgrade.
type History struct {
	mu     sync.Mutex
	byType map[doctype.Type]Accuracy
}

func NewHistory() *History {
	return &History{byType: make(map[doctype.Type]Accuracy)}
}

// Record adds one outcome. validated reports whether the extraction passed
// validation without falling to needs_review.
func (h *History) Record(t doctype.Type, validated bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	acc := h.byType[t]
	acc.Samples++
	if validated {
		acc.Validated++
	}
	h.byType[t] = acc
}

// Snapshot copies the current tallies.
func (h *History) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(Snapshot, len(h.byType))
	for k, v := range h.byType {
		out[k] = v
	}
	return out
}
