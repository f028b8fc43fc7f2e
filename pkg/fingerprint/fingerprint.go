// Package fingerprint deduplicates extraction work: identical image bytes
// with the same declared document type map to the same digest, and a
// completed pipeline run is cached under it with a TTL.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/garagehq/docvision/pkg/cost"
	"github.com/garagehq/docvision/pkg/doctype"
	"github.com/garagehq/docvision/pkg/extract"
)

// Fingerprint is the hex digest of normalized image bytes plus document
// type. Two requests with identical fingerprints are duplicates regardless
// of submission order.
type Fingerprint string

// Compute derives the fingerprint. The document type is folded into the
// digest so the same photo submitted as two different types is processed
// twice: prompts and schemas differ per type.
func Compute(image []byte, t doctype.Type) Fingerprint {
	h := sha256.New()
	h.Write([]byte(t))
	h.Write([]byte{0})
	h.Write(image)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Key is the store key for this fingerprint.
func (f Fingerprint) Key() string {
	return "extract:" + string(f)
}

// Short returns a log-friendly prefix.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

// Entry is one cached pipeline result.
type Entry struct {
	Record     *extract.Record     `json:"record"`
	Validation *extract.Validation `json:"validation"`
	Cost       cost.Record         `json:"cost"`
	InsertedAt time.Time           `json:"inserted_at"`
}

// Complete reports whether the entry carries everything a cache hit must
// return. A torn or partial write fails this check and reads as a miss.
func (e *Entry) Complete() bool {
	return e != nil && e.Record != nil && e.Validation != nil && !e.InsertedAt.IsZero()
}
