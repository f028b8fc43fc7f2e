// Package vision wraps the remote multimodal model service: a single call
// contract plus a resilient invoker that layers timeout, retry, and
// model-fallback policy on top of it.
package vision

import (
	"context"
	"errors"
	"fmt"
)

// CallRequest is one submission to the remote model: an image, a prompt,
// and the model identifier to run it on.
type CallRequest struct {
	Image    []byte
	MIMEType string
	Prompt   string
	Model    string
}

// CallResponse is the raw model output plus usage metadata when the
// service reports it (zero when it does not).
type CallResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Caller is the opaque remote capability. Implementations must return a
// *CallError so the invoker can tell transient failures from terminal ones.
type Caller interface {
	Call(ctx context.Context, req CallRequest) (CallResponse, error)
}

// FailureKind classifies a remote failure for retry purposes.
type FailureKind int

const (
	// KindTransient covers timeouts, rate limits, and 5xx-equivalents:
	// errors expected to resolve on retry or on a different model.
	KindTransient FailureKind = iota
	// KindRejected covers malformed requests and content-policy
	// rejections: retrying cannot help.
	KindRejected
)

func (k FailureKind) String() string {
	if k == KindRejected {
		return "rejected"
	}
	return "transient"
}

// CallError is a classified remote failure.
type CallError struct {
	Kind   FailureKind
	Status int
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("vision call failed (%s, status %d): %v", e.Kind, e.Status, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Transient reports whether err should be retried. Unclassified errors
// (network hiccups, context deadline) count as transient.
func Transient(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind == KindTransient
	}
	return true
}

// Terminal errors surfaced by the invoker.
var (
	// ErrRetryExhausted means every attempt failed transiently and the
	// ceiling was reached. The caller may resubmit.
	ErrRetryExhausted = errors.New("vision: retries exhausted")
	// ErrRejectedInput means the remote service refused the request in a
	// way retrying cannot fix.
	ErrRejectedInput = errors.New("vision: input rejected")
)
