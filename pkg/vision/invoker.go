package vision

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/garagehq/docvision/pkg/modelsel"
)

// AttemptCeiling bounds worst-case latency and spend per request. It is a
// fixed constant on purpose: callers do not get to buy more retries.
const AttemptCeiling = 4

// Attempt is one try against the remote model. Attempts are append-only
// history for a single request and live only as long as its Result.
type Attempt struct {
	Number   int           `json:"number"`
	Model    string        `json:"model"`
	Duration time.Duration `json:"duration"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
}

// Result is a successful invocation: the raw model text plus the attempt
// history that produced it.
type Result struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	Attempts     []Attempt
}

// Invoker executes one remote call with bounded timeout, retry with
// exponential backoff and jitter, and model fallback on transient failure.
type Invoker struct {
	caller      Caller
	limiter     *rate.Limiter
	timeout     time.Duration
	backoffBase time.Duration
	backoffCap  time.Duration
	log         *slog.Logger

	// sleep is swapped out by tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewInvoker wires the invoker. limiter may be nil to disable outbound
// rate limiting (tests).
func NewInvoker(caller Caller, limiter *rate.Limiter, timeout, backoffBase, backoffCap time.Duration, log *slog.Logger) *Invoker {
	if log == nil {
		log = slog.Default()
	}
	return &Invoker{
		caller:      caller,
		limiter:     limiter,
		timeout:     timeout,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		log:         log,
		sleep:       sleepCtx,
	}
}

// Invoke runs the per-request state machine of the resilient call.
// Transient failures first advance down the fallback list; once the list is
// exhausted the last model is retried with exponential backoff and jitter.
// Non-transient failures are terminal immediately. The error returned is
// always ErrRejectedInput or ErrRetryExhausted (wrapped with detail).
func (iv *Invoker) Invoke(ctx context.Context, image []byte, mimeType, prompt string, choice modelsel.Choice) (*Result, error) {
	invokeID := uuid.New().String()
	models := append([]string{choice.Model}, choice.Fallbacks...)
	modelIdx := 0
	attempts := make([]Attempt, 0, AttemptCeiling)

	// Attempting -> Done | Failed(rejected) | Failed(exhausted); every
	// transition below logs a structured event and returns or loops.
	for {
		attemptNo := len(attempts) + 1
		model := models[modelIdx]

		if iv.limiter != nil {
			if err := iv.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRetryExhausted, err)
			}
		}

		iv.log.Info("vision.invoke.attempt",
			"invoke_id", invokeID, "attempt", attemptNo, "model", model)

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, iv.timeout)
		resp, err := iv.caller.Call(callCtx, CallRequest{
			Image:    image,
			MIMEType: mimeType,
			Prompt:   prompt,
			Model:    model,
		})
		cancel()
		elapsed := time.Since(start)
		invocationDuration.Observe(elapsed.Seconds())

		att := Attempt{Number: attemptNo, Model: model, Duration: elapsed, OK: err == nil}
		if err != nil {
			att.Error = err.Error()
		}
		attempts = append(attempts, att)

		if err == nil {
			attemptsTotal.WithLabelValues("success").Inc()
			iv.log.Info("vision.invoke.done",
				"invoke_id", invokeID, "model", model, "attempts", attemptNo,
				"elapsed_ms", elapsed.Milliseconds())
			return &Result{
				Text:         resp.Text,
				Model:        model,
				InputTokens:  resp.InputTokens,
				OutputTokens: resp.OutputTokens,
				Attempts:     attempts,
			}, nil
		}

		if !Transient(err) {
			attemptsTotal.WithLabelValues("rejected").Inc()
			iv.log.Warn("vision.invoke.rejected",
				"invoke_id", invokeID, "model", model, "attempt", attemptNo, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrRejectedInput, err)
		}

		attemptsTotal.WithLabelValues("transient").Inc()
		if attemptNo >= AttemptCeiling {
			retriesExhausted.Inc()
			iv.log.Error("vision.invoke.exhausted",
				"invoke_id", invokeID, "attempts", attemptNo, "error", err)
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, attemptNo, err)
		}

		if modelIdx < len(models)-1 {
			// A fallback remains: advance immediately, no delay.
			modelIdx++
			fallbackAdvances.Inc()
			iv.log.Warn("vision.invoke.fallback",
				"invoke_id", invokeID, "attempt", attemptNo,
				"from", model, "to", models[modelIdx], "error", err)
			continue
		}

		delay := iv.backoff(attemptNo)
		iv.log.Warn("vision.invoke.retry",
			"invoke_id", invokeID, "attempt", attemptNo, "model", model,
			"backoff_ms", delay.Milliseconds(), "error", err)
		if err := iv.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetryExhausted, err)
		}
	}
}

// backoff doubles per attempt from the base, capped, with randomized jitter
// in the upper half to keep concurrent requests from retrying in lockstep.
func (iv *Invoker) backoff(attempt int) time.Duration {
	d := iv.backoffBase << uint(attempt-1)
	if d > iv.backoffCap || d <= 0 {
		d = iv.backoffCap
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
