// Package pipeline composes fingerprinting, model selection, resilient
// invocation, extraction, and cost accounting into the single request/
// response cycle external callers invoke.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garagehq/docvision/pkg/cost"
	"github.com/garagehq/docvision/pkg/doctype"
	"github.com/garagehq/docvision/pkg/extract"
	"github.com/garagehq/docvision/pkg/fingerprint"
	"github.com/garagehq/docvision/pkg/modelsel"
	"github.com/garagehq/docvision/pkg/vision"
)

// Request is one user upload. Immutable; discarded after Process returns.
type Request struct {
	Image        []byte
	MIMEType     string
	DocumentType doctype.Type
	Budget       modelsel.Budget
	Hints        map[string]string
}

// Outcome is the complete result triple plus request metadata. Callers
// always receive either an Outcome or one of the three terminal errors
// (vision.ErrRejectedInput, vision.ErrRetryExhausted, extract.ErrUnparseable).
type Outcome struct {
	Record      *extract.Record     `json:"record"`
	Validation  *extract.Validation `json:"validation"`
	Cost        cost.Record         `json:"cost"`
	CacheHit    bool                `json:"cache_hit"`
	Fingerprint string              `json:"fingerprint"`
	Attempts    int                 `json:"attempts"`
}

// Pipeline wires the components. All of them are referentially transparent
// given their inputs; the orchestrator owns the only mutable combination
// step.
type Pipeline struct {
	cache     *fingerprint.Cache
	selector  *modelsel.Selector
	history   *modelsel.History
	invoker   *vision.Invoker
	parser    *extract.Parser
	estimator *cost.Estimator
	sink      cost.Sink
	log       *slog.Logger
}

func New(cache *fingerprint.Cache, selector *modelsel.Selector, invoker *vision.Invoker,
	parser *extract.Parser, estimator *cost.Estimator, sink cost.Sink, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = cost.MultiSink{}
	}
	return &Pipeline{
		cache:     cache,
		selector:  selector,
		history:   modelsel.NewHistory(),
		invoker:   invoker,
		parser:    parser,
		estimator: estimator,
		sink:      sink,
		log:       log,
	}
}

// Process runs one request end to end: fingerprint, cache lookup, model
// selection, resilient invocation, extraction/validation, cost
// reconciliation, cache store.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Outcome, error) {
	reqID := uuid.New().String()
	start := time.Now()
	t := req.DocumentType
	if t == "" {
		t = doctype.Unknown
	}

	fp := fingerprint.Compute(req.Image, t)
	p.log.Info("pipeline.request",
		"req_id", reqID, "doc_type", t, "budget", req.Budget,
		"image_bytes", len(req.Image), "fp", fp.Short())

	if entry, ok := p.cache.Lookup(ctx, fp); ok {
		hit := entry.Cost
		hit.CacheHit = true
		p.sink.Observe(hit)
		requestsTotal.WithLabelValues("cache_hit").Inc()
		requestDuration.Observe(time.Since(start).Seconds())
		return &Outcome{
			Record:      entry.Record,
			Validation:  entry.Validation,
			Cost:        hit,
			CacheHit:    true,
			Fingerprint: string(fp),
		}, nil
	}

	choice := p.selector.Select(t, req.Budget, p.history.Snapshot())
	estimate := p.estimator.Estimate(t, choice)
	p.log.Info("pipeline.model_selected",
		"req_id", reqID, "model", choice.Model, "tier", choice.Tier.String(),
		"why", choice.Justification, "estimated_usd", estimate.EstimatedUSD)

	prompt := buildPrompt(t, req.Hints)
	result, err := p.invoker.Invoke(ctx, req.Image, req.MIMEType, prompt, choice)
	if err != nil {
		// The attempts were made against the remote service; their cost is
		// committed even though the request failed.
		failed := p.estimator.Reconcile(estimate, nil)
		p.sink.Observe(failed)
		requestsTotal.WithLabelValues(failureLabel(err)).Inc()
		requestDuration.Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("process %s: %w", t, err)
	}

	rec, validation, err := p.parser.Parse(result.Text, t)
	if err != nil {
		failed := p.estimator.Reconcile(estimate, result)
		p.sink.Observe(failed)
		p.history.Record(t, false)
		requestsTotal.WithLabelValues("unparseable").Inc()
		requestDuration.Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("process %s: %w", t, err)
	}

	actual := p.estimator.Reconcile(estimate, result)
	p.sink.Observe(actual)
	p.history.Record(t, validation.Status == extract.StatusValidated)

	entry := &fingerprint.Entry{Record: rec, Validation: validation, Cost: actual}
	p.cache.Store(ctx, fp, entry)

	requestsTotal.WithLabelValues("success").Inc()
	requestDuration.Observe(time.Since(start).Seconds())
	p.log.Info("pipeline.done",
		"req_id", reqID, "doc_type", t, "model", result.Model,
		"attempts", len(result.Attempts), "status", validation.Status,
		"confidence", validation.Confidence, "actual_usd", actual.ActualUSD,
		"elapsed_ms", time.Since(start).Milliseconds())

	return &Outcome{
		Record:      rec,
		Validation:  validation,
		Cost:        actual,
		Fingerprint: string(fp),
		Attempts:    len(result.Attempts),
	}, nil
}

// buildPrompt appends caller hints to the type's prompt template in a
// stable order.
func buildPrompt(t doctype.Type, hints map[string]string) string {
	prompt := doctype.SpecFor(t).Prompt
	if len(hints) == 0 {
		return prompt
	}
	keys := make([]string, 0, len(hints))
	for k := range hints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\nContext from the submitter:")
	for _, k := range keys {
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(hints[k])
	}
	return b.String()
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, vision.ErrRejectedInput):
		return "rejected"
	case errors.Is(err, vision.ErrRetryExhausted):
		return "retry_exhausted"
	default:
		return "error"
	}
}
