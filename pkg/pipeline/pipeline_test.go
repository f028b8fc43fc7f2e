package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/garagehq/docvision/pkg/config"
	"github.com/garagehq/docvision/pkg/cost"
	"github.com/garagehq/docvision/pkg/doctype"
	"github.com/garagehq/docvision/pkg/extract"
	"github.com/garagehq/docvision/pkg/fingerprint"
	"github.com/garagehq/docvision/pkg/modelsel"
	"github.com/garagehq/docvision/pkg/vision"
)

// scriptedCaller returns canned responses and counts remote calls.
type scriptedCaller struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, req vision.CallRequest) (vision.CallResponse, error)
}

func (s *scriptedCaller) Call(_ context.Context, req vision.CallRequest) (vision.CallResponse, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.mu.Unlock()
	return s.fn(call, req)
}

func (s *scriptedCaller) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func respondWith(text string) func(int, vision.CallRequest) (vision.CallResponse, error) {
	return func(int, vision.CallRequest) (vision.CallResponse, error) {
		return vision.CallResponse{Text: text, InputTokens: 900, OutputTokens: 40}, nil
	}
}

type testEnv struct {
	pipe   *Pipeline
	caller *scriptedCaller
	sink   *cost.Recording
	store  *fingerprint.MemoryStore
}

func newTestEnv(t *testing.T, fn func(int, vision.CallRequest) (vision.CallResponse, error)) *testEnv {
	t.Helper()

	selector, err := modelsel.NewSelector(map[modelsel.Tier]string{
		modelsel.TierFast:     "fast-model",
		modelsel.TierStandard: "standard-model",
		modelsel.TierPower:    "power-model",
	})
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}

	caller := &scriptedCaller{fn: fn}
	invoker := vision.NewInvoker(caller, nil, 50*time.Millisecond, time.Millisecond, 4*time.Millisecond, nil)

	store := fingerprint.NewMemoryStore(64)
	cache := fingerprint.NewCache(store, time.Hour, nil)

	estimator := cost.NewEstimator(map[string]config.ModelRate{
		"fast-model":     {Tier: "fast", PerImage: 0.001, Per1kTokens: 0.0002},
		"standard-model": {Tier: "standard", PerImage: 0.005, Per1kTokens: 0.001},
		"power-model":    {Tier: "power", PerImage: 0.02, Per1kTokens: 0.004},
	})

	parser, err := extract.NewParser(70, nil)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}

	sink := &cost.Recording{}
	pipe := New(cache, selector, invoker, parser, estimator, sink, nil)
	return &testEnv{pipe: pipe, caller: caller, sink: sink, store: store}
}

func odometerRequest() Request {
	return Request{
		Image:        []byte("odometer photo bytes"),
		MIMEType:     "image/jpeg",
		DocumentType: doctype.Odometer,
		Budget:       modelsel.BudgetMedium,
	}
}

// Odometer photo through the full cycle: fast tier, parsed, validated,
// cost reconciled, result cached.
func TestProcessOdometerEndToEnd(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"mileage": 123456}`))

	out, err := env.pipe.Process(context.Background(), odometerRequest())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if out.Record.Odometer == nil || out.Record.Odometer.Mileage != 123456 {
		t.Errorf("record = %+v", out.Record)
	}
	if out.Validation.Status != extract.StatusValidated {
		t.Errorf("status = %s, want validated (issues: %+v)", out.Validation.Status, out.Validation.Issues)
	}
	if out.CacheHit {
		t.Error("first submission reported as cache hit")
	}
	if out.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", out.Attempts)
	}
	if out.Cost.Model != "fast-model" {
		t.Errorf("cost model = %s, want fast-model (odometer default tier)", out.Cost.Model)
	}
	if out.Cost.ActualUSD <= 0 {
		t.Errorf("actual cost = %v, want > 0", out.Cost.ActualUSD)
	}
	if out.Fingerprint == "" {
		t.Error("empty fingerprint")
	}
	if got := env.sink.Records(); len(got) != 1 || got[0].CacheHit {
		t.Errorf("sink records = %+v, want one non-hit record", got)
	}
	if env.store.Len() != 1 {
		t.Errorf("stored entries = %d, want 1", env.store.Len())
	}
}

// A duplicate submission returns the cached result without calling the
// remote model again.
func TestProcessDuplicateServedFromCache(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"mileage": 123456}`))
	ctx := context.Background()
	req := odometerRequest()

	first, err := env.pipe.Process(ctx, req)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	second, err := env.pipe.Process(ctx, req)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}

	if env.caller.callCount() != 1 {
		t.Errorf("remote calls = %d, want 1 (second request must not invoke)", env.caller.callCount())
	}
	if !second.CacheHit {
		t.Error("second submission not reported as cache hit")
	}
	if second.Record.Odometer.Mileage != first.Record.Odometer.Mileage {
		t.Errorf("cached record diverges: %+v vs %+v", second.Record, first.Record)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Errorf("fingerprints differ: %s vs %s", second.Fingerprint, first.Fingerprint)
	}

	recs := env.sink.Records()
	if len(recs) != 2 {
		t.Fatalf("sink records = %d, want 2", len(recs))
	}
	if !recs[1].CacheHit {
		t.Error("second cost record not flagged as cache hit")
	}
}

// Same image under a different declared type is a different fingerprint
// and must be processed again.
func TestProcessTypeChangesFingerprint(t *testing.T) {
	env := newTestEnv(t, func(_ int, req vision.CallRequest) (vision.CallResponse, error) {
		if req.Model == "fast-model" {
			return vision.CallResponse{Text: `{"mileage": 5}`, OutputTokens: 10}, nil
		}
		return vision.CallResponse{Text: `{"gallons": 10, "cost": 30}`, OutputTokens: 20}, nil
	})
	ctx := context.Background()

	req := odometerRequest()
	if _, err := env.pipe.Process(ctx, req); err != nil {
		t.Fatalf("odometer Process: %v", err)
	}
	req.DocumentType = doctype.FuelReceipt
	out, err := env.pipe.Process(ctx, req)
	if err != nil {
		t.Fatalf("fuel Process: %v", err)
	}
	if out.CacheHit {
		t.Error("different document type hit the other type's cache entry")
	}
	if env.caller.callCount() != 2 {
		t.Errorf("remote calls = %d, want 2", env.caller.callCount())
	}
}

func TestProcessRejectedInput(t *testing.T) {
	env := newTestEnv(t, func(int, vision.CallRequest) (vision.CallResponse, error) {
		return vision.CallResponse{}, &vision.CallError{
			Kind: vision.KindRejected, Status: 400, Err: errors.New("content policy rejection"),
		}
	})

	_, err := env.pipe.Process(context.Background(), odometerRequest())
	if !errors.Is(err, vision.ErrRejectedInput) {
		t.Fatalf("err = %v, want ErrRejectedInput", err)
	}
	if env.caller.callCount() != 1 {
		t.Errorf("remote calls = %d, want 1 (no retry on rejection)", env.caller.callCount())
	}
	// The failed attempt still produced a cost record.
	if recs := env.sink.Records(); len(recs) != 1 || recs[0].ActualUSD <= 0 {
		t.Errorf("sink records = %+v, want one record carrying the estimate", recs)
	}
}

func TestProcessRetryExhausted(t *testing.T) {
	env := newTestEnv(t, func(int, vision.CallRequest) (vision.CallResponse, error) {
		return vision.CallResponse{}, &vision.CallError{
			Kind: vision.KindTransient, Status: 503, Err: errors.New("upstream unavailable"),
		}
	})

	_, err := env.pipe.Process(context.Background(), odometerRequest())
	if !errors.Is(err, vision.ErrRetryExhausted) {
		t.Fatalf("err = %v, want ErrRetryExhausted", err)
	}
	if env.caller.callCount() != vision.AttemptCeiling {
		t.Errorf("remote calls = %d, want the ceiling of %d", env.caller.callCount(), vision.AttemptCeiling)
	}
}

func TestProcessUnparseableResponse(t *testing.T) {
	env := newTestEnv(t, respondWith("I cannot make out this image at all."))

	req := odometerRequest()
	req.DocumentType = doctype.ServiceInvoice
	_, err := env.pipe.Process(context.Background(), req)
	if !errors.Is(err, extract.ErrUnparseable) {
		t.Fatalf("err = %v, want ErrUnparseable", err)
	}
	// Nothing cached; resubmission must reprocess.
	if _, err := env.pipe.Process(context.Background(), req); !errors.Is(err, extract.ErrUnparseable) {
		t.Fatalf("resubmission err = %v, want ErrUnparseable", err)
	}
	if env.caller.callCount() != 2 {
		t.Errorf("remote calls = %d, want 2 (failures are not cached)", env.caller.callCount())
	}
}

func TestProcessNeedsReviewStillCached(t *testing.T) {
	// Insurance card missing its policy number: stored, flagged for review.
	env := newTestEnv(t, respondWith(`{"insurer": "Acme Mutual"}`))

	req := Request{
		Image:        []byte("insurance card bytes"),
		MIMEType:     "image/jpeg",
		DocumentType: doctype.InsuranceCard,
		Budget:       modelsel.BudgetMedium,
	}
	out, err := env.pipe.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Validation.Status != extract.StatusNeedsReview {
		t.Errorf("status = %s, want needs_review", out.Validation.Status)
	}

	again, err := env.pipe.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("resubmission: %v", err)
	}
	if !again.CacheHit {
		t.Error("needs_review outcome was not cached")
	}
}

func TestProcessEmptyTypeDefaultsToUnknown(t *testing.T) {
	env := newTestEnv(t, respondWith(`{"text": "some handwritten note", "detected_type": "note"}`))

	out, err := env.pipe.Process(context.Background(), Request{
		Image:    []byte("mystery photo"),
		MIMEType: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Record.Type != doctype.Unknown {
		t.Errorf("type = %s, want unknown", out.Record.Type)
	}
}

func TestProcessHintsReachThePrompt(t *testing.T) {
	var seenPrompt string
	env := newTestEnv(t, func(_ int, req vision.CallRequest) (vision.CallResponse, error) {
		seenPrompt = req.Prompt
		return vision.CallResponse{Text: `{"mileage": 77}`, OutputTokens: 10}, nil
	})

	req := odometerRequest()
	req.Hints = map[string]string{"vehicle": "2019 Tacoma", "units": "miles"}
	if _, err := env.pipe.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}

	for _, want := range []string{"2019 Tacoma", "units: miles"} {
		if !strings.Contains(seenPrompt, want) {
			t.Errorf("prompt missing hint %q:\n%s", want, seenPrompt)
		}
	}
}

func TestBuildPromptStableOrder(t *testing.T) {
	hints := map[string]string{"b": "2", "a": "1", "c": "3"}
	first := buildPrompt(doctype.Odometer, hints)
	for i := 0; i < 20; i++ {
		if got := buildPrompt(doctype.Odometer, hints); got != first {
			t.Fatal("hint ordering is not stable across calls")
		}
	}
	if !strings.Contains(first, "- a: 1") {
		t.Errorf("prompt missing formatted hint:\n%s", first)
	}
}
