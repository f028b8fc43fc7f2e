// Package cost estimates and reconciles the monetary cost of vision-model
// invocations. Totals are advisory, in-process telemetry only; they reset
// on restart and never block a request.
package cost

import (
	"math"

	"github.com/garagehq/docvision/pkg/config"
	"github.com/garagehq/docvision/pkg/doctype"
	"github.com/garagehq/docvision/pkg/modelsel"
	"github.com/garagehq/docvision/pkg/vision"
)

// Record is the cost outcome of one pipeline run.
type Record struct {
	Model        string  `json:"model"`
	Tier         string  `json:"tier"`
	EstimatedUSD float64 `json:"estimated_usd"`
	ActualUSD    float64 `json:"actual_usd"`
	Attempts     int     `json:"attempts"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	CacheHit     bool    `json:"cache_hit,omitempty"`
}

// expectedOutputTokens is a per-type proxy for response size, used only
// for pre-invocation estimates.
var expectedOutputTokens = map[doctype.Type]int{
	doctype.Odometer:              30,
	doctype.FuelReceipt:           120,
	doctype.ServiceInvoice:        400,
	doctype.InsuranceCard:         150,
	doctype.Registration:          150,
	doctype.InspectionCertificate: 120,
	doctype.Unknown:               500,
}

// Estimator prices invocations from the static per-model rate table
// supplied by configuration.
type Estimator struct {
	rates map[string]config.ModelRate
}

func NewEstimator(rates map[string]config.ModelRate) *Estimator {
	return &Estimator{rates: rates}
}

// Estimate predicts the cost of running choice against a document of the
// given type, before any call is made.
func (e *Estimator) Estimate(t doctype.Type, choice modelsel.Choice) Record {
	rate := e.rates[choice.Model]
	tokens := expectedOutputTokens[t]
	if tokens == 0 {
		tokens = expectedOutputTokens[doctype.Unknown]
	}
	return Record{
		Model:        choice.Model,
		Tier:         choice.Tier.String(),
		EstimatedUSD: round6(rate.PerImage + rate.Per1kTokens*float64(tokens)/1000),
	}
}

// Reconcile computes the actual cost from the attempt history. Every
// attempt made is charged its model's per-image rate (failed calls consume
// remote resources too); token cost is charged for the final successful
// response, from reported usage when present, else from a local tiktoken
// count, else the estimate stands unchanged.
func (e *Estimator) Reconcile(est Record, result *vision.Result) Record {
	rec := est
	if result == nil {
		// Nothing succeeded; the estimate is the best number we have.
		rec.ActualUSD = est.EstimatedUSD
		return rec
	}

	rec.Model = result.Model
	rec.Attempts = len(result.Attempts)
	rec.InputTokens = result.InputTokens
	rec.OutputTokens = result.OutputTokens

	var actual float64
	for _, att := range result.Attempts {
		actual += e.rates[att.Model].PerImage
	}

	outTokens := result.OutputTokens
	if outTokens == 0 {
		outTokens = CountTokens(result.Model, result.Text)
		rec.OutputTokens = outTokens
	}
	actual += e.rates[result.Model].Per1kTokens * float64(outTokens) / 1000

	if actual == 0 {
		actual = est.EstimatedUSD
	}
	rec.ActualUSD = round6(actual)
	return rec
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
