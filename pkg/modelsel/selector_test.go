package modelsel

import (
	"reflect"
	"testing"

	"github.com/garagehq/docvision/pkg/doctype"
)

func newTestSelector(t *testing.T) *Selector {
	t.Helper()
	s, err := NewSelector(map[Tier]string{
		TierFast:     "fast-model",
		TierStandard: "standard-model",
		TierPower:    "power-model",
	})
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	return s
}

func TestNewSelectorRequiresAllTiers(t *testing.T) {
	_, err := NewSelector(map[Tier]string{
		TierFast:  "fast-model",
		TierPower: "power-model",
	})
	if err == nil {
		t.Fatal("expected error for missing standard tier")
	}
}

func TestSelectPolicy(t *testing.T) {
	lowAccuracy := Snapshot{
		doctype.FuelReceipt: {Validated: 5, Samples: 12}, // 42% validated
	}
	fewSamples := Snapshot{
		doctype.FuelReceipt: {Validated: 1, Samples: 5},
	}

	tests := []struct {
		name     string
		docType  doctype.Type
		budget   Budget
		hist     Snapshot
		wantTier Tier
	}{
		{"odometer defaults to fast", doctype.Odometer, BudgetMedium, nil, TierFast},
		{"fuel receipt defaults to standard", doctype.FuelReceipt, BudgetMedium, nil, TierStandard},
		{"service invoice pinned to power", doctype.ServiceInvoice, BudgetMedium, nil, TierPower},
		{"insurance card pinned to power", doctype.InsuranceCard, BudgetMedium, nil, TierPower},
		{"registration pinned to power", doctype.Registration, BudgetMedium, nil, TierPower},
		{"low budget downgrades standard to fast", doctype.FuelReceipt, BudgetLow, nil, TierFast},
		{"low budget cannot downgrade critical", doctype.ServiceInvoice, BudgetLow, nil, TierPower},
		{"low budget cannot downgrade below fast", doctype.Odometer, BudgetLow, nil, TierFast},
		{"poor accuracy upgrades one tier", doctype.FuelReceipt, BudgetMedium, lowAccuracy, TierPower},
		{"accuracy upgrade beats budget downgrade", doctype.FuelReceipt, BudgetLow, lowAccuracy, TierPower},
		{"too few samples leaves default tier", doctype.FuelReceipt, BudgetMedium, fewSamples, TierStandard},
		{"high budget leaves default tier", doctype.Odometer, BudgetHigh, nil, TierFast},
	}

	s := newTestSelector(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := s.Select(tt.docType, tt.budget, tt.hist)
			if c.Tier != tt.wantTier {
				t.Errorf("tier = %s, want %s (%s)", c.Tier, tt.wantTier, c.Justification)
			}
			if c.Model != s.models[tt.wantTier] {
				t.Errorf("model = %s, want %s", c.Model, s.models[tt.wantTier])
			}
			if c.Justification == "" {
				t.Error("empty justification")
			}
		})
	}
}

func TestSelectFallbackOrdering(t *testing.T) {
	s := newTestSelector(t)

	tests := []struct {
		docType doctype.Type
		want    []string
	}{
		// Remaining tiers, most capable first, never including the primary.
		{doctype.ServiceInvoice, []string{"standard-model", "fast-model"}},
		{doctype.FuelReceipt, []string{"power-model", "fast-model"}},
		{doctype.Odometer, []string{"power-model", "standard-model"}},
	}
	for _, tt := range tests {
		c := s.Select(tt.docType, BudgetMedium, nil)
		if !reflect.DeepEqual(c.Fallbacks, tt.want) {
			t.Errorf("%s fallbacks = %v, want %v", tt.docType, c.Fallbacks, tt.want)
		}
	}
}

func TestSelectIsPure(t *testing.T) {
	s := newTestSelector(t)
	hist := Snapshot{doctype.Odometer: {Validated: 9, Samples: 10}}
	a := s.Select(doctype.Odometer, BudgetMedium, hist)
	b := s.Select(doctype.Odometer, BudgetMedium, hist)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same inputs produced different choices:\n%+v\n%+v", a, b)
	}
}

func TestParseBudget(t *testing.T) {
	tests := []struct {
		in   string
		want Budget
	}{
		{"low", BudgetLow},
		{"medium", BudgetMedium},
		{"high", BudgetHigh},
		{"", BudgetMedium},
		{"unlimited", BudgetMedium},
	}
	for _, tt := range tests {
		if got := ParseBudget(tt.in); got != tt.want {
			t.Errorf("ParseBudget(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestHistoryRecordAndSnapshot(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 7; i++ {
		h.Record(doctype.FuelReceipt, true)
	}
	for i := 0; i < 3; i++ {
		h.Record(doctype.FuelReceipt, false)
	}

	snap := h.Snapshot()
	acc, ok := snap[doctype.FuelReceipt]
	if !ok {
		t.Fatal("snapshot missing fuel_receipt entry")
	}
	if acc.Samples != 10 || acc.Validated != 7 {
		t.Errorf("accuracy = %+v, want 7/10", acc)
	}
	if got := acc.ValidatedRate(); got != 0.7 {
		t.Errorf("ValidatedRate = %v, want 0.7", got)
	}

	// Snapshot must be a copy, not a live view.
	h.Record(doctype.FuelReceipt, false)
	if snap[doctype.FuelReceipt].Samples != 10 {
		t.Error("snapshot mutated by later Record")
	}
}

func TestValidatedRateNoSamples(t *testing.T) {
	var acc Accuracy
	if got := acc.ValidatedRate(); got != 1 {
		t.Errorf("ValidatedRate with no samples = %v, want 1", got)
	}
}
