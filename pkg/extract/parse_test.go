package extract

import (
	"errors"
	"testing"

	"github.com/garagehq/docvision/pkg/doctype"
)

const testThreshold = 70

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(testThreshold, nil)
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	return p
}

func hasIssue(v *Validation, code string) bool {
	for _, is := range v.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

func TestParseOdometer(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name        string
		raw         string
		wantMileage int
		wantStatus  Status
	}{
		{
			name:        "bare number response",
			raw:         "123456",
			wantMileage: 123456,
			wantStatus:  StatusValidated,
		},
		{
			name:        "json object response",
			raw:         `{"mileage": 88123, "units": "mi"}`,
			wantMileage: 88123,
			wantStatus:  StatusValidated,
		},
		{
			name:        "fenced markdown response",
			raw:         "```json\n{\"mileage\": 45210}\n```",
			wantMileage: 45210,
			wantStatus:  StatusValidated,
		},
		{
			name:        "plain text with separators",
			raw:         "The odometer reads 123,456 miles.",
			wantMileage: 123456,
			wantStatus:  StatusValidated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, v, err := p.Parse(tt.raw, doctype.Odometer)
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if rec.Odometer == nil {
				t.Fatal("no odometer fields populated")
			}
			if rec.Odometer.Mileage != tt.wantMileage {
				t.Errorf("mileage = %d, want %d", rec.Odometer.Mileage, tt.wantMileage)
			}
			if v.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s (issues: %v)", v.Status, tt.wantStatus, v.Issues)
			}
		})
	}
}

func TestParseOdometerImpossibleMileage(t *testing.T) {
	p := newTestParser(t)

	rec, v, err := p.Parse(`{"mileage": 1500000}`, doctype.Odometer)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if rec.Odometer.Mileage != 0 {
		t.Errorf("impossible mileage should be cleared, got %d", rec.Odometer.Mileage)
	}
	if !hasIssue(v, "mileage_out_of_range") {
		t.Errorf("expected mileage_out_of_range issue, got %v", v.Issues)
	}
	if v.Status != StatusNeedsReview {
		t.Errorf("status = %s, want needs_review", v.Status)
	}
}

func TestParseFuelReceiptDerivesUnitPrice(t *testing.T) {
	p := newTestParser(t)

	rec, v, err := p.Parse(`{"gallons": 12.5, "cost": 45.00, "station": "Shell"}`, doctype.FuelReceipt)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	f := rec.Fuel
	if f == nil {
		t.Fatal("no fuel fields populated")
	}
	if f.Gallons != 12.5 || f.Cost != 45.00 {
		t.Errorf("gallons/cost = %.2f/%.2f, want 12.50/45.00", f.Gallons, f.Cost)
	}
	if f.PricePerGallon != 3.6 {
		t.Errorf("derived price per gallon = %v, want 3.6", f.PricePerGallon)
	}
	if !hasIssue(v, "unit_price_derived") {
		t.Errorf("expected low-severity derivation issue, got %v", v.Issues)
	}
	// A missing derived field alone must not force review.
	if v.Status != StatusValidated {
		t.Errorf("status = %s, want validated (issues: %v)", v.Status, v.Issues)
	}
}

func TestParseFuelReceiptCurrencyStrings(t *testing.T) {
	p := newTestParser(t)

	rec, _, err := p.Parse(`{"gallons": "10.0", "cost": "$1,045.50"}`, doctype.FuelReceipt)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if rec.Fuel.Cost != 1045.50 {
		t.Errorf("cost = %v, want 1045.50", rec.Fuel.Cost)
	}
}

// One bad field must never discard an otherwise-usable extraction.
func TestParseFailSoftBadField(t *testing.T) {
	p := newTestParser(t)

	rec, v, err := p.Parse(`{"gallons": 12.5, "cost": {"amount": 45}}`, doctype.FuelReceipt)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if rec == nil || rec.Fuel == nil {
		t.Fatal("record discarded despite usable gallons field")
	}
	if rec.Fuel.Gallons != 12.5 {
		t.Errorf("gallons = %v, want 12.5", rec.Fuel.Gallons)
	}
	if rec.Fuel.Cost != 0 {
		t.Errorf("unreadable cost should default to zero, got %v", rec.Fuel.Cost)
	}
	if !hasIssue(v, "cost_unreadable") {
		t.Errorf("expected cost_unreadable issue describing the defaulting, got %v", v.Issues)
	}
}

func TestParseServiceInvoiceEnrichment(t *testing.T) {
	p := newTestParser(t)

	raw := `{"vendor": "Midtown Auto", "services": ["oil change", "tire rotation"],
		"parts_cost": 40, "labor_cost": 80, "total": 120, "mileage": 60000, "date": "2026-08-01"}`
	rec, v, err := p.Parse(raw, doctype.ServiceInvoice)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	s := rec.Service
	if s.NextServiceMileage != 65000 {
		t.Errorf("next service mileage = %d, want 65000", s.NextServiceMileage)
	}
	if !hasIssue(v, "next_service_projected") {
		t.Errorf("expected projection issue, got %v", v.Issues)
	}
	if len(s.Services) != 2 {
		t.Errorf("services = %v, want 2 entries", s.Services)
	}
}

func TestParseInsuranceMissingRequired(t *testing.T) {
	p := newTestParser(t)

	rec, v, err := p.Parse(`{"insurer": "Geico"}`, doctype.InsuranceCard)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if rec.Insurance == nil || rec.Insurance.Insurer != "Geico" {
		t.Fatalf("usable insurer field lost: %+v", rec.Insurance)
	}
	if v.Status != StatusNeedsReview {
		t.Errorf("missing policy number should force review, got %s", v.Status)
	}
	if !hasIssue(v, "policy_number_missing") {
		t.Errorf("expected policy_number_missing, got %v", v.Issues)
	}
}

func TestParseUnknownDocument(t *testing.T) {
	p := newTestParser(t)

	rec, v, err := p.Parse("State of Ohio vehicle title, VIN 1HGCM82633A004352", doctype.Unknown)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if rec.RawText == "" {
		t.Error("unknown document should retain raw text")
	}
	if v.Status != StatusValidated {
		t.Errorf("status = %s, want validated", v.Status)
	}
}

func TestParseUnparseableIsFatal(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name string
		raw  string
		t    doctype.Type
	}{
		{"empty response", "", doctype.FuelReceipt},
		{"prose for structured type", "I cannot read this image clearly.", doctype.ServiceInvoice},
		{"top-level array", `[1, 2, 3]`, doctype.Odometer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _, err := p.Parse(tt.raw, tt.t)
			if !errors.Is(err, ErrUnparseable) {
				t.Fatalf("err = %v, want ErrUnparseable", err)
			}
			if rec != nil {
				t.Error("no partial record may be returned on structural failure")
			}
		})
	}
}
