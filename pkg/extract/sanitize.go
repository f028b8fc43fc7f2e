package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/garagehq/docvision/pkg/doctype"
)

// Physical plausibility bounds. Values outside these are flagged and
// cleared, never silently trusted and never fatal.
const (
	maxMileage        = 999_999
	maxFuelGallons    = 500
	maxMoneyAmount    = 100_000
	minPricePerGallon = 0.5
	maxPricePerGallon = 25
)

type addFunc func(code, msg string, sev Severity)

// sanitize populates the typed fields for rec.Type from the loosely-typed
// decode, normalizing numbers, coercing currency strings, and flagging
// impossible values.
func sanitize(rec *Record, m map[string]any, add addFunc) {
	switch rec.Type {
	case doctype.Odometer:
		rec.Odometer = sanitizeOdometer(m, add)
	case doctype.FuelReceipt:
		rec.Fuel = sanitizeFuel(m, add)
	case doctype.ServiceInvoice:
		rec.Service = sanitizeService(m, add)
	case doctype.InsuranceCard:
		rec.Insurance = sanitizeInsurance(m, add)
	case doctype.Registration:
		rec.Registration = sanitizeRegistration(m, add)
	case doctype.InspectionCertificate:
		rec.Inspection = sanitizeInspection(m, add)
	default:
		if text := str(m, "text"); text != "" {
			rec.RawText = text
		}
		rec.DetectedType = str(m, "detected_type")
	}
}

func sanitizeOdometer(m map[string]any, add addFunc) *OdometerFields {
	f := &OdometerFields{}
	n, ok := integer(m, "mileage", add)
	if !ok {
		add("mileage_missing", "odometer reading absent from response", SeveritySevere)
		return f
	}
	if n < 0 || n > maxMileage {
		add("mileage_out_of_range",
			fmt.Sprintf("mileage %d outside 0-%d; cleared", n, maxMileage), SeveritySevere)
		return f
	}
	f.Mileage = n
	if u := strings.ToLower(str(m, "units")); u == "km" || u == "mi" {
		f.Units = u
	}
	return f
}

func sanitizeFuel(m map[string]any, add addFunc) *FuelFields {
	f := &FuelFields{
		Station: str(m, "station"),
		Date:    str(m, "date"),
	}
	if g, ok := number(m, "gallons", add); ok {
		if g <= 0 || g > maxFuelGallons {
			add("gallons_out_of_range",
				fmt.Sprintf("gallons %.2f implausible; cleared", g), SeveritySevere)
		} else {
			f.Gallons = g
		}
	} else {
		add("gallons_missing", "gallons absent from response", SeverityWarning)
	}
	if c, ok := money(m, "cost", add); ok {
		if c < 0 || c > maxMoneyAmount {
			add("cost_out_of_range",
				fmt.Sprintf("cost %.2f implausible; cleared", c), SeveritySevere)
		} else {
			f.Cost = c
		}
	} else {
		add("cost_missing", "total cost absent from response", SeverityWarning)
	}
	if p, ok := money(m, "price_per_gallon", add); ok {
		if p < minPricePerGallon || p > maxPricePerGallon {
			add("unit_price_out_of_range",
				fmt.Sprintf("price per gallon %.2f outside %.2f-%.2f; cleared",
					p, float64(minPricePerGallon), float64(maxPricePerGallon)), SeverityWarning)
		} else {
			f.PricePerGallon = p
		}
	}
	return f
}

func sanitizeService(m map[string]any, add addFunc) *ServiceFields {
	f := &ServiceFields{
		Vendor: str(m, "vendor"),
		Date:   str(m, "date"),
	}
	if f.Vendor == "" {
		add("vendor_missing", "service vendor absent from response", SeveritySevere)
	}
	if list, ok := m["services"].([]any); ok {
		for _, it := range list {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				f.Services = append(f.Services, strings.TrimSpace(s))
			}
		}
	}
	f.PartsCost = boundedMoney(m, "parts_cost", add)
	f.LaborCost = boundedMoney(m, "labor_cost", add)
	f.Total = boundedMoney(m, "total", add)
	if f.Total == 0 {
		add("total_missing", "invoice total absent or zero", SeverityWarning)
	}
	if n, ok := integer(m, "mileage", add); ok {
		if n >= 0 && n <= maxMileage {
			f.Mileage = n
		} else {
			add("mileage_out_of_range",
				fmt.Sprintf("mileage %d outside 0-%d; cleared", n, maxMileage), SeverityWarning)
		}
	}
	return f
}

func sanitizeInsurance(m map[string]any, add addFunc) *InsuranceFields {
	f := &InsuranceFields{
		Insurer:        str(m, "insurer"),
		PolicyNumber:   strings.ToUpper(strings.ReplaceAll(str(m, "policy_number"), " ", "")),
		EffectiveDate:  str(m, "effective_date"),
		ExpirationDate: str(m, "expiration_date"),
	}
	if f.Insurer == "" {
		add("insurer_missing", "insurer absent from response", SeveritySevere)
	}
	if f.PolicyNumber == "" {
		add("policy_number_missing", "policy number absent from response", SeveritySevere)
	}
	return f
}

func sanitizeRegistration(m map[string]any, add addFunc) *RegistrationFields {
	f := &RegistrationFields{
		Plate:          strings.ToUpper(strings.TrimSpace(str(m, "plate"))),
		State:          strings.ToUpper(strings.TrimSpace(str(m, "state"))),
		VIN:            strings.ToUpper(strings.ReplaceAll(str(m, "vin"), " ", "")),
		ExpirationDate: str(m, "expiration_date"),
	}
	if f.Plate == "" {
		add("plate_missing", "plate number absent from response", SeveritySevere)
	}
	if f.VIN != "" && len(f.VIN) != 17 {
		add("vin_length", fmt.Sprintf("VIN has %d characters, expected 17", len(f.VIN)), SeverityWarning)
	}
	return f
}

func sanitizeInspection(m map[string]any, add addFunc) *InspectionFields {
	f := &InspectionFields{
		Station:        str(m, "station"),
		Result:         strings.ToLower(strings.TrimSpace(str(m, "result"))),
		Date:           str(m, "date"),
		ExpirationDate: str(m, "expiration_date"),
	}
	if f.Result == "" {
		add("result_missing", "inspection result absent from response", SeveritySevere)
	} else {
		f.Passed = strings.Contains(f.Result, "pass")
	}
	return f
}

// --- loose-value coercion helpers ---

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// number coerces a JSON number or numeric string.
func number(m map[string]any, key string, add addFunc) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	}
	add(key+"_unreadable", fmt.Sprintf("could not read numeric field %q; defaulted", key), SeverityWarning)
	return 0, false
}

// integer coerces a whole-number field, rounding JSON floats.
func integer(m map[string]any, key string, add addFunc) (int, bool) {
	f, ok := number(m, key, add)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

var currencyReplacer = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")

// money coerces a JSON number or a currency string like "$1,234.50".
func money(m map[string]any, key string, add addFunc) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := currencyReplacer.Replace(strings.TrimSpace(t))
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	add(key+"_unreadable", fmt.Sprintf("could not coerce %q to an amount; defaulted", key), SeverityWarning)
	return 0, false
}

// boundedMoney reads an optional amount and clears implausible values.
func boundedMoney(m map[string]any, key string, add addFunc) float64 {
	v, ok := money(m, key, add)
	if !ok {
		return 0
	}
	if v < 0 || v > maxMoneyAmount {
		add(key+"_out_of_range", fmt.Sprintf("%s %.2f implausible; cleared", key, v), SeverityWarning)
		return 0
	}
	return v
}
