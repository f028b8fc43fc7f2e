package doctype

import "strings"

// Type identifies the kind of document a photo claims to be.
type Type string

const (
	Odometer              Type = "odometer"
	FuelReceipt           Type = "fuel_receipt"
	ServiceInvoice        Type = "service_invoice"
	InsuranceCard         Type = "insurance_card"
	Registration          Type = "registration"
	InspectionCertificate Type = "inspection_certificate"
	Unknown               Type = "unknown"
)

// Parse maps a caller-supplied string onto the enumeration. Anything we do
// not recognize becomes Unknown and is routed to the generic prompt rather
// than rejected.
func Parse(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Odometer, FuelReceipt, ServiceInvoice, InsuranceCard, Registration, InspectionCertificate:
		return Type(strings.ToLower(strings.TrimSpace(s)))
	default:
		return Unknown
	}
}

// Spec is the dispatch record for one document type: its extraction prompt,
// the JSON Schema the model response must satisfy, and whether the type
// needs multi-field structured reasoning (which drives model selection —
// a wrong structured parse costs more to recover from than the price delta
// between tiers).
type Spec struct {
	Type     Type
	Prompt   string
	Schema   map[string]any
	Critical bool
}

// SpecFor returns the dispatch record for t, falling back to the generic
// unknown-document record.
func SpecFor(t Type) Spec {
	if s, ok := registry[t]; ok {
		return s
	}
	return registry[Unknown]
}

// All returns every registered type, Unknown last.
func All() []Type {
	return []Type{Odometer, FuelReceipt, ServiceInvoice, InsuranceCard, Registration, InspectionCertificate, Unknown}
}

const promptPreamble = "You are a vehicle-document parser. Return ONLY a JSON object that matches the provided JSON Schema. " +
	"Use ISO-8601 dates (YYYY-MM-DD). Never output null; omit fields you cannot read. Do not wrap the JSON in markdown."

var registry = map[Type]Spec{
	Odometer: {
		Type: Odometer,
		Prompt: promptPreamble +
			" The image shows a vehicle odometer. Read the displayed mileage as an integer number of miles. " +
			"Ignore trip meters and clock digits.",
		Schema: objSchema(map[string]any{
			"mileage": map[string]any{"type": "integer", "minimum": 0},
			"units":   map[string]any{"type": "string", "enum": []string{"mi", "km"}},
		}, []string{"mileage"}),
	},
	FuelReceipt: {
		Type: FuelReceipt,
		Prompt: promptPreamble +
			" The image shows a fuel receipt. Extract gallons purchased, total cost, price per gallon if printed, " +
			"the station name, and the purchase date.",
		Schema: objSchema(map[string]any{
			"gallons":          numberProp(),
			"cost":             decimalProp(),
			"price_per_gallon": decimalProp(),
			"station":          map[string]any{"type": "string"},
			"date":             dateProp(),
		}, []string{"gallons", "cost"}),
	},
	ServiceInvoice: {
		Type:     ServiceInvoice,
		Critical: true,
		Prompt: promptPreamble +
			" The image shows a vehicle service invoice. Extract the shop name, the list of services performed, " +
			"parts cost, labor cost, grand total, the vehicle mileage at service if printed, and the service date.",
		Schema: objSchema(map[string]any{
			"vendor":     map[string]any{"type": "string", "minLength": 1},
			"services":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"parts_cost": decimalProp(),
			"labor_cost": decimalProp(),
			"total":      decimalProp(),
			"mileage":    map[string]any{"type": "integer", "minimum": 0},
			"date":       dateProp(),
		}, []string{"vendor", "total"}),
	},
	InsuranceCard: {
		Type:     InsuranceCard,
		Critical: true,
		Prompt: promptPreamble +
			" The image shows an auto insurance card. Extract the insurer name, policy number, " +
			"effective date, and expiration date exactly as printed.",
		Schema: objSchema(map[string]any{
			"insurer":         map[string]any{"type": "string", "minLength": 1},
			"policy_number":   map[string]any{"type": "string", "minLength": 1},
			"effective_date":  dateProp(),
			"expiration_date": dateProp(),
		}, []string{"insurer", "policy_number"}),
	},
	Registration: {
		Type:     Registration,
		Critical: true,
		Prompt: promptPreamble +
			" The image shows a vehicle registration document. Extract the plate number, issuing state or province, " +
			"the VIN if printed, and the expiration date.",
		Schema: objSchema(map[string]any{
			"plate":           map[string]any{"type": "string", "minLength": 1},
			"state":           map[string]any{"type": "string"},
			"vin":             map[string]any{"type": "string"},
			"expiration_date": dateProp(),
		}, []string{"plate"}),
	},
	InspectionCertificate: {
		Type: InspectionCertificate,
		Prompt: promptPreamble +
			" The image shows a vehicle inspection certificate. Extract the inspection station, the pass/fail result, " +
			"the inspection date, and the expiration date.",
		Schema: objSchema(map[string]any{
			"station":         map[string]any{"type": "string"},
			"result":          map[string]any{"type": "string"},
			"date":            dateProp(),
			"expiration_date": dateProp(),
		}, []string{"result"}),
	},
	Unknown: {
		Type: Unknown,
		Prompt: promptPreamble +
			" Identify what kind of vehicle-related document the image shows and transcribe every legible field " +
			"into a 'text' property. If you can tell the document kind, put it in 'detected_type'.",
		Schema: objSchema(map[string]any{
			"text":          map[string]any{"type": "string"},
			"detected_type": map[string]any{"type": "string"},
		}, []string{"text"}),
	},
}

func objSchema(props map[string]any, required []string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": true,
		"properties":           props,
		"required":             required,
	}
}

// decimalProp accepts both a JSON number and a decimal string; models flip
// between the two, so the schema tolerates either and sanitization coerces.
func decimalProp() map[string]any {
	return map[string]any{"anyOf": []any{
		map[string]any{"type": "number"},
		map[string]any{"type": "string", "pattern": `^-?[$]?\d{1,3}(,\d{3})*(\.\d{1,2})?$|^-?\d+(\.\d{1,2})?$`},
	}}
}

func numberProp() map[string]any {
	return map[string]any{"anyOf": []any{
		map[string]any{"type": "number"},
		map[string]any{"type": "string", "pattern": `^\d+(\.\d+)?$`},
	}}
}

func dateProp() map[string]any {
	return map[string]any{"type": "string"}
}
