// Package extract turns raw vision-model responses into typed, validated
// records for each supported document type.
package extract

import "github.com/garagehq/docvision/pkg/doctype"

// Record is the typed extraction for one document. Exactly one of the
// per-type field structs is populated, matching Type; RawText always holds
// the model's raw response as a fallback. Immutable once returned.
type Record struct {
	Type    doctype.Type `json:"type"`
	RawText string       `json:"raw_text"`

	Odometer     *OdometerFields     `json:"odometer,omitempty"`
	Fuel         *FuelFields         `json:"fuel,omitempty"`
	Service      *ServiceFields      `json:"service,omitempty"`
	Insurance    *InsuranceFields    `json:"insurance,omitempty"`
	Registration *RegistrationFields `json:"registration,omitempty"`
	Inspection   *InspectionFields   `json:"inspection,omitempty"`

	// DetectedType is filled for unknown documents when the model could
	// identify the kind on its own.
	DetectedType string `json:"detected_type,omitempty"`
}

type OdometerFields struct {
	Mileage int    `json:"mileage"`
	Units   string `json:"units,omitempty"`
}

type FuelFields struct {
	Gallons        float64 `json:"gallons"`
	Cost           float64 `json:"cost"`
	PricePerGallon float64 `json:"price_per_gallon,omitempty"`
	Station        string  `json:"station,omitempty"`
	Date           string  `json:"date,omitempty"`
}

type ServiceFields struct {
	Vendor    string   `json:"vendor"`
	Services  []string `json:"services,omitempty"`
	PartsCost float64  `json:"parts_cost,omitempty"`
	LaborCost float64  `json:"labor_cost,omitempty"`
	Total     float64  `json:"total"`
	Mileage   int      `json:"mileage,omitempty"`
	Date      string   `json:"date,omitempty"`

	// NextServiceMileage is derived, not extracted.
	NextServiceMileage int `json:"next_service_mileage,omitempty"`
}

type InsuranceFields struct {
	Insurer        string `json:"insurer"`
	PolicyNumber   string `json:"policy_number"`
	EffectiveDate  string `json:"effective_date,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

type RegistrationFields struct {
	Plate          string `json:"plate"`
	State          string `json:"state,omitempty"`
	VIN            string `json:"vin,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

type InspectionFields struct {
	Station        string `json:"station,omitempty"`
	Result         string `json:"result"`
	Passed         bool   `json:"passed"`
	Date           string `json:"date,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}
