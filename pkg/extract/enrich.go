package extract

import (
	"fmt"
	"math"
)

// serviceInterval is the default miles-until-next-service projection used
// when an invoice does not state one.
const serviceInterval = 5000

// enrich derives secondary fields from confident primary fields. Derivation
// only runs when the inputs it needs were extracted cleanly; a derived
// value is always accompanied by an info issue so downstream consumers can
// tell it apart from something read off the document.
func enrich(rec *Record, add addFunc) {
	switch {
	case rec.Fuel != nil:
		f := rec.Fuel
		if f.PricePerGallon == 0 && f.Gallons > 0 && f.Cost > 0 {
			p := f.Cost / f.Gallons
			if p >= minPricePerGallon && p <= maxPricePerGallon {
				f.PricePerGallon = math.Round(p*1000) / 1000
				add("unit_price_derived",
					fmt.Sprintf("price per gallon %.3f derived from cost/gallons", f.PricePerGallon),
					SeverityInfo)
			}
		}
	case rec.Service != nil:
		s := rec.Service
		if s.Mileage > 0 && s.Mileage+serviceInterval <= maxMileage {
			s.NextServiceMileage = s.Mileage + serviceInterval
			add("next_service_projected",
				fmt.Sprintf("next service projected at %d miles", s.NextServiceMileage),
				SeverityInfo)
		}
		if s.Total == 0 && s.PartsCost+s.LaborCost > 0 {
			s.Total = s.PartsCost + s.LaborCost
			add("total_derived",
				fmt.Sprintf("total %.2f derived from parts+labor", s.Total), SeverityInfo)
		}
	}
}
