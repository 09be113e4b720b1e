// Package financial derives subsidy income, remaining contract value and
// repowering urgency for catalogue assets.
package financial

import (
	"time"

	"fit-atlas/internal/application/tariff"
	"fit-atlas/internal/domain"

	"github.com/shopspring/decimal"
)

const hoursPerYear = 8760

// RegionLocator maps a postcode area to the region used for capacity factors.
type RegionLocator interface {
	RegionOf(prefix string) (string, bool)
}

// Projection is derived per request and never stored.
type Projection struct {
	RatePencePerKWh     float64                   `json:"rate_pence_per_kwh"`
	AnnualGenerationKWh float64                   `json:"annual_generation_kwh"`
	GenerationEstimated bool                      `json:"generation_estimated"`
	CapacityFactor      float64                   `json:"capacity_factor,omitempty"`
	Region              string                    `json:"region,omitempty"`
	TariffCoverageGap   bool                      `json:"tariff_coverage_gap"`
	AnnualIncome        float64                   `json:"annual_income"`
	ExpiryDate          time.Time                 `json:"expiry_date"`
	YearsRemaining      int                       `json:"years_remaining"`
	TotalRemainingValue float64                   `json:"total_remaining_value"`
	RepoweringCategory  domain.RepoweringCategory `json:"repowering_category"`
}

// YearValue is one remaining contract year of a schedule.
type YearValue struct {
	ContractYear      int       `json:"contract_year"`
	Starts            time.Time `json:"starts"`
	DegradationFactor float64   `json:"degradation_factor"`
	Income            float64   `json:"income"`
}

// Engine is safe for concurrent use; it holds only immutable tables.
type Engine struct {
	Tariffs *tariff.Table
	Regions RegionLocator
}

func NewEngine(tariffs *tariff.Table, regions RegionLocator) *Engine {
	return &Engine{Tariffs: tariffs, Regions: regions}
}

// Project computes the financial projection of a as of the given date.
func (e *Engine) Project(a domain.Asset, asOf time.Time) Projection {
	p, income := e.base(a, asOf)
	total := decimal.Zero
	for _, y := range e.years(a, p, income) {
		total = total.Add(y)
	}
	p.TotalRemainingValue = total.Round(2).InexactFloat64()
	return p
}

// Schedule lists the value of each remaining contract year.
func (e *Engine) Schedule(a domain.Asset, asOf time.Time) []YearValue {
	p, income := e.base(a, asOf)
	values := e.years(a, p, income)
	out := make([]YearValue, 0, len(values))
	first := firstContractYear(p.YearsRemaining)
	commissioned := domain.DateOf(a.CommissionDate)
	for i, v := range values {
		n := first + i
		out = append(out, YearValue{
			ContractYear:      n,
			Starts:            commissioned.AddDate(n-1, 0, 0),
			DegradationFactor: tariff.DegradationFactor(a.Technology, n),
			Income:            v.Round(2).InexactFloat64(),
		})
	}
	return out
}

func (e *Engine) base(a domain.Asset, asOf time.Time) (Projection, decimal.Decimal) {
	var p Projection
	p.ExpiryDate = tariff.Expiry(a.CommissionDate)
	p.YearsRemaining = tariff.YearsRemaining(a.CommissionDate, asOf)
	p.RepoweringCategory = tariff.Categorize(p.YearsRemaining, p.ExpiryDate, asOf)

	rate, ok := e.Tariffs.Lookup(a.Technology, a.CapacityKW, a.CommissionDate)
	if !ok {
		p.TariffCoverageGap = true
	}
	p.RatePencePerKWh = rate.PencePerKWh

	if a.AnnualGenerationKWh != nil {
		p.AnnualGenerationKWh = *a.AnnualGenerationKWh
	} else {
		p.GenerationEstimated = true
		if e.Regions != nil {
			p.Region, _ = e.Regions.RegionOf(a.PostcodePrefix)
		}
		p.CapacityFactor = e.Tariffs.CapacityFactor(a.Technology, p.Region)
		p.AnnualGenerationKWh = decimal.NewFromFloat(a.CapacityKW).
			Mul(decimal.NewFromFloat(p.CapacityFactor)).
			Mul(decimal.NewFromInt(hoursPerYear)).
			Round(1).InexactFloat64()
	}

	income := decimal.NewFromFloat(p.RatePencePerKWh).
		Mul(decimal.NewFromFloat(p.AnnualGenerationKWh)).
		Div(decimal.NewFromInt(100))
	p.AnnualIncome = income.Round(2).InexactFloat64()
	return p, income
}

// years returns the degraded income of each remaining contract year, in order.
func (e *Engine) years(a domain.Asset, p Projection, income decimal.Decimal) []decimal.Decimal {
	remaining := p.YearsRemaining
	if remaining > tariff.ContractYears {
		remaining = tariff.ContractYears
	}
	first := firstContractYear(p.YearsRemaining)
	out := make([]decimal.Decimal, 0, remaining)
	for i := 0; i < remaining; i++ {
		factor := decimal.NewFromFloat(tariff.DegradationFactor(a.Technology, first+i))
		out = append(out, income.Mul(factor))
	}
	return out
}

func firstContractYear(yearsRemaining int) int {
	if yearsRemaining >= tariff.ContractYears {
		return 1
	}
	return tariff.ContractYears - yearsRemaining + 1
}
