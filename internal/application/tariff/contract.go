package tariff

import (
	"math"
	"time"

	"fit-atlas/internal/domain"
)

// ContractYears is the fixed FIT term for every technology.
const ContractYears = 20

const (
	firstYearLoss = 0.02
	annualLoss    = 0.0054
)

// Expiry is the commission date plus the contract term.
func Expiry(commissioned time.Time) time.Time {
	return domain.DateOf(commissioned).AddDate(ContractYears, 0, 0)
}

// YearsRemaining is the number of whole years n with asOf + n years <= expiry,
// and zero once the contract has run out.
func YearsRemaining(commissioned, asOf time.Time) int {
	expiry := Expiry(commissioned)
	asOf = domain.DateOf(asOf)
	if asOf.After(expiry) {
		return 0
	}
	n := expiry.Year() - asOf.Year()
	for n > 0 && asOf.AddDate(n, 0, 0).After(expiry) {
		n--
	}
	if n < 0 {
		return 0
	}
	return n
}

// Categorize maps remaining contract years to a repowering category. Each band
// is closed on its upper end. A contract that ends today (zero whole years but
// not yet past expiry) is IMMEDIATE.
func Categorize(yearsRemaining int, expiry, asOf time.Time) domain.RepoweringCategory {
	switch {
	case domain.DateOf(asOf).After(expiry):
		return domain.Expired
	case yearsRemaining <= 2:
		return domain.Immediate
	case yearsRemaining <= 5:
		return domain.Urgent
	case yearsRemaining <= 10:
		return domain.Optimal
	default:
		return domain.Unclassified
	}
}

// DegradationFactor is the output multiplier for contract year n (n >= 1).
// Photovoltaic loses 2% in year one then 0.54% a year; nothing else degrades.
func DegradationFactor(tech domain.Technology, n int) float64 {
	if tech != domain.Photovoltaic || n < 1 {
		return 1
	}
	return (1 - firstYearLoss) * math.Pow(1-annualLoss, float64(n-1))
}
