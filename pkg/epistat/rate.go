// Package epistat holds the pure numeric helpers behind the surveillance
// reports: rates, percentages, ratio simplification and age banding. Nothing in
// this package performs I/O or keeps state.
package epistat

import "github.com/shopspring/decimal"

// PerHundredThousand is the default multiplier for incidence and mortality rates.
const PerHundredThousand int64 = 100000

// RateResult is a rate together with whether a denominator existed to compute it.
// A zero Rate with HasDenominatorData=false means "no data", not "no cases".
type RateResult struct {
	Rate               float64 `json:"rate"`
	HasDenominatorData bool    `json:"has_denominator_data"`
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// ratio returns round(num*mult/den, 2) using exact decimal arithmetic.
// Callers guarantee den > 0.
func ratio(num, mult, den int64) float64 {
	return decimal.NewFromInt(num).
		Mul(decimal.NewFromInt(mult)).
		Div(decimal.NewFromInt(den)).
		Round(2).
		InexactFloat64()
}

// IncidenceRate returns cases per `per` population. A non-positive population
// yields 0.
func IncidenceRate(cases, population, per int64) float64 {
	if population <= 0 {
		return 0
	}
	return ratio(cases, per, population)
}

// MortalityRate is IncidenceRate applied to deaths.
func MortalityRate(deaths, population, per int64) float64 {
	return IncidenceRate(deaths, population, per)
}

// Percentage returns part as a percentage of total, or 0 when total is 0.
func Percentage(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return ratio(part, 100, total)
}

// CaseFatalityRate returns deaths as a percentage of diagnosed cases.
func CaseFatalityRate(deaths, totalPatients int64) float64 {
	return Percentage(deaths, totalPatients)
}

// Incidence wraps IncidenceRate per 100,000 with the denominator flag.
func Incidence(cases, population int64) RateResult {
	return RateResult{
		Rate:               IncidenceRate(cases, population, PerHundredThousand),
		HasDenominatorData: population > 0,
	}
}
