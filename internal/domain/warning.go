package domain

// WarningCode identifies a non-fatal (or, for the two refusal codes, fatal) query condition.
type WarningCode string

const (
	WarnUnrecognizedPlace      WarningCode = "unrecognized_place"
	WarnMissingTariffRate      WarningCode = "missing_tariff_rate"
	WarnInsufficientlySpecific WarningCode = "insufficiently_specific"
	WarnAmbiguousTechnology    WarningCode = "ambiguous_technology"
	WarnAmbiguousCapacity      WarningCode = "ambiguous_capacity"
	WarnRangeInconsistency     WarningCode = "range_inconsistency"
	WarnEstimatedGeneration    WarningCode = "estimated_generation"
	WarnSuggestionsUnavailable WarningCode = "suggestions_unavailable"
)

// Warning is accumulated during parsing and projection and returned with the result.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
	Term    string      `json:"term,omitempty"`
	Count   int         `json:"count,omitempty"`
}

// HasWarning reports whether ws contains code.
func HasWarning(ws []Warning, code WarningCode) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}
