package domain

import (
	"errors"
	"sort"
)

// RepoweringCategory classifies how soon an asset's FIT contract runs out.
type RepoweringCategory string

const (
	Optimal      RepoweringCategory = "OPTIMAL"
	Urgent       RepoweringCategory = "URGENT"
	Immediate    RepoweringCategory = "IMMEDIATE"
	Expired      RepoweringCategory = "EXPIRED"
	Unclassified RepoweringCategory = ""
)

// Intent is what the caller wants back: a listing, a comparison or a scalar.
type Intent string

const (
	IntentList      Intent = "LIST"
	IntentCompare   Intent = "COMPARE"
	IntentAggregate Intent = "AGGREGATE"
)

type AggregateFunction string

const (
	Sum   AggregateFunction = "SUM"
	Avg   AggregateFunction = "AVG"
	Count AggregateFunction = "COUNT"
)

// Field names a numeric attribute of an enriched asset.
type Field string

const (
	FieldCapacityKW          Field = "capacity_kw"
	FieldAnnualIncome        Field = "annual_income"
	FieldTotalRemainingValue Field = "total_remaining_value"
	FieldYearsRemaining      Field = "years_remaining"
	FieldAnnualGenerationKWh Field = "annual_generation_kwh"
	FieldExpiryDate          Field = "expiry_date"
)

// Aggregate is the function and target field of an AGGREGATE query.
type Aggregate struct {
	Function AggregateFunction `json:"function"`
	Field    Field             `json:"field"`
}

type CompareDimension string

const (
	CompareTechnology CompareDimension = "technology"
	CompareRegion     CompareDimension = "region"
)

// PlaceRef is a recognized place reference with its resolved prefixes.
type PlaceRef struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Prefixes []string `json:"prefixes"`
}

// Comparison describes the partitions of a COMPARE query.
type Comparison struct {
	Dimension    CompareDimension `json:"dimension"`
	Technologies []Technology     `json:"technologies,omitempty"`
	Places       []PlaceRef       `json:"places,omitempty"`
	Metric       Field            `json:"metric"`
}

// SortOrder overrides the default LIST ordering.
type SortOrder struct {
	Field      Field `json:"field"`
	Descending bool  `json:"descending"`
}

var ErrRangeInconsistency = errors.New("Filter range minimum is greater than its maximum")

// QueryFilter is the structured criteria produced by the parser.
type QueryFilter struct {
	Technology         *Technology         `json:"technology,omitempty"`
	CapacityMinKW      *float64            `json:"capacity_min_kw,omitempty"`
	CapacityMaxKW      *float64            `json:"capacity_max_kw,omitempty"`
	PostcodePrefixes   []string            `json:"postcode_prefixes,omitempty"`
	Places             []PlaceRef          `json:"places,omitempty"`
	YearsLeftMin       *int                `json:"years_left_min,omitempty"`
	YearsLeftMax       *int                `json:"years_left_max,omitempty"`
	RepoweringCategory *RepoweringCategory `json:"repowering_category,omitempty"`
	Sector             *Sector             `json:"sector,omitempty"`
	Intent             Intent              `json:"query_intent"`
	Aggregate          *Aggregate          `json:"aggregate,omitempty"`
	Compare            *Comparison         `json:"compare,omitempty"`
	Sort               *SortOrder          `json:"sort,omitempty"`
	Limit              int                 `json:"limit,omitempty"`
}

// HasConstraint reports whether at least one criterion narrows the catalogue.
func (f QueryFilter) HasConstraint() bool {
	if f.Technology != nil || f.CapacityMinKW != nil || f.CapacityMaxKW != nil {
		return true
	}
	if len(f.PostcodePrefixes) > 0 || f.YearsLeftMin != nil || f.YearsLeftMax != nil {
		return true
	}
	if f.RepoweringCategory != nil || f.Sector != nil {
		return true
	}
	if f.Compare != nil && (len(f.Compare.Technologies) > 0 || len(f.Compare.Places) > 0) {
		return true
	}
	return false
}

// Validate enforces min <= max for both ranges.
func (f QueryFilter) Validate() error {
	if f.CapacityMinKW != nil && f.CapacityMaxKW != nil && *f.CapacityMinKW > *f.CapacityMaxKW {
		return ErrRangeInconsistency
	}
	if f.YearsLeftMin != nil && f.YearsLeftMax != nil && *f.YearsLeftMin > *f.YearsLeftMax {
		return ErrRangeInconsistency
	}
	return nil
}

// MergeFrom fills every unset criterion of f from prev. Intent-related fields
// (aggregate, compare, sort, limit) are only inherited when f left the intent as LIST.
func (f QueryFilter) MergeFrom(prev QueryFilter) QueryFilter {
	out := f
	if out.Technology == nil {
		out.Technology = prev.Technology
	}
	if out.CapacityMinKW == nil && out.CapacityMaxKW == nil {
		out.CapacityMinKW, out.CapacityMaxKW = prev.CapacityMinKW, prev.CapacityMaxKW
	}
	if len(out.PostcodePrefixes) == 0 {
		out.PostcodePrefixes = prev.PostcodePrefixes
		out.Places = prev.Places
	}
	if out.YearsLeftMin == nil && out.YearsLeftMax == nil {
		out.YearsLeftMin, out.YearsLeftMax = prev.YearsLeftMin, prev.YearsLeftMax
	}
	if out.RepoweringCategory == nil {
		out.RepoweringCategory = prev.RepoweringCategory
	}
	if out.Sector == nil {
		out.Sector = prev.Sector
	}
	if out.Intent == "" || out.Intent == IntentList {
		if out.Aggregate == nil && out.Compare == nil {
			out.Intent = prev.Intent
			out.Aggregate = prev.Aggregate
			out.Compare = prev.Compare
		}
		if out.Sort == nil {
			out.Sort = prev.Sort
		}
		if out.Limit == 0 {
			out.Limit = prev.Limit
		}
	}
	if out.Intent == "" {
		out.Intent = IntentList
	}
	return out
}

// SortedUnion returns the sorted, de-duplicated union of prefix sets.
func SortedUnion(sets ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, set := range sets {
		for _, p := range set {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
