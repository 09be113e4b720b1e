package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"fit-atlas/internal/application/index"
	"fit-atlas/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// AggregateResult is the scalar answer of an AGGREGATE query. Value is nil for
// AVG over an empty set.
type AggregateResult struct {
	Function   domain.AggregateFunction `json:"function"`
	Field      domain.Field             `json:"field,omitempty"`
	Value      *float64                 `json:"value"`
	SampleSize int                      `json:"sample_size"`
}

// Partition is one side of a COMPARE query.
type Partition struct {
	Key                 string       `json:"key"`
	Prefixes            []string     `json:"postcode_prefixes,omitempty"`
	Count               int          `json:"count"`
	TotalCapacityKW     float64      `json:"total_capacity_kw"`
	TotalAnnualIncome   float64      `json:"total_annual_income"`
	TotalRemainingValue float64      `json:"total_remaining_value"`
	Metric              domain.Field `json:"metric"`
	MetricValue         *float64     `json:"metric_value"`
}

func (s *Service) limit(override int) int {
	switch {
	case override > 0:
		return override
	case s.Limit > 0:
		return s.Limit
	}
	return DefaultLimit
}

func (s *Service) enrich(snap *index.Snapshot, f domain.QueryFilter, resp *Response) ([]Item, error) {
	assets, err := snap.Match(f, resp.AsOf)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(assets))
	for i, a := range assets {
		items[i] = Item{Asset: a, Projection: s.Engine.Project(a, resp.AsOf)}
	}
	return items, nil
}

func (s *Service) list(snap *index.Snapshot, resp *Response, maxResults int) error {
	items, err := s.enrich(snap, resp.Filter, resp)
	if err != nil {
		return err
	}
	resp.Warnings = append(resp.Warnings, engineWarnings(items)...)
	sortItems(items, resp.Filter.Sort)

	resp.TotalMatches = len(items)
	n := s.limit(maxResults)
	if resp.Filter.Limit > 0 && maxResults == 0 {
		n = resp.Filter.Limit
	}
	if len(items) > n {
		items = items[:n]
		resp.Truncated = true
	}
	resp.Results = items
	return nil
}

// sortItems orders by total remaining value descending unless order overrides
// it; ties always break by asset id.
func sortItems(items []Item, order *domain.SortOrder) {
	field, desc := domain.FieldTotalRemainingValue, true
	if order != nil {
		field, desc = order.Field, order.Descending
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := fieldValue(items[i], field), fieldValue(items[j], field)
		if a != b {
			if desc {
				return a > b
			}
			return a < b
		}
		return items[i].Asset.ID < items[j].Asset.ID
	})
}

// fieldValue reads a numeric field. expiry_date orders and aggregates by the
// expiry instant in days.
func fieldValue(it Item, f domain.Field) float64 {
	switch f {
	case domain.FieldCapacityKW:
		return it.Asset.CapacityKW
	case domain.FieldAnnualIncome:
		return it.Projection.AnnualIncome
	case domain.FieldYearsRemaining:
		return float64(it.Projection.YearsRemaining)
	case domain.FieldAnnualGenerationKWh:
		return it.Projection.AnnualGenerationKWh
	case domain.FieldExpiryDate:
		return float64(it.Projection.ExpiryDate.Unix()) / 86400
	}
	return it.Projection.TotalRemainingValue
}

func engineWarnings(items []Item) []domain.Warning {
	var gaps, estimated int
	for _, it := range items {
		if it.Projection.TariffCoverageGap {
			gaps++
		}
		if it.Projection.GenerationEstimated {
			estimated++
		}
	}
	var out []domain.Warning
	if gaps > 0 {
		out = append(out, domain.Warning{
			Code:    domain.WarnMissingTariffRate,
			Message: fmt.Sprintf("%d matched assets have no tariff rate for their band and commission date; their income is reported as zero", gaps),
			Count:   gaps,
		})
	}
	if estimated > 0 {
		out = append(out, domain.Warning{
			Code:    domain.WarnEstimatedGeneration,
			Message: fmt.Sprintf("%d matched assets have no recorded generation; income uses regional capacity factors", estimated),
			Count:   estimated,
		})
	}
	return out
}

func (s *Service) aggregate(snap *index.Snapshot, resp *Response) error {
	items, err := s.enrich(snap, resp.Filter, resp)
	if err != nil {
		return err
	}
	resp.Warnings = append(resp.Warnings, engineWarnings(items)...)
	agg := resp.Filter.Aggregate
	if agg == nil {
		agg = &domain.Aggregate{Function: domain.Count}
	}
	resp.TotalMatches = len(items)
	resp.Aggregate = &AggregateResult{
		Function:   agg.Function,
		Field:      agg.Field,
		Value:      compute(agg.Function, agg.Field, items),
		SampleSize: len(items),
	}
	return nil
}

func compute(fn domain.AggregateFunction, field domain.Field, items []Item) *float64 {
	if fn == domain.Count {
		v := float64(len(items))
		return &v
	}
	if field == "" {
		field = domain.FieldCapacityKW
	}
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(fieldValue(it, field)))
	}
	if fn == domain.Avg {
		if len(items) == 0 {
			return nil
		}
		sum = sum.Div(decimal.NewFromInt(int64(len(items))))
	}
	v := sum.Round(2).InexactFloat64()
	return &v
}

// compare runs one filter per partition concurrently over the same snapshot.
func (s *Service) compare(ctx context.Context, snap *index.Snapshot, resp *Response) error {
	cmp := resp.Filter.Compare
	type part struct {
		key      string
		prefixes []string
		filter   domain.QueryFilter
	}
	var parts []part
	switch cmp.Dimension {
	case domain.CompareRegion:
		for _, pl := range cmp.Places {
			f := resp.Filter
			f.PostcodePrefixes = pl.Prefixes
			parts = append(parts, part{key: pl.Name, prefixes: pl.Prefixes, filter: f})
		}
	default:
		for _, t := range cmp.Technologies {
			f := resp.Filter
			tech := t
			f.Technology = &tech
			parts = append(parts, part{key: string(t), filter: f})
		}
	}

	out := make([]Partition, len(parts))
	itemsPer := make([][]Item, len(parts))
	g, _ := errgroup.WithContext(ctx)
	for i, p := range parts {
		i, p := i, p
		g.Go(func() error {
			items, err := s.enrich(snap, p.filter, resp)
			if err != nil {
				return err
			}
			itemsPer[i] = items
			out[i] = summarize(p.key, p.prefixes, cmp.Metric, items)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []Item
	for _, items := range itemsPer {
		all = append(all, items...)
		resp.TotalMatches += len(items)
	}
	resp.Warnings = append(resp.Warnings, engineWarnings(all)...)
	resp.Partitions = out
	return nil
}

func summarize(key string, prefixes []string, metric domain.Field, items []Item) Partition {
	p := Partition{Key: key, Count: len(items), Metric: metric}
	if len(prefixes) > 0 {
		p.Prefixes = prefixes
	}
	p.TotalCapacityKW = *compute(domain.Sum, domain.FieldCapacityKW, items)
	p.TotalAnnualIncome = *compute(domain.Sum, domain.FieldAnnualIncome, items)
	p.TotalRemainingValue = *compute(domain.Sum, domain.FieldTotalRemainingValue, items)
	fn := domain.Sum
	if metric == domain.FieldYearsRemaining || metric == domain.FieldExpiryDate {
		fn = domain.Avg
	}
	p.MetricValue = compute(fn, metric, items)
	return p
}

// Label renders a partition key for exports and logs.
func (p Partition) Label() string {
	if len(p.Prefixes) == 0 {
		return p.Key
	}
	return fmt.Sprintf("%s (%s)", p.Key, strings.Join(p.Prefixes, ", "))
}
