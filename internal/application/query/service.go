// Package query composes parser, warm index and financial engine into answers.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fit-atlas/internal/application/financial"
	"fit-atlas/internal/application/index"
	"fit-atlas/internal/application/parser"
	"fit-atlas/internal/domain"
	"fit-atlas/internal/observability/metrics"

	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyText           = errors.New("Query text is required")
	ErrUnderspecifiedQuery = errors.New("Query is not specific enough to answer")
	ErrAssetNotFound       = errors.New("Asset not found")
)

const (
	DefaultLimit          = 50
	defaultSuggestTimeout = 2 * time.Second
	defaultFormatTimeout  = 5 * time.Second
	suggestionCount       = 10
)

// Request is one question to the engine.
type Request struct {
	Text      string
	AsOf      *time.Time
	SessionID string
	TraceID   string
	// MaxResults overrides the LIST page size; exports use it to fetch everything.
	MaxResults int
}

// Item is one LIST row. It serializes as a single flat record.
type Item struct {
	Asset      domain.Asset
	Projection financial.Projection
}

type itemJSON struct {
	AssetID             string                    `json:"asset_id"`
	Technology          domain.Technology         `json:"technology"`
	CapacityKW          float64                   `json:"capacity_kw"`
	PostcodePrefix      string                    `json:"postcode_prefix"`
	YearsRemaining      int                       `json:"years_remaining"`
	AnnualIncome        float64                   `json:"annual_income"`
	TotalRemainingValue float64                   `json:"total_remaining_value"`
	RepoweringCategory  domain.RepoweringCategory `json:"repowering_category"`

	Postcode            string        `json:"postcode,omitempty"`
	Sector              domain.Sector `json:"sector,omitempty"`
	CommissionDate      time.Time     `json:"commission_date"`
	ExpiryDate          time.Time     `json:"expiry_date"`
	RatePencePerKWh     float64       `json:"rate_pence_per_kwh"`
	AnnualGenerationKWh float64       `json:"annual_generation_kwh"`
	ReportedGeneration  *float64      `json:"reported_generation_kwh,omitempty"`
	GenerationEstimated bool          `json:"generation_estimated"`
	CapacityFactor      float64       `json:"capacity_factor,omitempty"`
	Region              string        `json:"region,omitempty"`
	TariffCoverageGap   bool          `json:"tariff_coverage_gap"`
}

func (it Item) MarshalJSON() ([]byte, error) {
	a, p := it.Asset, it.Projection
	return json.Marshal(itemJSON{
		AssetID:             a.ID,
		Technology:          a.Technology,
		CapacityKW:          a.CapacityKW,
		PostcodePrefix:      a.PostcodePrefix,
		YearsRemaining:      p.YearsRemaining,
		AnnualIncome:        p.AnnualIncome,
		TotalRemainingValue: p.TotalRemainingValue,
		RepoweringCategory:  p.RepoweringCategory,
		Postcode:            a.Postcode,
		Sector:              a.Sector,
		CommissionDate:      a.CommissionDate,
		ExpiryDate:          p.ExpiryDate,
		RatePencePerKWh:     p.RatePencePerKWh,
		AnnualGenerationKWh: p.AnnualGenerationKWh,
		ReportedGeneration:  a.AnnualGenerationKWh,
		GenerationEstimated: p.GenerationEstimated,
		CapacityFactor:      p.CapacityFactor,
		Region:              p.Region,
		TariffCoverageGap:   p.TariffCoverageGap,
	})
}

// Response is the composed answer.
type Response struct {
	Text         string             `json:"text"`
	Filter       domain.QueryFilter `json:"filter_understood"`
	Intent       domain.Intent      `json:"intent"`
	AsOf         time.Time          `json:"as_of_date"`
	Results      []Item             `json:"results"`
	TotalMatches int                `json:"total_matches"`
	Truncated    bool               `json:"truncated"`
	Aggregate    *AggregateResult   `json:"aggregate,omitempty"`
	Partitions   []Partition        `json:"partitions,omitempty"`
	Warnings     []domain.Warning   `json:"warnings"`
	Suggestions  []Suggestion       `json:"suggestions,omitempty"`
	Prose        string             `json:"prose,omitempty"`
	Refused      bool               `json:"refused"`
	FollowUp     bool               `json:"follow_up_applied"`
}

// AssetDetail is a single asset with its projection and yearly schedule.
type AssetDetail struct {
	Asset      domain.Asset          `json:"asset"`
	Projection financial.Projection  `json:"projection"`
	Schedule   []financial.YearValue `json:"schedule"`
	AsOf       time.Time             `json:"as_of_date"`
}

// Service holds only immutable collaborators; it is safe for concurrent use.
// Conversations, Suggester, Formatter and Audit are optional.
type Service struct {
	Parser        *parser.Parser
	Index         *index.Index
	Engine        *financial.Engine
	Conversations ConversationStore
	Suggester     Suggester
	Formatter     Formatter
	Audit         AuditRecorder

	Limit          int
	SuggestTimeout time.Duration
	FormatTimeout  time.Duration
	Now            func() time.Time
}

func (s *Service) today() time.Time {
	if s.Now != nil {
		return domain.DateOf(s.Now())
	}
	return domain.DateOf(time.Now().UTC())
}

// AsOf resolves an optional as-of date to a calendar day, defaulting to today.
func (s *Service) AsOf(asOf *time.Time) time.Time {
	if asOf == nil || asOf.IsZero() {
		return s.today()
	}
	return domain.DateOf(*asOf)
}

// Parse returns the structured filter without touching the index.
func (s *Service) Parse(text string) (parser.Result, error) {
	if strings.TrimSpace(text) == "" {
		return parser.Result{}, ErrEmptyText
	}
	return s.Parser.Parse(text), nil
}

// Query answers one question. A refused query (underspecified or inconsistent
// range) returns both the response, carrying warnings and suggestions, and
// ErrUnderspecifiedQuery or domain.ErrRangeInconsistency.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	start := time.Now()
	parsed := s.Parser.Parse(req.Text)
	resp := &Response{
		Text:     req.Text,
		Filter:   parsed.Filter,
		AsOf:     s.AsOf(req.AsOf),
		Warnings: parsed.Warnings,
	}
	s.carryForward(ctx, req, parsed, resp)
	resp.Intent = resp.Filter.Intent

	snap, err := s.Index.Load()
	if err != nil {
		return nil, err
	}

	if refusal := refusalOf(resp.Warnings); refusal != nil {
		resp.Refused = true
		resp.Suggestions = s.suggest(ctx, req, snap, resp)
		s.finish(ctx, req, resp, start)
		return resp, refusal
	}

	switch resp.Filter.Intent {
	case domain.IntentCompare:
		err = s.compare(ctx, snap, resp)
	case domain.IntentAggregate:
		err = s.aggregate(snap, resp)
	default:
		err = s.list(snap, resp, req.MaxResults)
	}
	if err != nil {
		return nil, err
	}
	if resp.TotalMatches == 0 {
		resp.Suggestions = s.suggest(ctx, req, snap, resp)
	}
	resp.Prose = s.format(ctx, req, resp)

	if req.SessionID != "" && s.Conversations != nil {
		if err := s.Conversations.Remember(ctx, req.SessionID, resp.Filter); err != nil {
			log.Warn().Err(err).Str("trace_id", req.TraceID).Msg("Failed to store conversation filter")
		}
	}
	s.finish(ctx, req, resp, start)
	return resp, nil
}

// carryForward fills unset criteria of a follow-up from the session's last filter.
func (s *Service) carryForward(ctx context.Context, req Request, parsed parser.Result, resp *Response) {
	if !parsed.FollowUp || req.SessionID == "" || s.Conversations == nil {
		return
	}
	prev, err := s.Conversations.Last(ctx, req.SessionID)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", req.TraceID).Msg("Failed to load conversation filter")
		return
	}
	if prev == nil {
		return
	}
	if len(parsed.Filter.PostcodePrefixes) == 0 && domain.HasWarning(parsed.Warnings, domain.WarnUnrecognizedPlace) {
		// an unresolved place clears the carried location
		prev.PostcodePrefixes, prev.Places = nil, nil
	}
	resp.Filter = parsed.Filter.MergeFrom(*prev)
	resp.FollowUp = true

	warnings := make([]domain.Warning, 0, len(parsed.Warnings))
	for _, w := range parsed.Warnings {
		if w.Code == domain.WarnInsufficientlySpecific || w.Code == domain.WarnRangeInconsistency {
			continue
		}
		warnings = append(warnings, w)
	}
	resp.Warnings = append(warnings, parser.Assess(resp.Filter)...)
}

func refusalOf(ws []domain.Warning) error {
	switch {
	case domain.HasWarning(ws, domain.WarnInsufficientlySpecific):
		return ErrUnderspecifiedQuery
	case domain.HasWarning(ws, domain.WarnRangeInconsistency):
		return domain.ErrRangeInconsistency
	}
	return nil
}

// suggest consults the similarity store within its timeout. Only ids present in
// the snapshot are returned.
func (s *Service) suggest(ctx context.Context, req Request, snap *index.Snapshot, resp *Response) []Suggestion {
	if s.Suggester == nil {
		return nil
	}
	timeout := s.SuggestTimeout
	if timeout <= 0 {
		timeout = defaultSuggestTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	got, err := s.Suggester.Suggest(cctx, req.Text, suggestionCount)
	metrics.IncCollaborator("suggester", err)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", req.TraceID).Msg("Suggestion source failed")
		resp.Warnings = append(resp.Warnings, domain.Warning{
			Code:    domain.WarnSuggestionsUnavailable,
			Message: "Suggestion source did not answer in time; no suggestions included",
		})
		return nil
	}
	out := make([]Suggestion, 0, len(got))
	for _, sg := range got {
		if _, ok := snap.Get(sg.AssetID); !ok {
			continue
		}
		sg.LowConfidence = true
		out = append(out, sg)
	}
	return out
}

func (s *Service) format(ctx context.Context, req Request, resp *Response) string {
	if s.Formatter == nil {
		return ""
	}
	timeout := s.FormatTimeout
	if timeout <= 0 {
		timeout = defaultFormatTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prose, err := s.Formatter.Format(cctx, req.Text, resp)
	metrics.IncCollaborator("formatter", err)
	if err != nil {
		log.Warn().Err(err).Str("trace_id", req.TraceID).Msg("Formatter failed")
		return ""
	}
	return prose
}

func (s *Service) finish(ctx context.Context, req Request, resp *Response, start time.Time) {
	if resp.Warnings == nil {
		resp.Warnings = []domain.Warning{}
	}
	elapsed := time.Since(start)
	outcome := metrics.OutcomeAnswered
	if resp.Refused {
		outcome = metrics.OutcomeRefused
	}
	metrics.ObserveQuery(string(resp.Intent), outcome, resp.TotalMatches, elapsed)
	for _, w := range resp.Warnings {
		metrics.IncWarning(string(w.Code))
	}
	if s.Audit != nil {
		if err := s.Audit.Record(ctx, newAudit(req, resp, elapsed)); err != nil {
			log.Warn().Err(err).Str("trace_id", req.TraceID).Msg("Failed to write query audit")
		}
	}
	log.Info().Str("trace_id", req.TraceID).Str("intent", string(resp.Intent)).
		Int("matches", resp.TotalMatches).Bool("refused", resp.Refused).
		Int64("ms", elapsed.Milliseconds()).Msg("Query answered")
}

// Describe returns one asset with its projection and yearly schedule.
func (s *Service) Describe(id string, asOf *time.Time) (*AssetDetail, error) {
	snap, err := s.Index.Load()
	if err != nil {
		return nil, err
	}
	a, ok := snap.Get(strings.TrimSpace(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
	}
	day := s.AsOf(asOf)
	return &AssetDetail{
		Asset:      a,
		Projection: s.Engine.Project(a, day),
		Schedule:   s.Engine.Schedule(a, day),
		AsOf:       day,
	}, nil
}
