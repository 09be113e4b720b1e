// Package parser turns free-text questions about the FIT catalogue into a
// structured filter. Parsing is deterministic and has no side effects.
package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"fit-atlas/internal/application/geo"
	"fit-atlas/internal/domain"
	"fit-atlas/internal/pkg/textnorm"
)

// Gazetteer is the subset of the place resolver the parser needs.
type Gazetteer interface {
	Names() []string
	Lookup(name string) (geo.Place, bool)
}

// Result is the parsed filter plus the warnings raised while parsing.
type Result struct {
	Filter   domain.QueryFilter `json:"filter"`
	Warnings []domain.Warning   `json:"warnings"`
	FollowUp bool               `json:"follow_up"`
}

// Parser is safe for concurrent use.
type Parser struct {
	places Gazetteer
	names  [][]string
}

func New(places Gazetteer) *Parser {
	p := &Parser{places: places}
	for _, n := range places.Names() {
		p.names = append(p.names, strings.Fields(n))
	}
	return p
}

var areaRe = regexp.MustCompile(`^[a-z]{1,2}$`)

type mention struct {
	tech domain.Technology
	term string
}

// Parse runs every extraction stage over text. A stage that finds nothing
// leaves its fields unset.
func (p *Parser) Parse(text string) Result {
	s := newStream(textnorm.Tokenize(text))
	var f domain.QueryFilter
	var warnings []domain.Warning

	followUp := s.detectFollowUp()

	f.Places = p.extractPlaces(s)
	techs := extractTechnologies(s)
	f.YearsLeftMin, f.YearsLeftMax = extractYears(s)
	var capacityWarnings []domain.Warning
	f.CapacityMinKW, f.CapacityMaxKW, capacityWarnings = extractCapacity(s)
	f.RepoweringCategory = extractCategory(s)
	f.Sector = extractSector(s)
	f.Limit = extractLimit(s)
	f.Sort = extractSort(s)

	compare := s.takeAny(compareWords) || s.phraseAnywhere(phrase{"difference", "between"})
	metric, hasMetric := s.findField()

	switch {
	case compare && (len(techs) >= 2 || s.phraseAnywhere(phrase{"by", "technology"}) || s.phraseAnywhere(phrase{"per", "technology"})):
		cmp := &domain.Comparison{Dimension: domain.CompareTechnology, Metric: domain.FieldCapacityKW}
		if len(techs) >= 2 {
			for _, m := range techs {
				cmp.Technologies = append(cmp.Technologies, m.tech)
			}
		} else {
			cmp.Technologies = append(cmp.Technologies, domain.Technologies...)
		}
		if hasMetric {
			cmp.Metric = metric
		}
		f.Intent = domain.IntentCompare
		f.Compare = cmp
	case compare && len(f.Places) >= 2:
		cmp := &domain.Comparison{Dimension: domain.CompareRegion, Places: f.Places, Metric: domain.FieldCapacityKW}
		if hasMetric {
			cmp.Metric = metric
		}
		f.Intent = domain.IntentCompare
		f.Compare = cmp
		warnings = append(warnings, technologyWarnings(techs)...)
		if len(techs) > 0 {
			f.Technology = &techs[0].tech
		}
	default:
		warnings = append(warnings, technologyWarnings(techs)...)
		if len(techs) > 0 {
			f.Technology = &techs[0].tech
		}
		if fn, ok := s.findAggregate(); ok {
			agg := &domain.Aggregate{Function: fn}
			switch {
			case fn == domain.Count:
			case hasMetric:
				agg.Field = metric
			default:
				agg.Field = domain.FieldCapacityKW
			}
			f.Intent = domain.IntentAggregate
			f.Aggregate = agg
		} else {
			f.Intent = domain.IntentList
		}
	}

	var prefixes [][]string
	for _, pl := range f.Places {
		prefixes = append(prefixes, pl.Prefixes)
	}
	f.PostcodePrefixes = domain.SortedUnion(prefixes...)

	warnings = append(warnings, capacityWarnings...)
	warnings = append(warnings, p.unrecognizedPlaces(s)...)
	warnings = append(warnings, Assess(f)...)
	if warnings == nil {
		warnings = []domain.Warning{}
	}
	return Result{Filter: f, Warnings: warnings, FollowUp: followUp}
}

// Assess returns the fatal warnings for a finished filter: no constraint at
// all, or a range whose minimum exceeds its maximum.
func Assess(f domain.QueryFilter) []domain.Warning {
	var out []domain.Warning
	if !f.HasConstraint() {
		out = append(out, domain.Warning{
			Code:    domain.WarnInsufficientlySpecific,
			Message: "Query did not name a technology, location, capacity, contract period, category or sector",
		})
	}
	if err := f.Validate(); err != nil {
		out = append(out, domain.Warning{Code: domain.WarnRangeInconsistency, Message: err.Error()})
	}
	return out
}

func technologyWarnings(techs []mention) []domain.Warning {
	var out []domain.Warning
	for _, m := range techs[min(1, len(techs)):] {
		out = append(out, domain.Warning{
			Code:    domain.WarnAmbiguousTechnology,
			Message: fmt.Sprintf("Several technologies mentioned; using %s and ignoring %s", techs[0].tech, m.tech),
			Term:    m.term,
		})
	}
	return out
}

func (p *Parser) extractPlaces(s *stream) []domain.PlaceRef {
	var out []domain.PlaceRef
	seen := map[string]bool{}
	for i := 0; i < s.len(); i++ {
		if !s.free(i) {
			continue
		}
		for _, words := range p.names {
			if !s.match(i, words) {
				continue
			}
			pl, ok := p.places.Lookup(strings.Join(words, " "))
			if !ok {
				continue
			}
			s.take(i, i+len(words))
			if !seen[pl.Name] {
				seen[pl.Name] = true
				out = append(out, domain.PlaceRef{Name: pl.Name, Kind: string(pl.Kind), Prefixes: pl.Prefixes})
			}
			i += len(words) - 1
			break
		}
	}
	// explicit postcode areas: "postcode RG", "RG postcodes"
	for i := 0; i < s.len(); i++ {
		if _, ok := postcodeWords[s.at(i)]; !ok || !s.free(i) {
			continue
		}
		j := i + 1
		for s.at(j) == "area" || s.at(j) == "areas" || s.at(j) == "code" {
			j++
		}
		var area string
		var start, end int
		switch {
		case s.free(j) && areaRe.MatchString(s.at(j)) && !isVocabulary(s.at(j)):
			area, start, end = s.at(j), i, j+1
		case i > 0 && s.free(i-1) && areaRe.MatchString(s.at(i-1)) && !isVocabulary(s.at(i-1)):
			area, start, end = s.at(i-1), i-1, j
		default:
			continue
		}
		s.take(start, end)
		up := strings.ToUpper(area)
		if !seen[up] {
			seen[up] = true
			out = append(out, domain.PlaceRef{Name: up, Kind: "postcode_area", Prefixes: []string{up}})
		}
	}
	return out
}

func extractTechnologies(s *stream) []mention {
	var out []mention
	seen := map[domain.Technology]bool{}
	for i := 0; i < s.len(); i++ {
		for _, syn := range technologySynonyms {
			if !s.match(i, syn.words) {
				continue
			}
			s.take(i, i+len(syn.words))
			if !seen[syn.tech] {
				seen[syn.tech] = true
				out = append(out, mention{tech: syn.tech, term: strings.Join(syn.words, " ")})
			}
			i += len(syn.words) - 1
			break
		}
	}
	return out
}

// extractCapacity prefers explicit figures over size adjectives. An adjective
// overruled by a figure is consumed and reported.
func extractCapacity(s *stream) (lo, hi *float64, warnings []domain.Warning) {
	lo, hi = s.measures(capacityUnits, func(start, end int) bool { return true })
	explicit := lo != nil || hi != nil
	for i := 0; i < s.len(); i++ {
		adj, ok := sizeAdjectives[s.at(i)]
		if !ok || !s.free(i) {
			continue
		}
		s.take(i, i+1)
		if explicit {
			warnings = append(warnings, domain.Warning{
				Code:    domain.WarnAmbiguousCapacity,
				Message: fmt.Sprintf("Size %q was ignored in favour of the stated capacity", s.at(i)),
				Term:    s.at(i),
			})
			continue
		}
		return copyPtr(adj.min), copyPtr(adj.max), warnings
	}
	return lo, hi, warnings
}

func extractYears(s *stream) (lo, hi *int) {
	contract := func(start, end int) bool {
		for j := end; j < end+3 && j < s.len(); j++ {
			if _, ok := yearsContextAfter[s.at(j)]; ok {
				return true
			}
		}
		for j := start - 1; j >= start-4 && j >= 0; j-- {
			if _, ok := yearsContextBefore[s.at(j)]; ok {
				return true
			}
		}
		return false
	}
	flo, fhi := s.measures(yearUnits, contract)
	if flo != nil && fhi != nil && *flo == *fhi {
		v := int(math.Round(*flo))
		return &v, &v
	}
	if flo != nil {
		v := int(math.Ceil(*flo))
		lo = &v
	}
	if fhi != nil {
		v := int(math.Floor(*fhi))
		hi = &v
	}
	return lo, hi
}

func extractCategory(s *stream) *domain.RepoweringCategory {
	for i := 0; i < s.len(); i++ {
		if c, ok := categoryWords[s.at(i)]; ok && s.free(i) {
			s.take(i, i+1)
			return &c
		}
	}
	return nil
}

func extractSector(s *stream) *domain.Sector {
	for i := 0; i < s.len(); i++ {
		if sec, ok := sectorWords[s.at(i)]; ok && s.free(i) {
			s.take(i, i+1)
			return &sec
		}
	}
	return nil
}

func extractLimit(s *stream) int {
	for i := 0; i+1 < s.len(); i++ {
		if _, ok := limitWords[s.at(i)]; !ok || !s.free(i) {
			continue
		}
		v, ok := s.number(i + 1)
		if !ok || v < 1 || v != math.Trunc(v) {
			continue
		}
		if _, unit := capacityUnits[s.at(i+2)]; unit {
			continue
		}
		s.take(i, i+2)
		return int(v)
	}
	return 0
}

func extractSort(s *stream) *domain.SortOrder {
	for i := 0; i < s.len(); i++ {
		for _, by := range sortByWords {
			if !s.match(i, by) {
				continue
			}
			j := i + len(by)
			for _, fw := range fieldWords {
				if !s.match(j, fw.words) {
					continue
				}
				order := domain.SortOrder{Field: fw.field, Descending: fw.field != domain.FieldExpiryDate}
				end := j + len(fw.words)
				if _, ok := ascendingWords[s.at(end)]; ok {
					order.Descending = false
					end++
				} else if _, ok := descendWords[s.at(end)]; ok {
					order.Descending = true
					end++
				}
				s.take(i, end)
				return &order
			}
		}
	}
	for i := 0; i < s.len(); i++ {
		for _, sw := range sortWords {
			if s.match(i, sw.words) {
				s.take(i, i+len(sw.words))
				order := sw.order
				return &order
			}
		}
	}
	return nil
}

// unrecognizedPlaces flags word groups after a location preposition that
// matched no known place.
func (p *Parser) unrecognizedPlaces(s *stream) []domain.Warning {
	var out []domain.Warning
	for i := 0; i < s.len(); i++ {
		if _, ok := locationPrepositions[s.at(i)]; !ok || !s.free(i) {
			continue
		}
		j := i + 1
		for {
			for s.at(j) == "the" && s.free(j) {
				j++
			}
			start := j
			if j < s.len() && !s.free(j) {
				// a recognized place; skip it
				for j < s.len() && !s.free(j) {
					j++
				}
			} else {
				for j < s.len() && s.free(j) && !textnorm.IsNumber(s.at(j)) && !textnorm.IsSymbol(s.at(j)) && !isVocabulary(s.at(j)) {
					j++
				}
				if j == start {
					break
				}
				term := strings.Join(s.toks[start:j], " ")
				s.take(start, j)
				out = append(out, domain.Warning{
					Code:    domain.WarnUnrecognizedPlace,
					Message: fmt.Sprintf("Place %q is not in the place table; no location filter was applied for it", term),
					Term:    term,
				})
			}
			if (s.at(j) == "and" || s.at(j) == "or") && s.free(j) {
				j++
				continue
			}
			break
		}
		i = j - 1
	}
	return out
}

func isVocabulary(w string) bool {
	_, ok := vocabulary[w]
	return ok
}

func copyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// stream is the token list plus which tokens an earlier stage already used.
type stream struct {
	toks []string
	used []bool
}

func newStream(toks []string) *stream {
	for i, t := range toks {
		n, ok := wordNumbers[t]
		if !ok || i+1 >= len(toks) {
			continue
		}
		next := toks[i+1]
		_, capUnit := capacityUnits[next]
		_, yearUnit := yearUnits[next]
		sep := next == textnorm.Dash || next == "to" || next == "and"
		if capUnit || yearUnit || (sep && i+2 < len(toks) && (textnorm.IsNumber(toks[i+2]) || wordNumbers[toks[i+2]] != "")) {
			toks[i] = n
		}
	}
	return &stream{toks: toks, used: make([]bool, len(toks))}
}

func (s *stream) len() int { return len(s.toks) }

func (s *stream) at(i int) string {
	if i < 0 || i >= len(s.toks) {
		return ""
	}
	return s.toks[i]
}

func (s *stream) free(i int) bool {
	return i >= 0 && i < len(s.toks) && !s.used[i]
}

func (s *stream) take(start, end int) {
	for i := max(start, 0); i < end && i < len(s.used); i++ {
		s.used[i] = true
	}
}

// match reports whether the free tokens starting at i spell words.
func (s *stream) match(i int, words []string) bool {
	if i < 0 || i+len(words) > len(s.toks) || len(words) == 0 {
		return false
	}
	for k, w := range words {
		if s.used[i+k] || s.toks[i+k] != w {
			return false
		}
	}
	return true
}

func (s *stream) number(i int) (float64, bool) {
	if !s.free(i) || !textnorm.IsNumber(s.at(i)) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s.at(i), 64)
	return v, err == nil
}

func (s *stream) unit(i int, units map[string]float64) (float64, int) {
	if !s.free(i) {
		return 1, 0
	}
	if m, ok := units[s.at(i)]; ok {
		return m, 1
	}
	return 1, 0
}

// phraseBefore returns the length of the first listed phrase that ends just before i.
func (s *stream) phraseBefore(i int, phrases []phrase) int {
	for _, p := range phrases {
		if s.match(i-len(p), p) {
			return len(p)
		}
	}
	return 0
}

func (s *stream) phraseAfter(i int, phrases []phrase) int {
	for _, p := range phrases {
		if s.match(i, p) {
			return len(p)
		}
	}
	return 0
}

func (s *stream) phraseAnywhere(p phrase) bool {
	for i := 0; i < len(s.toks); i++ {
		if s.match(i, p) {
			return true
		}
	}
	return false
}

func (s *stream) takeAny(words map[string]struct{}) bool {
	found := false
	for i, t := range s.toks {
		if _, ok := words[t]; ok && !s.used[i] {
			s.used[i] = true
			found = true
		}
	}
	return found
}

func (s *stream) findField() (domain.Field, bool) {
	for i := 0; i < len(s.toks); i++ {
		for _, fw := range fieldWords {
			if s.match(i, fw.words) {
				s.take(i, i+len(fw.words))
				return fw.field, true
			}
		}
	}
	return "", false
}

func (s *stream) findAggregate() (domain.AggregateFunction, bool) {
	for i := 0; i < len(s.toks); i++ {
		for _, aw := range aggregateWords {
			if s.match(i, aw.words) {
				s.take(i, i+len(aw.words))
				return aw.fn, true
			}
		}
	}
	return "", false
}

func (s *stream) detectFollowUp() bool {
	for _, p := range followUpLeading {
		if s.match(0, p) {
			return true
		}
	}
	for _, p := range followUpAnywhere {
		if s.phraseAnywhere(p) {
			return true
		}
	}
	return false
}

// measures extracts numeric bounds for quantities expressed in units. accept
// decides whether a candidate span [start, end) belongs to this measure.
// Repeated phrases combine: "over 100kw and under 500kw" sets both bounds.
func (s *stream) measures(units map[string]float64, accept func(start, end int) bool) (lo, hi *float64) {
	setLo := func(v float64) {
		if lo == nil {
			lo = &v
		}
	}
	setHi := func(v float64) {
		if hi == nil {
			hi = &v
		}
	}
	for i := 0; i < len(s.toks); i++ {
		a, ok := s.number(i)
		if !ok {
			continue
		}
		m1, u1 := s.unit(i+1, units)
		j := i + 1 + u1

		// ranges: "8-10 years", "between 100 and 500kw", "from 1mw to 5mw"
		lead := s.phraseBefore(i, []phrase{{"between"}, {"from"}})
		sep := s.at(j)
		if s.free(j) && (sep == textnorm.Dash || sep == "to" || (sep == "and" && lead > 0)) {
			if b, ok := s.number(j + 1); ok {
				m2, u2 := s.unit(j+2, units)
				if u1 > 0 || u2 > 0 {
					if u1 == 0 {
						m1 = m2
					}
					if u2 == 0 {
						m2 = m1
					}
					start, end := i-lead, j+2+u2
					if accept(start, end) {
						setLo(a * m1)
						setHi(b * m2)
						s.take(start, end)
						i = end - 1
						continue
					}
				}
			}
		}
		if u1 == 0 {
			continue
		}

		start, end := i, j
		v := a * m1
		if n := s.phraseBefore(i, atMostBefore); n > 0 && !s.isAtLeastLonger(i, n) {
			if !accept(start-n, end) {
				continue
			}
			setHi(v)
			s.take(start-n, end)
		} else if n := s.phraseBefore(i, atLeastBefore); n > 0 {
			if !accept(start-n, end) {
				continue
			}
			setLo(v)
			s.take(start-n, end)
		} else if n := s.phraseAfter(end, atLeastAfter); n > 0 {
			if !accept(start, end+n) {
				continue
			}
			setLo(v)
			s.take(start, end+n)
		} else if n := s.phraseAfter(end, atMostAfter); n > 0 {
			if !accept(start, end+n) {
				continue
			}
			setHi(v)
			s.take(start, end+n)
		} else {
			if !accept(start, end) {
				continue
			}
			setLo(v)
			setHi(v)
			s.take(start, end)
		}
		i = end - 1
	}
	return lo, hi
}

// isAtLeastLonger guards "no less than" (at least) against matching the
// shorter "less than" (at most).
func (s *stream) isAtLeastLonger(i, n int) bool {
	return s.phraseBefore(i, atLeastBefore) > n
}
