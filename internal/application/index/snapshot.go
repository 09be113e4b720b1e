// Package index holds the warm, immutable in-memory catalogue snapshot and the
// atomic pointer readers use to reach it.
package index

import (
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"fit-atlas/internal/application/tariff"
	"fit-atlas/internal/domain"
)

var (
	ErrNotLoaded   = errors.New("Catalogue snapshot is not loaded yet")
	ErrDuplicateID = errors.New("Duplicate asset id")
)

// BuildStats reports how many rows a build accepted and why the rest were rejected.
type BuildStats struct {
	Total    int            `json:"total"`
	Indexed  int            `json:"indexed"`
	Rejected int            `json:"rejected"`
	Reasons  map[string]int `json:"reasons,omitempty"`
}

// Stats describes a loaded snapshot.
type Stats struct {
	Assets       int                       `json:"assets"`
	ByTechnology map[domain.Technology]int `json:"by_technology"`
	SnapshotDate time.Time                 `json:"snapshot_date"`
	BuiltAt      time.Time                 `json:"built_at"`
	Build        BuildStats                `json:"build"`
}

type techPrefix struct {
	tech   domain.Technology
	prefix string
}

// Snapshot is read-only after Build returns; every method is safe for concurrent use.
type Snapshot struct {
	assets       []domain.Asset
	byID         map[string]int
	byTech       map[domain.Technology][]int
	byPrefix     map[string][]int
	byTechPrefix map[techPrefix][]int
	snapshotDate time.Time
	builtAt      time.Time
	build        BuildStats
}

// Build validates rows against snapshotDate and indexes the valid ones. Invalid
// rows are counted in the stats, never indexed.
func Build(rows []domain.Asset, snapshotDate time.Time) (*Snapshot, BuildStats) {
	stats := BuildStats{Total: len(rows), Reasons: map[string]int{}}
	snapshotDate = domain.DateOf(snapshotDate)

	valid := make([]domain.Asset, 0, len(rows))
	for _, a := range rows {
		a.Normalize()
		if err := a.Validate(snapshotDate); err != nil {
			stats.Rejected++
			stats.Reasons[reason(err)]++
			continue
		}
		valid = append(valid, a)
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].ID < valid[j].ID })

	s := &Snapshot{
		assets:       make([]domain.Asset, 0, len(valid)),
		byID:         make(map[string]int, len(valid)),
		byTech:       map[domain.Technology][]int{},
		byPrefix:     map[string][]int{},
		byTechPrefix: map[techPrefix][]int{},
		snapshotDate: snapshotDate,
		builtAt:      time.Now().UTC(),
	}
	for _, a := range valid {
		if _, dup := s.byID[a.ID]; dup {
			stats.Rejected++
			stats.Reasons[ErrDuplicateID.Error()]++
			continue
		}
		i := len(s.assets)
		s.assets = append(s.assets, a)
		s.byID[a.ID] = i
		s.byTech[a.Technology] = append(s.byTech[a.Technology], i)
		s.byPrefix[a.PostcodePrefix] = append(s.byPrefix[a.PostcodePrefix], i)
		k := techPrefix{a.Technology, a.PostcodePrefix}
		s.byTechPrefix[k] = append(s.byTechPrefix[k], i)
	}
	stats.Indexed = len(s.assets)
	if len(stats.Reasons) == 0 {
		stats.Reasons = nil
	}
	s.build = stats
	return s, stats
}

// reason strips the asset id from a validation error so rejections group by cause.
func reason(err error) string {
	for _, known := range []error{
		domain.ErrInvalidTechnology, domain.ErrInvalidCapacity, domain.ErrMissingPrefix,
		domain.ErrMissingCommissioned, domain.ErrFutureCommissioning, domain.ErrInvalidSector,
		domain.ErrInvalidGeneration,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}

// Len returns the number of indexed assets.
func (s *Snapshot) Len() int { return len(s.assets) }

// Get returns a copy of the asset with the given id.
func (s *Snapshot) Get(id string) (domain.Asset, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.Asset{}, false
	}
	return s.assets[i], true
}

func (s *Snapshot) SnapshotDate() time.Time { return s.snapshotDate }

func (s *Snapshot) Stats() Stats {
	st := Stats{
		Assets:       len(s.assets),
		ByTechnology: map[domain.Technology]int{},
		SnapshotDate: s.snapshotDate,
		BuiltAt:      s.builtAt,
		Build:        s.build,
	}
	for t, ids := range s.byTech {
		st.ByTechnology[t] = len(ids)
	}
	return st
}

// Filter returns the ids of every asset matching all criteria of f, ordered by id.
// Years remaining and repowering category are evaluated as of asOf.
func (s *Snapshot) Filter(f domain.QueryFilter, asOf time.Time) ([]string, error) {
	matched, err := s.Match(f, asOf)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(matched))
	for i, a := range matched {
		ids[i] = a.ID
	}
	return ids, nil
}

// Match is Filter returning the assets themselves.
func (s *Snapshot) Match(f domain.QueryFilter, asOf time.Time) ([]domain.Asset, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	asOf = domain.DateOf(asOf)
	out := []domain.Asset{}
	for _, i := range s.candidates(f) {
		a := s.assets[i]
		if matches(a, f, asOf) {
			out = append(out, a)
		}
	}
	return out, nil
}

// candidates narrows by technology and prefix, returning positions in id order.
func (s *Snapshot) candidates(f domain.QueryFilter) []int {
	prefixes := f.PostcodePrefixes
	switch {
	case f.Technology != nil && len(prefixes) > 0:
		var lists [][]int
		for _, p := range prefixes {
			lists = append(lists, s.byTechPrefix[techPrefix{*f.Technology, p}])
		}
		return union(lists)
	case f.Technology != nil:
		return s.byTech[*f.Technology]
	case len(prefixes) > 0:
		var lists [][]int
		for _, p := range prefixes {
			lists = append(lists, s.byPrefix[p])
		}
		return union(lists)
	}
	all := make([]int, len(s.assets))
	for i := range all {
		all[i] = i
	}
	return all
}

// union merges position lists; an asset has one prefix so the lists are disjoint.
func union(lists [][]int) []int {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]int, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.Ints(out)
	return out
}

func matches(a domain.Asset, f domain.QueryFilter, asOf time.Time) bool {
	if f.CapacityMinKW != nil && a.CapacityKW < *f.CapacityMinKW {
		return false
	}
	if f.CapacityMaxKW != nil && a.CapacityKW > *f.CapacityMaxKW {
		return false
	}
	if f.Sector != nil && a.Sector != *f.Sector {
		return false
	}
	if f.YearsLeftMin == nil && f.YearsLeftMax == nil && f.RepoweringCategory == nil {
		return true
	}
	years := tariff.YearsRemaining(a.CommissionDate, asOf)
	if f.YearsLeftMin != nil && years < *f.YearsLeftMin {
		return false
	}
	if f.YearsLeftMax != nil && years > *f.YearsLeftMax {
		return false
	}
	if f.RepoweringCategory != nil {
		if tariff.Categorize(years, tariff.Expiry(a.CommissionDate), asOf) != *f.RepoweringCategory {
			return false
		}
	}
	return true
}

// Index publishes the current snapshot. Readers call Load and keep using the
// snapshot they got even if a refresh swaps in a new one meanwhile.
type Index struct {
	current atomic.Pointer[Snapshot]
}

func New(s *Snapshot) *Index {
	idx := &Index{}
	if s != nil {
		idx.current.Store(s)
	}
	return idx
}

// Load returns the current snapshot or ErrNotLoaded.
func (i *Index) Load() (*Snapshot, error) {
	s := i.current.Load()
	if s == nil {
		return nil, ErrNotLoaded
	}
	return s, nil
}

// Swap installs s and returns the snapshot it replaced, nil on first load.
func (i *Index) Swap(s *Snapshot) *Snapshot {
	return i.current.Swap(s)
}
