// Package geo maps UK place names to postcode areas.
package geo

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"fit-atlas/internal/pkg/textnorm"

	"gopkg.in/yaml.v3"
)

//go:embed places.yaml
var defaultTable []byte

type Kind string

const (
	City   Kind = "city"
	County Kind = "county"
	Region Kind = "region"
)

// Place is one entry of the place table.
type Place struct {
	Name     string   `yaml:"name" json:"name"`
	Kind     Kind     `yaml:"kind" json:"kind"`
	County   string   `yaml:"county,omitempty" json:"county,omitempty"`
	Aliases  []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Prefixes []string `yaml:"prefixes" json:"prefixes"`
}

type table struct {
	Places []Place `yaml:"places"`
}

var (
	ErrInvalidPrefix = errors.New("Postcode area must be one or two upper-case letters")
	ErrNoPrefixes    = errors.New("Place must map to at least one postcode area")
	ErrUnknownKind   = errors.New("Place kind must be city, county or region")
	ErrDuplicateName = errors.New("Place name is defined more than once")
	ErrCityOutside   = errors.New("City postcode areas must lie within its county")
	ErrUnknownCounty = errors.New("City refers to an unknown county")
)

var prefixRe = regexp.MustCompile(`^[A-Z]{1,2}$`)

// Resolver answers exact, normalized place lookups. It is immutable after construction.
type Resolver struct {
	places []Place
	byKey  map[string]int
	names  []string
}

// NewResolver parses and validates a YAML place table.
func NewResolver(data []byte) (*Resolver, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse place table: %w", err)
	}
	r := &Resolver{byKey: make(map[string]int, len(t.Places)*2)}
	for _, p := range t.Places {
		p.Name = textnorm.Key(p.Name)
		p.County = textnorm.Key(p.County)
		p.Prefixes = normalizePrefixes(p.Prefixes)
		if err := validatePlace(p); err != nil {
			return nil, err
		}
		idx := len(r.places)
		r.places = append(r.places, p)
		for _, n := range append([]string{p.Name}, p.Aliases...) {
			key := textnorm.Key(n)
			if _, dup := r.byKey[key]; dup {
				return nil, fmt.Errorf("%q: %w", key, ErrDuplicateName)
			}
			r.byKey[key] = idx
			r.names = append(r.names, key)
		}
	}
	for _, p := range r.places {
		if p.Kind != City || p.County == "" {
			continue
		}
		ci, ok := r.byKey[p.County]
		if !ok || r.places[ci].Kind != County {
			return nil, fmt.Errorf("%s (%s): %w", p.Name, p.County, ErrUnknownCounty)
		}
		if !subset(p.Prefixes, r.places[ci].Prefixes) {
			return nil, fmt.Errorf("%s in %s: %w", p.Name, p.County, ErrCityOutside)
		}
	}
	// Longest first so that a scan never lets "york" win over "north yorkshire".
	sort.SliceStable(r.names, func(i, j int) bool {
		wi, wj := strings.Count(r.names[i], " "), strings.Count(r.names[j], " ")
		if wi != wj {
			return wi > wj
		}
		if len(r.names[i]) != len(r.names[j]) {
			return len(r.names[i]) > len(r.names[j])
		}
		return r.names[i] < r.names[j]
	})
	return r, nil
}

func validatePlace(p Place) error {
	switch p.Kind {
	case City, County, Region:
	default:
		return fmt.Errorf("%s: %w", p.Name, ErrUnknownKind)
	}
	if len(p.Prefixes) == 0 {
		return fmt.Errorf("%s: %w", p.Name, ErrNoPrefixes)
	}
	for _, pre := range p.Prefixes {
		if !prefixRe.MatchString(pre) {
			return fmt.Errorf("%s %q: %w", p.Name, pre, ErrInvalidPrefix)
		}
	}
	return nil
}

var (
	defaultOnce     sync.Once
	defaultResolver *Resolver
	defaultErr      error
)

// Default returns the resolver built from the embedded place table.
func Default() (*Resolver, error) {
	defaultOnce.Do(func() {
		defaultResolver, defaultErr = NewResolver(defaultTable)
	})
	return defaultResolver, defaultErr
}

// MustDefault is Default for callers that cannot continue without the table.
func MustDefault() *Resolver {
	r, err := Default()
	if err != nil {
		panic("place table: " + err.Error())
	}
	return r
}

// Resolve returns the sorted postcode areas for name, or an empty set when the
// name is unknown.
func (r *Resolver) Resolve(name string) []string {
	p, ok := r.Lookup(name)
	if !ok {
		return []string{}
	}
	return append([]string(nil), p.Prefixes...)
}

// Lookup returns the entry for name or one of its aliases.
func (r *Resolver) Lookup(name string) (Place, bool) {
	idx, ok := r.byKey[textnorm.Key(name)]
	if !ok {
		return Place{}, false
	}
	p := r.places[idx]
	p.Prefixes = append([]string(nil), p.Prefixes...)
	return p, true
}

// Names returns every normalized name and alias, longest first.
func (r *Resolver) Names() []string {
	return append([]string(nil), r.names...)
}

// Places returns a copy of the table in file order.
func (r *Resolver) Places() []Place {
	out := make([]Place, len(r.places))
	copy(out, r.places)
	return out
}

// RegionOf returns the first region in table order whose areas contain prefix.
func (r *Resolver) RegionOf(prefix string) (string, bool) {
	prefix = strings.ToUpper(prefix)
	for _, p := range r.places {
		if p.Kind != Region {
			continue
		}
		i := sort.SearchStrings(p.Prefixes, prefix)
		if i < len(p.Prefixes) && p.Prefixes[i] == prefix {
			return p.Name, true
		}
	}
	return "", false
}

func normalizePrefixes(prefixes []string) []string {
	up := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		up = append(up, strings.ToUpper(strings.TrimSpace(p)))
	}
	seen := map[string]struct{}{}
	out := up[:0]
	for _, p := range up {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func subset(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, p := range b {
		set[p] = struct{}{}
	}
	for _, p := range a {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}
