// Package tariff holds the historical FIT rate table and the contract rules
// (term, remaining years, degradation, repowering category) applied to it.
package tariff

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fit-atlas/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed tariffs.yaml
var defaultTable []byte

const dateLayout = "2006-01-02"

// Rate is one row of the tariff table.
type Rate struct {
	Technology  domain.Technology `json:"technology"`
	MinKW       float64           `json:"min_kw"`
	MaxKW       float64           `json:"max_kw"`
	ValidFrom   time.Time         `json:"valid_from"`
	ValidTo     time.Time         `json:"valid_to"`
	PencePerKWh float64           `json:"pence_per_kwh"`
}

// Covers reports whether the row applies to an installation of capacityKW
// commissioned on date.
func (r Rate) Covers(capacityKW float64, commissioned time.Time) bool {
	if capacityKW <= r.MinKW || capacityKW > r.MaxKW {
		return false
	}
	return !commissioned.Before(r.ValidFrom) && commissioned.Before(r.ValidTo)
}

func (r Rate) overlaps(o Rate) bool {
	if r.Technology != o.Technology {
		return false
	}
	capacity := r.MinKW < o.MaxKW && o.MinKW < r.MaxKW
	dates := r.ValidFrom.Before(o.ValidTo) && o.ValidFrom.Before(r.ValidTo)
	return capacity && dates
}

// Scheme describes the tariff scheme version the table belongs to.
type Scheme struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Start   time.Time `json:"start"`
	Closure time.Time `json:"closure"`
}

var (
	ErrOverlappingRates   = errors.New("Tariff bands overlap")
	ErrInvalidBand        = errors.New("Tariff band is empty or inverted")
	ErrOutsideScheme      = errors.New("Tariff period lies outside the scheme dates")
	ErrUnknownTechnology  = errors.New("Tariff row names an unknown technology")
	ErrNegativeRate       = errors.New("Tariff rate must not be negative")
	ErrInvalidFactor      = errors.New("Capacity factor must be in (0, 1]")
	ErrMissingFactor      = errors.New("Technology has no default capacity factor")
	ErrInvalidSchemeDates = errors.New("Scheme closure must be after its start")
)

// Table is an immutable, validated tariff table.
type Table struct {
	scheme  Scheme
	rates   map[domain.Technology][]Rate
	factors map[domain.Technology]factorSet
}

type factorSet struct {
	def     float64
	regions map[string]float64
}

type fileBand struct {
	MinKW float64 `yaml:"min_kw"`
	MaxKW float64 `yaml:"max_kw"`
	Rate  float64 `yaml:"rate"`
}

type filePeriod struct {
	Technology string     `yaml:"technology"`
	From       string     `yaml:"from"`
	To         string     `yaml:"to"`
	Bands      []fileBand `yaml:"bands"`
}

type fileFactor struct {
	Default float64            `yaml:"default"`
	Regions map[string]float64 `yaml:"regions"`
}

type file struct {
	Scheme struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		Start   string `yaml:"start"`
		Closure string `yaml:"closure"`
	} `yaml:"scheme"`
	CapacityFactors map[string]fileFactor `yaml:"capacity_factors"`
	Rates           []filePeriod          `yaml:"rates"`
}

// Load parses and validates a YAML tariff table.
func Load(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tariff table: %w", err)
	}
	start, err := time.Parse(dateLayout, f.Scheme.Start)
	if err != nil {
		return nil, fmt.Errorf("scheme start: %w", err)
	}
	closure, err := time.Parse(dateLayout, f.Scheme.Closure)
	if err != nil {
		return nil, fmt.Errorf("scheme closure: %w", err)
	}
	if !closure.After(start) {
		return nil, ErrInvalidSchemeDates
	}
	t := &Table{
		scheme:  Scheme{Name: f.Scheme.Name, Version: f.Scheme.Version, Start: start, Closure: closure},
		rates:   map[domain.Technology][]Rate{},
		factors: map[domain.Technology]factorSet{},
	}

	for _, p := range f.Rates {
		tech, ok := domain.ParseTechnology(p.Technology)
		if !ok {
			return nil, fmt.Errorf("%q: %w", p.Technology, ErrUnknownTechnology)
		}
		from, err := time.Parse(dateLayout, p.From)
		if err != nil {
			return nil, fmt.Errorf("%s period from: %w", tech, err)
		}
		to, err := time.Parse(dateLayout, p.To)
		if err != nil {
			return nil, fmt.Errorf("%s period to: %w", tech, err)
		}
		if !to.After(from) {
			return nil, fmt.Errorf("%s %s..%s: %w", tech, p.From, p.To, ErrInvalidBand)
		}
		if from.Before(start) || to.After(closure) {
			return nil, fmt.Errorf("%s %s..%s: %w", tech, p.From, p.To, ErrOutsideScheme)
		}
		for _, b := range p.Bands {
			if b.MaxKW <= b.MinKW || b.MinKW < 0 {
				return nil, fmt.Errorf("%s (%g, %g]: %w", tech, b.MinKW, b.MaxKW, ErrInvalidBand)
			}
			if b.Rate < 0 {
				return nil, fmt.Errorf("%s (%g, %g]: %w", tech, b.MinKW, b.MaxKW, ErrNegativeRate)
			}
			r := Rate{Technology: tech, MinKW: b.MinKW, MaxKW: b.MaxKW, ValidFrom: from, ValidTo: to, PencePerKWh: b.Rate}
			for _, existing := range t.rates[tech] {
				if existing.overlaps(r) {
					return nil, fmt.Errorf("%s (%g, %g] from %s: %w", tech, b.MinKW, b.MaxKW, p.From, ErrOverlappingRates)
				}
			}
			t.rates[tech] = append(t.rates[tech], r)
		}
	}
	for tech := range t.rates {
		rows := t.rates[tech]
		sort.Slice(rows, func(i, j int) bool {
			if !rows[i].ValidFrom.Equal(rows[j].ValidFrom) {
				return rows[i].ValidFrom.Before(rows[j].ValidFrom)
			}
			return rows[i].MinKW < rows[j].MinKW
		})
	}

	for name, ff := range f.CapacityFactors {
		tech, ok := domain.ParseTechnology(name)
		if !ok {
			return nil, fmt.Errorf("capacity factor %q: %w", name, ErrUnknownTechnology)
		}
		if ff.Default <= 0 || ff.Default > 1 {
			return nil, fmt.Errorf("%s default: %w", tech, ErrInvalidFactor)
		}
		fs := factorSet{def: ff.Default, regions: map[string]float64{}}
		for region, v := range ff.Regions {
			if v <= 0 || v > 1 {
				return nil, fmt.Errorf("%s %s: %w", tech, region, ErrInvalidFactor)
			}
			fs.regions[strings.ToLower(strings.TrimSpace(region))] = v
		}
		t.factors[tech] = fs
	}
	for _, tech := range domain.Technologies {
		if _, ok := t.factors[tech]; !ok {
			return nil, fmt.Errorf("%s: %w", tech, ErrMissingFactor)
		}
	}
	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTbl   *Table
	defaultTblEr error
)

// Default returns the table built from the embedded tariffs.yaml.
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		defaultTbl, defaultTblEr = Load(defaultTable)
	})
	return defaultTbl, defaultTblEr
}

func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic("tariff table: " + err.Error())
	}
	return t
}

func (t *Table) Scheme() Scheme {
	return t.scheme
}

// Lookup returns the single row covering the installation, if any.
func (t *Table) Lookup(tech domain.Technology, capacityKW float64, commissioned time.Time) (Rate, bool) {
	commissioned = domain.DateOf(commissioned)
	for _, r := range t.rates[tech] {
		if r.Covers(capacityKW, commissioned) {
			return r, true
		}
	}
	return Rate{}, false
}

// CapacityFactor returns the region override for tech, falling back to the
// technology default when the region is empty or has no override.
func (t *Table) CapacityFactor(tech domain.Technology, region string) float64 {
	fs, ok := t.factors[tech]
	if !ok {
		return 0
	}
	if v, ok := fs.regions[strings.ToLower(region)]; ok {
		return v
	}
	return fs.def
}

// Rates returns every row, grouped by technology in enumeration order.
func (t *Table) Rates() []Rate {
	var out []Rate
	for _, tech := range domain.Technologies {
		out = append(out, t.rates[tech]...)
	}
	return out
}
