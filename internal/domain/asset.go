package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

// Technology is the generation technology of a FIT installation.
type Technology string

const (
	Photovoltaic       Technology = "Photovoltaic"
	Wind               Technology = "Wind"
	Hydro              Technology = "Hydro"
	AnaerobicDigestion Technology = "Anaerobic Digestion"
	MicroCHP           Technology = "Micro CHP"
)

// Technologies lists every valid technology in a fixed order.
var Technologies = []Technology{Photovoltaic, Wind, Hydro, AnaerobicDigestion, MicroCHP}

// Valid reports whether t is one of the fixed enumeration values.
func (t Technology) Valid() bool {
	for _, v := range Technologies {
		if t == v {
			return true
		}
	}
	return false
}

// ParseTechnology accepts the canonical name case-insensitively.
func ParseTechnology(s string) (Technology, bool) {
	s = strings.TrimSpace(s)
	for _, v := range Technologies {
		if strings.EqualFold(string(v), s) {
			return v, true
		}
	}
	return "", false
}

// Sector is the installation's sector classification.
type Sector string

const (
	Domestic   Sector = "domestic"
	Commercial Sector = "commercial"
	Industrial Sector = "industrial"
	Community  Sector = "community"
)

var Sectors = []Sector{Domestic, Commercial, Industrial, Community}

func (s Sector) Valid() bool {
	for _, v := range Sectors {
		if s == v {
			return true
		}
	}
	return false
}

var (
	ErrInvalidTechnology   = errors.New("Technology is not a known FIT technology")
	ErrInvalidCapacity     = errors.New("Capacity must be greater than zero")
	ErrMissingPrefix       = errors.New("Postcode prefix could not be derived")
	ErrFutureCommissioning = errors.New("Commission date is after the snapshot date")
	ErrMissingCommissioned = errors.New("Commission date is required")
	ErrInvalidSector       = errors.New("Sector is not a known classification")
	ErrInvalidGeneration   = errors.New("Annual generation must not be negative")
)

// Asset is one FIT installation as held in the catalogue table.
type Asset struct {
	ID                  string     `gorm:"column:asset_id;primaryKey" json:"asset_id"`
	Technology          Technology `gorm:"column:technology;type:varchar(32);not null;index" json:"technology"`
	CapacityKW          float64    `gorm:"column:capacity_kw;not null" json:"capacity_kw"`
	Postcode            string     `gorm:"column:postcode" json:"postcode,omitempty"`
	PostcodePrefix      string     `gorm:"column:postcode_prefix;type:varchar(4);index" json:"postcode_prefix"`
	CommissionDate      time.Time  `gorm:"column:commission_date;not null" json:"commission_date"`
	AnnualGenerationKWh *float64   `gorm:"column:annual_generation_kwh" json:"annual_generation_kwh,omitempty"`
	Sector              Sector     `gorm:"column:sector;type:varchar(16)" json:"sector"`
}

func (Asset) TableName() string {
	return "fit_installations"
}

// Normalize fills the derived prefix and upper-cases postcode fields.
func (a *Asset) Normalize() {
	a.Postcode = strings.ToUpper(strings.TrimSpace(a.Postcode))
	a.PostcodePrefix = strings.ToUpper(strings.TrimSpace(a.PostcodePrefix))
	if a.PostcodePrefix == "" {
		a.PostcodePrefix = PostcodePrefix(a.Postcode)
	}
	a.Sector = Sector(strings.ToLower(strings.TrimSpace(string(a.Sector))))
	a.CommissionDate = DateOf(a.CommissionDate)
}

// Validate checks the catalogue invariants against the snapshot date.
func (a Asset) Validate(snapshotDate time.Time) error {
	if !a.Technology.Valid() {
		return fmt.Errorf("asset %s: %w", a.ID, ErrInvalidTechnology)
	}
	if math.IsNaN(a.CapacityKW) || a.CapacityKW <= 0 {
		return fmt.Errorf("asset %s: %w", a.ID, ErrInvalidCapacity)
	}
	if a.PostcodePrefix == "" || len(a.PostcodePrefix) > 4 {
		return fmt.Errorf("asset %s: %w", a.ID, ErrMissingPrefix)
	}
	if a.CommissionDate.IsZero() {
		return fmt.Errorf("asset %s: %w", a.ID, ErrMissingCommissioned)
	}
	if !snapshotDate.IsZero() && a.CommissionDate.After(DateOf(snapshotDate)) {
		return fmt.Errorf("asset %s: %w", a.ID, ErrFutureCommissioning)
	}
	if a.Sector != "" && !a.Sector.Valid() {
		return fmt.Errorf("asset %s: %w", a.ID, ErrInvalidSector)
	}
	if a.AnnualGenerationKWh != nil && *a.AnnualGenerationKWh < 0 {
		return fmt.Errorf("asset %s: %w", a.ID, ErrInvalidGeneration)
	}
	return nil
}

// PostcodePrefix returns the leading alphabetic characters of a postcode, upper-cased.
func PostcodePrefix(postcode string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(postcode) {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			break
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
