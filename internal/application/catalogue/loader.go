// Package catalogue loads FIT installations from their source and publishes
// them to the warm index.
package catalogue

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"fit-atlas/internal/domain"
	"fit-atlas/internal/pkg/validation"

	"gorm.io/gorm"
)

var (
	ErrMissingColumn = errors.New("CSV header is missing a required column")
	ErrNoSource      = errors.New("No catalogue source configured")
)

// Loader returns every catalogue row. Rows are validated by the index build,
// not here.
type Loader interface {
	Load(ctx context.Context) ([]domain.Asset, error)
	Source() string
}

// GormLoader reads the fit_installations table.
type GormLoader struct {
	DB        *gorm.DB
	BatchSize int
}

func (l *GormLoader) Source() string { return "database" }

func (l *GormLoader) Load(ctx context.Context) ([]domain.Asset, error) {
	size := l.BatchSize
	if size <= 0 {
		size = 5000
	}
	var out []domain.Asset
	var batch []domain.Asset
	err := l.DB.WithContext(ctx).FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
		out = append(out, batch...)
		return nil
	}).Error
	if err != nil {
		return nil, fmt.Errorf("load catalogue table: %w", err)
	}
	return out, nil
}

// CSVLoader reads an exported register file with a header row.
type CSVLoader struct {
	Path string
}

func (l *CSVLoader) Source() string { return "csv:" + l.Path }

func (l *CSVLoader) Load(ctx context.Context) ([]domain.Asset, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(ctx, f)
}

var requiredColumns = []string{"asset_id", "technology", "capacity_kw", "commission_date"}

// column aliases seen in register exports
var columnAliases = map[string]string{
	"id":                         "asset_id",
	"installation_id":            "asset_id",
	"technology_type":            "technology",
	"installed_capacity":         "capacity_kw",
	"declared_net_capacity":      "capacity_kw",
	"commissioning_date":         "commission_date",
	"installation_date":          "commission_date",
	"postcode_area":              "postcode_prefix",
	"installation_postcode":      "postcode",
	"annual_generation":          "annual_generation_kwh",
	"installation_type":          "sector",
	"sector_classification":      "sector",
	"supply_point_postcode":      "postcode",
	"installation_postcode_area": "postcode_prefix",
}

// ReadCSV parses rows into assets. A cell that does not parse leaves its field
// zero so the index build rejects and counts the row.
func ReadCSV(ctx context.Context, r io.Reader) ([]domain.Asset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var out []domain.Asset
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		out = append(out, rowToAsset(cell))
	}
	return out, nil
}

func rowToAsset(cell func(string) string) domain.Asset {
	a := domain.Asset{
		ID:             cell("asset_id"),
		Technology:     domain.Technology(cell("technology")),
		Postcode:       cell("postcode"),
		PostcodePrefix: cell("postcode_prefix"),
		Sector:         domain.Sector(cell("sector")),
	}
	if t, ok := domain.ParseTechnology(string(a.Technology)); ok {
		a.Technology = t
	}
	if v, err := strconv.ParseFloat(strings.ReplaceAll(cell("capacity_kw"), ",", ""), 64); err == nil {
		a.CapacityKW = v
	}
	if d, err := validation.ParseDate(cell("commission_date")); err == nil {
		a.CommissionDate = d
	}
	if s := strings.ReplaceAll(cell("annual_generation_kwh"), ",", ""); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			a.AnnualGenerationKWh = &v
		}
	}
	return a
}
