package catalogue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fit-atlas/internal/application/index"
	"fit-atlas/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const sampleCSV = `Installation ID,Technology Type,Installed Capacity,Installation Postcode,Commissioning Date,Annual Generation,Sector
W1,Wind,250,RG1 2AB,2015-06-01,"500,000",Commercial
P1,photovoltaic,3.5,EH3 9XX,15/01/2013,,domestic
BAD1,Wind,not-a-number,RG1 1AA,2015-06-01,,
BAD2,Tidal,10,RG1 1AA,2015-06-01,,
BAD3,Hydro,10,RG1 1AA,sometime,,
`

func TestReadCSV_MapsHeadersAndCells(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 5)

	w := rows[0]
	assert.Equal(t, "W1", w.ID)
	assert.Equal(t, domain.Wind, w.Technology)
	assert.Equal(t, 250.0, w.CapacityKW)
	require.NotNil(t, w.AnnualGenerationKWh)
	assert.Equal(t, 500000.0, *w.AnnualGenerationKWh)

	p := rows[1]
	assert.Equal(t, domain.Photovoltaic, p.Technology)
	assert.Equal(t, time.Date(2013, 1, 15, 0, 0, 0, 0, time.UTC), p.CommissionDate)
	assert.Nil(t, p.AnnualGenerationKWh)
}

func TestReadCSV_BadRowsAreRejectedByBuild(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)

	snap, stats := index.Build(rows, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 3, stats.Rejected)
	a, ok := snap.Get("P1")
	require.True(t, ok)
	assert.Equal(t, "EH", a.PostcodePrefix)
	assert.Equal(t, domain.Domestic, a.Sector)
	w, _ := snap.Get("W1")
	assert.Equal(t, domain.Commercial, w.Sector)
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("asset_id,technology\nA,Wind\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestCSVLoader_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fit.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))

	l := &CSVLoader{Path: path}
	rows, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, "csv:"+path, l.Source())

	_, err = (&CSVLoader{Path: filepath.Join(t.TempDir(), "missing.csv")}).Load(context.Background())
	assert.Error(t, err)
}

func TestGormLoader(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Asset{}))

	g := 1200.0
	seed := []domain.Asset{
		{ID: "A2", Technology: domain.Hydro, CapacityKW: 40, PostcodePrefix: "LL", CommissionDate: time.Date(2012, 6, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "A1", Technology: domain.Photovoltaic, CapacityKW: 4, PostcodePrefix: "RG", CommissionDate: time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC), AnnualGenerationKWh: &g},
		{ID: "A3", Technology: domain.Wind, CapacityKW: 11, PostcodePrefix: "KW", CommissionDate: time.Date(2014, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, db.Create(&seed).Error)

	rows, err := (&GormLoader{DB: db, BatchSize: 2}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	ids := []string{rows[0].ID, rows[1].ID, rows[2].ID}
	assert.ElementsMatch(t, []string{"A1", "A2", "A3"}, ids)
}

type stubLoader struct {
	rows    []domain.Asset
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *stubLoader) Source() string { return "stub" }

func (s *stubLoader) Load(ctx context.Context) ([]domain.Asset, error) {
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	return s.rows, s.err
}

func asset(id string) domain.Asset {
	return domain.Asset{ID: id, Technology: domain.Wind, CapacityKW: 10, PostcodePrefix: "RG", CommissionDate: time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestRefresher_SwapsSnapshot(t *testing.T) {
	idx := index.New(nil)
	loader := &stubLoader{rows: []domain.Asset{asset("A"), asset("B")}}
	r := &Refresher{Loader: loader, Index: idx}

	stats, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)

	snap, err := idx.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	st := r.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, "stub", st.Source)
	assert.Equal(t, 1, st.Refreshes)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, 2, st.Snapshot.Assets)
}

func TestRefresher_FailureKeepsCurrentSnapshot(t *testing.T) {
	idx := index.New(nil)
	loader := &stubLoader{rows: []domain.Asset{asset("A")}}
	r := &Refresher{Loader: loader, Index: idx}
	_, err := r.Refresh(context.Background())
	require.NoError(t, err)
	before, _ := idx.Load()

	loader.rows, loader.err = nil, errors.New("db down")
	_, err = r.Refresh(context.Background())
	assert.Error(t, err)
	after, _ := idx.Load()
	assert.Same(t, before, after)
	assert.Equal(t, "db down", r.Status().LastError)

	loader.err = nil
	loader.rows = []domain.Asset{{ID: "bad"}}
	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCatalogue)
	after, _ = idx.Load()
	assert.Same(t, before, after)
}

func TestRefresher_RejectsConcurrentRefresh(t *testing.T) {
	loader := &stubLoader{rows: []domain.Asset{asset("A")}, started: make(chan struct{}), release: make(chan struct{})}
	r := &Refresher{Loader: loader, Index: index.New(nil)}

	done := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		done <- err
	}()
	<-loader.started
	assert.True(t, r.Status().Refreshing)

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	close(loader.release)
	require.NoError(t, <-done)
	assert.False(t, r.Status().Refreshing)
}

func TestRefresher_NoSource(t *testing.T) {
	r := &Refresher{Index: index.New(nil)}
	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)
	assert.False(t, r.Status().Loaded)
}
