package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogueCSV = `asset_id,technology,capacity_kw,postcode,commission_date,annual_generation_kwh,sector
W1,Wind,250,RG1 2AB,2015-06-01,500000,commercial
W2,Wind,150,SL4 1AA,2016-03-01,,commercial
H1,Hydro,50,LL55 4AA,2014-01-01,,community
`

func writeCatalogue(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fit.csv")
	require.NoError(t, os.WriteFile(path, []byte(catalogueCSV), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlaces(t *testing.T) {
	out, err := run(t, "places", "North Yorkshire")
	require.NoError(t, err)
	assert.Contains(t, out, "DL, HG, TS, YO")

	out, err = run(t, "places")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")

	_, err = run(t, "places", "Atlantis")
	assert.Error(t, err)
}

func TestQuery_JSON(t *testing.T) {
	csv := writeCatalogue(t)
	out, err := run(t, "query", "--csv", csv, "--as-of", "2025-01-01", "-o", "json", "wind sites over 100kW in Berkshire")
	require.NoError(t, err)
	assert.Contains(t, out, `"asset_id": "W1"`)
	assert.Contains(t, out, `"asset_id": "W2"`)
	assert.NotContains(t, out, `"asset_id": "H1"`)
	assert.Contains(t, out, `"total_matches": 2`)
}

func TestQuery_Table(t *testing.T) {
	csv := writeCatalogue(t)
	out, err := run(t, "query", "--csv", csv, "--as-of", "2025-01-01", "wind sites over 100kW in Berkshire")
	require.NoError(t, err)
	assert.Contains(t, out, "ASSET")
	assert.Contains(t, out, "2 of 2 matches")
}

func TestQuery_Export(t *testing.T) {
	csv := writeCatalogue(t)
	dest := filepath.Join(t.TempDir(), "answer.xlsx")
	out, err := run(t, "query", "--csv", csv, "--as-of", "2025-01-01", "--export", dest, "wind sites over 100kW in Berkshire")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+dest)
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestQuery_NeedsCatalogue(t *testing.T) {
	t.Setenv("CATALOGUE_CSV", "")
	_, err := run(t, "query", "wind sites in Berkshire")
	assert.ErrorIs(t, err, errNoCatalogue)
}

func TestProject(t *testing.T) {
	csv := writeCatalogue(t)
	out, err := run(t, "project", "W1", "--csv", csv, "--as-of", "2025-01-01", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"schedule"`)
	assert.Contains(t, out, `"asset_id": "W1"`)

	_, err = run(t, "project", "NOPE", "--csv", csv)
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	out, err := run(t, "parse", "wind sites in Berkshire")
	require.NoError(t, err)
	assert.Contains(t, out, `"RG"`)
}
