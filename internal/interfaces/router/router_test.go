package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"fit-atlas/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const catalogueCSV = `asset_id,technology,capacity_kw,postcode,commission_date,annual_generation_kwh
W1,Wind,250,RG1 2AB,2015-06-01,500000
W2,Wind,600,SL4 1AA,2014-03-01,1000000
H1,Hydro,50,LL11 2BB,2012-06-01,150000
`

func testServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fit.csv")
	require.NoError(t, os.WriteFile(path, []byte(catalogueCSV), 0o600))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	srv, err := Build(&config.Config{Env: "test", CatalogueCSV: path, AdminKey: "k", ResultLimit: 50}, nil, rdb)
	require.NoError(t, err)
	return srv, mr
}

func TestServer_ColdThenLoaded(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := srv.App.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	body, _ := json.Marshal(map[string]string{"text": "wind in Berkshire"})
	req := httptest.NewRequest("POST", "/api/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = srv.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, err = srv.App.Test(httptest.NewRequest("POST", "/api/v1/catalogue/refresh?key=k", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("POST", "/api/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = srv.App.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, float64(2), out["metadata"].(map[string]interface{})["total_matches"])

	resp, err = srv.App.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestServer_HealthCountersAndMetrics(t *testing.T) {
	srv, _ := testServer(t)
	_, err := srv.Refresher.Refresh(context.Background())
	require.NoError(t, err)

	resp, err := srv.App.Test(httptest.NewRequest("GET", "/api/v1/places/kent", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	n, err := srv.Redis.Get(context.Background(), "health:global:req_total").Int()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp, err = srv.App.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "fit_atlas_catalogue_assets")
}

func TestServer_AdminRoutesNeedKey(t *testing.T) {
	srv, _ := testServer(t)
	for _, r := range []struct{ method, path string }{
		{"POST", "/api/v1/catalogue/refresh"},
		{"POST", "/health/reset"},
		{"GET", "/api/v1/query/audits"},
	} {
		resp, err := srv.App.Test(httptest.NewRequest(r.method, r.path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, r.path)
	}
}

func TestBuild_DatabaseCatalogue(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	srv, err := Build(&config.Config{}, db, nil)
	require.NoError(t, err)
	assert.Equal(t, "database", srv.Refresher.Status().Source)
	assert.NotNil(t, srv.Query.Audit)
	assert.Nil(t, srv.Query.Conversations)
}

func TestHandler_ServesNetHTTP(t *testing.T) {
	srv, _ := testServer(t)
	_, err := srv.Refresher.Refresh(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	Handler(srv.App).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/places/berkshire", nil))
	assert.Equal(t, fiber.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"RG"`)
}
