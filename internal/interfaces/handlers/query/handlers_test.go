package query

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fit-atlas/internal/application/financial"
	"fit-atlas/internal/application/geo"
	"fit-atlas/internal/application/index"
	"fit-atlas/internal/application/parser"
	querysvc "fit-atlas/internal/application/query"
	"fit-atlas/internal/application/tariff"
	"fit-atlas/internal/domain"
	"fit-atlas/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var asOf = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func gen(v float64) *float64 { return &v }

func setupQueryTest(t *testing.T, loaded bool) (*fiber.App, *querysvc.Service) {
	t.Helper()
	rows := []domain.Asset{
		{ID: "W1", Technology: domain.Wind, CapacityKW: 250, PostcodePrefix: "RG", CommissionDate: time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC), AnnualGenerationKWh: gen(500000)},
		{ID: "W2", Technology: domain.Wind, CapacityKW: 600, PostcodePrefix: "SL", CommissionDate: time.Date(2014, 3, 1, 0, 0, 0, 0, time.UTC), AnnualGenerationKWh: gen(1000000)},
		{ID: "H1", Technology: domain.Hydro, CapacityKW: 50, PostcodePrefix: "LL", CommissionDate: time.Date(2012, 6, 1, 0, 0, 0, 0, time.UTC), AnnualGenerationKWh: gen(150000)},
	}
	idx := index.New(nil)
	if loaded {
		snap, _ := index.Build(rows, asOf)
		idx.Swap(snap)
	}
	places := geo.MustDefault()
	svc := &querysvc.Service{
		Parser: parser.New(places),
		Index:  idx,
		Engine: financial.NewEngine(tariff.MustDefault(), places),
		Now:    func() time.Time { return asOf },
	}
	h := &Handlers{Service: svc}

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Use(middleware.Tracing(), middleware.Session())
	app.Post("/api/v1/query", h.Query)
	app.Post("/api/v1/query/parse", h.Parse)
	app.Post("/api/v1/query/export", h.Export)
	app.Get("/api/v1/assets/:id", h.Asset)
	app.Get("/api/v1/query/audits", h.RecentAudits)
	return app, svc
}

func post(t *testing.T, app *fiber.App, path string, body interface{}, header ...string) (*http.Response, map[string]interface{}) {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func resultIDs(out map[string]interface{}) []string {
	ids := []string{}
	data := out["data"].(map[string]interface{})
	for _, r := range data["results"].([]interface{}) {
		ids = append(ids, r.(map[string]interface{})["asset_id"].(string))
	}
	return ids
}

func TestQuery_OK(t *testing.T) {
	app, _ := setupQueryTest(t, true)
	resp, out := post(t, app, "/api/v1/query", map[string]string{"text": "wind sites over 100kW in Berkshire"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, []string{"W1", "W2"}, resultIDs(out))

	first := out["data"].(map[string]interface{})["results"].([]interface{})[0].(map[string]interface{})
	for _, key := range []string{"asset_id", "technology", "capacity_kw", "postcode_prefix", "years_remaining",
		"annual_income", "total_remaining_value", "repowering_category", "expiry_date", "tariff_coverage_gap"} {
		assert.Contains(t, first, key)
	}
	assert.NotContains(t, first, "asset")
	assert.NotContains(t, first, "projection")
	assert.Equal(t, "RG", first["postcode_prefix"])

	meta := out["metadata"].(map[string]interface{})
	assert.Equal(t, float64(2), meta["total_matches"])
	assert.Equal(t, "LIST", meta["intent"])
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "2025-01-01T00:00:00Z", data["as_of_date"])
}

func TestQuery_AsOfDate(t *testing.T) {
	app, _ := setupQueryTest(t, true)
	resp, out := post(t, app, "/api/v1/query", map[string]string{"text": "wind in Berkshire", "as_of_date": "2030-01-01"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "2030-01-01T00:00:00Z", data["as_of_date"])

	resp, out = post(t, app, "/api/v1/query", map[string]string{"text": "wind in Berkshire", "as_of_date": "soon"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", out["status"])
}

func TestQuery_Refusals(t *testing.T) {
	app, _ := setupQueryTest(t, true)

	resp, out := post(t, app, "/api/v1/query", map[string]string{"text": "show me everything"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	details := out["error"].(map[string]interface{})["details"].(map[string]interface{})
	warnings := details["warnings"].([]interface{})
	codes := []interface{}{}
	for _, w := range warnings {
		codes = append(codes, w.(map[string]interface{})["code"])
	}
	assert.Contains(t, codes, string(domain.WarnInsufficientlySpecific))

	resp, _ = post(t, app, "/api/v1/query", map[string]string{"text": "wind between 500kw and 100kw"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestQuery_BadRequests(t *testing.T) {
	app, _ := setupQueryTest(t, true)

	resp, _ := post(t, app, "/api/v1/query", map[string]string{"text": "   "})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest("POST", "/api/v1/query", bytes.NewReader([]byte("not json")))
	r, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, r.StatusCode)

	resp, _ = post(t, app, "/api/v1/query", map[string]string{"text": "wind in Kent", "session_id": "has spaces"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, app, "/api/v1/query", map[string]interface{}{"text": "wind in Kent", "max_results": -1})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestQuery_NotLoaded(t *testing.T) {
	app, _ := setupQueryTest(t, false)
	resp, _ := post(t, app, "/api/v1/query", map[string]string{"text": "wind in Berkshire"})
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestQuery_SessionHeaderCarriesFollowUp(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	app, svc := setupQueryTest(t, true)
	svc.Conversations = &querysvc.RedisConversations{RDB: rdb}

	resp, _ := post(t, app, "/api/v1/query", map[string]string{"text": "wind sites in Berkshire"}, middleware.SessionHeader, "abc")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, out := post(t, app, "/api/v1/query", map[string]string{"text": "what about in Wales"}, middleware.SessionHeader, "abc")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, true, data["follow_up_applied"])
	assert.Equal(t, []string{}, resultIDs(out))
}

func TestParse(t *testing.T) {
	app, _ := setupQueryTest(t, false)
	resp, out := post(t, app, "/api/v1/query/parse", map[string]string{"text": "hydro in Wales"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	filter := out["data"].(map[string]interface{})["filter"].(map[string]interface{})
	assert.Equal(t, "Hydro", filter["technology"])

	resp, _ = post(t, app, "/api/v1/query/parse", map[string]string{"text": ""})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestExport(t *testing.T) {
	app, _ := setupQueryTest(t, true)

	b, _ := json.Marshal(map[string]string{"text": "wind in Berkshire"})
	req := httptest.NewRequest("POST", "/api/v1/query/export?format=xlsx", bytes.NewReader(b))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "fit-query-20250101.xlsx")
	raw, _ := io.ReadAll(resp.Body)
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("results")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	req = httptest.NewRequest("POST", "/api/v1/query/export?format=pdf", bytes.NewReader(b))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	req = httptest.NewRequest("POST", "/api/v1/query/export?format=docx", bytes.NewReader(b))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAsset(t *testing.T) {
	app, _ := setupQueryTest(t, true)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/assets/W1?as_of=2025-01-01", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	data := out["data"].(map[string]interface{})
	assert.Len(t, data["schedule"].([]interface{}), 10)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/assets/NOPE", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/assets/W1?as_of=yesterday", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRecentAudits(t *testing.T) {
	app, _ := setupQueryTest(t, true)
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/query/audits", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.QueryAudit{}))
	audits := &querysvc.GormAudit{DB: db}

	_, svc := setupQueryTest(t, true)
	svc.Audit = audits
	h := &Handlers{Service: svc, Audits: audits}
	withAudit := fiber.New()
	withAudit.Post("/api/v1/query", h.Query)
	withAudit.Get("/api/v1/query/audits", h.RecentAudits)

	post(t, withAudit, "/api/v1/query", map[string]string{"text": "wind in Berkshire"})
	post(t, withAudit, "/api/v1/query", map[string]string{"text": "show me everything"})

	resp, err = withAudit.Test(httptest.NewRequest("GET", "/api/v1/query/audits?limit=10", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, float64(2), out["metadata"].(map[string]interface{})["count"])
}
