package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"fit-atlas/internal/application/catalogue"
	healthsvc "fit-atlas/internal/application/health"
	"fit-atlas/internal/application/index"
	"fit-atlas/internal/domain"
	"fit-atlas/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHealthHandlers(t *testing.T, loaded bool) *Handlers {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	idx := index.New(nil)
	if loaded {
		snap, _ := index.Build([]domain.Asset{{ID: "A", Technology: domain.Wind, CapacityKW: 10, PostcodePrefix: "RG",
			CommissionDate: time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)}}, time.Now())
		idx.Swap(snap)
	}
	ref := &catalogue.Refresher{Index: idx}
	return &Handlers{
		Rdb:       rdb,
		Collector: &healthsvc.Collector{Redis: rdb, Catalogue: ref},
	}
}

func TestReset(t *testing.T) {
	h := setupHealthHandlers(t, true)
	app := fiber.New()
	app.Post("/health/reset", middleware.RequireAdminKey("test-admin-key"), h.Reset)

	resp, err := app.Test(httptest.NewRequest("POST", "/health/reset?key=wrong", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	ctx := context.Background()
	require.NoError(t, h.Rdb.Set(ctx, middleware.KeyReqTotal, "5", 0).Err())
	resp, err = app.Test(httptest.NewRequest("POST", "/health/reset?key=test-admin-key", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "Stats reset successfully", out["message"])

	_, err = h.Rdb.Get(ctx, middleware.KeyReqTotal).Result()
	assert.ErrorIs(t, err, redis.Nil)
	_, err = h.Rdb.Get(ctx, middleware.KeyStartTime).Result()
	assert.NoError(t, err)
}

func TestJSON(t *testing.T) {
	app := fiber.New()
	app.Get("/health/json", setupHealthHandlers(t, true).JSON)
	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "fit-atlas-api", out["service"])
	assert.Equal(t, "ok", out["status"])
	assert.Contains(t, out, "catalogue")
	assert.Contains(t, out, "dependencies")

	cold := fiber.New()
	cold.Get("/health/json", setupHealthHandlers(t, false).JSON)
	resp, err = cold.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestErrors(t *testing.T) {
	h := setupHealthHandlers(t, true)
	app := fiber.New()
	app.Get("/health/errors", h.Errors)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/errors", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	var empty []interface{}
	require.NoError(t, json.Unmarshal(body, &empty))
	assert.Empty(t, empty)

	h.Rdb.LPush(context.Background(), middleware.KeyErrorLog, `{"path":"/api/v1/query","method":"POST","message":"test"}`)
	resp, err = app.Test(httptest.NewRequest("GET", "/health/errors", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "test", entries[0]["message"])
}

func TestDashboard(t *testing.T) {
	app := fiber.New()
	app.Get("/", setupHealthHandlers(t, true).Dashboard)
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "All Systems Operational")
}
