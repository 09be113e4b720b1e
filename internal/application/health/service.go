// Package health collects liveness data for the status page and /health/json.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"fit-atlas/internal/application/catalogue"
	"fit-atlas/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// DBPinger is optional for health check. If nil, database is reported as disconnected.
type DBPinger interface {
	Ping() error
}

// CatalogueReporter exposes the refresher status.
type CatalogueReporter interface {
	Status() catalogue.Status
}

// Probe is an optional HTTP dependency such as the suggestion source.
type Probe struct {
	Name string
	URL  string
}

type CollectResult struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Catalogue    *catalogue.Status    `json:"catalogue,omitempty"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64      `json:"uptimeSeconds"`
	Memory        MemoryInfo `json:"memory"`
	Goroutines    int        `json:"goroutines"`
	Platform      string     `json:"platform"`
	GoVersion     string     `json:"goVersion"`
}

type MemoryInfo struct {
	Alloc    int `json:"alloc"`
	HeapUsed int `json:"heapUsed"`
}

type TrafficInfo struct {
	TotalRequests   int         `json:"totalRequests"`
	SuccessCount    int         `json:"successCount"`
	FailedCount     int         `json:"failedCount"`
	SuccessRate     string      `json:"successRate"`
	AvgResponseTime interface{} `json:"avgResponseTime"`
	LastRequest     interface{} `json:"lastRequest"`
}

type DepStatus struct {
	Status string      `json:"status"`
	PingMs interface{} `json:"pingMs"`
}

const (
	StatusOK    = "ok"
	StatusIssue = "issue"
)

// Collector gathers health data. DB and Probes are optional.
type Collector struct {
	Redis     *redis.Client
	DB        DBPinger
	Catalogue CatalogueReporter
	Probes    []Probe
	Client    *http.Client
}

// Collect reports "ok" when the catalogue is loaded and every configured
// backend (database, redis) answers.
func (h *Collector) Collect(ctx context.Context) CollectResult {
	result := CollectResult{Dependencies: make(map[string]DepStatus)}
	healthy := true

	if h.DB != nil {
		dep := DepStatus{Status: "error"}
		start := time.Now()
		if err := h.DB.Ping(); err == nil {
			ms := time.Since(start).Milliseconds()
			dep = DepStatus{Status: "connected", PingMs: &ms}
		} else {
			healthy = false
		}
		result.Dependencies["database"] = dep
	} else {
		result.Dependencies["database"] = DepStatus{Status: "disconnected"}
	}

	startTimeMs := time.Now().UnixMilli()
	result.Traffic = TrafficInfo{AvgResponseTime: 0, SuccessRate: "100"}
	if h.Redis != nil {
		start := time.Now()
		if err := h.Redis.Ping(ctx).Err(); err == nil {
			ms := time.Since(start).Milliseconds()
			result.Dependencies["redis"] = DepStatus{Status: "connected", PingMs: &ms}
			startTimeMs = readTraffic(ctx, h.Redis, &result.Traffic, startTimeMs)
		} else {
			result.Dependencies["redis"] = DepStatus{Status: "error"}
			healthy = false
		}
	} else {
		result.Dependencies["redis"] = DepStatus{Status: "disconnected"}
	}

	if h.Catalogue != nil {
		st := h.Catalogue.Status()
		result.Catalogue = &st
		dep := DepStatus{Status: "loaded"}
		if !st.Loaded {
			dep.Status = "empty"
			healthy = false
		}
		result.Dependencies["catalogue"] = dep
	} else {
		healthy = false
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	for _, p := range h.Probes {
		if p.URL == "" {
			continue
		}
		dep := DepStatus{Status: "unreachable"}
		if ms := httpPing(ctx, client, p.URL); ms != nil {
			dep = DepStatus{Status: "reachable", PingMs: ms}
		}
		result.Dependencies[p.Name] = dep
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	uptimeSec := (time.Now().UnixMilli() - startTimeMs) / 1000
	if uptimeSec < 0 {
		uptimeSec = 0
	}
	result.Runtime = RuntimeInfo{
		UptimeSeconds: uptimeSec,
		Memory:        MemoryInfo{Alloc: int(m.Alloc / 1024 / 1024), HeapUsed: int(m.HeapInuse / 1024 / 1024)},
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}

	result.Status = StatusIssue
	if healthy {
		result.Status = StatusOK
	}
	return result
}

func readTraffic(ctx context.Context, rdb *redis.Client, stats *TrafficInfo, startTimeMs int64) int64 {
	totalReq, _ := rdb.Get(ctx, middleware.KeyReqTotal).Result()
	totalErr, _ := rdb.Get(ctx, middleware.KeyReqErrors).Result()
	totalTime, _ := rdb.Get(ctx, middleware.KeyResTime).Result()
	resCount, _ := rdb.Get(ctx, middleware.KeyResCount).Result()
	startTimeStr, _ := rdb.Get(ctx, middleware.KeyStartTime).Result()
	lastReqStr, _ := rdb.Get(ctx, middleware.KeyLastReq).Result()

	if startTimeStr != "" {
		if t, err := strconv.ParseInt(startTimeStr, 10, 64); err == nil {
			startTimeMs = t
		}
	} else {
		rdb.Set(ctx, middleware.KeyStartTime, startTimeMs, 0)
	}

	stats.TotalRequests, _ = strconv.Atoi(totalReq)
	stats.FailedCount, _ = strconv.Atoi(totalErr)
	stats.SuccessCount = stats.TotalRequests - stats.FailedCount
	if stats.TotalRequests > 0 {
		stats.SuccessRate = strconv.FormatFloat(float64(stats.SuccessCount)/float64(stats.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(totalTime, 64)
	countSum, _ := strconv.Atoi(resCount)
	if countSum > 0 {
		stats.AvgResponseTime = strconv.FormatFloat(timeSum/float64(countSum), 'f', 2, 64)
	}
	if lastReqStr != "" {
		var lastReq map[string]interface{}
		_ = json.Unmarshal([]byte(lastReqStr), &lastReq)
		stats.LastRequest = lastReq
	}
	return startTimeMs
}

func httpPing(ctx context.Context, client *http.Client, url string) *int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	ms := time.Since(start).Milliseconds()
	return &ms
}
