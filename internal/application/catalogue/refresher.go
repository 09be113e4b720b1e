package catalogue

import (
	"context"
	"errors"
	"sync"
	"time"

	"fit-atlas/internal/application/index"
	"fit-atlas/internal/observability/metrics"

	"github.com/rs/zerolog/log"
)

var (
	ErrRefreshInProgress = errors.New("A catalogue refresh is already running")
	ErrEmptyCatalogue    = errors.New("Catalogue source returned no valid rows")
)

// Status is reported by the catalogue status endpoint.
type Status struct {
	Source      string            `json:"source"`
	Loaded      bool              `json:"loaded"`
	Refreshing  bool              `json:"refreshing"`
	Refreshes   int               `json:"refreshes"`
	LastRefresh *time.Time        `json:"last_refresh,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	LastBuild   *index.BuildStats `json:"last_build,omitempty"`
	Snapshot    *index.Stats      `json:"snapshot,omitempty"`
}

// Refresher builds snapshots off to the side and swaps them into the index.
// Readers of the index never wait on it.
type Refresher struct {
	Loader   Loader
	Index    *index.Index
	Interval time.Duration
	Now      func() time.Time

	running sync.Mutex

	mu         sync.RWMutex
	refreshing bool
	refreshes  int
	lastAt     *time.Time
	lastErr    string
	lastBuild  *index.BuildStats
}

func (r *Refresher) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

// Refresh loads, builds and swaps a new snapshot. A failed or empty build leaves
// the current snapshot in place.
func (r *Refresher) Refresh(ctx context.Context) (index.BuildStats, error) {
	if r.Loader == nil {
		return index.BuildStats{}, ErrNoSource
	}
	if !r.running.TryLock() {
		return index.BuildStats{}, ErrRefreshInProgress
	}
	defer r.running.Unlock()

	r.setRefreshing(true)
	start := time.Now()
	stats, err := r.rebuild(ctx)
	elapsed := time.Since(start)
	r.record(stats, err)
	metrics.ObserveRefresh(err, stats.Indexed, stats.Rejected, elapsed)

	if err != nil {
		log.Error().Err(err).Str("source", r.Loader.Source()).Msg("Catalogue refresh failed")
		return stats, err
	}
	log.Info().Str("source", r.Loader.Source()).Int("indexed", stats.Indexed).
		Int("rejected", stats.Rejected).Int64("ms", elapsed.Milliseconds()).Msg("Catalogue refreshed")
	for reason, n := range stats.Reasons {
		log.Warn().Str("reason", reason).Int("rows", n).Msg("Catalogue rows rejected")
	}
	return stats, nil
}

func (r *Refresher) rebuild(ctx context.Context) (index.BuildStats, error) {
	rows, err := r.Loader.Load(ctx)
	if err != nil {
		return index.BuildStats{}, err
	}
	snap, stats := index.Build(rows, r.now())
	if snap.Len() == 0 {
		return stats, ErrEmptyCatalogue
	}
	r.Index.Swap(snap)
	return stats, nil
}

func (r *Refresher) setRefreshing(v bool) {
	r.mu.Lock()
	r.refreshing = v
	r.mu.Unlock()
}

func (r *Refresher) record(stats index.BuildStats, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshing = false
	r.refreshes++
	at := r.now()
	r.lastAt = &at
	r.lastBuild = &stats
	r.lastErr = ""
	if err != nil {
		r.lastErr = err.Error()
	}
}

// Run refreshes on every tick of Interval until ctx is done. Interval <= 0 disables it.
func (r *Refresher) Run(ctx context.Context) {
	if r.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); errors.Is(err, ErrRefreshInProgress) {
				log.Info().Msg("Skipping scheduled refresh; one is already running")
			}
		}
	}
}

func (r *Refresher) Status() Status {
	r.mu.RLock()
	st := Status{
		Refreshing:  r.refreshing,
		Refreshes:   r.refreshes,
		LastRefresh: r.lastAt,
		LastError:   r.lastErr,
		LastBuild:   r.lastBuild,
	}
	r.mu.RUnlock()
	if r.Loader != nil {
		st.Source = r.Loader.Source()
	}
	if snap, err := r.Index.Load(); err == nil {
		stats := snap.Stats()
		st.Loaded = true
		st.Snapshot = &stats
	}
	return st
}
