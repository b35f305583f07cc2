// Package ledger owns the authoritative in-process view of the latest
// capacity snapshot and answers the derived admission queries.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoAffiliate/tiergate/internal/backend"
	"github.com/GoAffiliate/tiergate/internal/config"
	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/GoAffiliate/tiergate/internal/pkg/logger"
	"github.com/GoAffiliate/tiergate/internal/pkg/metrics"
	"github.com/GoAffiliate/tiergate/internal/tier"
)

// Status cut points. The warning engine and the UI depend on these exact
// values; they are a contract, not tunables.
const (
	criticalClickPercent = 95.0
	warningClickPercent  = 80.0
	pauseClickPercent    = 90.0
	pauseTierPercent     = 95.0
)

type Ledger struct {
	client  backend.Client
	tiers   *tier.Registry
	program config.ProgramConfig
	now     func() time.Time

	mu        sync.RWMutex
	snapshot  *model.CapacitySnapshot
	lastError error
	failedAt  time.Time

	// refreshMu serializes refreshes; a caller that blocked behind an
	// in-flight refresh reuses its result instead of fetching again.
	refreshMu sync.Mutex

	cbMu      sync.Mutex
	callbacks []func(*model.CapacitySnapshot)

	ctx    context.Context
	cancel context.CancelFunc
}

func New(client backend.Client, tiers *tier.Registry, program config.ProgramConfig) *Ledger {
	ctx, cancel := context.WithCancel(context.Background())
	return &Ledger{
		client:  client,
		tiers:   tiers,
		program: program,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnUpdate registers a callback invoked after every successful refresh with
// the new snapshot. Callbacks run outside the snapshot lock.
func (l *Ledger) OnUpdate(fn func(*model.CapacitySnapshot)) {
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
	l.callbacks = append(l.callbacks, fn)
}

// Refresh fetches a fresh snapshot and atomically replaces the held one.
// On failure the prior snapshot stays in place. Concurrent refreshes are
// serialized: a refresh that completed while the caller waited for its turn
// satisfies the call without a duplicate fetch.
func (l *Ledger) Refresh(ctx context.Context) (*model.CapacitySnapshot, error) {
	entered := l.now()

	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	if cur := l.Current(); cur != nil && cur.FetchedAt.After(entered) {
		return cur, nil
	}

	snap, err := l.client.GetCapacity(ctx)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues("failure").Inc()
		l.mu.Lock()
		l.lastError = err
		l.failedAt = l.now()
		l.mu.Unlock()
		logger.Error("Capacity refresh failed, keeping last snapshot", "error", err)
		return nil, fmt.Errorf("capacity refresh: %w", err)
	}
	snap.FetchedAt = l.now()

	l.mu.Lock()
	l.snapshot = snap
	l.lastError = nil
	l.mu.Unlock()

	metrics.RefreshesTotal.WithLabelValues("success").Inc()
	logger.Debug("Capacity snapshot refreshed",
		"clicks_used", snap.Clicks.Used, "clicks_limit", snap.Clicks.Limit,
		"tiers", len(snap.Tiers))

	l.publish(snap)
	return snap, nil
}

// publish fans the snapshot out to registered callbacks. One callback's
// panic must not starve the rest.
func (l *Ledger) publish(snap *model.CapacitySnapshot) {
	l.cbMu.Lock()
	cbs := make([]func(*model.CapacitySnapshot), len(l.callbacks))
	copy(cbs, l.callbacks)
	l.cbMu.Unlock()

	for _, fn := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Snapshot callback panicked", "panic", r)
				}
			}()
			fn(snap)
		}()
	}
}

// Current returns the latest snapshot, nil before the first successful
// refresh. Snapshots are immutable; the pointer is safe to share.
func (l *Ledger) Current() *model.CapacitySnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Stale reports whether the held snapshot has outlived a failed refresh:
// data is present but possibly outdated.
func (l *Ledger) Stale() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot != nil && l.lastError != nil && l.failedAt.After(l.snapshot.FetchedAt)
}

// StartPeriodic refreshes on a fixed cadence until Stop is called. An
// in-flight fetch is bounded by the backend client timeout, so a hung call
// cannot starve later ticks forever.
func (l *Ledger) StartPeriodic(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.ctx.Done():
				return
			case <-ticker.C:
				if _, err := l.Refresh(l.ctx); err != nil {
					logger.Warn("Periodic capacity refresh failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the periodic refresh. An in-flight backend call is left to
// finish; its result lands harmlessly or is discarded with the context.
func (l *Ledger) Stop() {
	l.cancel()
}

// SystemStatus classifies global click utilization. The thresholds are
// exact: >95 critical, >80 warning, otherwise healthy.
func (l *Ledger) SystemStatus() model.SystemStatus {
	snap := l.Current()
	if snap == nil {
		return model.SystemStatus{
			Level:   model.StatusUnknown,
			Message: "Loading system status...",
			Color:   "gray",
		}
	}

	p := snap.Clicks.Percent()
	status := model.SystemStatus{Percent: p, Stale: l.Stale()}
	switch {
	case p > criticalClickPercent:
		status.Level = model.StatusCritical
		status.Message = fmt.Sprintf("System critical: %.1f%% of daily clicks used", p)
		status.Color = "red"
	case p > warningClickPercent:
		status.Level = model.StatusWarning
		status.Message = fmt.Sprintf("System under load: %.1f%% of daily clicks used", p)
		status.Color = "orange"
	default:
		status.Level = model.StatusHealthy
		status.Message = fmt.Sprintf("System healthy: %.1f%% of daily clicks used", p)
		status.Color = "green"
	}
	return status
}

// Remaining returns the remaining count for a global resource, falling back
// to the configured ceiling before the first snapshot so callers can render
// optimistic defaults.
func (l *Ledger) Remaining(resource string) int {
	snap := l.Current()
	switch resource {
	case "clicks":
		if snap == nil {
			return l.program.DailyClickLimit
		}
		return snap.Clicks.Remaining
	case "sales":
		if snap == nil {
			return l.program.DailySaleLimit
		}
		return snap.Sales.Remaining
	default:
		return 0
	}
}

// ShouldPauseSignups is true when any tier is over 95% full or global
// clicks are over 90%. Either condition alone gates signups. The scan
// covers every tier the snapshot reports, not just locally configured
// ones; config skew with the backend must not reopen a full tier.
func (l *Ledger) ShouldPauseSignups() bool {
	snap := l.Current()
	if snap == nil {
		return false
	}
	if snap.Clicks.Percent() > pauseClickPercent {
		return true
	}
	for _, tc := range snap.Tiers {
		if tc.PercentFull > pauseTierPercent {
			return true
		}
	}
	return false
}

// RecommendedTier picks the tier with the strictly largest available count;
// ties resolve to the earliest configured tier. Before the first snapshot
// it defaults to the lowest tier.
func (l *Ledger) RecommendedTier() model.TierName {
	ordered := l.tiers.Ordered()
	snap := l.Current()
	if snap == nil {
		return l.tiers.Lowest().Name
	}

	best := ordered[0].Name
	bestAvail := snap.Tier(ordered[0].Name).Available
	for _, d := range ordered[1:] {
		if avail := snap.Tier(d.Name).Available; avail > bestAvail {
			best = d.Name
			bestAvail = avail
		}
	}
	return best
}
