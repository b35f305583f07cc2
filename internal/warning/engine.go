// Package warning evaluates threshold rules against capacity snapshots and
// deduplicates the resulting alerts.
package warning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/GoAffiliate/tiergate/internal/pkg/logger"
	"github.com/GoAffiliate/tiergate/internal/pkg/metrics"
	"github.com/GoAffiliate/tiergate/internal/tier"
)

// Threshold cut points, evaluated in rule order.
const (
	clicksWarnPercent = 80.0
	clicksCritPercent = 95.0
	tierWarnPercent   = 90.0
	tierCritPercent   = 98.0
)

// Sink receives fired warnings for history keeping. Delivery is best
// effort; a sink failure never blocks evaluation.
type Sink interface {
	Record(ctx context.Context, w model.Warning) error
}

// Engine fires each distinct threshold key at most once for its lifetime.
// Crossing back below a threshold and up again does not re-arm a key; only
// Reset does. This is a one-shot-per-session policy.
type Engine struct {
	tiers      *tier.Registry
	displayFor time.Duration
	now        func() time.Time

	mu     sync.Mutex
	fired  map[string]struct{}
	active []model.Warning
	sink   Sink
}

func New(tiers *tier.Registry, displayFor time.Duration) *Engine {
	if displayFor <= 0 {
		displayFor = 30 * time.Second
	}
	return &Engine{
		tiers:      tiers,
		displayFor: displayFor,
		now:        time.Now,
		fired:      make(map[string]struct{}),
	}
}

// SetSink wires an optional warning-history sink.
func (e *Engine) SetSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = s
}

// Evaluate runs the threshold rules against the snapshot and returns the
// newly fired warnings, in rule order. An empty result means no new
// crossings.
func (e *Engine) Evaluate(snap *model.CapacitySnapshot) []model.Warning {
	if snap == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []model.Warning
	clickPct := snap.Clicks.Percent()

	if clickPct > clicksWarnPercent {
		out = e.fire(out, model.Warning{
			Key:        "clicks_80",
			Resource:   "clicks",
			Severity:   model.SeverityWarning,
			Message:    fmt.Sprintf("Global clicks at %.1f%% of the daily limit", clickPct),
			Persistent: true,
		})
	}
	if clickPct > clicksCritPercent {
		out = e.fire(out, model.Warning{
			Key:        "clicks_95",
			Resource:   "clicks",
			Severity:   model.SeverityCritical,
			Message:    fmt.Sprintf("Global clicks at %.1f%% of the daily limit", clickPct),
			Persistent: true,
		})
	}
	for _, d := range e.tiers.Ordered() {
		if pct := snap.Tier(d.Name).PercentFull; pct > tierWarnPercent {
			out = e.fire(out, model.Warning{
				Key:        fmt.Sprintf("tier_%s_90", d.Name),
				Resource:   "tier:" + string(d.Name),
				Severity:   model.SeverityWarning,
				Message:    fmt.Sprintf("Tier %s is %.1f%% full", d.Name, pct),
				Persistent: false,
			})
		}
	}
	for _, d := range e.tiers.Ordered() {
		if pct := snap.Tier(d.Name).PercentFull; pct > tierCritPercent {
			out = e.fire(out, model.Warning{
				Key:        fmt.Sprintf("tier_%s_98", d.Name),
				Resource:   "tier:" + string(d.Name),
				Severity:   model.SeverityCritical,
				Message:    fmt.Sprintf("Tier %s is %.1f%% full", d.Name, pct),
				Persistent: true,
			})
		}
	}
	return out
}

// fire emits the warning unless its key already fired. Caller holds e.mu.
func (e *Engine) fire(out []model.Warning, w model.Warning) []model.Warning {
	if _, seen := e.fired[w.Key]; seen {
		return out
	}
	e.fired[w.Key] = struct{}{}
	w.FiredAt = e.now()
	e.active = append(e.active, w)

	metrics.WarningsFired.WithLabelValues(string(w.Severity)).Inc()
	logger.Warn("Capacity warning fired", "key", w.Key, "severity", w.Severity, "message", w.Message)
	if e.sink != nil {
		if err := e.sink.Record(context.Background(), w); err != nil {
			logger.Error("Failed to record warning history", "key", w.Key, "error", err)
		}
	}
	return append(out, w)
}

// Active returns the warnings still worth showing: persistent ones until
// Reset, non-persistent ones until their display duration lapses or the
// observer dismisses them.
func (e *Engine) Active() []model.Warning {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	kept := e.active[:0]
	for _, w := range e.active {
		if !w.Persistent && now.Sub(w.FiredAt) >= e.displayFor {
			continue
		}
		kept = append(kept, w)
	}
	e.active = kept

	out := make([]model.Warning, len(e.active))
	copy(out, e.active)
	return out
}

// Dismiss drops a non-persistent warning from the active list. The fired
// set is untouched, so the key will not re-fire.
func (e *Engine) Dismiss(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, w := range e.active {
		if w.Key == key && !w.Persistent {
			e.active = append(e.active[:i], e.active[i+1:]...)
			return
		}
	}
}

// Reset clears the fired set and the active list; every threshold may fire
// again afterwards.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fired = make(map[string]struct{})
	e.active = nil
	logger.Info("Warning state reset")
}
