// Package admission answers per-affiliate questions: which tier am I in,
// may I perform this action, can I upgrade, where does a signup land.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoAffiliate/tiergate/internal/backend"
	"github.com/GoAffiliate/tiergate/internal/cache"
	"github.com/GoAffiliate/tiergate/internal/config"
	"github.com/GoAffiliate/tiergate/internal/ledger"
	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/GoAffiliate/tiergate/internal/pkg/apperrors"
	"github.com/GoAffiliate/tiergate/internal/pkg/logger"
	"github.com/GoAffiliate/tiergate/internal/pkg/metrics"
	"github.com/GoAffiliate/tiergate/internal/tier"
	"github.com/GoAffiliate/tiergate/internal/usage"
	"golang.org/x/time/rate"
)

// Request limiter defaults per affiliate, matching a busy dashboard rather
// than the daily click budget.
const (
	limiterQPS   = 10
	limiterBurst = 20
)

// cachedStatus pairs a fetched tier status with the local admit counter at
// fetch time, so remaining capacity can be tightened between fetches.
type cachedStatus struct {
	status             model.TierStatus
	localClicksAtFetch int
}

type Service struct {
	client backend.Client
	ledger *ledger.Ledger
	tiers  *tier.Registry
	usage  usage.Store

	statusCache   *cache.Cache[cachedStatus]
	capacityCache *cache.Cache[model.TierCapacity]

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	lisMu     sync.Mutex
	listeners []func(model.TierStatus)

	now func() time.Time
}

func New(client backend.Client, led *ledger.Ledger, tiers *tier.Registry, store usage.Store, cfg config.RefreshConfig) *Service {
	statusTTL := time.Duration(cfg.TierStatusTTLSeconds) * time.Second
	if statusTTL <= 0 {
		statusTTL = 5 * time.Minute
	}
	capacityTTL := time.Duration(cfg.TierCapacityTTLSeconds) * time.Second
	if capacityTTL <= 0 {
		capacityTTL = time.Minute
	}

	return &Service{
		client:        client,
		ledger:        led,
		tiers:         tiers,
		usage:         store,
		statusCache:   cache.New[cachedStatus](statusTTL),
		capacityCache: cache.New[model.TierCapacity](capacityTTL),
		limiters:      make(map[string]*rate.Limiter),
		now:           time.Now,
	}
}

// AddListener registers a callback for freshly fetched tier statuses.
// Listener failures are contained; fan-out is best effort.
func (s *Service) AddListener(fn func(model.TierStatus)) {
	s.lisMu.Lock()
	defer s.lisMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notifyListeners(status model.TierStatus) {
	s.lisMu.Lock()
	fns := make([]func(model.TierStatus), len(s.listeners))
	copy(fns, s.listeners)
	s.lisMu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Tier status listener panicked", "panic", r)
				}
			}()
			fn(status)
		}()
	}
}

// CurrentTier returns the affiliate's tier status, cache-checked. On a
// backend failure it degrades to an entry-tier default so callers always
// have something to render, and logs instead of propagating.
func (s *Service) CurrentTier(ctx context.Context, affiliateID string) (*model.TierStatus, error) {
	if affiliateID == "" {
		return nil, apperrors.NewInvalidRequest("affiliate id is required")
	}

	if entry, ok := s.statusCache.Get(affiliateID); ok {
		status := entry.status
		return &status, nil
	}

	resp, err := s.client.GetTierStatus(ctx, affiliateID)
	if err != nil {
		logger.Error("Tier status fetch failed, serving entry-tier default",
			"affiliate_id", affiliateID, "error", err)
		status := s.defaultStatus(affiliateID)
		return &status, nil
	}

	status := s.buildStatus(affiliateID, resp)
	localClicks, _, usageErr := s.usage.GetDailyUsage(ctx, affiliateID)
	if usageErr != nil {
		logger.Warn("Usage store read failed", "affiliate_id", affiliateID, "error", usageErr)
		localClicks = 0
	}
	s.statusCache.Set(affiliateID, cachedStatus{status: status, localClicksAtFetch: localClicks})
	s.notifyListeners(status)
	return &status, nil
}

// buildStatus merges the backend answer with the static tier definitions,
// filling any blanks the backend left.
func (s *Service) buildStatus(affiliateID string, resp *backend.TierStatusResponse) model.TierStatus {
	name := model.TierName(resp.CurrentTier)
	def, known := s.tiers.Get(name)
	if !known {
		def = s.tiers.Lowest()
		logger.Warn("Backend reported unknown tier, using entry tier",
			"affiliate_id", affiliateID, "tier", resp.CurrentTier)
		name = def.Name
	}

	status := model.TierStatus{
		AffiliateID:          affiliateID,
		Tier:                 name,
		ClicksToday:          resp.ClicksToday,
		ClicksLimit:          resp.ClicksLimit,
		ClicksRemaining:      resp.ClicksRemaining,
		SalesToday:           resp.SalesToday,
		TotalSales:           resp.TotalSales,
		ProgressToNext:       resp.ProgressToNext,
		NextTier:             model.TierName(resp.NextTier),
		CommissionMultiplier: def.CommissionMultiplier,
		UpgradeAvailable:     resp.UpgradeAvailable,
		FetchedAt:            s.now(),
	}
	if status.ClicksLimit == 0 {
		status.ClicksLimit = def.ClickLimit
		status.ClicksRemaining = def.ClickLimit - status.ClicksToday
		if status.ClicksRemaining < 0 {
			status.ClicksRemaining = 0
		}
	}
	if status.NextTier == "" {
		if next, ok := s.tiers.Next(name); ok {
			status.NextTier = next.Name
		}
	}
	if status.ProgressToNext == 0 {
		status.ProgressToNext = s.tiers.Progress(status.TotalSales, name)
	}
	return status
}

// defaultStatus is the optimistic entry-tier fallback used when the
// backend is unreachable and nothing is cached.
func (s *Service) defaultStatus(affiliateID string) model.TierStatus {
	def := s.tiers.Lowest()
	status := model.TierStatus{
		AffiliateID:          affiliateID,
		Tier:                 def.Name,
		ClicksLimit:          def.ClickLimit,
		ClicksRemaining:      def.ClickLimit,
		CommissionMultiplier: def.CommissionMultiplier,
		FetchedAt:            s.now(),
	}
	if next, ok := s.tiers.Next(def.Name); ok {
		status.NextTier = next.Name
	}
	return status
}

// IsActionAllowed decides whether the action may proceed right now. Clicks
// are bounded by the affiliate's daily limit, tightened by admits this
// process has already let through since the limit was last read. Sales are
// never rate-limited per affiliate. Unknown actions are allowed: an
// explicit fail-open policy so a new action type rolled out backend-first
// is not silently dropped here.
func (s *Service) IsActionAllowed(ctx context.Context, action model.Action, affiliateID string) model.Decision {
	if affiliateID == "" {
		metrics.AdmissionDecisions.WithLabelValues(string(action), "allowed").Inc()
		return model.Decision{Allowed: true}
	}

	switch action {
	case model.ActionClick:
		remaining, current, limit := s.clicksRemaining(ctx, affiliateID)
		if remaining <= 0 {
			metrics.AdmissionDecisions.WithLabelValues(string(action), "denied").Inc()
			return model.Decision{
				Allowed: false,
				Reason:  "Daily click limit reached",
				Current: current,
				Limit:   limit,
			}
		}
		if err := s.usage.AddDailyUsage(ctx, affiliateID, 1, 0); err != nil {
			logger.Warn("Usage store write failed", "affiliate_id", affiliateID, "error", err)
		}
		metrics.AdmissionDecisions.WithLabelValues(string(action), "allowed").Inc()
		return model.Decision{Allowed: true, Current: current + 1, Limit: limit}

	case model.ActionSale:
		if err := s.usage.AddDailyUsage(ctx, affiliateID, 0, 1); err != nil {
			logger.Warn("Usage store write failed", "affiliate_id", affiliateID, "error", err)
		}
		metrics.AdmissionDecisions.WithLabelValues(string(action), "allowed").Inc()
		return model.Decision{Allowed: true}

	default:
		logger.Debug("Unknown action admitted by fail-open policy", "action", action)
		metrics.AdmissionDecisions.WithLabelValues(string(action), "allowed").Inc()
		return model.Decision{Allowed: true}
	}
}

// clicksRemaining combines the backend's remaining count with local admits
// since that count was fetched.
func (s *Service) clicksRemaining(ctx context.Context, affiliateID string) (remaining, current, limit int) {
	status, err := s.CurrentTier(ctx, affiliateID)
	if err != nil || status == nil {
		// no data at all: fail open with the entry tier budget
		def := s.tiers.Lowest()
		return def.ClickLimit, 0, def.ClickLimit
	}

	admitsSinceFetch := 0
	if entry, ok := s.statusCache.Get(affiliateID); ok {
		if localNow, _, err := s.usage.GetDailyUsage(ctx, affiliateID); err == nil {
			admitsSinceFetch = localNow - entry.localClicksAtFetch
			if admitsSinceFetch < 0 {
				admitsSinceFetch = 0
			}
		}
	}

	remaining = status.ClicksRemaining - admitsSinceFetch
	if remaining < 0 {
		remaining = 0
	}
	return remaining, status.ClicksToday + admitsSinceFetch, status.ClicksLimit
}

// CanUpgrade checks sales progress first, then live capacity of the next
// tier. A full target tier yields a waitlist answer, deliberately distinct
// from a sales shortfall.
func (s *Service) CanUpgrade(ctx context.Context, affiliateID string) model.UpgradeEligibility {
	status, err := s.CurrentTier(ctx, affiliateID)
	if err != nil || status == nil {
		return model.UpgradeEligibility{Eligible: false, Reason: "affiliate id is required"}
	}

	def, ok := s.tiers.Get(status.Tier)
	if !ok || def.Terminal() {
		return model.UpgradeEligibility{
			Eligible: false,
			Reason:   fmt.Sprintf("%s is the top tier", status.Tier),
		}
	}

	next, ok := s.tiers.Next(status.Tier)
	if !ok {
		return model.UpgradeEligibility{
			Eligible: false,
			Reason:   fmt.Sprintf("%s is the top tier", status.Tier),
		}
	}

	required := def.SalesToUpgrade
	if status.TotalSales < required {
		short := required - status.TotalSales
		return model.UpgradeEligibility{
			Eligible:      false,
			Reason:        fmt.Sprintf("Need %d more sales to reach %s", short, next.Name),
			NextTier:      next.Name,
			SalesRequired: required,
			SalesShort:    short,
		}
	}

	if cap := s.TierCapacity(ctx, next.Name); cap.Available <= 0 {
		return model.UpgradeEligibility{
			Eligible:      false,
			Reason:        fmt.Sprintf("Tier %s is currently full; you can join the waitlist", next.Name),
			NextTier:      next.Name,
			SalesRequired: required,
			Waitlist:      true,
		}
	}

	return model.UpgradeEligibility{
		Eligible:      true,
		NextTier:      next.Name,
		SalesRequired: required,
	}
}

// RequestUpgrade re-validates eligibility, never trusting a decision the
// caller may have cached, then asks the backend to perform the move.
func (s *Service) RequestUpgrade(ctx context.Context, affiliateID string) model.UpgradeResult {
	elig := s.CanUpgrade(ctx, affiliateID)
	if !elig.Eligible {
		metrics.UpgradeRequests.WithLabelValues("rejected").Inc()
		return model.UpgradeResult{Success: false, Message: elig.Reason}
	}

	resp, err := s.client.UpgradeTier(ctx, affiliateID)
	if err != nil {
		metrics.UpgradeRequests.WithLabelValues("failure").Inc()
		logger.Error("Upgrade request failed", "affiliate_id", affiliateID, "error", err)
		return model.UpgradeResult{Success: false, Message: "Upgrade service unavailable, please retry shortly"}
	}
	if !resp.Success {
		metrics.UpgradeRequests.WithLabelValues("rejected").Inc()
		msg := resp.Message
		if msg == "" {
			msg = "Upgrade was rejected"
		}
		return model.UpgradeResult{Success: false, Message: msg}
	}

	// drop stale views so the next read reflects the new tier
	s.statusCache.Delete(affiliateID)
	s.capacityCache.Clear()

	newTier := model.TierName(resp.NewTier)
	if newTier == "" {
		newTier = elig.NextTier
	}
	metrics.UpgradeRequests.WithLabelValues("success").Inc()
	logger.Info("Affiliate upgraded", "affiliate_id", affiliateID, "new_tier", newTier)
	return model.UpgradeResult{
		Success: true,
		NewTier: newTier,
		Message: fmt.Sprintf("Congratulations, you are now in tier %s", newTier),
	}
}

// TierCapacity returns one tier's utilization through a short-TTL cache.
// Unknown tiers return the zero capacity; config skew between tiergate and
// the backend routinely produces them and must not fail.
func (s *Service) TierCapacity(ctx context.Context, name model.TierName) model.TierCapacity {
	if _, known := s.tiers.Get(name); !known {
		return model.TierCapacity{}
	}
	if cap, ok := s.capacityCache.Get(string(name)); ok {
		return cap
	}

	snap := s.ledger.Current()
	if snap == nil {
		var err error
		if snap, err = s.ledger.Refresh(ctx); err != nil {
			return model.TierCapacity{}
		}
	}
	cap := snap.Tier(name)
	s.capacityCache.Set(string(name), cap)
	return cap
}

// AvailableTierForSignup scans tiers in priority order and returns the
// first with a free slot; lower tiers fill before higher ones by policy.
// Nil means every tier is full. Before the first snapshot the entry tier
// is assumed open.
func (s *Service) AvailableTierForSignup(ctx context.Context) *model.TierAssignment {
	if s.ledger.Current() == nil {
		if _, err := s.ledger.Refresh(ctx); err != nil {
			def := s.tiers.Lowest()
			return &model.TierAssignment{Tier: def.Name, Available: def.MaxAffiliates}
		}
	}

	for _, def := range s.tiers.Ordered() {
		if cap := s.TierCapacity(ctx, def.Name); cap.Available > 0 {
			return &model.TierAssignment{Tier: def.Name, Available: cap.Available}
		}
	}
	return nil
}

// ProgressToNextTier reports percent progress toward the next tier, 100
// for terminal tiers.
func (s *Service) ProgressToNextTier(totalSales int, name model.TierName) float64 {
	return s.tiers.Progress(totalSales, name)
}

// GetLimiter returns the per-affiliate request limiter, creating it on
// first use.
func (s *Service) GetLimiter(affiliateID string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	if lim, ok := s.limiters[affiliateID]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(limiterQPS), limiterBurst)
	s.limiters[affiliateID] = lim
	return lim
}

// ClearCaches drops both admission caches; used by admin tooling.
func (s *Service) ClearCaches() {
	s.statusCache.Clear()
	s.capacityCache.Clear()
}
