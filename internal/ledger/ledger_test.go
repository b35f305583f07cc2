package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/GoAffiliate/tiergate/internal/backend"
	"github.com/GoAffiliate/tiergate/internal/config"
	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/GoAffiliate/tiergate/internal/tier"
)

// stubClient serves canned snapshots. Refresh stamps FetchedAt on the
// returned value, so each call hands out a fresh copy.
type stubClient struct {
	mu   sync.Mutex
	snap *model.CapacitySnapshot
	err  error
}

func (s *stubClient) GetCapacity(ctx context.Context) (*model.CapacitySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.snap
	cp.Tiers = make(map[model.TierName]model.TierCapacity, len(s.snap.Tiers))
	for k, v := range s.snap.Tiers {
		cp.Tiers[k] = v
	}
	return &cp, nil
}

func (s *stubClient) GetTierStatus(ctx context.Context, affiliateID string) (*backend.TierStatusResponse, error) {
	return nil, errors.New("not used")
}

func (s *stubClient) UpgradeTier(ctx context.Context, affiliateID string) (*backend.UpgradeResponse, error) {
	return nil, errors.New("not used")
}

func (s *stubClient) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func snapWithClicks(used, limit int) *model.CapacitySnapshot {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &model.CapacitySnapshot{
		Clicks: model.ResourceUsage{Used: used, Limit: limit, Remaining: remaining},
		Sales:  model.ResourceUsage{Used: 0, Limit: 500, Remaining: 500},
		Tiers:  map[model.TierName]model.TierCapacity{},
	}
}

func tierCap(used, limit int) model.TierCapacity {
	available := limit - used
	if available < 0 {
		available = 0
	}
	pct := 0.0
	if limit > 0 {
		pct = 100 * float64(used) / float64(limit)
	}
	return model.TierCapacity{Used: used, Limit: limit, Available: available, PercentFull: pct}
}

func newTestLedger(client *stubClient) *Ledger {
	tiers := tier.NewRegistry(nil)
	program := config.ProgramConfig{DailyClickLimit: 5000, DailySaleLimit: 500, MaxAffiliates: 1000}
	return New(client, tiers, program)
}

func TestSystemStatusUnknownBeforeFirstRefresh(t *testing.T) {
	led := newTestLedger(&stubClient{snap: snapWithClicks(0, 5000)})

	status := led.SystemStatus()
	if status.Level != model.StatusUnknown {
		t.Fatalf("expected UNKNOWN before first refresh, got %s", status.Level)
	}
	if status.Message != "Loading system status..." {
		t.Fatalf("unexpected message %q", status.Message)
	}
	if status.Color != "gray" {
		t.Fatalf("expected gray, got %q", status.Color)
	}
}

func TestSystemStatusBoundaries(t *testing.T) {
	cases := []struct {
		name  string
		used  int
		limit int
		want  model.StatusLevel
		color string
	}{
		{"just under warning", 799, 1000, model.StatusHealthy, "green"},
		{"exactly 80 stays healthy", 800, 1000, model.StatusHealthy, "green"},
		{"just over warning", 801, 1000, model.StatusWarning, "orange"},
		{"exactly 95 stays warning", 950, 1000, model.StatusWarning, "orange"},
		{"just over critical", 951, 1000, model.StatusCritical, "red"},
		{"overshoot is critical", 1100, 1000, model.StatusCritical, "red"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &stubClient{snap: snapWithClicks(tc.used, tc.limit)}
			led := newTestLedger(client)
			if _, err := led.Refresh(context.Background()); err != nil {
				t.Fatalf("refresh failed: %v", err)
			}

			status := led.SystemStatus()
			if status.Level != tc.want {
				t.Fatalf("used=%d limit=%d: expected %s, got %s", tc.used, tc.limit, tc.want, status.Level)
			}
			if status.Color != tc.color {
				t.Fatalf("expected color %q, got %q", tc.color, status.Color)
			}
		})
	}
}

func TestRemainingDefaultsBeforeSnapshot(t *testing.T) {
	led := newTestLedger(&stubClient{snap: snapWithClicks(0, 5000)})

	if got := led.Remaining("clicks"); got != 5000 {
		t.Fatalf("expected configured click limit 5000, got %d", got)
	}
	if got := led.Remaining("sales"); got != 500 {
		t.Fatalf("expected configured sale limit 500, got %d", got)
	}
	if got := led.Remaining("widgets"); got != 0 {
		t.Fatalf("expected 0 for unknown resource, got %d", got)
	}
}

func TestRemainingAfterSnapshot(t *testing.T) {
	client := &stubClient{snap: snapWithClicks(4100, 5000)}
	led := newTestLedger(client)
	if _, err := led.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if got := led.Remaining("clicks"); got != 900 {
		t.Fatalf("expected 900 clicks remaining, got %d", got)
	}
}

func TestRefreshFailureKeepsLastSnapshot(t *testing.T) {
	client := &stubClient{snap: snapWithClicks(100, 5000)}
	led := newTestLedger(client)

	first, err := led.Refresh(context.Background())
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}

	client.setError(errors.New("backend down"))
	if _, err := led.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}

	cur := led.Current()
	if cur == nil || cur.Clicks.Used != first.Clicks.Used {
		t.Fatalf("expected prior snapshot retained, got %+v", cur)
	}
	if !led.Stale() {
		t.Fatalf("expected stale after failed refresh over a held snapshot")
	}
	if !led.SystemStatus().Stale {
		t.Fatalf("expected status to carry the stale flag")
	}
}

func TestStaleClearsAfterSuccessfulRefresh(t *testing.T) {
	client := &stubClient{snap: snapWithClicks(100, 5000)}
	led := newTestLedger(client)

	if _, err := led.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	client.setError(errors.New("backend down"))
	led.Refresh(context.Background())
	client.setError(nil)
	if _, err := led.Refresh(context.Background()); err != nil {
		t.Fatalf("recovery refresh failed: %v", err)
	}
	if led.Stale() {
		t.Fatalf("expected stale cleared after recovery")
	}
}

func TestShouldPauseSignups(t *testing.T) {
	t.Run("false before first snapshot", func(t *testing.T) {
		led := newTestLedger(&stubClient{snap: snapWithClicks(0, 5000)})
		if led.ShouldPauseSignups() {
			t.Fatalf("expected no pause without data")
		}
	})

	t.Run("clicks over 90 pauses", func(t *testing.T) {
		client := &stubClient{snap: snapWithClicks(4501, 5000)}
		led := newTestLedger(client)
		led.Refresh(context.Background())
		if !led.ShouldPauseSignups() {
			t.Fatalf("expected pause at 90.02%% clicks")
		}
	})

	t.Run("clicks exactly 90 does not pause", func(t *testing.T) {
		client := &stubClient{snap: snapWithClicks(4500, 5000)}
		led := newTestLedger(client)
		led.Refresh(context.Background())
		if led.ShouldPauseSignups() {
			t.Fatalf("expected no pause at exactly 90%%")
		}
	})

	t.Run("one overfull tier pauses alone", func(t *testing.T) {
		snap := snapWithClicks(100, 5000)
		snap.Tiers[model.TierName("PRO")] = tierCap(144, 150) // 96%
		client := &stubClient{snap: snap}
		led := newTestLedger(client)
		led.Refresh(context.Background())
		if !led.ShouldPauseSignups() {
			t.Fatalf("expected pause with a tier over 95%%")
		}
	})

	t.Run("unconfigured snapshot tier pauses", func(t *testing.T) {
		// the backend knows a tier this process was not configured with;
		// its fullness still gates signups
		snap := snapWithClicks(100, 5000)
		snap.Tiers[model.TierName("LEGACY")] = tierCap(97, 100)
		client := &stubClient{snap: snap}
		led := newTestLedger(client)
		led.Refresh(context.Background())
		if !led.ShouldPauseSignups() {
			t.Fatalf("expected pause from a tier absent from local config")
		}
	})

	t.Run("tier exactly 95 does not pause", func(t *testing.T) {
		snap := snapWithClicks(100, 5000)
		snap.Tiers[model.TierName("NEWBIE")] = tierCap(475, 500) // 95.0%
		client := &stubClient{snap: snap}
		led := newTestLedger(client)
		led.Refresh(context.Background())
		if led.ShouldPauseSignups() {
			t.Fatalf("expected no pause at exactly 95%%")
		}
	})
}

func TestRecommendedTier(t *testing.T) {
	t.Run("lowest before first snapshot", func(t *testing.T) {
		led := newTestLedger(&stubClient{snap: snapWithClicks(0, 5000)})
		if got := led.RecommendedTier(); got != "NEWBIE" {
			t.Fatalf("expected NEWBIE, got %s", got)
		}
	})

	t.Run("largest available wins", func(t *testing.T) {
		snap := snapWithClicks(0, 5000)
		snap.Tiers[model.TierName("NEWBIE")] = tierCap(490, 500) // 10 free
		snap.Tiers[model.TierName("ACTIVE")] = tierCap(250, 300) // 50 free
		snap.Tiers[model.TierName("PRO")] = tierCap(90, 150)     // 60 free
		snap.Tiers[model.TierName("ELITE")] = tierCap(45, 50)    // 5 free
		client := &stubClient{snap: snap}
		led := newTestLedger(client)
		led.Refresh(context.Background())
		if got := led.RecommendedTier(); got != "PRO" {
			t.Fatalf("expected PRO, got %s", got)
		}
	})

	t.Run("tie resolves to earliest configured", func(t *testing.T) {
		snap := snapWithClicks(0, 5000)
		snap.Tiers[model.TierName("NEWBIE")] = tierCap(490, 500) // 10 free
		snap.Tiers[model.TierName("ACTIVE")] = tierCap(250, 300) // 50 free
		snap.Tiers[model.TierName("PRO")] = tierCap(100, 150)    // 50 free
		snap.Tiers[model.TierName("ELITE")] = tierCap(45, 50)    // 5 free
		client := &stubClient{snap: snap}
		led := newTestLedger(client)
		led.Refresh(context.Background())
		if got := led.RecommendedTier(); got != "ACTIVE" {
			t.Fatalf("expected ACTIVE on tie, got %s", got)
		}
	})
}

func TestRefreshPublishesToCallbacks(t *testing.T) {
	client := &stubClient{snap: snapWithClicks(100, 5000)}
	led := newTestLedger(client)

	var mu sync.Mutex
	var secondSaw *model.CapacitySnapshot
	led.OnUpdate(func(snap *model.CapacitySnapshot) {
		panic("first callback blows up")
	})
	led.OnUpdate(func(snap *model.CapacitySnapshot) {
		mu.Lock()
		secondSaw = snap
		mu.Unlock()
	})

	if _, err := led.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if secondSaw == nil {
		t.Fatalf("expected second callback to run despite first panicking")
	}
	if secondSaw.Clicks.Used != 100 {
		t.Fatalf("callback got wrong snapshot: %+v", secondSaw)
	}
}

func TestRefreshFailureDoesNotPublish(t *testing.T) {
	client := &stubClient{snap: snapWithClicks(100, 5000), err: errors.New("down")}
	led := newTestLedger(client)

	called := false
	led.OnUpdate(func(snap *model.CapacitySnapshot) { called = true })

	led.Refresh(context.Background())
	if called {
		t.Fatalf("callbacks must not run on a failed refresh")
	}
}
