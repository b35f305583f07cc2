package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GoAffiliate/tiergate/internal/config"
)

func newTestClient(url string) *HTTPClient {
	return NewHTTPClient(config.BackendConfig{BaseURL: url, Token: "test-token", TimeoutMs: 2000})
}

func TestCallSendsActionTokenAndNonce(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"action":       q.Get("action"),
			"token":        q.Get("token"),
			"nonce":        q.Get("nonce"),
			"affiliate_id": q.Get("affiliate_id"),
		}
		w.Write([]byte(`{"success": true, "currentTier": "NEWBIE"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.GetTierStatus(context.Background(), "aff-1"); err != nil {
		t.Fatalf("tier status failed: %v", err)
	}

	if got["action"] != "get_tier_status" {
		t.Fatalf("expected action get_tier_status, got %q", got["action"])
	}
	if got["token"] != "test-token" {
		t.Fatalf("expected token forwarded, got %q", got["token"])
	}
	if got["nonce"] == "" {
		t.Fatalf("expected a cache-busting nonce")
	}
	if got["affiliate_id"] != "aff-1" {
		t.Fatalf("expected affiliate id forwarded, got %q", got["affiliate_id"])
	}
}

func TestNonceChangesPerCall(t *testing.T) {
	var nonces []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonces = append(nonces, r.URL.Query().Get("nonce"))
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	client.GetCapacity(context.Background())
	client.GetCapacity(context.Background())

	if len(nonces) != 2 || nonces[0] == nonces[1] {
		t.Fatalf("expected distinct nonces, got %v", nonces)
	}
}

func TestGetCapacityRecomputesDerivedFields(t *testing.T) {
	// the backend reports skewed derived fields; the snapshot must be
	// rebuilt from used/limit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"success": true,
			"capacity": {
				"clicks": {"used": 4950, "limit": 5000, "remaining": 999},
				"sales": {"used": 600, "limit": 500, "remaining": -100},
				"tiers": {
					"PRO": {"used": 160, "limit": 150, "available": 5, "percentFull": 10}
				}
			}
		}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	snap, err := client.GetCapacity(context.Background())
	if err != nil {
		t.Fatalf("capacity fetch failed: %v", err)
	}

	if snap.Clicks.Remaining != 50 {
		t.Fatalf("expected clicks remaining recomputed to 50, got %d", snap.Clicks.Remaining)
	}
	if snap.Sales.Remaining != 0 {
		t.Fatalf("expected sales remaining clamped to 0, got %d", snap.Sales.Remaining)
	}

	pro := snap.Tier("PRO")
	if pro.Available != 0 {
		t.Fatalf("expected available clamped to 0, got %d", pro.Available)
	}
	if pro.PercentFull < 106.6 || pro.PercentFull > 106.7 {
		t.Fatalf("expected percent full over 100 unclamped, got %.2f", pro.PercentFull)
	}
}

func TestGetCapacityRejectedByBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "message": "rate limited"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetCapacity(context.Background())
	if err == nil {
		t.Fatalf("expected error on success:false")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected backend message in error, got %v", err)
	}
}

func TestUpgradeTierBusinessRejectionIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Write([]byte(`{"success": false, "message": "tier full"}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).UpgradeTier(context.Background(), "aff-1")
	if err != nil {
		t.Fatalf("business rejection must not be a transport error: %v", err)
	}
	if resp.Success || resp.Message != "tier full" {
		t.Fatalf("expected rejection passed through, got %+v", resp)
	}
}

func TestCallNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).GetCapacity(context.Background()); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestCallInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": tru`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).GetCapacity(context.Background()); err == nil {
		t.Fatalf("expected error on malformed json")
	}
}

func TestCallWithoutBaseURL(t *testing.T) {
	client := NewHTTPClient(config.BackendConfig{})
	if _, err := client.GetCapacity(context.Background()); err == nil {
		t.Fatalf("expected error without a base url")
	}
}
