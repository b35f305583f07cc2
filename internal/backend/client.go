// Package backend speaks to the capacity backend, the source of truth for
// all counters. Every call carries the auth token and a cache-busting nonce.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoAffiliate/tiergate/internal/config"
	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/google/uuid"
)

const (
	actionGetCapacity   = "get_capacity"
	actionGetTierStatus = "get_tier_status"
	actionUpgradeTier   = "upgrade_tier"
)

// Client is the request/response contract with the capacity backend.
type Client interface {
	GetCapacity(ctx context.Context) (*model.CapacitySnapshot, error)
	GetTierStatus(ctx context.Context, affiliateID string) (*TierStatusResponse, error)
	UpgradeTier(ctx context.Context, affiliateID string) (*UpgradeResponse, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(cfg config.BackendConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
	}
}

// Wire shapes. remaining/available/percentFull from the wire are advisory;
// the snapshot recomputes them from used/limit so the local invariants hold
// even when the backend reports skewed derived fields.

type capacityResponse struct {
	Success  bool `json:"success"`
	Capacity struct {
		Clicks resourceWire            `json:"clicks"`
		Sales  resourceWire            `json:"sales"`
		Tiers  map[string]tierCapWire  `json:"tiers"`
	} `json:"capacity"`
	Message string `json:"message"`
}

type resourceWire struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type tierCapWire struct {
	Used        int     `json:"used"`
	Limit       int     `json:"limit"`
	Available   int     `json:"available"`
	PercentFull float64 `json:"percentFull"`
}

type TierStatusResponse struct {
	Success              bool    `json:"success"`
	CurrentTier          string  `json:"currentTier"`
	ClicksToday          int     `json:"clicksToday"`
	ClicksLimit          int     `json:"clicksLimit"`
	ClicksRemaining      int     `json:"clicksRemaining"`
	SalesToday           int     `json:"salesToday"`
	TotalSales           int     `json:"totalSales"`
	ProgressToNext       float64 `json:"progressToNext"`
	NextTier             string  `json:"nextTier"`
	CommissionMultiplier string  `json:"commissionMultiplier"`
	UpgradeAvailable     bool    `json:"upgradeAvailable"`
	Message              string  `json:"message"`
}

type UpgradeResponse struct {
	Success bool   `json:"success"`
	NewTier string `json:"newTier"`
	Message string `json:"message"`
}

func (c *HTTPClient) GetCapacity(ctx context.Context) (*model.CapacitySnapshot, error) {
	var resp capacityResponse
	if err := c.call(ctx, http.MethodGet, actionGetCapacity, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("backend rejected capacity fetch: %s", orUnknown(resp.Message))
	}

	snap := &model.CapacitySnapshot{
		Clicks:    toResource(resp.Capacity.Clicks),
		Sales:     toResource(resp.Capacity.Sales),
		Tiers:     make(map[model.TierName]model.TierCapacity, len(resp.Capacity.Tiers)),
		FetchedAt: time.Now(),
	}
	for name, tc := range resp.Capacity.Tiers {
		snap.Tiers[model.TierName(name)] = toTierCapacity(tc)
	}
	return snap, nil
}

func (c *HTTPClient) GetTierStatus(ctx context.Context, affiliateID string) (*TierStatusResponse, error) {
	params := url.Values{"affiliate_id": {affiliateID}}
	var resp TierStatusResponse
	if err := c.call(ctx, http.MethodGet, actionGetTierStatus, params, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("backend rejected tier status fetch: %s", orUnknown(resp.Message))
	}
	return &resp, nil
}

func (c *HTTPClient) UpgradeTier(ctx context.Context, affiliateID string) (*UpgradeResponse, error) {
	params := url.Values{"affiliate_id": {affiliateID}}
	var resp UpgradeResponse
	if err := c.call(ctx, http.MethodPost, actionUpgradeTier, params, &resp); err != nil {
		return nil, err
	}
	// success:false here is a business answer, not a transport failure;
	// hand it back to the service for a human-readable message.
	return &resp, nil
}

func (c *HTTPClient) call(ctx context.Context, method, action string, params url.Values, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("backend base_url not configured")
	}
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("action", action)
	q.Set("token", c.token)
	q.Set("nonce", uuid.New().String())

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend call %s failed: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend call %s read failed: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend call %s returned %d", action, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend call %s returned invalid json: %w", action, err)
	}
	return nil
}

func toResource(w resourceWire) model.ResourceUsage {
	remaining := w.Limit - w.Used
	if remaining < 0 {
		remaining = 0
	}
	return model.ResourceUsage{Used: w.Used, Limit: w.Limit, Remaining: remaining}
}

func toTierCapacity(w tierCapWire) model.TierCapacity {
	available := w.Limit - w.Used
	if available < 0 {
		available = 0
	}
	percent := 0.0
	if w.Limit > 0 {
		// not clamped: the backend may report overshoot and callers need to
		// see percentages above 100
		percent = 100 * float64(w.Used) / float64(w.Limit)
	}
	return model.TierCapacity{Used: w.Used, Limit: w.Limit, Available: available, PercentFull: percent}
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
