package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is a tracked affiliate action subject to admission control.
type Action string

const (
	ActionClick Action = "click"
	ActionSale  Action = "sale"
)

// TierStatus is the per-affiliate view assembled from the backend plus the
// static tier definitions.
type TierStatus struct {
	AffiliateID          string          `json:"affiliateId"`
	Tier                 TierName        `json:"tier"`
	ClicksToday          int             `json:"clicksToday"`
	ClicksLimit          int             `json:"clicksLimit"`
	ClicksRemaining      int             `json:"clicksRemaining"`
	SalesToday           int             `json:"salesToday"`
	TotalSales           int             `json:"totalSales"`
	ProgressToNext       float64         `json:"progressToNext"`
	NextTier             TierName        `json:"nextTier,omitempty"`
	CommissionMultiplier decimal.Decimal `json:"commissionMultiplier"`
	UpgradeAvailable     bool            `json:"upgradeAvailable"`
	FetchedAt            time.Time       `json:"fetchedAt"`
}

// Decision answers "is this action allowed right now".
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Current int    `json:"current"`
	Limit   int    `json:"limit"`
}

// UpgradeEligibility distinguishes a sales shortfall from an exhausted
// target tier; callers surface different copy for the two.
type UpgradeEligibility struct {
	Eligible      bool     `json:"eligible"`
	Reason        string   `json:"reason,omitempty"`
	NextTier      TierName `json:"nextTier,omitempty"`
	SalesRequired int      `json:"salesRequired,omitempty"`
	SalesShort    int      `json:"salesShort,omitempty"`
	Waitlist      bool     `json:"waitlist,omitempty"`
}

// UpgradeResult is the outcome of a completed upgrade request.
type UpgradeResult struct {
	Success bool     `json:"success"`
	NewTier TierName `json:"newTier,omitempty"`
	Message string   `json:"message"`
}

// TierAssignment is where a new signup should land.
type TierAssignment struct {
	Tier      TierName `json:"tier"`
	Available int      `json:"available"`
}
