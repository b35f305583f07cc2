package model

import "time"

// TierName identifies a membership tier. The valid set is closed at startup
// by the configured tier definitions.
type TierName string

// ResourceUsage is one global daily counter against its ceiling.
type ResourceUsage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"` // clamped at 0
}

// Percent returns utilization as 0-100. The backend may report Used > Limit,
// so values above 100 are possible and must not be clamped.
func (r ResourceUsage) Percent() float64 {
	if r.Limit <= 0 {
		return 0
	}
	return 100 * float64(r.Used) / float64(r.Limit)
}

// TierCapacity is the utilization of one tier's membership slots.
type TierCapacity struct {
	Used        int     `json:"used"`
	Limit       int     `json:"limit"`
	Available   int     `json:"available"` // clamped at 0
	PercentFull float64 `json:"percentFull"`
}

// CapacitySnapshot is the full utilization picture at one instant.
// It is immutable after construction and replaced wholesale on refresh.
type CapacitySnapshot struct {
	Clicks    ResourceUsage             `json:"clicks"`
	Sales     ResourceUsage             `json:"sales"`
	Tiers     map[TierName]TierCapacity `json:"tiers"`
	FetchedAt time.Time                 `json:"fetchedAt"`
}

// Tier returns the named tier's capacity, zero-valued when the tier is
// absent from the snapshot.
func (s *CapacitySnapshot) Tier(name TierName) TierCapacity {
	if s == nil || s.Tiers == nil {
		return TierCapacity{}
	}
	return s.Tiers[name]
}

// StatusLevel classifies global click utilization.
type StatusLevel string

const (
	StatusUnknown  StatusLevel = "UNKNOWN"
	StatusHealthy  StatusLevel = "HEALTHY"
	StatusWarning  StatusLevel = "WARNING"
	StatusCritical StatusLevel = "CRITICAL"
)

// SystemStatus is the classification plus the UI contract fields.
type SystemStatus struct {
	Level   StatusLevel `json:"level"`
	Percent float64     `json:"percent"`
	Message string      `json:"message"`
	Color   string      `json:"color"`
	Stale   bool        `json:"stale"`
}
