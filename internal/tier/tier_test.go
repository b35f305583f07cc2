package tier

import (
	"testing"

	"github.com/GoAffiliate/tiergate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryOrdersByPriority(t *testing.T) {
	r := NewRegistry([]config.TierConfig{
		{Name: "GOLD", MaxAffiliates: 10, Priority: 2},
		{Name: "SILVER", MaxAffiliates: 20, Priority: 1},
		{Name: "PLATINUM", MaxAffiliates: 5, Priority: 3},
	})

	ordered := r.Ordered()
	require.Len(t, ordered, 3)
	assert.EqualValues(t, "SILVER", ordered[0].Name)
	assert.EqualValues(t, "GOLD", ordered[1].Name)
	assert.EqualValues(t, "PLATINUM", ordered[2].Name)
	assert.EqualValues(t, "SILVER", r.Lowest().Name)
}

func TestNewRegistryFallsBackToDefaults(t *testing.T) {
	r := NewRegistry(nil)
	ordered := r.Ordered()
	require.Len(t, ordered, 4)
	assert.EqualValues(t, "NEWBIE", ordered[0].Name)
	assert.EqualValues(t, "ELITE", ordered[3].Name)
	assert.True(t, ordered[3].Terminal())
}

func TestNext(t *testing.T) {
	r := NewRegistry(nil)

	next, ok := r.Next("ACTIVE")
	require.True(t, ok)
	assert.EqualValues(t, "PRO", next.Name)

	_, ok = r.Next("ELITE")
	assert.False(t, ok, "terminal tier has no next")

	_, ok = r.Next("NOPE")
	assert.False(t, ok, "unknown tier has no next")
}

func TestValidateTotal(t *testing.T) {
	r := NewRegistry(nil) // defaults sum to 1000

	assert.NoError(t, r.ValidateTotal(1000))
	assert.Error(t, r.ValidateTotal(900))
	// zero ceiling disables the check
	assert.NoError(t, r.ValidateTotal(0))
}

func TestProgress(t *testing.T) {
	r := NewRegistry(nil) // ACTIVE requires 50 sales

	assert.InDelta(t, 40.0, r.Progress(20, "ACTIVE"), 0.001)
	assert.InDelta(t, 100.0, r.Progress(50, "ACTIVE"), 0.001)
	assert.InDelta(t, 100.0, r.Progress(500, "ACTIVE"), 0.001, "capped at 100")
	assert.InDelta(t, 100.0, r.Progress(0, "ELITE"), 0.001, "terminal tier reports 100")
	assert.InDelta(t, 0.0, r.Progress(10, "NOPE"), 0.001, "unknown tier reports 0")
}

func TestCommissionMultiplierParsing(t *testing.T) {
	r := NewRegistry([]config.TierConfig{
		{Name: "A", MaxAffiliates: 1, CommissionMultiplier: "1.75", Priority: 1},
		{Name: "B", MaxAffiliates: 1, CommissionMultiplier: "not-a-number", Priority: 2},
	})

	a, _ := r.Get("A")
	assert.Equal(t, "1.75", a.CommissionMultiplier.String())

	b, _ := r.Get("B")
	assert.Equal(t, "1", b.CommissionMultiplier.String(), "bad multiplier falls back to 1")
}
