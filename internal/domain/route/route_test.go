package route

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoute(t *testing.T) {
	t.Run("creates active route with defaults", func(t *testing.T) {
		r, err := NewRoute("BCN", "JFK", Tier1, 30)
		require.NoError(t, err)

		assert.Equal(t, "BCN", r.Origin)
		assert.Equal(t, "JFK", r.Destination)
		assert.Equal(t, Tier1, r.Tier)
		assert.Equal(t, 30, r.ScanIntervalMinutes)
		assert.Equal(t, 0.5, r.PriorityScore)
		assert.True(t, r.IsActive)
		assert.Nil(t, r.LastScanAt)
		assert.Nil(t, r.NextScanAt)
	})

	t.Run("rejects invalid airport codes", func(t *testing.T) {
		_, err := NewRoute("BCNX", "JFK", Tier1, 30)
		assert.Error(t, err)

		_, err = NewRoute("BCN", "", Tier1, 30)
		assert.Error(t, err)
	})

	t.Run("rejects invalid tier", func(t *testing.T) {
		_, err := NewRoute("BCN", "JFK", Tier(4), 30)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		_, err := NewRoute("BCN", "JFK", Tier2, 0)
		assert.Error(t, err)
	})
}

func TestRoute_RecordScan(t *testing.T) {
	t.Run("advances schedule one interval past the call time", func(t *testing.T) {
		r, err := NewRoute("BCN", "JFK", Tier1, 30)
		require.NoError(t, err)

		at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		r.RecordScan(at, 6)

		require.NotNil(t, r.LastScanAt)
		require.NotNil(t, r.NextScanAt)
		assert.Equal(t, at, *r.LastScanAt)
		assert.Equal(t, at.Add(30*time.Minute), *r.NextScanAt)
		assert.Equal(t, 1, r.TotalScans)
		assert.Equal(t, 6, r.MonthlyCalls)
	})

	t.Run("calling twice pushes the schedule forward twice", func(t *testing.T) {
		r, err := NewRoute("BCN", "JFK", Tier1, 30)
		require.NoError(t, err)

		at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		r.RecordScan(at, 6)
		later := at.Add(5 * time.Minute)
		r.RecordScan(later, 6)

		assert.Equal(t, later.Add(30*time.Minute), *r.NextScanAt)
		assert.Equal(t, 2, r.TotalScans)
		assert.Equal(t, 12, r.MonthlyCalls)
	})
}

func TestRoute_ChangeTier(t *testing.T) {
	r, err := NewRoute("BCN", "JFK", Tier3, 120)
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	require.NoError(t, r.ChangeTier(Tier1, 30, now))

	assert.Equal(t, Tier1, r.Tier)
	assert.Equal(t, 30, r.ScanIntervalMinutes)
	require.NotNil(t, r.NextScanAt)
	assert.Equal(t, now.Add(30*time.Minute), *r.NextScanAt)

	assert.Error(t, r.ChangeTier(Tier(0), 30, now))
}

func TestRoute_IsDue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	r, err := NewRoute("BCN", "JFK", Tier1, 30)
	require.NoError(t, err)

	t.Run("never-scanned route is due", func(t *testing.T) {
		assert.True(t, r.IsDue(now))
	})

	t.Run("not due before next_scan_at", func(t *testing.T) {
		r.RecordScan(now, 6)
		assert.False(t, r.IsDue(now.Add(10*time.Minute)))
		assert.True(t, r.IsDue(now.Add(30*time.Minute)))
	})

	t.Run("inactive route is never due", func(t *testing.T) {
		r.IsActive = false
		assert.False(t, r.IsDue(now.Add(time.Hour)))
	})
}

func TestRoute_HoursSinceLastScan(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	r, err := NewRoute("BCN", "JFK", Tier1, 30)
	require.NoError(t, err)

	assert.Equal(t, float64(1000), r.HoursSinceLastScan(now))

	r.RecordScan(now.Add(-2*time.Hour), 6)
	assert.InDelta(t, 2.0, r.HoursSinceLastScan(now), 0.001)
}
