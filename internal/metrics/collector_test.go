package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpListingsFetch, 100*time.Millisecond)
	c.RecordTiming(OpListingsFetch, 300*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.ListingsFetch)
	assert.EqualValues(t, 2, snap.ListingsFetch.Count)
	assert.EqualValues(t, 400, snap.ListingsFetch.TotalTimeMs)
	assert.EqualValues(t, 100, snap.ListingsFetch.MinTimeMs)
	assert.EqualValues(t, 300, snap.ListingsFetch.MaxTimeMs)
	assert.InDelta(t, 200, snap.ListingsFetch.AvgTimeMs, 0.01)
}

func TestRecordLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpPlannerDecide, 50*time.Millisecond, 1200, 300)
	c.RecordLLMUsage(OpPlannerDecide, 70*time.Millisecond, 1800, 100)

	snap := c.Snapshot()
	require.NotNil(t, snap.PlannerDecide)
	require.NotNil(t, snap.PlannerDecide.TotalInputTokens)
	assert.EqualValues(t, 3000, *snap.PlannerDecide.TotalInputTokens)
	assert.EqualValues(t, 400, *snap.PlannerDecide.TotalOutputTokens)
	assert.EqualValues(t, 1200, *snap.PlannerDecide.MinInputTokens)
	assert.EqualValues(t, 1800, *snap.PlannerDecide.MaxInputTokens)
	assert.InDelta(t, 1500, *snap.PlannerDecide.AvgInputTokens, 0.01)
}

func TestSnapshotSkipsEmptyOperations(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpSheetsExport, time.Millisecond)

	snap := c.Snapshot()
	assert.Nil(t, snap.IntentParse)
	assert.Nil(t, snap.PlannerDecide)
	assert.Nil(t, snap.ListingsFetch)
	assert.NotNil(t, snap.SheetsExport)
}

func TestNilCollectorDiscards(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpListingsFetch, time.Millisecond)
	c.RecordLLMUsage(OpPlannerDecide, time.Millisecond, 1, 1)
	assert.Zero(t, c.Snapshot().UptimeSeconds)
}
