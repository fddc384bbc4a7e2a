package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorAggregates(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpDBQuery, 10*time.Millisecond)
	c.RecordTiming(OpDBQuery, 30*time.Millisecond)
	c.RecordLLMUsage(OpLLMGenerate, 100*time.Millisecond, 500, 50)

	snap := c.Snapshot()
	db, ok := snap.Operations[OpDBQuery]
	require.True(t, ok)
	assert.Equal(t, int64(2), db.Count)
	assert.Equal(t, int64(10), db.MinTimeMs)
	assert.Equal(t, int64(30), db.MaxTimeMs)
	assert.Equal(t, float64(20), db.AvgTimeMs)

	llm, ok := snap.Operations[OpLLMGenerate]
	require.True(t, ok)
	assert.Equal(t, int64(500), llm.InputTokens)
	assert.Equal(t, int64(50), llm.OutputTokens)
}

func TestSnapshotSkipsEmptyOps(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Empty(t, snap.Operations)
}
