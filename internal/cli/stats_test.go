package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/flowsim-go/internal/metrics"
)

func TestRenderStats(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordTiming(metrics.OpSimulate, 120*time.Millisecond)
	c.RecordTiming(metrics.OpSimulate, 80*time.Millisecond)
	c.RecordLLMUsage(metrics.OpLLMGenerate, 400*time.Millisecond, 150, 42)

	out := renderStats(defaultTheme, c.Snapshot())
	assert.Contains(t, out, "Engine stats")
	assert.Contains(t, out, "simulate")
	assert.Contains(t, out, "2 calls")
	assert.Contains(t, out, "llm_generate")
	assert.Contains(t, out, "tokens 150 in / 42 out")
}

func TestRenderStatsEmpty(t *testing.T) {
	assert.Empty(t, renderStats(defaultTheme, metrics.NewCollector().Snapshot()))
}
