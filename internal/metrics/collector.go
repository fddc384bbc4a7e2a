// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpLLMGenerate = "llm_generate"
	OpDBQuery     = "db_query"
	OpSimulate    = "simulate"
	OpJudge       = "judge"
)

// opMetrics holds the raw aggregates for one operation type.
type opMetrics struct {
	count        int64
	totalTime    time.Duration
	minTime      time.Duration
	maxTime      time.Duration
	inputTokens  int64
	outputTokens int64
}

// OperationSnapshot provides computed stats for one operation.
type OperationSnapshot struct {
	Count        int64
	TotalTimeMs  int64
	AvgTimeMs    float64
	MinTimeMs    int64
	MaxTimeMs    int64
	InputTokens  int64
	OutputTokens int64
}

// Snapshot represents the full engine statistics at a point in time,
// keyed by operation name.
type Snapshot struct {
	UptimeSeconds float64
	Operations    map[string]OperationSnapshot
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*opMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*opMetrics),
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.RecordLLMUsage(op, duration, 0, 0)
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.ops[op]
	if !ok {
		m = &opMetrics{minTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	m.count++
	m.totalTime += duration
	if duration < m.minTime {
		m.minTime = duration
	}
	if duration > m.maxTime {
		m.maxTime = duration
	}
	m.inputTokens += inputTokens
	m.outputTokens += outputTokens
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Operations:    make(map[string]OperationSnapshot, len(c.ops)),
	}
	for op, m := range c.ops {
		if m.count == 0 {
			continue
		}
		snap.Operations[op] = OperationSnapshot{
			Count:        m.count,
			TotalTimeMs:  m.totalTime.Milliseconds(),
			AvgTimeMs:    float64(m.totalTime.Milliseconds()) / float64(m.count),
			MinTimeMs:    m.minTime.Milliseconds(),
			MaxTimeMs:    m.maxTime.Milliseconds(),
			InputTokens:  m.inputTokens,
			OutputTokens: m.outputTokens,
		}
	}
	return snap
}
