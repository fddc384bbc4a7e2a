package cli

import (
	"fmt"
	"sort"

	"github.com/raphaelgruber/flowsim-go/internal/metrics"
)

// renderStats formats a collector snapshot for printing after a batch.
// Returns the empty string when nothing was recorded.
func renderStats(theme Theme, snap metrics.Snapshot) string {
	if len(snap.Operations) == 0 {
		return ""
	}

	names := make([]string, 0, len(snap.Operations))
	for name := range snap.Operations {
		names = append(names, name)
	}
	sort.Strings(names)

	output := theme.hintStyle().Render(fmt.Sprintf("Engine stats (uptime %.1fs):", snap.UptimeSeconds)) + "\n"
	for _, name := range names {
		op := snap.Operations[name]
		line := fmt.Sprintf("  %-14s %5d calls, avg %.0fms (min %dms, max %dms)",
			name, op.Count, op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
		if op.InputTokens > 0 || op.OutputTokens > 0 {
			line += fmt.Sprintf(", tokens %d in / %d out", op.InputTokens, op.OutputTokens)
		}
		output += line + "\n"
	}
	return output
}
