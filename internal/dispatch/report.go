package dispatch

// report.go shapes per-line outcomes into the batch report dispatchers see.

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus summarizes a finished batch at a glance.
type BatchStatus string

const (
	StatusCompleted      BatchStatus = "COMPLETED"
	StatusPartialFailure BatchStatus = "PARTIAL_FAILURE"
	StatusFailed         BatchStatus = "FAILED"
	StatusCancelled      BatchStatus = "CANCELLED"
)

// Status derives the overall batch status from the line tallies.
func (r BatchResult) Status() BatchStatus {
	switch {
	case r.Cancelled:
		return StatusCancelled
	case r.Error != "" || (r.Succeeded == 0 && r.Failed > 0):
		return StatusFailed
	case r.Failed > 0:
		return StatusPartialFailure
	default:
		return StatusCompleted
	}
}

// BuildResult assembles the final BatchResult from per-line outcomes.
// Lines arrive in input order from the runner and stay that way.
func BuildResult(batchID string, lines []LineResult, duration time.Duration, cancelled bool) BatchResult {
	res := BatchResult{
		BatchID:    batchID,
		TotalLines: len(lines),
		Cancelled:  cancelled,
		Lines:      lines,
		Duration:   duration,
		DurationMs: duration.Milliseconds(),
	}
	for _, ln := range lines {
		if ln.Success {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

// RenderText renders the plain-text report dispatchers paste back into the
// ops chat: one ✓ or ✗ line per note line, in input order.
//
//	Batch 4f81c2e0: 2/3 orders created
//	✓ 185 ADG-185 (Nguyễn Văn Tuyến)
//	✗ 186 duplicate order code: ADG-186
//	✓ 187 ADG-187
func RenderText(res BatchResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Batch %s: %d/%d orders created", res.BatchID, res.Succeeded, res.TotalLines)
	if res.Cancelled {
		b.WriteString(" (cancelled)")
	}
	b.WriteByte('\n')

	if res.Error != "" {
		fmt.Fprintf(&b, "! %s\n", res.Error)
	}

	for _, ln := range res.Lines {
		if ln.Success {
			fmt.Fprintf(&b, "✓ %d %s", ln.LineNumber, ln.OrderCode)
			if ln.DriverName != "" {
				fmt.Fprintf(&b, " (%s)", ln.DriverName)
			}
		} else {
			fmt.Fprintf(&b, "✗ %d %s", ln.LineNumber, ln.Error)
		}
		b.WriteByte('\n')
	}

	return b.String()
}
