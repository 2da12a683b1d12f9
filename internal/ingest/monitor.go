package ingest

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// progressBarWidth is the cell count of the rendered bar.
const progressBarWidth = 50

// PerformanceMonitor tracks throughput and success counters for one
// ingestion run and renders an in-place progress bar. It is not safe for
// concurrent use; the ingester drives it from a single goroutine.
type PerformanceMonitor struct {
	out io.Writer
	tty bool

	start     time.Time
	processed int
	failed    int
	timings   []time.Duration
}

// NewPerformanceMonitor returns a monitor that renders to stderr when
// stderr is a terminal and stays silent otherwise, keeping piped output
// parseable.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		out: os.Stderr,
		tty: isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()),
	}
}

// Start resets all counters and begins timing.
func (m *PerformanceMonitor) Start() {
	m.start = time.Now()
	m.processed = 0
	m.failed = 0
	m.timings = nil
}

// RecordDocument counts one document. elapsed may be zero when the
// caller tracks per-document timing elsewhere; only positive successful
// timings enter the average.
func (m *PerformanceMonitor) RecordDocument(elapsed time.Duration, failed bool) {
	if failed {
		m.failed++
		return
	}
	m.processed++
	if elapsed > 0 {
		m.timings = append(m.timings, elapsed)
	}
}

// Stats is a snapshot of the monitor counters plus derived rates. The
// ETA fields are populated only when the snapshot was taken with a known
// total.
type Stats struct {
	Elapsed           time.Duration
	Processed         int
	Failed            int
	TotalProcessed    int
	SuccessRate       float64
	ThroughputPerMin  float64
	AvgProcessingTime time.Duration
	Remaining         int
	ETA               time.Duration
	CompletionPercent float64
}

// Statistics snapshots the counters. total <= 0 means the run size is
// unknown and no ETA is computed. Calling before Start returns a zero
// snapshot.
func (m *PerformanceMonitor) Statistics(total int) Stats {
	if m.start.IsZero() {
		return Stats{}
	}

	elapsed := time.Since(m.start)
	totalProcessed := m.processed + m.failed

	s := Stats{
		Elapsed:        elapsed,
		Processed:      m.processed,
		Failed:         m.failed,
		TotalProcessed: totalProcessed,
	}
	if totalProcessed > 0 {
		s.SuccessRate = float64(m.processed) / float64(totalProcessed) * 100
	}
	if elapsed > 0 {
		s.ThroughputPerMin = float64(totalProcessed) / elapsed.Minutes()
	}
	if len(m.timings) > 0 {
		var sum time.Duration
		for _, t := range m.timings {
			sum += t
		}
		s.AvgProcessingTime = sum / time.Duration(len(m.timings))
	}
	if total > 0 && totalProcessed > 0 {
		s.Remaining = total - totalProcessed
		rate := float64(totalProcessed) / elapsed.Seconds()
		if rate > 0 {
			s.ETA = time.Duration(float64(s.Remaining) / rate * float64(time.Second))
		}
		s.CompletionPercent = float64(totalProcessed) / float64(total) * 100
	}
	return s
}

// PrintProgress renders the bar in place with percentage, counts and
// ETA, and emits the closing newline once current reaches total. Nothing
// is written when the output is not a terminal.
func (m *PerformanceMonitor) PrintProgress(current, total int, prefix string) {
	if !m.tty || total <= 0 {
		return
	}

	percent := float64(current) / float64(total) * 100
	filled := progressBarWidth * current / total
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)

	eta := "calculating..."
	if s := m.Statistics(total); s.TotalProcessed > 0 {
		eta = formatDuration(s.ETA)
	}

	fmt.Fprintf(m.out, "\r%s: |%s| %.1f%% (%d/%d) ETA: %s", prefix, bar, percent, current, total, eta)
	if current >= total {
		fmt.Fprintln(m.out)
	}
}

// formatDuration renders a duration the way run summaries read best:
// tenths of a second under a minute, then minute and hour granularity.
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", int(secs)/60, int(secs)%60)
	default:
		return fmt.Sprintf("%dh %dm", int(secs)/3600, int(secs)%3600/60)
	}
}
