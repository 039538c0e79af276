// Package progress draws a single-line progress bar for terminal output.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barWidth = 40

// Bar is safe for concurrent Increment calls from worker goroutines.
type Bar struct {
	out       io.Writer
	label     string
	total     int
	current   int
	mu        sync.Mutex
	startTime time.Time
	lastDraw  time.Time
	done      bool
}

// New creates a bar for total steps drawn on out.
func New(out io.Writer, label string, total int) *Bar {
	now := time.Now()
	return &Bar{out: out, label: label, total: total, startTime: now, lastDraw: now}
}

// Increment advances the bar by one step. Redraws are throttled to two
// per second, except for the final step.
func (b *Bar) Increment() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current < b.total {
		b.current++
	}

	now := time.Now()
	if now.Sub(b.lastDraw) > 500*time.Millisecond || b.current >= b.total {
		b.render(now)
		b.lastDraw = now
	}
}

// Current returns the number of completed steps.
func (b *Bar) Current() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Finish draws the bar complete and ends the line. Later calls do nothing.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	b.current = b.total
	b.render(time.Now())
	fmt.Fprintln(b.out)
	b.done = true
}

func (b *Bar) render(now time.Time) {
	if b.done {
		return
	}

	fraction := 1.0
	if b.total > 0 {
		fraction = float64(b.current) / float64(b.total)
	}
	elapsed := now.Sub(b.startTime)

	var eta time.Duration
	if b.current > 0 {
		eta = elapsed / time.Duration(b.current) * time.Duration(b.total-b.current)
	}

	filled := int(barWidth * fraction)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(b.out, "\r%s [%s] %d/%d (%.1f%%) - Elapsed: %s - ETA: %s   ",
		b.label, bar, b.current, b.total, fraction*100,
		formatDuration(elapsed), formatDuration(eta))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
