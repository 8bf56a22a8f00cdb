package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates results from many simulated pairs. All methods are
// goroutine-safe.
type Collector struct {
	mu             sync.Mutex
	setupLatencies []time.Duration
	swipeLatencies []time.Duration
	matchLatencies []time.Duration
	pairs          int
	completed      int
	matches        int
	errors         int
	startTime      time.Time
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// AddSetup records the time to create and join one session.
func (c *Collector) AddSetup(d time.Duration) {
	c.mu.Lock()
	c.setupLatencies = append(c.setupLatencies, d)
	c.pairs++
	c.mu.Unlock()
}

// AddSwipe records one swipe round trip.
func (c *Collector) AddSwipe(d time.Duration) {
	c.mu.Lock()
	c.swipeLatencies = append(c.swipeLatencies, d)
	c.mu.Unlock()
}

// AddMatch records a match and the time since the pair started swiping.
func (c *Collector) AddMatch(sinceStart time.Duration) {
	c.mu.Lock()
	c.matchLatencies = append(c.matchLatencies, sinceStart)
	c.matches++
	c.mu.Unlock()
}

// AddCompleted counts a session that reached the completed state.
func (c *Collector) AddCompleted() {
	c.mu.Lock()
	c.completed++
	c.mu.Unlock()
}

// AddError increments the error counter.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// Matches returns the number of matches seen so far.
func (c *Collector) Matches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matches
}

// ErrorCount returns the number of recorded errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Report writes a summary with latency percentiles to w.
func (c *Collector) Report(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(w, "\n=== Simulation Results ===")
	fmt.Fprintf(w, "Duration:   %s\n", time.Since(c.startTime).Round(time.Second))
	fmt.Fprintf(w, "Pairs:      %d\n", c.pairs)
	fmt.Fprintf(w, "Completed:  %d\n", c.completed)
	fmt.Fprintf(w, "Matches:    %d\n", c.matches)
	fmt.Fprintf(w, "Errors:     %d\n", c.errors)

	if len(c.setupLatencies) > 0 {
		fmt.Fprintln(w, "\n--- Create + Join ---")
		printPercentiles(w, c.setupLatencies)
	}
	if len(c.swipeLatencies) > 0 {
		fmt.Fprintln(w, "\n--- Swipe ---")
		printPercentiles(w, c.swipeLatencies)
	}
	if len(c.matchLatencies) > 0 {
		fmt.Fprintln(w, "\n--- Time to match ---")
		printPercentiles(w, c.matchLatencies)
	}
	fmt.Fprintln(w)
}

func printPercentiles(w io.Writer, durations []time.Duration) {
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	fmt.Fprintf(w, "  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
		(sum / time.Duration(n)).Round(time.Microsecond),
		percentile(sorted, 0.50).Round(time.Microsecond),
		percentile(sorted, 0.95).Round(time.Microsecond),
		percentile(sorted, 0.99).Round(time.Microsecond),
		sorted[n-1].Round(time.Microsecond),
		n,
	)
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
