package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// progressTracker reports indexing progress for the one-shot index command.
type progressTracker struct {
	writer       io.Writer
	total        int
	current      int
	lastReported int
	startTime    time.Time
	started      bool
	mu           sync.Mutex
}

func newProgressTracker(writer io.Writer) *progressTracker {
	return &progressTracker{writer: writer}
}

// Start begins tracking progress against the given total.
func (p *progressTracker) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.total = total
	p.current = 0
	p.lastReported = -1
}

// Update sets the number of documents that have reached a terminal stage.
func (p *progressTracker) Update(current int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	if current > p.total {
		current = p.total
	}
	p.current = current

	if p.current > p.lastReported {
		p.report()
		p.lastReported = p.current
	}
}

// Finish prints the final progress line.
func (p *progressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.current = p.total
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start was called.
func (p *progressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *progressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := float64(p.current) / elapsed.Seconds()

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%) - %.1f documents/s",
		p.current, p.total, percentage, rate)
}
