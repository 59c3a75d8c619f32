package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := newProgressTracker(&buf)

	tracker.Start(100)
	assert.True(t, tracker.started, "should be started")

	tracker.Update(25)
	tracker.Update(50)
	tracker.Finish()

	elapsed := tracker.Elapsed()
	assert.Greater(t, elapsed, time.Duration(0), "elapsed time should be positive")

	output := buf.String()
	assert.Contains(t, output, "100/100", "should show completion")
	assert.Contains(t, output, "100.0%", "should show 100%")
	assert.Contains(t, output, "\n", "finish should print newline")
}

func TestProgressTracker_UpdateBeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := newProgressTracker(&buf)

	tracker.Start(100)
	tracker.Update(150)

	output := buf.String()
	assert.Contains(t, output, "100/100", "should cap at total")
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := newProgressTracker(&buf)

	tracker.Start(0)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "0/0", "should handle zero total")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := newProgressTracker(&buf)

	tracker.Update(10)
	tracker.Finish()

	assert.Empty(t, buf.String(), "should not report before Start")
	assert.Zero(t, tracker.Elapsed())
}
