package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPAttemptTrackerBlocksAfterRepeatedAttempts(t *testing.T) {
	tracker := NewIPAttemptTracker()
	t.Cleanup(tracker.Close)

	for i := 0; i < 5; i++ {
		tracker.RecordAttempt("10.0.0.1")
	}
	assert.False(t, tracker.ShouldDelay("10.0.0.1"))

	tracker.RecordAttempt("10.0.0.1")
	assert.True(t, tracker.ShouldDelay("10.0.0.1"))

	assert.False(t, tracker.ShouldDelay("10.0.0.2"), "other clients are unaffected")
}

func TestIPAttemptTrackerCleanup(t *testing.T) {
	tracker := NewIPAttemptTracker()
	t.Cleanup(tracker.Close)

	for i := 0; i < 6; i++ {
		tracker.RecordAttempt("10.0.0.1")
	}
	tracker.mu.Lock()
	tracker.attempts["10.0.0.1"].LastAttempt = tracker.attempts["10.0.0.1"].LastAttempt.Add(-time.Minute)
	tracker.mu.Unlock()

	tracker.cleanOldEntries()
	assert.False(t, tracker.ShouldDelay("10.0.0.1"), "stale entries are dropped")
}

func TestIPAttemptTrackerCloseIsIdempotent(t *testing.T) {
	tracker := NewIPAttemptTracker()

	tracker.Close()
	tracker.Close()
}
