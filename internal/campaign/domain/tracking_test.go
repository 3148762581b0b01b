package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordOpenIsMonotonicAndDeduplicated(t *testing.T) {
	var tracking AggregatedTracking
	now := time.Now()

	assert.False(t, tracking.EverOpened)
	assert.Equal(t, EngagementLevel(""), tracking.Level)

	tracking.RecordOpen("Alice@Startup.IO", "Alice", "Startup", now)
	assert.True(t, tracking.EverOpened)
	assert.Equal(t, EngagementLow, tracking.Level)
	assert.Len(t, tracking.Openers, 1)

	// Same person again, differently cased: count goes up, no new entry.
	tracking.RecordOpen("alice@startup.io", "", "", now.Add(time.Hour))
	assert.Len(t, tracking.Openers, 1)
	assert.Equal(t, 2, tracking.Openers["alice@startup.io"].Count)
	assert.Equal(t, 2, tracking.TotalOpens())
	assert.Equal(t, EngagementMedium, tracking.Level)

	// A colleague the email was forwarded to.
	tracking.RecordOpen("bob@startup.io", "Bob", "Startup", now.Add(2*time.Hour))
	assert.Len(t, tracking.Openers, 2)
	assert.Equal(t, 3, tracking.TotalOpens())
}

func TestRecordReplyEscalatesLevel(t *testing.T) {
	var tracking AggregatedTracking
	now := time.Now()

	tracking.RecordReply("cto@startup.io", "CTO", "Startup", now)
	assert.True(t, tracking.EverReplied)
	assert.Equal(t, EngagementHigh, tracking.Level)
	assert.True(t, tracking.HasReplier("CTO@startup.io"))
	assert.False(t, tracking.HasReplier("nobody@startup.io"))

	// EverOpened never flips back once a later open is recorded.
	tracking.RecordOpen("cto@startup.io", "CTO", "Startup", now.Add(time.Minute))
	assert.True(t, tracking.EverOpened)
	assert.True(t, tracking.EverReplied)
	assert.Equal(t, EngagementHigh, tracking.Level)
}

func TestHasEngagerSpansOpenersAndRepliers(t *testing.T) {
	var tracking AggregatedTracking
	now := time.Now()

	tracking.RecordOpen("opener@co.com", "", "", now)
	tracking.RecordReply("replier@co.com", "", "", now)

	assert.True(t, tracking.HasEngager("Opener@Co.com"))
	assert.True(t, tracking.HasEngager("replier@co.com"))
	assert.False(t, tracking.HasEngager("stranger@co.com"))
}

func TestEngagerMetadataBackfill(t *testing.T) {
	var tracking AggregatedTracking
	now := time.Now()

	tracking.RecordOpen("a@b.com", "", "", now)
	tracking.RecordOpen("a@b.com", "Ana", "BCo", now.Add(time.Minute))

	entry := tracking.Openers["a@b.com"]
	assert.Equal(t, "Ana", entry.Name)
	assert.Equal(t, "BCo", entry.Organization)
	assert.Equal(t, now, entry.FirstSeenAt)
	assert.Equal(t, now.Add(time.Minute), entry.LastSeenAt)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "x@y.com", NormalizeEmail("  X@Y.COM "))
}
