package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionExpired(t *testing.T) {
	expiry := time.Date(2026, 3, 12, 10, 0, 30, 0, time.Local)
	s := &TokenSession{ExpiresAt: expiry}

	assert.False(t, s.Expired(expiry.Add(-time.Second)))
	assert.True(t, s.Expired(expiry), "the expiry instant itself is expired")
	assert.True(t, s.Expired(expiry.Add(time.Second)))
}

func TestDayBucket(t *testing.T) {
	at := time.Date(2026, 3, 12, 23, 59, 59, 999_000_000, time.Local)
	day := DayBucket(at)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.Local), day)

	// Just past midnight lands in the next bucket.
	next := DayBucket(at.Add(time.Millisecond))
	assert.Equal(t, day.AddDate(0, 0, 1), next)
}
