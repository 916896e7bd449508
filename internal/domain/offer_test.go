package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendingTimesSpreadEvenly(t *testing.T) {
	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC) // Monday
	msg := OfferMessage{Content: "hi", PerPeriod: 2}

	times := msg.SendingTimes(start)
	require.Len(t, times, 2)

	// Two sends per period land in the middle of each week, on the hour.
	assert.Equal(t, time.Date(2025, time.March, 6, 12, 0, 0, 0, time.UTC), times[0])
	assert.Equal(t, time.Date(2025, time.March, 13, 12, 0, 0, 0, time.UTC), times[1])
}

func TestSendingTimesEmptyForNonPositiveCount(t *testing.T) {
	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, OfferMessage{PerPeriod: 0}.SendingTimes(start))
}

func TestDueAtMatchesWholeHourOnly(t *testing.T) {
	start := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	msg := OfferMessage{Content: "hi", PerPeriod: 2}

	inHour := time.Date(2025, time.March, 6, 12, 45, 0, 0, time.UTC)
	assert.True(t, msg.DueAt(start, inHour))

	nextHour := time.Date(2025, time.March, 6, 13, 0, 0, 0, time.UTC)
	assert.False(t, msg.DueAt(start, nextHour))

	sameHourNextDay := time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)
	assert.False(t, msg.DueAt(start, sameHourNextDay))
}
