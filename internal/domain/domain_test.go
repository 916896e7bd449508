package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDaysLeft(t *testing.T) {
	now := time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		end  time.Time
		want int
	}{
		{"ends today", date(2025, time.March, 10), 0},
		{"ends tomorrow", date(2025, time.March, 11), 1},
		{"ends in a week", date(2025, time.March, 17), 7},
		{"already expired", date(2025, time.March, 1), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Subscription{EndDate: tc.end}
			assert.Equal(t, tc.want, s.DaysLeft(now))
		})
	}
}

func TestDaysLeftIgnoresTimeOfDay(t *testing.T) {
	// Late evening today vs early morning end date must still count whole days.
	now := time.Date(2025, time.March, 10, 23, 59, 0, 0, time.UTC)
	s := Subscription{EndDate: time.Date(2025, time.March, 11, 0, 1, 0, 0, time.UTC)}
	assert.Equal(t, 1, s.DaysLeft(now))
}

func TestExpired(t *testing.T) {
	now := date(2025, time.March, 10)
	assert.True(t, Subscription{EndDate: date(2025, time.March, 10)}.Expired(now))
	assert.True(t, Subscription{EndDate: date(2025, time.March, 9)}.Expired(now))
	assert.False(t, Subscription{EndDate: date(2025, time.March, 11)}.Expired(now))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusApproved))
	assert.True(t, StatusPending.CanTransition(StatusDeclined))
	assert.True(t, StatusApproved.CanTransition(StatusCompleted))
	assert.True(t, StatusDeclined.CanTransition(StatusCompleted))

	assert.False(t, StatusPending.CanTransition(StatusCompleted))
	assert.False(t, StatusApproved.CanTransition(StatusPending))
	assert.False(t, StatusCompleted.CanTransition(StatusApproved))
	assert.False(t, StatusCompleted.CanTransition(StatusCompleted))
}

func TestParsePaymentMethod(t *testing.T) {
	for _, valid := range []string{"salla", "stc", "trial", "other"} {
		got, err := ParsePaymentMethod(valid)
		require.NoError(t, err)
		assert.Equal(t, PaymentMethod(valid), got)
	}
	_, err := ParsePaymentMethod("cash")
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"admin", "employee", "tutor"} {
		got, err := ParseRole(valid)
		require.NoError(t, err)
		assert.Equal(t, Role(valid), got)
	}
	_, err := ParseRole("owner")
	assert.Error(t, err)
}

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", User{FirstName: "Ada", LastName: "Lovelace"}.FullName())
	assert.Equal(t, "Ada", User{FirstName: "Ada"}.FullName())
	assert.Equal(t, "ada42", User{Username: "ada42"}.FullName())
}
