package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membot/internal/domain"
	"membot/internal/session"
)

func TestOfferMessageFlow(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	staff := domain.User{ID: 1, TelegramID: 900}
	s := &session.Session{UserID: staff.ID}
	ctx := context.Background()

	effects := m.StartOfferMessage(s)
	require.Len(t, effects, 1)
	assert.Equal(t, session.StepOfferContent, s.Step)

	effects, err := m.Transition(ctx, staff, s, textIn("Spring sale, 20% off!"))
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, session.StepOfferPerPeriod, s.Step)

	// Non-numeric and non-positive counts re-prompt without advancing.
	effects, err = m.Transition(ctx, staff, s, textIn("often"))
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, session.StepOfferPerPeriod, s.Step)

	effects, err = m.Transition(ctx, staff, s, textIn("0"))
	require.NoError(t, err)
	assert.Equal(t, session.StepOfferPerPeriod, s.Step)

	effects, err = m.Transition(ctx, staff, s, textIn("3"))
	require.NoError(t, err)
	require.Len(t, effects, 2)
	commit, ok := effects[0].(CreateOfferMessage)
	require.True(t, ok)
	assert.Equal(t, "Spring sale, 20% off!", commit.Content)
	assert.Equal(t, 3, commit.PerPeriod)
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestOfferContentRejectsEmptyInput(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	staff := domain.User{ID: 1, TelegramID: 900}
	s := &session.Session{UserID: staff.ID}

	m.StartOfferMessage(s)
	effects, err := m.Transition(context.Background(), staff, s, textIn("   "))
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, session.StepOfferContent, s.Step)
}
