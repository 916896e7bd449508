package botapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// captureCtx records outgoing messages instead of hitting the Bot API.
type captureCtx struct {
	tele.Context
	sent []string
}

func (c *captureCtx) Send(what interface{}, opts ...interface{}) error {
	if s, ok := what.(string); ok {
		c.sent = append(c.sent, s)
	}
	return nil
}

func TestLostResolutionRaceSendsSingleNotice(t *testing.T) {
	a := &App{}
	ctx := context.Background()

	t.Run("already resolved", func(t *testing.T) {
		c := &captureCtx{}
		err := a.reportResolution(ctx, c, 42, store.ErrAlreadyResolved)
		require.ErrorIs(t, err, errEffectsHalted)
		require.Len(t, c.sent, 1)
		assert.Contains(t, c.sent[0], "already resolved")
	})

	t.Run("request gone", func(t *testing.T) {
		c := &captureCtx{}
		err := a.reportResolution(ctx, c, 42, store.ErrNotFound)
		require.ErrorIs(t, err, errEffectsHalted)
		require.Len(t, c.sent, 1)
		assert.Contains(t, c.sent[0], "no longer exists")
	})
}

func TestResolutionSuccessAndFailurePassThrough(t *testing.T) {
	a := &App{}
	ctx := context.Background()

	c := &captureCtx{}
	require.NoError(t, a.reportResolution(ctx, c, 42, nil))
	assert.Empty(t, c.sent)

	err := a.reportResolution(ctx, c, 42, assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, c.sent)
}
