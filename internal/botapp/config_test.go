package botapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validApp() AppConfig {
	return AppConfig{
		SupportChatID: -100123,
		Groups: []GroupSeed{
			{TelegramID: -1, Title: "Main"},
			{TelegramID: -2, Title: "Extras", Parent: "Main"},
		},
	}
}

func TestNormalizeAppDefaults(t *testing.T) {
	app := validApp()
	require.NoError(t, normalizeApp(&app))
	assert.Equal(t, 10, app.ResolveIntervalSeconds)
	assert.Equal(t, 23, app.SweepHour)
}

func TestNormalizeAppKeepsExplicitValues(t *testing.T) {
	app := validApp()
	app.ResolveIntervalSeconds = 5
	app.SweepHour = 6
	require.NoError(t, normalizeApp(&app))
	assert.Equal(t, 5, app.ResolveIntervalSeconds)
	assert.Equal(t, 6, app.SweepHour)
}

func TestNormalizeAppRejectsBadInput(t *testing.T) {
	app := validApp()
	app.SupportChatID = 0
	assert.Error(t, normalizeApp(&app))

	app = validApp()
	app.SweepHour = 24
	assert.Error(t, normalizeApp(&app))

	app = validApp()
	app.Groups = append(app.Groups, GroupSeed{TelegramID: -3, Title: "Main"})
	assert.Error(t, normalizeApp(&app))

	app = validApp()
	app.Groups[1].Parent = "Nowhere"
	assert.Error(t, normalizeApp(&app))

	app = validApp()
	app.Groups[0].Title = ""
	assert.Error(t, normalizeApp(&app))
}

func TestNextDaily(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	next := nextDaily(now, 23)
	assert.Equal(t, time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC), next)

	next = nextDaily(now, 9)
	assert.Equal(t, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), next)

	atHour := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 11, 23, 0, 0, 0, time.UTC), nextDaily(atHour, 23))
}
