package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membot/internal/domain"
	"membot/internal/store"

	tele "gopkg.in/telebot.v4"
)

type fakeSweepStore struct {
	subs     map[int64]*domain.Subscription
	users    map[int64]*domain.User
	groups   []domain.Group
	settings map[string]string
}

func newFakeSweepStore() *fakeSweepStore {
	return &fakeSweepStore{
		subs:     map[int64]*domain.Subscription{},
		users:    map[int64]*domain.User{},
		settings: map[string]string{},
	}
}

func (f *fakeSweepStore) ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var out []domain.Subscription
	for _, s := range f.subs {
		if s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSweepStore) ActiveSubscriptionsByUser(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	var out []domain.Subscription
	for _, s := range f.subs {
		if s.UserID == userID && s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSweepStore) DeactivateSubscription(ctx context.Context, id int64) error {
	s, ok := f.subs[id]
	if !ok || !s.IsActive {
		return store.ErrNotFound
	}
	s.IsActive = false
	return nil
}

func (f *fakeSweepStore) SetRenewalNotified(ctx context.Context, id int64, count int) error {
	f.subs[id].RenewalNotified = count
	return nil
}

func (f *fakeSweepStore) UserByID(ctx context.Context, id int64) (domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return *u, nil
}

func (f *fakeSweepStore) AllUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeSweepStore) GroupByTelegramID(ctx context.Context, telegramID int64) (domain.Group, error) {
	for _, g := range f.groups {
		if g.TelegramID == telegramID {
			return g, nil
		}
	}
	return domain.Group{}, store.ErrNotFound
}

func (f *fakeSweepStore) MainGroups(ctx context.Context) ([]domain.Group, error) {
	var out []domain.Group
	for _, g := range f.groups {
		if !g.IsSubgroup() {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeSweepStore) Subgroups(ctx context.Context, parentID int64) ([]domain.Group, error) {
	var out []domain.Group
	for _, g := range f.groups {
		if g.ParentID != nil && *g.ParentID == parentID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeSweepStore) GetSetting(ctx context.Context, key string) (string, error) {
	v, ok := f.settings[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *fakeSweepStore) TouchRemovedFromGroup(ctx context.Context, telegramID int64, at time.Time) error {
	for _, u := range f.users {
		if u.TelegramID == telegramID {
			t := at
			u.LastRemovedFromGrp = &t
		}
	}
	return nil
}

type removal struct{ chatID, userID int64 }

type fakeSweepGateway struct {
	messages []string
	removals []removal
}

func (f *fakeSweepGateway) SendMessage(ctx context.Context, telegramID int64, text string, markup ...*tele.ReplyMarkup) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeSweepGateway) RemoveMember(ctx context.Context, chatID, userID int64) error {
	f.removals = append(f.removals, removal{chatID: chatID, userID: userID})
	return nil
}

var sweepNow = time.Date(2025, time.March, 10, 23, 0, 0, 0, time.UTC)

func newTestSweeper(fs *fakeSweepStore, tg *fakeSweepGateway) *Sweeper {
	sw := New(fs, tg, 23)
	sw.now = func() time.Time { return sweepNow }
	return sw
}

func date(daysFromNow int) time.Time {
	return time.Date(sweepNow.Year(), sweepNow.Month(), sweepNow.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, daysFromNow)
}

func addedAt(t time.Time) *time.Time { return &t }

func TestExpiredSubscriptionDeactivatedAndUserRemovedOnce(t *testing.T) {
	fs := newFakeSweepStore()
	fs.users[7] = &domain.User{ID: 7, TelegramID: 111, LastAddedToGroup: addedAt(date(-30))}
	fs.groups = []domain.Group{{ID: 1, TelegramID: -1, Title: "Gold"}}
	fs.subs[42] = &domain.Subscription{
		ID: 42, UserID: 7, ChatID: -1, ChatName: "Gold",
		EndDate: date(-1), IsActive: true,
	}
	tg := &fakeSweepGateway{}
	sw := newTestSweeper(fs, tg)
	ctx := context.Background()

	sw.Sweep(ctx)

	assert.False(t, fs.subs[42].IsActive)
	require.Len(t, tg.removals, 1)
	assert.Equal(t, removal{chatID: -1, userID: 111}, tg.removals[0])
	require.Len(t, tg.messages, 1)
	assert.Contains(t, tg.messages[0], "expired")
	require.NotNil(t, fs.users[7].LastRemovedFromGrp)

	// Re-running over the same data must not remove or notify again.
	sw.Sweep(ctx)
	assert.Len(t, tg.removals, 1)
	assert.Len(t, tg.messages, 1)
}

func TestRemovalCoversFamilySubgroups(t *testing.T) {
	fs := newFakeSweepStore()
	fs.users[7] = &domain.User{ID: 7, TelegramID: 111, LastAddedToGroup: addedAt(date(-10))}
	parent := int64(1)
	fs.groups = []domain.Group{
		{ID: 1, TelegramID: -1, Title: "Gold"},
		{ID: 2, TelegramID: -2, Title: "Gold VIP", ParentID: &parent},
	}
	tg := &fakeSweepGateway{}
	sw := newTestSweeper(fs, tg)

	sw.Sweep(context.Background())

	assert.Equal(t, []removal{
		{chatID: -1, userID: 111},
		{chatID: -2, userID: 111},
	}, tg.removals)
}

func TestSevenDayReminderSentOnce(t *testing.T) {
	fs := newFakeSweepStore()
	fs.users[7] = &domain.User{ID: 7, TelegramID: 111}
	fs.settings[domain.SettingSallaLink] = "https://store.example.com"
	fs.subs[42] = &domain.Subscription{
		ID: 42, UserID: 7, ChatID: -1, ChatName: "Gold",
		EndDate: date(7), IsActive: true,
	}
	tg := &fakeSweepGateway{}
	sw := newTestSweeper(fs, tg)
	ctx := context.Background()

	sw.Sweep(ctx)
	require.Len(t, tg.messages, 1)
	assert.Contains(t, tg.messages[0], "7 day(s)")
	assert.Contains(t, tg.messages[0], "https://store.example.com")
	assert.Equal(t, 1, fs.subs[42].RenewalNotified)

	sw.Sweep(ctx)
	assert.Len(t, tg.messages, 1)
}

func TestFinalReminderFollowsFirst(t *testing.T) {
	fs := newFakeSweepStore()
	fs.users[7] = &domain.User{ID: 7, TelegramID: 111}
	fs.subs[42] = &domain.Subscription{
		ID: 42, UserID: 7, ChatID: -1, ChatName: "Gold",
		EndDate: date(1), IsActive: true, RenewalNotified: 1,
	}
	tg := &fakeSweepGateway{}
	sw := newTestSweeper(fs, tg)
	ctx := context.Background()

	sw.Sweep(ctx)
	require.Len(t, tg.messages, 1)
	assert.Contains(t, tg.messages[0], "1 day(s)")
	assert.Equal(t, 2, fs.subs[42].RenewalNotified)

	sw.Sweep(ctx)
	assert.Len(t, tg.messages, 1)
}

func TestHealthySubscriptionUntouched(t *testing.T) {
	fs := newFakeSweepStore()
	fs.users[7] = &domain.User{ID: 7, TelegramID: 111, LastAddedToGroup: addedAt(date(-5))}
	fs.groups = []domain.Group{{ID: 1, TelegramID: -1, Title: "Gold"}}
	fs.subs[42] = &domain.Subscription{
		ID: 42, UserID: 7, ChatID: -1, ChatName: "Gold",
		EndDate: date(30), IsActive: true,
	}
	tg := &fakeSweepGateway{}
	sw := newTestSweeper(fs, tg)

	sw.Sweep(context.Background())

	assert.Empty(t, tg.messages)
	assert.Empty(t, tg.removals)
	assert.True(t, fs.subs[42].IsActive)
}

func TestExpiryRemovesUserFromExpiredGroupOnly(t *testing.T) {
	fs := newFakeSweepStore()
	fs.users[7] = &domain.User{ID: 7, TelegramID: 111, LastAddedToGroup: addedAt(date(-5))}
	fs.groups = []domain.Group{
		{ID: 1, TelegramID: -1, Title: "Gold"},
		{ID: 2, TelegramID: -2, Title: "Silver"},
	}
	fs.subs[42] = &domain.Subscription{
		ID: 42, UserID: 7, ChatID: -1, ChatName: "Gold",
		EndDate: date(-1), IsActive: true,
	}
	fs.subs[43] = &domain.Subscription{
		ID: 43, UserID: 7, ChatID: -2, ChatName: "Silver",
		EndDate: date(20), IsActive: true,
	}
	tg := &fakeSweepGateway{}
	sw := newTestSweeper(fs, tg)
	ctx := context.Background()

	sw.Sweep(ctx)

	assert.False(t, fs.subs[42].IsActive)
	assert.True(t, fs.subs[43].IsActive)
	assert.Equal(t, []removal{{chatID: -1, userID: 111}}, tg.removals)
	// Still inside Silver, so the membership marks are untouched.
	assert.Nil(t, fs.users[7].LastRemovedFromGrp)

	sw.Sweep(ctx)
	assert.Len(t, tg.removals, 1)
}

func TestExpiryRemovalCoversFamilySubgroups(t *testing.T) {
	fs := newFakeSweepStore()
	fs.users[7] = &domain.User{ID: 7, TelegramID: 111, LastAddedToGroup: addedAt(date(-5))}
	parent := int64(1)
	fs.groups = []domain.Group{
		{ID: 1, TelegramID: -1, Title: "Gold"},
		{ID: 2, TelegramID: -2, Title: "Gold VIP", ParentID: &parent},
		{ID: 3, TelegramID: -3, Title: "Silver"},
	}
	fs.subs[42] = &domain.Subscription{
		ID: 42, UserID: 7, ChatID: -1, ChatName: "Gold",
		EndDate: date(-1), IsActive: true,
	}
	fs.subs[43] = &domain.Subscription{
		ID: 43, UserID: 7, ChatID: -3, ChatName: "Silver",
		EndDate: date(20), IsActive: true,
	}
	tg := &fakeSweepGateway{}
	sw := newTestSweeper(fs, tg)

	sw.Sweep(context.Background())

	assert.Equal(t, []removal{
		{chatID: -1, userID: 111},
		{chatID: -2, userID: 111},
	}, tg.removals)
}

func TestNextRunLandsOnConfiguredHour(t *testing.T) {
	sw := newTestSweeper(newFakeSweepStore(), &fakeSweepGateway{})

	next := sw.nextRun()
	assert.Equal(t, 23, next.Hour())
	assert.True(t, next.After(sweepNow))
}
