package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membot/internal/domain"
	"membot/internal/store"

	tele "gopkg.in/telebot.v4"
)

type fakeResolverStore struct {
	requests  map[int64]*domain.SubscriptionRequest
	trainings map[int64]*domain.TrainingRequest
	users     []domain.User
	groups    []domain.Group
	employees []domain.Employee

	subs      []domain.Subscription
	nextSubID int64
	renewed   []int64
	linked    map[int64]int64
	touched   []int64
}

func newFakeResolverStore() *fakeResolverStore {
	return &fakeResolverStore{
		requests:  map[int64]*domain.SubscriptionRequest{},
		trainings: map[int64]*domain.TrainingRequest{},
		nextSubID: 100,
		linked:    map[int64]int64{},
	}
}

func (f *fakeResolverStore) PendingUnreported(ctx context.Context) ([]domain.SubscriptionRequest, error) {
	var out []domain.SubscriptionRequest
	for _, r := range f.requests {
		if r.Status == domain.StatusPending && !r.Reported {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeResolverStore) MarkReported(ctx context.Context, id int64) error {
	f.requests[id].Reported = true
	return nil
}

func (f *fakeResolverStore) ResolvedUnannounced(ctx context.Context) ([]domain.SubscriptionRequest, error) {
	var out []domain.SubscriptionRequest
	for _, r := range f.requests {
		if (r.Status == domain.StatusApproved || r.Status == domain.StatusDeclined) && !r.Announced {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeResolverStore) MarkAnnouncedAndCompleted(ctx context.Context, id int64) error {
	r := f.requests[id]
	r.Announced = true
	r.Status = domain.StatusCompleted
	return nil
}

func (f *fakeResolverStore) LinkSubscription(ctx context.Context, id, subscriptionID int64) error {
	f.linked[id] = subscriptionID
	return nil
}

func (f *fakeResolverStore) PendingUnreportedTrainings(ctx context.Context) ([]domain.TrainingRequest, error) {
	var out []domain.TrainingRequest
	for _, r := range f.trainings {
		if r.Status == domain.StatusPending && !r.Reported {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeResolverStore) MarkTrainingReported(ctx context.Context, id int64) error {
	f.trainings[id].Reported = true
	return nil
}

func (f *fakeResolverStore) ResolvedUnannouncedTrainings(ctx context.Context) ([]domain.TrainingRequest, error) {
	var out []domain.TrainingRequest
	for _, r := range f.trainings {
		if (r.Status == domain.StatusApproved || r.Status == domain.StatusDeclined) && !r.Announced {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeResolverStore) MarkTrainingAnnouncedAndCompleted(ctx context.Context, id int64) error {
	r := f.trainings[id]
	r.Announced = true
	r.Status = domain.StatusCompleted
	return nil
}

func (f *fakeResolverStore) UserByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	for _, u := range f.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return domain.User{}, store.ErrNotFound
}

func (f *fakeResolverStore) CreateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	f.nextSubID++
	sub.ID = f.nextSubID
	sub.IsActive = true
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeResolverStore) RenewSubscription(ctx context.Context, oldID int64, endDate time.Time, method domain.PaymentMethod, invoice, externalID string) (domain.Subscription, error) {
	f.renewed = append(f.renewed, oldID)
	f.nextSubID++
	sub := domain.Subscription{ID: f.nextSubID, EndDate: endDate, PaymentMethod: method, IsActive: true}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeResolverStore) GroupByTelegramID(ctx context.Context, telegramID int64) (domain.Group, error) {
	for _, g := range f.groups {
		if g.TelegramID == telegramID {
			return g, nil
		}
	}
	return domain.Group{}, store.ErrNotFound
}

func (f *fakeResolverStore) Subgroups(ctx context.Context, parentID int64) ([]domain.Group, error) {
	var out []domain.Group
	for _, g := range f.groups {
		if g.ParentID != nil && *g.ParentID == parentID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeResolverStore) EmployeeByID(ctx context.Context, id int64) (domain.Employee, error) {
	for _, e := range f.employees {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.Employee{}, store.ErrNotFound
}

func (f *fakeResolverStore) TouchAddedToGroup(ctx context.Context, telegramID int64, at time.Time) error {
	f.touched = append(f.touched, telegramID)
	return nil
}

type sentMessage struct {
	recipient int64
	text      string
	markup    *tele.ReplyMarkup
}

type fakeMessenger struct {
	direct    []sentMessage
	chat      []sentMessage
	invites   []int64
	sendErr   error
	inviteErr error
}

func (f *fakeMessenger) SendMessage(ctx context.Context, telegramID int64, text string, markup ...*tele.ReplyMarkup) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	msg := sentMessage{recipient: telegramID, text: text}
	if len(markup) > 0 {
		msg.markup = markup[0]
	}
	f.direct = append(f.direct, msg)
	return nil
}

func (f *fakeMessenger) SendToChat(ctx context.Context, chatID int64, text string, markup ...*tele.ReplyMarkup) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	msg := sentMessage{recipient: chatID, text: text}
	if len(markup) > 0 {
		msg.markup = markup[0]
	}
	f.chat = append(f.chat, msg)
	return nil
}

func (f *fakeMessenger) CreateInvite(ctx context.Context, chatID int64, expiresAt time.Time) (string, error) {
	if f.inviteErr != nil {
		return "", f.inviteErr
	}
	f.invites = append(f.invites, chatID)
	return fmt.Sprintf("https://t.me/+invite%d", chatID), nil
}

const staffChat = int64(-999)

func futureDate(days int) *time.Time {
	d := time.Now().AddDate(0, 0, days)
	return &d
}

func TestPendingRequestReportedOnce(t *testing.T) {
	fs := newFakeResolverStore()
	fs.requests[1] = &domain.SubscriptionRequest{
		ID: 1, UserTelegramID: 111, Username: "trader",
		ChatID: -1, ChatName: "Gold", PaymentMethod: domain.PaySTC,
		InvoiceNumber: "INV1", ExternalAccountID: "TV1",
		Status: domain.StatusPending,
	}
	tg := &fakeMessenger{}
	r := New(fs, tg, staffChat, time.Second)
	ctx := context.Background()

	r.tick(ctx)
	require.Len(t, tg.chat, 1)
	assert.Equal(t, staffChat, tg.chat[0].recipient)
	assert.Contains(t, tg.chat[0].text, "@trader")
	assert.Contains(t, tg.chat[0].text, "INV1")
	require.NotNil(t, tg.chat[0].markup)
	require.Len(t, tg.chat[0].markup.InlineKeyboard, 1)
	assert.Len(t, tg.chat[0].markup.InlineKeyboard[0], 2)

	// A second tick must not repeat the report.
	r.tick(ctx)
	assert.Len(t, tg.chat, 1)
}

func TestStaffReportEscapesUserSuppliedFields(t *testing.T) {
	fs := newFakeResolverStore()
	fs.requests[1] = &domain.SubscriptionRequest{
		ID: 1, UserTelegramID: 111, Username: "under_score",
		ChatID: -1, ChatName: "Gold *Signals*", PaymentMethod: domain.PaySTC,
		InvoiceNumber: "INV_2024[1]", ExternalAccountID: "acc`one",
		Status: domain.StatusPending,
	}
	tg := &fakeMessenger{}
	r := New(fs, tg, staffChat, time.Second)

	r.tick(context.Background())

	require.Len(t, tg.chat, 1)
	text := tg.chat[0].text
	assert.Contains(t, text, `@under\_score`)
	assert.Contains(t, text, `Gold \*Signals\*`)
	assert.Contains(t, text, `INV\_2024\[1]`)
	assert.Contains(t, text, "acc\\`one")
}

func TestDeclineNoticeEscapesReason(t *testing.T) {
	fs := newFakeResolverStore()
	reason := "invoice_mismatch [see notes]"
	fs.requests[7] = &domain.SubscriptionRequest{
		ID: 7, UserTelegramID: 111, ChatName: "Gold_2024",
		Status: domain.StatusDeclined, Reported: true, RejectReason: &reason,
	}
	tg := &fakeMessenger{}
	r := New(fs, tg, staffChat, time.Second)

	r.tick(context.Background())

	require.Len(t, tg.direct, 1)
	assert.Contains(t, tg.direct[0].text, `Gold\_2024`)
	assert.Contains(t, tg.direct[0].text, `invoice\_mismatch \[see notes]`)
}

func TestReportRetriedAfterSendFailure(t *testing.T) {
	fs := newFakeResolverStore()
	fs.requests[1] = &domain.SubscriptionRequest{
		ID: 1, UserTelegramID: 111, Status: domain.StatusPending,
	}
	tg := &fakeMessenger{sendErr: errors.New("boom")}
	r := New(fs, tg, staffChat, time.Second)
	ctx := context.Background()

	r.tick(ctx)
	assert.False(t, fs.requests[1].Reported)

	tg.sendErr = nil
	r.tick(ctx)
	assert.True(t, fs.requests[1].Reported)
	assert.Len(t, tg.chat, 1)
}

func TestApprovedRequestFulfilled(t *testing.T) {
	fs := newFakeResolverStore()
	fs.users = []domain.User{{ID: 7, TelegramID: 111, Username: "trader"}}
	fs.groups = []domain.Group{
		{ID: 1, TelegramID: -1, Title: "Gold"},
		{ID: 2, TelegramID: -2, Title: "Gold VIP", ParentID: ptr(int64(1))},
	}
	fs.requests[5] = &domain.SubscriptionRequest{
		ID: 5, UserTelegramID: 111, Username: "trader",
		ChatID: -1, ChatName: "Gold",
		PaymentMethod: domain.PaySTC, InvoiceNumber: "INV1", ExternalAccountID: "TV1",
		Status: domain.StatusApproved, Reported: true,
		EndDate: futureDate(30),
	}
	tg := &fakeMessenger{}
	r := New(fs, tg, staffChat, time.Second)
	ctx := context.Background()

	r.tick(ctx)

	require.Len(t, fs.subs, 1)
	assert.Equal(t, int64(7), fs.subs[0].UserID)
	assert.Equal(t, int64(-1), fs.subs[0].ChatID)
	assert.Equal(t, fs.subs[0].ID, fs.linked[5])

	// Invites for the main group and its subgroup.
	assert.Equal(t, []int64{-1, -2}, tg.invites)

	require.Len(t, tg.direct, 1)
	assert.Equal(t, int64(111), tg.direct[0].recipient)
	assert.Contains(t, tg.direct[0].text, "approved")
	assert.Contains(t, tg.direct[0].text, "https://t.me/+invite-1")
	assert.Contains(t, tg.direct[0].text, "https://t.me/+invite-2")

	assert.Equal(t, domain.StatusCompleted, fs.requests[5].Status)
	assert.True(t, fs.requests[5].Announced)
	assert.Equal(t, []int64{111}, fs.touched)

	// Completed requests are not picked up again.
	r.tick(ctx)
	assert.Len(t, tg.direct, 1)
	assert.Len(t, fs.subs, 1)
}

func TestApprovedRenewalUsesExistingSubscription(t *testing.T) {
	fs := newFakeResolverStore()
	fs.users = []domain.User{{ID: 7, TelegramID: 111}}
	oldID := int64(42)
	fs.requests[6] = &domain.SubscriptionRequest{
		ID: 6, UserTelegramID: 111, ChatID: -1, ChatName: "Gold",
		PaymentMethod: domain.PaySalla,
		Status:        domain.StatusApproved, Reported: true,
		EndDate: futureDate(60), SubscriptionID: &oldID,
	}
	tg := &fakeMessenger{}
	r := New(fs, tg, staffChat, time.Second)

	r.tick(context.Background())

	assert.Equal(t, []int64{42}, fs.renewed)
	assert.Equal(t, domain.StatusCompleted, fs.requests[6].Status)
}

func TestDeclinedRequestAnnouncesReason(t *testing.T) {
	fs := newFakeResolverStore()
	reason := "invoice not found"
	fs.requests[7] = &domain.SubscriptionRequest{
		ID: 7, UserTelegramID: 111, ChatName: "Gold",
		Status: domain.StatusDeclined, Reported: true, RejectReason: &reason,
	}
	tg := &fakeMessenger{}
	r := New(fs, tg, staffChat, time.Second)

	r.tick(context.Background())

	require.Len(t, tg.direct, 1)
	assert.Contains(t, tg.direct[0].text, "declined")
	assert.Contains(t, tg.direct[0].text, "invoice not found")
	assert.Empty(t, fs.subs)
	assert.Equal(t, domain.StatusCompleted, fs.requests[7].Status)
}

func TestApprovedWithoutEndDateIsNotCompleted(t *testing.T) {
	fs := newFakeResolverStore()
	fs.requests[8] = &domain.SubscriptionRequest{
		ID: 8, UserTelegramID: 111, Status: domain.StatusApproved, Reported: true,
	}
	tg := &fakeMessenger{}
	r := New(fs, tg, staffChat, time.Second)

	r.tick(context.Background())

	assert.Empty(t, tg.direct)
	assert.False(t, fs.requests[8].Announced)
}

func TestTrainingLifecycle(t *testing.T) {
	fs := newFakeResolverStore()
	coachID := int64(3)
	fs.employees = []domain.Employee{{ID: 3, FirstName: "Jane", LastName: "Coach", Role: domain.RoleTutor}}
	fs.trainings[9] = &domain.TrainingRequest{
		ID: 9, UserTelegramID: 111, Username: "trader",
		SessionDate: time.Now().AddDate(0, 0, 3), SessionTime: "19:00",
		PaymentMethod: domain.PayTrial, Status: domain.StatusPending,
	}
	tg := &fakeMessenger{}
	r := New(fs, tg, staffChat, time.Second)
	ctx := context.Background()

	r.tick(ctx)
	require.Len(t, tg.chat, 1)
	assert.Contains(t, tg.chat[0].text, "19:00")
	assert.True(t, fs.trainings[9].Reported)

	fs.trainings[9].Status = domain.StatusApproved
	fs.trainings[9].CoachID = &coachID

	r.tick(ctx)
	require.Len(t, tg.direct, 1)
	assert.Contains(t, tg.direct[0].text, "approved")
	assert.Contains(t, tg.direct[0].text, "Jane Coach")
	assert.Equal(t, domain.StatusCompleted, fs.trainings[9].Status)
}

func ptr[T any](v T) *T { return &v }
