package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membot/internal/domain"
	"membot/internal/session"
	"membot/internal/store"
)

type fakeStore struct {
	groups        []domain.Group
	subscriptions []domain.Subscription
	users         []domain.User
	reserved      map[string][]string
}

func (f *fakeStore) MainGroups(ctx context.Context) ([]domain.Group, error) {
	var main []domain.Group
	for _, g := range f.groups {
		if !g.IsSubgroup() {
			main = append(main, g)
		}
	}
	return main, nil
}

func (f *fakeStore) GroupByID(ctx context.Context, id int64) (domain.Group, error) {
	for _, g := range f.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return domain.Group{}, store.ErrNotFound
}

func (f *fakeStore) ActiveSubscription(ctx context.Context, userID, chatID int64) (domain.Subscription, error) {
	for _, s := range f.subscriptions {
		if s.UserID == userID && s.ChatID == chatID && s.IsActive {
			return s, nil
		}
	}
	return domain.Subscription{}, store.ErrNotFound
}

func (f *fakeStore) ActiveSubscriptionsByUser(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for _, s := range f.subscriptions {
		if s.UserID == userID && s.IsActive {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

func (f *fakeStore) SubscriptionByID(ctx context.Context, id int64) (domain.Subscription, error) {
	for _, s := range f.subscriptions {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Subscription{}, store.ErrNotFound
}

func (f *fakeStore) ReservedSlots(ctx context.Context, date time.Time) ([]string, error) {
	return f.reserved[date.Format("2006-01-02")], nil
}

func (f *fakeStore) UserByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	for _, u := range f.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return domain.User{}, store.ErrNotFound
}

var testNow = time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

func newTestMachine(fs *fakeStore) *Machine {
	return New(fs, func() time.Time { return testNow })
}

func textIn(text string) Input { return Input{Kind: InputText, Text: text} }
func buttonIn(id int64) Input  { return Input{Kind: InputButton, ID: id} }
func tokenIn(tok string) Input { return Input{Kind: InputButton, Text: tok} }

func TestSubscribeFlowEndToEnd(t *testing.T) {
	fs := &fakeStore{
		groups: []domain.Group{{ID: 1, TelegramID: -100500, Title: "Gold Signals"}},
	}
	m := newTestMachine(fs)
	user := domain.User{ID: 7, TelegramID: 111, Username: "trader"}
	s := &session.Session{UserID: user.ID}
	ctx := context.Background()

	effects, err := m.StartSubscribe(ctx, user, s, false)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	groupsPrompt, ok := effects[0].(PromptGroups)
	require.True(t, ok)
	assert.Len(t, groupsPrompt.Groups, 1)
	assert.Equal(t, session.StepSelectGroup, s.Step)

	effects, err = m.Transition(ctx, user, s, buttonIn(1))
	require.NoError(t, err)
	require.Len(t, effects, 1)
	_, ok = effects[0].(PromptPaymentMethods)
	require.True(t, ok)
	assert.Equal(t, session.StepPaymentMethod, s.Step)
	assert.Equal(t, int64(-100500), s.ChatID)

	effects, err = m.Transition(ctx, user, s, tokenIn("stc"))
	require.NoError(t, err)
	assert.Equal(t, session.StepInvoiceNumber, s.Step)

	effects, err = m.Transition(ctx, user, s, textIn("INV1"))
	require.NoError(t, err)
	assert.Equal(t, session.StepExternalAccountID, s.Step)

	effects, err = m.Transition(ctx, user, s, textIn("TV1"))
	require.NoError(t, err)
	require.Len(t, effects, 3)

	commit, ok := effects[0].(CreateSubscriptionRequest)
	require.True(t, ok)
	assert.Equal(t, int64(111), commit.Request.UserTelegramID)
	assert.Equal(t, int64(-100500), commit.Request.ChatID)
	assert.Equal(t, "Gold Signals", commit.Request.ChatName)
	assert.Equal(t, domain.PaySTC, commit.Request.PaymentMethod)
	assert.Equal(t, "INV1", commit.Request.InvoiceNumber)
	assert.Equal(t, "TV1", commit.Request.ExternalAccountID)
	assert.Equal(t, domain.StatusPending, commit.Request.Status)
	assert.Nil(t, commit.Request.SubscriptionID)

	// The commit clears flow state and hands off to the rating prompt.
	_, ok = effects[2].(PromptRating)
	require.True(t, ok)
	assert.Equal(t, session.StepFeedback, s.Step)
	assert.Empty(t, s.InvoiceNumber)
	assert.Empty(t, s.PaymentMethod)
	assert.Zero(t, s.ChatID)
}

func TestSubscribeFreeTrialSkipsInvoice(t *testing.T) {
	fs := &fakeStore{groups: []domain.Group{{ID: 1, TelegramID: -1, Title: "G"}}}
	m := newTestMachine(fs)
	user := domain.User{ID: 7, TelegramID: 111}
	s := &session.Session{UserID: user.ID}
	ctx := context.Background()

	_, err := m.StartSubscribe(ctx, user, s, true)
	require.NoError(t, err)

	_, err = m.Transition(ctx, user, s, buttonIn(1))
	require.NoError(t, err)
	assert.Equal(t, session.StepExternalAccountID, s.Step)

	effects, err := m.Transition(ctx, user, s, textIn("TV9"))
	require.NoError(t, err)
	commit := effects[0].(CreateSubscriptionRequest)
	assert.Equal(t, domain.PayTrial, commit.Request.PaymentMethod)
	assert.Empty(t, commit.Request.InvoiceNumber)
}

func TestSubscribeAlreadySubscribedShortCircuits(t *testing.T) {
	fs := &fakeStore{
		groups: []domain.Group{{ID: 1, TelegramID: -1, Title: "G"}},
		subscriptions: []domain.Subscription{
			{ID: 5, UserID: 7, ChatID: -1, EndDate: testNow.AddDate(0, 1, 0), IsActive: true},
		},
	}
	m := newTestMachine(fs)
	user := domain.User{ID: 7, TelegramID: 111}
	s := &session.Session{UserID: user.ID}
	ctx := context.Background()

	_, err := m.StartSubscribe(ctx, user, s, false)
	require.NoError(t, err)

	effects, err := m.Transition(ctx, user, s, buttonIn(1))
	require.NoError(t, err)
	require.Len(t, effects, 1)
	msg := effects[0].(PromptText)
	assert.Contains(t, msg.Text, "already subscribed")
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestInvalidInputRepromptsWithoutAdvancing(t *testing.T) {
	fs := &fakeStore{groups: []domain.Group{{ID: 1, TelegramID: -1, Title: "G"}}}
	m := newTestMachine(fs)
	user := domain.User{ID: 7, TelegramID: 111}
	s := &session.Session{UserID: user.ID}
	ctx := context.Background()

	_, err := m.StartSubscribe(ctx, user, s, false)
	require.NoError(t, err)

	// Free text where a button is required.
	_, err = m.Transition(ctx, user, s, textIn("hello"))
	require.NoError(t, err)
	assert.Equal(t, session.StepSelectGroup, s.Step)

	// Button referencing an unknown group.
	_, err = m.Transition(ctx, user, s, buttonIn(99))
	require.NoError(t, err)
	assert.Equal(t, session.StepSelectGroup, s.Step)

	_, err = m.Transition(ctx, user, s, buttonIn(1))
	require.NoError(t, err)

	// Unknown payment token.
	_, err = m.Transition(ctx, user, s, tokenIn("cash"))
	require.NoError(t, err)
	assert.Equal(t, session.StepPaymentMethod, s.Step)

	// Trial is not offered for paid subscriptions.
	_, err = m.Transition(ctx, user, s, tokenIn("trial"))
	require.NoError(t, err)
	assert.Equal(t, session.StepPaymentMethod, s.Step)
}

func TestRenewFlowLinksOldSubscription(t *testing.T) {
	fs := &fakeStore{
		subscriptions: []domain.Subscription{
			{ID: 42, UserID: 7, ChatID: -1, ChatName: "G", EndDate: testNow.AddDate(0, 0, 3), IsActive: true},
		},
	}
	m := newTestMachine(fs)
	user := domain.User{ID: 7, TelegramID: 111}
	s := &session.Session{UserID: user.ID}
	ctx := context.Background()

	effects, err := m.StartRenew(ctx, user, s)
	require.NoError(t, err)
	_, ok := effects[0].(PromptSubscriptions)
	require.True(t, ok)

	_, err = m.Transition(ctx, user, s, buttonIn(42))
	require.NoError(t, err)
	assert.Equal(t, session.StepPaymentMethod, s.Step)

	_, err = m.Transition(ctx, user, s, tokenIn("salla"))
	require.NoError(t, err)
	_, err = m.Transition(ctx, user, s, textIn("INV2"))
	require.NoError(t, err)

	effects, err = m.Transition(ctx, user, s, textIn("TV2"))
	require.NoError(t, err)
	commit := effects[0].(CreateSubscriptionRequest)
	require.NotNil(t, commit.Request.SubscriptionID)
	assert.Equal(t, int64(42), *commit.Request.SubscriptionID)
	assert.True(t, commit.Request.IsRenewal())
}

func TestRenewRejectsForeignSubscription(t *testing.T) {
	fs := &fakeStore{
		subscriptions: []domain.Subscription{
			{ID: 42, UserID: 7, ChatID: -1, IsActive: true},
			{ID: 43, UserID: 8, ChatID: -2, IsActive: true},
		},
	}
	m := newTestMachine(fs)
	user := domain.User{ID: 7, TelegramID: 111}
	s := &session.Session{UserID: user.ID}
	ctx := context.Background()

	_, err := m.StartRenew(ctx, user, s)
	require.NoError(t, err)

	_, err = m.Transition(ctx, user, s, buttonIn(43))
	require.NoError(t, err)
	assert.Equal(t, session.StepRenewSelectSubscription, s.Step)
	assert.Zero(t, s.RenewSubscriptionID)
}

func TestTrainingFlowExcludesReservedSlots(t *testing.T) {
	day := testNow.AddDate(0, 0, 2)
	fs := &fakeStore{
		reserved: map[string][]string{day.Format("2006-01-02"): {"18:00", "20:00"}},
	}
	m := newTestMachine(fs)
	user := domain.User{ID: 7, TelegramID: 111, Username: "trader"}
	s := &session.Session{UserID: user.ID}
	ctx := context.Background()

	_, err := m.StartTraining(ctx, user, s)
	require.NoError(t, err)

	effects, err := m.Transition(ctx, user, s, textIn(FormatDate(day)))
	require.NoError(t, err)
	times := effects[0].(PromptTimes)
	assert.Equal(t, []string{"19:00", "21:00"}, times.Times)

	// A reserved slot is rejected even if sent as raw text.
	_, err = m.Transition(ctx, user, s, textIn("18:00"))
	require.NoError(t, err)
	assert.Equal(t, session.StepTrainingSelectTime, s.Step)

	_, err = m.Transition(ctx, user, s, textIn("19:00"))
	require.NoError(t, err)
	assert.Equal(t, session.StepTrainingPaymentMethod, s.Step)

	effects, err = m.Transition(ctx, user, s, tokenIn("trial"))
	require.NoError(t, err)
	commit := effects[0].(CreateTrainingRequest)
	assert.Equal(t, "19:00", commit.Request.SessionTime)
	assert.Equal(t, domain.PayTrial, commit.Request.PaymentMethod)
	assert.Equal(t, day.Format("2006-01-02"), commit.Request.SessionDate.Format("2006-01-02"))
	assert.Equal(t, session.StepFeedback, s.Step)
}

func TestTrainingRejectsPastAndTodayDates(t *testing.T) {
	fs := &fakeStore{}
	m := newTestMachine(fs)
	user := domain.User{ID: 7, TelegramID: 111}
	s := &session.Session{UserID: user.ID}
	ctx := context.Background()

	_, err := m.StartTraining(ctx, user, s)
	require.NoError(t, err)

	for _, raw := range []string{
		FormatDate(testNow),                  // today
		FormatDate(testNow.AddDate(0, 0, -1)), // yesterday
		"31/02/2025",                          // impossible
		"not a date",
	} {
		_, err = m.Transition(ctx, user, s, textIn(raw))
		require.NoError(t, err)
		assert.Equal(t, session.StepTrainingSelectDate, s.Step, "input %q should not advance", raw)
	}
}

func TestFeedbackLowRatingAsksForComment(t *testing.T) {
	fs := &fakeStore{}
	m := newTestMachine(fs)
	user := domain.User{ID: 7, TelegramID: 111, Username: "trader"}
	s := &session.Session{UserID: user.ID, Step: session.StepFeedback}
	ctx := context.Background()

	_, err := m.Transition(ctx, user, s, buttonIn(2))
	require.NoError(t, err)
	assert.Equal(t, session.StepFeedbackComment, s.Step)

	effects, err := m.Transition(ctx, user, s, textIn("too slow"))
	require.NoError(t, err)
	notify := effects[0].(NotifyStaff)
	assert.Equal(t, int64(111), notify.FromTelegramID)
	assert.Contains(t, notify.Text, "2/5")
	assert.Contains(t, notify.Text, "too slow")
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestFeedbackHighRatingEndsFlow(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	user := domain.User{ID: 7, TelegramID: 111}
	s := &session.Session{UserID: user.ID, Step: session.StepFeedback}

	effects, err := m.Transition(context.Background(), user, s, buttonIn(5))
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestSupportMessageNotifiesStaff(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	user := domain.User{ID: 7, TelegramID: 111, Username: "trader"}
	s := &session.Session{UserID: user.ID}
	ctx := context.Background()

	m.StartSupport(s)
	assert.Equal(t, session.StepSupportMessage, s.Step)

	effects, err := m.Transition(ctx, user, s, textIn("I lost access"))
	require.NoError(t, err)
	notify := effects[0].(NotifyStaff)
	assert.Equal(t, "trader", notify.FromUsername)
	assert.Equal(t, "I lost access", notify.Text)
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestApproveSubscriptionNeedsEndDate(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	staff := domain.User{ID: 1, TelegramID: 999}
	s := &session.Session{UserID: staff.ID}
	ctx := context.Background()

	m.StartApprove(s, 15, false)
	assert.Equal(t, session.StepAwaitEndDate, s.Step)

	// Past dates are refused.
	_, err := m.Transition(ctx, staff, s, textIn("01/01/2020"))
	require.NoError(t, err)
	assert.Equal(t, session.StepAwaitEndDate, s.Step)

	effects, err := m.Transition(ctx, staff, s, textIn("01/06/2025"))
	require.NoError(t, err)
	approve := effects[0].(ApproveRequest)
	assert.Equal(t, int64(15), approve.ID)
	assert.False(t, approve.Training)
	assert.Equal(t, "01/06/2025", FormatDate(approve.EndDate))
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestApproveTrainingCommitsImmediately(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	s := &session.Session{UserID: 1}

	effects := m.StartApprove(s, 9, true)
	approve := effects[0].(ApproveRequest)
	assert.Equal(t, int64(9), approve.ID)
	assert.True(t, approve.Training)
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestDeclineCapturesReason(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	staff := domain.User{ID: 1, TelegramID: 999}
	s := &session.Session{UserID: staff.ID}
	ctx := context.Background()

	m.StartDecline(s, 15, false)

	// An empty reason re-prompts.
	_, err := m.Transition(ctx, staff, s, textIn("   "))
	require.NoError(t, err)
	assert.Equal(t, session.StepAwaitRejectReason, s.Step)

	effects, err := m.Transition(ctx, staff, s, textIn("invoice not found"))
	require.NoError(t, err)
	decline := effects[0].(DeclineRequest)
	assert.Equal(t, int64(15), decline.ID)
	assert.Equal(t, "invoice not found", decline.Reason)
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestStaffRenewFlow(t *testing.T) {
	fs := &fakeStore{
		users: []domain.User{{ID: 7, TelegramID: 111, Username: "trader"}},
		subscriptions: []domain.Subscription{
			{ID: 42, UserID: 7, ChatID: -1, ChatName: "G", IsActive: true},
		},
	}
	m := newTestMachine(fs)
	staff := domain.User{ID: 1, TelegramID: 999}
	s := &session.Session{UserID: staff.ID}
	ctx := context.Background()

	m.StartStaffRenew(s)

	// Unknown Telegram ID re-prompts.
	_, err := m.Transition(ctx, staff, s, textIn("222"))
	require.NoError(t, err)
	assert.Equal(t, session.StepStaffRenewUser, s.Step)

	effects, err := m.Transition(ctx, staff, s, textIn("111"))
	require.NoError(t, err)
	_, ok := effects[0].(PromptSubscriptions)
	require.True(t, ok)

	_, err = m.Transition(ctx, staff, s, buttonIn(42))
	require.NoError(t, err)
	assert.Equal(t, session.StepStaffRenewEndDate, s.Step)

	effects, err = m.Transition(ctx, staff, s, textIn("01/06/2025"))
	require.NoError(t, err)
	_, ok = effects[0].(PromptPaymentMethods)
	require.True(t, ok)
	assert.Equal(t, session.StepStaffRenewPaymentMethod, s.Step)

	_, err = m.Transition(ctx, staff, s, tokenIn("stc"))
	require.NoError(t, err)
	assert.Equal(t, session.StepStaffRenewInvoice, s.Step)

	effects, err = m.Transition(ctx, staff, s, textIn("INV9"))
	require.NoError(t, err)
	renew := effects[0].(RenewSubscription)
	assert.Equal(t, int64(42), renew.OldID)
	assert.Equal(t, "01/06/2025", FormatDate(renew.EndDate))
	assert.Equal(t, domain.PaySTC, renew.PaymentMethod)
	assert.Equal(t, "INV9", renew.InvoiceNumber)
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestStaffRenewOtherPaymentSkipsInvoice(t *testing.T) {
	fs := &fakeStore{
		users: []domain.User{{ID: 7, TelegramID: 111, Username: "trader"}},
		subscriptions: []domain.Subscription{
			{ID: 42, UserID: 7, ChatID: -1, ChatName: "G", IsActive: true},
		},
	}
	m := newTestMachine(fs)
	staff := domain.User{ID: 1, TelegramID: 999}
	s := &session.Session{UserID: staff.ID}
	ctx := context.Background()

	m.StartStaffRenew(s)
	_, err := m.Transition(ctx, staff, s, textIn("111"))
	require.NoError(t, err)
	_, err = m.Transition(ctx, staff, s, buttonIn(42))
	require.NoError(t, err)
	_, err = m.Transition(ctx, staff, s, textIn("01/06/2025"))
	require.NoError(t, err)

	effects, err := m.Transition(ctx, staff, s, tokenIn("other"))
	require.NoError(t, err)
	renew := effects[0].(RenewSubscription)
	assert.Equal(t, domain.PayOther, renew.PaymentMethod)
	assert.Empty(t, renew.InvoiceNumber)
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestSupportReplyTargetsOriginalUser(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	staff := domain.User{ID: 1, TelegramID: 999}
	s := &session.Session{UserID: staff.ID}
	ctx := context.Background()

	m.StartSupportReply(s, 111)

	effects, err := m.Transition(ctx, staff, s, textIn("access restored"))
	require.NoError(t, err)
	direct := effects[0].(SendDirect)
	assert.Equal(t, int64(111), direct.TelegramID)
	assert.Contains(t, direct.Text, "access restored")
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestAddEmployeeFlow(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	staff := domain.User{ID: 1, TelegramID: 999}
	s := &session.Session{UserID: staff.ID}
	ctx := context.Background()

	m.StartAddEmployee(s)

	// A lone token is not enough.
	_, err := m.Transition(ctx, staff, s, textIn("12345"))
	require.NoError(t, err)
	assert.Equal(t, session.StepEmployeeContact, s.Step)

	_, err = m.Transition(ctx, staff, s, textIn("12345 @coach Jane Van Dam"))
	require.NoError(t, err)
	assert.Equal(t, session.StepEmployeeRole, s.Step)

	effects, err := m.Transition(ctx, staff, s, tokenIn("tutor"))
	require.NoError(t, err)
	upsert := effects[0].(UpsertEmployee)
	assert.Equal(t, int64(12345), upsert.Employee.TelegramID)
	assert.Equal(t, "coach", upsert.Employee.Username)
	assert.Equal(t, "Jane", upsert.Employee.FirstName)
	assert.Equal(t, "Van Dam", upsert.Employee.LastName)
	assert.Equal(t, domain.RoleTutor, upsert.Employee.Role)
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestGroupFamilyFlow(t *testing.T) {
	fs := &fakeStore{groups: []domain.Group{
		{ID: 1, TelegramID: -1, Title: "Main"},
		{ID: 2, TelegramID: -2, Title: "VIP"},
	}}
	m := newTestMachine(fs)
	staff := domain.User{ID: 1, TelegramID: 999}
	s := &session.Session{UserID: staff.ID}
	ctx := context.Background()

	_, err := m.StartGroupFamily(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, session.StepFamilySelectParent, s.Step)

	effects, err := m.Transition(ctx, staff, s, buttonIn(1))
	require.NoError(t, err)
	children := effects[0].(PromptGroups)
	require.Len(t, children.Groups, 1)
	assert.Equal(t, int64(2), children.Groups[0].ID)

	// Attaching the parent to itself is refused.
	_, err = m.Transition(ctx, staff, s, buttonIn(1))
	require.NoError(t, err)
	assert.Equal(t, session.StepFamilySelectChild, s.Step)

	effects, err = m.Transition(ctx, staff, s, buttonIn(2))
	require.NoError(t, err)
	assign := effects[0].(AssignGroupParent)
	assert.Equal(t, int64(2), assign.GroupID)
	assert.Equal(t, int64(1), assign.ParentID)
	assert.Equal(t, session.StepIdle, s.Step)
}

func TestSettingsFlows(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	staff := domain.User{ID: 1, TelegramID: 999}
	ctx := context.Background()

	s := &session.Session{UserID: staff.ID}
	m.StartSetWelcome(s)
	effects, err := m.Transition(ctx, staff, s, textIn("Welcome aboard!"))
	require.NoError(t, err)
	save := effects[0].(SaveSetting)
	assert.Equal(t, domain.SettingWelcomeMessage, save.Key)
	assert.Equal(t, "Welcome aboard!", save.Value)

	s = &session.Session{UserID: staff.ID}
	m.StartSetSallaLink(s)

	_, err = m.Transition(ctx, staff, s, textIn("not a link"))
	require.NoError(t, err)
	assert.Equal(t, session.StepSetSallaLink, s.Step)

	effects, err = m.Transition(ctx, staff, s, textIn("https://store.example.com"))
	require.NoError(t, err)
	save = effects[0].(SaveSetting)
	assert.Equal(t, domain.SettingSallaLink, save.Key)
}

func TestTransitionUnknownStepResets(t *testing.T) {
	m := newTestMachine(&fakeStore{})
	s := &session.Session{UserID: 7, Step: session.Step(255)}

	effects, err := m.Transition(context.Background(), domain.User{ID: 7}, s, textIn("hi"))
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, session.StepIdle, s.Step)
}
