package flow

import (
	"context"
	"time"

	"membot/internal/domain"
	"membot/internal/session"
)

// InputKind distinguishes free-text messages from decoded button presses.
type InputKind int

const (
	InputText InputKind = iota
	InputButton
)

// Input is one user interaction handed to the machine. Button presses carry
// either a numeric entity reference in ID or a short token in Text
// (payment method, time slot), already validated by the callback decoder.
type Input struct {
	Kind InputKind
	Text string
	ID   int64
}

// Effect is an instruction the machine returns instead of performing side
// effects itself; the bot layer interprets the variants.
type Effect interface{ isEffect() }

// PromptText asks the user something or reports a terminal message.
type PromptText struct{ Text string }

// PromptGroups offers a group choice.
type PromptGroups struct {
	Text   string
	Groups []domain.Group
}

// PromptSubscriptions offers one of the user's active subscriptions.
type PromptSubscriptions struct {
	Text          string
	Subscriptions []domain.Subscription
}

// PromptPaymentMethods offers payment method buttons.
type PromptPaymentMethods struct {
	Text    string
	Methods []domain.PaymentMethod
}

// PromptDates offers bookable training dates.
type PromptDates struct {
	Text  string
	Dates []time.Time
}

// PromptTimes offers free time slots for the chosen date.
type PromptTimes struct {
	Text  string
	Times []string
}

// PromptRating asks for a 1..5 rating.
type PromptRating struct{ Text string }

// CreateSubscriptionRequest commits a subscribe or renew intent.
type CreateSubscriptionRequest struct{ Request domain.SubscriptionRequest }

// CreateTrainingRequest commits a training booking intent.
type CreateTrainingRequest struct{ Request domain.TrainingRequest }

// ApproveRequest resolves a pending request as approved.
type ApproveRequest struct {
	ID       int64
	Training bool
	EndDate  time.Time
}

// DeclineRequest resolves a pending request as declined.
type DeclineRequest struct {
	ID       int64
	Training bool
	Reason   string
}

// RenewSubscription performs a staff-side manual renewal.
type RenewSubscription struct {
	OldID         int64
	EndDate       time.Time
	PaymentMethod domain.PaymentMethod
	InvoiceNumber string
}

// PromptRoles offers staff role buttons.
type PromptRoles struct {
	Text  string
	Roles []domain.Role
}

// SendDirect messages an arbitrary user outside the current chat.
type SendDirect struct {
	TelegramID int64
	Text       string
}

// NotifyStaff forwards text to the staff support chat.
type NotifyStaff struct {
	FromTelegramID int64
	FromUsername   string
	Text           string
}

// UpsertEmployee registers or updates a staff member.
type UpsertEmployee struct{ Employee domain.Employee }

// AssignGroupParent attaches a subgroup to a family's main group.
type AssignGroupParent struct{ GroupID, ParentID int64 }

// SaveSetting stores an editable key-value setting.
type SaveSetting struct{ Key, Value string }

// CreateOfferMessage schedules a recurring promotional broadcast.
type CreateOfferMessage struct {
	Content   string
	PerPeriod int
}

func (PromptText) isEffect()                {}
func (PromptGroups) isEffect()              {}
func (PromptSubscriptions) isEffect()       {}
func (PromptPaymentMethods) isEffect()      {}
func (PromptDates) isEffect()               {}
func (PromptTimes) isEffect()               {}
func (PromptRating) isEffect()              {}
func (PromptRoles) isEffect()               {}
func (SendDirect) isEffect()                {}
func (CreateSubscriptionRequest) isEffect() {}
func (CreateTrainingRequest) isEffect()     {}
func (ApproveRequest) isEffect()            {}
func (DeclineRequest) isEffect()            {}
func (RenewSubscription) isEffect()         {}
func (NotifyStaff) isEffect()               {}
func (UpsertEmployee) isEffect()            {}
func (AssignGroupParent) isEffect()         {}
func (SaveSetting) isEffect()               {}
func (CreateOfferMessage) isEffect()        {}

// ReadStore is the read-only slice of the repository the machine consults
// while deciding transitions. Mutations only ever happen via effects.
type ReadStore interface {
	MainGroups(ctx context.Context) ([]domain.Group, error)
	GroupByID(ctx context.Context, id int64) (domain.Group, error)
	ActiveSubscription(ctx context.Context, userID, chatID int64) (domain.Subscription, error)
	ActiveSubscriptionsByUser(ctx context.Context, userID int64) ([]domain.Subscription, error)
	SubscriptionByID(ctx context.Context, id int64) (domain.Subscription, error)
	ReservedSlots(ctx context.Context, date time.Time) ([]string, error)
	UserByTelegramID(ctx context.Context, telegramID int64) (domain.User, error)
}

// Machine evaluates conversation transitions. It mutates only the passed
// session; everything durable is expressed as effects.
type Machine struct {
	store ReadStore
	now   func() time.Time
}

// New builds a machine over the given read store.
func New(store ReadStore, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{store: store, now: now}
}

type transition func(m *Machine, ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error)

// One canonical transition table for every flow.
var transitions = map[session.Step]transition{
	session.StepSelectGroup:       (*Machine).onSelectGroup,
	session.StepPaymentMethod:     (*Machine).onPaymentMethod,
	session.StepInvoiceNumber:     (*Machine).onInvoiceNumber,
	session.StepExternalAccountID: (*Machine).onExternalAccountID,

	session.StepRenewSelectSubscription: (*Machine).onRenewSelectSubscription,

	session.StepTrainingSelectDate:    (*Machine).onTrainingSelectDate,
	session.StepTrainingSelectTime:    (*Machine).onTrainingSelectTime,
	session.StepTrainingPaymentMethod: (*Machine).onTrainingPaymentMethod,
	session.StepTrainingInvoice:       (*Machine).onTrainingInvoice,

	session.StepFeedback:        (*Machine).onFeedback,
	session.StepFeedbackComment: (*Machine).onFeedbackComment,
	session.StepSupportMessage:  (*Machine).onSupportMessage,

	session.StepAwaitEndDate:      (*Machine).onAwaitEndDate,
	session.StepAwaitRejectReason: (*Machine).onAwaitRejectReason,

	session.StepStaffRenewUser:               (*Machine).onStaffRenewUser,
	session.StepStaffRenewSelectSubscription: (*Machine).onStaffRenewSelectSubscription,
	session.StepStaffRenewEndDate:            (*Machine).onStaffRenewEndDate,
	session.StepStaffRenewPaymentMethod:      (*Machine).onStaffRenewPaymentMethod,
	session.StepStaffRenewInvoice:            (*Machine).onStaffRenewInvoice,

	session.StepSupportReply: (*Machine).onSupportReply,

	session.StepEmployeeContact:    (*Machine).onEmployeeContact,
	session.StepEmployeeRole:       (*Machine).onEmployeeRole,
	session.StepSetWelcomeMessage:  (*Machine).onSetWelcomeMessage,
	session.StepSetSallaLink:       (*Machine).onSetSallaLink,
	session.StepFamilySelectParent: (*Machine).onFamilySelectParent,
	session.StepFamilySelectChild:  (*Machine).onFamilySelectChild,

	session.StepOfferContent:   (*Machine).onOfferContent,
	session.StepOfferPerPeriod: (*Machine).onOfferPerPeriod,
}

// Transition advances the session by one input. Validation failures
// re-prompt without changing the step; unknown steps fall back to idle.
func (m *Machine) Transition(ctx context.Context, user domain.User, s *session.Session, in Input) ([]Effect, error) {
	fn, ok := transitions[s.Step]
	if !ok {
		s.Reset()
		return nil, nil
	}
	return fn(m, ctx, user, s, in)
}

func prompt(text string) []Effect { return []Effect{PromptText{Text: text}} }
