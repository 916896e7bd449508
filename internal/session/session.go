package session

import (
	"sync"
	"time"
)

// Step is the current position of a user inside a conversation flow.
type Step int

const (
	StepIdle Step = iota

	// Client: new subscription / free trial.
	StepSelectGroup
	StepPaymentMethod
	StepInvoiceNumber
	StepExternalAccountID

	// Client: renewal.
	StepRenewSelectSubscription

	// Client: training booking.
	StepTrainingSelectDate
	StepTrainingSelectTime
	StepTrainingPaymentMethod
	StepTrainingInvoice

	// Client: post-commit feedback.
	StepFeedback
	StepFeedbackComment

	// Client: support conversation.
	StepSupportMessage

	// Staff: request resolution.
	StepAwaitEndDate
	StepAwaitRejectReason

	// Staff: manual renewal.
	StepStaffRenewUser
	StepStaffRenewSelectSubscription
	StepStaffRenewEndDate
	StepStaffRenewPaymentMethod
	StepStaffRenewInvoice

	// Staff: support reply.
	StepSupportReply

	// Staff: settings and directory management.
	StepEmployeeContact
	StepEmployeeRole
	StepSetWelcomeMessage
	StepSetSallaLink
	StepFamilySelectParent
	StepFamilySelectChild

	// Staff: offer broadcast scheduling.
	StepOfferContent
	StepOfferPerPeriod
)

// Session holds one user's conversation state. A user's updates are handled
// sequentially, so only the owning handler goroutine mutates a session.
type Session struct {
	UserID int64
	Step   Step

	// Subscription flow.
	ChatID            int64
	ChatName          string
	PaymentMethod     string
	InvoiceNumber     string
	ExternalAccountID string
	FreeTrial         bool

	// Renewal.
	RenewSubscriptionID int64

	// Training flow.
	TrainingDate time.Time
	TrainingTime string

	// Feedback.
	FeedbackRating   int
	PendingRequestID int64

	// Staff resolution targets.
	ResolveRequestID int64
	ResolveTraining  bool
	EndDate          time.Time

	// Staff manual renewal.
	StaffRenewUserID int64

	// Staff support reply target.
	SupportReplyUserID int64

	// Staff directory management.
	EmployeeTelegramID int64
	EmployeeUsername   string
	EmployeeFirstName  string
	EmployeeLastName   string
	FamilyParentID     int64

	// Staff offer broadcast scheduling.
	OfferContent string
}

// InProgress reports whether the user is inside a flow.
func (s *Session) InProgress() bool {
	return s != nil && s.Step != StepIdle
}

// Reset clears every scoped field and returns the session to idle, so a
// finished flow leaks nothing into the next one.
func (s *Session) Reset() {
	userID := s.UserID
	*s = Session{UserID: userID}
}

// Manager owns all sessions keyed by user ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewManager creates an empty session store.
func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]*Session)}
}

// Get returns the user's session, creating an idle one when missing.
func (m *Manager) Get(userID int64) *Session {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[userID]; ok {
		return s
	}
	s = &Session{UserID: userID}
	m.sessions[userID] = s
	return s
}

// Clear removes the user's session entirely.
func (m *Manager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// InProgress reports whether the user currently has an active flow.
func (m *Manager) InProgress(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return ok && s.InProgress()
}
