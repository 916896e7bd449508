package domain

import "fmt"

// Status is the lifecycle state of a subscription or training request.
// Transitions are forward-only: Pending -> Approved|Declined -> Completed.
type Status int

const (
	StatusPending Status = iota + 1
	StatusApproved
	StatusDeclined
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusDeclined:
		return "declined"
	case StatusCompleted:
		return "completed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Resolved reports whether the request left the pending state.
func (s Status) Resolved() bool {
	return s == StatusApproved || s == StatusDeclined || s == StatusCompleted
}

// CanTransition reports whether moving from s to next respects the
// forward-only lifecycle.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusDeclined
	case StatusApproved, StatusDeclined:
		return next == StatusCompleted
	}
	return false
}

// PaymentMethod identifies how a subscription or training session was paid.
type PaymentMethod string

const (
	PaySalla PaymentMethod = "salla"
	PaySTC   PaymentMethod = "stc"
	PayTrial PaymentMethod = "trial"
	PayOther PaymentMethod = "other"
)

// ParsePaymentMethod validates a raw payment method token.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(raw) {
	case PaySalla, PaySTC, PayTrial, PayOther:
		return PaymentMethod(raw), nil
	}
	return "", fmt.Errorf("unknown payment method %q", raw)
}

// Role is a staff member's authorization level.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleTutor    Role = "tutor"
)

// ParseRole validates a raw role token.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RoleEmployee, RoleTutor:
		return Role(raw), nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}
