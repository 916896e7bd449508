package domain

import (
	"strings"
	"time"
)

// User is a client known to the bots, keyed by Telegram identity.
type User struct {
	ID                 int64      `db:"id"`
	TelegramID         int64      `db:"telegram_id"`
	Username           string     `db:"username"`
	FirstName          string     `db:"first_name"`
	LastName           string     `db:"last_name"`
	LastAddedToGroup   *time.Time `db:"last_added_to_group_at"`
	LastRemovedFromGrp *time.Time `db:"last_removed_from_group_at"`
}

// FullName joins the name parts, falling back to the username.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.Username
}

// Group is a managed chat. Groups form a two-level tree: a main group may
// have subgroups via ParentID; a subgroup never has children of its own.
type Group struct {
	ID         int64  `db:"id"`
	TelegramID int64  `db:"telegram_id"`
	Title      string `db:"title"`
	ParentID   *int64 `db:"parent_id"`
}

// IsSubgroup reports whether the group belongs to a family's main group.
func (g Group) IsSubgroup() bool { return g.ParentID != nil }

// Subscription grants a user access to one group until EndDate.
// Renewal never mutates EndDate in place: the old row is deactivated and a
// new row inserted, keeping an append-only history.
type Subscription struct {
	ID                int64         `db:"id"`
	UserID            int64         `db:"user_id"`
	ChatID            int64         `db:"chat_id"`
	ChatName          string        `db:"chat_name"`
	EndDate           time.Time     `db:"end_date"`
	PaymentMethod     PaymentMethod `db:"payment_method"`
	InvoiceNumber     string        `db:"invoice_number"`
	ExternalAccountID string        `db:"external_account_id"`
	RenewalNotified   int           `db:"renewal_notified"`
	IsActive          bool          `db:"is_active"`
	CreatedAt         time.Time     `db:"created_at"`
}

// DaysLeft returns whole days from now until EndDate, comparing calendar
// dates only. It is zero when EndDate is today and never negative.
func (s Subscription) DaysLeft(now time.Time) int {
	today := truncateToDate(now)
	end := truncateToDate(s.EndDate)
	days := int(end.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Expired reports whether EndDate is today or earlier.
func (s Subscription) Expired(now time.Time) bool {
	return !truncateToDate(s.EndDate).After(truncateToDate(now))
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SubscriptionRequest captures a subscribe or renew intent awaiting staff
// resolution. SubscriptionID links back to the subscription being renewed.
type SubscriptionRequest struct {
	ID                int64         `db:"id"`
	UserTelegramID    int64         `db:"user_telegram_id"`
	Username          string        `db:"username"`
	ChatID            int64         `db:"chat_id"`
	ChatName          string        `db:"chat_name"`
	EndDate           *time.Time    `db:"end_date"`
	PaymentMethod     PaymentMethod `db:"payment_method"`
	InvoiceNumber     string        `db:"invoice_number"`
	ExternalAccountID string        `db:"external_account_id"`
	Status            Status        `db:"status"`
	SubscriptionID    *int64        `db:"subscription_id"`
	RejectReason      *string       `db:"reject_reason"`
	Reported          bool          `db:"reported"`
	Announced         bool          `db:"announced"`
	CreatedAt         time.Time     `db:"created_at"`
}

// IsRenewal reports whether the request extends an existing subscription.
func (r SubscriptionRequest) IsRenewal() bool { return r.SubscriptionID != nil }

// TrainingRequest is a bookable one-on-one session intent.
type TrainingRequest struct {
	ID             int64         `db:"id"`
	UserTelegramID int64         `db:"user_telegram_id"`
	Username       string        `db:"username"`
	SessionDate    time.Time     `db:"session_date"`
	SessionTime    string        `db:"session_time"`
	CoachID        *int64        `db:"coach_id"`
	Status         Status        `db:"status"`
	PaymentMethod  PaymentMethod `db:"payment_method"`
	InvoiceNumber  string        `db:"invoice_number"`
	RejectReason   *string       `db:"reject_reason"`
	Reported       bool          `db:"reported"`
	Announced      bool          `db:"announced"`
	CreatedAt      time.Time     `db:"created_at"`
}

// Employee is a staff member of the admin bot.
type Employee struct {
	ID         int64  `db:"id"`
	TelegramID int64  `db:"telegram_id"`
	Username   string `db:"username"`
	FirstName  string `db:"first_name"`
	LastName   string `db:"last_name"`
	Role       Role   `db:"role"`
}

// FullName joins the name parts, falling back to the username.
func (e Employee) FullName() string {
	name := strings.TrimSpace(e.FirstName + " " + e.LastName)
	if name != "" {
		return name
	}
	return e.Username
}

// Setting is a single editable key-value pair (welcome message, store link).
type Setting struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Setting keys used by the bots.
const (
	SettingWelcomeMessage   = "welcome_message"
	SettingSallaLink        = "salla_link"
	SettingOfferPeriodStart = "offer_period_start"
)
