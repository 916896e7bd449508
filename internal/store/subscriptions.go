package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"membot/internal/domain"
)

// CreateSubscription inserts a new active subscription row.
func (s *Store) CreateSubscription(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	const q = `
		INSERT INTO subscriptions
			(user_id, chat_id, chat_name, end_date, payment_method,
			 invoice_number, external_account_id, renewal_notified, is_active)
		VALUES
			(:user_id, :chat_id, :chat_name, :end_date, :payment_method,
			 :invoice_number, :external_account_id, 0, TRUE)
		RETURNING id, created_at`
	rows, err := s.db.NamedQueryContext(ctx, q, sub)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return domain.Subscription{}, fmt.Errorf("create subscription: no row returned")
	}
	if err := rows.Scan(&sub.ID, &sub.CreatedAt); err != nil {
		return domain.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
	sub.RenewalNotified = 0
	sub.IsActive = true
	return sub, nil
}

// SubscriptionByID fetches one subscription row.
func (s *Store) SubscriptionByID(ctx context.Context, id int64) (domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.GetContext(ctx, &sub, `SELECT * FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("subscription %d: %w", id, wrapNotFound(err))
	}
	return sub, nil
}

// ActiveSubscription returns the user's active subscription for one group.
func (s *Store) ActiveSubscription(ctx context.Context, userID, chatID int64) (domain.Subscription, error) {
	var sub domain.Subscription
	err := s.db.GetContext(ctx, &sub,
		`SELECT * FROM subscriptions WHERE user_id = $1 AND chat_id = $2 AND is_active`, userID, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Subscription{}, ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("active subscription user=%d chat=%d: %w", userID, chatID, err)
	}
	return sub, nil
}

// ActiveSubscriptionsByUser lists all of the user's active subscriptions.
func (s *Store) ActiveSubscriptionsByUser(ctx context.Context, userID int64) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := s.db.SelectContext(ctx, &subs,
		`SELECT * FROM subscriptions WHERE user_id = $1 AND is_active ORDER BY end_date`, userID)
	if err != nil {
		return nil, fmt.Errorf("active subscriptions of %d: %w", userID, err)
	}
	return subs, nil
}

// ActiveSubscriptions lists every active subscription, for the sweeper.
func (s *Store) ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := s.db.SelectContext(ctx, &subs,
		`SELECT * FROM subscriptions WHERE is_active ORDER BY user_id, end_date`)
	if err != nil {
		return nil, fmt.Errorf("active subscriptions: %w", err)
	}
	return subs, nil
}

// DeactivateSubscription turns an active row off. Renewal and expiry both
// go through here; end dates are never rewritten in place.
func (s *Store) DeactivateSubscription(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET is_active = FALSE WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("deactivate subscription %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deactivate subscription %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetRenewalNotified bumps the reminder counter guarding staged reminders.
func (s *Store) SetRenewalNotified(ctx context.Context, id int64, count int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET renewal_notified = $2 WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("set renewal_notified %d: %w", id, err)
	}
	return nil
}

// RenewSubscription deactivates the old row and inserts a fresh one,
// keeping the append-only history, inside one transaction.
func (s *Store) RenewSubscription(ctx context.Context, oldID int64, endDate time.Time, method domain.PaymentMethod, invoice, externalID string) (domain.Subscription, error) {
	old, err := s.SubscriptionByID(ctx, oldID)
	if err != nil {
		return domain.Subscription{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("renew subscription %d: %w", oldID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET is_active = FALSE WHERE id = $1`, oldID); err != nil {
		return domain.Subscription{}, fmt.Errorf("renew subscription %d: %w", oldID, err)
	}

	var next domain.Subscription
	err = tx.GetContext(ctx, &next, `
		INSERT INTO subscriptions
			(user_id, chat_id, chat_name, end_date, payment_method,
			 invoice_number, external_account_id, renewal_notified, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, TRUE)
		RETURNING *`,
		old.UserID, old.ChatID, old.ChatName, endDate, method, invoice, externalID)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("renew subscription %d: %w", oldID, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Subscription{}, fmt.Errorf("renew subscription %d: %w", oldID, err)
	}
	return next, nil
}
