package store

import (
	"context"
	"fmt"
	"time"

	"membot/internal/domain"
)

// CreateSubscriptionRequest persists a new pending request.
func (s *Store) CreateSubscriptionRequest(ctx context.Context, req domain.SubscriptionRequest) (domain.SubscriptionRequest, error) {
	const q = `
		INSERT INTO subscription_requests
			(user_telegram_id, username, chat_id, chat_name, end_date,
			 payment_method, invoice_number, external_account_id,
			 status, subscription_id, reported, announced)
		VALUES
			(:user_telegram_id, :username, :chat_id, :chat_name, :end_date,
			 :payment_method, :invoice_number, :external_account_id,
			 :status, :subscription_id, FALSE, FALSE)
		RETURNING id, created_at`
	req.Status = domain.StatusPending
	rows, err := s.db.NamedQueryContext(ctx, q, req)
	if err != nil {
		return domain.SubscriptionRequest{}, fmt.Errorf("create subscription request: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return domain.SubscriptionRequest{}, fmt.Errorf("create subscription request: no row returned")
	}
	if err := rows.Scan(&req.ID, &req.CreatedAt); err != nil {
		return domain.SubscriptionRequest{}, fmt.Errorf("create subscription request: %w", err)
	}
	return req, nil
}

// SubscriptionRequestByID fetches one request row.
func (s *Store) SubscriptionRequestByID(ctx context.Context, id int64) (domain.SubscriptionRequest, error) {
	var req domain.SubscriptionRequest
	err := s.db.GetContext(ctx, &req, `SELECT * FROM subscription_requests WHERE id = $1`, id)
	if err != nil {
		return domain.SubscriptionRequest{}, fmt.Errorf("subscription request %d: %w", id, wrapNotFound(err))
	}
	return req, nil
}

// PendingUnreported lists pending requests staff have not seen yet.
func (s *Store) PendingUnreported(ctx context.Context) ([]domain.SubscriptionRequest, error) {
	var reqs []domain.SubscriptionRequest
	err := s.db.SelectContext(ctx, &reqs, `
		SELECT * FROM subscription_requests
		WHERE status = $1 AND NOT reported
		ORDER BY id`, domain.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("pending unreported: %w", err)
	}
	return reqs, nil
}

// ResolvedUnannounced lists approved or declined requests whose requester
// has not been notified yet.
func (s *Store) ResolvedUnannounced(ctx context.Context) ([]domain.SubscriptionRequest, error) {
	var reqs []domain.SubscriptionRequest
	err := s.db.SelectContext(ctx, &reqs, `
		SELECT * FROM subscription_requests
		WHERE status IN ($1, $2) AND NOT announced
		ORDER BY id`, domain.StatusApproved, domain.StatusDeclined)
	if err != nil {
		return nil, fmt.Errorf("resolved unannounced: %w", err)
	}
	return reqs, nil
}

// MarkReported sets the one-way reported flag.
func (s *Store) MarkReported(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscription_requests SET reported = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark reported %d: %w", id, err)
	}
	return nil
}

// MarkApproved resolves a pending request with the granted end date.
// A request resolved by another actor first yields ErrAlreadyResolved.
func (s *Store) MarkApproved(ctx context.Context, id int64, endDate time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscription_requests
		SET status = $2, end_date = $3
		WHERE id = $1 AND status = $4`,
		id, domain.StatusApproved, endDate, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("mark approved %d: %w", id, err)
	}
	return s.resolveOutcome(ctx, res, "subscription_requests", id)
}

// MarkDeclined resolves a pending request with a rejection reason.
func (s *Store) MarkDeclined(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscription_requests
		SET status = $2, reject_reason = $3
		WHERE id = $1 AND status = $4`,
		id, domain.StatusDeclined, reason, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("mark declined %d: %w", id, err)
	}
	return s.resolveOutcome(ctx, res, "subscription_requests", id)
}

// MarkAnnouncedAndCompleted finishes the request lifecycle after the
// requester was notified of the outcome.
func (s *Store) MarkAnnouncedAndCompleted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE subscription_requests
		SET announced = TRUE, status = $2
		WHERE id = $1`, id, domain.StatusCompleted)
	if err != nil {
		return fmt.Errorf("mark completed %d: %w", id, err)
	}
	return nil
}

// LinkSubscription records the subscription realized from an approved request.
func (s *Store) LinkSubscription(ctx context.Context, id, subscriptionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscription_requests SET subscription_id = $2 WHERE id = $1`, id, subscriptionID)
	if err != nil {
		return fmt.Errorf("link subscription %d: %w", id, err)
	}
	return nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

// resolveOutcome translates a zero-row resolution UPDATE into the right
// sentinel: a missing row or a lost race with another resolver.
func (s *Store) resolveOutcome(ctx context.Context, res rowsAffected, table string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve request %d: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE id = $1)`
	if err := s.db.GetContext(ctx, &exists, query, id); err != nil {
		return fmt.Errorf("resolve request %d: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyResolved
}
