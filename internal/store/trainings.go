package store

import (
	"context"
	"fmt"
	"time"

	"membot/internal/domain"
)

// CreateTrainingRequest persists a new pending training booking.
func (s *Store) CreateTrainingRequest(ctx context.Context, req domain.TrainingRequest) (domain.TrainingRequest, error) {
	const q = `
		INSERT INTO training_requests
			(user_telegram_id, username, session_date, session_time,
			 payment_method, invoice_number, status, reported, announced)
		VALUES
			(:user_telegram_id, :username, :session_date, :session_time,
			 :payment_method, :invoice_number, :status, FALSE, FALSE)
		RETURNING id, created_at`
	req.Status = domain.StatusPending
	rows, err := s.db.NamedQueryContext(ctx, q, req)
	if err != nil {
		return domain.TrainingRequest{}, fmt.Errorf("create training request: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return domain.TrainingRequest{}, fmt.Errorf("create training request: no row returned")
	}
	if err := rows.Scan(&req.ID, &req.CreatedAt); err != nil {
		return domain.TrainingRequest{}, fmt.Errorf("create training request: %w", err)
	}
	return req, nil
}

// TrainingRequestByID fetches one training request row.
func (s *Store) TrainingRequestByID(ctx context.Context, id int64) (domain.TrainingRequest, error) {
	var req domain.TrainingRequest
	err := s.db.GetContext(ctx, &req, `SELECT * FROM training_requests WHERE id = $1`, id)
	if err != nil {
		return domain.TrainingRequest{}, fmt.Errorf("training request %d: %w", id, wrapNotFound(err))
	}
	return req, nil
}

// PendingUnreportedTrainings lists bookings staff have not seen yet.
func (s *Store) PendingUnreportedTrainings(ctx context.Context) ([]domain.TrainingRequest, error) {
	var reqs []domain.TrainingRequest
	err := s.db.SelectContext(ctx, &reqs, `
		SELECT * FROM training_requests
		WHERE status = $1 AND NOT reported
		ORDER BY id`, domain.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("pending unreported trainings: %w", err)
	}
	return reqs, nil
}

// ResolvedUnannouncedTrainings lists resolved bookings whose requester has
// not been notified yet.
func (s *Store) ResolvedUnannouncedTrainings(ctx context.Context) ([]domain.TrainingRequest, error) {
	var reqs []domain.TrainingRequest
	err := s.db.SelectContext(ctx, &reqs, `
		SELECT * FROM training_requests
		WHERE status IN ($1, $2) AND NOT announced
		ORDER BY id`, domain.StatusApproved, domain.StatusDeclined)
	if err != nil {
		return nil, fmt.Errorf("resolved unannounced trainings: %w", err)
	}
	return reqs, nil
}

// MarkTrainingReported sets the one-way reported flag.
func (s *Store) MarkTrainingReported(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE training_requests SET reported = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark training reported %d: %w", id, err)
	}
	return nil
}

// MarkTrainingApproved resolves a pending booking, optionally with a coach.
func (s *Store) MarkTrainingApproved(ctx context.Context, id int64, coachID *int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE training_requests
		SET status = $2, coach_id = $3
		WHERE id = $1 AND status = $4`,
		id, domain.StatusApproved, coachID, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("mark training approved %d: %w", id, err)
	}
	return s.resolveOutcome(ctx, res, "training_requests", id)
}

// MarkTrainingDeclined resolves a pending booking with a reason.
func (s *Store) MarkTrainingDeclined(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE training_requests
		SET status = $2, reject_reason = $3
		WHERE id = $1 AND status = $4`,
		id, domain.StatusDeclined, reason, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("mark training declined %d: %w", id, err)
	}
	return s.resolveOutcome(ctx, res, "training_requests", id)
}

// MarkTrainingAnnouncedAndCompleted finishes the booking lifecycle.
func (s *Store) MarkTrainingAnnouncedAndCompleted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE training_requests
		SET announced = TRUE, status = $2
		WHERE id = $1`, id, domain.StatusCompleted)
	if err != nil {
		return fmt.Errorf("mark training completed %d: %w", id, err)
	}
	return nil
}

// ReservedSlots returns session times already taken on the given date.
// Pending and approved bookings both hold their slot.
func (s *Store) ReservedSlots(ctx context.Context, date time.Time) ([]string, error) {
	var times []string
	err := s.db.SelectContext(ctx, &times, `
		SELECT session_time FROM training_requests
		WHERE session_date = $1 AND status IN ($2, $3)
		ORDER BY session_time`, date, domain.StatusPending, domain.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("reserved slots %s: %w", date.Format("2006-01-02"), err)
	}
	return times, nil
}
