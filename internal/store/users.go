package store

import (
	"context"
	"fmt"
	"time"

	"membot/internal/domain"
)

// UpsertUser creates the user on first contact or refreshes the name fields.
func (s *Store) UpsertUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (domain.User, error) {
	const q = `
		INSERT INTO users (telegram_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name
		RETURNING *`
	var u domain.User
	if err := s.db.GetContext(ctx, &u, q, telegramID, username, firstName, lastName); err != nil {
		return domain.User{}, fmt.Errorf("upsert user %d: %w", telegramID, err)
	}
	return u, nil
}

// UserByTelegramID looks a user up by Telegram identity.
func (s *Store) UserByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return domain.User{}, fmt.Errorf("user by telegram id %d: %w", telegramID, wrapNotFound(err))
	}
	return u, nil
}

// UserByID fetches one user row.
func (s *Store) UserByID(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %d: %w", id, wrapNotFound(err))
	}
	return u, nil
}

// TouchAddedToGroup records when the user gained group access.
func (s *Store) TouchAddedToGroup(ctx context.Context, telegramID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_added_to_group_at = $2 WHERE telegram_id = $1`, telegramID, at)
	if err != nil {
		return fmt.Errorf("touch added %d: %w", telegramID, err)
	}
	return nil
}

// TouchRemovedFromGroup records when the user lost group access.
func (s *Store) TouchRemovedFromGroup(ctx context.Context, telegramID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_removed_from_group_at = $2 WHERE telegram_id = $1`, telegramID, at)
	if err != nil {
		return fmt.Errorf("touch removed %d: %w", telegramID, err)
	}
	return nil
}

// UsersAddedSince lists users who gained group access after the cutoff,
// for the daily membership-change report.
func (s *Store) UsersAddedSince(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	var users []domain.User
	err := s.db.SelectContext(ctx, &users,
		`SELECT * FROM users WHERE last_added_to_group_at >= $1 ORDER BY last_added_to_group_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("users added since: %w", err)
	}
	return users, nil
}

// UsersRemovedSince lists users who lost group access after the cutoff.
func (s *Store) UsersRemovedSince(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	var users []domain.User
	err := s.db.SelectContext(ctx, &users,
		`SELECT * FROM users WHERE last_removed_from_group_at >= $1 ORDER BY last_removed_from_group_at`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("users removed since: %w", err)
	}
	return users, nil
}

// AllUsers lists every known user, used by the expiry sweeper.
func (s *Store) AllUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := s.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("all users: %w", err)
	}
	return users, nil
}
