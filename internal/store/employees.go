package store

import (
	"context"
	"fmt"

	"membot/internal/domain"
)

// UpsertEmployee registers a staff member or updates their role and names.
func (s *Store) UpsertEmployee(ctx context.Context, e domain.Employee) (domain.Employee, error) {
	const q = `
		INSERT INTO employees (telegram_id, username, first_name, last_name, role)
		VALUES (:telegram_id, :username, :first_name, :last_name, :role)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    role = EXCLUDED.role
		RETURNING id`
	rows, err := s.db.NamedQueryContext(ctx, q, e)
	if err != nil {
		return domain.Employee{}, fmt.Errorf("upsert employee %d: %w", e.TelegramID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return domain.Employee{}, fmt.Errorf("upsert employee %d: no row returned", e.TelegramID)
	}
	if err := rows.Scan(&e.ID); err != nil {
		return domain.Employee{}, fmt.Errorf("upsert employee %d: %w", e.TelegramID, err)
	}
	return e, nil
}

// RemoveEmployee deletes a staff member by Telegram identity.
func (s *Store) RemoveEmployee(ctx context.Context, telegramID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM employees WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("remove employee %d: %w", telegramID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Employees lists all staff ordered by role then name.
func (s *Store) Employees(ctx context.Context) ([]domain.Employee, error) {
	var list []domain.Employee
	err := s.db.SelectContext(ctx, &list,
		`SELECT * FROM employees ORDER BY role, first_name, last_name`)
	if err != nil {
		return nil, fmt.Errorf("employees: %w", err)
	}
	return list, nil
}

// EmployeeByID fetches one staff member by row id.
func (s *Store) EmployeeByID(ctx context.Context, id int64) (domain.Employee, error) {
	var e domain.Employee
	err := s.db.GetContext(ctx, &e, `SELECT * FROM employees WHERE id = $1`, id)
	if err != nil {
		return domain.Employee{}, fmt.Errorf("employee %d: %w", id, wrapNotFound(err))
	}
	return e, nil
}

// Tutors lists staff who may be assigned as coaches.
func (s *Store) Tutors(ctx context.Context) ([]domain.Employee, error) {
	var list []domain.Employee
	err := s.db.SelectContext(ctx, &list,
		`SELECT * FROM employees WHERE role = $1 ORDER BY first_name, last_name`, domain.RoleTutor)
	if err != nil {
		return nil, fmt.Errorf("tutors: %w", err)
	}
	return list, nil
}

// RoleOf resolves a user's staff role. It satisfies the access middleware's
// RoleDirectory contract; lookup failures deny access rather than erroring.
func (s *Store) RoleOf(ctx context.Context, telegramID int64) (string, bool) {
	var role string
	err := s.db.GetContext(ctx, &role,
		`SELECT role FROM employees WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return "", false
	}
	return role, true
}
