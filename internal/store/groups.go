package store

import (
	"context"
	"errors"
	"fmt"

	"membot/internal/domain"
)

// ErrFamilyConflict is returned when a family assignment would break the
// two-level tree: self-parenting or a subgroup claimed by two parents.
var ErrFamilyConflict = errors.New("store: group family conflict")

// UpsertGroup registers a managed chat or refreshes its title.
func (s *Store) UpsertGroup(ctx context.Context, telegramID int64, title string) (domain.Group, error) {
	const q = `
		INSERT INTO groups (telegram_id, title)
		VALUES ($1, $2)
		ON CONFLICT (telegram_id) DO UPDATE SET title = EXCLUDED.title
		RETURNING *`
	var g domain.Group
	if err := s.db.GetContext(ctx, &g, q, telegramID, title); err != nil {
		return domain.Group{}, fmt.Errorf("upsert group %d: %w", telegramID, err)
	}
	return g, nil
}

// GroupByTelegramID looks a group up by chat identity.
func (s *Store) GroupByTelegramID(ctx context.Context, telegramID int64) (domain.Group, error) {
	var g domain.Group
	err := s.db.GetContext(ctx, &g, `SELECT * FROM groups WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return domain.Group{}, fmt.Errorf("group by telegram id %d: %w", telegramID, wrapNotFound(err))
	}
	return g, nil
}

// GroupByID looks a group up by row id.
func (s *Store) GroupByID(ctx context.Context, id int64) (domain.Group, error) {
	var g domain.Group
	err := s.db.GetContext(ctx, &g, `SELECT * FROM groups WHERE id = $1`, id)
	if err != nil {
		return domain.Group{}, fmt.Errorf("group %d: %w", id, wrapNotFound(err))
	}
	return g, nil
}

// MainGroups lists top-level groups offered to subscribers.
func (s *Store) MainGroups(ctx context.Context) ([]domain.Group, error) {
	var groups []domain.Group
	err := s.db.SelectContext(ctx, &groups,
		`SELECT * FROM groups WHERE parent_id IS NULL ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("main groups: %w", err)
	}
	return groups, nil
}

// Subgroups lists the family members of a main group.
func (s *Store) Subgroups(ctx context.Context, parentID int64) ([]domain.Group, error) {
	var groups []domain.Group
	err := s.db.SelectContext(ctx, &groups,
		`SELECT * FROM groups WHERE parent_id = $1 ORDER BY title`, parentID)
	if err != nil {
		return nil, fmt.Errorf("subgroups of %d: %w", parentID, err)
	}
	return groups, nil
}

// AssignParent attaches a subgroup to a main group. It refuses
// self-parenting and subgroups that already belong to another family.
func (s *Store) AssignParent(ctx context.Context, groupID, parentID int64) error {
	if groupID == parentID {
		return fmt.Errorf("%w: group %d cannot parent itself", ErrFamilyConflict, groupID)
	}

	child, err := s.GroupByID(ctx, groupID)
	if err != nil {
		return err
	}
	if child.ParentID != nil && *child.ParentID != parentID {
		return fmt.Errorf("%w: group %d already belongs to family %d", ErrFamilyConflict, groupID, *child.ParentID)
	}

	parent, err := s.GroupByID(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.IsSubgroup() {
		return fmt.Errorf("%w: group %d is itself a subgroup", ErrFamilyConflict, parentID)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE groups SET parent_id = $2 WHERE id = $1`, groupID, parentID)
	if err != nil {
		return fmt.Errorf("assign parent %d -> %d: %w", groupID, parentID, err)
	}
	return nil
}
