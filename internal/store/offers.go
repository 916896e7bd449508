package store

import (
	"context"
	"fmt"

	"membot/internal/domain"
)

// CreateOfferMessage schedules a recurring broadcast.
func (s *Store) CreateOfferMessage(ctx context.Context, content string, perPeriod int) (domain.OfferMessage, error) {
	const q = `
		INSERT INTO offer_messages (content, per_period)
		VALUES ($1, $2)
		RETURNING *`
	var msg domain.OfferMessage
	if err := s.db.GetContext(ctx, &msg, q, content, perPeriod); err != nil {
		return domain.OfferMessage{}, fmt.Errorf("create offer message: %w", err)
	}
	return msg, nil
}

// OfferMessages lists every scheduled broadcast, oldest first.
func (s *Store) OfferMessages(ctx context.Context) ([]domain.OfferMessage, error) {
	var msgs []domain.OfferMessage
	err := s.db.SelectContext(ctx, &msgs, `SELECT * FROM offer_messages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("offer messages: %w", err)
	}
	return msgs, nil
}
