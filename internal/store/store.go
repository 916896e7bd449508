package store

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyResolved is returned when a request was resolved by another
	// actor first. Callers surface it as an informational message.
	ErrAlreadyResolved = errors.New("store: request already resolved")
)

// Store bundles all repositories over one database handle.
type Store struct {
	db *sqlx.DB
}

// New wraps the database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
