/**
 * @description
 * This file defines the interfaces for the data access layer. Services depend on
 * these interfaces, not on the PostgreSQL or SQLite implementations, which keeps
 * them easy to stub in tests.
 *
 * @notes
 * - Both backends provide the two atomic per-key operations the service relies on:
 *   unique insert for users and upsert for latest prices.
 */
package store

import (
	"context"
	"errors"

	"github.com/transfa/market-service/internal/domain"
)

var (
	// ErrUsernameTaken is returned when CreateUser hits the unique username constraint.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
)

// UserRepository persists username -> password hash pairs.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.UserCredential) error
	FindByUsername(ctx context.Context, username string) (*domain.UserCredential, error)
}

// PriceRepository persists one latest-price record per symbol.
type PriceRepository interface {
	UpsertLatestPrice(ctx context.Context, record *domain.PriceRecord) error
	GetLatestPrice(ctx context.Context, symbol string) (*domain.PriceRecord, error)
}
