/**
 * @description
 * PostgreSQL implementations of the user and latest-price repositories.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: connection pool.
 * - github.com/jackc/pgx/v5/pgconn: unique-violation detection.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/market-service/internal/domain"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS latest_prices (
    symbol TEXT PRIMARY KEY,
    latest_price NUMERIC NOT NULL,
    fetched_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsurePostgresSchema creates the users and latest_prices tables if missing.
func EnsurePostgresSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure postgres schema: %w", err)
	}
	return nil
}

// PostgresUserRepository is the PostgreSQL implementation of UserRepository.
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

// NewPostgresUserRepository creates a new instance of PostgresUserRepository.
func NewPostgresUserRepository(db *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// CreateUser inserts a credential. The UNIQUE constraint on username makes this
// an atomic unique insert; a duplicate surfaces as ErrUsernameTaken.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *domain.UserCredential) error {
	query := `
        INSERT INTO users (id, username, password_hash, created_at)
        VALUES ($1, $2, $3, $4)
    `
	_, err := r.db.Exec(ctx, query, user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByUsername returns the credential for username or ErrNotFound.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*domain.UserCredential, error) {
	query := `SELECT id, username, password_hash, created_at FROM users WHERE username = $1`

	var user domain.UserCredential
	err := r.db.QueryRow(ctx, query, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// PostgresPriceRepository is the PostgreSQL implementation of PriceRepository.
type PostgresPriceRepository struct {
	db *pgxpool.Pool
}

// NewPostgresPriceRepository creates a new instance of PostgresPriceRepository.
func NewPostgresPriceRepository(db *pgxpool.Pool) *PostgresPriceRepository {
	return &PostgresPriceRepository{db: db}
}

// UpsertLatestPrice writes the whole record in a single statement, so concurrent
// writers for one symbol are serialized by the row lock and the last commit wins.
func (r *PostgresPriceRepository) UpsertLatestPrice(ctx context.Context, record *domain.PriceRecord) error {
	query := `
        INSERT INTO latest_prices (symbol, latest_price, fetched_at, updated_at)
        VALUES ($1, $2::numeric, $3, NOW())
        ON CONFLICT (symbol) DO UPDATE SET
            latest_price = EXCLUDED.latest_price,
            fetched_at = EXCLUDED.fetched_at,
            updated_at = NOW()
    `
	if _, err := r.db.Exec(ctx, query, record.Symbol, record.LatestPrice.String(), record.Timestamp); err != nil {
		return fmt.Errorf("upsert latest price: %w", err)
	}
	return nil
}

// GetLatestPrice returns the stored record for symbol or ErrNotFound.
func (r *PostgresPriceRepository) GetLatestPrice(ctx context.Context, symbol string) (*domain.PriceRecord, error) {
	query := `SELECT symbol, latest_price::text, fetched_at FROM latest_prices WHERE symbol = $1`

	var (
		record   domain.PriceRecord
		rawPrice string
		fetched  time.Time
	)
	err := r.db.QueryRow(ctx, query, symbol).Scan(&record.Symbol, &rawPrice, &fetched)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest price: %w", err)
	}

	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return nil, fmt.Errorf("parse stored price %q: %w", rawPrice, err)
	}
	record.LatestPrice = price
	record.Timestamp = fetched.UTC()
	return &record, nil
}
