package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/market-service/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements UserRepository and PriceRepository on an embedded
// SQLite database, for local development and tests.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers; SQLite would otherwise answer
	// concurrent writes with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash BLOB NOT NULL,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS latest_prices (
			symbol       TEXT PRIMARY KEY,
			latest_price TEXT NOT NULL,
			fetched_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a credential; a duplicate username yields ErrUsernameTaken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.UserCredential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID.String(), user.Username, user.PasswordHash, user.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByUsername returns the credential for username or ErrNotFound.
func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (*domain.UserCredential, error) {
	var (
		user      domain.UserCredential
		rawID     string
		createdMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	).Scan(&rawID, &user.Username, &user.PasswordHash, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", rawID, err)
	}
	user.ID = id
	user.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &user, nil
}

// UpsertLatestPrice replaces the symbol's record in one statement.
func (s *SQLiteStore) UpsertLatestPrice(ctx context.Context, record *domain.PriceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO latest_prices (symbol, latest_price, fetched_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			latest_price = excluded.latest_price,
			fetched_at   = excluded.fetched_at,
			updated_at   = excluded.updated_at`,
		record.Symbol, record.LatestPrice.String(), record.Timestamp.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert latest price: %w", err)
	}
	return nil
}

// GetLatestPrice returns the stored record for symbol or ErrNotFound.
func (s *SQLiteStore) GetLatestPrice(ctx context.Context, symbol string) (*domain.PriceRecord, error) {
	var (
		record    domain.PriceRecord
		rawPrice  string
		fetchedMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT symbol, latest_price, fetched_at FROM latest_prices WHERE symbol = ?`, symbol,
	).Scan(&record.Symbol, &rawPrice, &fetchedMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get latest price: %w", err)
	}

	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return nil, fmt.Errorf("parse stored price %q: %w", rawPrice, err)
	}
	record.LatestPrice = price
	record.Timestamp = time.UnixMilli(fetchedMs).UTC()
	return &record, nil
}

// modernc reports constraint failures only through the message text.
func isSQLiteUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
