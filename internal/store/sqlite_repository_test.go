package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/market-service/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "market.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_CreateUserRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := &domain.UserCredential{ID: uuid.New(), Username: "alice", PasswordHash: []byte("h1"), CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, first); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	second := &domain.UserCredential{ID: uuid.New(), Username: "alice", PasswordHash: []byte("h2"), CreatedAt: time.Now()}
	if err := s.CreateUser(ctx, second); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, "alice").Scan(&count); err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one record, got %d", count)
	}

	got, err := s.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername returned error: %v", err)
	}
	if got.ID != first.ID || string(got.PasswordHash) != "h1" {
		t.Fatalf("expected the first record to survive, got %+v", got)
	}
}

func TestSQLiteStore_FindByUsernameNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.FindByUsername(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_UpsertOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetLatestPrice(ctx, "AAPL"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first upsert, got %v", err)
	}

	t1 := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	for _, rec := range []domain.PriceRecord{
		{Symbol: "AAPL", LatestPrice: decimal.RequireFromString("185.64"), Timestamp: t1},
		{Symbol: "AAPL", LatestPrice: decimal.RequireFromString("184.25"), Timestamp: t2},
	} {
		rec := rec
		if err := s.UpsertLatestPrice(ctx, &rec); err != nil {
			t.Fatalf("UpsertLatestPrice returned error: %v", err)
		}
	}

	got, err := s.GetLatestPrice(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetLatestPrice returned error: %v", err)
	}
	if !got.LatestPrice.Equal(decimal.RequireFromString("184.25")) || !got.Timestamp.Equal(t2) {
		t.Fatalf("expected second write to win, got %+v", got)
	}
}

func TestSQLiteStore_SymbolIsCaseSensitive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &domain.PriceRecord{Symbol: "AAPL", LatestPrice: decimal.NewFromInt(1), Timestamp: time.Now()}
	if err := s.UpsertLatestPrice(ctx, rec); err != nil {
		t.Fatalf("UpsertLatestPrice returned error: %v", err)
	}
	if _, err := s.GetLatestPrice(ctx, "aapl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for lower-case symbol, got %v", err)
	}
}

func TestSQLiteStore_ConcurrentUpsertsKeepWholeRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

	// Each writer pairs price i with timestamp base+i seconds, so a mixed
	// record would be visible as a mismatch between the two fields.
	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := &domain.PriceRecord{
				Symbol:      "AAPL",
				LatestPrice: decimal.NewFromInt(int64(100 + i)),
				Timestamp:   base.Add(time.Duration(i) * time.Second),
			}
			if err := s.UpsertLatestPrice(ctx, rec); err != nil {
				errs <- fmt.Errorf("writer %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	got, err := s.GetLatestPrice(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetLatestPrice returned error: %v", err)
	}
	i := got.LatestPrice.IntPart() - 100
	if i < 0 || i >= writers {
		t.Fatalf("unexpected price %s", got.LatestPrice)
	}
	if want := base.Add(time.Duration(i) * time.Second); !got.Timestamp.Equal(want) {
		t.Fatalf("record mixes two writes: price %s with timestamp %s", got.LatestPrice, got.Timestamp)
	}
}
