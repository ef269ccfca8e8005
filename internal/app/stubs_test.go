package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/market-service/internal/domain"
	"github.com/transfa/market-service/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.UserCredential
	err   error
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{users: map[string]*domain.UserCredential{}}
}

func (r *stubUserRepository) CreateUser(ctx context.Context, user *domain.UserCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, exists := r.users[user.Username]; exists {
		return store.ErrUsernameTaken
	}
	copied := *user
	r.users[user.Username] = &copied
	return nil
}

func (r *stubUserRepository) FindByUsername(ctx context.Context, username string) (*domain.UserCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	user, ok := r.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

type stubPriceRepository struct {
	mu      sync.Mutex
	records map[string]domain.PriceRecord
	upserts int
}

func newStubPriceRepository() *stubPriceRepository {
	return &stubPriceRepository{records: map[string]domain.PriceRecord{}}
}

func (r *stubPriceRepository) UpsertLatestPrice(ctx context.Context, record *domain.PriceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Symbol] = *record
	r.upserts++
	return nil
}

func (r *stubPriceRepository) GetLatestPrice(ctx context.Context, symbol string) (*domain.PriceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[symbol]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

type stubProvider struct {
	mu          sync.Mutex
	latestCalls int
	lastStart   time.Time
	lastEnd     time.Time

	latestFn  func(ctx context.Context, symbol string, call int) (decimal.Decimal, error)
	barsFn    func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
	profileFn func(ctx context.Context, symbol string) (*domain.CompanyInfo, error)
}

func (p *stubProvider) LatestClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	p.latestCalls++
	call := p.latestCalls
	p.mu.Unlock()
	return p.latestFn(ctx, symbol, call)
}

func (p *stubProvider) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	p.mu.Lock()
	p.lastStart, p.lastEnd = start, end
	p.mu.Unlock()
	return p.barsFn(ctx, symbol, start, end)
}

func (p *stubProvider) CompanyProfile(ctx context.Context, symbol string) (*domain.CompanyInfo, error) {
	return p.profileFn(ctx, symbol)
}

func (p *stubProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latestCalls
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return p.err
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

// dailyBars builds consecutive daily bars from 2023-01-02 with the given closes.
func dailyBars(closes ...float64) []domain.Bar {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		bars[i] = domain.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: decimal.NewFromInt(1000),
		}
	}
	return bars
}
