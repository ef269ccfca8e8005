package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/transfa/market-service/internal/domain"
)

// stubScripter answers EVALSHA with a canned reply. Other Scripter methods are
// left nil and must not be reached.
type stubScripter struct {
	redis.Scripter
	reply   interface{}
	err     error
	keys    []string
	args    []interface{}
	evalled int
}

func (s *stubScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	s.evalled++
	s.keys = keys
	s.args = args
	return redis.NewCmdResult(s.reply, s.err)
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name          string
		reply         interface{}
		replyErr      error
		wantKind      domain.ErrorKind
		wantRetry     time.Duration
		wantPlainFail bool
	}{
		{name: "first attempt", reply: []interface{}{int64(1), int64(60000)}},
		{name: "at the limit", reply: []interface{}{int64(3), int64(12000)}},
		{name: "over the limit", reply: []interface{}{int64(4), int64(12500)}, wantKind: domain.KindRateLimited, wantRetry: 12500 * time.Millisecond},
		{name: "over the limit without ttl", reply: []interface{}{int64(9), int64(-1)}, wantKind: domain.KindRateLimited, wantRetry: time.Minute},
		{name: "redis failure", replyErr: errors.New("connection refused"), wantPlainFail: true},
		{name: "reply is not a pair", reply: int64(4), wantPlainFail: true},
		{name: "count is not an integer", reply: []interface{}{"4", int64(1000)}, wantPlainFail: true},
		{name: "ttl is not an integer", reply: []interface{}{int64(4), "1000"}, wantPlainFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubScripter{reply: tt.reply, err: tt.replyErr}
			limiter := NewRedisRateLimiter(client, "market:rate_limit:credentials", 3, time.Minute)

			err := limiter.Allow(context.Background(), " 203.0.113.7 ")

			if client.evalled != 1 {
				t.Fatalf("expected one script call, got %d", client.evalled)
			}
			if len(client.keys) != 1 || client.keys[0] != "market:rate_limit:credentials:203.0.113.7" {
				t.Fatalf("unexpected keys %v", client.keys)
			}
			if len(client.args) != 1 || client.args[0] != int64(60000) {
				t.Fatalf("expected the window in milliseconds, got %v", client.args)
			}

			switch {
			case tt.wantPlainFail:
				if err == nil {
					t.Fatal("expected an error")
				}
				var typed *domain.Error
				if errors.As(err, &typed) {
					t.Fatalf("expected an untyped limiter failure, got %+v", typed)
				}
			case tt.wantKind != "":
				typed := domain.AsError(err)
				if typed.Kind != tt.wantKind || typed.RetryAfter != tt.wantRetry {
					t.Fatalf("expected %s with retry %s, got %+v", tt.wantKind, tt.wantRetry, typed)
				}
			default:
				if err != nil {
					t.Fatalf("expected the attempt to be allowed, got %v", err)
				}
			}
		})
	}
}

func TestRedisRateLimiter_DisabledPaths(t *testing.T) {
	var nilLimiter *RedisRateLimiter
	if err := nilLimiter.Allow(context.Background(), "127.0.0.1"); err != nil {
		t.Fatalf("expected nil limiter to allow, got %v", err)
	}

	if err := NewRedisRateLimiter(nil, "", 10, time.Minute).Allow(context.Background(), "127.0.0.1"); err != nil {
		t.Fatalf("expected limiter without client to allow, got %v", err)
	}

	client := &stubScripter{}
	if err := NewRedisRateLimiter(client, "", 0, time.Minute).Allow(context.Background(), "127.0.0.1"); err != nil {
		t.Fatalf("expected zero limit to allow, got %v", err)
	}
	if client.evalled != 0 {
		t.Fatal("expected no redis call when limiting is disabled")
	}
}

func TestNewRedisRateLimiter_Normalizes(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "  market:rate_limit: ", 5, 100*time.Millisecond)
	if limiter.prefix != "market:rate_limit" {
		t.Fatalf("expected trimmed prefix, got %q", limiter.prefix)
	}
	if limiter.window != time.Second {
		t.Fatalf("expected window widened to 1s, got %s", limiter.window)
	}
	if got := NewRedisRateLimiter(nil, " ", 5, time.Minute).prefix; got != defaultRateLimitPrefix {
		t.Fatalf("expected default prefix, got %q", got)
	}
}
