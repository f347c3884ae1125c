package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jpalmerr/entrywatch"
)

var _ entrywatch.CooldownLedger = (*Redis)(nil)

// newTestLedger connects to the server named by ENTRYWATCH_TEST_REDIS_URL,
// for example redis://localhost:6379/15, and skips without one.
func newTestLedger(t *testing.T) (*Redis, *redis.Client) {
	t.Helper()
	rawURL := os.Getenv("ENTRYWATCH_TEST_REDIS_URL")
	if rawURL == "" {
		t.Skip("ENTRYWATCH_TEST_REDIS_URL not set")
	}
	client, err := Connect(context.Background(), rawURL)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	// a unique prefix per test keeps runs independent
	return NewRedis(client, "entrywatch-test:"+uuid.NewString()+":"), client
}

func TestNewRedis_DefaultPrefix(t *testing.T) {
	l := NewRedis(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	if l.prefix != DefaultPrefix {
		t.Errorf("prefix = %q, want %q", l.prefix, DefaultPrefix)
	}
}

func TestRedis_ZeroCooldownNeedsNoServer(t *testing.T) {
	// nothing listens on port 1: any round trip would fail
	l := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), "")

	ok, err := l.Claim(context.Background(), "gp", time.Now(), 0)
	if err != nil || !ok {
		t.Errorf("Claim(cooldown 0) = %v, %v, want true, nil", ok, err)
	}
}

func TestRedis_ClaimErrorsWhenUnreachable(t *testing.T) {
	l := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), "")

	if _, err := l.Claim(context.Background(), "gp", time.Now(), time.Minute); err == nil {
		t.Error("Claim() error = nil, want connection error")
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	if _, err := Connect(context.Background(), "http://localhost"); err == nil {
		t.Error("Connect(http url) error = nil, want error")
	}
}

func TestRedis_Claim(t *testing.T) {
	l, client := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	ok, err := l.Claim(ctx, "gp", now, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Claim() = %v, %v, want true, nil", ok, err)
	}
	ok, err = l.Claim(ctx, "gp", now.Add(time.Second), time.Minute)
	if err != nil || ok {
		t.Errorf("second Claim() = %v, %v, want false, nil", ok, err)
	}
	ok, _ = l.Claim(ctx, "derby", now, time.Minute)
	if !ok {
		t.Error("Claim() for another key = false, want true")
	}

	ttl, err := client.TTL(ctx, l.prefix+"gp").Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within the cooldown", ttl)
	}
}

func TestRedis_ClaimExpires(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if ok, _ := l.Claim(ctx, "gp", time.Now(), 50*time.Millisecond); !ok {
		t.Fatal("first Claim() = false, want true")
	}
	time.Sleep(150 * time.Millisecond)
	if ok, err := l.Claim(ctx, "gp", time.Now(), 50*time.Millisecond); err != nil || !ok {
		t.Errorf("Claim() after cooldown = %v, %v, want true, nil", ok, err)
	}
}

func TestRedis_Forget(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	l.Claim(ctx, "gp", time.Now(), time.Hour)
	if err := l.Forget(ctx, "gp"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if ok, _ := l.Claim(ctx, "gp", time.Now(), time.Hour); !ok {
		t.Error("Claim() after Forget = false, want true")
	}
	if err := l.Forget(ctx, "never-claimed"); err != nil {
		t.Errorf("Forget(unknown) error = %v, want nil", err)
	}
}
