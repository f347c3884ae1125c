package entrywatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryLedger_Claim(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cooldown := 30 * time.Second

	tests := []struct {
		name string
		key  string
		at   time.Duration
		want bool
	}{
		{"first claim", "a", 0, true},
		{"within cooldown", "a", 10 * time.Second, false},
		{"other key", "b", 10 * time.Second, true},
		{"just before expiry", "a", 29 * time.Second, false},
		{"at expiry", "a", 30 * time.Second, true},
		{"restarted cooldown", "a", 45 * time.Second, false},
	}

	for _, tt := range tests {
		got, err := l.Claim(ctx, tt.key, t0.Add(tt.at), cooldown)
		if err != nil {
			t.Fatalf("%s: Claim() error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: Claim(%q, +%v) = %v, want %v", tt.name, tt.key, tt.at, got, tt.want)
		}
	}
}

func TestMemoryLedger_Forget(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	now := time.Now()

	if ok, _ := l.Claim(ctx, "a", now, time.Minute); !ok {
		t.Fatal("first Claim() = false, want true")
	}
	if err := l.Forget(ctx, "a"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if ok, _ := l.Claim(ctx, "a", now, time.Minute); !ok {
		t.Error("Claim() after Forget() = false, want true")
	}
}

func TestMemoryLedger_ZeroCooldown(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	now := time.Now()

	for i := 0; i < 3; i++ {
		if ok, _ := l.Claim(ctx, "a", now, 0); !ok {
			t.Errorf("Claim() #%d with zero cooldown = false, want true", i)
		}
	}
}

func TestMemoryLedger_PrunesExpiredKeys(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	t0 := time.Now()

	for i := 0; i < pruneThreshold; i++ {
		l.Claim(ctx, fmt.Sprintf("old-%d", i), t0, time.Second)
	}
	l.Claim(ctx, "new", t0.Add(time.Minute), time.Second)

	if got := l.Len(); got != 1 {
		t.Errorf("Len() after prune = %d, want 1", got)
	}
}

func TestMemoryLedger_ConcurrentClaimsSingleWinner(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	now := time.Now()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Claim(ctx, "same", now, time.Minute); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("concurrent Claim() winners = %d, want 1", wins)
	}
}
