package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/viveroverde/vivero/internal/clock"
)

func TestLocalGuardBlocksWithinWindow(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	guard := NewLocalGuard(clk, 4*time.Second)

	if !guard.TryBegin(ctx, "PAY-1") {
		t.Fatalf("first delivery should enter")
	}
	if guard.TryBegin(ctx, "PAY-1") {
		t.Fatalf("second delivery within window should be blocked")
	}
	if !guard.TryBegin(ctx, "PAY-2") {
		t.Fatalf("different payment id should enter")
	}
}

func TestLocalGuardReadmitsAfterExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	guard := NewLocalGuard(clk, 4*time.Second)

	if !guard.TryBegin(ctx, "PAY-1") {
		t.Fatalf("first delivery should enter")
	}
	clk.Advance(5 * time.Second)
	if !guard.TryBegin(ctx, "PAY-1") {
		t.Fatalf("delivery after window should enter")
	}
}

func TestLocalGuardAdmitsExactlyOneConcurrent(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	guard := NewLocalGuard(clk, 4*time.Second)

	const n = 32
	var wg sync.WaitGroup
	results := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- guard.TryBegin(ctx, "PAY-1")
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for ok := range results {
		if ok {
			admitted++
		}
	}
	if admitted != 1 {
		t.Fatalf("expected exactly one admission, got %d", admitted)
	}
}

func TestLocalGuardRejectsEmptyID(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	guard := NewLocalGuard(clk, time.Second)
	if guard.TryBegin(context.Background(), "") {
		t.Fatalf("empty payment id should never enter")
	}
}
