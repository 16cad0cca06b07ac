package clock

import (
	"context"
	"testing"
	"time"
)

func TestTickFiresApproximatelyOncePerPeriod(t *testing.T) {
	tk := New(10 * time.Millisecond)
	defer tk.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	count := 0
	for {
		_, _, err := tk.Tick(ctx)
		if err != nil {
			break
		}
		count++
	}
	if count < 10 || count > 25 {
		t.Fatalf("expected roughly 20 ticks in 200ms at 10ms period, got %d", count)
	}
}

func TestTickReturnsContextErrorOnCancel(t *testing.T) {
	tk := New(time.Hour)
	defer tk.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := tk.Tick(ctx)
	if err == nil {
		t.Fatalf("expected an error after context cancellation")
	}
}
