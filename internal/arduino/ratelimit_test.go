package arduino

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	rl := NewRateLimiter(10, 100*time.Millisecond)
	start := time.Now()
	for i := 0; i < 9; i++ {
		if !rl.Allow(start) {
			t.Fatalf("call %d unexpectedly rate-limited", i)
		}
	}
}

func TestRateLimiter_DropsWithinWindow(t *testing.T) {
	rl := NewRateLimiter(10, 100*time.Millisecond)
	start := time.Now()
	for i := 0; i < 9; i++ {
		rl.Allow(start)
	}
	if rl.Allow(start.Add(50 * time.Millisecond)) {
		t.Fatalf("expected 10th call within window to be dropped")
	}
}

func TestRateLimiter_ResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(10, 100*time.Millisecond)
	start := time.Now()
	for i := 0; i < 9; i++ {
		rl.Allow(start)
	}
	if !rl.Allow(start.Add(150 * time.Millisecond)) {
		t.Fatalf("expected call after window to be allowed")
	}
}

func TestRateLimiter_NeverExceedsMaxPerWindow(t *testing.T) {
	rl := NewRateLimiter(10, 100*time.Millisecond)
	now := time.Now()
	var accepted []time.Time
	for i := 0; i < 1000; i++ {
		t := now.Add(time.Duration(i) * time.Millisecond)
		if rl.Allow(t) {
			accepted = append(accepted, t)
		}
	}
	// Over ~1s at 1 call/ms, acceptance should be well under the raw call count.
	if len(accepted) >= 1000 {
		t.Fatalf("rate limiter accepted all %d calls, expected throttling", len(accepted))
	}
	for i, start := range accepted {
		n := 0
		for _, at := range accepted[i:] {
			if at.Sub(start) < 100*time.Millisecond {
				n++
			}
		}
		if n > 10 {
			t.Fatalf("accepted %d calls in the 100ms window starting at call %d, want at most 10", n, i)
		}
	}
}
