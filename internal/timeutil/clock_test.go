package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v, before %v", now, before)
	}
	if d := clock.Since(time.Now().Add(-time.Second)); d < time.Second {
		t.Errorf("Since() = %v, want >= 1s", d)
	}

	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(5 * time.Minute)
	if got := clock.Since(start); got != 5*time.Minute {
		t.Errorf("Since() = %v, want 5m", got)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("Now() = %v, want %v", clock.Now(), later)
	}
}

func TestMockTicker(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(time.Minute)

	if clock.Tickers() != 1 {
		t.Fatalf("Tickers() = %d, want 1", clock.Tickers())
	}

	clock.Advance(30 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	clock.Advance(30 * time.Second)
	select {
	case got := <-ticker.C():
		if !got.Equal(start.Add(time.Minute)) {
			t.Errorf("tick at %v", got)
		}
	default:
		t.Fatal("ticker did not fire")
	}

	ticker.Stop()
	if clock.Tickers() != 0 {
		t.Errorf("Tickers() = %d after Stop, want 0", clock.Tickers())
	}
	clock.Advance(time.Hour)
	select {
	case <-ticker.C():
		t.Error("stopped ticker fired")
	default:
	}
}

func TestMockTicker_DropsUnreadTicks(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Second)
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
	}
	<-ticker.C()
	select {
	case <-ticker.C():
		t.Error("expected a single buffered tick")
	default:
	}
}
