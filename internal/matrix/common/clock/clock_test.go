package clock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clk := RealClock{}

	before := time.Now()
	now := clk.Now()
	after := time.Now()

	if now.Before(before) {
		t.Errorf("Clock time %v is before measurement time %v", now, before)
	}
	if now.After(after) {
		t.Errorf("Clock time %v is after measurement time %v", now, after)
	}
}

func TestMockClock_NowAndAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &MockClock{CurrentTime: start}

	if got := clk.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	clk.Advance(90 * time.Second)
	if got := clk.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("after Advance Now() = %v", got)
	}
}

func TestClockInterface(t *testing.T) {
	var _ Clock = RealClock{}
	var _ Clock = &MockClock{}
}
