package clock_test

import (
	"testing"
	"time"

	"github.com/MitchForest/settlers-sub000/internal/clock"
)

func TestReal_Now(t *testing.T) {
	clk := clock.Real{}
	before := time.Now()
	got := clk.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Real.Now() = %v, expected between %v and %v", got, before, after)
	}
}

func TestMock_Now(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMock(fixed)

	got := clk.Now()
	if !got.Equal(fixed) {
		t.Errorf("Mock.Now() = %v, want %v", got, fixed)
	}

	// Call again to ensure determinism.
	got2 := clk.Now()
	if !got2.Equal(fixed) {
		t.Errorf("Mock.Now() second call = %v, want %v", got2, fixed)
	}
}

func TestMock_AfterFuncFiresOnAdvance(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	fired := false
	clk.AfterFunc(30*time.Second, func() { fired = true })

	clk.Advance(29 * time.Second)
	if fired {
		t.Fatal("timer fired before its deadline")
	}

	clk.Advance(time.Second)
	if !fired {
		t.Fatal("timer did not fire at its deadline")
	}
	if n := clk.PendingTimers(); n != 0 {
		t.Errorf("PendingTimers() = %d, want 0", n)
	}
}

func TestMock_StopPreventsFiring(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	fired := false
	timer := clk.AfterFunc(10*time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false for an armed timer")
	}
	// Stopping twice is safe and reports false.
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	clk.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestMock_FiresInDeadlineOrder(t *testing.T) {
	clk := clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	var order []string
	clk.AfterFunc(20*time.Second, func() { order = append(order, "b") })
	clk.AfterFunc(10*time.Second, func() { order = append(order, "a") })

	clk.Advance(time.Minute)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("fire order = %v, want [a b]", order)
	}
}
