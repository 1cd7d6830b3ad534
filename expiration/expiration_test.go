package expiration

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestJanitorSweepsOnEveryTick(t *testing.T) {
	clk := clock.NewMock()
	var sweeps atomic.Int32

	j := NewJanitor(clk, time.Minute, func() int {
		sweeps.Add(1)
		return 0
	})
	j.Start()
	defer j.Stop()

	// Give the loop a chance to create its ticker before moving time.
	waitFor(t, func() bool {
		clk.Add(time.Minute)
		return sweeps.Load() >= 1
	})

	before := sweeps.Load()
	clk.Add(time.Minute)
	waitFor(t, func() bool { return sweeps.Load() > before })
}

func TestJanitorDisabledWithoutInterval(t *testing.T) {
	clk := clock.NewMock()
	var sweeps atomic.Int32

	j := NewJanitor(clk, 0, func() int {
		sweeps.Add(1)
		return 0
	})
	j.Start()

	clk.Add(time.Hour)
	j.Stop()
	j.Stop()

	if sweeps.Load() != 0 {
		t.Fatalf("expected no sweeps, got %d", sweeps.Load())
	}
}
