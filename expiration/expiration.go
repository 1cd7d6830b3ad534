// This file defines how expired entries get cleaned up over time.

package expiration

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

/*
Expiry is checked lazily by the cache on every access, so an entry that
nobody touches again keeps its slot until it is evicted. Janitor bounds
that by calling a sweep function on a fixed interval.

The sweep function is owned by the cache; Janitor only owns the goroutine.
*/
type Janitor struct {
	clock    clock.Clock
	interval time.Duration
	sweep    func() int

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewJanitor prepares a janitor. Nothing runs until Start.
func NewJanitor(clk clock.Clock, interval time.Duration, sweep func() int) *Janitor {
	if clk == nil {
		clk = clock.New()
	}
	return &Janitor{
		clock:    clk,
		interval: interval,
		sweep:    sweep,
		stop:     make(chan struct{}),
	}
}

// Start launches the background loop. A non-positive interval disables it.
func (j *Janitor) Start() {
	if j.interval <= 0 {
		return
	}
	j.wg.Add(1)
	go j.loop()
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	ticker := j.clock.Ticker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// Stop ends the loop and waits for an in-flight sweep. Safe to call more than once.
func (j *Janitor) Stop() {
	j.once.Do(func() {
		close(j.stop)
	})
	j.wg.Wait()
}
