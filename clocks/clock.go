package clocks

import (
	"fmt"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	Every(d time.Duration, fn func(), label string) *Ticker
}

type Ticker struct {
	stop    func()
	trigger func()
}

func (t *Ticker) Stop() {
	t.stop()
}

// Trigger calls the ticker func immediately.
func (t *Ticker) Trigger() {
	t.trigger()
}

type SystemClock struct{}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	return time.Now()
}

func (c *SystemClock) Every(d time.Duration, fn func(), _ string) *Ticker {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	return &Ticker{
		stop: func() {
			once.Do(func() {
				ticker.Stop()
				close(done)
			})
		},
		trigger: func() {
			fn()
			ticker.Reset(d)
		},
	}
}

var _ Clock = (*SystemClock)(nil)

// FrozenClock only moves when advanced and only ticks when told to.
type FrozenClock struct {
	now        time.Time
	everyFuncs map[string]func()
	mu         *sync.Mutex
}

func NewFrozenClock() *FrozenClock {
	return &FrozenClock{
		now:        time.Unix(0, 0),
		everyFuncs: make(map[string]func()),
		mu:         &sync.Mutex{},
	}
}

func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *FrozenClock) Every(d time.Duration, fn func(), label string) *Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.everyFuncs[label] = fn
	return &Ticker{
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.everyFuncs, label)
		},
		trigger: fn,
	}
}

// HasEvery reports whether a ticker is registered for label.
func (c *FrozenClock) HasEvery(label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.everyFuncs[label]
	return ok
}

func (c *FrozenClock) TickEvery(label string) {
	c.mu.Lock()
	fn := c.everyFuncs[label]
	c.mu.Unlock()

	if fn == nil {
		panic(fmt.Sprintf("FrozenClock has no `every` func registered for label %s", label))
	}
	fn()
}

var _ Clock = (*FrozenClock)(nil)
