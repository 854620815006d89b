package clocks

import (
	"sync"
	"time"
)

type Timer interface {
	Set(d time.Duration, do func())
	Stop()
}

// FakeTimer holds the last func it was set with until Trigger is called.
type FakeTimer struct {
	mu sync.Mutex
	do func()
}

func (t *FakeTimer) Set(d time.Duration, do func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.do = do
}

// Trigger runs the pending func, if any, and reports whether one was set.
func (t *FakeTimer) Trigger() bool {
	t.mu.Lock()
	do := t.do
	t.do = nil
	t.mu.Unlock()

	if do == nil {
		return false
	}
	do()
	return true
}

func (t *FakeTimer) IsSet() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.do != nil
}

func (t *FakeTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.do = nil
}

type SystemTimer struct {
	mu    sync.Mutex
	timer *time.Timer
}

func (t *SystemTimer) Set(d time.Duration, do func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, do)
}

func (t *SystemTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
}
