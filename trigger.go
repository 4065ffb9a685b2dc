package essync

import (
	"context"
	"sync"
	"time"
)

// Trigger decides when the Driver runs a pass.
type Trigger interface {
	// Wait blocks until the next pass should start or ctx is done.
	Wait(ctx context.Context) error
}

// IntervalTrigger fires immediately the first time. Every later Wait returns
// once the interval has elapsed since it was called, so a Driver sleeps for
// the full interval after each pass.
type IntervalTrigger struct {
	Interval time.Duration

	started bool
}

// NewIntervalTrigger returns an IntervalTrigger firing every d.
func NewIntervalTrigger(d time.Duration) *IntervalTrigger {
	return &IntervalTrigger{Interval: d}
}

// Wait implements Trigger.
func (t *IntervalTrigger) Wait(ctx context.Context) error {
	if !t.started {
		t.started = true
		return ctx.Err()
	}
	timer := time.NewTimer(t.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ManualTrigger fires when Fire is called. Fires which happen while a pass is
// pending are coalesced into that pass.
type ManualTrigger struct {
	ch chan struct{}
}

// NewManualTrigger returns a ManualTrigger.
func NewManualTrigger() *ManualTrigger {
	return &ManualTrigger{ch: make(chan struct{}, 1)}
}

// Fire requests a pass. It reports false if one was already pending.
func (t *ManualTrigger) Fire() bool {
	select {
	case t.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Wait implements Trigger.
func (t *ManualTrigger) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ch:
		return nil
	}
}

// MergeTriggers returns a Trigger which fires whenever any of ts fires. The
// context passed to the first Wait governs the goroutines watching ts, so
// every Wait should be given the same context.
func MergeTriggers(ts ...Trigger) Trigger {
	if len(ts) == 1 {
		return ts[0]
	}
	return &mergedTrigger{triggers: ts, fired: make(chan error, len(ts))}
}

type mergedTrigger struct {
	triggers []Trigger
	once     sync.Once
	fired    chan error
}

func (m *mergedTrigger) Wait(ctx context.Context) error {
	m.once.Do(func() {
		for _, t := range m.triggers {
			go m.watch(ctx, t)
		}
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-m.fired:
		return err
	}
}

func (m *mergedTrigger) watch(ctx context.Context, t Trigger) {
	for {
		err := t.Wait(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case m.fired <- err:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}
