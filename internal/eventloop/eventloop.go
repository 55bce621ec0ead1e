// Package eventloop schedules setTimeout/setInterval callbacks for one run.
package eventloop

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTooManyTimers is returned by RegisterTimer when the per-run cap is hit.
var ErrTooManyTimers = errors.New("too many pending timers")

// ErrDeadline is returned by Drain when a pending timer would fire after
// the run's deadline.
var ErrDeadline = errors.New("timer due after the deadline")

// minInterval is the floor applied to setInterval periods.
const minInterval = 10 * time.Millisecond

// timerEntry represents a pending setTimeout or setInterval callback.
// The actual callback lives on the JS side; Go only tracks scheduling
// metadata.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	id       int
	seq      uint64 // registration order, breaks deadline ties
}

// FireFunc invokes the JS callback for a timer id. A non-nil error stops
// the loop and is returned from Drain.
type FireFunc func(id int) error

// EventLoop manages Go-backed timers for setTimeout/setInterval.
// Provides real wall-clock delays backed by Go timers.
type EventLoop struct {
	mu        sync.Mutex
	timers    map[int]*timerEntry
	nextID    int
	seq       uint64
	maxTimers int
}

// New creates an EventLoop holding at most maxTimers pending timers
// (0 means unlimited).
func New(maxTimers int) *EventLoop {
	return &EventLoop{
		timers:    make(map[int]*timerEntry),
		maxTimers: maxTimers,
	}
}

// RegisterTimer creates a timer entry and returns its ID.
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) (int, error) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.maxTimers > 0 && len(el.timers) >= el.maxTimers {
		return 0, fmt.Errorf("RangeError: %w (limit %d)", ErrTooManyTimers, el.maxTimers)
	}
	if delay < 0 {
		delay = 0
	}
	el.nextID++
	el.seq++
	entry := &timerEntry{
		deadline: time.Now().Add(delay),
		id:       el.nextID,
		seq:      el.seq,
	}
	if isInterval {
		entry.interval = max(delay, minInterval)
	}
	el.timers[entry.id] = entry
	return entry.id, nil
}

// ClearTimer cancels a timer by ID. Unknown IDs are ignored.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	delete(el.timers, id)
}

// Pending returns the number of scheduled timers.
func (el *EventLoop) Pending() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers)
}

func (el *EventLoop) next() *timerEntry {
	el.mu.Lock()
	defer el.mu.Unlock()
	var next *timerEntry
	for _, t := range el.timers {
		if next == nil || t.deadline.Before(next.deadline) ||
			(t.deadline.Equal(next.deadline) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// Drain fires timers in deadline order until none remain or kill is
// closed. It returns ErrDeadline as soon as the next timer is due after
// deadline. Waiting happens in a select so a closed kill
// channel wakes the loop at once. Must be called on the runtime's goroutine
// (JS engines are single-threaded); microtasks are the caller's concern and
// belong inside fire.
func (el *EventLoop) Drain(deadline time.Time, kill <-chan struct{}, fire FireFunc) error {
	for {
		next := el.next()
		if next == nil {
			return nil
		}

		if wait := time.Until(next.deadline); wait > 0 {
			if !next.deadline.Before(deadline) {
				return ErrDeadline
			}
			t := time.NewTimer(wait)
			select {
			case <-kill:
				t.Stop()
				return nil
			case <-t.C:
			}
		} else {
			select {
			case <-kill:
				return nil
			default:
			}
		}

		if time.Now().After(deadline) {
			return ErrDeadline
		}

		el.mu.Lock()
		if el.timers[next.id] != next {
			// Cleared (and possibly re-registered) while we waited.
			el.mu.Unlock()
			continue
		}
		if next.interval > 0 {
			next.deadline = time.Now().Add(next.interval)
			el.seq++
			next.seq = el.seq
		} else {
			delete(el.timers, next.id)
		}
		el.mu.Unlock()

		if err := fire(next.id); err != nil {
			return err
		}
	}
}

// Reset clears all timers.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.timers = make(map[int]*timerEntry)
	el.nextID = 0
}
