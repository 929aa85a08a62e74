// Package pool keeps reusable timers for the bounded waits done during shutdown and task startup.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer for the given duration d from the pool.
//
// Return back the timer to the pool with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			// timer was still active, drain a stale tick
			select {
			case <-t.C:
			default:
			}
		}

		return t
	}

	return time.NewTimer(d)
}

// PutTimer returns timer to the pool.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// WaitTimeout waits until done is closed or d elapses.
// It returns true if done was closed in time.
func WaitTimeout(done <-chan struct{}, d time.Duration) bool {
	timer := GetTimer(d)
	defer PutTimer(timer)

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
