// Package task manages the goroutines behind the event delivery path: the remote event reader,
// the dispatcher loop and the per-session and per-watchlist callback runners.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-eyescan/internal/pool"
	"github.com/arloliu/go-eyescan/internal/queue"
	"github.com/arloliu/go-eyescan/logger"
)

// startTimeout bounds how long Start waits for a goroutine to report that it is running.
const startTimeout = 5 * time.Second

// ErrManagerStopped is returned when a task is started on a stopped manager.
var ErrManagerStopped = errors.New("task manager already stopped")

// Func represents a function run in a loop by the Manager.
// It should return true to continue running the task, or false to stop the goroutine.
type Func func(ctx context.Context) bool

// CancelFunc is called once when a task goroutine exits.
type CancelFunc func()

// Manager manages the lifecycle of goroutines (tasks).
//
// All tasks share one context derived from the parent context. Stop cancels it and Wait blocks until
// every task goroutine has returned. Panics in task bodies and handlers are recovered and logged so a
// misbehaving user callback cannot take the delivery path down.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("reader", func(ctx context.Context) bool {
//	    // ... one iteration ...
//	    return true
//	}, nil)
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a new Manager with the given context as the parent context and logger.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by all tasks. It is done after Stop.
func (mgr *Manager) Context() context.Context {
	return mgr.ctx
}

// Start starts a new goroutine that runs taskFunc until it returns false or the manager is stopped.
// cancelFunc, if not nil, is called when the goroutine exits.
func (mgr *Manager) Start(name string, taskFunc Func, cancelFunc CancelFunc) error {
	mgr.logger.Debug("start task", "name", name)

	return mgr.spawn(name, func() {
		if cancelFunc != nil {
			defer cancelFunc()
		}

		for {
			select {
			case <-mgr.ctx.Done():
				return
			default:
				if !mgr.callWithRecoverBool(name, func() bool { return taskFunc(mgr.ctx) }) {
					return
				}
			}
		}
	})
}

// StartMailbox starts a goroutine that hands every batch received from mb to handler.
//
// The goroutine exits when the manager is stopped or the mailbox is closed and drained.
// Handler panics are recovered and logged; the loop keeps running.
func StartMailbox[T any](mgr *Manager, name string, mb *queue.Mailbox[T], handler func([]T)) error {
	mgr.logger.Debug("start mailbox task", "name", name)

	if mb == nil {
		return fmt.Errorf("mailbox of task %s is nil", name)
	}

	return mgr.spawn(name, func() {
		for {
			items, err := mb.Wait(mgr.ctx)
			if err != nil {
				return
			}

			mgr.CallWithRecover(name, func() { handler(items) })
		}
	})
}

// CallWithRecover calls fn with panic protection.
func (mgr *Manager) CallWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}

func (mgr *Manager) callWithRecoverBool(name string, fn func() bool) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			result = false
		}
	}()

	return fn()
}

// Stop signals all running goroutines.
func (mgr *Manager) Stop() {
	mgr.cancel()
}

// Wait waits for all goroutines to terminate.
func (mgr *Manager) Wait() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	mgr.wg.Wait()
}

// WaitTimeout waits for all goroutines to terminate, at most d.
// It returns false if some tasks are still running after d.
func (mgr *Manager) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()

	return pool.WaitTimeout(done, d)
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) spawn(name string, body func()) error {
	select {
	case <-mgr.ctx.Done():
		return ErrManagerStopped
	default:
	}

	mgr.mu.RLock()
	mgr.wg.Add(1)
	mgr.mu.RUnlock()

	started := make(chan struct{})

	go func() {
		defer mgr.wg.Done()

		mgr.count.Add(1)
		close(started)

		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body()
	}()

	timer := pool.GetTimer(startTimeout)
	defer pool.PutTimer(timer)

	select {
	case <-started:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for %s to start", name)
	}
}
