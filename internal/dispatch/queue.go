// Package dispatch provides the serial execution context the request engine runs on.
//
// All engine state is owned by one Queue goroutine. Public calls, platform
// delegate events and timer expirations are posted onto the queue and run one
// at a time in submission order, so the engine itself needs no locks.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	list "github.com/bahlo/generic-list-go"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/groutine"
)

// Queue is a FIFO serial executor backed by a single named goroutine.
type Queue struct {
	name   string
	logger *logrus.Logger

	mu     sync.Mutex
	tasks  *list.List[func()]
	closed bool

	wake chan struct{}
	done chan struct{}
	gid  atomic.Uint64
}

// New starts a queue. The goroutine is labelled with name for pprof.
func New(name string, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	q := &Queue{
		name:   name,
		logger: logger,
		tasks:  list.New[func()](),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	started := make(chan struct{})
	groutine.Go(context.Background(), name, func(ctx context.Context) {
		q.gid.Store(groutine.GetGID())
		close(started)
		q.loop()
	})
	<-started
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Async schedules fn. Returns false if the queue is closed.
func (q *Queue) Async(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.WithField("queue", q.name).Debug("Dropping task submitted to a closed queue")
		return false
	}
	q.tasks.PushBack(fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync runs fn on the queue and waits for it. Called from the queue itself, fn runs inline.
// Returns false if the queue is closed.
func (q *Queue) Sync(fn func()) bool {
	if q.IsCurrent() {
		fn()
		return true
	}
	finished := make(chan struct{})
	if !q.Async(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	<-finished
	return true
}

// After schedules fn on the queue once d has elapsed. Stopping the returned
// timer before it fires cancels fn.
func (q *Queue) After(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		q.Async(fn)
	})
}

// IsCurrent reports whether the caller runs on the queue goroutine.
func (q *Queue) IsCurrent() bool {
	return groutine.GetGID() == q.gid.Load()
}

// Close stops accepting tasks, drains the ones already queued and waits for the goroutine to exit.
// Calling Close from a queued task does not wait.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	if !q.IsCurrent() {
		<-q.done
	}
}

// Done is closed once the queue goroutine has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for q.tasks.Len() == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		fn := q.tasks.Remove(q.tasks.Front())
		q.mu.Unlock()

		q.run(fn)
	}
}

func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithFields(logrus.Fields{
				"queue": q.name,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("Recovered panic in queued task")
		}
	}()
	fn()
}
