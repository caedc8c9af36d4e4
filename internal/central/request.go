package central

import (
	"time"

	list "github.com/bahlo/generic-list-go"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/dispatch"
	"github.com/srg/blecb/internal/weakref"
)

// single is the key of families with one queue per peripheral.
type single struct{}

// request is one logical operation waiting in a family queue.
//
// Lifecycle: queued, then issued (platform directive sent, timer armed) once it
// reaches the head of its key's queue, then fulfilled by a delegate callback or
// by the timer. Fulfilment removes the head and issues the next request.
type request[T any] struct {
	timeout  time.Duration
	subject  device.Attribute // target handle, when the delegate callback must be matched against it
	uuids    []string         // requested child UUIDs for discovery requests
	issue    func() (T, bool) // sends the directive; true means fulfilled without a response
	callback func(T, error)

	issued bool
	timer  *time.Timer
	ref    *weakref.Ref[request[T]]
}

// family is a set of per-key FIFO queues for one kind of operation.
// Only the dispatch queue goroutine may touch it.
type family[K comparable, T any] struct {
	op      string
	q       *dispatch.Queue
	logger  *logrus.Entry
	pending map[K]*list.List[*request[T]]
}

func newFamily[K comparable, T any](op string, q *dispatch.Queue, logger *logrus.Entry) *family[K, T] {
	return &family[K, T]{
		op:      op,
		q:       q,
		logger:  logger.WithField("operation", op),
		pending: make(map[K]*list.List[*request[T]]),
	}
}

// enqueue appends r to the key's queue and issues it if nothing else is in flight.
func (f *family[K, T]) enqueue(key K, r *request[T]) {
	l, ok := f.pending[key]
	if !ok {
		l = list.New[*request[T]]()
		f.pending[key] = l
	}
	l.PushBack(r)

	f.logger.WithFields(logrus.Fields{
		"key":    key,
		"queued": l.Len(),
	}).Debug("Request queued")

	if l.Len() == 1 {
		f.run(key)
	}
}

// run issues the head request of key. A request completing on issue is popped
// and the next one is issued even if its callback panics.
func (f *family[K, T]) run(key K) {
	r := f.head(key)
	if r == nil || r.issued {
		return
	}
	r.issued = true

	value, done := r.issue()
	if !done {
		ref := weakref.Make(r)
		r.ref = ref
		r.timer = f.q.After(r.timeout, func() {
			f.expire(key, ref)
		})
		return
	}

	f.pop(key)
	defer f.run(key)
	r.callback(value, nil)
}

// head returns the request at the front of key's queue.
func (f *family[K, T]) head(key K) *request[T] {
	l, ok := f.pending[key]
	if !ok || l.Len() == 0 {
		return nil
	}
	return l.Front().Value
}

func (f *family[K, T]) pop(key K) *request[T] {
	l, ok := f.pending[key]
	if !ok || l.Len() == 0 {
		return nil
	}
	r := l.Remove(l.Front())
	if l.Len() == 0 {
		delete(f.pending, key)
	}
	return r
}

// complete fulfils the in-flight request of key with value and err.
// Returns false if nothing was in flight.
func (f *family[K, T]) complete(key K, value T, err error) bool {
	return f.completeWith(key, nil, func(*request[T]) (T, error) {
		return value, err
	})
}

// completeWith fulfils the in-flight request of key with the result of resolve.
// When match is set and rejects the head request, nothing happens.
func (f *family[K, T]) completeWith(key K, match func(*request[T]) bool, resolve func(*request[T]) (T, error)) bool {
	r := f.head(key)
	if r == nil || !r.issued {
		return false
	}
	if match != nil && !match(r) {
		return false
	}

	f.pop(key)
	f.retire(r)
	defer f.run(key)
	value, err := resolve(r)
	r.callback(value, err)
	return true
}

// expire fails the request behind ref with a timeout, if it is still in flight.
func (f *family[K, T]) expire(key K, ref *weakref.Ref[request[T]]) {
	r := ref.Value()
	if r == nil || f.head(key) != r {
		return
	}

	f.logger.WithFields(logrus.Fields{
		"key":     key,
		"timeout": r.timeout,
	}).Warn("Request timed out")

	var zero T
	f.complete(key, zero, &device.TimeoutError{Operation: f.op})
}

// failAll empties every queue and fails each request with err.
func (f *family[K, T]) failAll(err error) int {
	var failed []*request[T]
	for key, l := range f.pending {
		for e := l.Front(); e != nil; e = e.Next() {
			failed = append(failed, e.Value)
		}
		delete(f.pending, key)
	}

	var zero T
	calls := make([]func(), 0, len(failed))
	for _, r := range failed {
		f.retire(r)
		calls = append(calls, func() { r.callback(zero, err) })
	}
	fanOut(calls)
	return len(failed)
}

// len returns the number of requests queued for key, in flight included.
func (f *family[K, T]) len(key K) int {
	if l, ok := f.pending[key]; ok {
		return l.Len()
	}
	return 0
}

func (f *family[K, T]) retire(r *request[T]) {
	if r.ref != nil {
		r.ref.Release()
	}
	if r.timer != nil {
		r.timer.Stop()
	}
}

// fanOut calls every fn in order. A panicking fn does not keep the rest from
// running; the panic propagates once they all ran.
func fanOut(fns []func()) {
	if len(fns) == 0 {
		return
	}
	defer fanOut(fns[1:])
	fns[0]()
}
