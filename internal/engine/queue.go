package engine

import (
	"context"
	"sync"

	"github.com/roach88/dust/internal/entity"
	"github.com/roach88/dust/internal/queryir"
	"github.com/roach88/dust/internal/store"
)

// RequestType distinguishes the work an engine request carries.
type RequestType int

const (
	// RequestAccess runs a function against the entity store.
	RequestAccess RequestType = iota + 1
	// RequestFlush runs a persistence pass over pending entities.
	RequestFlush
	// RequestLoad loads stored entities into the entity store.
	RequestLoad
	// RequestQuery loads the stored entities of one type matching a filter.
	RequestQuery
)

func (t RequestType) String() string {
	switch t {
	case RequestAccess:
		return "access"
	case RequestFlush:
		return "flush"
	case RequestLoad:
		return "load"
	case RequestQuery:
		return "query"
	default:
		return "unknown"
	}
}

// request is one unit of work for the Run loop. reply is buffered so the
// loop never blocks on a caller that stopped waiting.
type request struct {
	Type  RequestType
	ID    string
	Seq   int64
	Fn    func(*entity.Store) error
	Units []string
	Query queryir.Select

	ctx   context.Context
	reply chan response
}

type response struct {
	pass   store.PassResult
	loaded int
	gids   []entity.GlobalID
	err    error
}

// requestQueue is a thread-safe, unbounded FIFO of requests.
//
// Callers on any goroutine enqueue; only the Run loop dequeues. A buffered
// signal channel of size 1 lets Run wait with select alongside ctx.Done().
type requestQueue struct {
	mu       sync.Mutex
	requests []request
	seq      int64
	closed   bool
	signal   chan struct{}
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue stamps r with the next sequence number and appends it.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r request) (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, false
	}

	q.seq++
	r.Seq = q.seq
	q.requests = append(q.requests, r)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return r.Seq, true
}

// TryDequeue removes the front request without blocking.
func (q *requestQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return request{}, false
	}

	r := q.requests[0]
	// Clear the slot so the closure and reply channel can be collected.
	q.requests[0] = request{}
	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	return r, true
}

// Wait returns a channel that signals when requests may be available. It is
// closed by Close.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued requests.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close rejects further requests and wakes the Run loop.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Drain removes and returns every queued request.
func (q *requestQueue) Drain() []request {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.requests
	q.requests = nil
	return out
}
