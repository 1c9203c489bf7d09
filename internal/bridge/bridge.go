// Package bridge implements the cross-runtime handler invocation
// protocol: native worker goroutines submit tickets to a bounded queue,
// a single simulated cooperative executor goroutine drains and runs them
// one at a time, and replies are correlated back to the waiting caller
// strictly by ticket id.
//
// Outstanding tickets are kept in a mutex-guarded table; each Submit
// enforces its own deadline with a per-ticket timer rather than a
// periodic sweep.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/s00d/rnode-server/internal/apperrors"
	"github.com/s00d/rnode-server/internal/logger"
)

// HandlerFunc is the user-supplied callback, run exclusively on the
// simulated single-threaded executor. It receives the serialized request
// and returns a serialized response or an error.
type HandlerFunc func(ticket *Ticket) (resp any, err error)

// Ticket is the correlation token for one cross-runtime call.
type Ticket struct {
	ID        string
	Request   any // serialised-Request snapshot
	Params    map[string]any
	CreatedAt time.Time
	Deadline  time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	result   any
	err      error
	outcome  outcome
}

type outcome int

const (
	pending outcome = iota
	completed
	timedOut
	cancelled
)

// Cancelled reports whether the owning connection closed before a reply
// arrived. The script side is informed only via this best-effort flag; it
// is never preempted mid-execution.
func (t *Ticket) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Bridge is the HandlerBridge: a bounded ticket queue drained by exactly
// one simulated executor goroutine.
type Bridge struct {
	queueCap int
	queue    chan *job
	table    *ticketTable

	handler HandlerFunc

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type job struct {
	ticket *Ticket
	replyC chan<- struct{}
}

// New creates a Bridge with the given bounded queue capacity and starts
// its single executor goroutine, which calls handler for every admitted
// ticket strictly one at a time — the cooperative-scheduling contract the
// single-threaded script executor depends on.
func New(queueCap int, handler HandlerFunc) *Bridge {
	b := &Bridge{
		queueCap: queueCap,
		queue:    make(chan *job, queueCap),
		table:    newTicketTable(),
		handler:  handler,
		stopCh:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.run()
	return b
}

// Submit enqueues a new ticket for request/params with the given timeout,
// blocking the caller until the ticket completes, times out, or the
// caller's ctx is cancelled (connection closed).
//
// Submit returns HandlerOverload immediately, without enqueuing, if the
// queue is full.
func (b *Bridge) Submit(ctx context.Context, request any, params map[string]any, timeout time.Duration) (any, error) {
	tctx, cancel := context.WithCancel(ctx)
	ticket := &Ticket{
		ID:        uuid.NewString(),
		Request:   request,
		Params:    params,
		CreatedAt: time.Now(),
		Deadline:  time.Now().Add(timeout),
		ctx:       tctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	b.table.register(ticket)
	defer b.table.remove(ticket.ID)
	defer cancel()

	select {
	case b.queue <- &job{ticket: ticket}:
	default:
		return nil, apperrors.New(apperrors.HandlerOverload, "handler ticket queue is full")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ticket.done:
		if ticket.outcome == completed {
			return ticket.result, ticket.err
		}
		return nil, apperrors.New(apperrors.HandlerTimeout, "handler did not reply before the deadline")
	case <-timer.C:
		ticket.once.Do(func() {
			ticket.outcome = timedOut
			close(ticket.done)
		})
		return nil, apperrors.New(apperrors.HandlerTimeout, "handler did not reply before the deadline")
	case <-ctx.Done():
		ticket.once.Do(func() {
			ticket.outcome = cancelled
			close(ticket.done)
		})
		return nil, ctx.Err()
	}
}

// run is the simulated cooperative executor: it drains the queue exactly
// one job at a time. A call into b.handler may itself block on further
// I/O (the script runtime's "await" suspension point); the next job only
// starts once handler returns.
func (b *Bridge) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case j := <-b.queue:
			b.process(j.ticket)
		}
	}
}

func (b *Bridge) process(t *Ticket) {
	if t.Cancelled() {
		// Best-effort: the script side is never preempted, but if the
		// ticket was already cancelled before we reached it there is no
		// point running the handler at all.
		return
	}
	result, err := b.handler(t)

	// A reply that arrives after the ticket already timed out or was
	// cancelled is discarded — the id is gone from the caller's
	// perspective (the caller stopped waiting on ticket.done).
	t.once.Do(func() {
		t.result = result
		t.err = err
		t.outcome = completed
		close(t.done)
	})
	if t.outcome != completed {
		logger.Bridge().Debug().Str("ticket", t.ID).Msg("late reply discarded")
	}
}

// Stop halts the executor goroutine after its current job (if any)
// finishes. It does not cancel in-flight tickets; callers still waiting
// on Submit will see their own ctx/timeout govern completion.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

// PendingCount returns the number of tickets currently outstanding,
// useful for a graceful-shutdown grace-period check.
func (b *Bridge) PendingCount() int { return b.table.count() }
