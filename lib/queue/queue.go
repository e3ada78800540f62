// Package queue holds transfers that failed with a retryable error and replays them with exponential backoff.
// Entries are kept in memory: a restart drops the queue, which is acceptable because every accepted transfer is
// reported to the caller with its queue id and can be resubmitted.
package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tarancss/txd/lib/dispatch"
)

var (
	ErrNotFound  = errors.New("queue entry not found")
	ErrBusy      = errors.New("queue entry attempt in progress")
	ErrDuplicate = errors.New("queue entry already exists")
)

// DispatchFunc runs one send attempt for an entry.
type DispatchFunc func(ctx context.Context, req dispatch.Request) dispatch.Outcome

// Entry is one queued transfer. Retries counts attempts already made after the initial failure; NextRetry is
// when the sweeper may try again.
type Entry struct {
	ID         string           `json:"id"`
	Request    dispatch.Request `json:"-"`
	Chain      string           `json:"chain"`
	Retries    int              `json:"retries"`
	MaxRetries int              `json:"maxRetries"`
	LastError  string           `json:"lastError,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	NextRetry  time.Time        `json:"nextRetry"`

	busy bool
}

// Stats summarizes queue depth for the REST surface.
type Stats struct {
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
}

// Queue replays failed dispatches. At most one attempt per entry runs at a time; distinct entries may be
// attempted concurrently.
type Queue struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	dispatch   DispatchFunc
	maxRetries int
	done       chan struct{}
	wg         sync.WaitGroup

	// OnTerminal, when set, observes every entry leaving the queue for good: delivered, exhausted or fatal.
	OnTerminal func(e Entry, out dispatch.Outcome)
}

// New returns an empty queue. maxRetries bounds attempts per entry.
func New(d DispatchFunc, maxRetries int) *Queue {
	return &Queue{
		entries:    make(map[string]*Entry),
		dispatch:   d,
		maxRetries: maxRetries,
		done:       make(chan struct{}),
	}
}

// Add enqueues a failed transfer for retry. The id is the caller's idempotency id: a second Add with the same id
// is rejected so a transfer can never be queued twice.
func (q *Queue) Add(req dispatch.Request, cause error) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[req.ID]; ok {
		return nil, ErrDuplicate
	}

	now := time.Now()
	e := &Entry{
		ID:         req.ID,
		Request:    req,
		Chain:      req.Chain.Name,
		MaxRetries: q.maxRetries,
		CreatedAt:  now,
		NextRetry:  now.Add(backoff(1)),
	}

	if cause != nil {
		e.LastError = cause.Error()
	}

	q.entries[req.ID] = e

	return e, nil
}

// Get returns a snapshot of one entry.
func (q *Queue) Get(id string) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}

	return *e, nil
}

// List returns snapshots of all entries, insertion order not guaranteed.
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}

	return out
}

// Stats reports queue depth. Entries that have not yet been attempted count as pending.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats

	for _, e := range q.entries {
		if e.Retries == 0 {
			s.Pending++
		} else {
			s.Retrying++
		}
	}

	return s
}

// Retry forces an immediate attempt of one entry, ignoring NextRetry. It is rejected while a sweep attempt for
// the same entry is in flight.
func (q *Queue) Retry(ctx context.Context, id string) (dispatch.Outcome, error) {
	q.mu.Lock()

	e, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()

		return dispatch.Outcome{}, ErrNotFound
	}

	if e.busy {
		q.mu.Unlock()

		return dispatch.Outcome{}, ErrBusy
	}

	e.busy = true
	req := e.Request
	q.mu.Unlock()

	out := q.dispatch(ctx, req)
	q.settle(id, out)

	return out, nil
}

// StartSweep launches the background retry loop. Call Stop to terminate it.
func (q *Queue) StartSweep(interval time.Duration) {
	q.wg.Add(1)

	go func() {
		defer q.wg.Done()

		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-q.done:
				return
			case <-t.C:
				q.sweep()
			}
		}
	}()
}

// Stop terminates the sweeper and waits for in-flight attempts.
func (q *Queue) Stop() {
	close(q.done)
	q.wg.Wait()
}

// sweep attempts every due entry. Attempts run concurrently across entries.
func (q *Queue) sweep() {
	now := time.Now()

	q.mu.Lock()

	var due []*Entry

	for _, e := range q.entries {
		if !e.busy && !e.NextRetry.After(now) {
			e.busy = true
			due = append(due, e)
		}
	}

	q.mu.Unlock()

	for _, e := range due {
		q.wg.Add(1)

		go func(id string, req dispatch.Request) {
			defer q.wg.Done()

			out := q.dispatch(context.Background(), req)
			q.settle(id, out)
		}(e.ID, e.Request)
	}
}

// settle applies the outcome of an attempt: success and fatal failures remove the entry, retryable failures
// reschedule it until the attempt budget runs out.
func (q *Queue) settle(id string, out dispatch.Outcome) {
	q.mu.Lock()

	e, ok := q.entries[id]
	if !ok {
		q.mu.Unlock()

		return
	}

	e.busy = false
	e.Retries++

	if out.Err != nil {
		e.LastError = out.Err.Error()
	}

	terminal := out.Success || !out.Retryable || e.Retries >= e.MaxRetries

	if terminal {
		delete(q.entries, id)
	} else {
		e.NextRetry = time.Now().Add(backoff(e.Retries + 1))
	}

	snap := *e
	cb := q.OnTerminal
	q.mu.Unlock()

	switch {
	case out.Success:
		log.Printf("[%s] queued transfer %s delivered hash:%s", snap.Chain, id, out.Hash)
	case terminal:
		log.Printf("[%s] queued transfer %s abandoned after %d attempts:%v", snap.Chain, id, snap.Retries, out.Err)
	default:
		log.Printf("[%s] queued transfer %s failed, next attempt at %s:%v",
			snap.Chain, id, snap.NextRetry.Format(time.RFC3339), out.Err)
	}

	if terminal && cb != nil {
		cb(snap, out)
	}
}

// backoff returns the delay before attempt k, doubling each time.
func backoff(k int) time.Duration {
	return time.Duration(1<<uint(k)) * time.Second
}
