package queue

import (
	"context"
	"sync"
	"time"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultCapacity     = 10
	defaultTimeout      = 120 * time.Second
	defaultPollInterval = time.Second
)

// Config encapsulates all tunables for Queue construction.
type Config struct {
	// Capacity is the maximum number of waiting requests (not counting
	// the one currently holding the slot). Zero selects the package
	// default; negative means no waiting is allowed at all.
	Capacity int
	// Timeout bounds the total time a request may wait for the slot.
	Timeout time.Duration
	// PollInterval is how often a waiter re-derives its position while
	// blocked, so callbacks can report it even without a wake event.
	PollInterval time.Duration
}

// Queue is a single-slot admission gate with a FIFO waiting list.
// At most one request id holds the slot at a time; everyone else waits
// in arrival order. All state transitions happen under one mutex so a
// grant decision and its recording are atomic.
type Queue struct {
	mu       sync.Mutex
	current  string
	waiting  []string
	signals  map[string]chan struct{}
	capacity int
	timeout  time.Duration
	poll     time.Duration
}

// New constructs a Queue from Config, applying package defaults for
// unset fields.
func New(cfg Config) *Queue {
	q := &Queue{signals: make(map[string]chan struct{})}
	if cfg.Capacity < 0 {
		q.capacity = 0
	} else if cfg.Capacity == 0 {
		q.capacity = defaultCapacity
	} else {
		q.capacity = cfg.Capacity
	}
	if cfg.Timeout <= 0 {
		q.timeout = defaultTimeout
	} else {
		q.timeout = cfg.Timeout
	}
	if cfg.PollInterval <= 0 {
		q.poll = defaultPollInterval
	} else {
		q.poll = cfg.PollInterval
	}
	return q
}

// Len reports the number of waiting requests (excluding the holder).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Busy reports whether the slot is held or anyone is waiting.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != "" || len(q.waiting) > 0
}

// Position returns 0 if id holds the slot, a 1-based rank if it is
// waiting, and -1 if it is unknown to the queue.
func (q *Queue) Position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.positionLocked(id)
}

func (q *Queue) positionLocked(id string) int {
	if q.current == id {
		return 0
	}
	for i, w := range q.waiting {
		if w == id {
			return i + 1
		}
	}
	return -1
}

// Acquire blocks until id holds the slot, the configured timeout
// elapses, ctx is canceled, or the queue is at capacity. onPosition,
// when non-nil, is invoked with the initial 1-based rank and again
// whenever the rank changes while waiting. A nil return means the
// caller holds the slot and must eventually call Release(id).
func (q *Queue) Acquire(ctx context.Context, id string, onPosition func(int)) error {
	q.mu.Lock()
	// Idle fast path: grant and record atomically.
	if q.current == "" && len(q.waiting) == 0 {
		q.current = id
		q.mu.Unlock()
		return nil
	}
	if len(q.waiting) >= q.capacity {
		q.mu.Unlock()
		return capacityError{}
	}
	wake := make(chan struct{}, 1)
	q.waiting = append(q.waiting, id)
	q.signals[id] = wake
	pos := len(q.waiting)
	q.mu.Unlock()

	if onPosition != nil {
		onPosition(pos)
	}

	deadline := time.NewTimer(q.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	lastPos := pos
	for {
		select {
		case <-wake:
			// Release promoted us to current before signaling.
			return nil
		case <-ctx.Done():
			q.abandon(id)
			return ctx.Err()
		case <-deadline.C:
			q.abandon(id)
			return timeoutError{}
		case <-ticker.C:
			p := q.Position(id)
			switch {
			case p == 0:
				return nil
			case p < 0:
				// Another actor evicted us.
				return evictedError{}
			case p != lastPos:
				lastPos = p
				if onPosition != nil {
					onPosition(p)
				}
			}
		}
	}
}

// Release gives up the slot held by id, promoting the head of the
// waiting list (if any) and firing its wake signal. If id is still
// waiting (cancelled before grant), it is removed without promoting
// anyone. Unknown ids are ignored.
func (q *Queue) Release(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseLocked(id)
}

func (q *Queue) releaseLocked(id string) {
	if q.current == id {
		q.current = ""
		if len(q.waiting) > 0 {
			next := q.waiting[0]
			q.waiting = q.waiting[1:]
			q.current = next
			if sig, ok := q.signals[next]; ok {
				delete(q.signals, next)
				select {
				case sig <- struct{}{}:
				default:
				}
			}
		}
		return
	}
	q.removeLocked(id)
}

// abandon withdraws id on the timeout/cancel path. The waiter may have
// been promoted to current concurrently with the deadline firing; in
// that case the slot is handed straight to the next waiter so it is
// never left idle.
func (q *Queue) abandon(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.releaseLocked(id)
}

func (q *Queue) removeLocked(id string) {
	for i, w := range q.waiting {
		if w == id {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	delete(q.signals, id)
}
