package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	q := New(Config{})
	if q.capacity != defaultCapacity {
		t.Fatalf("expected default capacity=%d got %d", defaultCapacity, q.capacity)
	}
	if q.timeout != defaultTimeout {
		t.Fatalf("expected default timeout=%v got %v", defaultTimeout, q.timeout)
	}
	if q.poll != defaultPollInterval {
		t.Fatalf("expected default poll=%v got %v", defaultPollInterval, q.poll)
	}
}

func TestImmediateGrantWhenIdle(t *testing.T) {
	q := New(Config{Capacity: 4})
	if err := q.Acquire(context.Background(), "a", nil); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := q.Position("a"); got != 0 {
		t.Fatalf("expected position 0 got %d", got)
	}
	q.Release("a")
	if q.Busy() {
		t.Fatalf("queue should be idle after release")
	}
	if got := q.Position("a"); got != -1 {
		t.Fatalf("expected -1 for released id got %d", got)
	}
}

func TestSecondRequestWaitsAtRankOne(t *testing.T) {
	q := New(Config{Capacity: 4, PollInterval: 10 * time.Millisecond})
	if err := q.Acquire(context.Background(), "a", nil); err != nil {
		t.Fatalf("acquire a: %v", err)
	}

	var mu sync.Mutex
	var positions []int
	done := make(chan error, 1)
	go func() {
		done <- q.Acquire(context.Background(), "b", func(p int) {
			mu.Lock()
			positions = append(positions, p)
			mu.Unlock()
		})
	}()

	// Wait until b is visibly queued at rank 1.
	deadline := time.Now().Add(time.Second)
	for q.Position("b") != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("b never reached rank 1")
		}
		time.Sleep(time.Millisecond)
	}

	q.Release("a")
	if err := <-done; err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	if got := q.Position("b"); got != 0 {
		t.Fatalf("expected b at position 0 got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(positions) == 0 || positions[0] != 1 {
		t.Fatalf("expected initial position callback 1, got %v", positions)
	}
}

func TestCapacityRejection(t *testing.T) {
	q := New(Config{Capacity: -1, PollInterval: 10 * time.Millisecond})
	if err := q.Acquire(context.Background(), "a", nil); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	err := q.Acquire(context.Background(), "b", nil)
	if !IsCapacity(err) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	// First request is unaffected.
	if got := q.Position("a"); got != 0 {
		t.Fatalf("expected a still at 0 got %d", got)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty waiting list, got %d", q.Len())
	}
}

func TestCapacityBound(t *testing.T) {
	q := New(Config{Capacity: 1, PollInterval: 10 * time.Millisecond})
	if err := q.Acquire(context.Background(), "a", nil); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	go q.Acquire(context.Background(), "b", nil) //nolint:errcheck

	deadline := time.Now().Add(time.Second)
	for q.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("b never queued")
		}
		time.Sleep(time.Millisecond)
	}

	if err := q.Acquire(context.Background(), "c", nil); !IsCapacity(err) {
		t.Fatalf("expected capacity error for c, got %v", err)
	}
	q.Release("a")
	q.Release("b")
}

func TestTimeoutRemovesWaiter(t *testing.T) {
	q := New(Config{Capacity: 4, Timeout: 50 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	if err := q.Acquire(context.Background(), "a", nil); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	err := q.Acquire(context.Background(), "b", nil)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if got := q.Position("b"); got != -1 {
		t.Fatalf("timed-out waiter should be gone, got position %d", got)
	}
	// Releasing a must not grant to the departed b.
	q.Release("a")
	if cur := q.Position("b"); cur != -1 {
		t.Fatalf("b resurrected after release: position %d", cur)
	}
	if q.Busy() {
		t.Fatalf("queue should be idle")
	}
}

func TestContextCancelRemovesWaiter(t *testing.T) {
	q := New(Config{Capacity: 4, PollInterval: 10 * time.Millisecond})
	if err := q.Acquire(context.Background(), "a", nil); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Acquire(ctx, "b", nil) }()

	deadline := time.Now().Add(time.Second)
	for q.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("b never queued")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled got %v", err)
	}
	if got := q.Position("b"); got != -1 {
		t.Fatalf("cancelled waiter should be gone, got %d", got)
	}
}

func TestCancelledWaiterNotPromoted(t *testing.T) {
	q := New(Config{Capacity: 4, PollInterval: 10 * time.Millisecond})
	if err := q.Acquire(context.Background(), "a", nil); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	bDone := make(chan error, 1)
	go func() { bDone <- q.Acquire(ctx, "b", nil) }()
	for q.Len() != 1 {
		time.Sleep(time.Millisecond)
	}
	cDone := make(chan error, 1)
	go func() { cDone <- q.Acquire(context.Background(), "c", nil) }()
	for q.Len() != 2 {
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-bDone
	q.Release("a")
	if err := <-cDone; err != nil {
		t.Fatalf("acquire c: %v", err)
	}
	if got := q.Position("c"); got != 0 {
		t.Fatalf("expected c granted, got position %d", got)
	}
	q.Release("c")
}

func TestFIFOOrderUnderConcurrency(t *testing.T) {
	q := New(Config{Capacity: 16, PollInterval: 5 * time.Millisecond})
	if err := q.Acquire(context.Background(), "holder", nil); err != nil {
		t.Fatalf("acquire holder: %v", err)
	}

	const n = 5
	ids := []string{"w0", "w1", "w2", "w3", "w4"}
	var mu sync.Mutex
	var grants []string
	var wg sync.WaitGroup
	for _, id := range ids {
		// Enqueue strictly in order: wait until the previous waiter is
		// visible in the queue before starting the next.
		want := q.Len() + 1
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := q.Acquire(context.Background(), id, nil); err != nil {
				t.Errorf("acquire %s: %v", id, err)
				return
			}
			mu.Lock()
			grants = append(grants, id)
			mu.Unlock()
			q.Release(id)
		}(id)
		deadline := time.Now().Add(time.Second)
		for q.Len() < want {
			if time.Now().After(deadline) {
				t.Fatalf("%s never queued", id)
			}
			time.Sleep(time.Millisecond)
		}
	}

	q.Release("holder")
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(grants) != n {
		t.Fatalf("expected %d grants got %d", n, len(grants))
	}
	for i, id := range ids {
		if grants[i] != id {
			t.Fatalf("FIFO violated: got %v", grants)
		}
	}
	if q.Busy() {
		t.Fatalf("queue should drain to idle")
	}
}

func TestSingleHolderInvariant(t *testing.T) {
	q := New(Config{Capacity: 32, PollInterval: time.Millisecond})
	const n = 8
	var holders int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if err := q.Acquire(context.Background(), id, nil); err != nil {
				t.Errorf("acquire %s: %v", id, err)
				return
			}
			mu.Lock()
			holders++
			if holders != 1 {
				t.Errorf("two ids hold the slot simultaneously")
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			holders--
			mu.Unlock()
			q.Release(id)
		}(i)
	}
	wg.Wait()
}

func TestPositionUpdatesWhileWaiting(t *testing.T) {
	q := New(Config{Capacity: 8, PollInterval: 5 * time.Millisecond})
	if err := q.Acquire(context.Background(), "a", nil); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	bDone := make(chan error, 1)
	go func() { bDone <- q.Acquire(context.Background(), "b", nil) }()
	for q.Len() != 1 {
		time.Sleep(time.Millisecond)
	}

	var mu sync.Mutex
	var seen []int
	cDone := make(chan error, 1)
	go func() {
		cDone <- q.Acquire(context.Background(), "c", func(p int) {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
		})
	}()
	for q.Len() != 2 {
		time.Sleep(time.Millisecond)
	}

	q.Release("a")
	if err := <-bDone; err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	// c should observe the move from rank 2 to rank 1 via polling.
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no position update observed: %v", seen)
		}
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	if seen[0] != 2 || seen[1] != 1 {
		t.Fatalf("expected positions [2 1] prefix, got %v", seen)
	}
	mu.Unlock()

	q.Release("b")
	if err := <-cDone; err != nil {
		t.Fatalf("acquire c: %v", err)
	}
	q.Release("c")
}
