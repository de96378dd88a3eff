package queue

// capacityError signals that the waiting list is full (429 mapping).
type capacityError struct{}

func (capacityError) Error() string { return "server is busy, please try again later" }

// IsCapacity reports whether err indicates the queue rejected the
// request because its waiting list was at capacity.
func IsCapacity(err error) bool {
	_, ok := err.(capacityError)
	return ok
}

// timeoutError signals that a waiter exceeded the configured queue
// timeout before being granted the slot.
type timeoutError struct{}

func (timeoutError) Error() string { return "queue timeout, server is very busy" }

// IsTimeout reports whether err indicates a queue-wait timeout.
func IsTimeout(err error) bool {
	_, ok := err.(timeoutError)
	return ok
}

// evictedError signals that a waiter disappeared from the queue while
// blocked, e.g. removed by another actor.
type evictedError struct{}

func (evictedError) Error() string { return "removed from queue" }

// IsEvicted reports whether err indicates the waiter was removed from
// the queue before being granted.
func IsEvicted(err error) bool {
	_, ok := err.(evictedError)
	return ok
}
