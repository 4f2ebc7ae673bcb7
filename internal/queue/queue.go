// Package queue implements the priority-tier Job Queue (spec §4.A): an
// ordered FIFO waiting list plus a running set, bounded by a fixed
// capacity. Grounded in the teacher's ThreadSafeQueue
// (control_plane/scheduler/queue.go), but FIFO instead of a heap — the
// priority-tier ordering and anti-starvation aging the teacher builds
// into Less() is instead the Dispatcher's job (spec §4.B promotion).
package queue

import (
	"errors"
	"sync"

	"github.com/classytest/dispatcher/internal/model"
)

// ErrEmpty is returned by Pop/ScheduleNext when waiting has nothing left.
var ErrEmpty = errors.New("queue: waiting list is empty")

// ErrFull is returned by ScheduleNext when running is already at capacity.
var ErrFull = errors.New("queue: running set is at capacity")

// Queue is one priority tier: an ordered waiting list and a running
// set, both keyed by (commitURL, delivId).
type Queue struct {
	mu      sync.Mutex
	name    string
	cap     int
	waiting []model.ContainerInput
	running map[string]model.ContainerInput
}

// New creates a named Queue with the given capacity.
func New(name string, capacity int) *Queue {
	return &Queue{
		name:    name,
		cap:     capacity,
		waiting: make([]model.ContainerInput, 0),
		running: make(map[string]model.ContainerInput),
	}
}

// GetName returns the queue's tier name.
func (q *Queue) GetName() string {
	return q.name
}

// present reports whether key is already waiting or running. Caller
// must hold q.mu.
func (q *Queue) present(key string) bool {
	if _, ok := q.running[key]; ok {
		return true
	}
	for _, w := range q.waiting {
		if w.Key() == key {
			return true
		}
	}
	return false
}

// Push appends input to the tail of waiting. No-op if the
// (commitURL, delivId) pair is already present in waiting or running
// (spec §4.A invariant: at most once total).
func (q *Queue) Push(input model.ContainerInput) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.present(input.Key()) {
		return
	}
	q.waiting = append(q.waiting, input)
}

// PushFirst inserts input at the head of waiting, used by cross-tier
// promotion to preserve arrival priority (spec §4.A, §4.B).
func (q *Queue) PushFirst(input model.ContainerInput) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.present(input.Key()) {
		return
	}
	q.waiting = append([]model.ContainerInput{input}, q.waiting...)
}

// Pop removes and returns the head of waiting.
func (q *Queue) Pop() (model.ContainerInput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) == 0 {
		return model.ContainerInput{}, ErrEmpty
	}
	head := q.waiting[0]
	q.waiting = q.waiting[1:]
	return head, nil
}

// ScheduleNext pops the head of waiting and moves it into running.
// Precondition: waiting non-empty and len(running) < capacity.
func (q *Queue) ScheduleNext() (model.ContainerInput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) == 0 {
		return model.ContainerInput{}, ErrEmpty
	}
	if len(q.running) >= q.cap {
		return model.ContainerInput{}, ErrFull
	}
	head := q.waiting[0]
	q.waiting = q.waiting[1:]
	q.running[head.Key()] = head
	return head, nil
}

// HasCapacity reports whether running has room for another job.
func (q *Queue) HasCapacity() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running) < q.cap
}

// Length returns the number of waiting entries.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// NumRunning returns the current running count.
func (q *Queue) NumRunning() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// IndexOf returns the waiting-list position of commitURL's entry
// (first deliverable match), or -1 if absent.
func (q *Queue) IndexOf(commitURL string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiting {
		if w.CommitURL == commitURL {
			return i
		}
	}
	return -1
}

// Remove deletes commitURL's entry from waiting (not running) and
// returns it, or (zero, false) if absent. Used only by
// Dispatcher.PromoteIfNeeded (spec §5 Cancellation).
func (q *Queue) Remove(commitURL string) (model.ContainerInput, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiting {
		if w.CommitURL == commitURL {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return w, true
		}
	}
	return model.ContainerInput{}, false
}

// IsCommitExecuting reports whether (commitURL, delivId) is in running.
func (q *Queue) IsCommitExecuting(commitURL, delivID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.running[commitURL+"|"+delivID]
	return ok
}

// ClearExecution removes (commitURL, delivId) from running. Idempotent.
func (q *Queue) ClearExecution(commitURL, delivID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.running, commitURL+"|"+delivID)
}
