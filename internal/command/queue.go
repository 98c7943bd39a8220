package command

import "log"

// Submitter accepts commands for later execution.
type Submitter interface {
	Submit(c Command) bool
}

// Queue is a bounded multi-producer, single-consumer command queue.
type Queue struct {
	ch chan Command
}

// NewQueue creates a Queue holding at most size pending commands.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Command, size)}
}

// Submit enqueues c without blocking. It returns false and drops the command
// when the queue is full.
func (q *Queue) Submit(c Command) bool {
	select {
	case q.ch <- c:
		return true
	default:
		log.Printf("command: queue full, dropping %s", c)
		return false
	}
}

// C exposes the receive side for use in a select loop.
func (q *Queue) C() <-chan Command {
	return q.ch
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	return len(q.ch)
}
