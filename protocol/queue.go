//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package protocol

import (
	"fmt"
)

// SequenceError reports a caller finalizing more operations than
// have completed. It is raised with panic since it is a programming
// error in the caller.
type SequenceError struct {
	Op        string
	Completed int
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("protocol: %s: finalize without completed operation (completed=%d)",
		e.Op, e.Completed)
}

// Is matches ErrSequence.
func (e *SequenceError) Is(target error) bool {
	return target == ErrSequence
}

// Queue implements an explicit FIFO of operation values. Popping
// from an empty queue panics with *SequenceError.
type Queue[T any] struct {
	op    string
	items []T
	head  int
	total int
}

// NewQueue creates a new queue for the operation op.
func NewQueue[T any](op string) *Queue[T] {
	return &Queue[T]{
		op: op,
	}
}

// Push appends the value to the end of the queue.
func (q *Queue[T]) Push(v T) {
	q.items = append(q.items, v)
	q.total++
}

// Pop removes and returns the value at the head of the queue.
func (q *Queue[T]) Pop() T {
	if q.head >= len(q.items) {
		panic(&SequenceError{
			Op:        q.op,
			Completed: q.total,
		})
	}
	v := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return v
}

// Len returns the number of values in the queue.
func (q *Queue[T]) Len() int {
	return len(q.items) - q.head
}
