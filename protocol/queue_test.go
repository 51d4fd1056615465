//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]("mul")
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	assert.Equal(t, 5, q.Len())
	assert.Equal(t, 0, q.Pop())
	assert.Equal(t, 1, q.Pop())
	q.Push(5)
	for want := 2; want <= 5; want++ {
		assert.Equal(t, want, q.Pop())
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueUnderflow(t *testing.T) {
	q := NewQueue[int]("dotprod")
	q.Push(1)
	q.Pop()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(*SequenceError)
		require.True(t, ok)
		assert.Equal(t, "dotprod", err.Op)
		assert.Equal(t, 1, err.Completed)
		assert.True(t, errors.Is(err, ErrSequence))
	}()
	q.Pop()
}

func TestColumns(t *testing.T) {
	n, err := Columns([][]int{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = Columns([][]int{{1, 2}, {3}})
	assert.Error(t, err)
}
