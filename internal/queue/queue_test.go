package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[string]()
	assert.True(t, q.Empty())

	q.Push("a")
	q.Push("b", "c")
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.Pop()
	assert.False(t, ok)
	assert.True(t, q.Empty())
}

func TestQueue_Drain(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)

	assert.Equal(t, []int{1, 2, 3}, q.Drain())
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())

	q.Push(4)
	assert.Equal(t, []int{4}, q.Drain())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for p := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				q.Push(p*100 + i)
			}
		}()
	}
	wg.Wait()

	items := q.Drain()
	assert.Len(t, items, 800)

	// each producer's items stay in order
	last := map[int]int{}
	for _, v := range items {
		p := v / 100
		if prev, seen := last[p]; seen {
			assert.Less(t, prev, v)
		}
		last[p] = v
	}
}
