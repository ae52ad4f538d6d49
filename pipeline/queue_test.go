package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Put(i))
	}
	assert.Equal(t, 5, q.Len())

	for want := 1; want <= 5; want++ {
		got, ok := q.Get()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueSentinelFollowsPendingValues(t *testing.T) {
	q := NewQueue[string]()
	require.NoError(t, q.Put("a"))
	require.NoError(t, q.Put("b"))
	q.Close()
	q.Close()

	assert.Equal(t, 2, q.Len())
	assert.ErrorIs(t, q.Put("c"), ErrQueueClosed)

	v, ok := q.Get()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = q.Get()
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = q.Get()
	assert.False(t, ok)
	_, ok = q.Get()
	assert.False(t, ok, "Get keeps reporting the stop after the sentinel")
	assert.Equal(t, 0, q.Len())
}

func TestQueueGetBlocksUntilPut(t *testing.T) {
	q := NewQueue[int]()
	got := make(chan int, 1)
	go func() {
		v, _ := q.Get()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Get returned before any value was put")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Put(42))
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Get did not return after Put")
	}
}

func TestQueueCloseWakesWaiters(t *testing.T) {
	q := NewQueue[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Get()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the waiting Get")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue[int]()
	const producers, each = 4, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				assert.NoError(t, q.Put(p*each+i))
			}
		}(p)
	}
	go func() {
		wg.Wait()
		q.Close()
	}()

	seen := make(map[int]bool)
	for {
		v, ok := q.Get()
		if !ok {
			break
		}
		assert.False(t, seen[v], "value %d delivered twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, producers*each)
}
