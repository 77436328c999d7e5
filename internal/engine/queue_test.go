package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestQueue_EnqueueDequeue(t *testing.T) {
	q := newRequestQueue()

	seq, ok := q.Enqueue(request{Type: RequestFlush, ID: "req-1"})
	require.True(t, ok, "enqueue should succeed")
	assert.Equal(t, int64(1), seq)

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, RequestFlush, got.Type)
	assert.Equal(t, "req-1", got.ID)
	assert.Equal(t, int64(1), got.Seq)
}

func TestRequestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()

	for _, id := range []string{"A", "B", "C"} {
		_, ok := q.Enqueue(request{Type: RequestAccess, ID: id})
		require.True(t, ok)
	}

	for i, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.ID)
		assert.Equal(t, int64(i+1), got.Seq)
	}
}

func TestRequestQueue_TryDequeue_Empty(t *testing.T) {
	q := newRequestQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestRequestQueue_SignalCoalesces(t *testing.T) {
	q := newRequestQueue()

	q.Enqueue(request{ID: "a"})
	q.Enqueue(request{ID: "b"})

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("second signal should have been coalesced")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestRequestQueue_Close(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(request{ID: "queued"})

	q.Close()
	q.Close() // idempotent

	_, ok := q.Enqueue(request{ID: "late"})
	assert.False(t, ok, "enqueue after close should fail")

	_, open := <-q.Wait()
	assert.False(t, open, "wait channel should be closed")

	drained := q.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, "queued", drained[0].ID)
	assert.Equal(t, 0, q.Len())
}

func TestRequestQueue_ConcurrentEnqueue(t *testing.T) {
	q := newRequestQueue()

	const goroutines, perG = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				q.Enqueue(request{Type: RequestAccess})
			}
		}()
	}
	wg.Wait()

	require.Equal(t, goroutines*perG, q.Len())
	var last int64
	for {
		r, ok := q.TryDequeue()
		if !ok {
			break
		}
		assert.Greater(t, r.Seq, last, "sequence numbers must increase in queue order")
		last = r.Seq
	}
	assert.Equal(t, int64(goroutines*perG), last)
}

func TestRequestType_String(t *testing.T) {
	assert.Equal(t, "access", RequestAccess.String())
	assert.Equal(t, "flush", RequestFlush.String())
	assert.Equal(t, "load", RequestLoad.String())
	assert.Equal(t, "query", RequestQuery.String())
	assert.Equal(t, "unknown", RequestType(0).String())
}
