package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/ami/domain/repositories"
)

func TestFrameQueue_FIFO(t *testing.T) {
	q := NewFrameQueue()
	for _, text := range []string{"a", "b", "c"} {
		q.Push(repositories.Frame{Text: text})
	}
	require.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		frame, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, frame.Text)
	}

	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestFrameQueue_NextWaitsForPush(t *testing.T) {
	q := NewFrameQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(repositories.Frame{Text: "late"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", frame.Text)
}

func TestFrameQueue_NextHonoursContext(t *testing.T) {
	q := NewFrameQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFrameQueue_CloseWakesReaderAndDropsPushes(t *testing.T) {
	q := NewFrameQueue()
	done := make(chan error, 1)
	go func() {
		_, err := q.Next(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("reader was not woken by Close")
	}

	q.Push(repositories.Frame{Text: "after close"})
	assert.Zero(t, q.Len())
	assert.True(t, q.Closed())
}

func TestFrameQueue_ConcurrentPushKeepsPerProducerOrder(t *testing.T) {
	q := NewFrameQueue()
	const perProducer = 200

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(repositories.Frame{Text: string(rune('a' + p)), Audio: &repositories.AudioFragment{Data: string(rune(i))}})
			}
		}(p)
	}
	wg.Wait()

	last := map[string]int{}
	for {
		frame, ok := q.Pop()
		if !ok {
			break
		}
		seq := int([]rune(frame.Audio.Data)[0])
		if prev, seen := last[frame.Text]; seen {
			assert.Greater(t, seq, prev)
		}
		last[frame.Text] = seq
	}
	assert.Len(t, last, 4)
}
