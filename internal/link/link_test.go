package link_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidish/internal/link"
)

func TestCommandsAreFIFOAndBounded(t *testing.T) {
	l := link.New[int, string](2)

	require.NoError(t, l.Submit(1))
	require.NoError(t, l.Submit(2))
	assert.ErrorIs(t, l.Submit(3), link.ErrQueueFull)

	got, ok := l.Poll()
	require.True(t, ok)
	assert.Equal(t, 1, got)
	got, ok = l.Poll()
	require.True(t, ok)
	assert.Equal(t, 2, got)
	_, ok = l.Poll()
	assert.False(t, ok)
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	l := link.New[int, string](2)
	l.Publish("a")
	l.Publish("b")
	l.Publish("c")

	assert.Equal(t, "b", <-l.Statuses())
	assert.Equal(t, "c", <-l.Statuses())
}

func TestWaitTimesOutAndWakesOnClose(t *testing.T) {
	l := link.New[int, string](1)

	start := time.Now()
	_, ok := l.Wait(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ok := l.Wait(time.Minute)
		assert.False(t, ok)
	}()
	l.Close()
	wg.Wait()

	assert.ErrorIs(t, l.Submit(1), link.ErrClosed)
}

func TestWaitReceivesLateCommand(t *testing.T) {
	l := link.New[int, string](1)
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = l.Submit(42)
	}()
	got, ok := l.Wait(time.Second)
	require.True(t, ok)
	assert.Equal(t, 42, got)
}
