package graph

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_RebuildsOnce(t *testing.T) {
	var calls int32
	src := func() ([]Link, error) {
		atomic.AddInt32(&calls, 1)
		return starLinks(), nil
	}
	c := NewCache(src, time.Hour, 0.85, 1e-6, 100)

	_, err := c.Get()
	require.NoError(t, err)
	_, err = c.Get()
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_RebuildsAfterTTLExpires(t *testing.T) {
	var calls int32
	src := func() ([]Link, error) {
		atomic.AddInt32(&calls, 1)
		return starLinks(), nil
	}
	c := NewCache(src, time.Millisecond, 0.85, 1e-6, 100)

	_, err := c.Get()
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = c.Get()
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_InvalidateForcesRebuild(t *testing.T) {
	var calls int32
	src := func() ([]Link, error) {
		atomic.AddInt32(&calls, 1)
		return starLinks(), nil
	}
	c := NewCache(src, time.Hour, 0.85, 1e-6, 100)

	_, err := c.Get()
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Get()
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_ConcurrentGetsCoalesceIntoOneRebuild(t *testing.T) {
	var calls int32
	src := func() ([]Link, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return starLinks(), nil
	}
	c := NewCache(src, time.Hour, 0.85, 1e-6, 100)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_PropagatesSourceError(t *testing.T) {
	src := func() ([]Link, error) { return nil, fmt.Errorf("boom") }
	c := NewCache(src, time.Hour, 0.85, 1e-6, 100)
	_, err := c.Get()
	assert.Error(t, err)
}
