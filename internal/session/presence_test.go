package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresence_Concurrent(t *testing.T) {
	var changes atomic.Int64
	p := NewPresence(func(int64) { changes.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Increment()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), p.Current())

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Decrement()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(60), p.Current())
	assert.Equal(t, int64(140), changes.Load())
}

func TestPresence_NeverNegative(t *testing.T) {
	p := NewPresence(nil)
	assert.Equal(t, int64(0), p.Decrement())
	assert.Equal(t, int64(1), p.Increment())
	assert.Equal(t, int64(0), p.Decrement())
	assert.Equal(t, int64(0), p.Decrement())
}
