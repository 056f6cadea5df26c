package cancellation

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_InitiallyNotCancelled(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.CancellationRequested())
}

func TestHandle_RequestCancellation(t *testing.T) {
	tok := NewToken()
	h := tok.Handle()

	h.RequestCancellation()
	assert.True(t, tok.CancellationRequested())
	assert.True(t, h.CancellationRequested())
}

func TestHandle_RequestIdempotent(t *testing.T) {
	tok := NewToken()
	var fired atomic.Int32
	tok.OnCancel(func() { fired.Add(1) })

	h := tok.Handle()
	h.RequestCancellation()
	h.RequestCancellation()
	h.RequestCancellation()

	assert.True(t, tok.CancellationRequested())
	assert.Equal(t, int32(1), fired.Load(), "hooks run exactly once")
}

func TestToken_OnCancelAfterRequestRunsImmediately(t *testing.T) {
	tok := NewToken()
	tok.Handle().RequestCancellation()

	var fired bool
	tok.OnCancel(func() { fired = true })
	assert.True(t, fired)
}

func TestToken_MultipleHooks(t *testing.T) {
	tok := NewToken()
	var fired atomic.Int32
	tok.OnCancel(func() { fired.Add(1) })
	tok.OnCancel(func() { fired.Add(1) })
	tok.OnCancel(nil) // ignored

	tok.Handle().RequestCancellation()
	assert.Equal(t, int32(2), fired.Load())
}

func TestHandle_Detached(t *testing.T) {
	var h Handle
	h.RequestCancellation() // must not panic
	assert.True(t, h.CancellationRequested())
}

func TestToken_ConcurrentRequests(t *testing.T) {
	tok := NewToken()
	var fired atomic.Int32
	tok.OnCancel(func() { fired.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Handle().RequestCancellation()
		}()
	}
	wg.Wait()

	require.True(t, tok.CancellationRequested())
	assert.Equal(t, int32(1), fired.Load())
}
