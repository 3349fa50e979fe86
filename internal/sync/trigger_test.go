package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrigger_CoalescesKicks(t *testing.T) {
	var calls int32
	tr := NewTrigger(func(ctx context.Context, silent bool) {
		atomic.AddInt32(&calls, 1)
	}, 50*time.Millisecond)
	defer tr.Close()

	for i := 0; i < 10; i++ {
		tr.Kick(true)
	}

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 10*time.Millisecond)

	// No further resyncs without further kicks.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTrigger_NonSilentKickWins(t *testing.T) {
	var mu sync.Mutex
	var silents []bool
	tr := NewTrigger(func(ctx context.Context, silent bool) {
		mu.Lock()
		silents = append(silents, silent)
		mu.Unlock()
	}, 50*time.Millisecond)
	defer tr.Close()

	tr.Kick(true)
	tr.Kick(false)
	tr.Kick(true)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(silents) == 1 && silents[0] == false
	}, time.Second, 10*time.Millisecond)
}

func TestTrigger_NonSilentKickSurvivesFlood(t *testing.T) {
	var mu sync.Mutex
	var silents []bool
	tr := NewTrigger(func(ctx context.Context, silent bool) {
		mu.Lock()
		silents = append(silents, silent)
		mu.Unlock()
	}, 50*time.Millisecond)
	defer tr.Close()

	// An event storm followed by an explicit refresh: the non-silent flag
	// must survive however many kicks queued before it.
	for i := 0; i < 64; i++ {
		tr.Kick(true)
	}
	tr.Kick(false)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(silents) >= 1 && silents[0] == false
	}, time.Second, 10*time.Millisecond)
}

func TestTrigger_PollingKicksWhileActive(t *testing.T) {
	var calls int32
	tr := NewTrigger(func(ctx context.Context, silent bool) {
		atomic.AddInt32(&calls, 1)
		assert.True(t, silent, "poll resyncs are silent")
	}, 5*time.Millisecond)
	defer tr.Close()

	active := atomic.Bool{}
	active.Store(true)
	tr.StartPolling(20*time.Millisecond, active.Load)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 5*time.Millisecond)

	// Going inactive stops further resyncs.
	active.Store(false)
	time.Sleep(50 * time.Millisecond)
	settled := atomic.LoadInt32(&calls)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&calls))
}

func TestTrigger_CloseStopsEverything(t *testing.T) {
	var calls int32
	tr := NewTrigger(func(ctx context.Context, silent bool) {
		atomic.AddInt32(&calls, 1)
	}, 10*time.Millisecond)
	tr.StartPolling(10*time.Millisecond, nil)

	time.Sleep(40 * time.Millisecond)
	tr.Close()
	settled := atomic.LoadInt32(&calls)

	tr.Kick(false)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&calls))

	// Closing twice is safe.
	tr.Close()
}
