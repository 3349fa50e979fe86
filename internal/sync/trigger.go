package sync

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultDebounce is the window within which multiple resync kicks coalesce
// into a single fetch.
const DefaultDebounce = 250 * time.Millisecond

// Trigger funnels every resync source (socket event, poll tick, explicit
// refresh) into one debounced resync call, so overlapping triggers never
// produce redundant fetches.
type Trigger struct {
	resync   func(ctx context.Context, silent bool)
	debounce time.Duration

	mu      sync.Mutex
	pending bool
	silent  bool

	signal chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewTrigger starts the trigger loop. resync runs on the trigger's own
// goroutine, at most once per debounce window.
func NewTrigger(resync func(ctx context.Context, silent bool), debounce time.Duration) *Trigger {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Trigger{
		resync:   resync,
		debounce: debounce,
		signal:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

// Kick requests a resync. Kicks arriving inside the same debounce window
// coalesce into one resync; if any kick in the window is non-silent the
// resync runs non-silent (loading flag plus profile refetch). The flag is
// merged into shared state, so a non-silent kick is never lost no matter
// how many kicks pile up.
func (t *Trigger) Kick(silent bool) {
	t.mu.Lock()
	if t.pending {
		t.silent = t.silent && silent
	} else {
		t.pending = true
		t.silent = silent
	}
	t.mu.Unlock()

	select {
	case t.signal <- struct{}{}:
	default:
	}
}

// take consumes the coalesced kick state.
func (t *Trigger) take() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	silent := t.silent
	t.pending = false
	t.silent = true
	return silent
}

func (t *Trigger) loop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.signal:
			timer := time.NewTimer(t.debounce)
		drain:
			for {
				select {
				case <-t.ctx.Done():
					timer.Stop()
					return
				case <-t.signal:
					// Further kicks already merged their flag into state.
				case <-timer.C:
					break drain
				}
			}
			t.resync(t.ctx, t.take())
		}
	}
}

// StartPolling kicks a silent resync every interval while active() reports
// true. This is the fallback covering socket disconnection gaps; it is
// deliberately lower-frequency than push-driven updates.
func (t *Trigger) StartPolling(interval time.Duration, active func() bool) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.ctx.Done():
				return
			case <-ticker.C:
				if active == nil || active() {
					t.Kick(true)
				}
			}
		}
	}()
	log.WithField("interval", interval).Debug("Polling fallback started")
}

// Close stops the loop and all polling goroutines. Pending kicks are
// dropped.
func (t *Trigger) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		t.wg.Wait()
	})
}
