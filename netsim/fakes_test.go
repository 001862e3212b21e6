package netsim

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeTimer is the Timer handle fakeTime hands back from AfterFunc.
type fakeTimer struct {
	clock *fakeTime
	id    uint64
}

func (t *fakeTimer) Stop() bool {
	return t.clock.cancel(t.id)
}

type scheduledCall struct {
	id   uint64
	at   time.Time
	f    func()
	done bool
}

// fakeTime is a deterministic, manually-advanced TimeSource. Nothing fires
// until Advance is called; Advance runs every callback due at or before the
// new time, in due-time order, and reschedules nothing (AfterFunc is
// one-shot, matching TimeSource's contract).
type fakeTime struct {
	mu    sync.Mutex
	now   time.Time
	next  uint64
	calls map[uint64]*scheduledCall
}

func newFakeTime() *fakeTime {
	return &fakeTime{
		now:   time.Unix(0, 0),
		calls: make(map[uint64]*scheduledCall),
	}
}

func (c *fakeTime) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeTime) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.calls[id] = &scheduledCall{id: id, at: c.now.Add(d), f: f}
	return &fakeTimer{clock: c, id: id}
}

func (c *fakeTime) cancel(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.calls[id]
	if !ok || sc.done {
		return false
	}
	delete(c.calls, id)
	return true
}

func (c *fakeTime) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	woke := make(chan struct{})
	timer := c.AfterFunc(d, func() { close(woke) })
	select {
	case <-woke:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

// Advance moves simulated time forward by d, firing every callback whose
// deadline is now due, earliest first.
func (c *fakeTime) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now

	var due []*scheduledCall
	for id, sc := range c.calls {
		if !sc.at.After(target) {
			due = append(due, sc)
			delete(c.calls, id)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, sc := range due {
		sc.f()
	}
}

// fakeRand is a deterministic RandSource: Float64 cycles through a fixed
// sequence (default always 1, i.e. never drop), and the duration helpers
// always return their low bound so tests get predictable delays.
type fakeRand struct {
	mu       sync.Mutex
	floats   []float64
	floatPos int
}

func newFakeRand() *fakeRand {
	return &fakeRand{floats: []float64{1}}
}

func (r *fakeRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.floats[r.floatPos%len(r.floats)]
	r.floatPos++
	return v
}

func (r *fakeRand) DurationRange(lo, hi time.Duration) time.Duration {
	return lo
}

func (r *fakeRand) Jitter() time.Duration {
	return 0
}

func (r *fakeRand) setFloats(vs ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.floats = vs
	r.floatPos = 0
}
