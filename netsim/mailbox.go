package netsim

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Waker is woken when a message matching a previously unready RecvReady tag
// becomes available. Recv/RecvFrom don't need it (they block natively on a
// channel); a caller integrating with an external reactor does.
//
// Wake is safe to call more than once or concurrently; only the first call
// has an effect.
type Waker struct {
	once sync.Once
	ch   chan struct{}
}

// NewWaker returns a Waker ready to be registered with RecvReady.
func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{})}
}

// Wake notifies anyone selecting on Done.
func (w *Waker) Wake() { w.once.Do(func() { close(w.ch) }) }

// Done returns a channel that closes when Wake is called.
func (w *Waker) Done() <-chan struct{} { return w.ch }

type waiter struct {
	tag uint64
	ch  chan Message
}

type tagWaker struct {
	tag   uint64
	waker *Waker
}

// Mailbox is the per-endpoint rendezvous point: an ordered queue of
// delivered-but-unclaimed messages, and an ordered queue of receivers
// parked on a tag. At any instant, either pending is empty for a given tag
// or no waiter exists for that tag — deliver and Recv each check the other
// side first to enforce this.
type Mailbox struct {
	mu      sync.Mutex
	pending []Message
	waiters []*waiter
	wakers  []tagWaker
	closed  bool

	logger zerolog.Logger
}

func newMailbox(logger zerolog.Logger) *Mailbox {
	return &Mailbox{logger: logger}
}

// deliver hands msg to the first waiter registered for msg.Tag, or appends
// it to pending if none is parked. Delivery order into pending is the order
// deliver is called, which is the order scheduled timers fire — not the
// order sends were issued.
func (mb *Mailbox) deliver(msg Message) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		mb.logger.Debug().Uint64("tag", msg.Tag).Msg("deliver on closed mailbox, dropping")
		return
	}

	for i, w := range mb.waiters {
		if w.tag != msg.Tag {
			continue
		}
		mb.waiters = append(mb.waiters[:i:i], mb.waiters[i+1:]...)
		w.ch <- msg
		mb.wakeTagLocked(msg.Tag)
		return
	}

	mb.pending = append(mb.pending, msg)
	mb.wakeTagLocked(msg.Tag)
}

// Recv waits for a message with the given tag, either returning one already
// pending or parking a new waiter until deliver satisfies it, ctx is done,
// or the mailbox is closed.
func (mb *Mailbox) Recv(ctx context.Context, tag uint64) (Message, error) {
	msg, w, err := mb.claim(tag)
	if err != nil {
		return Message{}, err
	}
	if w == nil {
		return msg, nil
	}

	select {
	case msg, ok := <-w.ch:
		if !ok {
			return Message{}, ErrBrokenPipe
		}
		return msg, nil
	case <-ctx.Done():
		mb.unregister(w)
		return Message{}, ctx.Err()
	}
}

// RecvSync returns the first pending message with the given tag without
// registering a waiter, or (Message{}, false) if none is pending.
func (mb *Mailbox) RecvSync(tag uint64) (Message, bool) {
	return mb.takePending(tag)
}

// RecvReady reports whether Recv(tag) would complete without suspending. If
// not, it registers w so that a future deliver for this tag wakes it; extra
// wakeups are allowed.
func (mb *Mailbox) RecvReady(w *Waker, tag uint64) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	for _, m := range mb.pending {
		if m.Tag == tag {
			return true
		}
	}
	if !mb.closed {
		mb.wakers = append(mb.wakers, tagWaker{tag: tag, waker: w})
	}
	return false
}

func (mb *Mailbox) takePending(tag uint64) (Message, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	for i, m := range mb.pending {
		if m.Tag == tag {
			mb.pending = append(mb.pending[:i:i], mb.pending[i+1:]...)
			return m, true
		}
	}
	return Message{}, false
}

// claim atomically takes the first pending message for tag, or registers a
// fresh waiter if none is pending. Doing both under one critical section
// keeps a message and a compatible waiter from ever being parked together.
func (mb *Mailbox) claim(tag uint64) (Message, *waiter, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return Message{}, nil, ErrBrokenPipe
	}
	for i, m := range mb.pending {
		if m.Tag == tag {
			mb.pending = append(mb.pending[:i:i], mb.pending[i+1:]...)
			return m, nil, nil
		}
	}
	w := &waiter{tag: tag, ch: make(chan Message, 1)}
	mb.waiters = append(mb.waiters, w)
	return Message{}, w, nil
}

func (mb *Mailbox) unregister(target *waiter) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	for i, w := range mb.waiters {
		if w == target {
			mb.waiters = append(mb.waiters[:i:i], mb.waiters[i+1:]...)
			return
		}
	}
	// Already matched by a concurrent deliver; the message sitting in
	// target.ch is abandoned.
}

// close discards pending messages and wakes every parked waiter with
// BrokenPipe. Further deliver/register calls on a closed mailbox are no-ops.
func (mb *Mailbox) close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return
	}
	mb.closed = true
	mb.pending = nil
	for _, w := range mb.waiters {
		close(w.ch)
	}
	mb.waiters = nil
	for _, tw := range mb.wakers {
		tw.waker.Wake()
	}
	mb.wakers = nil
}

// wakeTagLocked wakes and removes every waker registered for tag. Callers
// must hold mb.mu.
func (mb *Mailbox) wakeTagLocked(tag uint64) {
	if len(mb.wakers) == 0 {
		return
	}
	remaining := mb.wakers[:0]
	for _, tw := range mb.wakers {
		if tw.tag == tag {
			tw.waker.Wake()
			continue
		}
		remaining = append(remaining, tw)
	}
	mb.wakers = remaining
}
