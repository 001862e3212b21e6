package netsim

import (
	"context"
	"net/netip"
)

// Endpoint is a user-visible handle bound to one address on one node. It
// wraps the shared Network with the local/peer addressing state a protocol
// implementation expects from a socket-like object.
type Endpoint struct {
	net  *Network
	node NodeID

	local Addr
	box   *Mailbox

	peer    Addr
	hasPeer bool
}

// BindEndpoint installs a new endpoint for node at requested, sleeping a
// small jitter first so tests observe non-zero scheduling cost before the
// bind takes effect.
func BindEndpoint(ctx context.Context, net *Network, node NodeID, requested Addr) (*Endpoint, error) {
	if err := net.jitter(ctx); err != nil {
		return nil, err
	}
	return BindEndpointSync(net, node, requested)
}

// BindEndpointSync installs a new endpoint without yielding.
func BindEndpointSync(net *Network, node NodeID, requested Addr) (*Endpoint, error) {
	addr, box, err := net.bind(node, requested)
	if err != nil {
		return nil, err
	}
	return &Endpoint{net: net, node: node, local: addr, box: box}, nil
}

// Connect binds a fresh ephemeral local address for node — loopback if peer
// is loopback, else the node's configured IP — and pins peer as the target
// used by the connected Send/Recv/RecvRaw variants. It sleeps the same
// jitter as BindEndpoint before the underlying bind takes effect.
func Connect(ctx context.Context, net *Network, node NodeID, peer Addr) (*Endpoint, error) {
	if err := net.jitter(ctx); err != nil {
		return nil, err
	}

	var local Addr
	if peer.Addr().IsLoopback() {
		local = netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 0)
	} else {
		local = netip.AddrPortFrom(netip.IPv4Unspecified(), 0)
	}

	ep, err := BindEndpointSync(net, node, local)
	if err != nil {
		return nil, err
	}
	ep.peer = peer
	ep.hasPeer = true
	return ep, nil
}

// LocalAddr returns the endpoint's bound address.
func (e *Endpoint) LocalAddr() Addr { return e.local }

// PeerAddr returns the address passed to Connect, or ErrNotConnected if
// Connect was never called.
func (e *Endpoint) PeerAddr() (Addr, error) {
	if !e.hasPeer {
		return Addr{}, ErrNotConnected
	}
	return e.peer, nil
}

// AllocateLocalPort hands out the next ephemeral port for this endpoint's
// node without binding anything, for callers that manage their own address
// bookkeeping. Nothing in this module calls it.
func (e *Endpoint) AllocateLocalPort() uint16 {
	return e.net.allocatePort(e.node)
}

// UDPTag returns the endpoint's bound port as a uint64 tag, the convention
// UDP-shim traffic uses in place of an application-chosen tag. It fails
// NotConnected if the endpoint is bound to port 0 (which cannot happen for
// a resolved bind, but can for a zero-value Endpoint).
func (e *Endpoint) UDPTag() (uint64, error) {
	if e.local.Port() == 0 {
		return 0, ErrNotConnected
	}
	return uint64(e.local.Port()), nil
}

// SendToRaw enqueues data for dst under tag, then sleeps a small jitter to
// model send cost.
func (e *Endpoint) SendToRaw(ctx context.Context, dst Addr, tag uint64, data Payload) error {
	e.net.send(e.node, e.local, dst, tag, data)
	return e.net.jitter(ctx)
}

// SendToRawSync enqueues data for dst under tag without yielding.
func (e *Endpoint) SendToRawSync(dst Addr, tag uint64, data Payload) {
	e.net.send(e.node, e.local, dst, tag, data)
}

// SendTo wraps buf in an owned payload and sends it to dst under tag.
func (e *Endpoint) SendTo(ctx context.Context, dst Addr, tag uint64, buf []byte) error {
	owned := make([]byte, len(buf))
	copy(owned, buf)
	return e.SendToRaw(ctx, dst, tag, owned)
}

// RecvFromRaw awaits a message for tag and returns its payload and origin.
// A small jitter is slept after the message is claimed; cancellation during
// that sleep loses the already-claimed message, the same way abandoning the
// call mid-await would.
func (e *Endpoint) RecvFromRaw(ctx context.Context, tag uint64) (Payload, Addr, error) {
	msg, err := e.net.recv(ctx, e.box, tag)
	if err != nil {
		return nil, Addr{}, err
	}
	if err := e.net.jitter(ctx); err != nil {
		return nil, Addr{}, err
	}
	return msg.Data, msg.From, nil
}

// RecvFromRawSync returns a pending message for tag without blocking, or
// ErrWouldBlock if none is available.
func (e *Endpoint) RecvFromRawSync(tag uint64) (Payload, Addr, error) {
	msg, ok := e.net.recvSync(e.box, tag)
	if !ok {
		return nil, Addr{}, ErrWouldBlock
	}
	return msg.Data, msg.From, nil
}

// RecvFrom awaits a message for tag, copies up to len(buf) bytes into buf
// (silently truncating longer payloads), and returns the copied length and
// origin.
func (e *Endpoint) RecvFrom(ctx context.Context, tag uint64, buf []byte) (int, Addr, error) {
	data, from, err := e.RecvFromRaw(ctx, tag)
	if err != nil {
		return 0, Addr{}, err
	}
	n := copyPayload(buf, data)
	return n, from, nil
}

// RecvFromSync is the non-blocking counterpart of RecvFrom.
func (e *Endpoint) RecvFromSync(tag uint64, buf []byte) (int, Addr, error) {
	data, from, err := e.RecvFromRawSync(tag)
	if err != nil {
		return 0, Addr{}, err
	}
	n := copyPayload(buf, data)
	return n, from, nil
}

// RecvRaw is the connected form of RecvFromRaw: it asserts the message's
// origin equals the connected peer. A mismatch panics, since it indicates a
// delivery-table bug rather than a caller error (the network never hands an
// endpoint someone else's traffic once a peer is pinned).
func (e *Endpoint) RecvRaw(ctx context.Context, tag uint64) (Payload, error) {
	peer, err := e.PeerAddr()
	if err != nil {
		return nil, err
	}
	data, from, err := e.RecvFromRaw(ctx, tag)
	if err != nil {
		return nil, err
	}
	assertPeer(from, peer)
	return data, nil
}

// Recv is the connected, typed form of RecvFromRaw.
func (e *Endpoint) Recv(ctx context.Context, tag uint64, buf []byte) (int, error) {
	peer, err := e.PeerAddr()
	if err != nil {
		return 0, err
	}
	n, from, err := e.RecvFrom(ctx, tag, buf)
	if err != nil {
		return 0, err
	}
	assertPeer(from, peer)
	return n, nil
}

// Send is the connected, typed form of SendTo.
func (e *Endpoint) Send(ctx context.Context, tag uint64, buf []byte) error {
	peer, err := e.PeerAddr()
	if err != nil {
		return err
	}
	return e.SendTo(ctx, peer, tag, buf)
}

// RecvReady reports whether a recv for tag would complete immediately,
// registering w to be woken by a future matching deliver otherwise.
func (e *Endpoint) RecvReady(w *Waker, tag uint64) bool {
	return e.net.recvReady(e.box, w, tag)
}

// Close removes this endpoint's mailbox from the table. Outstanding
// receivers wake with ErrBrokenPipe. Callers must call Close explicitly,
// typically via defer.
func (e *Endpoint) Close() error {
	e.net.close(e.local)
	return nil
}

func copyPayload(buf []byte, data Payload) int {
	b, ok := data.([]byte)
	if !ok {
		panic("netsim: RecvFrom/Recv called on a non-[]byte payload; use the Raw variants")
	}
	n := copy(buf, b)
	return n
}

func assertPeer(from, peer Addr) {
	if from != peer {
		panic("netsim: received message from non-peer address on a connected endpoint")
	}
}
