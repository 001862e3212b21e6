package netsim

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/rs/zerolog"
)

// Network is the shared simulated network core: an endpoint table, a fault
// model, hot-reloadable config and stats, and the external time/rand
// collaborators that drive suspension points and scheduled delivery.
type Network struct {
	table  *endpointTable
	faults *faultModel
	cfg    *configState

	time TimeSource
	rand RandSource

	logger zerolog.Logger
}

// NewNetwork constructs an empty Network. time and rand are the externally
// supplied collaborators this package does not implement.
func NewNetwork(time TimeSource, rand RandSource, logger zerolog.Logger) *Network {
	return &Network{
		table:  newEndpointTable(logger),
		faults: newFaultModel(),
		cfg:    newConfigState(),
		time:   time,
		rand:   rand,
		logger: logger,
	}
}

// UpdateConfig atomically mutates the network's fault/latency configuration.
func (n *Network) UpdateConfig(f func(*Config)) {
	n.cfg.update(f)
}

// Stat returns a snapshot of the network's send counters.
func (n *Network) Stat() Stats {
	return n.cfg.stat()
}

// bind installs a fresh mailbox for node at requested, applying endpoint
// table normalization and port allocation.
func (n *Network) bind(node NodeID, requested Addr) (Addr, *Mailbox, error) {
	return n.table.bind(node, requested)
}

// send runs the admission-then-timer pipeline: the source must already be
// bound and owned by srcNode (a programmer error if not), a missing
// destination mailbox drops silently, and admitted sends schedule an
// asynchronous timer that calls deliver.
func (n *Network) send(srcNode NodeID, src, dst Addr, tag uint64, data Payload) {
	owner, ok := n.table.nodeOf(src)
	if !ok || owner != srcNode {
		panic(fmt.Sprintf("netsim: send from unbound/foreign source %s on node %d", src, srcNode))
	}

	box, dstNode, ok := n.table.lookup(dst)
	if !ok {
		n.logger.Debug().Stringer("dst", dst).Msg("send to unknown address, dropping")
		return
	}

	if dstNode != srcNode {
		cfg := n.cfg.snapshot()
		draw := n.rand.Float64()
		if !n.faults.admit(srcNode, dstNode, draw, cfg.PacketLossRate) {
			n.logger.Debug().Uint64("tag", tag).Msg("send dropped by fault model")
			return
		}
	}

	cfg := n.cfg.snapshot()
	delay := n.rand.DurationRange(cfg.SendLatencyMin, cfg.SendLatencyMax)
	msg := Message{Tag: tag, From: src, Data: data}
	n.time.AfterFunc(delay, func() {
		box.deliver(msg)
	})
	n.cfg.incMsgCount()
}

// recv waits for a message addressed to box with the given tag.
func (n *Network) recv(ctx context.Context, box *Mailbox, tag uint64) (Message, error) {
	return box.Recv(ctx, tag)
}

// recvSync returns a pending message without blocking.
func (n *Network) recvSync(box *Mailbox, tag uint64) (Message, bool) {
	return box.RecvSync(tag)
}

// recvReady reports whether a recv on box for tag would complete
// immediately, registering w to be woken otherwise.
func (n *Network) recvReady(box *Mailbox, w *Waker, tag uint64) bool {
	return box.RecvReady(w, tag)
}

// jitter sleeps a small random delay at a facade suspension point (bind,
// connect, the post-enqueue pause in SendTo). It returns early if ctx is
// done.
func (n *Network) jitter(ctx context.Context) error {
	d := n.rand.Jitter()
	if d <= 0 {
		return nil
	}
	return n.time.Sleep(ctx, d)
}

// close removes addr's mailbox from the table.
func (n *Network) close(addr Addr) {
	n.table.close(addr)
}

// --- node lifecycle, delegated from node.go's public methods ---

func (n *Network) createNode(id NodeID, ip netip.Addr) {
	n.table.addNode(id, ip)
}

func (n *Network) setIP(id NodeID, ip netip.Addr) {
	n.table.setIP(id, ip)
}

func (n *Network) resetNode(id NodeID) {
	n.table.resetNode(id)
	n.faults.reset(id)
}

func (n *Network) ip(id NodeID) (netip.Addr, bool) {
	return n.table.ip(id)
}

func (n *Network) allocatePort(id NodeID) uint16 {
	return n.table.allocatePort(id)
}
