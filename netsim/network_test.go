package netsim

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNetwork() (*Network, *fakeTime, *fakeRand) {
	clock := newFakeTime()
	rnd := newFakeRand()
	return NewNetwork(clock, rnd, testLogger()), clock, rnd
}

func TestNetwork_Send_schedules_timer_and_increments_stats(t *testing.T) {
	net, clock, _ := newTestNetwork()
	net.CreateNode(1, netip.MustParseAddr("10.0.0.1"))
	net.CreateNode(2, netip.MustParseAddr("10.0.0.2"))

	src, srcBox, err := net.bind(1, netip.MustParseAddrPort("10.0.0.1:1"))
	require.NoError(t, err)
	dst, dstBox, err := net.bind(2, netip.MustParseAddrPort("10.0.0.2:1"))
	require.NoError(t, err)
	_ = srcBox

	net.send(1, src, dst, 7, []byte("hello"))
	assert.Equal(t, uint64(1), net.Stat().MsgCount)

	_, ok := dstBox.RecvSync(7)
	assert.False(t, ok, "delivery is asynchronous, timer hasn't fired yet")

	clock.Advance(net.cfg.snapshot().SendLatencyMin)

	msg, ok := dstBox.RecvSync(7)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), msg.Data)
	assert.Equal(t, src, msg.From)
}

func TestNetwork_Send_to_unknown_address_drops_silently(t *testing.T) {
	net, _, _ := newTestNetwork()
	net.CreateNode(1, netip.MustParseAddr("10.0.0.1"))
	src, _, err := net.bind(1, netip.MustParseAddrPort("10.0.0.1:1"))
	require.NoError(t, err)

	unknown := netip.MustParseAddrPort("10.0.0.9:1")
	assert.NotPanics(t, func() {
		net.send(1, src, unknown, 1, []byte("x"))
	})
	assert.Equal(t, uint64(0), net.Stat().MsgCount, "silent drop must not count as admitted")
}

func TestNetwork_Send_from_unbound_source_panics(t *testing.T) {
	net, _, _ := newTestNetwork()
	net.CreateNode(1, netip.MustParseAddr("10.0.0.1"))
	bogus := netip.MustParseAddrPort("10.0.0.1:999")

	assert.Panics(t, func() {
		net.send(1, bogus, bogus, 1, []byte("x"))
	})
}

func TestNetwork_Send_intra_node_bypasses_fault_model(t *testing.T) {
	net, clock, _ := newTestNetwork()
	net.CreateNode(1, netip.MustParseAddr("10.0.0.1"))
	net.ClogNode(1) // would block any inter-node traffic touching node 1

	src, _, err := net.bind(1, netip.MustParseAddrPort("10.0.0.1:1"))
	require.NoError(t, err)
	dst, dstBox, err := net.bind(1, netip.MustParseAddrPort("10.0.0.1:2"))
	require.NoError(t, err)

	net.send(1, src, dst, 1, []byte("local"))
	clock.Advance(time.Hour)

	msg, ok := dstBox.RecvSync(1)
	require.True(t, ok, "intra-node delivery must not be blocked by node-level clogging")
	assert.Equal(t, []byte("local"), msg.Data)
}

func TestNetwork_Send_blocked_by_clogged_link(t *testing.T) {
	net, clock, _ := newTestNetwork()
	net.CreateNode(1, netip.MustParseAddr("10.0.0.1"))
	net.CreateNode(2, netip.MustParseAddr("10.0.0.2"))
	net.ClogLink(1, 2)

	src, _, err := net.bind(1, netip.MustParseAddrPort("10.0.0.1:1"))
	require.NoError(t, err)
	dst, dstBox, err := net.bind(2, netip.MustParseAddrPort("10.0.0.2:1"))
	require.NoError(t, err)

	net.send(1, src, dst, 1, []byte("x"))
	clock.Advance(time.Hour)

	_, ok := dstBox.RecvSync(1)
	assert.False(t, ok)
}

func TestNetwork_Recv_blocks_until_timer_fires(t *testing.T) {
	net, clock, _ := newTestNetwork()
	net.CreateNode(1, netip.MustParseAddr("10.0.0.1"))
	net.CreateNode(2, netip.MustParseAddr("10.0.0.2"))

	src, _, err := net.bind(1, netip.MustParseAddrPort("10.0.0.1:1"))
	require.NoError(t, err)
	dst, dstBox, err := net.bind(2, netip.MustParseAddrPort("10.0.0.2:1"))
	require.NoError(t, err)

	result := make(chan Message, 1)
	go func() {
		msg, err := net.recv(context.Background(), dstBox, 1)
		require.NoError(t, err)
		result <- msg
	}()

	time.Sleep(10 * time.Millisecond)
	net.send(1, src, dst, 1, []byte("ping"))
	clock.Advance(net.cfg.snapshot().SendLatencyMin)

	select {
	case msg := <-result:
		assert.Equal(t, []byte("ping"), msg.Data)
	case <-time.After(time.Second):
		t.Fatal("recv never returned")
	}
}

func TestNetwork_UpdateConfig_changes_latency_bounds(t *testing.T) {
	net, _, _ := newTestNetwork()
	net.UpdateConfig(func(c *Config) {
		c.SendLatencyMin = 50 * time.Millisecond
		c.SendLatencyMax = 50 * time.Millisecond
	})
	assert.Equal(t, 50*time.Millisecond, net.cfg.snapshot().SendLatencyMin)
}

// TestLoopbackIsolation_KnownGap documents a known gap: loopback endpoints
// are scoped per-node for addressing purposes, but the network does not
// actually refuse a send whose destination is a loopback address bound on a
// *different* node than the sender.
// FIXME: a correct model would drop such a send; this one delivers it.
func TestLoopbackIsolation_KnownGap(t *testing.T) {
	t.Skip("loopback endpoints are not yet isolated from other nodes' sends")

	net, clock, _ := newTestNetwork()
	net.CreateNode(1, netip.MustParseAddr("10.0.0.1"))
	net.CreateNode(2, netip.MustParseAddr("10.0.0.2"))

	ep1, err := BindEndpointSync(net, 1, netip.MustParseAddrPort("127.0.0.1:1"))
	require.NoError(t, err)
	ep2, err := BindEndpointSync(net, 2, netip.MustParseAddrPort("127.0.0.1:1"))
	require.NoError(t, err)

	ep2.SendToRawSync(ep1.LocalAddr(), 1, []byte("cross-node loopback"))
	clock.Advance(net.cfg.snapshot().SendLatencyMin)

	_, ok := ep1.box.RecvSync(1)
	assert.False(t, ok, "a correct model would refuse cross-node loopback delivery")
}

func TestNetwork_ResetNode_clears_binds_and_clog_state(t *testing.T) {
	net, _, _ := newTestNetwork()
	net.CreateNode(1, netip.MustParseAddr("10.0.0.1"))
	net.CreateNode(2, netip.MustParseAddr("10.0.0.2"))
	net.ClogLink(1, 2)

	addr, _, err := net.bind(1, netip.MustParseAddrPort("10.0.0.1:1"))
	require.NoError(t, err)

	net.ResetNode(1)

	_, _, ok := net.table.lookup(addr)
	assert.False(t, ok)
	assert.True(t, net.faults.admit(1, 2, 1.0, 0), "clog state must clear on reset")
}
