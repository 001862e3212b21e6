package netsim

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/rs/zerolog"
)

// tableEntry is one installed mailbox, plus the node that owns it.
type tableEntry struct {
	node NodeID
	box  *Mailbox
}

// endpointTable is the bind/close/lookup authority: which addresses exist,
// which node owns each, and the per-node ephemeral port counter.
type endpointTable struct {
	mu sync.Mutex

	byAddr   map[Addr]*tableEntry
	byNode   map[NodeID]map[Addr]struct{}
	nodeIP   map[NodeID]netip.Addr
	nextPort map[NodeID]uint32

	logger zerolog.Logger
}

func newEndpointTable(logger zerolog.Logger) *endpointTable {
	return &endpointTable{
		byAddr:   make(map[Addr]*tableEntry),
		byNode:   make(map[NodeID]map[Addr]struct{}),
		nodeIP:   make(map[NodeID]netip.Addr),
		nextPort: make(map[NodeID]uint32),
		logger:   logger,
	}
}

// addNode registers node with its configured IP and a fresh ephemeral port
// counter starting at 1 (port 0 is reserved as the "allocate one" sentinel).
func (t *endpointTable) addNode(node NodeID, ip netip.Addr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nodeIP[node] = ip
	if _, ok := t.nextPort[node]; !ok {
		t.nextPort[node] = 1
	}
	if _, ok := t.byNode[node]; !ok {
		t.byNode[node] = make(map[Addr]struct{})
	}
}

// setIP updates a node's configured address without disturbing existing
// binds or the port counter.
func (t *endpointTable) setIP(node NodeID, ip netip.Addr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodeIP[node] = ip
}

// bind resolves requested against node's configured IP, allocates an
// ephemeral port if requested.Port() == 0, installs a fresh mailbox, and
// returns the resolved address.
func (t *endpointTable) bind(node NodeID, requested Addr) (Addr, *Mailbox, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nodeIP, ok := t.nodeIP[node]
	if !ok {
		panic(fmt.Sprintf("netsim: bind on unknown node %d", node))
	}

	ip := requested.Addr()
	if !ip.IsUnspecified() {
		if ip != nodeIP && !ip.IsLoopback() {
			return Addr{}, nil, ErrAddrNotAvailable
		}
	} else {
		ip = nodeIP
	}

	port := requested.Port()
	if port == 0 {
		port = t.allocatePortLocked(node)
	}

	resolved := netip.AddrPortFrom(ip, port)
	if _, exists := t.byAddr[resolved]; exists {
		return Addr{}, nil, ErrAddrInUse
	}

	box := newMailbox(t.logger)
	t.byAddr[resolved] = &tableEntry{node: node, box: box}
	if _, ok := t.byNode[node]; !ok {
		t.byNode[node] = make(map[Addr]struct{})
	}
	t.byNode[node][resolved] = struct{}{}

	return resolved, box, nil
}

// allocatePort hands out the next ephemeral port for node without binding
// anything, for Endpoint.AllocateLocalPort.
func (t *endpointTable) allocatePort(node NodeID) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocatePortLocked(node)
}

func (t *endpointTable) allocatePortLocked(node NodeID) uint16 {
	n := t.nextPort[node]
	t.nextPort[node] = n + 1
	return uint16(n)
}

// lookup returns the mailbox and owning node installed at addr, if any.
func (t *endpointTable) lookup(addr Addr) (*Mailbox, NodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byAddr[addr]
	if !ok {
		return nil, 0, false
	}
	return e.box, e.node, true
}

// nodeOf reports which node owns addr, used by Send's admission assertion.
func (t *endpointTable) nodeOf(addr Addr) (NodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byAddr[addr]
	if !ok {
		return 0, false
	}
	return e.node, true
}

// ip returns node's currently configured address.
func (t *endpointTable) ip(node NodeID) (netip.Addr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ip, ok := t.nodeIP[node]
	return ip, ok
}

// close removes addr's mailbox from the table and closes it, waking any
// parked receivers with BrokenPipe.
func (t *endpointTable) close(addr Addr) {
	t.mu.Lock()
	e, ok := t.byAddr[addr]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.byAddr, addr)
	if addrs, ok := t.byNode[e.node]; ok {
		delete(addrs, addr)
	}
	t.mu.Unlock()

	e.box.close()
}

// resetNode closes every address owned by node and drops its bookkeeping.
// The node's IP and port counter are left intact; only addresses are
// cleared here. Clog state is cleared separately by faultModel.reset, which
// Network.resetNode calls alongside this.
func (t *endpointTable) resetNode(node NodeID) {
	t.mu.Lock()
	addrs := t.byNode[node]
	var boxes []*Mailbox
	for addr, e := range t.snapshotLocked(addrs) {
		boxes = append(boxes, e)
		delete(t.byAddr, addr)
	}
	t.byNode[node] = make(map[Addr]struct{})
	t.mu.Unlock()

	for _, box := range boxes {
		box.close()
	}
}

func (t *endpointTable) snapshotLocked(addrs map[Addr]struct{}) map[Addr]*Mailbox {
	out := make(map[Addr]*Mailbox, len(addrs))
	for addr := range addrs {
		if e, ok := t.byAddr[addr]; ok {
			out[addr] = e.box
		}
	}
	return out
}
