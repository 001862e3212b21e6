package netsim

import "net/netip"

// CreateNode registers a node with its initial simulated IP address.
func (n *Network) CreateNode(id NodeID, ip netip.Addr) {
	n.createNode(id, ip)
}

// SetIP changes a node's simulated address. Existing binds are unaffected;
// new unspecified-IP binds on the node resolve against the new address.
func (n *Network) SetIP(id NodeID, ip netip.Addr) {
	n.setIP(id, ip)
}

// ResetNode closes every address owned by id and clears its clog state on
// both sides of every link, as if the node crashed and rejoined clean.
func (n *Network) ResetNode(id NodeID) {
	n.resetNode(id)
}

// IP returns node id's currently configured address.
func (n *Network) IP(id NodeID) (netip.Addr, bool) {
	return n.ip(id)
}

// ClogNode makes id drop all inter-node traffic to and from it.
func (n *Network) ClogNode(id NodeID) {
	n.faults.clogNode(id)
}

// UnclogNode reverses ClogNode.
func (n *Network) UnclogNode(id NodeID) {
	n.faults.unclogNode(id)
}

// ClogLink drops traffic flowing from src to dst, but not the reverse
// direction.
func (n *Network) ClogLink(src, dst NodeID) {
	n.faults.clogLink(src, dst)
}

// UnclogLink reverses ClogLink.
func (n *Network) UnclogLink(src, dst NodeID) {
	n.faults.unclogLink(src, dst)
}

// Disconnect is shorthand for ClogNode: the node stops sending and
// receiving inter-node traffic.
func (n *Network) Disconnect(id NodeID) {
	n.ClogNode(id)
}

// Connect is shorthand for UnclogNode.
func (n *Network) Connect(id NodeID) {
	n.UnclogNode(id)
}

// Disconnect2 clogs both directions of the a-b link.
func (n *Network) Disconnect2(a, b NodeID) {
	n.ClogLink(a, b)
	n.ClogLink(b, a)
}

// Connect2 unclogs both directions of the a-b link.
func (n *Network) Connect2(a, b NodeID) {
	n.UnclogLink(a, b)
	n.UnclogLink(b, a)
}
