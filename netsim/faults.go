package netsim

import "sync"

// linkKey identifies a directed node pair for link-level clogging.
type linkKey struct {
	src, dst NodeID
}

// faultModel tracks which nodes and directed links are currently clogged.
// Bernoulli packet loss itself lives in Config/RandSource; faultModel only
// owns the clog sets.
type faultModel struct {
	mu    sync.Mutex
	nodes map[NodeID]struct{}
	links map[linkKey]struct{}
}

func newFaultModel() *faultModel {
	return &faultModel{
		nodes: make(map[NodeID]struct{}),
		links: make(map[linkKey]struct{}),
	}
}

func (f *faultModel) clogNode(n NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[n] = struct{}{}
}

func (f *faultModel) unclogNode(n NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, n)
}

func (f *faultModel) clogLink(src, dst NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[linkKey{src, dst}] = struct{}{}
}

func (f *faultModel) unclogLink(src, dst NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, linkKey{src, dst})
}

// admit reports whether an inter-node send from src to dst should proceed,
// given a uniform draw in [0, 1) and the configured lossRate; the send is
// dropped when draw < lossRate. Intra-node sends never reach this; see
// Network.send.
func (f *faultModel) admit(src, dst NodeID, draw, lossRate float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, clogged := f.nodes[src]; clogged {
		return false
	}
	if _, clogged := f.nodes[dst]; clogged {
		return false
	}
	if _, clogged := f.links[linkKey{src, dst}]; clogged {
		return false
	}
	if draw < lossRate {
		return false
	}
	return true
}

// reset drops node from both clog sets, including as the target side of any
// link clogged against it, matching reset_node's "remove on both sides".
func (f *faultModel) reset(node NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.nodes, node)
	for k := range f.links {
		if k.src == node || k.dst == node {
			delete(f.links, k)
		}
	}
}
