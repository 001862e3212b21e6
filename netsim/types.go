// Package netsim implements a deterministic, in-process simulated network
// for testing distributed protocols. Logical nodes exchange tagged messages
// through a central Network that models latency, packet loss, partitions,
// and node resets.
package netsim

import "net/netip"

// NodeID identifies a logical node in the simulated network.
type NodeID uint64

// Addr is a simulated socket address. It is comparable and hashable, so it
// can be used directly as a map key throughout the endpoint table and fault
// model.
type Addr = netip.AddrPort

// Payload is an opaque, type-erased, heap-allocated value carried by a
// Message. Raw UDP traffic carries []byte; simulators composing on top of
// the network may box arbitrary structured values instead.
type Payload any

// Message is an immutable, once-sent datagram delivered to a mailbox.
type Message struct {
	Tag  uint64
	From Addr
	Data Payload
}
