package netsim

import "errors"

var (
	// ErrAddrNotAvailable is returned by bind when the requested IP belongs
	// to neither the node nor a loopback range.
	ErrAddrNotAvailable = errors.New("netsim: address not available")
	// ErrAddrInUse is returned by bind when the resolved (ip, port) already
	// has a mailbox.
	ErrAddrInUse = errors.New("netsim: address already in use")
	// ErrNotConnected is returned by PeerAddr, the connected Send/Recv
	// variants, and UDPTag on an endpoint with no peer or no assigned port.
	ErrNotConnected = errors.New("netsim: endpoint not connected")
	// ErrBrokenPipe is returned when a recv is woken because its endpoint
	// or node was closed or reset.
	ErrBrokenPipe = errors.New("netsim: network is down")
	// ErrWouldBlock is returned by the synchronous recv variants when no
	// matching message is pending.
	ErrWouldBlock = errors.New("netsim: recv call would block")
)
