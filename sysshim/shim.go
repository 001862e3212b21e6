// Package sysshim models the POSIX socket-call boundary a UDP-based
// protocol implementation expects, translating it onto netsim endpoints.
// It does not intercept real OS syscalls (that requires process-wide
// LD_PRELOAD-style hooking with no Go equivalent worth fabricating); it is
// the contract a real interceptor would dispatch into, expressed as a
// plain Go API keyed by (node, fd).
package sysshim

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/rs/zerolog"

	"github.com/iotaledger/iota-sim/netsim"
)

// Errno is the POSIX error code a shim call failed with, mirroring the
// host's errno convention instead of Go's usual error values, since callers
// of this boundary expect to set errno themselves.
type Errno = unix.Errno

type socketKey struct {
	node netsim.NodeID
	fd   int
}

type socketState struct {
	family   int
	sockType int
	fd       int // host placeholder fd, from Dup(0)
	endpoint *netsim.Endpoint
}

// Shim is the process-wide socket-state table backing the syscall
// boundary. One Shim is shared by every node in the simulation, the same
// way a single libc interceptor serves every simulated process.
type Shim struct {
	net *netsim.Network
	ctx netsim.NodeContext

	mu      sync.Mutex
	sockets map[socketKey]*socketState

	logger zerolog.Logger
}

// New constructs a Shim bound to net. ctx resolves "which node is calling"
// for each invocation.
func New(net *netsim.Network, ctx netsim.NodeContext, logger zerolog.Logger) *Shim {
	return &Shim{
		net:     net,
		ctx:     ctx,
		sockets: make(map[socketKey]*socketState),
		logger:  logger,
	}
}

func (s *Shim) currentNode() netsim.NodeID {
	node, ok := s.ctx.CurrentNode()
	if !ok {
		panic("sysshim: called outside of any simulated node")
	}
	return node
}

// Socket allocates a placeholder host fd and registers socket state keyed
// by (current node, fd). Only AF_INET/AF_INET6 are accepted; any other
// domain is a programmer error and panics. A non-zero protocol logs a
// warning since the caller's intent may not be honored.
func (s *Shim) Socket(domain, sockType, protocol int) (int, error) {
	if domain != unix.AF_INET && domain != unix.AF_INET6 {
		panic(fmt.Sprintf("sysshim: unsupported address family %d", domain))
	}
	if protocol != 0 {
		s.logger.Warn().Int("protocol", protocol).Msg("socket(): non-zero protocol ignored")
	}

	fd, err := unix.Dup(0)
	if err != nil {
		return -1, err
	}

	node := s.currentNode()
	s.mu.Lock()
	defer s.mu.Unlock()
	key := socketKey{node: node, fd: fd}
	if _, exists := s.sockets[key]; exists {
		panic(fmt.Sprintf("sysshim: duplicate socket %d on node %d", fd, node))
	}
	s.sockets[key] = &socketState{family: domain, sockType: sockType, fd: fd}
	return fd, nil
}

// Bind installs a netsim endpoint for the socket and attaches it. AF_INET6
// binds are rejected with EADDRNOTAVAIL, matching the simulator's IPv4-only
// addressing model.
func (s *Shim) Bind(fd int, addr netip.AddrPort) error {
	node := s.currentNode()
	st := s.get(node, fd)

	if addr.Addr().Is6() {
		s.logger.Warn().Msg("ipv6 not supported in simulator")
		return unix.EADDRNOTAVAIL
	}

	if st.endpoint != nil {
		panic("sysshim: socket already bound")
	}

	ep, err := netsim.BindEndpointSync(s.net, node, addr)
	if err != nil {
		return translateBindErr(err)
	}

	s.mu.Lock()
	st.endpoint = ep
	s.mu.Unlock()
	return nil
}

// Close removes the socket's state, closing its netsim endpoint if bound,
// and releases the placeholder fd. It reports whether fd belonged to this
// shim; a caller whose fd wasn't ours should forward to the real close(2).
func (s *Shim) Close(fd int) bool {
	node := s.currentNode()
	key := socketKey{node: node, fd: fd}

	s.mu.Lock()
	st, ok := s.sockets[key]
	if ok {
		delete(s.sockets, key)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	if st.endpoint != nil {
		_ = st.endpoint.Close()
	}
	_ = unix.Close(st.fd)
	return true
}

// Getsockname returns the local address of a bound socket. Calling this on
// an unbound socket is a programmer error.
func (s *Shim) Getsockname(fd int) netip.AddrPort {
	node := s.currentNode()
	st := s.get(node, fd)
	if st.endpoint == nil {
		panic("sysshim: getsockname() on unbound socket")
	}
	return st.endpoint.LocalAddr()
}

// Setsockopt implements the benign no-op allowlist spec'd for this shim:
// SO_REUSEADDR, IP_TTL, IP_RECVTOS, IP_PKTINFO, IP_MTU_DISCOVER all
// succeed without effect (the simulator never actually needs them), IPv6
// options and GRO/GSO are unsupported, and anything else is logged and
// treated as a harmless no-op.
func (s *Shim) Setsockopt(level, name int) error {
	switch {
	case level == unix.IPPROTO_IPV6:
		return unix.EOPNOTSUPP
	case level == unix.SOL_SOCKET && name == unix.SO_REUSEADDR:
		return nil
	case level == unix.IPPROTO_IP && name == unix.IP_TTL:
		return nil
	case level == unix.IPPROTO_IP && name == unix.IP_RECVTOS:
		return nil
	case level == unix.IPPROTO_IP && name == unix.IP_PKTINFO:
		return nil
	case level == unix.IPPROTO_IP && name == unix.IP_MTU_DISCOVER:
		return nil
	case level == unix.SOL_UDP && (name == unix.UDP_GRO || name == unix.UDP_SEGMENT):
		return unix.EOPNOTSUPP
	default:
		s.logger.Warn().Int("level", level).Int("name", name).Msg("unhandled socket option")
		return nil
	}
}

// Sendmsg translates a single-iovec UDP send into SendToRawSync, using the
// destination port as the tag per this shim's port-is-tag convention. Only
// SOCK_DGRAM sockets with exactly one iovec are supported.
func (s *Shim) Sendmsg(fd int, dst netip.AddrPort, iov [][]byte, flags int) (int, error) {
	node := s.currentNode()
	st := s.get(node, fd)
	assertUDP(st)

	if len(iov) != 1 {
		panic("sysshim: scatter/gather unsupported")
	}
	if flags != 0 {
		s.logger.Warn().Int("flags", flags).Msg("unsupported flags to sendmsg/sendmmsg")
	}
	if st.endpoint == nil {
		panic("sysshim: sendmsg on unconnected socket")
	}

	payload := append([]byte(nil), iov[0]...)
	st.endpoint.SendToRawSync(dst, uint64(dst.Port()), payload)
	return len(payload), nil
}

// Sendmmsg sends each message via Sendmsg, in order, returning the number
// successfully submitted. No platform guard: the shim never touches the OS
// send path.
func (s *Shim) Sendmmsg(fd int, dsts []netip.AddrPort, payloads [][]byte, flags int) (int, error) {
	if len(dsts) != len(payloads) {
		panic("sysshim: sendmmsg dst/payload length mismatch")
	}
	sent := 0
	for i := range dsts {
		if _, err := s.Sendmsg(fd, dsts[i], [][]byte{payloads[i]}, flags); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Recvmsg translates to a non-blocking raw receive on the socket's UDP tag
// (its bound port). ErrWouldBlock maps to EAGAIN; a payload longer than buf
// is truncated with MsgTrunc reported.
func (s *Shim) Recvmsg(fd int, buf []byte) (n int, from netip.AddrPort, msgTrunc bool, err error) {
	node := s.currentNode()
	st := s.get(node, fd)
	assertUDP(st)
	if st.endpoint == nil {
		panic("sysshim: recvmsg on unconnected socket")
	}

	tag, tagErr := st.endpoint.UDPTag()
	if tagErr != nil {
		panic("sysshim: recvmsg on socket with no assigned port")
	}

	data, from, recvErr := st.endpoint.RecvFromRawSync(tag)
	if errors.Is(recvErr, netsim.ErrWouldBlock) {
		return 0, netip.AddrPort{}, false, unix.EAGAIN
	}
	if recvErr != nil {
		return 0, netip.AddrPort{}, false, recvErr
	}

	b, ok := data.([]byte)
	if !ok {
		panic("sysshim: recvmsg payload is not []byte")
	}
	n = copy(buf, b)
	msgTrunc = len(b) > len(buf)
	return n, from, msgTrunc, nil
}

// Send, Sendto, Connect, and Recvmmsg are explicitly unimplemented: the
// higher-level reactor this shim serves never reaches them (send/sendto go
// through sendmsg, connect is handled by netsim.Connect directly, and
// recvmmsg has no caller in this design).
func (s *Shim) Send(int, []byte, int) (int, error) {
	panic("sysshim: send() unimplemented, should have been handled by sendmsg")
}

func (s *Shim) Sendto(int, []byte, int, netip.AddrPort) (int, error) {
	panic("sysshim: sendto() unimplemented, should have been handled by sendmsg")
}

func (s *Shim) Connect(context.Context, int, netip.AddrPort) error {
	panic("sysshim: connect() unimplemented")
}

func (s *Shim) Recvmmsg(int, [][]byte) (int, error) {
	panic("sysshim: recvmmsg() unimplemented")
}

func (s *Shim) get(node netsim.NodeID, fd int) *socketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sockets[socketKey{node: node, fd: fd}]
	if !ok {
		panic(fmt.Sprintf("sysshim: no such socket %d on node %d", fd, node))
	}
	return st
}

func assertUDP(st *socketState) {
	if st.sockType != unix.SOCK_DGRAM {
		panic("sysshim: only UDP is supported in sendmsg/sendmmsg/recvmsg")
	}
}

func translateBindErr(err error) error {
	switch {
	case errors.Is(err, netsim.ErrAddrNotAvailable):
		return unix.EADDRNOTAVAIL
	case errors.Is(err, netsim.ErrAddrInUse):
		return unix.EADDRINUSE
	default:
		return err
	}
}
