package connpool

import (
	"context"
	"net"
	"strconv"
)

// Protocol identifies the transport a peer address advertises. Only Ws and
// Wss are connectable from this node; Rtc and Dumb peers are counted but
// never dialed (spec.md §4.7).
type Protocol int

const (
	ProtocolDumb Protocol = iota
	ProtocolWs
	ProtocolWss
	ProtocolRtc
)

func (p Protocol) String() string {
	switch p {
	case ProtocolWs:
		return "ws"
	case ProtocolWss:
		return "wss"
	case ProtocolRtc:
		return "rtc"
	default:
		return "dumb"
	}
}

// NetAddress is a reliable (routable) IP address used for per-IP and
// per-subnet admission bookkeeping. Pseudo addresses (e.g. WebRTC session
// identifiers with no routable IP) are never reliable.
type NetAddress struct {
	IP       net.IP
	Pseudo   bool
	Reliable bool
}

// Subnet returns the network address obtained by masking IP to bits,
// matching the teacher's CIDR-truncation idiom used elsewhere for address
// bucketing.
func (a NetAddress) Subnet(bits int) NetAddress {
	ip4 := a.IP.To4()
	var mask net.IPMask
	var ip net.IP
	if ip4 != nil {
		mask = net.CIDRMask(bits, 32)
		ip = ip4.Mask(mask)
	} else {
		mask = net.CIDRMask(bits, 128)
		ip = a.IP.Mask(mask)
	}
	return NetAddress{IP: ip, Reliable: a.Reliable}
}

// Key renders the address as a comparable map key.
func (a NetAddress) Key() string { return a.IP.String() }

// PeerAddress identifies a remote peer by protocol, routable address, and a
// stable peer identifier used to break simultaneous-connection ties.
type PeerAddress struct {
	Protocol   Protocol
	NetAddress NetAddress
	PeerID     uint64
	Host       string
	Port       uint16
}

// Key renders the peer address as a comparable map key.
func (a PeerAddress) Key() string {
	return a.Protocol.String() + "://" + a.Host + ":" + strconv.Itoa(int(a.Port))
}

// ConnectionState is the per-connection lifecycle, per spec.md §4.7:
// Connecting -> (inbound skips) -> Negotiating -> Established -> Closed.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateNegotiating
	StateEstablished
	StateClosed
)

// CloseType classifies why a connection was closed, including which types
// trigger an IP ban on close.
type CloseType int

const (
	CloseDuplicateConnection CloseType = iota
	CloseSimultaneousConnection
	CloseInboundConnectionsBlocked
	CloseBannedIP
	CloseConnectionLimitPerIP
	CloseMaxPeerCountReached
	CloseConnectionLimitDumb
	CloseManual
	CloseBanningProtocolViolation
)

// IsBanning reports whether ty should also ban the peer's IP.
func (ty CloseType) IsBanning() bool {
	return ty == CloseBanningProtocolViolation
}

// NetworkConnection is the transport-level handle a connection negotiates
// once a socket exists; gorilla/websocket backs the Ws/Wss protocols.
type NetworkConnection interface {
	Outbound() bool
	Inbound() bool
	NetAddress() NetAddress
	PeerAddress() (PeerAddress, bool)
	Close(ty CloseType)
}

// ConnectionInfo tracks one pool slot through its lifecycle. Cancel is set
// for every outbound connection (nil for inbound ones) and kept for its
// whole life, letting the simultaneous-connection tie-break actually abort
// the loser instead of leaving the dial dangling (spec.md §9).
type ConnectionInfo struct {
	state       ConnectionState
	peerAddress *PeerAddress
	conn        NetworkConnection
	outbound    bool
	cancel      context.CancelFunc
}

func newOutboundConnection(addr PeerAddress, cancel context.CancelFunc) *ConnectionInfo {
	return &ConnectionInfo{state: StateConnecting, peerAddress: &addr, outbound: true, cancel: cancel}
}

func newInboundConnection(conn NetworkConnection) *ConnectionInfo {
	return &ConnectionInfo{state: StateConnecting, conn: conn, outbound: false}
}

// State returns the connection's current lifecycle state.
func (c *ConnectionInfo) State() ConnectionState { return c.state }

// PeerAddress returns the peer address, if known.
func (c *ConnectionInfo) PeerAddress() (PeerAddress, bool) {
	if c.peerAddress == nil {
		return PeerAddress{}, false
	}
	return *c.peerAddress, true
}

// NetworkConnection returns the transport handle, if one is set: an
// inbound connection has it from creation, an outbound one once
// OnOutboundEstablished has attached it.
func (c *ConnectionInfo) NetworkConnection() (NetworkConnection, bool) {
	return c.conn, c.conn != nil
}

func (c *ConnectionInfo) setNetworkConnection(conn NetworkConnection) { c.conn = conn }

func (c *ConnectionInfo) setPeerAddress(addr PeerAddress) { c.peerAddress = &addr }

func (c *ConnectionInfo) negotiating() { c.state = StateNegotiating }

func (c *ConnectionInfo) establish() { c.state = StateEstablished }

// close transitions the connection to Closed and, for an outbound
// connection, calls its cancel function whatever state it had reached.
func (c *ConnectionInfo) close() {
	c.state = StateClosed
	if c.cancel != nil {
		c.cancel()
	}
}
