// Package connpool indexes the set of active and pending peer connections
// by peer address, net address, and subnet, enforcing the admission and
// handshake policies of spec.md §4.7.
package connpool

import (
	"context"
	"sync"
	"time"

	"github.com/nimbusledger/corechain/log"
	"github.com/nimbusledger/corechain/policy"
)

var logger log.Logger = log.Disabled

// UseLogger wires a Logger for the connpool package.
func UseLogger(l log.Logger) { logger = l }

// Pool indexes connections by three keys (peer address, net address,
// subnet) in a gap-reusing SparseVec, and tracks per-protocol/per-direction
// peer counts used by the admission checks in spec.md §4.7.
type Pool struct {
	mu sync.Mutex

	connections         SparseVec[ConnectionInfo]
	connectionsByPeer   map[string]int
	connectionsByNet    map[string]map[int]struct{}
	connectionsBySubnet map[string]map[int]struct{}

	peerCountWS   int
	peerCountWSS  int
	peerCountRTC  int
	peerCountDumb int

	peerCountOutbound int
	connectingCount   int
	inboundCount      int

	allowInboundConnections bool
	allowInboundExchange    bool

	bans *banList

	stopSweeper func()
}

// New constructs an empty Pool and starts its ban-sweep ticker.
func New(allowInboundConnections, allowInboundExchange bool) *Pool {
	p := &Pool{
		connectionsByPeer:       make(map[string]int),
		connectionsByNet:        make(map[string]map[int]struct{}),
		connectionsBySubnet:     make(map[string]map[int]struct{}),
		allowInboundConnections: allowInboundConnections,
		allowInboundExchange:    allowInboundExchange,
		bans:                    newBanList(),
	}
	p.stopSweeper = p.bans.startSweeper(time.Minute)
	return p
}

// Close stops the ban sweeper. It does not close any live connections.
func (p *Pool) Close() {
	if p.stopSweeper != nil {
		p.stopSweeper()
	}
}

// PeerCount returns the total number of established peers across every
// protocol.
func (p *Pool) PeerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peerCountWS + p.peerCountWSS + p.peerCountRTC + p.peerCountDumb
}

// ConnectOutbound admits an outbound dial attempt against addr, returning
// the dial context (whose cancel the pool will invoke if the attempt is
// later superseded by a simultaneous inbound connection) and whether the
// attempt was accepted.
func (p *Pool) ConnectOutbound(ctx context.Context, addr PeerAddress) (context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.checkOutboundConnectionRequestLocked(addr) {
		return nil, false
	}

	dialCtx, cancel := context.WithCancel(ctx)
	info := newOutboundConnection(addr, cancel)
	p.add(info)
	p.connectingCount++
	return dialCtx, true
}

// checkOutboundConnectionRequestLocked implements
// check_outbound_connection_request: protocol must be Ws/Wss, no existing
// connection to the peer, and IP/subnet admission limits respected.
func (p *Pool) checkOutboundConnectionRequestLocked(addr PeerAddress) bool {
	if addr.Protocol != ProtocolWs && addr.Protocol != ProtocolWss {
		logger.Warnf("connpool: cannot connect to %s: unsupported protocol", addr.Host)
		return false
	}
	if p.bans.isBanned(addr.NetAddress) {
		return false
	}
	if _, ok := p.connectionsByPeer[addr.Key()]; ok {
		logger.Debugf("connpool: duplicate connection to %s", addr.Host)
		return false
	}
	if addr.NetAddress.Reliable {
		if p.numByNetLocked(addr.NetAddress) >= policy.PeerCountPerIPMax {
			return false
		}
		if p.numOutboundBySubnetLocked(addr.NetAddress) >= policy.OutboundPeerCountPerSubnetMax {
			return false
		}
	}
	return true
}

// OnInboundConnection admits a freshly accepted inbound socket, applying
// check_connection's post-accept policy.
func (p *Pool) OnInboundConnection(conn NetworkConnection) (id int, accepted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := newInboundConnection(conn)
	id = p.add(info)
	p.inboundCount++

	if !p.checkConnectionLocked(id) {
		return id, false
	}
	return id, true
}

// OnOutboundEstablished marks a previously admitted outbound attempt as
// socket-connected, running the same post-accept policy check.
func (p *Pool) OnOutboundEstablished(addr PeerAddress, conn NetworkConnection) (id int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.connectionsByPeer[addr.Key()]
	if !ok {
		return 0, false
	}
	info, ok := p.connections.Get(idx)
	if !ok || info.state != StateConnecting {
		return 0, false
	}
	p.connectingCount--
	info.setNetworkConnection(conn)

	if !p.checkConnectionLocked(idx) {
		return idx, false
	}
	return idx, true
}

// checkConnectionLocked implements check_connection: inbound gating,
// per-IP/per-subnet caps, and the global peer cap with its outbound/
// inbound-exchange exemptions.
func (p *Pool) checkConnectionLocked(id int) bool {
	info, ok := p.connections.Get(id)
	if !ok {
		return false
	}
	conn := info.conn
	if conn == nil {
		return false
	}

	if conn.Inbound() && !p.allowInboundConnections {
		p.closeLocked(id, CloseInboundConnectionsBlocked)
		return false
	}

	net := conn.NetAddress()
	if net.Reliable {
		if p.bans.isBanned(net) {
			p.closeLocked(id, CloseBannedIP)
			return false
		}
		if p.numByNetLocked(net) > policy.PeerCountPerIPMax {
			p.closeLocked(id, CloseConnectionLimitPerIP)
			return false
		}
		if p.numBySubnetLocked(net) > policy.InboundPeerCountPerSubnetMax {
			p.closeLocked(id, CloseConnectionLimitPerIP)
			return false
		}
	}

	total := p.peerCountWS + p.peerCountWSS + p.peerCountRTC + p.peerCountDumb
	if total >= policy.PeerCountMax && !conn.Outbound() && !(conn.Inbound() && p.allowInboundExchange) {
		p.closeLocked(id, CloseMaxPeerCountReached)
		return false
	}
	return true
}

// CheckHandshake validates a peer's handshake, resolving duplicate or
// simultaneous connections to the same peer address, per spec.md §4.7 and
// §9 (returns true on success, unlike the source it was ported from).
func (p *Pool) CheckHandshake(id int, peerAddr PeerAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, ok := p.connections.Get(id)
	if !ok {
		return false
	}

	if storedID, ok := p.connectionsByPeer[peerAddr.Key()]; ok && storedID != id {
		stored, ok := p.connections.Get(storedID)
		if ok && stored.state == StateEstablished {
			p.closeLocked(id, CloseDuplicateConnection)
			return false
		}
	}

	if peerAddr.Protocol == ProtocolDumb && p.peerCountDumb >= policy.PeerCountDumbMax {
		p.closeLocked(id, CloseConnectionLimitDumb)
		return false
	}

	info.negotiating()
	return true
}

// OnHandshake completes the handshake for connection id, resolving any
// simultaneous duplicate via the lower-peer-identifier tie-break and
// updating the peer-count and secondary-index bookkeeping.
func (p *Pool) OnHandshake(id int, peerAddr PeerAddress, localPeerID uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, ok := p.connections.Get(id)
	if !ok || info.conn == nil {
		return false
	}

	if info.conn.Inbound() {
		total := p.peerCountWS + p.peerCountWSS + p.peerCountRTC + p.peerCountDumb
		if total >= policy.PeerCountMax && !p.allowInboundExchange {
			p.closeLocked(id, CloseMaxPeerCountReached)
			return false
		}

		if storedID, ok := p.connectionsByPeer[peerAddr.Key()]; ok && storedID != id {
			stored, ok := p.connections.Get(storedID)
			if ok {
				switch stored.state {
				case StateConnecting:
					logger.Debugf("connpool: aborting outbound attempt to %s, simultaneous inbound won", peerAddr.Host)
					p.removeLocked(storedID)
					stored.close()
				case StateEstablished:
					p.closeLocked(id, CloseDuplicateConnection)
					return false
				case StateNegotiating:
					if localPeerID < peerAddr.PeerID {
						p.closeLocked(storedID, CloseSimultaneousConnection)
					} else {
						p.closeLocked(id, CloseSimultaneousConnection)
						return false
					}
				default:
					p.closeLocked(storedID, CloseSimultaneousConnection)
				}
			}
		}

		info.setPeerAddress(peerAddr)
		p.connectionsByPeer[peerAddr.Key()] = id
		p.inboundCount--
	}

	info.establish()
	if net := info.conn.NetAddress(); net.Reliable {
		p.addNetAddressLocked(id, net)
	}
	p.updateConnectedPeerCountLocked(info, true)
	return true
}

// OnClose tears down connection id, banning its IP if ty is a banning
// close type and updating peer counts when the connection had reached
// Established.
func (p *Pool) OnClose(id int, ty CloseType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked(id, ty)
}

func (p *Pool) closeLocked(id int, ty CloseType) {
	info, ok := p.connections.Get(id)
	if !ok {
		return
	}

	wasEstablished := info.state == StateEstablished
	var net NetAddress
	var hadNet bool
	if info.conn != nil {
		net = info.conn.NetAddress()
		hadNet = true
	}
	wasPreHandshakeInbound := info.conn != nil && info.conn.Inbound() && info.state != StateEstablished
	wasPendingOutbound := info.outbound && info.state == StateConnecting

	p.removeLocked(id)

	if ty.IsBanning() && hadNet {
		p.bans.ban(net)
	}

	switch {
	case wasEstablished:
		p.updateConnectedPeerCountLocked(info, false)
	case wasPreHandshakeInbound:
		p.inboundCount--
	case wasPendingOutbound:
		p.connectingCount--
	}

	if info.conn != nil {
		info.conn.Close(ty)
	}
	info.close()
}

func (p *Pool) add(info *ConnectionInfo) int {
	id := p.connections.Insert(info)
	if addr, ok := info.PeerAddress(); ok {
		p.connectionsByPeer[addr.Key()] = id
	}
	return id
}

func (p *Pool) removeLocked(id int) {
	info, ok := p.connections.Remove(id)
	if !ok {
		return
	}
	if addr, ok := info.PeerAddress(); ok {
		delete(p.connectionsByPeer, addr.Key())
	}
	if info.conn != nil {
		p.removeNetAddressLocked(id, info.conn.NetAddress())
	}
}

func (p *Pool) addNetAddressLocked(id int, addr NetAddress) {
	if !addr.Reliable {
		return
	}
	key := addr.Key()
	if p.connectionsByNet[key] == nil {
		p.connectionsByNet[key] = make(map[int]struct{})
	}
	p.connectionsByNet[key][id] = struct{}{}

	subnetKey := subnetAddress(addr).Key()
	if p.connectionsBySubnet[subnetKey] == nil {
		p.connectionsBySubnet[subnetKey] = make(map[int]struct{})
	}
	p.connectionsBySubnet[subnetKey][id] = struct{}{}
}

func (p *Pool) removeNetAddressLocked(id int, addr NetAddress) {
	if !addr.Reliable {
		return
	}
	key := addr.Key()
	if s, ok := p.connectionsByNet[key]; ok {
		delete(s, id)
		if len(s) == 0 {
			delete(p.connectionsByNet, key)
		}
	}
	subnetKey := subnetAddress(addr).Key()
	if s, ok := p.connectionsBySubnet[subnetKey]; ok {
		delete(s, id)
		if len(s) == 0 {
			delete(p.connectionsBySubnet, subnetKey)
		}
	}
}

func (p *Pool) numByNetLocked(addr NetAddress) int {
	return len(p.connectionsByNet[addr.Key()])
}

func (p *Pool) numBySubnetLocked(addr NetAddress) int {
	return len(p.connectionsBySubnet[subnetAddress(addr).Key()])
}

func (p *Pool) numOutboundBySubnetLocked(addr NetAddress) int {
	ids := p.connectionsBySubnet[subnetAddress(addr).Key()]
	n := 0
	for id := range ids {
		if info, ok := p.connections.Get(id); ok && info.outbound {
			n++
		}
	}
	return n
}

// subnetAddress converts a net address into its subnet bucket according to
// the configured IPv4/IPv6 masks.
func subnetAddress(addr NetAddress) NetAddress {
	if addr.IP.To4() != nil {
		return addr.Subnet(policy.IPv4SubnetMask)
	}
	return addr.Subnet(policy.IPv6SubnetMask)
}

func (p *Pool) updateConnectedPeerCountLocked(info *ConnectionInfo, add bool) {
	addr, ok := info.PeerAddress()
	if !ok {
		return
	}

	delta := 1
	if !add {
		delta = -1
	}

	switch addr.Protocol {
	case ProtocolWss:
		p.peerCountWSS += delta
	case ProtocolWs:
		p.peerCountWS += delta
	case ProtocolRtc:
		p.peerCountRTC += delta
	default:
		p.peerCountDumb += delta
	}

	if info.outbound {
		p.peerCountOutbound += delta
	}
}
