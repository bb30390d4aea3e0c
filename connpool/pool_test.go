package connpool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	outbound bool
	net      NetAddress
	peer     *PeerAddress
	closed   chan CloseType
}

func newFakeConn(outbound bool, ip string, peer *PeerAddress) *fakeConn {
	return &fakeConn{
		outbound: outbound,
		net:      NetAddress{IP: net.ParseIP(ip), Reliable: true},
		peer:     peer,
		closed:   make(chan CloseType, 1),
	}
}

func (c *fakeConn) Outbound() bool           { return c.outbound }
func (c *fakeConn) Inbound() bool            { return !c.outbound }
func (c *fakeConn) NetAddress() NetAddress   { return c.net }
func (c *fakeConn) PeerAddress() (PeerAddress, bool) {
	if c.peer == nil {
		return PeerAddress{}, false
	}
	return *c.peer, true
}
func (c *fakeConn) Close(ty CloseType) { c.closed <- ty }

func peerAt(ip string, port uint16, id uint64) PeerAddress {
	return PeerAddress{
		Protocol:   ProtocolWs,
		NetAddress: NetAddress{IP: net.ParseIP(ip), Reliable: true},
		Host:       ip,
		Port:       port,
		PeerID:     id,
	}
}

func TestInboundHandshakeEstablishesPeer(t *testing.T) {
	p := New(true, false)
	defer p.Close()

	addr := peerAt("203.0.113.1", 8080, 1)
	conn := newFakeConn(false, "203.0.113.1", nil)

	id, accepted := p.OnInboundConnection(conn)
	require.True(t, accepted)

	require.True(t, p.CheckHandshake(id, addr))
	require.True(t, p.OnHandshake(id, addr, 2))
	require.Equal(t, 1, p.PeerCount())
}

func TestOutboundConnectDeniedForDumbProtocol(t *testing.T) {
	p := New(true, false)
	defer p.Close()

	addr := peerAt("203.0.113.2", 8080, 1)
	addr.Protocol = ProtocolDumb

	_, ok := p.ConnectOutbound(context.Background(), addr)
	require.False(t, ok)
}

func TestOutboundConnectRejectsDuplicate(t *testing.T) {
	p := New(true, false)
	defer p.Close()

	addr := peerAt("203.0.113.3", 8080, 1)

	_, ok := p.ConnectOutbound(context.Background(), addr)
	require.True(t, ok)

	_, ok = p.ConnectOutbound(context.Background(), addr)
	require.False(t, ok)
}

func TestPerIPConnectionLimitEnforced(t *testing.T) {
	p := New(true, false)
	defer p.Close()

	// check_connection only counts already-established peers (net-address
	// indexing happens at handshake completion, not at raw accept), so the
	// limit bites once PeerCountPerIPMax+1 connections have fully
	// established, per original_source/.../connection_pool.rs's
	// get_num_connections_by_net_address(...) > PEER_COUNT_PER_IP_MAX check.
	for i := 0; i <= 20; i++ {
		conn := newFakeConn(false, "198.51.100.9", nil)
		id, accepted := p.OnInboundConnection(conn)
		require.Truef(t, accepted, "connection %d should be admitted", i)
		addr := peerAt("198.51.100.9", uint16(9000+i), uint64(i))
		require.True(t, p.CheckHandshake(id, addr))
		require.True(t, p.OnHandshake(id, addr, 9999))
	}

	conn := newFakeConn(false, "198.51.100.9", nil)
	_, accepted := p.OnInboundConnection(conn)
	require.False(t, accepted, "connection beyond the per-IP limit must be rejected")
}

func TestSimultaneousConnectionLowerPeerIDWins(t *testing.T) {
	p := New(true, false)
	defer p.Close()

	outAddr := peerAt("203.0.113.4", 8080, 5)
	_, ok := p.ConnectOutbound(context.Background(), outAddr)
	require.True(t, ok)

	outConn := newFakeConn(true, "203.0.113.4", &outAddr)
	outID, ok := p.OnOutboundEstablished(outAddr, outConn)
	require.True(t, ok)
	require.True(t, p.CheckHandshake(outID, outAddr))

	inConn := newFakeConn(false, "203.0.113.4", nil)
	inID, accepted := p.OnInboundConnection(inConn)
	require.True(t, accepted)
	require.True(t, p.CheckHandshake(inID, outAddr))

	// Local peer ID (1) is lower than outAddr.PeerID (5): the inbound wins,
	// and the stored negotiating outbound connection is closed.
	ok = p.OnHandshake(inID, outAddr, 1)
	require.True(t, ok)

	select {
	case ty := <-outConn.closed:
		require.Equal(t, CloseSimultaneousConnection, ty)
	case <-time.After(time.Second):
		t.Fatal("expected stored outbound connection to be closed")
	}
}

func TestBanThenSweepExpires(t *testing.T) {
	bl := newBanList()
	now := time.Now()
	bl.nowFunc = func() time.Time { return now }

	addr := NetAddress{IP: net.ParseIP("192.0.2.5"), Reliable: true}
	bl.ban(addr)
	require.True(t, bl.isBanned(addr))

	now = now.Add(DefaultBanTime + time.Second)
	bl.sweep()
	require.False(t, bl.isBanned(addr))
}

func TestEstablishedDuplicateConnectionClosedOnHandshakeCheck(t *testing.T) {
	p := New(true, false)
	defer p.Close()

	addr := peerAt("203.0.113.6", 8080, 1)
	conn1 := newFakeConn(false, "203.0.113.6", nil)
	id1, _ := p.OnInboundConnection(conn1)
	require.True(t, p.CheckHandshake(id1, addr))
	require.True(t, p.OnHandshake(id1, addr, 7))

	conn2 := newFakeConn(false, "203.0.113.6", nil)
	id2, _ := p.OnInboundConnection(conn2)
	require.False(t, p.CheckHandshake(id2, addr))

	select {
	case ty := <-conn2.closed:
		require.Equal(t, CloseDuplicateConnection, ty)
	case <-time.After(time.Second):
		t.Fatal("expected duplicate connection to be closed")
	}
}
