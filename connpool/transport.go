package connpool

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsConnection adapts a gorilla/websocket connection to NetworkConnection,
// backing the Ws and Wss protocols (spec.md §4.7's admission checks only
// ever connect to Ws/Wss peers).
type wsConnection struct {
	conn        *websocket.Conn
	outbound    bool
	peerAddress *PeerAddress
	netAddress  NetAddress
}

var wsUpgrader = websocket.Upgrader{}

// AcceptInbound upgrades an incoming HTTP request to a websocket connection
// and wraps it as an inbound NetworkConnection.
func AcceptInbound(w http.ResponseWriter, r *http.Request) (NetworkConnection, error) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &wsConnection{conn: conn, outbound: false, netAddress: netAddressFromConn(conn.RemoteAddr())}, nil
}

// DialOutbound establishes a websocket connection to addr, wrapping it as
// an outbound NetworkConnection.
func DialOutbound(addr PeerAddress, url string, secure bool) (NetworkConnection, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConnection{conn: conn, outbound: true, peerAddress: &addr, netAddress: addr.NetAddress}, nil
}

func netAddressFromConn(addr net.Addr) NetAddress {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return NetAddress{Pseudo: true}
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return NetAddress{Pseudo: true}
	}
	return NetAddress{IP: ip, Reliable: !ip.IsLoopback() && !ip.IsUnspecified()}
}

func (c *wsConnection) Outbound() bool { return c.outbound }
func (c *wsConnection) Inbound() bool  { return !c.outbound }

func (c *wsConnection) NetAddress() NetAddress {
	if c.netAddress.IP != nil {
		return c.netAddress
	}
	return netAddressFromConn(c.conn.RemoteAddr())
}

func (c *wsConnection) PeerAddress() (PeerAddress, bool) {
	if c.peerAddress == nil {
		return PeerAddress{}, false
	}
	return *c.peerAddress, true
}

// Close closes the underlying websocket connection with a close frame
// describing ty, as a detached task so the pool never blocks on I/O while
// holding its lock (spec.md §5's "schedules close as a detached task").
func (c *wsConnection) Close(ty CloseType) {
	go func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ty.String()), time.Now().Add(time.Second))
		_ = c.conn.Close()
	}()
}

func (ty CloseType) String() string {
	switch ty {
	case CloseDuplicateConnection:
		return "duplicate connection"
	case CloseSimultaneousConnection:
		return "simultaneous connection"
	case CloseInboundConnectionsBlocked:
		return "inbound connections blocked"
	case CloseBannedIP:
		return "banned ip"
	case CloseConnectionLimitPerIP:
		return "connection limit per ip"
	case CloseMaxPeerCountReached:
		return "max peer count reached"
	case CloseConnectionLimitDumb:
		return "connection limit dumb"
	case CloseManual:
		return "manual"
	case CloseBanningProtocolViolation:
		return "protocol violation"
	default:
		return "unknown"
	}
}
