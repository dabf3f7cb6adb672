package mesh

import (
	"fmt"
	"net"
	"time"
)

// Socket abstracts datagram I/O for one plane of the mesh. The mesh uses
// this interface exclusively so that tests can inject an in-memory
// transport without real network sockets.
type Socket interface {
	// Send transmits data to the given address and port. Fire-and-forget;
	// transient failures are the caller's to ignore.
	Send(data []byte, address string, port int) error

	// Receive blocks until a datagram arrives, returning its bytes and
	// the sender's address. Fails permanently once the socket is closed.
	Receive() ([]byte, string, error)

	// Close releases the socket. Pending Receive calls fail immediately.
	Close() error
}

// Transport opens sockets and answers network introspection queries.
// Production code uses UDPTransport; tests substitute their own.
type Transport interface {
	// OpenSocket binds a datagram socket on the given local port.
	OpenSocket(port int, recvBufferSize int) (Socket, error)

	// ActiveInterfaces lists the local unicast addresses of active,
	// non-loopback interfaces together with their broadcast addresses.
	ActiveInterfaces() ([]InterfaceAddr, error)

	// IsReachable probes whether a host answers within the timeout.
	IsReachable(address string, port int, timeout time.Duration) bool
}

// InterfaceAddr pairs a local interface address with its IPv4 broadcast
// address.
type InterfaceAddr struct {
	Address   string
	Broadcast string
}

// Receive buffer sizes for the two planes. Control messages are small;
// audio frames need headroom for the codec output.
const (
	ControlRecvBufferSize = 1024
	AudioRecvBufferSize   = 4096
)

// UDPTransport is the production Transport over the kernel UDP stack.
type UDPTransport struct{}

// NewUDPTransport creates a UDP transport.
func NewUDPTransport() *UDPTransport {
	return &UDPTransport{}
}

// OpenSocket binds a UDP socket on the given port with broadcast enabled.
func (t *UDPTransport) OpenSocket(port int, recvBufferSize int) (Socket, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("mesh: failed to bind udp port %d: %w", port, err)
	}
	return &udpSocket{conn: conn, bufSize: recvBufferSize}, nil
}

// ActiveInterfaces enumerates active, non-loopback IPv4 interface
// addresses and derives each one's subnet broadcast address.
func (t *UDPTransport) ActiveInterfaces() ([]InterfaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("mesh: failed to list interfaces: %w", err)
	}

	var out []InterfaceAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			out = append(out, InterfaceAddr{
				Address:   ip4.String(),
				Broadcast: broadcastAddr(ip4, ipnet.Mask).String(),
			})
		}
	}
	return out, nil
}

// IsReachable dials the host's control port with a short timeout. UDP
// connect succeeds locally, so a follow-up zero-length write is used to
// trigger ICMP feedback where available; absent that, the dial result is
// the best signal we get on an unreliable link.
func (t *UDPTransport) IsReachable(address string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("udp4", net.JoinHostPort(address, fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return false
	}
	_, err = conn.Write(nil)
	return err == nil
}

// broadcastAddr computes the IPv4 directed broadcast address for a subnet.
func broadcastAddr(ip net.IP, mask net.IPMask) net.IP {
	out := make(net.IP, len(ip))
	for i := range ip {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}

// udpSocket adapts a net.UDPConn to the Socket interface.
type udpSocket struct {
	conn    *net.UDPConn
	bufSize int
}

func (s *udpSocket) Send(data []byte, address string, port int) error {
	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("mesh: invalid address %q", address)
	}
	_, err := s.conn.WriteToUDP(data, &net.UDPAddr{IP: ip, Port: port})
	return err
}

func (s *udpSocket) Receive() ([]byte, string, error) {
	buf := make([]byte, s.bufSize)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, "", err
	}
	return buf[:n], addr.IP.String(), nil
}

func (s *udpSocket) Close() error {
	return s.conn.Close()
}
