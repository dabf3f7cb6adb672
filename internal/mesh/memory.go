package mesh

import (
	"net"
	"sync"
	"time"
)

// MemoryNetwork is an in-process datagram fabric connecting multiple
// MemoryTransports, so mesh sessions can be exercised in tests without
// real sockets. Like UDP it is unreliable: datagrams to a full receive
// queue are dropped.
type MemoryNetwork struct {
	sockets map[string]map[int]*memorySocket // address -> port -> socket
	mu      sync.Mutex
}

// NewMemoryNetwork creates an empty fabric.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		sockets: make(map[string]map[int]*memorySocket),
	}
}

// Host attaches a transport for a node at the given address. All hosts on
// a network share the same broadcast domain.
func (n *MemoryNetwork) Host(address, broadcast string) *MemoryTransport {
	return &MemoryTransport{net: n, address: address, broadcast: broadcast}
}

// deliver routes a datagram to its destination socket(s). A subnet
// broadcast reaches every socket on the port sharing that broadcast
// address; the limited broadcast reaches all of them.
func (n *MemoryNetwork) deliver(data []byte, from, to string, port int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	broadcast := false
	for _, ports := range n.sockets {
		sock, ok := ports[port]
		if !ok {
			continue
		}
		if to == "255.255.255.255" || to == sock.bcast {
			sock.enqueue(data, from)
			broadcast = true
		}
	}
	if broadcast {
		return
	}

	if ports, ok := n.sockets[to]; ok {
		if sock, ok := ports[port]; ok {
			sock.enqueue(data, from)
		}
	}
}

func (n *MemoryNetwork) bind(address string, port int, sock *memorySocket) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ports, ok := n.sockets[address]
	if !ok {
		ports = make(map[int]*memorySocket)
		n.sockets[address] = ports
	}
	ports[port] = sock
}

func (n *MemoryNetwork) unbind(address string, port int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ports, ok := n.sockets[address]; ok {
		delete(ports, port)
	}
}

func (n *MemoryNetwork) hasSocket(address string, port int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	ports, ok := n.sockets[address]
	if !ok {
		return false
	}
	_, ok = ports[port]
	return ok
}

// MemoryTransport implements Transport over a MemoryNetwork.
type MemoryTransport struct {
	net       *MemoryNetwork
	address   string
	broadcast string
}

// OpenSocket binds an in-memory socket at this host's address.
func (t *MemoryTransport) OpenSocket(port int, recvBufferSize int) (Socket, error) {
	sock := &memorySocket{
		net:     t.net,
		local:   t.address,
		port:    port,
		queue:   make(chan memoryDatagram, 256),
		closed:  make(chan struct{}),
		bcast:   t.broadcast,
		bufSize: recvBufferSize,
	}
	t.net.bind(t.address, port, sock)
	return sock, nil
}

// ActiveInterfaces reports this host's single interface.
func (t *MemoryTransport) ActiveInterfaces() ([]InterfaceAddr, error) {
	return []InterfaceAddr{{Address: t.address, Broadcast: t.broadcast}}, nil
}

// IsReachable reports whether any socket is bound at the address and port.
func (t *MemoryTransport) IsReachable(address string, port int, _ time.Duration) bool {
	return t.net.hasSocket(address, port)
}

type memoryDatagram struct {
	data   []byte
	sender string
}

type memorySocket struct {
	net     *MemoryNetwork
	local   string
	port    int
	bcast   string
	bufSize int

	queue     chan memoryDatagram
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *memorySocket) Send(data []byte, address string, port int) error {
	select {
	case <-s.closed:
		return net.ErrClosed
	default:
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	s.net.deliver(buf, s.local, address, port)
	return nil
}

func (s *memorySocket) Receive() ([]byte, string, error) {
	select {
	case <-s.closed:
		return nil, "", net.ErrClosed
	case dg, ok := <-s.queue:
		if !ok {
			return nil, "", net.ErrClosed
		}
		if len(dg.data) > s.bufSize {
			// Datagram truncation, same as an undersized recv buffer.
			dg.data = dg.data[:s.bufSize]
		}
		return dg.data, dg.sender, nil
	}
}

func (s *memorySocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.net.unbind(s.local, s.port)
	})
	return nil
}

// enqueue appends a datagram, dropping when the queue is full.
func (s *memorySocket) enqueue(data []byte, sender string) {
	select {
	case <-s.closed:
	case s.queue <- memoryDatagram{data: data, sender: sender}:
	default:
	}
}
