package capture

import (
	"net"
	"sync"
	"time"
)

// UDPSocket is the subset of *net.UDPConn the landmark stream uses, so tests
// can run without a network.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory opens UDP sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory opens sockets with net.ListenUDP.
type RealUDPSocketFactory struct{}

// ListenUDP opens a UDP socket bound to laddr.
func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// MockUDPSocket serves datagrams pushed with Send. Reads with nothing queued
// return a timeout error after a short real-time wait.
type MockUDPSocket struct {
	packets chan []byte
	closed  chan struct{}
	once    sync.Once
	addr    *net.UDPAddr

	mu             sync.Mutex
	readBufferSize int
}

// NewMockUDPSocket returns a mock socket that can queue up to capacity
// datagrams.
func NewMockUDPSocket(capacity int) *MockUDPSocket {
	return &MockUDPSocket{
		packets: make(chan []byte, capacity),
		closed:  make(chan struct{}),
		addr:    &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4243},
	}
}

// Send queues a datagram for the next read.
func (m *MockUDPSocket) Send(b []byte) {
	m.packets <- append([]byte(nil), b...)
}

// ReadFromUDP returns the next queued datagram.
func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	select {
	case <-m.closed:
		return 0, nil, net.ErrClosed
	default:
	}
	select {
	case p := <-m.packets:
		return copy(b, p), m.addr, nil
	case <-m.closed:
		return 0, nil, net.ErrClosed
	case <-time.After(5 * time.Millisecond):
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
}

// SetReadBuffer records the requested size.
func (m *MockUDPSocket) SetReadBuffer(bytes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBufferSize = bytes
	return nil
}

// ReadBufferSize returns the last size passed to SetReadBuffer.
func (m *MockUDPSocket) ReadBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readBufferSize
}

func (m *MockUDPSocket) SetReadDeadline(t time.Time) error { return nil }

// Close unblocks pending reads; later reads fail with net.ErrClosed.
func (m *MockUDPSocket) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

// Closed reports whether Close was called.
func (m *MockUDPSocket) Closed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

func (m *MockUDPSocket) LocalAddr() net.Addr { return m.addr }

// MockUDPSocketFactory hands out a fixed socket, or fails with Err.
type MockUDPSocketFactory struct {
	Socket *MockUDPSocket
	Err    error
}

func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Socket, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
