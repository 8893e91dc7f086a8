package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rigcam/internal/acquisition"
	"github.com/banshee-data/rigcam/internal/monitoring"
)

var logs = monitoring.NewStreams("[capture] ")

// maxDatagram fits a holistic result with 543 landmarks.
const maxDatagram = 64 * 1024

// UDPConfig configures a UDPStream.
type UDPConfig struct {
	// Address to listen on, e.g. "127.0.0.1:4243".
	Address string
	// RcvBuf is the requested OS receive buffer size; zero leaves the default.
	RcvBuf int
	// Buffer is the frame channel capacity. Defaults to 2.
	Buffer  int
	Sockets UDPSocketFactory
}

// UDPStream receives estimator result documents as JSON datagrams from a
// tracking sidecar that owns the camera. It becomes ready on the first
// decodable datagram. Frames that arrive while the channel is full are
// dropped.
type UDPStream struct {
	cfg    UDPConfig
	frames chan acquisition.Frame

	ready atomic.Bool
	seq   uint64

	received, malformed, dropped atomic.Uint64

	mu     sync.Mutex
	sock   UDPSocket
	cancel context.CancelFunc
	done   chan struct{}
}

var _ acquisition.Source = (*UDPStream)(nil)

// NewUDPStream returns an unstarted stream.
func NewUDPStream(cfg UDPConfig) *UDPStream {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 2
	}
	if cfg.Sockets == nil {
		cfg.Sockets = RealUDPSocketFactory{}
	}
	return &UDPStream{cfg: cfg, frames: make(chan acquisition.Frame, cfg.Buffer)}
}

// Start binds the socket and begins receiving in the background.
func (s *UDPStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("capture: stream already started")
	}

	addr, err := net.ResolveUDPAddr("udp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	sock, err := s.cfg.Sockets.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if s.cfg.RcvBuf > 0 {
		if err := sock.SetReadBuffer(s.cfg.RcvBuf); err != nil {
			logs.Opsf("failed to set UDP receive buffer size to %d: %v", s.cfg.RcvBuf, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.sock, s.cancel, s.done = sock, cancel, make(chan struct{})
	go s.listen(ctx, sock, s.done)
	logs.Diagf("landmark stream listening on %s", sock.LocalAddr())
	return nil
}

// LocalAddr returns the bound address, or nil before Start.
func (s *UDPStream) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sock == nil {
		return nil
	}
	return s.sock.LocalAddr()
}

func (s *UDPStream) listen(ctx context.Context, sock UDPSocket, done chan struct{}) {
	defer close(done)
	defer close(s.frames)

	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return
		}
		// socket deadlines are wall clock; short so cancellation is noticed
		sock.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := sock.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() == nil {
				logs.Opsf("landmark stream read error: %v", err)
			}
			return
		}
		s.handle(buf[:n], addr)
	}
}

func (s *UDPStream) handle(packet []byte, addr *net.UDPAddr) {
	s.received.Add(1)
	doc := bytes.TrimSpace(packet)
	if len(doc) == 0 || doc[0] != '{' || !json.Valid(doc) {
		s.malformed.Add(1)
		logs.Diagf("landmark stream: malformed datagram from %v (%d bytes)", addr, len(packet))
		return
	}
	s.ready.Store(true)
	s.seq++
	f := acquisition.Frame{Seq: s.seq, Payload: append(json.RawMessage(nil), doc...)}
	select {
	case s.frames <- f:
	default:
		s.dropped.Add(1)
	}
}

// Ready reports whether a decodable datagram has arrived.
func (s *UDPStream) Ready() bool { return s.ready.Load() }

// Frames is closed when the stream stops.
func (s *UDPStream) Frames() <-chan acquisition.Frame { return s.frames }

// Stop closes the socket and waits for the receiver to exit. It is safe to
// call more than once.
func (s *UDPStream) Stop() error {
	s.mu.Lock()
	cancel, done, sock := s.cancel, s.done, s.sock
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	err := sock.Close()
	<-done
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// UDPStats are the stream's datagram counters.
type UDPStats struct {
	Received  uint64 `json:"received"`
	Malformed uint64 `json:"malformed"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns the datagram counters.
func (s *UDPStream) Stats() UDPStats {
	return UDPStats{
		Received:  s.received.Load(),
		Malformed: s.malformed.Load(),
		Dropped:   s.dropped.Load(),
	}
}
