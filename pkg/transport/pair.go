package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pipeless-go/pipeless/pkg/message"
	"github.com/rs/zerolog"
)

// PairListener is the listening side of a bidirectional metadata pair
// socket: Output's InputOutputSocket (Input dials in and pushes
// Caps/Tags/Eos), Input's WorkerReadySocket (every Worker dials in
// and pushes one "ready" marker), and Output's fan-in side of
// OutputPush (every Worker dials in and pushes processed frames). It
// accepts any number of connections
// and merges their incoming messages into one Recv queue.
type PairListener struct {
	ln        net.Listener
	queueSize int
	log       zerolog.Logger

	mu    sync.Mutex
	peers []*peerConn

	recvCh chan message.Message
}

// ListenPair starts a PairListener bound to addr.
func ListenPair(addr string, queueSize int, log zerolog.Logger) (*PairListener, error) {
	if queueSize <= 0 {
		queueSize = DefaultFrameQueueSize
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &PairListener{
		ln:        ln,
		queueSize: queueSize,
		log:       log.With().Str("socket", "pair-listen").Str("addr", addr).Logger(),
		recvCh:    make(chan message.Message, queueSize),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *PairListener) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		peer := newPeerConn(conn, s.queueSize, s.log)
		s.mu.Lock()
		s.peers = append(s.peers, peer)
		s.mu.Unlock()
		go s.readLoop(peer)
	}
}

func (s *PairListener) readLoop(peer *peerConn) {
	for {
		m, err := readFrame(peer.conn)
		if err != nil {
			peer.Close()
			return
		}
		select {
		case s.recvCh <- m:
		case <-peer.done:
			return
		}
	}
}

// Recv is non-blocking: it returns (m, true) on a queued message and
// (nil, false) on empty.
func (s *PairListener) Recv() (message.Message, bool) {
	select {
	case m := <-s.recvCh:
		return m, true
	default:
		return nil, false
	}
}

// NPeers reports the number of currently connected dialers.
func (s *PairListener) NPeers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.peers {
		if !p.IsClosed() {
			n++
		}
	}
	return n
}

func (s *PairListener) Close() error {
	s.mu.Lock()
	peers := s.peers
	s.peers = nil
	s.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
	return s.ln.Close()
}

func (s *PairListener) Addr() net.Addr { return s.ln.Addr() }

// PairDialer is the dialing side of a bidirectional metadata pair socket:
// Input dials Output's InputOutputSocket to push Caps/Tags/Eos; a Worker
// dials Input's WorkerReadySocket to push its one-shot "ready" marker,
// and dials Output's OutputPush listener to push processed frames.
type PairDialer struct {
	peer   *peerConn
	recvCh chan message.Message
	log    zerolog.Logger
}

// DialPair connects a PairDialer to addr with backoff (spec.md §4.1).
func DialPair(ctx context.Context, addr string, queueSize int, log zerolog.Logger) (*PairDialer, error) {
	if queueSize <= 0 {
		queueSize = DefaultFrameQueueSize
	}
	conn, err := dialBackoff(ctx, addr, log)
	if err != nil {
		return nil, err
	}
	s := &PairDialer{
		peer:   newPeerConn(conn, queueSize, log),
		recvCh: make(chan message.Message, queueSize),
		log:    log.With().Str("socket", "pair-dial").Str("addr", addr).Logger(),
	}
	go s.readLoop()
	return s, nil
}

func (s *PairDialer) readLoop() {
	for {
		m, err := readFrame(s.peer.conn)
		if err != nil {
			close(s.recvCh)
			return
		}
		select {
		case s.recvCh <- m:
		case <-s.peer.done:
			return
		}
	}
}

// Send is a non-blocking send; see spec.md §4.1.
func (s *PairDialer) Send(m message.Message) error {
	parts, err := message.EncodeParts(m)
	if err != nil {
		return err
	}
	return s.peer.trySend(parts)
}

// EnsureSend makes one blocking send that waits up to timeout for queue
// space; used for Caps/Tags/Eos and the worker-ready marker. It returns
// ErrTimeout once timeout elapses and does not retry after that.
func (s *PairDialer) EnsureSend(m message.Message, timeout time.Duration) error {
	parts, err := message.EncodeParts(m)
	if err != nil {
		return err
	}
	return s.peer.blockingSend(parts, timeout)
}

// Recv is non-blocking.
func (s *PairDialer) Recv() (message.Message, bool, error) {
	select {
	case m, ok := <-s.recvCh:
		if !ok {
			return nil, false, ErrClosed
		}
		return m, true, nil
	default:
		return nil, false, nil
	}
}

func (s *PairDialer) Close() error {
	return s.peer.Close()
}
