package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pipeless-go/pipeless/pkg/message"
	"github.com/rs/zerolog"
)

// PushSocket is the listener side of the InputPush/InputPull pair
// (OutputPush is a PairListener instead, since there the Workers are
// the senders): it accepts connections from one or more pull-side peers
// and fans outbound messages to them round-robin, per spec.md §4.1.
type PushSocket struct {
	ln        net.Listener
	queueSize int
	log       zerolog.Logger

	mu    sync.Mutex
	peers []*peerConn
	next  int
}

// Listen starts a PushSocket bound to addr.
func Listen(addr string, queueSize int, log zerolog.Logger) (*PushSocket, error) {
	if queueSize <= 0 {
		queueSize = DefaultFrameQueueSize
	}
	if queueSize > MaxQueueSize {
		queueSize = MaxQueueSize
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &PushSocket{ln: ln, queueSize: queueSize, log: log.With().Str("socket", "push").Str("addr", addr).Logger()}
	go s.acceptLoop()
	return s, nil
}

func (s *PushSocket) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		peer := newPeerConn(conn, s.queueSize, s.log)
		s.mu.Lock()
		s.peers = append(s.peers, peer)
		s.mu.Unlock()
		s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("peer connected")
	}
}

// NPeers returns the number of currently connected pull-side peers.
func (s *PushSocket) NPeers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	return len(s.peers)
}

func (s *PushSocket) reapLocked() {
	alive := s.peers[:0]
	for _, p := range s.peers {
		if !p.IsClosed() {
			alive = append(alive, p)
		}
	}
	s.peers = alive
}

// pick selects the next live peer round-robin; returns nil if none.
func (s *PushSocket) pick() *peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	if len(s.peers) == 0 {
		return nil
	}
	s.next = s.next % len(s.peers)
	p := s.peers[s.next]
	s.next++
	return p
}

// Send is a non-blocking fan-out send to the next peer in round-robin
// order: it returns ErrWouldBlock (and the caller should drop the
// message) if that peer's queue is saturated, and ErrNoPeers if nobody
// is connected yet.
func (s *PushSocket) Send(m message.Message) error {
	parts, err := message.EncodeParts(m)
	if err != nil {
		return err
	}
	peer := s.pick()
	if peer == nil {
		return ErrNoPeers
	}
	return peer.trySend(parts)
}

// EnsureSend delivers m to the next peer in round-robin order using a
// blocking send with retry, for messages that must not be lost (Eos,
// Caps, Tags per spec.md §4.1). It retries peer selection until a live
// peer accepts the message or the deadline passes.
func (s *PushSocket) EnsureSend(m message.Message, timeout time.Duration) error {
	parts, err := message.EncodeParts(m)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		peer := s.pick()
		if peer == nil {
			if time.Now().After(deadline) {
				return ErrNoPeers
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = time.Millisecond
		}
		err := peer.blockingSend(parts, remaining)
		if err == nil {
			return nil
		}
		if err == ErrClosed {
			continue // peer died mid-send; reap and try the next one
		}
		return err
	}
}

// BroadcastEOS delivers Eos to n logical workers (one EnsureSend call
// per worker), matching spec.md §4.3 step 5's "loop n_workers times,
// each guaranteed delivered": round-robin fan-out means n successive
// EnsureSend calls reach n distinct connected workers.
func (s *PushSocket) BroadcastEOS(n int, timeout time.Duration) error {
	for i := 0; i < n; i++ {
		if err := s.EnsureSend(Eos{}, timeout); err != nil {
			return err
		}
	}
	return nil
}

// Eos is a convenience re-export so callers don't need to import
// pkg/message just to broadcast end-of-stream.
type Eos = message.Eos

// Close tears down the listener and every connected peer.
func (s *PushSocket) Close() error {
	s.mu.Lock()
	peers := s.peers
	s.peers = nil
	s.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
	return s.ln.Close()
}

// Addr returns the socket's bound address.
func (s *PushSocket) Addr() net.Addr { return s.ln.Addr() }
