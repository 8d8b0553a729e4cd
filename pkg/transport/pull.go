package transport

import (
	"context"
	"time"

	"github.com/pipeless-go/pipeless/pkg/message"
	"github.com/rs/zerolog"
)

// PullSocket is the dialer side of the InputPush/InputPull pair (InputPull
// used by a Worker; Output receives frames through a PairListener): it
// dials the corresponding
// PushSocket's listener and buffers received messages for non-blocking
// Recv, per spec.md §4.1.
type PullSocket struct {
	conn      *peerConn
	recvCh    chan message.Message
	queueSize int
	log       zerolog.Logger
}

// Dial connects a PullSocket to addr, retrying with backoff until
// connected or ctx is cancelled (spec.md §4.1 dial-with-backoff).
func Dial(ctx context.Context, addr string, queueSize int, log zerolog.Logger) (*PullSocket, error) {
	if queueSize <= 0 {
		queueSize = DefaultFrameQueueSize
	}
	if queueSize > MaxQueueSize {
		queueSize = MaxQueueSize
	}
	conn, err := dialBackoff(ctx, addr, log)
	if err != nil {
		return nil, err
	}
	s := &PullSocket{
		conn:      newPeerConn(conn, queueSize, log),
		recvCh:    make(chan message.Message, queueSize),
		queueSize: queueSize,
		log:       log.With().Str("socket", "pull").Str("addr", addr).Logger(),
	}
	go s.readLoop()
	return s, nil
}

func (s *PullSocket) readLoop() {
	for {
		m, err := readFrame(s.conn.conn)
		if err != nil {
			s.log.Debug().Err(err).Msg("pull read loop ending")
			s.conn.Close()
			close(s.recvCh)
			return
		}
		select {
		case s.recvCh <- m:
		case <-s.conn.done:
			return
		}
	}
}

// Recv is non-blocking: it returns (m, true) if a message is queued,
// (nil, false) on empty, and ErrClosed once the peer has torn down.
func (s *PullSocket) Recv() (message.Message, bool, error) {
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

// RecvTimeout blocks up to timeout waiting for a message; used by the
// one-shot worker-ready barrier and similar bounded waits.
func (s *PullSocket) RecvTimeout(timeout time.Duration) (message.Message, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m, ok := <-s.recvCh:
		if !ok {
			return nil, ErrClosed
		}
		return m, nil
	case <-t.C:
		return nil, ErrTimeout
	}
}

func (s *PullSocket) Close() error {
	return s.conn.Close()
}
