// Package transport implements the five named message sockets of
// spec.md §4.1 over raw TCP: bounded-queue push/pull for frame fan-out,
// and bidirectional pairs for the caps/tags/EOS and worker-ready
// channels. Receive is always non-blocking; frame sends are non-blocking
// (drop on a full queue) while EnsureSend waits up to its timeout for a
// blocking send to be accepted. EnsureSend does not retry past that
// timeout: it returns ErrTimeout (or ErrClosed if the peer closes).
package transport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pipeless-go/pipeless/pkg/message"
	"github.com/rs/zerolog"
)

const (
	// DefaultFrameQueueSize is 180 (3s at 60fps), per spec.md §4.1.
	DefaultFrameQueueSize = 180

	// MaxQueueSize is the hard cap on any socket's queue, per spec.md §4.1.
	MaxQueueSize = 8192

	// DefaultFrameTimeout is the default timeout for frame sockets.
	DefaultFrameTimeout = 500 * time.Millisecond

	// DefaultMetaTimeout is the default timeout for metadata/ready sockets.
	DefaultMetaTimeout = 1000 * time.Millisecond

	maxFrameBytes = 64 << 20 // sanity cap against a corrupt length prefix
)

// writeFrame writes one length-prefixed message as a scatter/gather
// write, avoiding a copy of the pixel payload (message.Parts.Payload).
func writeFrame(w io.Writer, parts message.Parts) error {
	total := 1 + len(parts.Header) + len(parts.Payload)
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(total))

	bufs := net.Buffers{
		lenPrefix[:],
		[]byte{byte(parts.Kind)},
		parts.Header,
	}
	if len(parts.Payload) > 0 {
		bufs = append(bufs, parts.Payload)
	}

	if conn, ok := w.(net.Conn); ok {
		_, err := bufs.WriteTo(conn)
		return err
	}
	for _, b := range bufs {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// readFrame reads one length-prefixed message body (kind + header +
// payload, as written by writeFrame) and decodes it.
func readFrame(r io.Reader) (message.Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameBytes {
		return nil, io.ErrShortBuffer
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return message.Decode(body)
}

// peerConn is one accepted or dialed TCP connection paired with its send
// queue and a background write pump. Shared by push/pull/pair sockets.
type peerConn struct {
	conn   net.Conn
	sendCh chan message.Parts
	done   chan struct{}
	log    zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newPeerConn(conn net.Conn, queueSize int, log zerolog.Logger) *peerConn {
	p := &peerConn{
		conn:   conn,
		sendCh: make(chan message.Parts, queueSize),
		done:   make(chan struct{}),
		log:    log,
	}
	go p.writePump()
	return p
}

func (p *peerConn) writePump() {
	for {
		select {
		case parts, ok := <-p.sendCh:
			if !ok {
				return
			}
			if err := writeFrame(p.conn, parts); err != nil {
				p.log.Debug().Err(err).Msg("peer write failed, closing connection")
				p.Close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// trySend enqueues parts without blocking; returns ErrWouldBlock if the
// queue is saturated.
func (p *peerConn) trySend(parts message.Parts) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.sendCh <- parts:
		return nil
	default:
		return ErrWouldBlock
	}
}

// blockingSend enqueues parts, waiting up to timeout; used by EnsureSend.
func (p *peerConn) blockingSend(parts message.Parts, timeout time.Duration) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case p.sendCh <- parts:
		return nil
	case <-p.done:
		return ErrClosed
	case <-t.C:
		return ErrTimeout
	}
}

func (p *peerConn) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

func (p *peerConn) IsClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
