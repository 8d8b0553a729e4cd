package transport

import "github.com/pkg/errors"

// Sentinel errors mirroring spec.md §4.1's send/recv result taxonomy.
var (
	// ErrWouldBlock is returned by a non-blocking Send when the outbound
	// queue is saturated. The caller drops the message; this is the
	// real-time backpressure policy of spec.md §4.1/§7.
	ErrWouldBlock = errors.New("transport: would block")

	// ErrTimeout is returned when an operation exceeds its configured
	// deadline without completing.
	ErrTimeout = errors.New("transport: timeout")

	// ErrClosed is returned once the underlying connection has been
	// torn down; the owning process should begin shutdown.
	ErrClosed = errors.New("transport: closed")

	// ErrNoPeers is returned by Send/EnsureSend on a push socket with no
	// connected pull-side peers (e.g. before any worker has dialed).
	ErrNoPeers = errors.New("transport: no connected peers")
)
