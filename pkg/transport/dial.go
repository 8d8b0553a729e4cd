package transport

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
)

// dialBackoff is the reconnect-with-grace-period idea from the teacher's
// connman.ConnectionManager, generalized with retry-go: on "connection
// refused", "try again" or "i/o timeout", wait 1s and retry, unbounded, until ctx is
// cancelled (SIGINT) or a connection succeeds.
func dialBackoff(ctx context.Context, addr string, log zerolog.Logger) (net.Conn, error) {
	return retry.DoWithData(func() (net.Conn, error) {
		d := net.Dialer{Timeout: 5 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil && isRetryableDialError(err) {
			log.Debug().Err(err).Str("addr", addr).Msg("dial failed, retrying")
			return nil, err
		}
		return conn, err
	},
		retry.Context(ctx),
		retry.Attempts(0), // unbounded: only ctx cancellation or a non-retryable error stops it
		retry.Delay(1*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryableDialError),
	)
}

// isRetryableDialError matches spec.md §4.1's "connection refused" /
// "try again" dial-retry trigger, and also a dial "i/o timeout".
func isRetryableDialError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "try again") ||
		strings.Contains(msg, "i/o timeout")
}
