// Package system carries the ambient concerns every process shares:
// structured logging setup, signal-aware shutdown, and the fatal-error
// exit path (spec.md §9), grounded on the error-reporting plumbing of
// the example corpus's janitor package.
package system

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/pipeless-go/pipeless/pkg/config"
)

const sentryFlushTimeout = 2 * time.Second

// NewLogger builds the process-wide zerolog.Logger per the configured
// level, using a console writer in the style the example corpus's CLI
// commands configure for local/interactive runs.
func NewLogger(level config.LogLevel, component string) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	logger := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	switch level {
	case config.LogLevelInfo:
		return logger.Level(zerolog.InfoLevel)
	case config.LogLevelWarn:
		return logger.Level(zerolog.WarnLevel)
	default:
		return logger.Level(zerolog.DebugLevel)
	}
}

// SentryOptions configures optional fatal-error reporting; DSN == ""
// disables it entirely.
type SentryOptions struct {
	DSN string
}

// InitSentry initializes sentry-go reporting if opts.DSN is set. It is
// a no-op otherwise, matching the janitor package's "only active if a
// DSN is configured" pattern.
func InitSentry(opts SentryOptions) error {
	if opts.DSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		EnableTracing:    false,
		TracesSampleRate: 0,
	})
}

// Exit codes for Fatal, per spec.md §9.
const (
	ExitOK             = 0
	ExitConfigError    = 1
	ExitPipelineError  = 2
	ExitTransportError = 3
	ExitHookError      = 4
)

// Fatal logs err, optionally reports it to Sentry, flushes, and exits
// the process with code. Every process entry point funnels unrecoverable
// errors through here (spec.md §9's single fatal-error path).
func Fatal(log zerolog.Logger, code int, err error) {
	log.Error().Err(err).Int("exit_code", code).Msg("fatal error")
	if sentry.CurrentHub().Client() != nil {
		sentry.CaptureException(err)
		sentry.Flush(sentryFlushTimeout)
	}
	os.Exit(code)
}

// SignalContext returns a context cancelled on SIGINT/SIGTERM, the
// shutdown trigger every process's main loop selects on.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
