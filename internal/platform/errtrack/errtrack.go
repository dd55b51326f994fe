// Package errtrack reports unexpected failures to Sentry. A Tracker built
// without a DSN is a no-op, so callers never need to nil-check it.
package errtrack

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

type Tracker struct {
	initialized bool
	logger      zerolog.Logger
}

// New initialises the global Sentry client when dsn is non-empty.
func New(dsn, environment string, logger zerolog.Logger) *Tracker {
	logger = logger.With().Str("component", "errtrack").Logger()
	if dsn == "" {
		logger.Info().Msg("SENTRY_DSN not set, error tracking disabled")
		return &Tracker{logger: logger}
	}
	if environment == "" {
		environment = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		TracesSampleRate: 0.2,
	})
	if err != nil {
		logger.Error().Err(err).Msg("sentry initialization failed")
		return &Tracker{logger: logger}
	}

	logger.Info().Str("environment", environment).Msg("sentry initialized")
	return &Tracker{initialized: true, logger: logger}
}

// Disabled returns a Tracker that drops everything.
func Disabled() *Tracker {
	return &Tracker{logger: zerolog.Nop()}
}

func (t *Tracker) Enabled() bool { return t != nil && t.initialized }

// Capture sends err with the given tags attached to a fresh scope.
func (t *Tracker) Capture(err error, tags map[string]string) {
	if !t.Enabled() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic value for the given request.
func (t *Tracker) CapturePanic(r any, requestID string) {
	if !t.Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		if requestID != "" {
			scope.SetTag("request_id", requestID)
		}
		sentry.CurrentHub().Recover(fmt.Errorf("panic: %v", r))
	})
}

// Flush waits for buffered events to be delivered.
func (t *Tracker) Flush(timeout time.Duration) bool {
	if !t.Enabled() {
		return true
	}
	return sentry.Flush(timeout)
}
