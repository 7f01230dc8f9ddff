// Package reporting forwards failures that are swallowed rather than
// returned (webhook processing, advisory upstream checks) to Sentry.
package reporting

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/vaultpay/backend/internal/config"
)

type InfoData map[string]interface{}

type Reporter struct {
	enabled bool
}

// Init configures the global Sentry client. An empty DSN yields a reporter
// that drops everything.
func Init(cfg config.SentryConfig) (*Reporter, error) {
	if cfg.DSN == "" {
		return &Reporter{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		return &Reporter{}, err
	}
	return &Reporter{enabled: true}, nil
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// Send captures title with data attached as extras. It never blocks the caller.
func (r *Reporter) Send(title string, data InfoData, level sentry.Level) {
	if !r.Enabled() {
		return
	}
	go func(localHub *sentry.Hub) {
		localHub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetLevel(level)
			scope.SetExtras(data)
		})
		localHub.CaptureMessage(title)
	}(sentry.CurrentHub().Clone())
}

// Error is Send at error level with err attached.
func (r *Reporter) Error(title string, err error, data InfoData) {
	if data == nil {
		data = InfoData{}
	}
	data["error"] = err.Error()
	r.Send(title, data, sentry.LevelError)
}

func (r *Reporter) Flush() {
	if r.Enabled() {
		sentry.Flush(2 * time.Second)
	}
}
