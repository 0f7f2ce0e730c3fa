package internal

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
)

// GetSentryHubFromContextOrDefault is a version of sentry.GetHubFromContext which
// automatically falls back to sentry.CurrentHub if the given context has not been
// attached a hub.
//
// The returned pointer is always nonnil.
func GetSentryHubFromContextOrDefault(ctx context.Context) *sentry.Hub {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return hub
}

// ReportPanic sends a value recovered from a host callback to sentry, tagged with where it
// was being delivered.
func ReportPanic(ctx context.Context, where string, recovered interface{}) {
	hub := GetSentryHubFromContextOrDefault(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("delivery", where)
		if err, ok := recovered.(error); ok {
			hub.CaptureException(err)
			return
		}
		hub.CaptureException(fmt.Errorf("panic: %v", recovered))
	})
}
