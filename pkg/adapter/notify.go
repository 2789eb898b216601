package adapter

import (
	"context"

	"github.com/m-mizutani/pagetalk/pkg/utils/logging"
)

type NotifyKind string

const (
	NotifyInfo    NotifyKind = "info"
	NotifyWarning NotifyKind = "warning"
	NotifyError   NotifyKind = "error"
)

// Notifier is the fire-and-forget observability surface for fallback and
// warning events. Implementations must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, kind NotifyKind, message string)
}

// LogNotifier emits notifications through the context logger.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, kind NotifyKind, message string) {
	logger := logging.From(ctx)
	switch kind {
	case NotifyWarning:
		logger.Warn(message)
	case NotifyError:
		logger.Error(message)
	default:
		logger.Info(message)
	}
}

// FuncNotifier adapts a function to the Notifier interface.
type FuncNotifier func(ctx context.Context, kind NotifyKind, message string)

func (f FuncNotifier) Notify(ctx context.Context, kind NotifyKind, message string) {
	f(ctx, kind, message)
}
