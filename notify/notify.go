// Package notify sends short operator messages about trades and basket
// events. Sending never blocks the manager loop.
package notify

import (
	"context"

	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Nop struct{}

func (Nop) Notify(context.Context, string) {}

// Log writes messages to a zap logger.
type Log struct {
	L *zap.Logger
}

func (l Log) Notify(_ context.Context, text string) {
	if l.L == nil {
		return
	}
	l.L.Info("notify", zap.String("text", text))
}

// Multi fans out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) {
	for _, n := range m {
		n.Notify(ctx, text)
	}
}
