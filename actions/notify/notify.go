// Package notify sends outbound notifications through the notifier wired
// into the engine services.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/convoflow/convoflow/runtime"
)

// SendConfig is the schema of notify.send.
type SendConfig struct {
	Channel string `json:"channel" validate:"required"`
	To      string `json:"to" validate:"required"`
	Subject string `json:"subject"`
	Body    string `json:"body" validate:"required"`
}

// Definitions returns the notify.* registry entries.
func Definitions() []runtime.ActionDefinition {
	return []runtime.ActionDefinition{
		{
			Name:      "notify.send",
			NewConfig: func() any { return &SendConfig{} },
			Run:       send,
		},
	}
}

func send(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*SendConfig)

	if ec.Services == nil || ec.Services.Notifier == nil {
		return nil, fmt.Errorf("notify.send: no notifier configured")
	}

	err := ec.Services.Notifier.Send(ctx, runtime.Notification{
		Channel: input.Channel,
		To:      input.To,
		Subject: input.Subject,
		Body:    input.Body,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{"result": true}, nil
}

// LogNotifier is the default notifier used when no real delivery backend is
// configured. It records the notification and succeeds.
type LogNotifier struct {
	L *slog.Logger
}

func (n *LogNotifier) Send(_ context.Context, msg runtime.Notification) error {
	l := n.L
	if l == nil {
		l = slog.Default()
	}
	l.Info("notification", "channel", msg.Channel, "to", msg.To, "subject", msg.Subject)
	return nil
}
