package notification

import (
	"context"
	"log/slog"
	"market-chat/domain"
)

// LogGateway only logs notifications. It is used when no SMTP host is set.
type LogGateway struct {
	log *slog.Logger
}

func NewLogGateway(log *slog.Logger) *LogGateway {
	return &LogGateway{log: log}
}

func (g *LogGateway) Notify(_ context.Context, address string, n domain.Notification) error {
	g.log.Info("Offline notification",
		"to", n.To,
		"address", address,
		"from", n.From,
		"message_id", n.MessageID,
		"preview", n.Preview)
	return nil
}
