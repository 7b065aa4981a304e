package delivery

import (
	"context"
	"log/slog"
)

// LogDeliverer is the development driver: it records the delivery instead
// of sending it anywhere.
type LogDeliverer struct {
	Logger *slog.Logger
}

func (d *LogDeliverer) Deliver(ctx context.Context, req Request) error {
	d.Logger.Info("delivered (log driver)",
		"ticket_id", req.TicketID,
		"user_id", req.UserID,
		"type", req.Type,
		"private", req.IsPrivate,
		"body_len", len(req.Body))
	return nil
}
