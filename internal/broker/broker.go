package broker

import (
	"context"

	"quorum/internal/model"
)

type MailboxStats struct {
	UserID      string `json:"user_id"`
	Subscribers int    `json:"subscribers"`
	Buffered    int    `json:"buffered"`
	Dropped     int64  `json:"dropped"`
}

// Broker fans live notifications out to a user's connected clients.
type Broker interface {
	SendDirect(ctx context.Context, n model.Notification) error
	// Subscribe returns a channel of notifications for userID and a cancel
	// func that closes it.
	Subscribe(ctx context.Context, userID string) (<-chan model.Notification, func(), error)
	Stats(ctx context.Context, userID string) (MailboxStats, error)
}
