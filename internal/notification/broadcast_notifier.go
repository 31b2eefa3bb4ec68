package notification

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/models"
)

// BroadcastNotifier publishes notifications on the recipient's Pub/Sub
// channel for connected clients.
type BroadcastNotifier struct {
	store cache.Store
}

func NewBroadcastNotifier(store cache.Store) *BroadcastNotifier {
	return &BroadcastNotifier{store: store}
}

// Channel returns the Pub/Sub channel of a user.
func Channel(userID string) string {
	return cache.Key("notifications", "user", userID)
}

func (n *BroadcastNotifier) Notify(ctx context.Context, recipient models.User, notif models.Notification) error {
	payload, err := json.Marshal(notif)
	if err != nil {
		return errors.Wrap(err, "marshal broadcast payload")
	}
	return n.store.Publish(ctx, Channel(recipient.ID), payload)
}

func (n *BroadcastNotifier) String() string {
	return "broadcast"
}
