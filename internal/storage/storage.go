package storage

import (
	"context"

	"github.com/flowjournal/flowpush/internal/model"
)

// Store abstracts subscription and delivery log persistence.
type Store interface {
	// UpsertSubscription inserts or refreshes the subscription keyed by
	// (UserID, Endpoint). ID and CreatedAt are filled in on return.
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, id string) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error)
	CountSubscriptions(ctx context.Context) (int, error)
	// DeleteSubscription is idempotent: removing a missing id is not an error.
	DeleteSubscription(ctx context.Context, id string) error
	// DeleteSubscriptionByEndpoint reports whether a row was removed.
	DeleteSubscriptionByEndpoint(ctx context.Context, userID, endpoint string) (bool, error)
	AppendDeliveryLog(ctx context.Context, log *model.DeliveryLog) error
	ListDeliveryLogs(ctx context.Context) ([]*model.DeliveryLog, error)
	Close() error
}
