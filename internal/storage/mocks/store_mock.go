// Package mocks holds testify mocks for storage interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/flowjournal/flowpush/internal/model"
	"github.com/flowjournal/flowpush/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is a testify mock of storage.Store.
type Store struct {
	mock.Mock
}

func (m *Store) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *Store) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*model.Subscription)
	return sub, args.Error(1)
}

func (m *Store) ListSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	args := m.Called(ctx, userID)
	subs, _ := args.Get(0).([]*model.Subscription)
	return subs, args.Error(1)
}

func (m *Store) CountSubscriptions(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *Store) DeleteSubscription(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *Store) DeleteSubscriptionByEndpoint(ctx context.Context, userID, endpoint string) (bool, error) {
	args := m.Called(ctx, userID, endpoint)
	return args.Bool(0), args.Error(1)
}

func (m *Store) AppendDeliveryLog(ctx context.Context, log *model.DeliveryLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *Store) ListDeliveryLogs(ctx context.Context) ([]*model.DeliveryLog, error) {
	args := m.Called(ctx)
	logs, _ := args.Get(0).([]*model.DeliveryLog)
	return logs, args.Error(1)
}

func (m *Store) Close() error {
	return m.Called().Error(0)
}
