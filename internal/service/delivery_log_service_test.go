package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/flowjournal/flowpush/internal/model"
	"github.com/flowjournal/flowpush/internal/storage/mocks"
)

var logNow = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

func sampleLogs() []*model.DeliveryLog {
	return []*model.DeliveryLog{
		{ID: 1, UserID: "u1", Origin: "https://fcm.googleapis.com", Status: model.DeliveryStatusSuccess, CreatedAt: logNow.AddDate(0, -1, 0)},
		{ID: 2, UserID: "u1", Origin: "https://fcm.googleapis.com", Status: model.DeliveryStatusFailed, CreatedAt: logNow.AddDate(0, 0, -1)},
		{ID: 3, UserID: "u2", Origin: "https://updates.push.services.mozilla.com", Status: model.DeliveryStatusGone, CreatedAt: logNow.Add(-2 * time.Hour)},
		{ID: 4, UserID: "u1", Origin: "https://fcm.googleapis.com", Status: model.DeliveryStatusSuccess, CreatedAt: logNow.Add(-time.Hour)},
		{ID: 5, UserID: "u2", Origin: "", Status: model.DeliveryStatusSuccess, CreatedAt: logNow.Add(-time.Hour)},
	}
}

func newLogService(t *testing.T) (*DeliveryLogService, *mocks.Store) {
	t.Helper()
	store := &mocks.Store{}
	store.On("ListDeliveryLogs", mock.Anything).Return(sampleLogs(), nil)
	svc := NewDeliveryLogService(store)
	svc.now = func() time.Time { return logNow }
	return svc, store
}

func TestQuery_FiltersAndPaginatesNewestFirst(t *testing.T) {
	svc, _ := newLogService(t)

	page, err := svc.Query(context.Background(), model.DeliveryLogFilter{UserID: "u1", PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Equal(t, 1, page.PageNum)
	require.Len(t, page.Data, 2)
	assert.Equal(t, uint64(4), page.Data[0].ID)
	assert.Equal(t, uint64(2), page.Data[1].ID)

	page, err = svc.Query(context.Background(), model.DeliveryLogFilter{UserID: "u1", PageSize: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, uint64(1), page.Data[0].ID)

	page, err = svc.Query(context.Background(), model.DeliveryLogFilter{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, 10, page.PageSize)

	page, err = svc.Query(context.Background(), model.DeliveryLogFilter{Status: "gone", PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, page.PageSize)
	require.Len(t, page.Data, 1)
	assert.Equal(t, uint64(3), page.Data[0].ID)
}

func TestQuery_SameTimestampOrdersByID(t *testing.T) {
	svc, _ := newLogService(t)
	begin := logNow.Add(-90 * time.Minute)

	page, err := svc.Query(context.Background(), model.DeliveryLogFilter{BeginTime: &begin})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, uint64(5), page.Data[0].ID)
	assert.Equal(t, uint64(4), page.Data[1].ID)
}

func TestCountByDateStatusOrigin(t *testing.T) {
	svc, _ := newLogService(t)
	ctx := context.Background()

	byMonth, err := svc.CountByDate(ctx, "month", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.KV{{Key: "2026-04", Value: 1}, {Key: "2026-05", Value: 4}}, byMonth)

	byDay, err := svc.CountByDate(ctx, "day", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.KV{{Key: "2026-04-10", Value: 1}, {Key: "2026-05-09", Value: 1}, {Key: "2026-05-10", Value: 3}}, byDay)

	byStatus, err := svc.CountByStatus(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.KV{
		{Key: model.DeliveryStatusFailed, Value: 1},
		{Key: model.DeliveryStatusGone, Value: 1},
		{Key: model.DeliveryStatusSuccess, Value: 3},
	}, byStatus)

	byOrigin, err := svc.CountByOrigin(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.KV{
		{Key: "https://fcm.googleapis.com", Value: 3},
		{Key: "https://updates.push.services.mozilla.com", Value: 1},
		{Key: "unknown", Value: 1},
	}, byOrigin)
}

func TestSummary_Today(t *testing.T) {
	svc, store := newLogService(t)
	store.On("CountSubscriptions", mock.Anything).Return(4, nil)

	s, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "running", s.Status)
	assert.Equal(t, 4, s.SubscriptionCount)
	assert.Equal(t, 2, s.TodaySent)
	assert.Equal(t, 1, s.TodayFailed)
}

func TestSummary_StoreError(t *testing.T) {
	store := &mocks.Store{}
	store.On("CountSubscriptions", mock.Anything).Return(0, errors.New("db down"))
	_, err := NewDeliveryLogService(store).Summary(context.Background())
	require.Error(t, err)
}
