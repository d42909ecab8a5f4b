package service

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/flowjournal/flowpush/internal/model"
	"github.com/flowjournal/flowpush/internal/storage"
)

// DeliveryLogService provides filtering and statistics over delivery attempts.
type DeliveryLogService struct {
	store storage.Store
	now   func() time.Time
}

// NewDeliveryLogService builds the delivery log service.
func NewDeliveryLogService(store storage.Store) *DeliveryLogService {
	return &DeliveryLogService{store: store, now: time.Now}
}

// Query returns paginated logs, newest first.
func (s *DeliveryLogService) Query(ctx context.Context, filter model.DeliveryLogFilter) (*model.DeliveryLogPage, error) {
	logs, err := s.filteredLogs(ctx, filter)
	if err != nil {
		return nil, err
	}

	total := len(logs)
	if filter.PageSize <= 0 {
		filter.PageSize = 10
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	start := min((filter.Page-1)*filter.PageSize, total)
	end := min(start+filter.PageSize, total)
	pages := (total + filter.PageSize - 1) / filter.PageSize

	return &model.DeliveryLogPage{
		Data:     logs[start:end],
		Total:    total,
		Pages:    pages,
		PageNum:  filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// CountByDate aggregates logs per day, month or year.
func (s *DeliveryLogService) CountByDate(ctx context.Context, dateType string, begin, end *time.Time) ([]model.KV, error) {
	logs, err := s.filteredLogs(ctx, model.DeliveryLogFilter{BeginTime: begin, EndTime: end})
	if err != nil {
		return nil, err
	}

	layout := "2006-01-02"
	switch strings.ToLower(dateType) {
	case "year":
		layout = "2006"
	case "month":
		layout = "2006-01"
	}

	counter := make(map[string]int)
	for _, log := range logs {
		counter[log.CreatedAt.UTC().Format(layout)]++
	}
	return mapToKV(counter), nil
}

// CountByStatus aggregates by delivery status.
func (s *DeliveryLogService) CountByStatus(ctx context.Context, begin, end *time.Time) ([]model.KV, error) {
	logs, err := s.filteredLogs(ctx, model.DeliveryLogFilter{BeginTime: begin, EndTime: end})
	if err != nil {
		return nil, err
	}
	counter := make(map[string]int)
	for _, log := range logs {
		status := log.Status
		if status == "" {
			status = "UNKNOWN"
		}
		counter[status]++
	}
	return mapToKV(counter), nil
}

// CountByOrigin aggregates by push service origin (FCM, Mozilla autopush, APNs web...).
func (s *DeliveryLogService) CountByOrigin(ctx context.Context, begin, end *time.Time) ([]model.KV, error) {
	logs, err := s.filteredLogs(ctx, model.DeliveryLogFilter{BeginTime: begin, EndTime: end})
	if err != nil {
		return nil, err
	}
	counter := make(map[string]int)
	for _, log := range logs {
		origin := strings.TrimSpace(log.Origin)
		if origin == "" {
			origin = "unknown"
		}
		counter[origin]++
	}
	return mapToKV(counter), nil
}

// Summary reports today's delivery totals and the stored subscription count.
func (s *DeliveryLogService) Summary(ctx context.Context) (*model.Summary, error) {
	count, err := s.store.CountSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	logs, err := s.filteredLogs(ctx, model.DeliveryLogFilter{BeginTime: &todayStart})
	if err != nil {
		return nil, err
	}

	summary := &model.Summary{Status: "running", SubscriptionCount: count}
	for _, log := range logs {
		if strings.EqualFold(log.Status, model.DeliveryStatusSuccess) {
			summary.TodaySent++
		} else {
			summary.TodayFailed++
		}
	}
	return summary, nil
}

func (s *DeliveryLogService) filteredLogs(ctx context.Context, filter model.DeliveryLogFilter) ([]*model.DeliveryLog, error) {
	all, err := s.store.ListDeliveryLogs(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]*model.DeliveryLog, 0, len(all))
	for _, log := range all {
		if filter.UserID != "" && log.UserID != filter.UserID {
			continue
		}
		if filter.Origin != "" && !strings.EqualFold(log.Origin, filter.Origin) {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(log.Status, filter.Status) {
			continue
		}
		if filter.BeginTime != nil && log.CreatedAt.Before(filter.BeginTime.UTC()) {
			continue
		}
		if filter.EndTime != nil && log.CreatedAt.After(filter.EndTime.UTC()) {
			continue
		}
		matches = append(matches, log)
	}
	slices.SortStableFunc(matches, func(a, b *model.DeliveryLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return matches, nil
}

func mapToKV(counter map[string]int) []model.KV {
	result := make([]model.KV, 0, len(counter))
	for k, v := range counter {
		result = append(result, model.KV{Key: k, Value: v})
	}
	slices.SortFunc(result, func(a, b model.KV) int { return strings.Compare(a.Key, b.Key) })
	return result
}
