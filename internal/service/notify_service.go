package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/flowjournal/flowpush/internal/logging"
	"github.com/flowjournal/flowpush/internal/model"
	"github.com/flowjournal/flowpush/internal/storage"
	"github.com/flowjournal/flowpush/internal/webpush"
)

// ErrForbidden is returned when a caller targets another user's subscriptions.
var ErrForbidden = errors.New("forbidden")

const (
	DefaultTitle = "Time to log your activity!"
	DefaultBody  = "How are you feeling? Track your energy levels now."
	DefaultIcon  = "/pwa-192x192.png"

	noSubscriptionsMessage = "No subscriptions found"
)

// Pusher delivers one encrypted payload to one subscription.
type Pusher interface {
	Push(ctx context.Context, sub webpush.Subscription, payload []byte) webpush.Result
}

// NotifyService fans one notification out to every subscription of a user.
type NotifyService struct {
	store  storage.Store
	pusher Pusher
	log    logging.Logger
}

// NewNotifyService builds NotifyService.
func NewNotifyService(store storage.Store, pusher Pusher, log logging.Logger) *NotifyService {
	return &NotifyService{store: store, pusher: pusher, log: log}
}

// Notify sends req to all of callerID's subscriptions and waits for every
// attempt. Per-subscription failures are counted, never returned; subscriptions
// the push service reports gone are deleted.
func (s *NotifyService) Notify(ctx context.Context, callerID string, req model.NotifyRequest) (*model.NotifyResult, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, ErrUnauthorized
	}
	if req.UserID != "" && req.UserID != callerID {
		s.log.Warn(ctx, "cross-user notify rejected", "caller", callerID, "target", req.UserID)
		return nil, ErrForbidden
	}

	payload, err := json.Marshal(buildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	if len(payload) > webpush.MaxPlaintextLength {
		return nil, fmt.Errorf("%w: %d bytes", webpush.ErrPayloadTooLarge, len(payload))
	}

	subs, err := s.store.ListSubscriptions(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		s.log.Info(ctx, "no subscriptions for user", "user_id", callerID)
		return &model.NotifyResult{Success: false, Message: noSubscriptionsMessage}, nil
	}

	title := req.Title
	if title == "" {
		title = DefaultTitle
	}

	var (
		results = make([]*model.DeliveryResult, 0, len(subs))
		mu      sync.Mutex
		wg      sync.WaitGroup
		sent    int
	)
	wg.Add(len(subs))
	for _, sub := range subs {
		go func() {
			defer wg.Done()
			res := s.deliver(ctx, sub, payload, title)
			mu.Lock()
			if res.Status == model.DeliveryStatusSuccess {
				sent++
			}
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.log.Info(ctx, "notification fan-out finished", "user_id", callerID, "sent", sent, "total", len(subs))
	return &model.NotifyResult{
		Success:    true,
		Message:    fmt.Sprintf("Sent %d of %d notifications", sent, len(subs)),
		SentCount:  sent,
		TotalCount: len(subs),
		Results:    results,
	}, nil
}

func (s *NotifyService) deliver(ctx context.Context, sub *model.Subscription, payload []byte, title string) *model.DeliveryResult {
	origin := originOf(sub.Endpoint)
	res := s.pusher.Push(ctx, webpush.Subscription{
		Endpoint: sub.Endpoint,
		P256dh:   sub.P256dh,
		Auth:     sub.Auth,
	}, payload)

	out := &model.DeliveryResult{
		SubscriptionID: sub.ID,
		Origin:         origin,
		StatusCode:     res.StatusCode,
	}
	log := s.log.With("subscription_id", sub.ID, "origin", origin)

	switch res.Outcome {
	case webpush.OutcomeDelivered:
		out.Status = model.DeliveryStatusSuccess
		log.Debug(ctx, "push delivered", "status", res.StatusCode)
	case webpush.OutcomePermanent:
		out.Status = model.DeliveryStatusGone
		out.Message = errMessage(res.Err)
		log.Info(ctx, "subscription gone, removing", "status", res.StatusCode)
		if err := s.store.DeleteSubscription(ctx, sub.ID); err != nil {
			log.Error(ctx, "remove subscription failed", "err", err)
		}
	case webpush.OutcomeCryptoFailure:
		out.Status = model.DeliveryStatusError
		out.Message = errMessage(res.Err)
		log.Error(ctx, "push encryption failed", "err", res.Err)
	default:
		out.Status = model.DeliveryStatusFailed
		out.Message = errMessage(res.Err)
		log.Warn(ctx, "push failed", "status", res.StatusCode, "err", res.Err)
	}

	s.appendLog(ctx, sub, title, out)
	return out
}

func (s *NotifyService) appendLog(ctx context.Context, sub *model.Subscription, title string, res *model.DeliveryResult) {
	entry := &model.DeliveryLog{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Origin:         res.Origin,
		Title:          title,
		Status:         res.Status,
		StatusCode:     res.StatusCode,
		Message:        truncate(res.Message, 512),
	}
	if err := s.store.AppendDeliveryLog(ctx, entry); err != nil {
		s.log.Error(ctx, "append delivery log failed", "subscription_id", sub.ID, "err", err)
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func buildPayload(req model.NotifyRequest) model.Payload {
	p := model.Payload{
		Title: req.Title,
		Body:  req.Body,
		Icon:  req.Icon,
		Badge: req.Badge,
		Data:  req.Data,
	}
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if p.Body == "" {
		p.Body = DefaultBody
	}
	if p.Icon == "" {
		p.Icon = DefaultIcon
	}
	if p.Badge == "" {
		p.Badge = DefaultIcon
	}
	if p.Data == nil {
		p.Data = map[string]any{"url": "/"}
	}
	return p
}
