package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/flowjournal/flowpush/internal/model"
	"github.com/flowjournal/flowpush/internal/storage"
	"github.com/flowjournal/flowpush/internal/webpush"
)

// ErrInvalidSubscription is returned for malformed PushSubscription payloads.
var ErrInvalidSubscription = errors.New("invalid subscription")

const (
	p256dhLength = 65
	authLength   = 16
	maxEndpoint  = 2048
)

// SubscriptionService manages the browser subscriptions of each user.
type SubscriptionService struct {
	store storage.Store
}

// NewSubscriptionService constructs SubscriptionService.
func NewSubscriptionService(store storage.Store) *SubscriptionService {
	return &SubscriptionService{store: store}
}

// Subscribe validates and upserts the caller's subscription.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID string, req model.SubscribeRequest, userAgent string) (*model.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthorized
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}
	p256dh, err := webpush.Decode(req.Keys.P256dh)
	if err != nil || len(p256dh) != p256dhLength || p256dh[0] != 0x04 {
		return nil, fmt.Errorf("%w: keys.p256dh must be a %d-byte uncompressed P-256 point", ErrInvalidSubscription, p256dhLength)
	}
	auth, err := webpush.Decode(req.Keys.Auth)
	if err != nil || len(auth) != authLength {
		return nil, fmt.Errorf("%w: keys.auth must be %d bytes", ErrInvalidSubscription, authLength)
	}

	sub := &model.Subscription{
		UserID:    userID,
		Endpoint:  endpoint,
		P256dh:    webpush.Encode(p256dh),
		Auth:      webpush.Encode(auth),
		UserAgent: truncate(userAgent, 256),
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes the caller's subscription for endpoint. Removing an
// unknown endpoint is not an error.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, endpoint string) (bool, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return false, fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}
	return s.store.DeleteSubscriptionByEndpoint(ctx, userID, endpoint)
}

// UnsubscribeByID removes subscription id if userID owns it. A missing id
// reports false; another user's id is ErrForbidden.
func (s *SubscriptionService) UnsubscribeByID(ctx context.Context, userID, id string) (bool, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if sub.UserID != userID {
		return false, ErrForbidden
	}
	if err := s.store.DeleteSubscription(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// ListViews returns the caller's subscriptions with endpoints masked.
func (s *SubscriptionService) ListViews(ctx context.Context, userID string) ([]*model.SubscriptionView, error) {
	subs, err := s.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*model.SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, toView(sub))
	}
	return views, nil
}

// Count returns the number of stored subscriptions across all users.
func (s *SubscriptionService) Count(ctx context.Context) (int, error) {
	return s.store.CountSubscriptions(ctx)
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidSubscription)
	}
	if len(endpoint) > maxEndpoint {
		return fmt.Errorf("%w: endpoint is too long", ErrInvalidSubscription)
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an absolute https URL", ErrInvalidSubscription)
	}
	return nil
}

func toView(sub *model.Subscription) *model.SubscriptionView {
	if sub == nil {
		return nil
	}
	return &model.SubscriptionView{
		ID:        sub.ID,
		Origin:    originOf(sub.Endpoint),
		Endpoint:  maskEndpoint(sub.Endpoint),
		UserAgent: sub.UserAgent,
		CreatedAt: sub.CreatedAt,
	}
}

// originOf is the endpoint origin, or "invalid" when it cannot be parsed.
// Logs and views never carry the full capability URL.
func originOf(endpoint string) string {
	origin, err := webpush.Audience(endpoint)
	if err != nil {
		return "invalid"
	}
	return origin
}

// maskEndpoint keeps the origin and the first characters of the path.
func maskEndpoint(endpoint string) string {
	origin := originOf(endpoint)
	if origin == "invalid" {
		return maskValue(endpoint)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return origin
	}
	return origin + maskValue(u.EscapedPath())
}

func maskValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	length := len(runes)
	if length <= 8 {
		return value
	}
	masked := make([]rune, length-8)
	for i := range masked {
		masked[i] = '*'
	}
	return string(runes[:8]) + string(masked)
}

func truncate(value string, n int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}
