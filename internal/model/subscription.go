package model

import "time"

// Subscription is a browser PushSubscription registered by a user.
type Subscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SubscriptionKeys mirrors PushSubscription.toJSON().keys.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscribeRequest is the body browsers post after PushManager.subscribe.
type SubscribeRequest struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// UnsubscribeRequest identifies the subscription to drop.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// SubscriptionView hides key material when returning subscriptions to clients.
type SubscriptionView struct {
	ID        string    `json:"id"`
	Origin    string    `json:"origin"`
	Endpoint  string    `json:"endpoint"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
