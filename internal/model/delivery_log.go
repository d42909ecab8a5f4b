package model

import "time"

const (
	DeliveryStatusSuccess = "SUCCESS"
	DeliveryStatusFailed  = "FAILED"
	DeliveryStatusGone    = "GONE"
	DeliveryStatusError   = "ERROR"
)

// DeliveryLog tracks each push attempt.
type DeliveryLog struct {
	ID             uint64    `json:"id"`
	UserID         string    `json:"userId"`
	SubscriptionID string    `json:"subscriptionId"`
	Origin         string    `json:"origin"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	StatusCode     int       `json:"statusCode"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DeliveryLogFilter describes query parameters for log searching.
type DeliveryLogFilter struct {
	UserID    string
	Origin    string
	Status    string
	BeginTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}
