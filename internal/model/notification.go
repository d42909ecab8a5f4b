package model

// NotifyRequest is the caller's intent. Empty fields take defaults.
type NotifyRequest struct {
	UserID string         `json:"userId"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Icon   string         `json:"icon"`
	Badge  string         `json:"badge"`
	Data   map[string]any `json:"data"`
}

// Payload is the JSON document the service worker receives after decryption.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Data  map[string]any `json:"data"`
}

// DeliveryResult summarises one subscription's attempt.
type DeliveryResult struct {
	SubscriptionID string `json:"subscriptionId"`
	Origin         string `json:"origin"`
	Status         string `json:"status"`
	StatusCode     int    `json:"statusCode,omitempty"`
	Message        string `json:"message,omitempty"`
}

// NotifyResult is the aggregate returned to the caller.
type NotifyResult struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	SentCount  int               `json:"sentCount"`
	TotalCount int               `json:"totalCount"`
	Results    []*DeliveryResult `json:"-"`
}
