package model

// Summary is the operator dashboard headline.
type Summary struct {
	Status            string `json:"status"`
	SubscriptionCount int    `json:"subscriptionCount"`
	TodaySent         int    `json:"todaySent"`
	TodayFailed       int    `json:"todayFailed"`
}

// KV is a labelled count used by the chart endpoints.
type KV struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}
