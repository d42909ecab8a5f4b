package webpush

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is how long the push service should queue an undelivered message.
	DefaultTTL = 24 * time.Hour
	// DefaultRequestTimeout bounds a single POST to a push service.
	DefaultRequestTimeout = 15 * time.Second

	maxErrorBody = 4096
)

// Urgency directly impacts battery life.
//
// https://www.rfc-editor.org/rfc/rfc8030.html#section-5.3
type Urgency string

const (
	UrgencyVeryLow Urgency = "very-low"
	UrgencyLow     Urgency = "low"
	UrgencyNormal  Urgency = "normal"
	UrgencyHigh    Urgency = "high"
)

// Valid reports whether u is one of the RFC 8030 values.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyVeryLow, UrgencyLow, UrgencyNormal, UrgencyHigh:
		return true
	}
	return false
}

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeTransient
	OutcomePermanent
	OutcomeCryptoFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "gone"
	case OutcomeCryptoFailure:
		return "crypto_failure"
	}
	return "unknown"
}

// Result is the classified response of one push attempt. Err is nil only for
// OutcomeDelivered.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       string
	Err        error
}

// Transmitter POSTs encrypted records to push service endpoints.
type Transmitter struct {
	http    *http.Client
	ttl     time.Duration
	urgency Urgency
	topic   string
}

// TransmitterOption customises a Transmitter.
type TransmitterOption func(*Transmitter)

// WithTTL sets the TTL header. Sub-second values round down to 0.
func WithTTL(ttl time.Duration) TransmitterOption {
	return func(t *Transmitter) {
		if ttl >= 0 {
			t.ttl = ttl
		}
	}
}

// WithUrgency sets the Urgency header.
func WithUrgency(u Urgency) TransmitterOption {
	return func(t *Transmitter) { t.urgency = u }
}

// WithTopic sets the Topic header so newer messages replace queued ones.
func WithTopic(topic string) TransmitterOption {
	return func(t *Transmitter) { t.topic = topic }
}

// NewTransmitter creates a transmitter. A nil client gets DefaultRequestTimeout.
func NewTransmitter(client *http.Client, opts ...TransmitterOption) (*Transmitter, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	t := &Transmitter{
		http:    client,
		ttl:     DefaultTTL,
		urgency: UrgencyNormal,
	}
	for _, opt := range opts {
		opt(t)
	}
	if !t.urgency.Valid() {
		return nil, configError("invalid urgency %q", t.urgency)
	}
	if len(t.topic) > 32 {
		return nil, configError("topic must be at most 32 characters")
	}
	return t, nil
}

// Send posts body to endpoint. It never retries.
func (t *Transmitter) Send(ctx context.Context, endpoint string, body []byte, authorization string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: &DeliveryError{Err: err}}
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("TTL", strconv.Itoa(int(t.ttl.Seconds())))
	req.Header.Set("Urgency", string(t.urgency))
	if t.topic != "" {
		req.Header.Set("Topic", t.topic)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: &DeliveryError{Err: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return Result{Outcome: OutcomeDelivered, StatusCode: resp.StatusCode}
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	derr := &DeliveryError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
		Permanent:  resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone,
	}
	outcome := OutcomeTransient
	if derr.Permanent {
		outcome = OutcomePermanent
	}
	return Result{Outcome: outcome, StatusCode: resp.StatusCode, Body: derr.Body, Err: derr}
}

func (r Result) String() string {
	if r.Err == nil {
		return fmt.Sprintf("%s (%d)", r.Outcome, r.StatusCode)
	}
	return fmt.Sprintf("%s: %v", r.Outcome, r.Err)
}
