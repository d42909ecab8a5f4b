package webpush

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks missing or malformed VAPID material.
	ErrConfiguration = errors.New("webpush: configuration error")
	// ErrCrypto marks key reconstruction, signing or encryption failures.
	ErrCrypto = errors.New("webpush: crypto error")
	// ErrPayloadTooLarge is returned when a message does not fit one record.
	ErrPayloadTooLarge = errors.New("webpush: payload exceeds a single record")
	// ErrTransientDelivery marks a push service failure that may succeed later.
	ErrTransientDelivery = errors.New("webpush: transient delivery failure")
	// ErrSubscriptionGone marks a 404/410 from the push service.
	ErrSubscriptionGone = errors.New("webpush: subscription gone")
)

// DeliveryError describes a failed POST to a push endpoint.
type DeliveryError struct {
	StatusCode int
	Body       string
	Permanent  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode == 0 && e.Err != nil {
		return fmt.Sprintf("push request failed: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("push service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() []error {
	kind := ErrTransientDelivery
	if e.Permanent {
		kind = ErrSubscriptionGone
	}
	if e.Err == nil {
		return []error{kind}
	}
	return []error{kind, e.Err}
}

func cryptoError(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrCrypto, op)
	}
	return fmt.Errorf("%w: %s: %w", ErrCrypto, op, err)
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
