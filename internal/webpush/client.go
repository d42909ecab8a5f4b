package webpush

import (
	"context"
	"fmt"
)

// Subscription is the PushSubscription a browser hands to the application.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Client composes encryption, VAPID signing and transmission for one endpoint.
type Client struct {
	encryptor   *Encryptor
	signer      *Signer
	transmitter *Transmitter
}

// NewClient wires the three stages together.
func NewClient(encryptor *Encryptor, signer *Signer, transmitter *Transmitter) *Client {
	if encryptor == nil {
		encryptor = NewEncryptor(nil)
	}
	return &Client{encryptor: encryptor, signer: signer, transmitter: transmitter}
}

// Push encrypts payload for sub and delivers it. Key or signing problems are
// reported as OutcomeCryptoFailure without touching the network.
func (c *Client) Push(ctx context.Context, sub Subscription, payload []byte) Result {
	if sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
		return cryptoFailure(fmt.Errorf("%w: subscription is missing endpoint or keys", ErrCrypto))
	}
	uaPublic, err := Decode(sub.P256dh)
	if err != nil {
		return cryptoFailure(cryptoError("decode p256dh", err))
	}
	authSecret, err := Decode(sub.Auth)
	if err != nil {
		return cryptoFailure(cryptoError("decode auth", err))
	}
	body, err := c.encryptor.Encrypt(payload, uaPublic, authSecret)
	if err != nil {
		return cryptoFailure(err)
	}
	authorization, err := c.signer.Sign(sub.Endpoint)
	if err != nil {
		return cryptoFailure(err)
	}
	return c.transmitter.Send(ctx, sub.Endpoint, body, authorization)
}

// PublicKey is the VAPID applicationServerKey clients subscribe with.
func (c *Client) PublicKey() string {
	return c.signer.keys.PublicKeyString()
}

func cryptoFailure(err error) Result {
	return Result{Outcome: OutcomeCryptoFailure, Err: err}
}
