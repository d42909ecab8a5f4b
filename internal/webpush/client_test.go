package webpush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, hc *http.Client) *Client {
	t.Helper()
	signer, _ := newTestSigner(t)
	tr, err := NewTransmitter(hc)
	require.NoError(t, err)
	return NewClient(NewEncryptor(nil), signer, tr)
}

func TestClient_PushDeliversDecryptablePayload(t *testing.T) {
	t.Parallel()

	sub := newSubscriberKeys(t)
	var received []byte
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		received, _ = Decrypt(body, sub.priv, sub.auth)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.Client())
	res := c.Push(context.Background(), Subscription{
		Endpoint: srv.URL + "/wpush/1",
		P256dh:   Encode(sub.public()),
		Auth:     Encode(sub.auth),
	}, []byte(`{"title":"hello"}`))

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeDelivered, res.Outcome)
	assert.Equal(t, `{"title":"hello"}`, string(received))
	assert.True(t, strings.HasPrefix(auth, "vapid t="))
	assert.Contains(t, auth, ", k="+c.PublicKey())
}

func TestClient_CryptoFailureSkipsNetwork(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	sub := newSubscriberKeys(t)
	c := newTestClient(t, srv.Client())

	cases := map[string]Subscription{
		"missing keys": {Endpoint: srv.URL},
		"bad p256dh":   {Endpoint: srv.URL, P256dh: Encode([]byte{4, 1, 2}), Auth: Encode(sub.auth)},
		"bad base64":   {Endpoint: srv.URL, P256dh: "***", Auth: Encode(sub.auth)},
		"short auth":   {Endpoint: srv.URL, P256dh: Encode(sub.public()), Auth: Encode(sub.auth[:4])},
	}
	for name, s := range cases {
		res := c.Push(context.Background(), s, []byte("x"))
		assert.Equal(t, OutcomeCryptoFailure, res.Outcome, name)
		assert.ErrorIs(t, res.Err, ErrCrypto, name)
	}

	res := c.Push(context.Background(), Subscription{
		Endpoint: srv.URL,
		P256dh:   Encode(sub.public()),
		Auth:     Encode(sub.auth),
	}, make([]byte, MaxPlaintextLength+1))
	assert.Equal(t, OutcomeCryptoFailure, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPayloadTooLarge)

	assert.Zero(t, hits.Load())
}
