package webpush

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subscriberKeys struct {
	priv *ecdh.PrivateKey
	auth []byte
}

func newSubscriberKeys(t *testing.T) subscriberKeys {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return subscriberKeys{priv: priv, auth: auth}
}

func (k subscriberKeys) public() []byte { return k.priv.PublicKey().Bytes() }

func hmacSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

func TestEncrypt_HeaderLayout(t *testing.T) {
	t.Parallel()

	sub := newSubscriberKeys(t)
	plaintext := []byte(`{"title":"hi"}`)

	out, err := NewEncryptor(nil).Encrypt(plaintext, sub.public(), sub.auth)
	require.NoError(t, err)

	assert.Equal(t, 86, HeaderLength)
	assert.Len(t, out, HeaderLength+len(plaintext)+1+16)
	assert.Equal(t, uint32(4096), binary.BigEndian.Uint32(out[16:20]))
	assert.Equal(t, byte(65), out[20])
	assert.Equal(t, byte(0x04), out[21])
}

func TestEncrypt_DecryptRoundTrip(t *testing.T) {
	t.Parallel()

	sub := newSubscriberKeys(t)
	enc := NewEncryptor(nil)

	for _, plaintext := range [][]byte{
		{},
		[]byte("x"),
		[]byte(`{"title":"Time to log your activity!","data":{"url":"/"}}`),
		bytes.Repeat([]byte{0xab}, MaxPlaintextLength),
	} {
		out, err := enc.Encrypt(plaintext, sub.public(), sub.auth)
		require.NoError(t, err)

		got, err := Decrypt(out, sub.priv, sub.auth)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncrypt_MatchesHMACKeySchedule(t *testing.T) {
	t.Parallel()

	sub := newSubscriberKeys(t)
	plaintext := []byte("independent derivation")

	out, err := NewEncryptor(nil).Encrypt(plaintext, sub.public(), sub.auth)
	require.NoError(t, err)

	salt := out[:16]
	asPublic := out[21:86]
	asKey, err := ecdh.P256().NewPublicKey(asPublic)
	require.NoError(t, err)
	shared, err := sub.priv.ECDH(asKey)
	require.NoError(t, err)

	prk := hmacSHA256(sub.auth, shared)
	info := append([]byte("WebPush: info\x00"), sub.public()...)
	info = append(info, asPublic...)
	ikm := hmacSHA256(prk, append(info, 0x01))[:32]
	prk2 := hmacSHA256(salt, ikm)
	cek := hmacSHA256(prk2, append([]byte("Content-Encoding: aes128gcm\x00"), 0x01))[:16]
	nonce := hmacSHA256(prk2, append([]byte("Content-Encoding: nonce\x00"), 0x01))[:12]

	block, err := aes.NewCipher(cek)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	record, err := gcm.Open(nil, nonce, out[86:], nil)
	require.NoError(t, err)
	assert.Equal(t, append(plaintext, 0x02), record)
}

func TestEncrypt_FreshSaltAndKeyPerCall(t *testing.T) {
	t.Parallel()

	sub := newSubscriberKeys(t)
	enc := NewEncryptor(nil)
	plaintext := []byte("same message")

	a, err := enc.Encrypt(plaintext, sub.public(), sub.auth)
	require.NoError(t, err)
	b, err := enc.Encrypt(plaintext, sub.public(), sub.auth)
	require.NoError(t, err)

	assert.NotEqual(t, a[:16], b[:16], "salt reused")
	assert.NotEqual(t, a[21:86], b[21:86], "ephemeral key reused")
	assert.NotEqual(t, a[86:], b[86:], "ciphertext repeated")
}

func TestEncrypt_PayloadTooLarge(t *testing.T) {
	t.Parallel()

	sub := newSubscriberKeys(t)
	enc := NewEncryptor(nil)

	out, err := enc.Encrypt(make([]byte, MaxPlaintextLength), sub.public(), sub.auth)
	require.NoError(t, err)
	assert.Len(t, out, RecordSize)

	_, err = enc.Encrypt(make([]byte, MaxPlaintextLength+1), sub.public(), sub.auth)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestEncrypt_InvalidKeys(t *testing.T) {
	t.Parallel()

	sub := newSubscriberKeys(t)
	enc := NewEncryptor(nil)

	_, err := enc.Encrypt([]byte("x"), sub.public()[:33], sub.auth)
	require.ErrorIs(t, err, ErrCrypto)

	_, err = enc.Encrypt([]byte("x"), sub.public(), sub.auth[:8])
	require.ErrorIs(t, err, ErrCrypto)

	notOnCurve := bytes.Clone(sub.public())
	notOnCurve[64] ^= 0x01
	_, err = enc.Encrypt([]byte("x"), notOnCurve, sub.auth)
	require.ErrorIs(t, err, ErrCrypto)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestEncrypt_RandomnessFailure(t *testing.T) {
	t.Parallel()

	sub := newSubscriberKeys(t)
	_, err := NewEncryptor(brokenReader{}).Encrypt([]byte("x"), sub.public(), sub.auth)
	require.ErrorIs(t, err, ErrCrypto)
}

func TestDecrypt_WrongAuthSecret(t *testing.T) {
	t.Parallel()

	sub := newSubscriberKeys(t)
	out, err := NewEncryptor(nil).Encrypt([]byte("secret"), sub.public(), sub.auth)
	require.NoError(t, err)

	other := newSubscriberKeys(t)
	_, err = Decrypt(out, sub.priv, other.auth)
	require.ErrorIs(t, err, ErrCrypto)

	_, err = Decrypt(out[:50], sub.priv, sub.auth)
	require.ErrorIs(t, err, ErrCrypto)
}
