package webpush

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
)

const (
	publicKeyLength  = 65
	privateKeyLength = 32
)

// VAPIDKeys is the application server's P-256 identity. It is loaded once at
// startup and shared read-only by every signer.
type VAPIDKeys struct {
	public  []byte
	private *ecdsa.PrivateKey
}

// ParseVAPIDKeys builds VAPIDKeys from base64url text as stored in config.
func ParseVAPIDKeys(publicKey, privateKey string) (*VAPIDKeys, error) {
	if publicKey == "" || privateKey == "" {
		return nil, configError("vapid public and private keys are required")
	}
	pub, err := Decode(publicKey)
	if err != nil {
		return nil, configError("decode vapid public key: %v", err)
	}
	priv, err := Decode(privateKey)
	if err != nil {
		return nil, configError("decode vapid private key: %v", err)
	}
	return NewVAPIDKeys(pub, priv)
}

// NewVAPIDKeys wraps a raw 32-byte scalar and its 65-byte uncompressed point.
// The point derived from the scalar must match publicKey.
func NewVAPIDKeys(publicKey, privateKey []byte) (*VAPIDKeys, error) {
	if len(publicKey) != publicKeyLength || publicKey[0] != 0x04 {
		return nil, configError("vapid public key must be a %d-byte uncompressed point", publicKeyLength)
	}
	if len(privateKey) != privateKeyLength {
		return nil, configError("vapid private key must be %d bytes, got %d", privateKeyLength, len(privateKey))
	}
	priv, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), privateKey)
	if err != nil {
		return nil, configError("parse vapid private key: %v", err)
	}
	derived, err := priv.PublicKey.Bytes()
	if err != nil {
		return nil, configError("encode vapid public key: %v", err)
	}
	if !bytes.Equal(derived, publicKey) {
		return nil, configError("vapid public key does not match private key")
	}
	return &VAPIDKeys{public: bytes.Clone(publicKey), private: priv}, nil
}

// GenerateVAPIDKeys creates a fresh key pair. Run it once and keep the result
// in configuration; rotating keys invalidates every browser subscription.
func GenerateVAPIDKeys() (*VAPIDKeys, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, cryptoError("generate vapid key", err)
	}
	pub, err := priv.PublicKey.Bytes()
	if err != nil {
		return nil, cryptoError("encode vapid public key", err)
	}
	return &VAPIDKeys{public: pub, private: priv}, nil
}

// PublicKey returns a copy of the uncompressed public point.
func (k *VAPIDKeys) PublicKey() []byte {
	return bytes.Clone(k.public)
}

// PublicKeyString is the applicationServerKey handed to PushManager.subscribe.
func (k *VAPIDKeys) PublicKeyString() string {
	return Encode(k.public)
}

// PrivateKeyString returns the raw scalar as base64url.
func (k *VAPIDKeys) PrivateKeyString() (string, error) {
	raw, err := k.private.Bytes()
	if err != nil {
		return "", cryptoError("encode vapid private key", err)
	}
	return Encode(raw), nil
}
