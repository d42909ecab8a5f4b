package webpush

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const (
	// DefaultVAPIDExpiration keeps assertions well under the 24h ceiling.
	DefaultVAPIDExpiration = 12 * time.Hour
	maxVAPIDExpiration     = 24 * time.Hour

	rawSignatureLength = 64
	scalarLength       = 32
)

// Signer produces VAPID Authorization header values.
type Signer struct {
	keys       *VAPIDKeys
	subject    string
	expiration time.Duration
	signer     crypto.Signer
	rand       io.Reader
	now        func() time.Time
}

// SignerOption customises a Signer.
type SignerOption func(*Signer)

// WithExpiration overrides the assertion lifetime. Values above 24h are capped.
func WithExpiration(d time.Duration) SignerOption {
	return func(s *Signer) {
		if d > 0 {
			s.expiration = min(d, maxVAPIDExpiration)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCryptoSigner swaps the signing primitive. The primitive may return
// either ASN.1 DER or raw r||s signatures.
func WithCryptoSigner(cs crypto.Signer) SignerOption {
	return func(s *Signer) {
		if cs != nil {
			s.signer = cs
		}
	}
}

// NewSigner binds VAPID keys to a contact URI (mailto: or https:).
func NewSigner(keys *VAPIDKeys, subject string, opts ...SignerOption) (*Signer, error) {
	if keys == nil {
		return nil, configError("vapid keys are required")
	}
	if !strings.HasPrefix(subject, "mailto:") && !strings.HasPrefix(subject, "https:") {
		return nil, configError("vapid subject must be a mailto: or https: URI, got %q", subject)
	}
	s := &Signer{
		keys:       keys,
		subject:    subject,
		expiration: DefaultVAPIDExpiration,
		signer:     keys.private,
		rand:       rand.Reader,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sign returns "vapid t=<jwt>, k=<public key>" scoped to the endpoint origin.
func (s *Signer) Sign(endpoint string) (string, error) {
	aud, err := Audience(endpoint)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"aud": aud,
		"exp": s.now().Add(s.expiration).Unix(),
		"sub": s.subject,
	})
	signingInput, err := token.SigningString()
	if err != nil {
		return "", cryptoError("encode vapid assertion", err)
	}
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := s.signer.Sign(s.rand, digest[:], crypto.SHA256)
	if err != nil {
		return "", cryptoError("sign vapid assertion", err)
	}
	raw, err := NormalizeSignature(sig)
	if err != nil {
		return "", err
	}
	return "vapid t=" + signingInput + "." + Encode(raw) + ", k=" + s.keys.PublicKeyString(), nil
}

// Audience returns the origin of a push endpoint: scheme://host[:port].
// Default ports are dropped, path and query never appear.
func Audience(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("webpush: invalid endpoint: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if scheme == "" || host == "" {
		return "", fmt.Errorf("webpush: invalid endpoint: %q", endpoint)
	}
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		return scheme + "://" + net.JoinHostPort(host, port), nil
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host, nil
}

// NormalizeSignature converts an ECDSA P-256 signature to the 64-byte r||s
// form push services require. DER input (leading 0x30) is unpacked; raw input
// is returned as a copy.
func NormalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) > 0 && sig[0] == 0x30 {
		raw, err := derToRaw(sig)
		if err == nil {
			return raw, nil
		}
		// a raw r can legitimately start with 0x30
		if len(sig) != rawSignatureLength {
			return nil, err
		}
	}
	if len(sig) != rawSignatureLength {
		return nil, cryptoError(fmt.Sprintf("unexpected signature length %d", len(sig)), nil)
	}
	return bytes.Clone(sig), nil
}

func derToRaw(der []byte) ([]byte, error) {
	var (
		input = cryptobyte.String(der)
		seq   cryptobyte.String
		r, s  cryptobyte.String
	)
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() ||
		!seq.ReadASN1(&r, asn1.INTEGER) || !seq.ReadASN1(&s, asn1.INTEGER) || !seq.Empty() {
		return nil, cryptoError("malformed DER signature", nil)
	}
	out := make([]byte, rawSignatureLength)
	if err := putScalar(out[:scalarLength], r); err != nil {
		return nil, err
	}
	if err := putScalar(out[scalarLength:], s); err != nil {
		return nil, err
	}
	return out, nil
}

// putScalar right-aligns v in dst, dropping sign-padding zero bytes.
func putScalar(dst, v []byte) error {
	for len(v) > len(dst) && v[0] == 0 {
		v = v[1:]
	}
	if len(v) > len(dst) {
		return cryptoError(fmt.Sprintf("signature component of %d bytes", len(v)), nil)
	}
	copy(dst[len(dst)-len(v):], v)
	return nil
}
