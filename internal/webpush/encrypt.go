package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"golang.org/x/crypto/hkdf"
)

const (
	// RecordSize is the rs field written into every aes128gcm header.
	RecordSize = 4096
	// HeaderLength is salt(16) + rs(4) + idlen(1) + ephemeral key(65).
	HeaderLength = saltLength + 4 + 1 + publicKeyLength
	// MaxPlaintextLength is the largest payload that fits a single record.
	MaxPlaintextLength = RecordSize - HeaderLength - tagLength - 1

	saltLength       = 16
	authSecretLength = 16
	tagLength        = 16
	cekLength        = 16
	nonceLength      = 12
	ikmLength        = 32

	lastRecordDelimiter = 0x02
)

var (
	keyInfoPrefix = []byte("WebPush: info\x00")
	cekInfo       = []byte("Content-Encoding: aes128gcm\x00")
	nonceInfo     = []byte("Content-Encoding: nonce\x00")
)

// Encryptor seals payloads for a single subscriber using RFC 8291.
// It holds no per-message state and is safe for concurrent use.
type Encryptor struct {
	rand io.Reader
}

// NewEncryptor returns an Encryptor drawing salts from r. A nil r means crypto/rand.
func NewEncryptor(r io.Reader) *Encryptor {
	if r == nil {
		r = rand.Reader
	}
	return &Encryptor{rand: r}
}

// Encrypt produces a complete aes128gcm body: header followed by one record.
// Every call uses a fresh salt and ephemeral key pair.
func (e *Encryptor) Encrypt(plaintext, uaPublic, authSecret []byte) ([]byte, error) {
	if len(plaintext) > MaxPlaintextLength {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(plaintext), MaxPlaintextLength)
	}
	if len(authSecret) != authSecretLength {
		return nil, cryptoError(fmt.Sprintf("auth secret must be %d bytes, got %d", authSecretLength, len(authSecret)), nil)
	}
	uaKey, err := ecdh.P256().NewPublicKey(uaPublic)
	if err != nil {
		return nil, cryptoError("parse subscriber key", err)
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(e.rand, salt); err != nil {
		return nil, cryptoError("read salt", err)
	}
	asKey, err := ecdh.P256().GenerateKey(e.rand)
	if err != nil {
		return nil, cryptoError("generate ephemeral key", err)
	}
	shared, err := asKey.ECDH(uaKey)
	if err != nil {
		return nil, cryptoError("derive shared secret", err)
	}
	asPublic := asKey.PublicKey().Bytes()

	gcm, nonce, err := recordCipher(shared, authSecret, salt, uaKey.Bytes(), asPublic)
	if err != nil {
		return nil, err
	}

	out := make([]byte, HeaderLength, HeaderLength+len(plaintext)+1+tagLength)
	copy(out, salt)
	binary.BigEndian.PutUint32(out[saltLength:], RecordSize)
	out[saltLength+4] = byte(len(asPublic))
	copy(out[saltLength+5:], asPublic)

	record := append(slices.Clone(plaintext), lastRecordDelimiter)
	return gcm.Seal(out, nonce, record, nil), nil
}

// recordCipher runs the RFC 8291 key schedule and returns the content cipher
// with its nonce.
func recordCipher(shared, authSecret, salt, uaPublic, asPublic []byte) (cipher.AEAD, []byte, error) {
	prk := hkdf.Extract(sha256.New, shared, authSecret)
	info := slices.Concat(keyInfoPrefix, uaPublic, asPublic)
	ikm := make([]byte, ikmLength)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), ikm); err != nil {
		return nil, nil, cryptoError("derive ikm", err)
	}

	contentPRK := hkdf.Extract(sha256.New, ikm, salt)
	cek := make([]byte, cekLength)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, contentPRK, cekInfo), cek); err != nil {
		return nil, nil, cryptoError("derive content key", err)
	}
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, contentPRK, nonceInfo), nonce); err != nil {
		return nil, nil, cryptoError("derive nonce", err)
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, nil, cryptoError("aes", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, cryptoError("gcm", err)
	}
	return gcm, nonce, nil
}

// Decrypt opens a single-record aes128gcm body addressed to uaPrivate. It is
// the user agent side of Encrypt and exists for receivers and tests.
func Decrypt(body []byte, uaPrivate *ecdh.PrivateKey, authSecret []byte) ([]byte, error) {
	if len(body) < HeaderLength+tagLength {
		return nil, cryptoError("record too short", nil)
	}
	salt := body[:saltLength]
	idLen := int(body[saltLength+4])
	if idLen != publicKeyLength {
		return nil, cryptoError(fmt.Sprintf("unexpected key id length %d", idLen), nil)
	}
	asKey, err := ecdh.P256().NewPublicKey(body[saltLength+5 : HeaderLength])
	if err != nil {
		return nil, cryptoError("parse sender key", err)
	}
	shared, err := uaPrivate.ECDH(asKey)
	if err != nil {
		return nil, cryptoError("derive shared secret", err)
	}

	gcm, nonce, err := recordCipher(shared, authSecret, salt, uaPrivate.PublicKey().Bytes(), asKey.Bytes())
	if err != nil {
		return nil, err
	}
	record, err := gcm.Open(nil, nonce, body[HeaderLength:], nil)
	if err != nil {
		return nil, cryptoError("open record", err)
	}

	// strip zero padding, then the delimiter
	end := len(record) - 1
	for end >= 0 && record[end] == 0 {
		end--
	}
	if end < 0 || record[end] != lastRecordDelimiter {
		return nil, cryptoError("missing record delimiter", nil)
	}
	return record[:end], nil
}
