package passport

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinKeySize is the minimum master key length accepted by NewSealer.
const MinKeySize = 32

// ErrSealedData indicates ciphertext that cannot be opened with the configured key.
var ErrSealedData = errors.New("passport: sealed data invalid")

// Codec converts passport snapshots to and from their stored form.
type Codec interface {
	Seal(p Passport) ([]byte, error)
	Open(b []byte) (Passport, error)
	Index(number string) string
}

// PlainCodec stores snapshots as JSON. Intended for development and tests.
type PlainCodec struct{}

// Seal implements Codec.
func (PlainCodec) Seal(p Passport) ([]byte, error) { return json.Marshal(p) }

// Open implements Codec.
func (PlainCodec) Open(b []byte) (Passport, error) {
	var p Passport
	if err := json.Unmarshal(b, &p); err != nil {
		return Passport{}, fmt.Errorf("%w: %v", ErrSealedData, err)
	}
	return p, nil
}

// Index implements Codec.
func (PlainCodec) Index(number string) string { return cleanNumber(number) }

// Sealer encrypts snapshots with XChaCha20-Poly1305 and derives a keyed
// blind index so passports can be looked up without decrypting every row.
type Sealer struct {
	aead     cipher.AEAD
	indexKey []byte
}

// NewSealer derives the encryption and index keys from master.
func NewSealer(master []byte) (*Sealer, error) {
	if len(master) < MinKeySize {
		return nil, fmt.Errorf("passport: key must be at least %d bytes", MinKeySize)
	}
	kdf := hkdf.New(sha256.New, master, nil, []byte("greenpass/passport/v1"))
	encKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return nil, fmt.Errorf("passport: derive key: %w", err)
	}
	indexKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, indexKey); err != nil {
		return nil, fmt.Errorf("passport: derive index key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("passport: init cipher: %w", err)
	}
	return &Sealer{aead: aead, indexKey: indexKey}, nil
}

// NewSealerFromHex parses a hex encoded master key.
func NewSealerFromHex(key string) (*Sealer, error) {
	raw, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("passport: decode key: %w", err)
	}
	return NewSealer(raw)
}

// Seal implements Codec.
func (s *Sealer) Seal(p Passport) ([]byte, error) {
	plain, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("passport: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open implements Codec.
func (s *Sealer) Open(b []byte) (Passport, error) {
	n := s.aead.NonceSize()
	if len(b) < n {
		return Passport{}, ErrSealedData
	}
	plain, err := s.aead.Open(nil, b[:n], b[n:], nil)
	if err != nil {
		return Passport{}, ErrSealedData
	}
	var p Passport
	if err := json.Unmarshal(plain, &p); err != nil {
		return Passport{}, fmt.Errorf("%w: %v", ErrSealedData, err)
	}
	return p, nil
}

// Index implements Codec.
func (s *Sealer) Index(number string) string {
	mac := hmac.New(sha256.New, s.indexKey)
	mac.Write([]byte(cleanNumber(number)))
	return hex.EncodeToString(mac.Sum(nil))
}
