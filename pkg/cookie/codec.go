package cookie

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"slices"
)

// SecretSizes lists the accepted key lengths in bytes (AES-128/192/256).
var SecretSizes = []int{16, 24, 32}

const (
	nonceSize = 12
	tagSize   = 16

	// Overhead is the number of bytes a sealed value adds to its plaintext
	// before text encoding.
	Overhead = nonceSize + tagSize
)

// Codec seals small byte payloads into URL-safe cookie values with AES-GCM.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
	rand io.Reader
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithNonceSource replaces crypto/rand as the nonce source. Intended for tests;
// a non-random reader breaks the security of every value it seals.
func WithNonceSource(r io.Reader) CodecOption {
	return func(c *Codec) {
		if r != nil {
			c.rand = r
		}
	}
}

// NewCodec creates a codec keyed by secret. The secret must be 16, 24 or 32 bytes.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if !slices.Contains(SecretSizes, len(secret)) {
		return nil, fmt.Errorf("%w: got %d bytes, want one of %v", ErrInvalidSecretSize, len(secret), SecretSizes)
	}

	// aes.NewCipher copies the key, so later changes to secret do not leak in.
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretSize, err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}

	c := &Codec{aead: aead, rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encrypt returns base64url(nonce ∥ ciphertext ∥ tag) for plaintext.
// Every call draws a fresh 96-bit random nonce.
func (c *Codec) Encrypt(plaintext []byte) (string, error) {
	buf := make([]byte, nonceSize, nonceSize+len(plaintext)+tagSize)
	if _, err := io.ReadFull(c.rand, buf); err != nil {
		return "", fmt.Errorf("cookie: read nonce: %w", err)
	}

	sealed := c.aead.Seal(buf, buf[:nonceSize], plaintext, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It returns ErrInvalidCookie for values that are
// not decodable or too short, and ErrCookieCrypto when authentication fails.
func (c *Codec) Decrypt(token string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCookie
	}
	if len(raw) < Overhead {
		return nil, ErrInvalidCookie
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrCookieCrypto
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// GenerateSecret returns a random key of the given size encoded as base64url
// text, ready to paste into a settings file.
func GenerateSecret(size int) (string, error) {
	if !slices.Contains(SecretSizes, size) {
		return "", fmt.Errorf("%w: got %d bytes, want one of %v", ErrInvalidSecretSize, size, SecretSizes)
	}

	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

// DecodeSecret parses a key produced by GenerateSecret and checks its size.
func DecodeSecret(text string) ([]byte, error) {
	key, err := base64.URLEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64url text", ErrInvalidSecretSize)
	}
	if !slices.Contains(SecretSizes, len(key)) {
		return nil, fmt.Errorf("%w: got %d bytes, want one of %v", ErrInvalidSecretSize, len(key), SecretSizes)
	}
	return key, nil
}
