// Package cookie seals session identifiers into tamper-proof cookie values
// and writes them to HTTP responses.
//
// # Overview
//
// Codec is an authenticated-encryption construction sized for one small
// payload. It uses AES-GCM with a 96-bit random nonce per call and produces
//
//	base64url(nonce ∥ ciphertext ∥ tag)
//
// The key must be 16, 24 or 32 bytes. Decrypt separates the two ways a value
// can be rejected:
//
//   - ErrInvalidCookie – not base64url, or shorter than nonce+tag. Usually a
//     stale or foreign cookie; treat it as absent.
//   - ErrCookieCrypto – well formed but the tag does not verify. The value was
//     modified or sealed under a different key; worth an audit log entry.
//
// Manager wraps net/http cookie handling with default Options and the
// SetEncrypted / GetEncrypted helpers.
//
// # Usage
//
//	key, _ := cookie.DecodeSecret(os.Getenv("COOKIE_SECRET"))
//	codec, err := cookie.NewCodec(key)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	man := cookie.New(codec, cookie.WithSecure(true))
//
//	_ = man.SetEncrypted(w, "session", payload, cookie.WithMaxAge(3600))
//	payload, err := man.GetEncrypted(r, "session")
//
// # Configuration
//
// Config reads COOKIE_SECRET through github.com/caarlos0/env; keys are
// generated with GenerateSecret.
package cookie
