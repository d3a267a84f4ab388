package cookie

import "errors"

var (
	ErrInvalidSecretSize = errors.New("cookie.invalid_secret_size")
	ErrNoCodec           = errors.New("cookie.no_codec")
	ErrCookieNotFound    = errors.New("cookie.not_found")

	// ErrInvalidCookie means the value is not a cookie this codec produced:
	// bad encoding or too short. Callers treat it as "no cookie".
	ErrInvalidCookie = errors.New("cookie.invalid")

	// ErrCookieCrypto means the value decoded fine but failed authentication,
	// so it was tampered with or sealed under another key.
	ErrCookieCrypto = errors.New("cookie.crypto_failed")
)
