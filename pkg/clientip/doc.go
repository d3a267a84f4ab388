// Package clientip resolves the address of an HTTP client behind proxies.
//
// The result is taken from headers the client can forge, so use it for
// logging and auditing only, never for access decisions.
//
//	ip := clientip.FromRequest(r)
package clientip
