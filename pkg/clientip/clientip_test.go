package clientip_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sessionstore/pkg/clientip"
)

func TestFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "203.0.113.7:4711", "203.0.113.7"},
		{"remote without port", nil, "203.0.113.7", "203.0.113.7"},
		{"ipv6 remote", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"cloudflare first", map[string]string{"CF-Connecting-IP": "198.51.100.1", "X-Forwarded-For": "203.0.113.9"}, "10.0.0.1:1", "198.51.100.1"},
		{"first valid forwarded entry", map[string]string{"X-Forwarded-For": "bogus, 203.0.113.9, 10.0.0.2"}, "10.0.0.1:1", "203.0.113.9"},
		{"invalid header falls through", map[string]string{"CF-Connecting-IP": "nope", "X-Real-IP": "192.0.2.4"}, "10.0.0.1:1", "192.0.2.4"},
		{"mapped ipv4", map[string]string{"X-Real-IP": "::ffff:192.0.2.5"}, "", "192.0.2.5"},
		{"nothing parses", map[string]string{"X-Forwarded-For": " , "}, "garbage", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.FromRequest(r))
		})
	}
}
