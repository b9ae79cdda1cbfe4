package clientip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRequest(t *testing.T) {
	rv, err := New("10.0.0.0/8", "192.0.2.1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"direct client ignores headers", map[string]string{"X-Forwarded-For": "203.0.113.50", "X-Real-Ip": "203.0.113.51"}, "198.51.100.66:4000", "198.51.100.66"},
		{"single proxy hop", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.2:4000", "203.0.113.7"},
		{"forged first hop", map[string]string{"X-Forwarded-For": "203.0.113.50, 198.51.100.66"}, "10.0.0.2:4000", "198.51.100.66"},
		{"proxies are skipped", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.1.1.1, 10.0.0.3"}, "192.0.2.1:80", "203.0.113.7"},
		{"real ip behind proxy", map[string]string{"X-Real-Ip": "198.51.100.3"}, "10.0.0.2:4000", "198.51.100.3"},
		{"only proxies in chain", map[string]string{"X-Forwarded-For": "10.9.9.9, 10.0.0.3"}, "10.0.0.2:1", "10.9.9.9"},
		{"blank forwarded header", map[string]string{"X-Forwarded-For": " "}, "10.0.0.2:1", "10.0.0.2"},
		{"remote addr without port", nil, "192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, rv.FromRequest(r))
		})
	}
}

func TestZeroResolverUsesRemoteAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.66:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.50")

	var rv Resolver
	assert.Equal(t, "192.0.2.66", rv.FromRequest(r))
}

func TestNewRejectsGarbage(t *testing.T) {
	_, err := New("10.0.0.0/33")
	assert.Error(t, err)
	_, err = New("proxy.internal")
	assert.Error(t, err)

	rv, err := New("", " 10.0.0.1 ")
	require.NoError(t, err)
	assert.True(t, rv.trusts("10.0.0.1"))
	assert.True(t, rv.trusts("::ffff:10.0.0.1"))
}
