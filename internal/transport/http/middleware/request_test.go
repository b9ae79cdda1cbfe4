package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBodyLimit(t *testing.T) {
	read := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	h := BodyLimit(read)
	big := strings.Repeat("x", int(MaxBodyBytes)+1)

	for _, tc := range []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "post over cap", method: http.MethodPost, path: "/v1/login", want: http.StatusRequestEntityTooLarge},
		{name: "put over cap", method: http.MethodPut, path: "/v1/change-password", want: http.StatusRequestEntityTooLarge},
		{name: "dashboard uncapped", method: http.MethodPost, path: "/v1/dashboard/products", want: http.StatusOK},
		{name: "purchases larger cap", method: http.MethodPost, path: "/v1/profile/my-purchases", want: http.StatusOK},
		{name: "get ignored", method: http.MethodGet, path: "/v1/login", want: http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, strings.NewReader(big)))
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestBlockBots(t *testing.T) {
	h := BlockBots(http.HandlerFunc(okHandler))
	for ua, want := range map[string]int{
		"":                         http.StatusForbidden,
		"Googlebot/2.1":            http.StatusForbidden,
		"python-requests/2.31":     http.StatusForbidden,
		"Mozilla/5.0 (X11; Linux)": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("User-Agent", ua)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, ua)
		if want == http.StatusForbidden {
			assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
		}
	}
}

type samples []string

func (s *samples) ObserveRequest(method, route, status string, _ float64) {
	*s = append(*s, method+" "+route+" "+status)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var obs samples

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogger(zap.New(core), &obs, nil))
	r.Get("/v1/things/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/things/42", nil))

	require.Equal(t, []string{"GET /v1/things/{id} 404"}, []string(obs))
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/v1/things/{id}", fields["route"])
	assert.NotEmpty(t, fields["request_id"])
}
