package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-shop-api/internal/config"
	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/infrastructure/memory"
	"github.com/go-shop-api/internal/infrastructure/metrics"
	"github.com/go-shop-api/internal/infrastructure/zarinpal"
	"github.com/go-shop-api/internal/pkg/clientip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory repositories ---

type memUsers struct {
	mu    sync.Mutex
	byID  map[string]*domain.User
	email map[string]string
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*domain.User{}, email: map[string]string{}}
}

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.email[u.Email]; ok {
		return domain.ErrConflict
	}
	cp := *u
	m.byID[u.UserID] = &cp
	m.email[u.Email] = u.UserID
	return nil
}

func (m *memUsers) Any(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID) > 0, nil
}

func (m *memUsers) Get(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	id, ok := m.email[email]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *memUsers) SetPassword(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[userID].PasswordHash = hash
	return nil
}

func (m *memUsers) TouchLogin(context.Context, string, time.Time) error { return nil }

type memProducts map[string]*domain.Product

func (m memProducts) Get(_ context.Context, id string) (*domain.Product, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

type memPayments struct {
	mu    sync.Mutex
	users *memUsers
	items map[string]*domain.Payment
}

func (m *memPayments) Put(_ context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.items[p.Authority] = &cp
	return nil
}

func (m *memPayments) Get(_ context.Context, paymentID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.PaymentID == paymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPayments) GetByAuthority(_ context.Context, a string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[a]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) ListSuccessfulByUser(_ context.Context, userID string) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.items {
		if p.UserID == userID && p.Success {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPayments) Settle(_ context.Context, s domain.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.PaymentID != s.PaymentID {
			continue
		}
		if p.Success {
			return domain.ErrAlreadySettled
		}
		ref := s.RefID
		p.Success, p.RefID, p.Status = true, &ref, domain.PaymentDelivered
		m.users.mu.Lock()
		m.users.byID[s.UserID].Entitlements = s.Entitlements
		m.users.mu.Unlock()
		return nil
	}
	return domain.ErrAlreadySettled
}

type stubGateway struct{}

func (stubGateway) Request(context.Context, int64, string, string) (*zarinpal.Session, error) {
	return &zarinpal.Session{Status: zarinpal.CodeOK, Authority: "A1", URL: "https://gw.example/StartPay/A1"}, nil
}

func (stubGateway) Verify(context.Context, int64, string) (*zarinpal.Verification, error) {
	return &zarinpal.Verification{Status: zarinpal.CodeOK, RefID: "777"}, nil
}

// --- harness ---

// edgeProxy is the RemoteAddr host of every httptest request; the harness
// plays an appending reverse proxy in front of the service.
const edgeProxy = "192.0.2.1"

const browserUA = "Mozilla/5.0 (X11; Linux x86_64)"

type client struct {
	t   *testing.T
	h   http.Handler
	ip  string
	jar map[string]*http.Cookie
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("X-Forwarded-For", c.ip)
	for _, ck := range c.jar {
		req.AddCookie(ck)
	}
	rr := httptest.NewRecorder()
	c.h.ServeHTTP(rr, req)
	for _, ck := range rr.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.jar, ck.Name)
			continue
		}
		c.jar[ck.Name] = &http.Cookie{Name: ck.Name, Value: ck.Value}
	}
	return rr
}

func newTestRouter(t *testing.T) (http.Handler, *memUsers) {
	t.Helper()
	cfg := &config.Config{
		AppEnv:          "development",
		PublicBaseURL:   "https://shop.example",
		AllowedOrigins:  []string{"https://shop.example"},
		JWTScriptSecret: "script-secret",
		JWTHTTPSecret:   "http-secret",
		JWTExpiryDays:   30,
		CookieSecret:    "cookie-secret",
		PresignTTL:      time.Minute,
		CheckoutRPS:     1,
		CheckoutBurst:   5,
	}
	tokens, err := jwtinfra.NewProvider(cfg)
	require.NoError(t, err)
	ips, err := clientip.New(edgeProxy)
	require.NoError(t, err)
	users := newMemUsers()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewRouter(ctx, cfg, &Deps{
		Users:    users,
		Products: memProducts{"p-1": {ProductID: "p-1", Title: "Go course", Price: 10000, Version: 1}},
		Payments: &memPayments{users: users, items: map[string]*domain.Payment{}},
		Counters: memory.NewStore(),
		Gateway:  stubGateway{},
		Tokens:   tokens,
		Metrics:  metrics.New(),
		ClientIP: ips,
	})
	return h, users
}

func newClient(t *testing.T, h http.Handler, ip string) *client {
	return &client{t: t, h: h, ip: ip, jar: map[string]*http.Cookie{}}
}

// --- tests ---

func TestRouter_HealthAndBots(t *testing.T) {
	h, _ := newTestRouter(t)
	c := newClient(t, h, "203.0.113.1")

	rr := c.do(http.MethodGet, "/v1/health-check/ping", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rr.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil)
	req.Header.Set("User-Agent", "Googlebot/2.1")
	bot := httptest.NewRecorder()
	h.ServeHTTP(bot, req)
	assert.Equal(t, http.StatusForbidden, bot.Code)
	assert.Contains(t, bot.Header().Get("Content-Type"), "text/html")
}

func TestRouter_SignupPurchaseFlow(t *testing.T) {
	h, users := newTestRouter(t)
	c := newClient(t, h, "203.0.113.2")

	rr := c.do(http.MethodPost, "/v1/signup/send-code", map[string]string{"email": "Reza@Example.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "12345")

	rr = c.do(http.MethodPost, "/v1/signup/verify-code", map[string]string{
		"username": "reza", "password": "secret1", "code": "12345",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, c.jar, "httpToken")
	require.Contains(t, c.jar, "token")
	assert.NotContains(t, c.jar, "email")

	u, err := users.GetByEmail(context.Background(), "reza@example.com")
	require.NoError(t, err)
	assert.True(t, u.IsAdmin, "first account is the administrator")

	rr = c.do(http.MethodGet, "/v1/payment/confirm/p-1", nil)
	require.Equal(t, http.StatusFound, rr.Code, rr.Body.String())
	assert.Equal(t, "https://gw.example/StartPay/A1", rr.Header().Get("Location"))

	rr = c.do(http.MethodGet, "/v1/payment/verify?Authority=A1&Status=OK", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "777")

	rr = c.do(http.MethodGet, "/v1/profile/my-purchases", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"product_id":"p-1"`)

	rr = c.do(http.MethodGet, "/v1/dashboard/users/"+u.UserID+"/purchases", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = c.do(http.MethodPost, "/v1/profile/logout", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	rr = c.do(http.MethodGet, "/v1/profile/my-purchases", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_GuardLocksOutIP(t *testing.T) {
	h, _ := newTestRouter(t)
	c := newClient(t, h, "198.51.100.9")

	for i := 0; i < 10; i++ {
		rr := c.do(http.MethodPost, "/v1/login", map[string]string{"email": "nobody@example.com", "password": "x"})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	}
	rr := c.do(http.MethodGet, "/v1/health-check/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "wait 1 hour")

	other := newClient(t, h, "198.51.100.10")
	assert.Equal(t, http.StatusOK, other.do(http.MethodGet, "/v1/health-check/ping", nil).Code)
}

func TestRouter_ReplayedCallbackGrantsNoSession(t *testing.T) {
	h, _ := newTestRouter(t)
	buyer := newClient(t, h, "203.0.113.20")
	require.Equal(t, http.StatusOK, buyer.do(http.MethodPost, "/v1/signup/send-code", map[string]string{"email": "buyer@example.com"}).Code)
	require.Equal(t, http.StatusCreated, buyer.do(http.MethodPost, "/v1/signup/verify-code", map[string]string{
		"username": "buyer", "password": "secret1", "code": "12345",
	}).Code)
	require.Equal(t, http.StatusFound, buyer.do(http.MethodGet, "/v1/payment/confirm/p-1", nil).Code)
	require.Equal(t, http.StatusOK, buyer.do(http.MethodGet, "/v1/payment/verify?Authority=A1&Status=OK", nil).Code)

	stranger := newClient(t, h, "198.51.100.30")
	rr := stranger.do(http.MethodGet, "/v1/payment/verify?Authority=A1&Status=OK", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, stranger.jar, "httpToken")
	assert.NotContains(t, stranger.jar, "token")
	assert.NotContains(t, rr.Body.String(), "buyer@example.com")
	assert.Equal(t, http.StatusUnauthorized, stranger.do(http.MethodGet, "/v1/profile/my-purchases", nil).Code)

	// the owner replaying with their own session is refreshed as before
	rr = buyer.do(http.MethodGet, "/v1/payment/verify?Authority=A1&Status=OK", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "buyer@example.com")
	rr = buyer.do(http.MethodGet, "/v1/profile/my-purchases", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"delivered"`)
}

func TestRouter_GuardIgnoresForgedForwardedFor(t *testing.T) {
	h, _ := newTestRouter(t)
	// the proxy appends the attacker's real address to the forged chain
	attacker := newClient(t, h, "203.0.113.50, 10.0.0.1, 198.51.100.66")
	for i := 0; i < 10; i++ {
		rr := attacker.do(http.MethodPost, "/v1/login", map[string]string{"email": "nobody@example.com", "password": "x"})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, attacker.do(http.MethodGet, "/v1/health-check/ping", nil).Code)

	victim := newClient(t, h, "203.0.113.50")
	assert.Equal(t, http.StatusOK, victim.do(http.MethodGet, "/v1/health-check/ping", nil).Code)
}

func TestRouter_Metrics(t *testing.T) {
	h, _ := newTestRouter(t)
	c := newClient(t, h, "192.0.2.1")
	c.do(http.MethodGet, "/v1/health-check/ping", nil)

	rr := c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "shop_http_request_duration_seconds"))
}
