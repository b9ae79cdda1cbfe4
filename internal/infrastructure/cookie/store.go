// Package cookie keeps attempt counters on the client. Each key becomes one
// HTTP-only cookie whose value is an HS256-signed attempt record, so the
// client can hold or drop a counter but cannot forge one.
package cookie

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const namePrefix = "rl_"

// record is the signed cookie payload.
type record struct {
	Count int `json:"count"`
	jwt.RegisteredClaims
}

// Codec signs and parses attempt records. It is shared by every request.
type Codec struct {
	secret []byte
	secure bool
	now    func() time.Time
}

func NewCodec(secret string, secure bool) *Codec {
	return &Codec{secret: []byte(secret), secure: secure, now: time.Now}
}

func (c *Codec) newRecord(count int, created time.Time, ttl time.Duration) *record {
	return &record{
		Count: count,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(created),
			ExpiresAt: jwt.NewNumericDate(c.now().Add(ttl)),
		},
	}
}

func (c *Codec) encode(rec *record) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, rec).SignedString(c.secret)
}

func (c *Codec) decode(value string) (*record, error) {
	tok, err := jwt.ParseWithClaims(value, &record{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	rec, ok := tok.Claims.(*record)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid attempt record")
	}
	return rec, nil
}

// For binds the codec to one request/response pair.
func (c *Codec) For(w http.ResponseWriter, r *http.Request) *Store {
	return &Store{codec: c, w: w, r: r, written: make(map[string]*record)}
}

// Store is a per-request view of the client's counter cookies. Writes are
// visible to later reads on the same Store.
type Store struct {
	codec   *Codec
	w       http.ResponseWriter
	r       *http.Request
	written map[string]*record
}

func cookieName(key string) string {
	return namePrefix + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (s *Store) load(key string) *record {
	if rec, ok := s.written[key]; ok {
		return rec
	}
	ck, err := s.r.Cookie(cookieName(key))
	if err != nil {
		return nil
	}
	rec, err := s.codec.decode(ck.Value)
	if err != nil {
		return nil
	}
	return rec
}

// Get returns 0 for missing, tampered or expired cookies.
func (s *Store) Get(_ context.Context, key string) (int, error) {
	rec := s.load(key)
	if rec == nil {
		return 0, nil
	}
	return rec.Count, nil
}

func (s *Store) Set(_ context.Context, key string, value int, ttl time.Duration) error {
	created := s.codec.now()
	if prev := s.load(key); prev != nil && prev.IssuedAt != nil {
		created = prev.IssuedAt.Time
	}
	rec := s.codec.newRecord(value, created, ttl)
	signed, err := s.codec.encode(rec)
	if err != nil {
		return err
	}
	s.written[key] = rec
	http.SetCookie(s.w, &http.Cookie{
		Name:     cookieName(key),
		Value:    signed,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.codec.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.written[key] = nil
	http.SetCookie(s.w, &http.Cookie{
		Name:     cookieName(key),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.codec.secure,
	})
	return nil
}
