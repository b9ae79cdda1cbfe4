// Package file hands out short-lived links to product files for callers
// entitled to them.
package file

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/go-shop-api/internal/domain"
	"go.uber.org/zap"
)

// FreeChapter is readable without a purchase.
const FreeChapter = "1"

var ErrNotPurchased = domain.E(domain.KindForbidden, "you have not purchased this product")

type ObjectStore interface {
	Exists(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Service interface {
	Link(ctx context.Context, caller domain.Identity, productID, chapter, name string) (string, error)
}

type ServiceDeps struct {
	Objects ObjectStore
	// Key maps a product file to its object key.
	Key    func(productID, chapter, name string) string
	TTL    time.Duration
	Logger *zap.Logger
}

type service struct {
	objects ObjectStore
	key     func(productID, chapter, name string) string
	ttl     time.Duration
	log     *zap.Logger
}

func NewService(d ServiceDeps) Service {
	s := &service{objects: d.Objects, key: d.Key, ttl: d.TTL, log: d.Logger}
	if s.key == nil {
		s.key = func(p, c, n string) string { return path.Join("products", p, c, n) }
	}
	if s.ttl <= 0 {
		s.ttl = 15 * time.Minute
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Link returns a presigned URL for one file. The entitlement list comes from
// the caller's verified session.
func (s *service) Link(ctx context.Context, caller domain.Identity, productID, chapter, name string) (string, error) {
	productID, chapter, name = sanitize(productID), sanitize(chapter), sanitize(name)
	if chapter != FreeChapter && !caller.IsAdmin && !domain.HasEntitlement(caller.Entitlements, productID) {
		return "", ErrNotPurchased
	}
	key := s.key(productID, chapter, name)
	if err := s.objects.Exists(ctx, key); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.Wrap(domain.KindNotFound, "file not found", err)
		}
		return "", err
	}
	url, err := s.objects.PresignedURL(ctx, key, s.ttl)
	if err != nil {
		return "", err
	}
	s.log.Debug("file link issued", zap.String("key", key), zap.String("user_id", caller.UserID))
	return url, nil
}

// sanitize strips directory components and keeps only alphanumerics, dot,
// dash and underscore so a path segment cannot escape its prefix.
func sanitize(name string) string {
	name = path.Base(name)
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if out := b.String(); out != "" && out != "." && out != ".." {
		return out
	}
	return "_"
}
