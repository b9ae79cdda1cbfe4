// Package verification issues and checks short numeric one-time codes sent
// to an email address or phone number.
package verification

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/go-shop-api/internal/application/limit"
	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/infrastructure/logger"
	"github.com/go-shop-api/internal/pkg/code"
	"github.com/go-shop-api/internal/pkg/validate"
	"go.uber.org/zap"
)

const (
	CodeTTL        = 180 * time.Second
	SendCap        = 5
	SendWindow     = 5 * time.Minute
	ResendCooldown = 3 * time.Minute
)

var (
	ErrCodeLive  = domain.E(domain.KindRateLimit, "wait for the current code to expire before requesting a new one")
	ErrSendCap   = domain.E(domain.KindRateLimit, "too many codes requested, please wait 5 minutes")
	ErrWrongCode = domain.E(domain.KindValidation, "the code you entered is incorrect")
)

type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type Recorder interface {
	CodeIssued(route, result string)
}

type nopRecorder struct{}

func (nopRecorder) CodeIssued(string, string) {}

type IssueRequest struct {
	Recipient string
	Route     string // scopes the send cap, e.g. "/v1/signup/send-code"
	Purpose   string // optional; binds the code to one flow
}

type Issued struct {
	Message  string
	ResendAt time.Time
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*Issued, error)
	Check(ctx context.Context, recipient, submitted string) error
	CheckPurpose(ctx context.Context, purpose, recipient, submitted string) error
}

// ServiceDeps bundles everything the verification service needs.
// SMS may be nil when no SMS channel is configured.
type ServiceDeps struct {
	Store      limit.Store
	Mailer     Mailer
	SMS        SMSSender
	Production bool
	Logger     *zap.Logger
	Metrics    Recorder
	Now        func() time.Time
}

type service struct {
	store      limit.Store
	mailer     Mailer
	sms        SMSSender
	production bool
	log        *zap.Logger
	metrics    Recorder
	now        func() time.Time
}

func NewService(d ServiceDeps) Service {
	s := &service{
		store:      d.Store,
		mailer:     d.Mailer,
		sms:        d.SMS,
		production: d.Production,
		log:        d.Logger,
		metrics:    d.Metrics,
		now:        d.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func codeKey(recipient string) string { return "code:" + recipient }
func sendsKey(route, recipient string) string { return "sends:" + route + ":" + recipient }
func purposeKey(recipient string) string { return "purpose:" + recipient }

// purposeTag maps a purpose onto the integer the counter store can hold.
// Zero means unbound.
func purposeTag(purpose string) int {
	if purpose == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(purpose))
	return int(h.Sum32()&0x7fffffff) + 1
}

// Normalize lower-cases emails so lookups do not depend on input casing.
func Normalize(recipient string) string {
	r := strings.TrimSpace(recipient)
	if strings.Contains(r, "@") {
		return strings.ToLower(r)
	}
	return r
}

func (s *service) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	recipient := Normalize(req.Recipient)
	if recipient == "" {
		return nil, domain.E(domain.KindValidation, "recipient is required")
	}

	live, err := s.store.Get(ctx, codeKey(recipient))
	if err != nil {
		return nil, fmt.Errorf("read code: %w", err)
	}
	if live != 0 {
		s.metrics.CodeIssued(req.Route, "live")
		return nil, ErrCodeLive
	}
	sends, err := s.store.Get(ctx, sendsKey(req.Route, recipient))
	if err != nil {
		return nil, fmt.Errorf("read send count: %w", err)
	}
	if sends >= SendCap {
		s.metrics.CodeIssued(req.Route, "capped")
		return nil, ErrSendCap
	}

	c := code.Placeholder
	if s.production {
		if c, err = code.New(); err != nil {
			return nil, err
		}
	}
	n, _ := strconv.Atoi(c)
	if err := s.store.Set(ctx, codeKey(recipient), n, CodeTTL); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}
	// one purpose slot per recipient, rewritten on every issue so no marker
	// outlives the code it was issued with
	if tag := purposeTag(req.Purpose); tag != 0 {
		if err := s.store.Set(ctx, purposeKey(recipient), tag, CodeTTL); err != nil {
			return nil, fmt.Errorf("store code purpose: %w", err)
		}
	} else if err := s.store.Del(ctx, purposeKey(recipient)); err != nil {
		return nil, fmt.Errorf("clear code purpose: %w", err)
	}
	if err := s.store.Set(ctx, sendsKey(req.Route, recipient), sends+1, SendWindow); err != nil {
		return nil, fmt.Errorf("count send: %w", err)
	}

	issued := &Issued{ResendAt: s.now().Add(ResendCooldown)}
	if !s.production {
		issued.Message = "enter " + code.Placeholder + " as the code"
		s.metrics.CodeIssued(req.Route, "placeholder")
		return issued, nil
	}

	if err := s.dispatch(ctx, recipient, c); err != nil {
		s.drop(ctx, recipient)
		s.log.Error("code dispatch failed", logger.Email("recipient", recipient), zap.String("route", req.Route), zap.Error(err))
		s.metrics.CodeIssued(req.Route, "failed")
		return nil, domain.Wrap(domain.KindGateway, "could not send the code, check your connection and try again", err)
	}
	s.metrics.CodeIssued(req.Route, "sent")
	issued.Message = "enter the code you received"
	return issued, nil
}

func (s *service) dispatch(ctx context.Context, recipient, c string) error {
	if validate.Var(recipient, "e164") {
		if s.sms == nil {
			return fmt.Errorf("no SMS channel configured")
		}
		return s.sms.SendSMS(ctx, recipient, "Your verification code: "+c)
	}
	return s.mailer.SendEmail(ctx, recipient, "Your verification code", "Your verification code: "+c+"\nIt expires in 3 minutes.")
}

// Check succeeds only for the live code of recipient and consumes it, so a
// second Check with the same code fails.
func (s *service) Check(ctx context.Context, recipient, submitted string) error {
	return s.CheckPurpose(ctx, "", recipient, submitted)
}

// CheckPurpose is Check for a code that was issued with the given purpose.
func (s *service) CheckPurpose(ctx context.Context, purpose, recipient, submitted string) error {
	recipient = Normalize(recipient)
	want, err := s.store.Get(ctx, codeKey(recipient))
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}
	// digits only, compared as text: "+12345" and "012345" are not 12345
	if want == 0 || strings.TrimSpace(submitted) != strconv.Itoa(want) {
		return ErrWrongCode
	}
	if tag := purposeTag(purpose); tag != 0 {
		bound, err := s.store.Get(ctx, purposeKey(recipient))
		if err != nil {
			return fmt.Errorf("read code purpose: %w", err)
		}
		if bound != tag {
			return ErrWrongCode
		}
	}
	s.drop(ctx, recipient)
	return nil
}

// drop consumes the recipient's code together with whatever purpose it was
// bound to.
func (s *service) drop(ctx context.Context, recipient string) {
	if err := s.store.Del(ctx, codeKey(recipient)); err != nil {
		s.log.Warn("failed to delete code", logger.Email("recipient", recipient), zap.Error(err))
	}
	if err := s.store.Del(ctx, purposeKey(recipient)); err != nil {
		s.log.Warn("failed to delete code purpose", logger.Email("recipient", recipient), zap.Error(err))
	}
}
