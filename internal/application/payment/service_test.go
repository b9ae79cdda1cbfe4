package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/infrastructure/zarinpal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type mockGateway struct{ mock.Mock }

func (m *mockGateway) Request(ctx context.Context, amount int64, cb, desc string) (*zarinpal.Session, error) {
	args := m.Called(ctx, amount, cb, desc)
	if s, _ := args.Get(0).(*zarinpal.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockGateway) Verify(ctx context.Context, amount int64, authority string) (*zarinpal.Verification, error) {
	args := m.Called(ctx, amount, authority)
	if v, _ := args.Get(0).(*zarinpal.Verification); v != nil {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

type fakeProducts map[string]*domain.Product

func (f fakeProducts) Get(_ context.Context, productID string) (*domain.Product, error) {
	if p, ok := f[productID]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

type fakeUsers map[string]*domain.User

func (f fakeUsers) Get(_ context.Context, userID string) (*domain.User, error) {
	if u, ok := f[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

// fakePayments applies settlements to the users map with the same
// conditions the DynamoDB transaction enforces.
type fakePayments struct {
	byAuthority map[string]*domain.Payment
	users       fakeUsers
	settles     int
	staleOnce   bool
	// indexLag makes GetByAuthority answer as an index that has not seen
	// the settlement yet.
	indexLag bool
}

func newFakePayments(users fakeUsers) *fakePayments {
	return &fakePayments{byAuthority: map[string]*domain.Payment{}, users: users}
}

func (f *fakePayments) Put(_ context.Context, p *domain.Payment) error {
	cp := *p
	f.byAuthority[p.Authority] = &cp
	return nil
}

func (f *fakePayments) Get(_ context.Context, paymentID string) (*domain.Payment, error) {
	for _, p := range f.byAuthority {
		if p.PaymentID == paymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePayments) GetByAuthority(_ context.Context, authority string) (*domain.Payment, error) {
	if p, ok := f.byAuthority[authority]; ok {
		cp := *p
		if f.indexLag {
			cp.Success, cp.RefID, cp.Status = false, nil, domain.PaymentPending
		}
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakePayments) ListSuccessfulByUser(_ context.Context, userID string) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range f.byAuthority {
		if p.UserID == userID && p.Success {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePayments) Settle(_ context.Context, s domain.Settlement) error {
	var p *domain.Payment
	for _, cand := range f.byAuthority {
		if cand.PaymentID == s.PaymentID {
			p = cand
		}
	}
	if p == nil || p.Success {
		return domain.ErrAlreadySettled
	}
	u := f.users[s.UserID]
	if f.staleOnce {
		f.staleOnce = false
		u.UpdatedAt = u.UpdatedAt.Add(time.Second)
		u.Entitlements = domain.AppendEntitlement(u.Entitlements, domain.Entitlement{ProductID: "other", Version: 1})
		return domain.ErrStaleWrite
	}
	if !u.UpdatedAt.Equal(s.UserUpdatedAt) {
		return domain.ErrStaleWrite
	}
	f.settles++
	ref := s.RefID
	p.Success = true
	p.RefID = &ref
	p.Status = domain.PaymentDelivered
	u.Entitlements = s.Entitlements
	u.UpdatedAt = u.UpdatedAt.Add(time.Second)
	return nil
}

type stubTokens struct{ last domain.Identity }

func (s *stubTokens) Pair(id domain.Identity) (jwtinfra.Pair, error) {
	s.last = id
	return jwtinfra.Pair{Script: "s-" + id.UserID, HTTP: "h-" + id.UserID}, nil
}

type countingRecorder map[string]int

func (c countingRecorder) PaymentOutcome(o string) { c[o]++ }

// --- helpers ---

var owner = domain.Identity{UserID: "u-1", Username: "reza"}

const (
	callback  = "https://shop.example/v1/payment/verify"
	authority = "A000000000000000000000000000000abcde"
)

type fixture struct {
	svc      Service
	gw       *mockGateway
	payments *fakePayments
	users    fakeUsers
	tokens   *stubTokens
	outcomes countingRecorder
}

func newFixture() *fixture {
	users := fakeUsers{"u-1": {
		UserID: "u-1", Username: "reza", Email: "reza@example.com",
		UpdatedAt: time.Unix(1_700_000_000, 0).UTC(),
	}}
	products := fakeProducts{"p-1": {ProductID: "p-1", Title: "Go course", Price: 10000, Version: 2}}
	f := &fixture{
		gw:       new(mockGateway),
		payments: newFakePayments(users),
		users:    users,
		tokens:   &stubTokens{},
		outcomes: countingRecorder{},
	}
	f.svc = NewService(ServiceDeps{
		Products: products,
		Payments: f.payments,
		Users:    users,
		Gateway:  f.gw,
		Tokens:   f.tokens,
		Metrics:  f.outcomes,
		Now:      func() time.Time { return time.Unix(1_700_000_100, 0) },
	})
	return f
}

func (f *fixture) initiate(t *testing.T) {
	t.Helper()
	f.gw.On("Request", mock.Anything, int64(10000), callback, "Go course").
		Return(&zarinpal.Session{Status: 100, Authority: authority, URL: "https://gw/StartPay/" + authority}, nil).Once()
	url, err := f.svc.Initiate(context.Background(), domain.Identity{UserID: "u-1"}, "p-1", callback)
	require.NoError(t, err)
	assert.Equal(t, "https://gw/StartPay/"+authority, url)
}

// --- initiate ---

func TestInitiate_StoresPendingPayment(t *testing.T) {
	f := newFixture()
	f.initiate(t)

	p, err := f.payments.GetByAuthority(context.Background(), authority)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, int64(10000), p.Amount)
	assert.Equal(t, 2, p.Version)
	assert.False(t, p.Success)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.NotEmpty(t, p.PaymentID)
}

func TestInitiate_AlreadyOwnedSkipsGateway(t *testing.T) {
	f := newFixture()
	f.users["u-1"].Entitlements = []domain.Entitlement{{ProductID: "p-1", Version: 1}}

	_, err := f.svc.Initiate(context.Background(), domain.Identity{UserID: "u-1"}, "p-1", callback)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	f.gw.AssertNotCalled(t, "Request", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.payments.byAuthority)
}

func TestInitiate_Failures(t *testing.T) {
	for _, tc := range []struct {
		name    string
		caller  domain.Identity
		product string
		session *zarinpal.Session
		gwErr   error
		want    domain.Kind
	}{
		{name: "anonymous", product: "p-1", want: domain.KindAuth},
		{name: "unknown user", caller: domain.Identity{UserID: "ghost"}, product: "p-1", want: domain.KindAuth},
		{name: "unknown product", caller: domain.Identity{UserID: "u-1"}, product: "nope", want: domain.KindNotFound},
		{name: "gateway error", caller: domain.Identity{UserID: "u-1"}, product: "p-1", gwErr: errors.New("timeout"), want: domain.KindGateway},
		{name: "gateway refused", caller: domain.Identity{UserID: "u-1"}, product: "p-1", session: &zarinpal.Session{Status: -9}, want: domain.KindGateway},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.gw.On("Request", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tc.session, tc.gwErr).Maybe()

			_, err := f.svc.Initiate(context.Background(), tc.caller, tc.product, callback)
			assert.Equal(t, tc.want, domain.KindOf(err))
			assert.Empty(t, f.payments.byAuthority)
		})
	}
}

// --- verify ---

func TestVerify_SettlesAndGrantsEntitlement(t *testing.T) {
	f := newFixture()
	f.initiate(t)
	f.gw.On("Verify", mock.Anything, int64(10000), authority).
		Return(&zarinpal.Verification{Status: 100, RefID: "201"}, nil).Once()

	res, err := f.svc.Verify(context.Background(), owner, authority, StatusOK)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.False(t, res.Replayed)
	require.NotNil(t, res.Payment.RefID)
	assert.Equal(t, "201", *res.Payment.RefID)
	assert.Equal(t, domain.PaymentDelivered, res.Payment.Status)
	assert.Equal(t, "h-u-1", res.Tokens.HTTP)
	assert.Equal(t, []domain.Entitlement{{ProductID: "p-1", Version: 2}}, res.Identity.Entitlements)
	assert.Equal(t, []domain.Entitlement{{ProductID: "p-1", Version: 2}}, f.users["u-1"].Entitlements)
	assert.Equal(t, 1, f.outcomes[string(OutcomeSettled)])
}

func TestVerify_ReplayIsIdempotent(t *testing.T) {
	f := newFixture()
	f.initiate(t)
	f.gw.On("Verify", mock.Anything, int64(10000), authority).
		Return(&zarinpal.Verification{Status: 100, RefID: "201"}, nil).Once()

	_, err := f.svc.Verify(context.Background(), owner, authority, StatusOK)
	require.NoError(t, err)

	res, err := f.svc.Verify(context.Background(), owner, authority, StatusOK)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	assert.True(t, res.Replayed)
	assert.Equal(t, "h-u-1", res.Tokens.HTTP)
	assert.Len(t, f.users["u-1"].Entitlements, 1)
	assert.Equal(t, 1, f.payments.settles)
	f.gw.AssertNumberOfCalls(t, "Verify", 1)
}

func TestVerify_ReplayByStrangerMintsNothing(t *testing.T) {
	f := newFixture()
	f.initiate(t)
	f.gw.On("Verify", mock.Anything, int64(10000), authority).
		Return(&zarinpal.Verification{Status: 100, RefID: "201"}, nil).Once()
	_, err := f.svc.Verify(context.Background(), owner, authority, StatusOK)
	require.NoError(t, err)
	f.tokens.last = domain.Identity{}

	for _, caller := range []domain.Identity{{}, {UserID: "u-2"}} {
		res, err := f.svc.Verify(context.Background(), caller, authority, StatusOK)
		require.NoError(t, err)
		assert.Equal(t, OutcomeSettled, res.Outcome)
		assert.True(t, res.Replayed)
		assert.Empty(t, res.Tokens.HTTP)
		assert.Empty(t, res.Identity.UserID)
	}
	assert.Empty(t, f.tokens.last.UserID, "no token pair was signed")
	f.gw.AssertNumberOfCalls(t, "Verify", 1)
}

func TestVerify_ReplaySeesSettlementDespiteIndexLag(t *testing.T) {
	f := newFixture()
	f.initiate(t)
	f.gw.On("Verify", mock.Anything, int64(10000), authority).
		Return(&zarinpal.Verification{Status: 100, RefID: "201"}, nil).Once()
	_, err := f.svc.Verify(context.Background(), owner, authority, StatusOK)
	require.NoError(t, err)

	f.payments.indexLag = true
	res, err := f.svc.Verify(context.Background(), owner, authority, StatusOK)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	f.gw.AssertNumberOfCalls(t, "Verify", 1)
	assert.Equal(t, 1, f.payments.settles)
}

func TestVerify_Outcomes(t *testing.T) {
	for _, tc := range []struct {
		name   string
		flag   string
		status int
		gwErr  error
		want   Outcome
	}{
		{name: "flag ok gateway refused", flag: "OK", status: -51, want: OutcomeAmbiguous},
		{name: "flag ok gateway unreachable", flag: "OK", gwErr: errors.New("dial"), want: OutcomeAmbiguous},
		{name: "flag nok gateway refused", flag: "NOK", status: -51, want: OutcomeFailed},
		{name: "flag nok gateway confirmed", flag: "NOK", status: 100, want: OutcomeRejected},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.initiate(t)
			var v *zarinpal.Verification
			if tc.gwErr == nil {
				v = &zarinpal.Verification{Status: tc.status}
			}
			f.gw.On("Verify", mock.Anything, int64(10000), authority).Return(v, tc.gwErr).Once()

			res, err := f.svc.Verify(context.Background(), owner, authority, tc.flag)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Outcome)
			assert.Empty(t, res.Tokens.HTTP)
			assert.Empty(t, f.users["u-1"].Entitlements)
			assert.Zero(t, f.payments.settles)
		})
	}
}

func TestVerify_LookupFailures(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Verify(context.Background(), owner, "", StatusOK)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = f.svc.Verify(context.Background(), owner, "unknown", StatusOK)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	f.gw.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_RetriesOnConcurrentUserWrite(t *testing.T) {
	f := newFixture()
	f.initiate(t)
	f.payments.staleOnce = true
	f.gw.On("Verify", mock.Anything, int64(10000), authority).
		Return(&zarinpal.Verification{Status: 100, RefID: "201"}, nil).Once()

	res, err := f.svc.Verify(context.Background(), owner, authority, StatusOK)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSettled, res.Outcome)
	// the entitlement written concurrently survives the retry
	assert.Equal(t, []domain.Entitlement{
		{ProductID: "other", Version: 1},
		{ProductID: "p-1", Version: 2},
	}, f.users["u-1"].Entitlements)
}

// --- purchases ---

func TestPurchases(t *testing.T) {
	f := newFixture()
	f.initiate(t)

	list, err := f.svc.Purchases(context.Background(), "u-1")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	f.gw.On("Verify", mock.Anything, int64(10000), authority).
		Return(&zarinpal.Verification{Status: 100, RefID: "201"}, nil).Once()
	_, err = f.svc.Verify(context.Background(), owner, authority, StatusOK)
	require.NoError(t, err)

	list, err = f.svc.Purchases(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p-1", list[0].ProductID)

	_, err = f.svc.Purchases(context.Background(), "")
	assert.Equal(t, domain.KindAuth, domain.KindOf(err))
}
