package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/gateway"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/remote"
	"storefront/internal/session"
	"storefront/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	m            sync.Mutex
	products     []models.Product
	productsErr  error
	productCalls int
	// productsGate, when set, holds ListProducts until closed or ctx is done
	productsGate chan struct{}

	loginResp *remote.LoginResponse
	loginErr  error
	signupErr error

	cart      []byte
	cartErr   error
	pushed    [][]models.CartLine
	verifyErr error
	verified  []models.CallbackParams
	tokens    []string
}

func (m *mockRemote) ListProducts(ctx context.Context) ([]models.Product, error) {
	m.m.Lock()
	m.productCalls++
	gate := m.productsGate
	m.m.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.m.Lock()
	defer m.m.Unlock()
	if m.productsErr != nil {
		return nil, m.productsErr
	}
	return m.products, nil
}

func (m *mockRemote) listCalls() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.productCalls
}

func (m *mockRemote) Login(context.Context, remote.LoginRequest) (*remote.LoginResponse, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.loginResp, nil
}

func (m *mockRemote) Signup(context.Context, remote.SignupRequest) error {
	return m.signupErr
}

func (m *mockRemote) FetchCart(context.Context, string) ([]byte, error) {
	if m.cartErr != nil {
		return nil, m.cartErr
	}
	return m.cart, nil
}

func (m *mockRemote) PushCart(_ context.Context, _ string, lines []models.CartLine) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.pushed = append(m.pushed, lines)
	return nil
}

func (m *mockRemote) VerifyPayment(_ context.Context, token string, params models.CallbackParams) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.verified = append(m.verified, params)
	m.tokens = append(m.tokens, token)
	return m.verifyErr
}

func (m *mockRemote) verifyCalls() int {
	m.m.Lock()
	defer m.m.Unlock()
	return len(m.verified)
}

type mockPayments struct {
	m        sync.Mutex
	attempts map[string]*models.PaymentAttempt
	order    []string
}

func newMockPayments() *mockPayments {
	return &mockPayments{attempts: map[string]*models.PaymentAttempt{}}
}

func (m *mockPayments) CreatePaymentAttempt(_ context.Context, attempt *models.PaymentAttempt) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.attempts[attempt.Reference]; ok {
		return fmt.Errorf("duplicate reference %s", attempt.Reference)
	}
	attempt.Status = models.PaymentStatusInitiated
	attempt.CreatedAt = time.Now()
	attempt.UpdatedAt = attempt.CreatedAt
	stored := *attempt
	m.attempts[attempt.Reference] = &stored
	m.order = append(m.order, attempt.Reference)
	return nil
}

func (m *mockPayments) GetPaymentAttempt(_ context.Context, reference string) (*models.PaymentAttempt, error) {
	m.m.Lock()
	defer m.m.Unlock()
	a, ok := m.attempts[reference]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrPaymentNotFound, reference)
	}
	out := *a
	return &out, nil
}

func (m *mockPayments) CompletePaymentAttempt(_ context.Context, reference, status, reason, gatewayRef string) (bool, error) {
	m.m.Lock()
	defer m.m.Unlock()
	a, ok := m.attempts[reference]
	if !ok || a.Status != models.PaymentStatusInitiated {
		return false, nil
	}
	a.Status = status
	a.Reason = reason
	a.GatewayRef = gatewayRef
	a.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockPayments) MarkCartCleared(_ context.Context, reference string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if a, ok := m.attempts[reference]; ok && a.Status == models.PaymentStatusVerified {
		a.CartCleared = true
	}
	return nil
}

func (m *mockPayments) GetPaymentAttemptsBySession(_ context.Context, sessionID string) ([]models.PaymentAttempt, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var out []models.PaymentAttempt
	for i := len(m.order) - 1; i >= 0; i-- {
		if a := m.attempts[m.order[i]]; a.SessionID == sessionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockPayments) only(t *testing.T) *models.PaymentAttempt {
	t.Helper()
	m.m.Lock()
	defer m.m.Unlock()
	require.Len(t, m.order, 1)
	out := *m.attempts[m.order[0]]
	return &out
}

type mockPublisher struct {
	m        sync.Mutex
	delay    time.Duration
	cart     []*models.CartChangedEvent
	started  []*models.PaymentInitiatedEvent
	verified []*models.PaymentVerifiedEvent
	failed   []*models.PaymentFailedEvent
}

func (m *mockPublisher) PublishCartChanged(_ context.Context, e *models.CartChangedEvent) error {
	// a slow broker round trip, taken outside the mutex
	time.Sleep(m.delay)
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = append(m.cart, e)
	return nil
}

func (m *mockPublisher) PublishPaymentInitiated(_ context.Context, e *models.PaymentInitiatedEvent) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.started = append(m.started, e)
	return nil
}

func (m *mockPublisher) PublishPaymentVerified(_ context.Context, e *models.PaymentVerifiedEvent) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.verified = append(m.verified, e)
	return nil
}

func (m *mockPublisher) PublishPaymentFailed(_ context.Context, e *models.PaymentFailedEvent) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.failed = append(m.failed, e)
	return nil
}

type fixture struct {
	mr        *miniredis.Miniredis
	redis     *redisclient.Client
	sessions  *session.SessionStore
	carts     *session.CartStore
	remote    *mockRemote
	payments  *mockPayments
	publisher *mockPublisher

	catalog  *CatalogService
	cart     *CartService
	auth     *AuthService
	payment  *PaymentService
	customer *models.Session
}

func catalogProducts() []models.Product {
	return []models.Product{
		{ID: "1", Name: "Milk", Unit: "litre", Price: decimal.NewFromInt(80)},
		{ID: "2", Name: "Bread", Unit: "loaf", Price: decimal.NewFromInt(50)},
		{ID: "3", Name: "Paneer", Unit: "kg", Price: decimal.RequireFromString("99.50")},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		mr:        mr,
		redis:     client,
		sessions:  session.NewSessionStore(client, time.Hour),
		carts:     session.NewCartStore(client, time.Hour),
		remote:    &mockRemote{products: catalogProducts()},
		payments:  newMockPayments(),
		publisher: &mockPublisher{},
	}

	gw := gateway.New(gateway.Config{
		FormURL:     "https://rc-epay.esewa.com.np/api/epay/main/v2/form",
		ProductCode: "EPAYTEST",
		SuccessURL:  "http://localhost:3000/esewa-success",
		FailureURL:  "http://localhost:3000/esewa-failure",
	})

	f.catalog = NewCatalogService(f.remote)
	f.cart = NewCartService(f.carts, client, f.catalog, f.publisher, time.Second)
	f.auth = NewAuthService(f.sessions, f.cart, f.remote)
	f.payment = NewPaymentService(f.payments, f.sessions, f.cart, client, f.remote, gw, f.publisher, time.Second, 10*time.Minute)

	f.customer = &models.Session{ID: "sess-1", APIToken: "api-token", LoggedIn: true, Role: models.RoleUser}
	require.NoError(t, f.sessions.Save(context.Background(), f.customer))
	return f
}
