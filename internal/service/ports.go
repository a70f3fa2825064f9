package service

import (
	"context"
	"time"

	"storefront/internal/ledger"
	"storefront/internal/models"
	"storefront/internal/remote"
)

// SessionRepository stores sessions (session.SessionStore)
type SessionRepository interface {
	Save(ctx context.Context, sess *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// CartRepository stores ledger snapshots (session.CartStore)
type CartRepository interface {
	Load(ctx context.Context, sessionID string) (*ledger.Ledger, error)
	Save(ctx context.Context, sessionID string, l *ledger.Ledger) error
	Clear(ctx context.Context, sessionID string) error
}

// Locker provides owner-token locks and one-shot claims (redisclient.Client)
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RemoteAPI is the storefront REST API (remote.Client)
type RemoteAPI interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	Login(ctx context.Context, req remote.LoginRequest) (*remote.LoginResponse, error)
	Signup(ctx context.Context, req remote.SignupRequest) error
	FetchCart(ctx context.Context, token string) ([]byte, error)
	PushCart(ctx context.Context, token string, lines []models.CartLine) error
	VerifyPayment(ctx context.Context, token string, params models.CallbackParams) error
}

// PaymentRepository persists payment attempts (store.Store)
type PaymentRepository interface {
	CreatePaymentAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	GetPaymentAttempt(ctx context.Context, reference string) (*models.PaymentAttempt, error)
	CompletePaymentAttempt(ctx context.Context, reference, status, reason, gatewayRef string) (bool, error)
	MarkCartCleared(ctx context.Context, reference string) error
	GetPaymentAttemptsBySession(ctx context.Context, sessionID string) ([]models.PaymentAttempt, error)
}

// EventPublisher publishes domain events (broker.EventPublisher)
type EventPublisher interface {
	PublishCartChanged(ctx context.Context, event *models.CartChangedEvent) error
	PublishPaymentInitiated(ctx context.Context, event *models.PaymentInitiatedEvent) error
	PublishPaymentVerified(ctx context.Context, event *models.PaymentVerifiedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}
