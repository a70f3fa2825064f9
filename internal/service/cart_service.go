package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/broker"
	"storefront/internal/ledger"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	lockAttempts = 5
	lockBackoff  = 20 * time.Millisecond
)

// CartView is the cart as returned to clients
type CartView struct {
	Lines     []models.CartLine `json:"lines"`
	Total     decimal.Decimal   `json:"total"`
	ItemCount int               `json:"item_count"`
}

func newCartView(l *ledger.Ledger) *CartView {
	return &CartView{
		Lines:     l.Lines(),
		Total:     l.Total(),
		ItemCount: l.ItemCount(),
	}
}

// CartService applies ledger mutations for a session
type CartService struct {
	carts     CartRepository
	locker    Locker
	catalog   *CatalogService
	publisher EventPublisher
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(
	carts CartRepository,
	locker Locker,
	catalog *CatalogService,
	publisher EventPublisher,
	lockTTL time.Duration,
) *CartService {
	return &CartService{
		carts:     carts,
		locker:    locker,
		catalog:   catalog,
		publisher: publisher,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
	}
}

// GetCart returns the session's cart
func (s *CartService) GetCart(ctx context.Context, sess *models.Session) (*CartView, error) {
	if err := AuthorizeCart(sess); err != nil {
		return nil, err
	}

	l, err := s.carts.Load(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return newCartView(l), nil
}

// AddItem adds quantity units of a catalog product. The line's price is taken
// from the catalog, never from the caller.
func (s *CartService) AddItem(ctx context.Context, sess *models.Session, productID string, quantity int) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem",
		attribute.String("product_id", productID),
		attribute.Int("quantity", quantity))
	defer span.End()

	if err := AuthorizeCart(sess); err != nil {
		util.CartMutationsRejected.WithLabelValues("unauthorized").Inc()
		return nil, err
	}
	if quantity < 1 || quantity > ledger.MaxLineQuantity {
		util.CartMutationsRejected.WithLabelValues("invalid_quantity").Inc()
		return nil, fmt.Errorf("%w: %d", ledger.ErrInvalidQuantity, quantity)
	}

	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			util.CartMutationsRejected.WithLabelValues("unknown_product").Inc()
		}
		util.SpanError(span, err)
		return nil, err
	}

	return s.mutate(ctx, sess.ID, "add", func(l *ledger.Ledger) (bool, error) {
		if err := l.AddItem(*product, quantity); err != nil {
			return false, err
		}
		return true, nil
	})
}

// IncreaseQuantity adds one unit to an existing line
func (s *CartService) IncreaseQuantity(ctx context.Context, sess *models.Session, id string) (*CartView, error) {
	if err := AuthorizeCart(sess); err != nil {
		util.CartMutationsRejected.WithLabelValues("unauthorized").Inc()
		return nil, err
	}
	return s.mutate(ctx, sess.ID, "increase", func(l *ledger.Ledger) (bool, error) {
		return l.IncreaseQuantity(id)
	})
}

// DecreaseQuantity removes one unit, dropping the line when it reaches zero
func (s *CartService) DecreaseQuantity(ctx context.Context, sess *models.Session, id string) (*CartView, error) {
	if err := AuthorizeCart(sess); err != nil {
		util.CartMutationsRejected.WithLabelValues("unauthorized").Inc()
		return nil, err
	}
	return s.mutate(ctx, sess.ID, "decrease", func(l *ledger.Ledger) (bool, error) {
		return l.DecreaseQuantity(id), nil
	})
}

// RemoveItem drops a line
func (s *CartService) RemoveItem(ctx context.Context, sess *models.Session, id string) (*CartView, error) {
	if err := AuthorizeCart(sess); err != nil {
		util.CartMutationsRejected.WithLabelValues("unauthorized").Inc()
		return nil, err
	}
	return s.mutate(ctx, sess.ID, "remove", func(l *ledger.Ledger) (bool, error) {
		return l.RemoveItem(id), nil
	})
}

// Clear empties the session's ledger and mirrors the empty cart
func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	_, err := s.mutate(ctx, sessionID, "clear", func(l *ledger.Ledger) (bool, error) {
		if l.Len() == 0 {
			return false, nil
		}
		l.Clear()
		return true, nil
	})
	return err
}

// Discard drops the session's snapshot without touching the remote mirror
func (s *CartService) Discard(ctx context.Context, sessionID string) error {
	return s.carts.Clear(ctx, sessionID)
}

// Adopt replaces an empty ledger with a restored snapshot. A non-empty ledger
// is left alone. Returns whether the snapshot was adopted.
func (s *CartService) Adopt(ctx context.Context, sessionID string, snapshot []byte) (bool, error) {
	incoming, err := ledger.Restore(snapshot)
	if err != nil {
		return false, err
	}
	if incoming.Len() == 0 {
		return false, nil
	}

	adopted := false
	_, err = s.withLock(ctx, sessionID, func() (*CartView, error) {
		current, err := s.carts.Load(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load cart: %w", err)
		}
		if current.Len() > 0 {
			return nil, nil
		}
		if err := s.carts.Save(ctx, sessionID, incoming); err != nil {
			return nil, fmt.Errorf("failed to save cart: %w", err)
		}
		adopted = true
		return nil, nil
	})
	return adopted, err
}

// Total returns the session's ledger total
func (s *CartService) Total(ctx context.Context, sessionID string) (decimal.Decimal, error) {
	l, err := s.carts.Load(ctx, sessionID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load cart: %w", err)
	}
	return l.Total(), nil
}

// mutate applies fn under the session lock. The change event is published
// after the lock is released so a slow broker never blocks the next mutation.
func (s *CartService) mutate(ctx context.Context, sessionID, op string, fn func(*ledger.Ledger) (bool, error)) (*CartView, error) {
	var changed *ledger.Ledger

	view, err := s.withLock(ctx, sessionID, func() (*CartView, error) {
		l, err := s.carts.Load(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load cart: %w", err)
		}

		ok, err := fn(l)
		if err != nil {
			util.CartMutationsRejected.WithLabelValues("invalid_item").Inc()
			return nil, err
		}
		if !ok {
			return newCartView(l), nil
		}

		if err := s.carts.Save(ctx, sessionID, l); err != nil {
			return nil, fmt.Errorf("failed to save cart: %w", err)
		}
		util.CartMutationsTotal.WithLabelValues(op).Inc()
		changed = l
		return newCartView(l), nil
	})
	if err != nil {
		return nil, err
	}

	if changed != nil {
		s.publishChanged(ctx, sessionID, changed)
	}
	return view, nil
}

func (s *CartService) publishChanged(ctx context.Context, sessionID string, l *ledger.Ledger) {
	event := &models.CartChangedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeCartChanged),
		SessionID: sessionID,
		Lines:     l.Lines(),
		Total:     l.Total(),
	}
	if err := s.publisher.PublishCartChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish CartChanged event",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// withLock runs fn while holding the session's cart lock
func (s *CartService) withLock(ctx context.Context, sessionID string, fn func() (*CartView, error)) (*CartView, error) {
	key := fmt.Sprintf("cart:%s", sessionID)

	start := time.Now()
	token, err := s.acquire(ctx, key)
	util.CartLockWaitLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
			s.logger.Warn("Failed to release cart lock", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	return fn()
}

func (s *CartService) acquire(ctx context.Context, key string) (string, error) {
	for attempt := 1; attempt <= lockAttempts; attempt++ {
		token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
		if err != nil {
			return "", fmt.Errorf("failed to acquire cart lock: %w", err)
		}
		if ok {
			return token, nil
		}
		if attempt == lockAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * lockBackoff):
		}
	}

	util.CartMutationsRejected.WithLabelValues("busy").Inc()
	return "", ErrCartBusy
}
