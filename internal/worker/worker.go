package worker

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/broker"
	"storefront/internal/ledger"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// SessionLookup resolves the session a cart event belongs to
type SessionLookup interface {
	Get(ctx context.Context, id string) (*models.Session, error)
}

// CartLoader reads the session's current ledger snapshot
type CartLoader interface {
	Load(ctx context.Context, sessionID string) (*ledger.Ledger, error)
}

// CartMirror is the remote cart endpoint
type CartMirror interface {
	PushCart(ctx context.Context, token string, lines []models.CartLine) error
}

// MirrorWorker replays cart changes to the remote cart API
type MirrorWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	sessions     SessionLookup
	carts        CartLoader
	mirror       CartMirror
	logger       *zap.Logger
}

// NewMirrorWorker creates a new mirror worker
func NewMirrorWorker(consumer *broker.Consumer, sessions SessionLookup, carts CartLoader, mirror CartMirror) *MirrorWorker {
	w := &MirrorWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		sessions:     sessions,
		carts:        carts,
		mirror:       mirror,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnCartChanged(w.HandleCartChanged)
	return w
}

// HandleCartChanged pushes the session's current ledger to the remote mirror.
// Events are published after the cart lock is released and may arrive out of
// order, so the snapshot is read at handling time instead of from the event.
// Events for sessions that are gone or cannot use a cart are dropped.
func (w *MirrorWorker) HandleCartChanged(ctx context.Context, event *models.CartChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "MirrorWorker.HandleCartChanged")
	defer span.End()

	sess, err := w.sessions.Get(ctx, event.SessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		util.CartMirrorWritesTotal.WithLabelValues("skipped").Inc()
		w.logger.Debug("Dropping cart event for closed session", zap.String("session_id", event.SessionID))
		return nil
	}
	if err != nil {
		util.CartMirrorWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.CanUseCart() || sess.APIToken == "" {
		util.CartMirrorWritesTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	l, err := w.carts.Load(ctx, event.SessionID)
	if err != nil {
		util.CartMirrorWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load cart: %w", err)
	}

	if err := w.mirror.PushCart(ctx, sess.APIToken, l.Lines()); err != nil {
		util.CartMirrorWritesTotal.WithLabelValues("error").Inc()
		util.SpanError(span, err)
		w.logger.Warn("Cart mirror write failed",
			zap.String("session_id", event.SessionID),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return err
	}

	util.CartMirrorWritesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Start starts the worker
func (w *MirrorWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting cart mirror worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *MirrorWorker) Stop() error {
	w.logger.Info("Stopping cart mirror worker")
	return w.consumer.Close()
}
