package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/broker"
	"storefront/internal/gateway"
	"storefront/internal/ledger"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Messages shown on the result pages
const (
	MessageVerified        = "Payment verified! Thank you for your purchase."
	MessageVerifyFailed    = "Payment verification failed. Please contact support."
	MessageMissingDetails  = "Missing payment details."
	MessageGatewayDeclined = "Your payment could not be processed. Please try again."
)

// Failure reasons recorded on attempts
const (
	ReasonMissingParams   = "missing parameters"
	ReasonUnknownAttempt  = "unknown transaction"
	ReasonAmountMismatch  = "amount mismatch"
	ReasonRemoteRejected  = "verification rejected"
	ReasonGatewayFailure  = "payment failed at gateway"
	ReasonInvalidCallback = "invalid amount"
)

// PaymentResult is the outcome of a gateway redirect
type PaymentResult struct {
	Reference string `json:"reference,omitempty"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// PaymentService hands carts to the gateway and reconciles the callbacks
type PaymentService struct {
	payments      PaymentRepository
	sessions      SessionRepository
	carts         *CartService
	locker        Locker
	remote        RemoteAPI
	gateway       *gateway.Gateway
	publisher     EventPublisher
	verifyTimeout time.Duration
	claimTTL      time.Duration
	logger        *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	payments PaymentRepository,
	sessions SessionRepository,
	carts *CartService,
	locker Locker,
	remote RemoteAPI,
	gw *gateway.Gateway,
	publisher EventPublisher,
	verifyTimeout time.Duration,
	claimTTL time.Duration,
) *PaymentService {
	return &PaymentService{
		payments:      payments,
		sessions:      sessions,
		carts:         carts,
		locker:        locker,
		remote:        remote,
		gateway:       gw,
		publisher:     publisher,
		verifyTimeout: verifyTimeout,
		claimTTL:      claimTTL,
		logger:        util.GetLogger(),
	}
}

// InitiatePayment records a new attempt for the cart total and returns the
// form that hands control to the gateway
func (ps *PaymentService) InitiatePayment(ctx context.Context, sess *models.Session) (*gateway.Form, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiatePayment")
	defer span.End()

	if err := AuthorizeCart(sess); err != nil {
		return nil, err
	}

	total, err := ps.carts.Total(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	// the stored amount, the form and the callback comparison share one value
	total = ledger.RoundPrice(total)
	if !total.IsPositive() {
		return nil, ErrEmptyCart
	}

	ref, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction reference: %w", err)
	}

	attempt := &models.PaymentAttempt{
		Reference: ref.String(),
		SessionID: sess.ID,
		Amount:    total,
	}
	if err := ps.payments.CreatePaymentAttempt(ctx, attempt); err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to record payment attempt: %w", err)
	}

	form, err := ps.gateway.BuildForm(attempt)
	if err != nil {
		return nil, err
	}

	util.PaymentAttemptsTotal.Inc()
	span.SetAttributes(attribute.String("reference", attempt.Reference))
	ps.logger.Info("Payment initiated",
		zap.String("reference", attempt.Reference),
		zap.String("session_id", sess.ID),
		zap.String("amount", total.String()))

	event := &models.PaymentInitiatedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypePaymentInitiated),
		Reference: attempt.Reference,
		SessionID: sess.ID,
		Amount:    total,
	}
	if err := ps.publisher.PublishPaymentInitiated(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentInitiated event", zap.Error(err))
	}

	return form, nil
}

// VerifyPayment reconciles a success redirect. A given attempt is verified
// remotely at most once and its ledger is cleared at most once.
func (ps *PaymentService) VerifyPayment(ctx context.Context, params models.CallbackParams) (*PaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.VerifyPayment",
		attribute.String("pid", params.ProductID),
		attribute.String("rid", params.ReferenceID))
	defer span.End()

	if !params.Complete() {
		if params.ProductID != "" {
			ps.fail(ctx, params.ProductID, "", ReasonMissingParams)
		}
		util.PaymentFailedTotal.WithLabelValues("missing_params").Inc()
		return &PaymentResult{
			Reference: params.ProductID,
			Status:    models.PaymentStatusFailed,
			Reason:    ReasonMissingParams,
			Message:   MessageMissingDetails,
		}, nil
	}

	attempt, err := ps.payments.GetPaymentAttempt(ctx, params.ProductID)
	if errors.Is(err, store.ErrPaymentNotFound) {
		util.PaymentFailedTotal.WithLabelValues("unknown_attempt").Inc()
		ps.logger.Warn("Callback for unknown transaction", zap.String("pid", params.ProductID))
		return &PaymentResult{
			Reference: params.ProductID,
			Status:    models.PaymentStatusFailed,
			Reason:    ReasonUnknownAttempt,
			Message:   MessageVerifyFailed,
		}, nil
	}
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("failed to load payment attempt: %w", err)
	}

	if attempt.IsTerminal() {
		util.PaymentDuplicateCallbacksTotal.Inc()
		if attempt.Status == models.PaymentStatusVerified && !attempt.CartCleared {
			ps.clearPaidCart(ctx, attempt)
		}
		return resultFor(attempt, true), nil
	}

	claimed, err := ps.locker.Claim(ctx, fmt.Sprintf("payment:verify:%s", params.ReferenceID), ps.claimTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		util.PaymentDuplicateCallbacksTotal.Inc()
		ps.logger.Info("Verification already in flight", zap.String("reference", attempt.Reference))
		return resultFor(attempt, true), nil
	}

	amount, err := decimal.NewFromString(params.Amount)
	if err != nil {
		return ps.settleFailed(ctx, attempt, params.ReferenceID, ReasonInvalidCallback, "invalid_amount")
	}
	if !amount.Equal(attempt.Amount) {
		ps.logger.Warn("Callback amount does not match attempt",
			zap.String("reference", attempt.Reference),
			zap.String("expected", attempt.Amount.String()),
			zap.String("got", params.Amount))
		return ps.settleFailed(ctx, attempt, params.ReferenceID, ReasonAmountMismatch, "amount_mismatch")
	}

	token := ps.tokenFor(ctx, attempt.SessionID)

	verifyCtx, cancel := context.WithTimeout(ctx, ps.verifyTimeout)
	defer cancel()

	start := time.Now()
	err = ps.remote.VerifyPayment(verifyCtx, token, params)
	util.PaymentVerificationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.SpanError(span, err)
		ps.logger.Error("Remote verification failed",
			zap.String("reference", attempt.Reference),
			zap.Error(err))
		return ps.settleFailed(ctx, attempt, params.ReferenceID, ReasonRemoteRejected, "remote_rejected")
	}

	ok, err := ps.payments.CompletePaymentAttempt(ctx, attempt.Reference, models.PaymentStatusVerified, "", params.ReferenceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return ps.currentResult(ctx, attempt.Reference)
	}

	util.PaymentVerifiedTotal.Inc()
	ps.logger.Info("Payment verified",
		zap.String("reference", attempt.Reference),
		zap.String("gateway_ref", params.ReferenceID))

	ps.clearPaidCart(ctx, attempt)

	event := &models.PaymentVerifiedEvent{
		BaseEvent:  broker.NewBaseEvent(models.EventTypePaymentVerified),
		Reference:  attempt.Reference,
		SessionID:  attempt.SessionID,
		Amount:     attempt.Amount,
		GatewayRef: params.ReferenceID,
	}
	if err := ps.publisher.PublishPaymentVerified(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentVerified event", zap.Error(err))
	}

	return &PaymentResult{
		Reference: attempt.Reference,
		Status:    models.PaymentStatusVerified,
		Message:   MessageVerified,
	}, nil
}

// HandleFailureRedirect marks the referenced attempt failed. The result is
// always the fixed failure message and the ledger is kept.
func (ps *PaymentService) HandleFailureRedirect(ctx context.Context, reference string) *PaymentResult {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleFailureRedirect", attribute.String("reference", reference))
	defer span.End()

	if reference != "" {
		ps.fail(ctx, reference, "", ReasonGatewayFailure)
	}
	util.PaymentFailedTotal.WithLabelValues("gateway").Inc()

	return &PaymentResult{
		Reference: reference,
		Status:    models.PaymentStatusFailed,
		Reason:    ReasonGatewayFailure,
		Message:   MessageGatewayDeclined,
	}
}

// History lists the session's payment attempts, newest first
func (ps *PaymentService) History(ctx context.Context, sess *models.Session) ([]models.PaymentAttempt, error) {
	if err := AuthorizeCart(sess); err != nil {
		return nil, err
	}
	attempts, err := ps.payments.GetPaymentAttemptsBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment attempts: %w", err)
	}
	return attempts, nil
}

func (ps *PaymentService) settleFailed(ctx context.Context, attempt *models.PaymentAttempt, gatewayRef, reason, label string) (*PaymentResult, error) {
	util.PaymentFailedTotal.WithLabelValues(label).Inc()
	if !ps.fail(ctx, attempt.Reference, gatewayRef, reason) {
		return ps.currentResult(ctx, attempt.Reference)
	}
	return &PaymentResult{
		Reference: attempt.Reference,
		Status:    models.PaymentStatusFailed,
		Reason:    reason,
		Message:   MessageVerifyFailed,
	}, nil
}

// fail moves an INITIATED attempt to FAILED and publishes the event.
// Returns false when the attempt was unknown or already terminal.
func (ps *PaymentService) fail(ctx context.Context, reference, gatewayRef, reason string) bool {
	ok, err := ps.payments.CompletePaymentAttempt(ctx, reference, models.PaymentStatusFailed, reason, gatewayRef)
	if err != nil {
		ps.logger.Error("Failed to mark payment attempt failed",
			zap.String("reference", reference),
			zap.Error(err))
		return false
	}
	if !ok {
		return false
	}

	ps.logger.Warn("Payment failed",
		zap.String("reference", reference),
		zap.String("reason", reason))

	attempt, err := ps.payments.GetPaymentAttempt(ctx, reference)
	sessionID := ""
	if err == nil {
		sessionID = attempt.SessionID
	}

	event := &models.PaymentFailedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypePaymentFailed),
		Reference: reference,
		SessionID: sessionID,
		Reason:    reason,
	}
	if err := ps.publisher.PublishPaymentFailed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
	return true
}

// clearPaidCart empties the ledger of a verified attempt and records it.
// A failed clear leaves the marker unset so a replayed callback retries it.
func (ps *PaymentService) clearPaidCart(ctx context.Context, attempt *models.PaymentAttempt) {
	if err := ps.carts.Clear(ctx, attempt.SessionID); err != nil {
		ps.logger.Error("Failed to clear cart after verified payment",
			zap.String("reference", attempt.Reference),
			zap.String("session_id", attempt.SessionID),
			zap.Error(err))
		return
	}
	if err := ps.payments.MarkCartCleared(ctx, attempt.Reference); err != nil {
		ps.logger.Error("Failed to record cleared cart",
			zap.String("reference", attempt.Reference),
			zap.Error(err))
	}
}

func (ps *PaymentService) currentResult(ctx context.Context, reference string) (*PaymentResult, error) {
	attempt, err := ps.payments.GetPaymentAttempt(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment attempt: %w", err)
	}
	return resultFor(attempt, true), nil
}

// tokenFor returns the API token of the session that started the attempt
func (ps *PaymentService) tokenFor(ctx context.Context, sessionID string) string {
	sess, err := ps.sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			ps.logger.Warn("Failed to load session for verification", zap.Error(err))
		}
		return ""
	}
	return sess.APIToken
}

func resultFor(attempt *models.PaymentAttempt, duplicate bool) *PaymentResult {
	result := &PaymentResult{
		Reference: attempt.Reference,
		Status:    attempt.Status,
		Reason:    attempt.Reason,
		Duplicate: duplicate,
	}
	switch attempt.Status {
	case models.PaymentStatusVerified:
		result.Message = MessageVerified
	case models.PaymentStatusFailed:
		result.Message = MessageVerifyFailed
	default:
		result.Message = "Verifying payment..."
	}
	return result
}
