package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
)

// ErrPaymentNotFound is returned when no attempt matches a reference
var ErrPaymentNotFound = errors.New("payment attempt not found")

// CreatePaymentAttempt records a new attempt in the INITIATED state
func (s *Store) CreatePaymentAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (reference, session_id, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	attempt.Status = models.PaymentStatusInitiated
	return s.db.QueryRowxContext(ctx, query,
		attempt.Reference, attempt.SessionID, attempt.Amount, attempt.Status).
		Scan(&attempt.CreatedAt, &attempt.UpdatedAt)
}

// GetPaymentAttempt retrieves an attempt by its transaction reference
func (s *Store) GetPaymentAttempt(ctx context.Context, reference string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := s.db.GetContext(ctx, &attempt, "SELECT * FROM payment_attempts WHERE reference = $1", reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, reference)
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// CompletePaymentAttempt moves an INITIATED attempt to a terminal status.
// Returns false when the attempt was already terminal, leaving it untouched.
func (s *Store) CompletePaymentAttempt(ctx context.Context, reference, status, reason, gatewayRef string) (bool, error) {
	if status != models.PaymentStatusVerified && status != models.PaymentStatusFailed {
		return false, fmt.Errorf("invalid terminal status: %s", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_attempts
		SET status = $1, reason = $2, gateway_ref = $3, updated_at = NOW()
		WHERE reference = $4 AND status = $5`,
		status, reason, gatewayRef, reference, models.PaymentStatusInitiated)
	if err != nil {
		return false, fmt.Errorf("failed to update payment attempt: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkCartCleared records that the ledger of a verified attempt was emptied
func (s *Store) MarkCartCleared(ctx context.Context, reference string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE payment_attempts
		SET cart_cleared = TRUE, updated_at = NOW()
		WHERE reference = $1 AND status = $2`,
		reference, models.PaymentStatusVerified)
	if err != nil {
		return fmt.Errorf("failed to mark cart cleared: %w", err)
	}
	return nil
}

// GetPaymentAttemptsBySession lists a session's attempts, newest first
func (s *Store) GetPaymentAttemptsBySession(ctx context.Context, sessionID string) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := s.db.SelectContext(ctx, &attempts,
		"SELECT * FROM payment_attempts WHERE session_id = $1 ORDER BY created_at DESC", sessionID)
	return attempts, err
}
