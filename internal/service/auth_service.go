package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/remote"
	"storefront/internal/session"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthorizeCart fails with ErrUnauthorized unless sess is a logged-in user
func AuthorizeCart(sess *models.Session) error {
	if !sess.CanUseCart() {
		return ErrUnauthorized
	}
	return nil
}

// AuthService manages storefront sessions backed by the remote auth API
type AuthService struct {
	sessions SessionRepository
	carts    *CartService
	remote   RemoteAPI
	logger   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(sessions SessionRepository, carts *CartService, remote RemoteAPI) *AuthService {
	return &AuthService{
		sessions: sessions,
		carts:    carts,
		remote:   remote,
		logger:   util.GetLogger(),
	}
}

// LoginRequest represents a login form
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"isAdmin"`
}

// SignupRequest represents a signup form
type SignupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates against the remote API and opens a session
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*models.Session, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	resp, err := s.remote.Login(ctx, remote.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("login failed: %w", err)
	}

	sess := &models.Session{
		ID:        uuid.NewString(),
		APIToken:  resp.Token,
		LoggedIn:  true,
		Role:      models.ParseRole(resp.User.Role),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	util.SessionsCreatedTotal.WithLabelValues(string(sess.Role)).Inc()

	s.logger.Info("Session created",
		zap.String("session_id", sess.ID),
		zap.String("role", string(sess.Role)))

	if sess.Role == models.RoleUser {
		s.SyncFromMirror(ctx, sess)
	}

	return sess, nil
}

// SyncFromMirror adopts the remote cart when the local ledger is empty.
// Failures are logged; the local ledger stays authoritative.
func (s *AuthService) SyncFromMirror(ctx context.Context, sess *models.Session) {
	snapshot, err := s.remote.FetchCart(ctx, sess.APIToken)
	if err != nil {
		s.logger.Warn("Failed to fetch mirrored cart", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}

	adopted, err := s.carts.Adopt(ctx, sess.ID, snapshot)
	if err != nil {
		s.logger.Warn("Failed to adopt mirrored cart", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	if adopted {
		s.logger.Info("Adopted mirrored cart", zap.String("session_id", sess.ID))
	}
}

// Signup registers a new account. It does not open a session.
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest) error {
	ctx, span := util.StartSpan(ctx, "AuthService.Signup")
	defer span.End()

	err := s.remote.Signup(ctx, remote.SignupRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		util.SpanError(span, err)
		return fmt.Errorf("signup failed: %w", err)
	}
	return nil
}

// Logout discards the session and its cart
func (s *AuthService) Logout(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.ID == "" {
		return nil
	}

	if err := s.carts.Discard(ctx, sess.ID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("Session closed", zap.String("session_id", sess.ID))
	return nil
}

// Resolve returns the session for token, or a guest session when there is none
func (s *AuthService) Resolve(ctx context.Context, token string) (*models.Session, error) {
	sess, err := s.sessions.Get(ctx, token)
	if errors.Is(err, session.ErrSessionNotFound) {
		return models.GuestSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}
