package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionContextKey = "session"
	requestIDHeader   = "X-Request-ID"
)

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger attaches a request-scoped logger and logs the outcome
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		logger := util.GetLogger().With(zap.String("request_id", requestID))
		c.Request = c.Request.WithContext(util.ContextWithLogger(c.Request.Context(), logger))

		start := time.Now()
		c.Next()

		logger.Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// sessionMiddleware resolves the caller's session from the bearer token or
// the session cookie. Unknown tokens resolve to a guest session.
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(h.cfg.CookieName)
		}

		sess, err := h.auth.Resolve(c.Request.Context(), token)
		if err != nil {
			util.LoggerFromContext(c.Request.Context()).Error("Failed to resolve session", zap.Error(err))
			sess = models.GuestSession()
		}

		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// requireCart redirects callers that may not use a cart to the login page
func (h *Handler) requireCart() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentSession(c).CanUseCart() {
			util.CartMutationsRejected.WithLabelValues("unauthorized").Inc()
			c.Redirect(http.StatusFound, h.cfg.LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

func currentSession(c *gin.Context) *models.Session {
	if v, ok := c.Get(sessionContextKey); ok {
		if sess, ok := v.(*models.Session); ok {
			return sess
		}
	}
	return models.GuestSession()
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
