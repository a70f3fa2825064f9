package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/gateway"
	"storefront/internal/ledger"
	"storefront/internal/models"
	"storefront/internal/remote"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP-facing settings
type Config struct {
	CookieName   string
	LoginPath    string
	SessionTTL   time.Duration
	SecureCookie bool
}

// Handler contains HTTP handlers
type Handler struct {
	cfg      Config
	auth     *service.AuthService
	cart     *service.CartService
	catalog  *service.CatalogService
	payments *service.PaymentService
	checks   map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	cfg Config,
	auth *service.AuthService,
	cart *service.CartService,
	catalog *service.CatalogService,
	payments *service.PaymentService,
	checks map[string]Pinger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		auth:     auth,
		cart:     cart,
		catalog:  catalog,
		payments: payments,
		checks:   checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())
	router.SetHTMLTemplate(gateway.FormTemplate())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET(h.cfg.LoginPath, h.loginPage)
	router.GET("/esewa-success", h.esewaSuccess)
	router.GET("/esewa-failure", h.esewaFailure)

	v1 := router.Group("/api/v1")
	v1.Use(h.sessionMiddleware())
	{
		v1.POST("/auth/login", h.login)
		v1.POST("/auth/signup", h.signup)
		v1.POST("/auth/logout", h.logout)
		v1.GET("/session", h.getSession)
		v1.GET("/products", h.listProducts)

		cart := v1.Group("")
		cart.Use(h.requireCart())
		{
			cart.GET("/cart", h.getCart)
			cart.POST("/cart/items", h.addItem)
			cart.POST("/cart/items/:id/increase", h.increaseItem)
			cart.POST("/cart/items/:id/decrease", h.decreaseItem)
			cart.DELETE("/cart/items/:id", h.removeItem)
			cart.POST("/checkout", h.checkout)
			cart.GET("/payments", h.paymentHistory)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) loginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Please log in to use the cart"})
}

// login handles POST /auth/login
func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	sess, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.CookieName, sess.ID, int(h.cfg.SessionTTL.Seconds()), "/", "", h.cfg.SecureCookie, true)

	c.JSON(http.StatusOK, gin.H{
		"session_token": sess.ID,
		"logged_in":     sess.LoggedIn,
		"role":          sess.Role,
	})
}

// signup handles POST /auth/signup
func (h *Handler) signup(c *gin.Context) {
	var req service.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.auth.Signup(c.Request.Context(), &req); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Signup successful"})
}

// logout handles POST /auth/logout
func (h *Handler) logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), currentSession(c)); err != nil {
		h.writeError(c, err)
		return
	}

	c.SetCookie(h.cfg.CookieName, "", -1, "/", "", h.cfg.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"logged_in": false, "role": models.RoleGuest})
}

func (h *Handler) getSession(c *gin.Context) {
	sess := currentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"logged_in": sess.LoggedIn,
		"role":      sess.Role,
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.cart.GetCart(c.Request.Context(), currentSession(c))
	h.writeCart(c, view, err)
}

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	view, err := h.cart.AddItem(c.Request.Context(), currentSession(c), req.ProductID, req.Quantity)
	h.writeCart(c, view, err)
}

func (h *Handler) increaseItem(c *gin.Context) {
	view, err := h.cart.IncreaseQuantity(c.Request.Context(), currentSession(c), c.Param("id"))
	h.writeCart(c, view, err)
}

func (h *Handler) decreaseItem(c *gin.Context) {
	view, err := h.cart.DecreaseQuantity(c.Request.Context(), currentSession(c), c.Param("id"))
	h.writeCart(c, view, err)
}

func (h *Handler) removeItem(c *gin.Context) {
	view, err := h.cart.RemoveItem(c.Request.Context(), currentSession(c), c.Param("id"))
	h.writeCart(c, view, err)
}

// checkout hands the cart to the gateway. Browsers get a page that posts
// the form on load; API clients get the form as JSON.
func (h *Handler) checkout(c *gin.Context) {
	form, err := h.payments.InitiatePayment(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if strings.Contains(c.GetHeader("Accept"), "text/html") {
		c.HTML(http.StatusOK, gateway.FormTemplateName, form)
		return
	}
	c.JSON(http.StatusOK, form)
}

func (h *Handler) paymentHistory(c *gin.Context) {
	attempts, err := h.payments.History(c.Request.Context(), currentSession(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempts)
}

// esewaSuccess handles the gateway's success redirect
func (h *Handler) esewaSuccess(c *gin.Context) {
	var params models.CallbackParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.MessageMissingDetails})
		return
	}

	result, err := h.payments.VerifyPayment(c.Request.Context(), params)
	if err != nil {
		// the attempt stays INITIATED and the customer can retry the redirect
		util.LoggerFromContext(c.Request.Context()).Error("Payment verification did not complete",
			zap.String("pid", params.ProductID),
			zap.String("rid", params.ReferenceID),
			zap.Error(err))
		c.JSON(http.StatusOK, &service.PaymentResult{
			Reference: params.ProductID,
			Status:    models.PaymentStatusInitiated,
			Message:   service.MessageVerifyFailed,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// esewaFailure handles the gateway's failure redirect
func (h *Handler) esewaFailure(c *gin.Context) {
	ref := gateway.FailureReference(c.Request.URL.Query())
	c.JSON(http.StatusOK, h.payments.HandleFailureRedirect(c.Request.Context(), ref))
}

func (h *Handler) writeCart(c *gin.Context, view *service.CartView, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// writeError maps service errors onto HTTP responses
func (h *Handler) writeError(c *gin.Context, err error) {
	var statusErr *remote.StatusError

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		c.Redirect(http.StatusFound, h.cfg.LoginPath)
	case errors.Is(err, ledger.ErrMissingProductID),
		errors.Is(err, ledger.ErrInvalidPrice),
		errors.Is(err, ledger.ErrInvalidQuantity),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCartBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
		msg := statusErr.Message
		if msg == "" {
			msg = http.StatusText(statusErr.StatusCode)
		}
		c.JSON(statusErr.StatusCode, gin.H{"error": msg})
	case errors.Is(err, remote.ErrRemote):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream service unavailable"})
	default:
		util.LoggerFromContext(c.Request.Context()).Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
