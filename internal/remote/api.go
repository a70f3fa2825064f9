package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"storefront/internal/ledger"
	"storefront/internal/models"

	"go.uber.org/zap"
)

type productWire struct {
	ID          json.RawMessage `json:"id"`
	MongoID     json.RawMessage `json:"_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       json.RawMessage `json:"price"`
	Unit        string          `json:"unit"`
	Category    string          `json:"category"`
	Stock       json.RawMessage `json:"stock"`
	ImagePath   string          `json:"imagePath"`
}

// ListProducts fetches the catalog. Records without an id or with a
// non-numeric price are skipped.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var wire []productWire
	if err := c.do(ctx, http.MethodGet, "/products", "", nil, &wire); err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(wire))
	for _, w := range wire {
		id := ledger.NormalizeID(w.MongoID)
		if id == "" {
			id = ledger.NormalizeID(w.ID)
		}
		if id == "" {
			c.logger.Warn("Skipping catalog product without id", zap.String("name", w.Name))
			continue
		}

		price, err := ledger.ParsePrice(w.Price)
		if err != nil {
			c.logger.Warn("Skipping catalog product with invalid price",
				zap.String("product_id", id),
				zap.Error(err))
			continue
		}

		var stock int
		if s, err := ledger.ParsePrice(w.Stock); err == nil {
			stock = int(s.IntPart())
		}

		products = append(products, models.Product{
			ID:          id,
			Name:        w.Name,
			Description: w.Description,
			Price:       price,
			Unit:        w.Unit,
			Category:    w.Category,
			Stock:       stock,
			ImagePath:   w.ImagePath,
		})
	}
	return products, nil
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

// LoginResponse is the body returned by POST /auth/login
type LoginResponse struct {
	Token string `json:"token"`
	User  struct {
		Role string `json:"role"`
	} `json:"user"`
}

// Login exchanges credentials for an API token and role claim
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: login response without token", ErrRemote)
	}
	return &resp, nil
}

// SignupRequest is the body of POST /auth/signup
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup registers a new account
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/signup", "", req, nil)
}

// FetchCart returns the mirrored cart as a ledger snapshot. The API may answer
// with a bare array or with {"lines": [...]}.
func (c *Client) FetchCart(ctx context.Context, token string) ([]byte, error) {
	var data []byte
	if err := c.do(ctx, http.MethodGet, "/cart", token, nil, &data); err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Lines json.RawMessage `json:"lines"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: failed to decode cart: %v", ErrRemote, err)
		}
		return wrapped.Lines, nil
	}
	return data, nil
}

// PushCart replaces the mirrored cart
func (c *Client) PushCart(ctx context.Context, token string, lines []models.CartLine) error {
	if lines == nil {
		lines = []models.CartLine{}
	}
	body := struct {
		Lines []models.CartLine `json:"lines"`
	}{Lines: lines}
	return c.do(ctx, http.MethodPut, "/cart", token, body, nil)
}

// VerifyPayment forwards the gateway callback to the order verification endpoint
func (c *Client) VerifyPayment(ctx context.Context, token string, params models.CallbackParams) error {
	return c.do(ctx, http.MethodPost, "/orders/esewa/verify", token, params, nil)
}
