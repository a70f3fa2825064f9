package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", 2*time.Second)
}

func TestListProducts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/products", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"_id": "64f1", "name": "Milk", "price": "90", "unit": "ltr", "stock": 12, "imagePath": "/img/milk.png"},
			{"id": 7, "name": "Rice", "price": 120.5, "unit": "kg", "stock": "3"},
			{"id": 8, "name": "Broken", "price": "n/a"},
			{"name": "No id", "price": 10}
		]`)
	})

	products, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "64f1", products[0].ID)
	assert.True(t, decimal.NewFromInt(90).Equal(products[0].Price))
	assert.Equal(t, 12, products[0].Stock)
	assert.Equal(t, "/img/milk.png", products[0].ImagePath)

	assert.Equal(t, "7", products[1].ID)
	assert.True(t, decimal.RequireFromString("120.5").Equal(products[1].Price))
	assert.Equal(t, 3, products[1].Stock)
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)

		var req LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a@b.c", req.Email)
		assert.True(t, req.IsAdmin)

		io.WriteString(w, `{"token": "jwt-1", "user": {"role": "admin"}}`)
	})

	resp, err := client.Login(context.Background(), LoginRequest{Email: "a@b.c", Password: "pw", IsAdmin: true})
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", resp.Token)
	assert.Equal(t, "admin", resp.User.Role)
}

func TestLoginErrorMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": "Invalid credentials"}`)
	})

	_, err := client.Login(context.Background(), LoginRequest{Email: "a@b.c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemote)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "Invalid credentials", statusErr.Message)
}

func TestSignup(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/signup", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	})

	assert.NoError(t, client.Signup(context.Background(), SignupRequest{Name: "n", Email: "e", Password: "p"}))
}

func TestFetchCartShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"array", `[{"id":"1","quantity":2}]`, `[{"id":"1","quantity":2}]`},
		{"wrapped", `{"lines":[{"id":"1","quantity":2}]}`, `[{"id":"1","quantity":2}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
				io.WriteString(w, tt.body)
			})

			data, err := client.FetchCart(context.Background(), "jwt")
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestPushCart(t *testing.T) {
	var got struct {
		Lines []models.CartLine `json:"lines"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	lines := []models.CartLine{{ID: "1", Name: "Milk", Price: decimal.NewFromInt(90), Quantity: 2}}
	require.NoError(t, client.PushCart(context.Background(), "jwt", lines))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Quantity)
}

func TestVerifyPayment(t *testing.T) {
	var got models.CallbackParams
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/esewa/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"success": true}`)
	})

	params := models.CallbackParams{Amount: "100", ReferenceID: "r1", ProductID: "p1", StatusCode: "OK"}
	require.NoError(t, client.VerifyPayment(context.Background(), "jwt", params))
	assert.Equal(t, params, got)
}

func TestVerifyPaymentServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.VerifyPayment(context.Background(), "", models.CallbackParams{})
	assert.ErrorIs(t, err, ErrRemote)
}

func TestTransportError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 200*time.Millisecond)

	_, err := client.ListProducts(context.Background())
	assert.ErrorIs(t, err, ErrRemote)
}
