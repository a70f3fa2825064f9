package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog record as returned by the remote catalog API
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Unit        string          `json:"unit"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
	ImagePath   string          `json:"imagePath"`
}

// CartLine is one product's entry in a cart ledger.
// Name, Unit and Price are pinned at the time the line was first added.
type CartLine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Unit     string          `json:"unit"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Subtotal returns price × quantity for the line
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Role is the claim attached to a session
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a role string from the auth API; anything unknown is a guest.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleUser:
		return RoleUser
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleGuest
	}
}

// Session represents an authenticated (or guest) storefront session
type Session struct {
	ID        string    `json:"id"`
	APIToken  string    `json:"api_token,omitempty"`
	LoggedIn  bool      `json:"logged_in"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// GuestSession returns the session used for requests without a valid token
func GuestSession() *Session {
	return &Session{Role: RoleGuest}
}

// CanUseCart reports whether the session may read or mutate a cart
func (s *Session) CanUseCart() bool {
	return s != nil && s.LoggedIn && s.Role == RoleUser
}

// PaymentAttempt represents one hand-off to the payment gateway
type PaymentAttempt struct {
	Reference   string          `db:"reference" json:"reference"`
	SessionID   string          `db:"session_id" json:"session_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Status      string          `db:"status" json:"status"`
	Reason      string          `db:"reason" json:"reason,omitempty"`
	GatewayRef  string          `db:"gateway_ref" json:"gateway_ref,omitempty"`
	CartCleared bool            `db:"cart_cleared" json:"-"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the attempt can no longer change state
func (p *PaymentAttempt) IsTerminal() bool {
	return p.Status == PaymentStatusVerified || p.Status == PaymentStatusFailed
}

// Payment attempt statuses
const (
	PaymentStatusInitiated = "INITIATED"
	PaymentStatusVerified  = "VERIFIED"
	PaymentStatusFailed    = "FAILED"
)

// CallbackParams are the query parameters the gateway appends to the success URL
type CallbackParams struct {
	Amount      string `form:"amt" json:"amt"`
	ReferenceID string `form:"rid" json:"rid"`
	ProductID   string `form:"pid" json:"pid"`
	StatusCode  string `form:"scd" json:"scd"`
}

// Complete reports whether every callback field is present
func (p CallbackParams) Complete() bool {
	return p.Amount != "" && p.ReferenceID != "" && p.ProductID != "" && p.StatusCode != ""
}
