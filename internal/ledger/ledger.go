// Package ledger implements the session cart: an ordered mapping from product id to a
// cart line with a pinned price snapshot and a derived total.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// MaxLineQuantity caps the quantity of a single line
const MaxLineQuantity = 10000

var (
	ErrMissingProductID = errors.New("product id is required")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidQuantity  = errors.New("invalid quantity")
)

// Ledger holds cart lines in insertion order. A Ledger is not safe for
// concurrent use; callers serialise mutations per session.
type Ledger struct {
	lines []models.CartLine
}

// New returns an empty ledger
func New() *Ledger {
	return &Ledger{}
}

// ValidateProduct checks the fields a product needs before it can enter a ledger
func ValidateProduct(p models.Product) error {
	if p.ID == "" {
		return ErrMissingProductID
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: negative price %s", ErrInvalidPrice, p.Price)
	}
	return nil
}

// AddItem increments the line for p.ID by delta, or appends a new line whose
// name, unit and price are copied from p. Existing lines keep their pinned price.
func (l *Ledger) AddItem(p models.Product, delta int) error {
	if err := ValidateProduct(p); err != nil {
		return err
	}
	if delta < 1 || delta > MaxLineQuantity {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, delta)
	}

	if i := l.index(p.ID); i >= 0 {
		if l.lines[i].Quantity > MaxLineQuantity-delta {
			return fmt.Errorf("%w: line %s would exceed %d", ErrInvalidQuantity, p.ID, MaxLineQuantity)
		}
		l.lines[i].Quantity += delta
		return nil
	}

	l.lines = append(l.lines, models.CartLine{
		ID:       p.ID,
		Name:     p.Name,
		Unit:     p.Unit,
		Price:    RoundPrice(p.Price),
		Quantity: delta,
	})
	return nil
}

// IncreaseQuantity adds one to the line's quantity. Returns false if id is
// absent and ErrInvalidQuantity if the line is already at MaxLineQuantity.
func (l *Ledger) IncreaseQuantity(id string) (bool, error) {
	i := l.index(id)
	if i < 0 {
		return false, nil
	}
	if l.lines[i].Quantity >= MaxLineQuantity {
		return false, fmt.Errorf("%w: line %s would exceed %d", ErrInvalidQuantity, id, MaxLineQuantity)
	}
	l.lines[i].Quantity++
	return true, nil
}

// DecreaseQuantity subtracts one from the line's quantity and removes the line
// when it reaches zero. Returns false if id is absent.
func (l *Ledger) DecreaseQuantity(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	if l.lines[i].Quantity <= 1 {
		l.removeAt(i)
		return true
	}
	l.lines[i].Quantity--
	return true
}

// RemoveItem deletes the line for id. Returns false if id is absent.
func (l *Ledger) RemoveItem(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.removeAt(i)
	return true
}

// Clear removes every line
func (l *Ledger) Clear() {
	l.lines = nil
}

// Total returns Σ(price × quantity); zero for an empty ledger
func (l *Ledger) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range l.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// ItemCount returns the sum of all quantities
func (l *Ledger) ItemCount() int {
	count := 0
	for _, line := range l.lines {
		count += line.Quantity
	}
	return count
}

// Len returns the number of distinct lines
func (l *Ledger) Len() int {
	return len(l.lines)
}

// Find returns the line for id
func (l *Ledger) Find(id string) (models.CartLine, bool) {
	i := l.index(id)
	if i < 0 {
		return models.CartLine{}, false
	}
	return l.lines[i], true
}

// Lines returns a copy of the lines in ledger order
func (l *Ledger) Lines() []models.CartLine {
	out := make([]models.CartLine, len(l.lines))
	copy(out, l.lines)
	return out
}

// Snapshot serialises the ledger for persistence
func (l *Ledger) Snapshot() ([]byte, error) {
	data, err := json.Marshal(l.Lines())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger: %w", err)
	}
	return data, nil
}

type snapshotLine struct {
	ID       json.RawMessage `json:"id"`
	LegacyID json.RawMessage `json:"_id"`
	Name     string          `json:"name"`
	Unit     string          `json:"unit"`
	Price    json.RawMessage `json:"price"`
	Quantity json.RawMessage `json:"quantity"`
}

// Restore rebuilds a ledger from a snapshot. Non-numeric prices and quantities
// are coerced to zero; lines without an id or with quantity below one are
// dropped and duplicate ids are merged into the first occurrence. Quantities
// are clamped to MaxLineQuantity.
func Restore(data []byte) (*Ledger, error) {
	l := New()
	if len(data) == 0 {
		return l, nil
	}

	var raw []snapshotLine
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger snapshot: %w", err)
	}

	for _, r := range raw {
		id := NormalizeID(r.LegacyID)
		if id == "" {
			id = NormalizeID(r.ID)
		}
		qty := coerceQuantity(r.Quantity)
		if id == "" || qty < 1 {
			continue
		}

		if i := l.index(id); i >= 0 {
			l.lines[i].Quantity = min(l.lines[i].Quantity+qty, MaxLineQuantity)
			continue
		}
		l.lines = append(l.lines, models.CartLine{
			ID:       id,
			Name:     r.Name,
			Unit:     r.Unit,
			Price:    coerceDecimal(r.Price),
			Quantity: qty,
		})
	}
	return l, nil
}

// NormalizeID turns a JSON string or number id into its string form
func NormalizeID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (l *Ledger) index(id string) int {
	for i := range l.lines {
		if l.lines[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) removeAt(i int) {
	l.lines = append(l.lines[:i], l.lines[i+1:]...)
}
