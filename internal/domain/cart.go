package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartState describes where a cart is in the payment lifecycle.
type CartState string

const (
	CartStatePending CartState = "PENDING"
	CartStateSettled CartState = "SETTLED"
)

type Cart struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Items      []CartItem      `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type CartItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	AddedAt   time.Time       `json:"added_at"`
}

// MaxItemQuantity caps the quantity of a single cart line.
const MaxItemQuantity = 99

// NewCart returns an empty cart for customerID. It is not persisted.
func NewCart(customerID string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		CustomerID: customerID,
		Items:      []CartItem{},
		TotalPrice: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Subtotal is price × quantity for a single line.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ValidateItem checks the fields a caller supplies when adding a product.
func ValidateItem(productID string, quantity int, price decimal.Decimal) error {
	if strings.TrimSpace(productID) == "" {
		return ErrInvalidItem
	}
	if err := ValidateQuantity(quantity); err != nil {
		return err
	}
	if price.IsNegative() {
		return ErrInvalidItem
	}
	return nil
}

func ValidateQuantity(quantity int) error {
	if quantity < 1 || quantity > MaxItemQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

// AddItem merges the product into the cart. An existing line for the same
// product gets its quantity incremented and keeps its original price snapshot.
func (c *Cart) AddItem(productID, name, image string, quantity int, price decimal.Decimal) error {
	if err := ValidateItem(productID, quantity, price); err != nil {
		return err
	}

	idx := c.indexByProduct(productID)
	if idx >= 0 {
		if c.Items[idx].Quantity > MaxItemQuantity-quantity {
			return ErrInvalidQuantity
		}
		c.Items[idx].Quantity += quantity
	} else {
		c.Items = append(c.Items, CartItem{
			ID:        uuid.NewString(),
			ProductID: productID,
			Name:      name,
			Image:     image,
			Quantity:  quantity,
			Price:     price,
			AddedAt:   time.Now().UTC(),
		})
	}

	c.recalculate()
	return nil
}

// RemoveItem drops the line with itemID. Unknown ids leave the cart unchanged.
func (c *Cart) RemoveItem(itemID string) {
	kept := make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	c.Items = kept
	c.recalculate()
}

func (c *Cart) UpdateQuantity(itemID string, quantity int) error {
	if err := ValidateQuantity(quantity); err != nil {
		return err
	}
	idx := c.indexByID(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	c.Items[idx].Quantity = quantity
	c.recalculate()
	return nil
}

func (c *Cart) Clear() {
	c.Items = []CartItem{}
	c.TotalPrice = decimal.Zero
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount sums quantities across all lines.
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

func (c *Cart) State() CartState {
	if c.IsEmpty() {
		return CartStateSettled
	}
	return CartStatePending
}

// Clone returns a deep copy so callers can mutate without aliasing storage.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

// CalculateTotal returns Σ price × quantity.
func CalculateTotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c *Cart) recalculate() {
	c.TotalPrice = CalculateTotal(c.Items)
}

func (c *Cart) indexByProduct(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) indexByID(itemID string) int {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}
