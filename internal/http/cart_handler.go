package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// maxCartBodySize caps JSON bodies on the cart endpoints.
const maxCartBodySize = 16 << 10

type CartService interface {
	GetCart(ctx context.Context, customerID string) (*domain.Cart, error)
	GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error)
	AddItem(ctx context.Context, customerID string, in service.AddItemInput) (*domain.Cart, error)
	RemoveItem(ctx context.Context, customerID, itemID string) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, customerID, itemID string, quantity int) (*domain.Cart, error)
	ClearCart(ctx context.Context, customerID string) (*domain.Cart, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
}

func NewCartHandler(carts CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartItemDTO struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartDTO struct {
	ID         string          `json:"id,omitempty"`
	CustomerID string          `json:"customerId"`
	Items      []CartItemDTO   `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	ItemCount  int             `json:"itemCount"`
	Status     string          `json:"status"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type CartResponseDTO struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Data    CartDTO `json:"data"`
}

func toCartDTO(cart *domain.Cart) CartDTO {
	items := make([]CartItemDTO, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, CartItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     item.Price,
			Subtotal:  item.Subtotal(),
		})
	}
	return CartDTO{
		ID:         cart.ID,
		CustomerID: cart.CustomerID,
		Items:      items,
		TotalPrice: cart.TotalPrice,
		ItemCount:  cart.ItemCount(),
		Status:     string(cart.State()),
		Version:    cart.Version,
		CreatedAt:  cart.CreatedAt,
		UpdatedAt:  cart.UpdatedAt,
	}
}

// decodeBody reads a size-capped JSON body into v. On failure it has already
// written the error response.
func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, v interface{}) bool {
	limitBody(w, r, maxCartBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if isTooLarge(err) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return false
		}
		respondError(ctx, w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func respondCart(ctx context.Context, w http.ResponseWriter, status int, message string, cart *domain.Cart) {
	respondJSON(ctx, w, status, CartResponseDTO{
		Success: true,
		Message: message,
		Data:    toCartDTO(cart),
	})
}

// POST /api/cart
func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID := getCustomerIDFromContext(r.Context())
	if customerID == "" {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.GetOrCreate(ctx, customerID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondCart(ctx, w, http.StatusOK, "Cart exists or was created", cart)
}

// GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID := getCustomerIDFromContext(r.Context())
	if customerID == "" {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.GetCart(ctx, customerID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondCart(ctx, w, http.StatusOK, "", cart)
}

// POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID := getCustomerIDFromContext(r.Context())
	if customerID == "" {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.AddItem(ctx, customerID, service.AddItemInput{
		ProductID: req.ProductID,
		Name:      req.Name,
		Image:     req.Image,
		Quantity:  req.Quantity,
		Price:     req.Price,
	})
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondCart(ctx, w, http.StatusOK, "Item added to cart", cart)
}

// PATCH /api/cart/items/{itemId}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID := getCustomerIDFromContext(r.Context())
	if customerID == "" {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	itemID := chi.URLParam(r, "itemId")
	if itemID == "" {
		respondError(ctx, w, http.StatusBadRequest, "invalid_item_id", "itemId is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, customerID, itemID, req.Quantity)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondCart(ctx, w, http.StatusOK, "", cart)
}

// DELETE /api/cart/items/{itemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID := getCustomerIDFromContext(r.Context())
	if customerID == "" {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	itemID := chi.URLParam(r, "itemId")
	if itemID == "" {
		respondError(ctx, w, http.StatusBadRequest, "invalid_item_id", "itemId is required")
		return
	}

	cart, err := h.carts.RemoveItem(ctx, customerID, itemID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondCart(ctx, w, http.StatusOK, "", cart)
}

// DELETE /api/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	customerID := getCustomerIDFromContext(r.Context())
	if customerID == "" {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	cart, err := h.carts.ClearCart(ctx, customerID)
	if err != nil {
		handleServiceError(ctx, w, err)
		return
	}

	respondCart(ctx, w, http.StatusOK, "Cart cleared", cart)
}
