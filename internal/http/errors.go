package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/internal/domain"
	"github.com/fjod/go_cart/pkg/logger"
	"github.com/sony/gobreaker/v2"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "failed to encode response", "error", err)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	respondJSON(ctx, w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts domain errors to HTTP status codes.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, domain.ErrCartNotFound):
		httpStatus, code = http.StatusNotFound, "cart_not_found"
	case errors.Is(err, domain.ErrItemNotFound):
		httpStatus, code = http.StatusNotFound, "item_not_found"
	case errors.Is(err, domain.ErrEmptyCart):
		httpStatus, code = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, domain.ErrInvalidSignature):
		httpStatus, code = http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, domain.ErrInvalidQuantity):
		httpStatus, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, domain.ErrInvalidItem):
		httpStatus, code = http.StatusBadRequest, "invalid_item"
	case errors.Is(err, domain.ErrVersionConflict):
		httpStatus, code = http.StatusConflict, "version_conflict"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		httpStatus, code = http.StatusServiceUnavailable, "payment_unavailable"
	case errors.Is(err, domain.ErrPaymentProvider):
		httpStatus, code = http.StatusBadGateway, "payment_provider_error"
	case errors.Is(err, domain.ErrStorage):
		httpStatus, code = http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code = http.StatusGatewayTimeout, "timeout"
	default:
		httpStatus, code = http.StatusInternalServerError, "internal_error"
	}

	if httpStatus >= http.StatusInternalServerError {
		logger.FromContext(ctx).ErrorContext(ctx, "request failed", "code", code, "error", err)
		// internals stay in the log
		respondError(ctx, w, httpStatus, code, http.StatusText(httpStatus))
		return
	}
	respondError(ctx, w, httpStatus, code, err.Error())
}
