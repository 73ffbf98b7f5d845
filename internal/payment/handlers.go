package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pay/internal/common"
	"github.com/noah-isme/backend-pay/internal/money"
)

// Handler exposes the payment order HTTP endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type createOrderReq struct {
	OrderID  string `json:"orderId" validate:"required,max=128"`
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency" validate:"omitempty,len=3,alpha"`
}

type confirmReq struct {
	OrderID          string `json:"orderId" validate:"omitempty,max=128"`
	GatewayOrderID   string `json:"razorpay_order_id" validate:"required"`
	GatewayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature        string `json:"razorpay_signature" validate:"required"`
}

type orderResp struct {
	OrderID          string    `json:"orderId"`
	GatewayOrderID   string    `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string    `json:"gatewayPaymentId,omitempty"`
	AmountMinor      int64     `json:"amountMinor"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toOrderResp(o Order) orderResp {
	return orderResp{
		OrderID:          o.OrderID,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		AmountMinor:      o.AmountMinor,
		Currency:         o.Currency,
		Status:           string(o.Status),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

// Create opens a payment order for the authenticated user.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || strings.TrimSpace(userID) == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "login required", nil)
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	order, err := h.Svc.CreateOrder(r.Context(), CreateOrderInput{
		OrderID:  req.OrderID,
		UserID:   userID,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toOrderResp(order))
}

// Confirm settles an order from the browser redirect after checkout.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req confirmReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	order, err := h.Svc.Confirm(r.Context(), Confirmation{
		OrderID:          req.OrderID,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
		Channel:          "redirect",
	})
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toOrderResp(order))
}

// Cancel voids an unsettled order for its owner or an admin.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || strings.TrimSpace(userID) == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "login required", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	role, _ := common.Role(r.Context())
	order, err := h.Svc.Cancel(r.Context(), orderID, userID, role)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toOrderResp(order))
}

// Status reports the current state of an order for its owner or an admin.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || strings.TrimSpace(userID) == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "login required", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	role, _ := common.Role(r.Context())
	order, err := h.Svc.GetOrder(r.Context(), orderID, userID, role)
	if err != nil {
		h.renderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toOrderResp(order))
}

func (h *Handler) validate(req any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(req)
}

// appError maps a domain error onto the canonical error shape.
func appError(err error) *common.AppError {
	switch {
	case errors.Is(err, money.ErrInvalidAmount):
		return common.NewAppError("INVALID_AMOUNT", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrUnknownOrder):
		return common.NewAppError("UNKNOWN_ORDER", "no payment order matches the supplied identifier", http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidSignature):
		return common.NewAppError("INVALID_SIGNATURE", "payment verification failed", http.StatusUnauthorized, err)
	case errors.Is(err, ErrOrderMismatch):
		return common.NewAppError("ORDER_MISMATCH", "confirmation does not match the stored gateway order", http.StatusConflict, err)
	case errors.Is(err, ErrDuplicatePayment):
		return common.NewAppError("DUPLICATE_PAYMENT", "payment id is already bound to another order", http.StatusConflict, err)
	case errors.Is(err, ErrAlreadyTerminal):
		return common.NewAppError("ALREADY_TERMINAL", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrForbidden):
		return common.NewAppError("FORBIDDEN", "you may not act on this order", http.StatusForbidden, err)
	case errors.Is(err, ErrGatewayUnavailable):
		return common.NewAppError("GATEWAY_UNAVAILABLE", "payment gateway is unavailable, retry shortly", http.StatusServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.NewAppError("GATEWAY_TIMEOUT", "payment gateway timed out", http.StatusGatewayTimeout, err)
	default:
		return common.NewAppError("INTERNAL", "unexpected error", http.StatusInternalServerError, err)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, err error) {
	ae := appError(err)
	common.JSONError(w, ae.HTTPStatus, ae.Code, ae.Message, ae.Details)
}
