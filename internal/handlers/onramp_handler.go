package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/middleware"
	"github.com/vaultpay/backend/internal/models"
	"github.com/vaultpay/backend/internal/services"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Signature"

// OnrampAPI is the part of services.OnrampService the handlers use.
type OnrampAPI interface {
	ReceiveWebhook(ctx context.Context, rawBody []byte, signatureHeader string) (*services.WebhookAck, error)
	CreateOnrampOrder(ctx context.Context, callerID string, in services.CreateOnrampOrderInput) (*models.OnMetaOrder, error)
	GetOnrampOrder(ctx context.Context, callerID, orderID string) (*models.OnMetaOrder, error)
	ListUserOrders(ctx context.Context, callerID string, limit int) ([]models.OnMetaOrder, error)
	RefreshOrder(ctx context.Context, callerID, orderID string) (*models.OnMetaOrder, error)
}

type OnrampHandler struct {
	service   OnrampAPI
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewOnrampHandler(service OnrampAPI, logger *zap.Logger) *OnrampHandler {
	return &OnrampHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("onramp-http"),
	}
}

// Webhook receives OnMeta order events
// @Summary OnMeta webhook
// @Description Signed with HMAC-SHA256 over the raw body. Every authenticated delivery is acknowledged with 200.
// @Tags Onramp
// @Accept json
// @Produce json
// @Param X-Signature header string true "hex HMAC-SHA256 of the body"
// @Success 200 {object} services.WebhookAck
// @Failure 401 {object} services.ErrorResponse
// @Failure 405 {object} services.ErrorResponse
// @Router /webhooks/onramp [post]
func (h *OnrampHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		services.SendErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed, nil)
		return
	}

	// The signature covers these exact bytes; nothing may decode the body first.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("webhook body unreadable", zap.Error(err))
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	ack, err := h.service.ReceiveWebhook(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// CreateOrder records an order the client opened with OnMeta
// @Summary Create onramp order
// @Tags Onramp
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateOnrampOrderInput true "Order"
// @Success 201 {object} object{order=models.OnMetaOrder}
// @Failure 400 {object} services.ErrorResponse
// @Router /onramp/orders [post]
func (h *OnrampHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req services.CreateOnrampOrderInput
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	order, err := h.service.CreateOnrampOrder(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

// ListOrders lists the caller's onramp orders
// @Summary List onramp orders
// @Tags Onramp
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Success 200 {object} object{orders=[]models.OnMetaOrder}
// @Router /onramp/orders [get]
func (h *OnrampHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListUserOrders(r.Context(), middleware.UserID(r.Context()), queryLimit(r))
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetOrder returns one of the caller's onramp orders
// @Summary Get onramp order
// @Tags Onramp
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "OnMeta order ID"
// @Success 200 {object} object{order=models.OnMetaOrder}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /onramp/orders/{orderId} [get]
func (h *OnrampHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOnrampOrder(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

// RefreshOrder pulls the order's status from OnMeta
// @Summary Refresh onramp order
// @Tags Onramp
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "OnMeta order ID"
// @Success 200 {object} object{order=models.OnMetaOrder}
// @Failure 503 {object} services.ErrorResponse
// @Router /onramp/orders/{orderId}/refresh [post]
func (h *OnrampHandler) RefreshOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.RefreshOrder(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "orderId"))
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}
