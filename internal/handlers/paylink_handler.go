package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/middleware"
	"github.com/vaultpay/backend/internal/models"
	"github.com/vaultpay/backend/internal/services"
)

// PayLinkAPI is the part of services.PayLinkService the handlers use.
type PayLinkAPI interface {
	CreateMerchant(ctx context.Context, callerID string, in services.CreateMerchantInput) (*models.Merchant, error)
	CreatePayLink(ctx context.Context, callerID string, in services.CreatePayLinkInput) (*models.PayLink, error)
	GetPayLink(ctx context.Context, id string) (*models.PayLink, error)
	PayPayLink(ctx context.Context, in services.PayPayLinkInput) (*models.PayLink, error)
	CancelPayLink(ctx context.Context, callerID, id string) (*models.PayLink, error)
	ListMerchantPayLinks(ctx context.Context, callerID, merchantID string, limit int) ([]models.PayLink, error)
	PayLinkQR(ctx context.Context, id string) ([]byte, error)
	PayURL(id string) string
}

type PayLinkHandler struct {
	service   PayLinkAPI
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewPayLinkHandler(service PayLinkAPI, logger *zap.Logger) *PayLinkHandler {
	return &PayLinkHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("paylink-http"),
	}
}

type payLinkResponse struct {
	PayLink *models.PayLink `json:"payLink"`
	PayURL  string          `json:"payUrl,omitempty"`
}

// CreateMerchant registers a merchant owned by the caller
// @Summary Create merchant
// @Description Register a merchant with a Solana receiving wallet
// @Tags Merchants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateMerchantInput true "Merchant"
// @Success 201 {object} object{merchant=models.Merchant}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /merchants [post]
func (h *PayLinkHandler) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	var req services.CreateMerchantInput
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	m, err := h.service.CreateMerchant(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"merchant": m})
}

// CreatePayLink creates a pending pay link
// @Summary Create PayLink
// @Description Create a shareable payment request for one of the caller's merchants
// @Tags PayLinks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreatePayLinkInput true "PayLink"
// @Success 201 {object} payLinkResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /paylinks [post]
func (h *PayLinkHandler) CreatePayLink(w http.ResponseWriter, r *http.Request) {
	var req services.CreatePayLinkInput
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	p, err := h.service.CreatePayLink(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payLinkResponse{PayLink: p, PayURL: h.service.PayURL(p.ID)})
}

// GetPayLink returns a pay link
// @Summary Get PayLink
// @Tags PayLinks
// @Produce json
// @Param id path string true "PayLink ID"
// @Success 200 {object} payLinkResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /paylinks/{id} [get]
func (h *PayLinkHandler) GetPayLink(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPayLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payLinkResponse{PayLink: p, PayURL: h.service.PayURL(p.ID)})
}

// PayLinkQR renders the pay URL as a PNG
// @Summary PayLink QR code
// @Tags PayLinks
// @Produce png
// @Param id path string true "PayLink ID"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /paylinks/{id}/qr [get]
func (h *PayLinkHandler) PayLinkQR(w http.ResponseWriter, r *http.Request) {
	png, err := h.service.PayLinkQR(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// PayPayLink settles a pay link with an on-chain transaction
// @Summary Pay PayLink
// @Description Submit the Solana transaction that paid the link. The transaction is verified on chain.
// @Tags PayLinks
// @Accept json
// @Produce json
// @Param request body services.PayPayLinkInput true "Payment"
// @Success 200 {object} payLinkResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /paylinks/pay [post]
func (h *PayLinkHandler) PayPayLink(w http.ResponseWriter, r *http.Request) {
	var req services.PayPayLinkInput
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	p, err := h.service.PayPayLink(r.Context(), req)
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payLinkResponse{PayLink: p})
}

// CancelPayLink withdraws a pending pay link
// @Summary Cancel PayLink
// @Tags PayLinks
// @Produce json
// @Security BearerAuth
// @Param id path string true "PayLink ID"
// @Success 200 {object} payLinkResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /paylinks/{id}/cancel [post]
func (h *PayLinkHandler) CancelPayLink(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.CancelPayLink(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payLinkResponse{PayLink: p})
}

// ListMerchantPayLinks lists a merchant's pay links, newest first
// @Summary List merchant PayLinks
// @Tags Merchants
// @Produce json
// @Security BearerAuth
// @Param id path string true "Merchant ID"
// @Param limit query int false "Page size"
// @Success 200 {object} object{payLinks=[]models.PayLink}
// @Failure 403 {object} services.ErrorResponse
// @Router /merchants/{id}/paylinks [get]
func (h *PayLinkHandler) ListMerchantPayLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.service.ListMerchantPayLinks(r.Context(), middleware.UserID(r.Context()),
		chi.URLParam(r, "id"), queryLimit(r))
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payLinks": links})
}
