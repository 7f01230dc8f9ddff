package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/middleware"
	"github.com/vaultpay/backend/internal/models"
)

type LedgerAPI interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
}

type TransactionHandler struct {
	ledger LedgerAPI
	logger *zap.Logger
}

func NewTransactionHandler(ledger LedgerAPI, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{ledger: ledger, logger: logger.Named("transactions-http")}
}

// ListTransactions returns the caller's ledger history
// @Summary List transactions
// @Tags Transactions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 200)"
// @Success 200 {object} object{transactions=[]models.Transaction}
// @Failure 401 {object} services.ErrorResponse
// @Router /transactions [get]
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.ledger.ListForUser(r.Context(), middleware.UserID(r.Context()), queryLimit(r))
	if err != nil {
		renderError(h.logger, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}
