package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/apperr"
	"github.com/vaultpay/backend/internal/models"
	"github.com/vaultpay/backend/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// LedgerService appends immutable transaction rows. Corrections are new
// rows; nothing here updates or deletes.
type LedgerService struct {
	store  *store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewLedgerService(st *store.Store, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:  st,
		logger: logger.Named("ledger"),
		now:    time.Now,
	}
}

// Append writes entry through tx, normally a Store bound by InTx so the row
// commits with the state change that produced it. It reports false when an
// entry with the same type and reference already exists.
func (s *LedgerService) Append(ctx context.Context, tx *store.Store, entry *models.Transaction) (bool, error) {
	if entry.ReferenceID == "" {
		return false, errors.New("ledger entry without reference")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if entry.Status == "" {
		entry.Status = models.TxStatusConfirmed
	}

	exists, err := tx.TransactionExists(ctx, entry.Type, entry.ReferenceID)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.Info("ledger entry already recorded",
			zap.String("type", string(entry.Type)), zap.String("reference", entry.ReferenceID))
		return false, nil
	}

	// The pre-check is best effort; the (type, reference_id) constraint
	// settles concurrent appends.
	inserted, err := tx.InsertTransaction(ctx, entry)
	if err != nil {
		return false, err
	}
	if !inserted {
		s.logger.Info("ledger entry recorded concurrently",
			zap.String("type", string(entry.Type)), zap.String("reference", entry.ReferenceID))
		return false, nil
	}

	s.logger.Info("ledger entry appended",
		zap.String("id", entry.ID),
		zap.String("type", string(entry.Type)),
		zap.String("reference", entry.ReferenceID),
		zap.String("amount", entry.Amount.String()),
		zap.String("token", entry.Token))
	return true, nil
}

func (s *LedgerService) Exists(ctx context.Context, txType models.TransactionType, referenceID string) (bool, error) {
	return s.store.TransactionExists(ctx, txType, referenceID)
}

// ListForUser returns the caller's history, newest first.
func (s *LedgerService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	txs, err := s.store.ListTransactionsByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return txs, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}
