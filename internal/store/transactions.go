package store

import (
	"context"

	"github.com/vaultpay/backend/internal/models"
)

const transactionColumns = `id, type, user_id, merchant_id, from_address, to_address, amount, token,
	tx_hash, reference_id, status, description, created_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.Type, &t.UserID, &t.MerchantID, &t.FromAddress, &t.ToAddress, &t.Amount,
		&t.Token, &t.TxHash, &t.ReferenceID, &t.Status, &t.Description, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertTransaction appends a ledger row. It reports false without error when
// a row with the same (type, reference_id) already exists.
func (s *Store) InsertTransaction(ctx context.Context, t *models.Transaction) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions (id, type, user_id, merchant_id, from_address, to_address, amount, token,
			tx_hash, reference_id, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (type, reference_id) DO NOTHING`,
		t.ID, t.Type, t.UserID, t.MerchantID, t.FromAddress, t.ToAddress, t.Amount, t.Token,
		t.TxHash, t.ReferenceID, t.Status, t.Description, t.CreatedAt)
	if err != nil {
		return false, translate(err, "insert transaction")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, translate(err, "insert transaction")
	}
	return n == 1, nil
}

func (s *Store) TransactionExists(ctx context.Context, txType models.TransactionType, referenceID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE type = $1 AND reference_id = $2)`,
		txType, referenceID).Scan(&exists)
	return exists, translate(err, "check transaction")
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, translate(err, "list transactions")
	}
	defer rows.Close()

	return collect(rows, scanTransaction)
}
