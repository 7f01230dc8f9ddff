package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/vaultpay/backend/internal/models"
)

const payLinkColumns = `id, merchant_id, amount, token, description, status,
	solana_tx_hash, payer_address, created_at, expires_at, paid_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayLink(row rowScanner) (*models.PayLink, error) {
	var p models.PayLink
	err := row.Scan(&p.ID, &p.MerchantID, &p.Amount, &p.Token, &p.Description, &p.Status,
		&p.SolanaTxHash, &p.PayerAddress, &p.CreatedAt, &p.ExpiresAt, &p.PaidAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreatePayLink(ctx context.Context, p *models.PayLink) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO paylinks (id, merchant_id, amount, token, description, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.MerchantID, p.Amount, p.Token, p.Description, p.Status, p.CreatedAt, p.ExpiresAt)
	return translate(err, "create paylink")
}

func (s *Store) GetPayLink(ctx context.Context, id string) (*models.PayLink, error) {
	p, err := scanPayLink(s.q.QueryRowContext(ctx,
		`SELECT `+payLinkColumns+` FROM paylinks WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "get paylink")
	}
	return p, nil
}

// LockPayLink reads the link with a row lock. Only meaningful inside InTx.
func (s *Store) LockPayLink(ctx context.Context, id string) (*models.PayLink, error) {
	p, err := scanPayLink(s.q.QueryRowContext(ctx,
		`SELECT `+payLinkColumns+` FROM paylinks WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translate(err, "lock paylink")
	}
	return p, nil
}

// PayLinkTxHashUsed reports whether txHash already settled some pay link.
func (s *Store) PayLinkTxHashUsed(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM paylinks WHERE solana_tx_hash = $1)`, txHash).Scan(&exists)
	return exists, translate(err, "check paylink tx hash")
}

// MarkPayLinkPaid performs the single pending -> paid transition.
func (s *Store) MarkPayLinkPaid(ctx context.Context, id, txHash string, payer *string, paidAt time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE paylinks
		SET status = 'paid', solana_tx_hash = $2, payer_address = $3, paid_at = $4
		WHERE id = $1 AND status = 'pending'`,
		id, txHash, payer, paidAt)
	if err != nil {
		return translate(err, "mark paylink paid")
	}
	return expectOneRow(res, "mark paylink paid")
}

// TransitionPayLink moves a pending link to status. ErrStaleWrite means the
// link was no longer pending.
func (s *Store) TransitionPayLink(ctx context.Context, id string, status models.PayLinkStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE paylinks SET status = $2
		WHERE id = $1 AND status = 'pending'`, id, status)
	if err != nil {
		return translate(err, "transition paylink")
	}
	return expectOneRow(res, "transition paylink")
}

func (s *Store) ListPayLinksByMerchant(ctx context.Context, merchantID string, limit int) ([]models.PayLink, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+payLinkColumns+`
		FROM paylinks
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, merchantID, limit)
	if err != nil {
		return nil, translate(err, "list paylinks")
	}
	defer rows.Close()

	return collect(rows, scanPayLink)
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, translate(err, "scan row")
		}
		out = append(out, *v)
	}
	return out, translate(rows.Err(), "iterate rows")
}
