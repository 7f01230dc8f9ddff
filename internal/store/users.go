package store

import (
	"context"
	"strings"

	"github.com/vaultpay/backend/internal/models"
)

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.q.QueryRowContext(ctx, `
		SELECT id, email, wallet_address, created_at
		FROM users
		WHERE lower(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&u.ID, &u.Email, &u.WalletAddress, &u.CreatedAt)
	if err != nil {
		return nil, translate(err, "find user by email")
	}
	return &u, nil
}

func (s *Store) CreateMerchant(ctx context.Context, m *models.Merchant) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO merchants (id, owner_user_id, name, wallet_address, payram_merchant_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.OwnerUserID, m.Name, m.WalletAddress, m.PayRamMerchantID, m.CreatedAt)
	return translate(err, "create merchant")
}

func (s *Store) GetMerchant(ctx context.Context, id string) (*models.Merchant, error) {
	var m models.Merchant
	err := s.q.QueryRowContext(ctx, `
		SELECT id, owner_user_id, name, wallet_address, payram_merchant_id, created_at
		FROM merchants
		WHERE id = $1`, id,
	).Scan(&m.ID, &m.OwnerUserID, &m.Name, &m.WalletAddress, &m.PayRamMerchantID, &m.CreatedAt)
	if err != nil {
		return nil, translate(err, "get merchant")
	}
	return &m, nil
}
