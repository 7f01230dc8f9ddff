package store

import (
	"context"

	"github.com/vaultpay/backend/internal/models"
)

const orderColumns = `id, onmeta_order_id, user_id, order_type, status, event_type,
	buy_token_symbol, buy_token_address, fiat_currency, fiat_amount, chain_id, payment_mode,
	receiver_wallet_address, transaction_hash, transferred_amount, conversion_rate, commission,
	metadata, created_at, updated_at, completed_at, expired_at`

func scanOrder(row rowScanner) (*models.OnMetaOrder, error) {
	var o models.OnMetaOrder
	err := row.Scan(&o.ID, &o.OnMetaOrderID, &o.UserID, &o.OrderType, &o.Status, &o.EventType,
		&o.BuyTokenSymbol, &o.BuyTokenAddress, &o.FiatCurrency, &o.FiatAmount, &o.ChainID, &o.PaymentMode,
		&o.ReceiverWalletAddress, &o.TransactionHash, &o.TransferredAmount, &o.ConversionRate, &o.Commission,
		&o.Metadata, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt, &o.ExpiredAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrder inserts a new order. A duplicate onmeta_order_id yields
// ErrUniqueViolation.
func (s *Store) CreateOrder(ctx context.Context, o *models.OnMetaOrder) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO onmeta_orders (id, onmeta_order_id, user_id, order_type, status, event_type,
			buy_token_symbol, buy_token_address, fiat_currency, fiat_amount, chain_id, payment_mode,
			receiver_wallet_address, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.OnMetaOrderID, o.UserID, o.OrderType, o.Status, o.EventType,
		o.BuyTokenSymbol, o.BuyTokenAddress, o.FiatCurrency, o.FiatAmount, o.ChainID, o.PaymentMode,
		o.ReceiverWalletAddress, o.Metadata, o.CreatedAt, o.UpdatedAt)
	return translate(err, "create order")
}

func (s *Store) GetOrderByOnMetaID(ctx context.Context, onmetaOrderID string) (*models.OnMetaOrder, error) {
	o, err := scanOrder(s.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM onmeta_orders WHERE onmeta_order_id = $1`, onmetaOrderID))
	if err != nil {
		return nil, translate(err, "get order")
	}
	return o, nil
}

// LockOrder reads the order with a row lock. Only meaningful inside InTx.
func (s *Store) LockOrder(ctx context.Context, onmetaOrderID string) (*models.OnMetaOrder, error) {
	o, err := scanOrder(s.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM onmeta_orders WHERE onmeta_order_id = $1 FOR UPDATE`, onmetaOrderID))
	if err != nil {
		return nil, translate(err, "lock order")
	}
	return o, nil
}

// UpdateOrder writes every mutable column of o, keyed by onmeta_order_id.
func (s *Store) UpdateOrder(ctx context.Context, o *models.OnMetaOrder) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE onmeta_orders SET
			user_id = $2, status = $3, event_type = $4, buy_token_symbol = $5, buy_token_address = $6,
			fiat_currency = $7, fiat_amount = $8, chain_id = $9, payment_mode = $10,
			receiver_wallet_address = $11, transaction_hash = $12, transferred_amount = $13,
			conversion_rate = $14, commission = $15, metadata = $16, updated_at = $17,
			completed_at = $18, expired_at = $19
		WHERE onmeta_order_id = $1`,
		o.OnMetaOrderID, o.UserID, o.Status, o.EventType, o.BuyTokenSymbol, o.BuyTokenAddress,
		o.FiatCurrency, o.FiatAmount, o.ChainID, o.PaymentMode,
		o.ReceiverWalletAddress, o.TransactionHash, o.TransferredAmount,
		o.ConversionRate, o.Commission, o.Metadata, o.UpdatedAt,
		o.CompletedAt, o.ExpiredAt)
	if err != nil {
		return translate(err, "update order")
	}
	return expectOneRow(res, "update order")
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]models.OnMetaOrder, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM onmeta_orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, translate(err, "list orders")
	}
	defer rows.Close()

	return collect(rows, scanOrder)
}
