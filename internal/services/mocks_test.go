package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/chain"
	"github.com/vaultpay/backend/internal/onmeta"
	"github.com/vaultpay/backend/internal/payram"
	"github.com/vaultpay/backend/internal/store"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyPayment(ctx context.Context, txHash string, exp chain.Expectation) (*chain.Result, error) {
	args := m.Called(txHash, exp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.Result), args.Error(1)
}

type MockPayRam struct {
	mock.Mock
}

func (m *MockPayRam) VerifyPayment(ctx context.Context, req payram.VerifyRequest) (*payram.Verification, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payram.Verification), args.Error(1)
}

type MockOrderFetcher struct {
	mock.Mock
}

func (m *MockOrderFetcher) FetchOrder(ctx context.Context, orderID string) (*onmeta.Event, error) {
	args := m.Called(orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*onmeta.Event), args.Error(1)
}

func newSQLMock(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db), mock
}

func newTestLedger(st *store.Store) *LedgerService {
	l := NewLedgerService(st, zap.NewNop())
	l.now = fixedClock
	return l
}

var (
	payLinkCols = []string{"id", "merchant_id", "amount", "token", "description", "status",
		"solana_tx_hash", "payer_address", "created_at", "expires_at", "paid_at"}
	merchantCols = []string{"id", "owner_user_id", "name", "wallet_address", "payram_merchant_id", "created_at"}
	orderCols    = []string{"id", "onmeta_order_id", "user_id", "order_type", "status", "event_type",
		"buy_token_symbol", "buy_token_address", "fiat_currency", "fiat_amount", "chain_id", "payment_mode",
		"receiver_wallet_address", "transaction_hash", "transferred_amount", "conversion_rate", "commission",
		"metadata", "created_at", "updated_at", "completed_at", "expired_at"}
)

func payLinkRows(id, status string, expiresAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(payLinkCols).
		AddRow(id, "m1", "10", "USDC", nil, status, nil, nil, testNow.Add(-time.Hour), expiresAt, nil)
}

func merchantRows(owner, payramID string) *sqlmock.Rows {
	return sqlmock.NewRows(merchantCols).
		AddRow("m1", owner, "Corner Shop", "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", payramID, testNow.Add(-24*time.Hour))
}

func orderRows(onmetaID, status string, userID any, transferred any) *sqlmock.Rows {
	return sqlmock.NewRows(orderCols).
		AddRow("o1", onmetaID, userID, "onramp", status, status,
			"USDC", "", "INR", "1500", "101", "UPI",
			"wallet1", nil, transferred, nil, nil,
			nil, testNow.Add(-time.Hour), testNow.Add(-time.Hour), nil, nil)
}
