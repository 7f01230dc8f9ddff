package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/apperr"
	"github.com/vaultpay/backend/internal/chain"
	"github.com/vaultpay/backend/internal/config"
	"github.com/vaultpay/backend/internal/models"
	"github.com/vaultpay/backend/internal/payram"
)

func testPayLinkConfig() *config.PayLinkConfig {
	return &config.PayLinkConfig{
		DefaultExpiry:       24 * time.Hour,
		MaxExpiryHours:      720,
		MaxPayAttempts:      10,
		PayAttemptWindow:    10 * time.Minute,
		PublicBaseURL:       "https://app.example.com/",
		QRSize:              128,
		MaxDescriptionChars: 20,
	}
}

func newPayLinkService(t *testing.T, rdb *redis.Client, payRam AdvisoryVerifier) (*PayLinkService, sqlmock.Sqlmock, *MockVerifier) {
	st, dbMock := newSQLMock(t)
	verifier := &MockVerifier{}
	svc := NewPayLinkService(st, newTestLedger(st), verifier, payRam, rdb, testPayLinkConfig(), nil, zap.NewNop())
	svc.now = fixedClock
	return svc, dbMock, verifier
}

func TestPayLinkService_CreatePayLink(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to pending with configured expiry", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
			WithArgs("m1").
			WillReturnRows(merchantRows("u1", ""))
		dbMock.ExpectExec("INSERT INTO paylinks").
			WithArgs(sqlmock.AnyArg(), "m1", "10", "USDC", nil, models.PayLinkPending, testNow, testNow.Add(24*time.Hour)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		p, err := svc.CreatePayLink(ctx, "u1", CreatePayLinkInput{MerchantID: "m1", Amount: "10", Token: "USDC"})
		require.NoError(t, err)
		assert.Equal(t, models.PayLinkPending, p.Status)
		assert.Equal(t, "USDC", p.Token)
		require.NotNil(t, p.ExpiresAt)
		assert.Equal(t, testNow.Add(24*time.Hour), *p.ExpiresAt)
		assert.NotEmpty(t, p.ID)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("custom expiry and description", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)
		hours := 2
		desc := "  Coffee  "

		dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
			WillReturnRows(merchantRows("u1", ""))
		dbMock.ExpectExec("INSERT INTO paylinks").
			WillReturnResult(sqlmock.NewResult(0, 1))

		p, err := svc.CreatePayLink(ctx, "u1", CreatePayLinkInput{
			MerchantID: "m1", Amount: "0.25", Token: "sol", Description: &desc, ExpiresInHours: &hours,
		})
		require.NoError(t, err)
		assert.Equal(t, "SOL", p.Token)
		assert.Equal(t, "Coffee", *p.Description)
		assert.Equal(t, testNow.Add(2*time.Hour), *p.ExpiresAt)
		assert.True(t, decimal.RequireFromString("0.25").Equal(p.Amount))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("merchant owned by someone else", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
			WillReturnRows(merchantRows("u2", ""))

		_, err := svc.CreatePayLink(ctx, "u1", CreatePayLinkInput{MerchantID: "m1", Amount: "10", Token: "USDC"})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown merchant", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
			WillReturnError(sql.ErrNoRows)

		_, err := svc.CreatePayLink(ctx, "u1", CreatePayLinkInput{MerchantID: "m9", Amount: "10", Token: "USDC"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("invalid input never reaches storage", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)
		tooLong := 721
		longDesc := "a description that is far too long"

		cases := map[string]CreatePayLinkInput{
			"token":       {MerchantID: "m1", Amount: "10", Token: "DOGE"},
			"zero amount": {MerchantID: "m1", Amount: "0", Token: "USDC"},
			"negative":    {MerchantID: "m1", Amount: "-3", Token: "USDC"},
			"not decimal": {MerchantID: "m1", Amount: "ten", Token: "USDC"},
			"precision":   {MerchantID: "m1", Amount: "0.0000000001", Token: "SOL"},
			"expiry":      {MerchantID: "m1", Amount: "1", Token: "USDC", ExpiresInHours: &tooLong},
			"description": {MerchantID: "m1", Amount: "1", Token: "USDC", Description: &longDesc},
			"merchant":    {Amount: "1", Token: "USDC"},
		}
		for name, in := range cases {
			_, err := svc.CreatePayLink(ctx, "u1", in)
			assert.True(t, apperr.Is(err, apperr.KindValidation), name)
		}
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPayLinkService_GetPayLink(t *testing.T) {
	ctx := context.Background()

	t.Run("overdue pending link is expired", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WithArgs("pl_1").
			WillReturnRows(payLinkRows("pl_1", "pending", testNow.Add(-time.Minute)))
		dbMock.ExpectExec("UPDATE paylinks SET status = \\$2").
			WithArgs("pl_1", models.PayLinkExpired).
			WillReturnResult(sqlmock.NewResult(0, 1))

		p, err := svc.GetPayLink(ctx, "pl_1")
		require.NoError(t, err)
		assert.Equal(t, models.PayLinkExpired, p.Status)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnError(sql.ErrNoRows)

		_, err := svc.GetPayLink(ctx, "pl_x")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

// expectSettlement queues the statements of a successful paid transition.
func expectSettlement(dbMock sqlmock.Sqlmock, id, txHash string, payer any) {
	dbMock.ExpectBegin()
	dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(payLinkRows(id, "pending", testNow.Add(time.Hour)))
	dbMock.ExpectExec("UPDATE paylinks SET status = 'paid'").
		WithArgs(id, txHash, payer, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM transactions WHERE type = \\$1 AND reference_id = \\$2\\)").
		WithArgs(models.TxTypePay, id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	dbMock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectCommit()
}

func expectPayablePreamble(dbMock sqlmock.Sqlmock, id, txHash, payramID string) {
	dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(payLinkRows(id, "pending", testNow.Add(time.Hour)))
	dbMock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM paylinks WHERE solana_tx_hash = \\$1\\)").
		WithArgs(txHash).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
		WithArgs("m1").
		WillReturnRows(merchantRows("u1", payramID))
}

func TestPayLinkService_PayPayLink(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed transaction settles the link once", func(t *testing.T) {
		svc, dbMock, verifier := newPayLinkService(t, nil, nil)

		expectPayablePreamble(dbMock, "pl_1", "sig1", "")
		verifier.On("VerifyPayment", "sig1", mock.Anything).
			Return(&chain.Result{Signature: "sig1", FeePayer: "payer1", Received: decimal.NewFromInt(10)}, nil).Once()
		expectSettlement(dbMock, "pl_1", "sig1", "payer1")

		p, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: " sig1 "})
		require.NoError(t, err)
		assert.Equal(t, models.PayLinkPaid, p.Status)
		assert.Equal(t, "sig1", *p.SolanaTxHash)
		assert.Equal(t, "payer1", *p.PayerAddress)
		assert.Equal(t, testNow, *p.PaidAt)

		exp := verifier.Calls[0].Arguments.Get(1).(chain.Expectation)
		assert.Equal(t, "USDC", exp.Token)
		assert.True(t, decimal.NewFromInt(10).Equal(exp.Amount))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("already paid", func(t *testing.T) {
		svc, dbMock, verifier := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_1", "paid", testNow.Add(time.Hour)))

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig2"})
		assert.ErrorIs(t, err, apperr.ErrAlreadyPaid)
		assert.Equal(t, "PayLink has already been paid", apperr.Message(err))
		verifier.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("expired regardless of transaction", func(t *testing.T) {
		svc, dbMock, verifier := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_1", "pending", testNow.Add(-time.Second)))
		dbMock.ExpectExec("UPDATE paylinks SET status = \\$2").
			WithArgs("pl_1", models.PayLinkExpired).
			WillReturnResult(sqlmock.NewResult(0, 1))

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1"})
		assert.ErrorIs(t, err, apperr.ErrExpired)
		assert.Equal(t, "PayLink has expired", apperr.Message(err))
		verifier.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("cancelled", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_1", "cancelled", testNow.Add(time.Hour)))

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
	})

	t.Run("unknown link", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnError(sql.ErrNoRows)

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "nope", TxHash: "sig1"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("transaction hash already used", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_2", "pending", testNow.Add(time.Hour)))
		dbMock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM paylinks WHERE solana_tx_hash = \\$1\\)").
			WithArgs("sig1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_2", TxHash: "sig1"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("transaction not on chain is retryable", func(t *testing.T) {
		svc, dbMock, verifier := newPayLinkService(t, nil, nil)

		expectPayablePreamble(dbMock, "pl_1", "sig1", "")
		verifier.On("VerifyPayment", "sig1", mock.Anything).Return(nil, apperr.ErrTxNotFound)

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1"})
		assert.ErrorIs(t, err, apperr.ErrTxNotFound)
		assert.Equal(t, "Transaction not found on blockchain", apperr.Message(err))
		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr))
		assert.True(t, appErr.Retryable())
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("payram failure does not block settlement", func(t *testing.T) {
		payRam := &MockPayRam{}
		svc, dbMock, verifier := newPayLinkService(t, nil, payRam)
		from := "payerWallet"

		expectPayablePreamble(dbMock, "pl_1", "sig1", "pr_77")
		verifier.On("VerifyPayment", "sig1", mock.Anything).
			Return(&chain.Result{Signature: "sig1", FeePayer: "feePayer"}, nil)
		payRam.On("VerifyPayment", mock.MatchedBy(func(req payram.VerifyRequest) bool {
			return req.MerchantID == "pr_77" && req.TxHash == "sig1" && req.Currency == "USDC"
		})).Return(nil, errors.New("context deadline exceeded"))
		expectSettlement(dbMock, "pl_1", "sig1", from)

		p, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1", FromAddress: &from})
		require.NoError(t, err)
		assert.Equal(t, models.PayLinkPaid, p.Status)
		assert.Equal(t, from, *p.PayerAddress)
		payRam.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("concurrent settlement with the same hash", func(t *testing.T) {
		svc, dbMock, verifier := newPayLinkService(t, nil, nil)

		expectPayablePreamble(dbMock, "pl_1", "sig1", "")
		verifier.On("VerifyPayment", "sig1", mock.Anything).Return(&chain.Result{FeePayer: "payer1"}, nil)
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(payLinkRows("pl_1", "pending", testNow.Add(time.Hour)))
		dbMock.ExpectExec("UPDATE paylinks SET status = 'paid'").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "paylinks_solana_tx_hash_key"})
		dbMock.ExpectRollback()

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1"})
		assert.True(t, apperr.Is(err, apperr.KindConflict))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("paid between read and lock", func(t *testing.T) {
		svc, dbMock, verifier := newPayLinkService(t, nil, nil)

		expectPayablePreamble(dbMock, "pl_1", "sig1", "")
		verifier.On("VerifyPayment", "sig1", mock.Anything).Return(&chain.Result{FeePayer: "payer1"}, nil)
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(payLinkRows("pl_1", "paid", testNow.Add(time.Hour)))
		dbMock.ExpectRollback()

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1"})
		assert.ErrorIs(t, err, apperr.ErrAlreadyPaid)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("changed under lock while verifying", func(t *testing.T) {
		cases := map[string]struct {
			status    string
			expiresAt time.Time
			want      error
		}{
			"cancelled":      {"cancelled", testNow.Add(time.Hour), errCancelled},
			"marked expired": {"expired", testNow.Add(-time.Minute), apperr.ErrExpired},
			"expiry passed":  {"pending", testNow.Add(-time.Second), apperr.ErrExpired},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				svc, dbMock, verifier := newPayLinkService(t, nil, nil)

				expectPayablePreamble(dbMock, "pl_1", "sig1", "")
				verifier.On("VerifyPayment", "sig1", mock.Anything).Return(&chain.Result{FeePayer: "payer1"}, nil)
				dbMock.ExpectBegin()
				dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1 FOR UPDATE").
					WithArgs("pl_1").
					WillReturnRows(payLinkRows("pl_1", tc.status, tc.expiresAt))
				dbMock.ExpectRollback()

				_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1"})
				assert.ErrorIs(t, err, tc.want)
				assert.NoError(t, dbMock.ExpectationsWereMet())
			})
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		svc, _, _ := newPayLinkService(t, nil, nil)
		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "  "})
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
}

func TestPayLinkService_PayAttemptLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("first attempt opens the window", func(t *testing.T) {
		rdb, redisMock := redismock.NewClientMock()
		svc, dbMock, _ := newPayLinkService(t, rdb, nil)

		redisMock.ExpectIncr("paylink:attempts:pl_1").SetVal(1)
		redisMock.ExpectExpire("paylink:attempts:pl_1", 10*time.Minute).SetVal(true)
		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnError(sql.ErrNoRows)

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("over the limit", func(t *testing.T) {
		rdb, redisMock := redismock.NewClientMock()
		svc, dbMock, _ := newPayLinkService(t, rdb, nil)

		redisMock.ExpectIncr("paylink:attempts:pl_1").SetVal(11)

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1"})
		assert.True(t, apperr.Is(err, apperr.KindRateLimited))
		assert.NoError(t, redisMock.ExpectationsWereMet())
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("redis failure leaves the limiter open", func(t *testing.T) {
		rdb, redisMock := redismock.NewClientMock()
		svc, dbMock, _ := newPayLinkService(t, rdb, nil)

		redisMock.ExpectIncr("paylink:attempts:pl_1").SetErr(errors.New("connection refused"))
		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_1", "paid", testNow.Add(time.Hour)))

		_, err := svc.PayPayLink(ctx, PayPayLinkInput{PayLinkID: "pl_1", TxHash: "sig1"})
		assert.ErrorIs(t, err, apperr.ErrAlreadyPaid)
	})
}

func TestPayLinkService_CancelPayLink(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels pending link", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_1", "pending", testNow.Add(time.Hour)))
		dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
			WillReturnRows(merchantRows("u1", ""))
		dbMock.ExpectExec("UPDATE paylinks SET status = \\$2").
			WithArgs("pl_1", models.PayLinkCancelled).
			WillReturnResult(sqlmock.NewResult(0, 1))

		p, err := svc.CancelPayLink(ctx, "u1", "pl_1")
		require.NoError(t, err)
		assert.Equal(t, models.PayLinkCancelled, p.Status)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("paid link cannot be cancelled", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_1", "paid", testNow.Add(time.Hour)))
		dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
			WillReturnRows(merchantRows("u1", ""))

		_, err := svc.CancelPayLink(ctx, "u1", "pl_1")
		assert.ErrorIs(t, err, apperr.ErrAlreadyPaid)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("paid while cancelling", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_1", "pending", testNow.Add(time.Hour)))
		dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
			WillReturnRows(merchantRows("u1", ""))
		dbMock.ExpectExec("UPDATE paylinks SET status = \\$2").
			WillReturnResult(sqlmock.NewResult(0, 0))
		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_1", "paid", testNow.Add(time.Hour)))

		_, err := svc.CancelPayLink(ctx, "u1", "pl_1")
		assert.ErrorIs(t, err, apperr.ErrAlreadyPaid)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("not the owner", func(t *testing.T) {
		svc, dbMock, _ := newPayLinkService(t, nil, nil)

		dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
			WillReturnRows(payLinkRows("pl_1", "pending", testNow.Add(time.Hour)))
		dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
			WillReturnRows(merchantRows("u2", ""))

		_, err := svc.CancelPayLink(ctx, "u1", "pl_1")
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})
}

func TestPayLinkService_ListAndQR(t *testing.T) {
	ctx := context.Background()
	svc, dbMock, _ := newPayLinkService(t, nil, nil)

	dbMock.ExpectQuery("SELECT .+ FROM merchants WHERE id = \\$1").
		WillReturnRows(merchantRows("u1", ""))
	dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE merchant_id = \\$1 ORDER BY created_at DESC LIMIT \\$2").
		WithArgs("m1", defaultHistoryLimit).
		WillReturnRows(sqlmock.NewRows(payLinkCols).
			AddRow("pl_2", "m1", "5", "SOL", nil, "pending", nil, nil, testNow, testNow.Add(-time.Minute), nil).
			AddRow("pl_1", "m1", "10", "USDC", nil, "paid", "sig1", "payer1", testNow.Add(-time.Hour), testNow.Add(time.Hour), testNow))

	links, err := svc.ListMerchantPayLinks(ctx, "u1", "m1", 0)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, models.PayLinkExpired, links[0].Status)
	assert.Equal(t, models.PayLinkPaid, links[1].Status)

	dbMock.ExpectQuery("SELECT .+ FROM paylinks WHERE id = \\$1").
		WillReturnRows(payLinkRows("pl_1", "pending", testNow.Add(time.Hour)))

	png, err := svc.PayLinkQR(ctx, "pl_1")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
	assert.Equal(t, "https://app.example.com/pay/pl_1", svc.PayURL("pl_1"))
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPayLinkService_CreateMerchant(t *testing.T) {
	ctx := context.Background()
	svc, dbMock, _ := newPayLinkService(t, nil, nil)

	dbMock.ExpectExec("INSERT INTO merchants").
		WithArgs(sqlmock.AnyArg(), "u1", "Corner Shop", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "", testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m, err := svc.CreateMerchant(ctx, "u1", CreateMerchantInput{
		Name: " Corner Shop ", WalletAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", m.OwnerUserID)

	_, err = svc.CreateMerchant(ctx, "u1", CreateMerchantInput{Name: "Shop", WalletAddress: "0xabc"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.CreateMerchant(ctx, "", CreateMerchantInput{Name: "Shop"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.NoError(t, dbMock.ExpectationsWereMet())
}
