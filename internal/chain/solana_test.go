package chain

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/apperr"
	"github.com/vaultpay/backend/internal/config"
)

const usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type mockRPC struct {
	mock.Mock
}

func (m *mockRPC) GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	args := m.Called(sig)
	out, _ := args.Get(0).(*rpc.GetTransactionResult)
	return out, args.Error(1)
}

func newTestVerifier(t *testing.T, client RPC) *Verifier {
	v, err := NewVerifier(client, config.SolanaConfig{
		LookupRetries: 2,
		Mints:         map[string]string{"usdc": usdcMint, "tt": ""},
	}, zap.NewNop())
	require.NoError(t, err)
	return v
}

func testSignature() solana.Signature {
	var sig solana.Signature
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	return sig
}

func TestNewVerifier_RejectsBadMint(t *testing.T) {
	_, err := NewVerifier(&mockRPC{}, config.SolanaConfig{Mints: map[string]string{"USDT": "not-a-key"}}, zap.NewNop())
	assert.Error(t, err)
}

func TestVerifyPayment_Lookup(t *testing.T) {
	merchant := solana.NewWallet().PublicKey().String()
	exp := Expectation{Recipient: merchant, Token: "SOL", Amount: decimal.NewFromInt(1)}
	ctx := context.Background()

	t.Run("malformed hash", func(t *testing.T) {
		v := newTestVerifier(t, &mockRPC{})
		_, err := v.VerifyPayment(ctx, "not base58 !!", exp)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("token without mint", func(t *testing.T) {
		v := newTestVerifier(t, &mockRPC{})
		_, err := v.VerifyPayment(ctx, testSignature().String(), Expectation{Recipient: merchant, Token: "TT", Amount: decimal.NewFromInt(1)})
		assert.True(t, apperr.Is(err, apperr.KindInternal))
	})

	t.Run("not found after retries", func(t *testing.T) {
		client := &mockRPC{}
		client.On("GetTransaction", testSignature()).Return(nil, rpc.ErrNotFound).Times(2)
		v := newTestVerifier(t, client)

		_, err := v.VerifyPayment(ctx, testSignature().String(), exp)
		assert.ErrorIs(t, err, apperr.ErrTxNotFound)
		assert.True(t, apperr.Is(err, apperr.KindUpstreamUnavailable))
		client.AssertExpectations(t)
	})

	t.Run("rpc failure is retryable", func(t *testing.T) {
		client := &mockRPC{}
		client.On("GetTransaction", testSignature()).Return(nil, errors.New("connection reset"))
		v := newTestVerifier(t, client)

		_, err := v.VerifyPayment(ctx, testSignature().String(), exp)
		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr))
		assert.True(t, appErr.Retryable())
	})

	t.Run("transaction failed on chain", func(t *testing.T) {
		client := &mockRPC{}
		client.On("GetTransaction", testSignature()).Return(&rpc.GetTransactionResult{
			Meta: &rpc.TransactionMeta{Err: map[string]any{"InstructionError": []any{0, "Custom"}}},
		}, nil)
		v := newTestVerifier(t, client)

		_, err := v.VerifyPayment(ctx, testSignature().String(), exp)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("missing envelope", func(t *testing.T) {
		client := &mockRPC{}
		client.On("GetTransaction", testSignature()).Return(&rpc.GetTransactionResult{
			Meta: &rpc.TransactionMeta{},
		}, nil)
		v := newTestVerifier(t, client)

		_, err := v.VerifyPayment(ctx, testSignature().String(), exp)
		assert.True(t, apperr.Is(err, apperr.KindUpstreamUnavailable))
	})
}

func TestCheckTransfer_Native(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	merchant := solana.NewWallet().PublicKey()
	keys := []solana.PublicKey{payer, merchant, solana.SystemProgramID}
	meta := &rpc.TransactionMeta{
		PreBalances:  []uint64{5_000_000_000, 1_000_000_000, 1},
		PostBalances: []uint64{3_499_995_000, 2_500_000_000, 1},
	}

	received, err := checkTransfer(meta, keys, merchant, nil, decimal.RequireFromString("1.5"))
	assert.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.5").Equal(received))

	_, err = checkTransfer(meta, keys, merchant, nil, decimal.RequireFromString("1.6"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = checkTransfer(meta, keys, solana.NewWallet().PublicKey(), nil, decimal.RequireFromString("0.1"))
	assert.Error(t, err, "recipient not in the transaction")
}

func TestCheckTransfer_Token(t *testing.T) {
	mint := solana.MustPublicKeyFromBase58(usdcMint)
	other := solana.NewWallet().PublicKey()
	merchant := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()

	meta := &rpc.TransactionMeta{
		PreTokenBalances: []rpc.TokenBalance{
			{AccountIndex: 1, Owner: &payer, Mint: mint, UiTokenAmount: &rpc.UiTokenAmount{Amount: "50000000", Decimals: 6}},
			{AccountIndex: 2, Owner: &merchant, Mint: mint, UiTokenAmount: &rpc.UiTokenAmount{Amount: "1000000", Decimals: 6}},
		},
		PostTokenBalances: []rpc.TokenBalance{
			{AccountIndex: 1, Owner: &payer, Mint: mint, UiTokenAmount: &rpc.UiTokenAmount{Amount: "39500000", Decimals: 6}},
			{AccountIndex: 2, Owner: &merchant, Mint: mint, UiTokenAmount: &rpc.UiTokenAmount{Amount: "11500000", Decimals: 6}},
		},
	}

	t.Run("exact amount", func(t *testing.T) {
		received, err := checkTransfer(meta, nil, merchant, &mint, decimal.RequireFromString("10.5"))
		assert.NoError(t, err)
		assert.True(t, decimal.RequireFromString("10.5").Equal(received))
	})

	t.Run("underpaid", func(t *testing.T) {
		_, err := checkTransfer(meta, nil, merchant, &mint, decimal.RequireFromString("10.51"))
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("other mint ignored", func(t *testing.T) {
		_, err := checkTransfer(meta, nil, merchant, &other, decimal.RequireFromString("1"))
		assert.Error(t, err)
	})

	t.Run("new token account", func(t *testing.T) {
		fresh := &rpc.TransactionMeta{
			PostTokenBalances: []rpc.TokenBalance{
				{AccountIndex: 3, Owner: &merchant, Mint: mint, UiTokenAmount: &rpc.UiTokenAmount{Amount: "2000000", Decimals: 6}},
			},
		}
		received, err := checkTransfer(fresh, nil, merchant, &mint, decimal.NewFromInt(2))
		assert.NoError(t, err)
		assert.True(t, decimal.NewFromInt(2).Equal(received))
	})
}
