// Package chain verifies pay-link settlements against Solana.
package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/apperr"
	"github.com/vaultpay/backend/internal/config"
	"github.com/vaultpay/backend/internal/metrics"
)

const nativeDecimals = 9

// RPC is the subset of *rpc.Client the verifier uses.
type RPC interface {
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Expectation describes the transfer a transaction must contain.
type Expectation struct {
	Recipient string
	Token     string
	Amount    decimal.Decimal
}

// Result is what a verified transaction proved.
type Result struct {
	Signature string
	Slot      uint64
	BlockTime *time.Time
	FeePayer  string
	Received  decimal.Decimal
}

var (
	errFailedOnChain = apperr.Validation("Transaction failed on blockchain")
	errUnderpaid     = apperr.Validation("Transaction does not pay the requested amount to the merchant")
	errInvalidHash   = apperr.Validation("Invalid transaction hash")
)

type Verifier struct {
	rpc     RPC
	mints   map[string]solana.PublicKey
	timeout time.Duration
	retries uint
	delay   time.Duration
	logger  *zap.Logger
}

// NewVerifier builds a verifier over client. Tokens other than SOL need a
// configured mint to be verifiable.
func NewVerifier(client RPC, cfg config.SolanaConfig, logger *zap.Logger) (*Verifier, error) {
	mints := make(map[string]solana.PublicKey, len(cfg.Mints))
	for symbol, addr := range cfg.Mints {
		if addr == "" {
			continue
		}
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s mint", symbol)
		}
		mints[strings.ToUpper(symbol)] = pk
	}
	retries := cfg.LookupRetries
	if retries == 0 {
		retries = 1
	}
	return &Verifier{
		rpc:     client,
		mints:   mints,
		timeout: cfg.Timeout,
		retries: retries,
		delay:   cfg.RetryDelay,
		logger:  logger.Named("chain"),
	}, nil
}

// NewRPCClient returns the solana-go JSON-RPC client for url.
func NewRPCClient(url string) *rpc.Client {
	return rpc.New(url)
}

// VerifyPayment confirms txHash is a successful transaction that moved at
// least exp.Amount of exp.Token to exp.Recipient. Lookup failures are
// retryable upstream errors; a failed or underpaying transaction is a
// validation error.
func (v *Verifier) VerifyPayment(ctx context.Context, txHash string, exp Expectation) (*Result, error) {
	sig, err := solana.SignatureFromBase58(strings.TrimSpace(txHash))
	if err != nil {
		return nil, errInvalidHash
	}
	recipient, err := solana.PublicKeyFromBase58(exp.Recipient)
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "merchant wallet address"))
	}

	var mint *solana.PublicKey
	if exp.Token != "SOL" {
		m, ok := v.mints[exp.Token]
		if !ok {
			return nil, apperr.Internal(errors.Errorf("no mint configured for %s", exp.Token))
		}
		mint = &m
	}

	out, err := v.fetch(ctx, sig)
	if err != nil {
		return nil, err
	}

	if out.Meta == nil {
		metrics.ChainLookups.WithLabelValues("no_meta").Inc()
		return nil, apperr.ErrTxNotFound
	}
	if out.Meta.Err != nil {
		metrics.ChainLookups.WithLabelValues("failed_tx").Inc()
		v.logger.Info("transaction errored on chain", zap.String("signature", txHash), zap.Any("err", out.Meta.Err))
		return nil, errFailedOnChain
	}

	keys, err := accountKeys(out)
	if err != nil {
		metrics.ChainLookups.WithLabelValues("decode_error").Inc()
		return nil, apperr.Upstream("Could not decode blockchain transaction", err)
	}

	received, err := checkTransfer(out.Meta, keys, recipient, mint, exp.Amount)
	if err != nil {
		metrics.ChainLookups.WithLabelValues("mismatch").Inc()
		v.logger.Info("transaction does not satisfy pay link",
			zap.String("signature", txHash),
			zap.String("expected", exp.Amount.String()),
			zap.String("token", exp.Token),
			zap.String("received", received.String()))
		return nil, err
	}

	metrics.ChainLookups.WithLabelValues("confirmed").Inc()
	res := &Result{
		Signature: sig.String(),
		Slot:      out.Slot,
		Received:  received,
	}
	if len(keys) > 0 {
		res.FeePayer = keys[0].String()
	}
	if out.BlockTime != nil {
		t := out.BlockTime.Time()
		res.BlockTime = &t
	}
	return res, nil
}

func (v *Verifier) fetch(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	var out *rpc.GetTransactionResult
	err := retry.Do(func() error {
		callCtx := ctx
		if v.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, v.timeout)
			defer cancel()
		}
		res, err := v.rpc.GetTransaction(callCtx, sig, opts)
		if err != nil {
			return err
		}
		if res == nil {
			return rpc.ErrNotFound
		}
		out = res
		return nil
	},
		retry.Attempts(v.retries),
		retry.Delay(v.delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)

	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, rpc.ErrNotFound):
		metrics.ChainLookups.WithLabelValues("not_found").Inc()
		return nil, apperr.ErrTxNotFound
	default:
		metrics.ChainLookups.WithLabelValues("rpc_error").Inc()
		metrics.UpstreamErrors.WithLabelValues("solana").Inc()
		v.logger.Warn("transaction lookup failed", zap.String("signature", sig.String()), zap.Error(err))
		return nil, apperr.Upstream("Blockchain lookup failed, please retry", err)
	}
}

func accountKeys(out *rpc.GetTransactionResult) ([]solana.PublicKey, error) {
	if out.Transaction == nil {
		return nil, errors.New("empty transaction envelope")
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, err
	}
	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, out.Meta.LoadedAddresses.Writable...)
	keys = append(keys, out.Meta.LoadedAddresses.ReadOnly...)
	return keys, nil
}

// checkTransfer returns how much the recipient received in token units and
// fails when that is below amount. mint is nil for native SOL.
func checkTransfer(meta *rpc.TransactionMeta, keys []solana.PublicKey, recipient solana.PublicKey, mint *solana.PublicKey, amount decimal.Decimal) (decimal.Decimal, error) {
	received := decimal.Zero

	if mint == nil {
		for i, key := range keys {
			if !key.Equals(recipient) || i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
				continue
			}
			delta := decimal.NewFromBigInt(new(big.Int).SetUint64(meta.PostBalances[i]), 0).
				Sub(decimal.NewFromBigInt(new(big.Int).SetUint64(meta.PreBalances[i]), 0))
			received = received.Add(delta.Shift(-nativeDecimals))
		}
	} else {
		pre := map[uint16]decimal.Decimal{}
		for _, b := range meta.PreTokenBalances {
			if b.Mint.Equals(*mint) && b.UiTokenAmount != nil {
				pre[b.AccountIndex] = rawAmount(b.UiTokenAmount)
			}
		}
		for _, b := range meta.PostTokenBalances {
			if !b.Mint.Equals(*mint) || b.Owner == nil || !b.Owner.Equals(recipient) || b.UiTokenAmount == nil {
				continue
			}
			received = received.Add(rawAmount(b.UiTokenAmount).Sub(pre[b.AccountIndex]))
		}
	}

	if received.LessThan(amount) {
		return received, errUnderpaid
	}
	return received, nil
}

func rawAmount(a *rpc.UiTokenAmount) decimal.Decimal {
	d, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(-int32(a.Decimals))
}

// ValidAddress reports whether addr is a base58 Solana public key.
func ValidAddress(addr string) bool {
	_, err := solana.PublicKeyFromBase58(addr)
	return err == nil
}
