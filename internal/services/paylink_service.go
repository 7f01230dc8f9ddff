package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/vaultpay/backend/internal/apperr"
	"github.com/vaultpay/backend/internal/chain"
	"github.com/vaultpay/backend/internal/config"
	"github.com/vaultpay/backend/internal/metrics"
	"github.com/vaultpay/backend/internal/models"
	"github.com/vaultpay/backend/internal/payram"
	"github.com/vaultpay/backend/internal/reporting"
	"github.com/vaultpay/backend/internal/store"
)

// maxAmountDecimals is the finest unit any supported token settles in.
const maxAmountDecimals = 9

// PaymentVerifier confirms a settlement transaction on chain.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, txHash string, exp chain.Expectation) (*chain.Result, error)
}

// AdvisoryVerifier cross-checks a settlement with PayRam.
type AdvisoryVerifier interface {
	VerifyPayment(ctx context.Context, req payram.VerifyRequest) (*payram.Verification, error)
}

type PayLinkService struct {
	store    *store.Store
	ledger   *LedgerService
	chain    PaymentVerifier
	payram   AdvisoryVerifier
	redis    *redis.Client
	config   *config.PayLinkConfig
	reporter *reporting.Reporter
	logger   *zap.Logger
	now      func() time.Time
}

// NewPayLinkService wires the pay-link flow. payram, rdb and reporter may
// be nil; the advisory check, attempt limiting and error reporting are then
// skipped.
func NewPayLinkService(st *store.Store, ledger *LedgerService, verifier PaymentVerifier, payram AdvisoryVerifier,
	rdb *redis.Client, cfg *config.PayLinkConfig, reporter *reporting.Reporter, logger *zap.Logger) *PayLinkService {
	return &PayLinkService{
		store:    st,
		ledger:   ledger,
		chain:    verifier,
		payram:   payram,
		redis:    rdb,
		config:   cfg,
		reporter: reporter,
		logger:   logger.Named("paylink"),
		now:      time.Now,
	}
}

type CreateMerchantInput struct {
	Name             string `json:"name" validate:"required,min=2,max=120"`
	WalletAddress    string `json:"walletAddress" validate:"required"`
	PayRamMerchantID string `json:"payramMerchantId,omitempty" validate:"omitempty,max=128"`
}

type CreatePayLinkInput struct {
	MerchantID     string  `json:"merchantId" validate:"required"`
	Amount         string  `json:"amount" validate:"required"`
	Token          string  `json:"token" validate:"required,oneof=SOL USDC USDT TT"`
	Description    *string `json:"description,omitempty"`
	ExpiresInHours *int    `json:"expiresInHours,omitempty" validate:"omitempty,gt=0"`
}

type PayPayLinkInput struct {
	PayLinkID   string  `json:"payLinkId" validate:"required"`
	TxHash      string  `json:"txHash" validate:"required"`
	FromAddress *string `json:"fromAddress,omitempty"`
}

func (s *PayLinkService) CreateMerchant(ctx context.Context, callerID string, in CreateMerchantInput) (*models.Merchant, error) {
	if callerID == "" {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("Merchant name is required")
	}
	wallet := strings.TrimSpace(in.WalletAddress)
	if !chain.ValidAddress(wallet) {
		return nil, apperr.Validation("Invalid Solana wallet address")
	}

	m := &models.Merchant{
		ID:               uuid.NewString(),
		OwnerUserID:      callerID,
		Name:             name,
		WalletAddress:    wallet,
		PayRamMerchantID: strings.TrimSpace(in.PayRamMerchantID),
		CreatedAt:        s.now().UTC(),
	}
	if err := s.store.CreateMerchant(ctx, m); err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info("merchant created", zap.String("merchantId", m.ID), zap.String("owner", callerID))
	return m, nil
}

// CreatePayLink issues a pending link for a merchant the caller owns.
func (s *PayLinkService) CreatePayLink(ctx context.Context, callerID string, in CreatePayLinkInput) (*models.PayLink, error) {
	if in.MerchantID == "" {
		return nil, apperr.Validation("merchantId is required")
	}
	token := strings.ToUpper(strings.TrimSpace(in.Token))
	if !supportedToken(token) {
		return nil, apperr.Validation(fmt.Sprintf("Unsupported token %q", in.Token))
	}
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	var description *string
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if len([]rune(d)) > s.config.MaxDescriptionChars {
			return nil, apperr.Validation(fmt.Sprintf("Description must be at most %d characters", s.config.MaxDescriptionChars))
		}
		if d != "" {
			description = &d
		}
	}

	ttl := s.config.DefaultExpiry
	if in.ExpiresInHours != nil {
		hours := *in.ExpiresInHours
		if hours <= 0 || hours > s.config.MaxExpiryHours {
			return nil, apperr.Validation(fmt.Sprintf("expiresInHours must be between 1 and %d", s.config.MaxExpiryHours))
		}
		ttl = time.Duration(hours) * time.Hour
	}

	if _, err := s.ownedMerchant(ctx, callerID, in.MerchantID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	p := &models.PayLink{
		ID:          uuid.NewString(),
		MerchantID:  in.MerchantID,
		Amount:      amount,
		Token:       token,
		Description: description,
		Status:      models.PayLinkPending,
		CreatedAt:   now,
		ExpiresAt:   &expiresAt,
	}
	if err := s.store.CreatePayLink(ctx, p); err != nil {
		return nil, apperr.Internal(err)
	}

	s.logger.Info("pay link created",
		zap.String("payLinkId", p.ID),
		zap.String("merchantId", p.MerchantID),
		zap.String("amount", p.Amount.String()),
		zap.String("token", p.Token))
	return p, nil
}

// GetPayLink returns the link. A pending link past its expiry is persisted
// and reported as expired.
func (s *PayLinkService) GetPayLink(ctx context.Context, id string) (*models.PayLink, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.expireIfDue(ctx, p)
	return p, nil
}

// PayPayLink settles a pending link with an on-chain transaction. The chain
// lookup is authoritative; PayRam is consulted only for its opinion.
func (s *PayLinkService) PayPayLink(ctx context.Context, in PayPayLinkInput) (*models.PayLink, error) {
	txHash := strings.TrimSpace(in.TxHash)
	if in.PayLinkID == "" || txHash == "" {
		return nil, apperr.Validation("payLinkId and txHash are required")
	}

	if err := s.checkPayAttempts(ctx, in.PayLinkID); err != nil {
		metrics.PayLinkPayments.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	p, err := s.load(ctx, in.PayLinkID)
	if err != nil {
		return nil, err
	}
	if err := s.payable(ctx, p); err != nil {
		metrics.PayLinkPayments.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return nil, err
	}

	used, err := s.store.PayLinkTxHashUsed(ctx, txHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if used {
		metrics.PayLinkPayments.WithLabelValues("tx_reused").Inc()
		return nil, errTxHashUsed
	}

	merchant, err := s.store.GetMerchant(ctx, p.MerchantID)
	if err != nil {
		return nil, apperr.Internal(errors.Wrapf(err, "merchant of pay link %s", p.ID))
	}

	result, err := s.chain.VerifyPayment(ctx, txHash, chain.Expectation{
		Recipient: merchant.WalletAddress,
		Token:     p.Token,
		Amount:    p.Amount,
	})
	if err != nil {
		metrics.PayLinkPayments.WithLabelValues("chain_" + apperr.KindOf(err).String()).Inc()
		s.logger.Info("payment verification failed",
			zap.String("payLinkId", p.ID), zap.String("txHash", txHash), zap.Error(err))
		return nil, err
	}

	payer := in.FromAddress
	if payer == nil || strings.TrimSpace(*payer) == "" {
		payer = nonEmpty(result.FeePayer)
	}

	s.crossCheckPayRam(ctx, merchant, p, txHash)

	paidAt := s.now().UTC()
	err = s.store.InTx(ctx, func(tx *store.Store) error {
		locked, err := tx.LockPayLink(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := lockedPayable(locked, paidAt); err != nil {
			return err
		}
		if err := tx.MarkPayLinkPaid(ctx, p.ID, txHash, payer, paidAt); err != nil {
			return err
		}
		_, err = s.ledger.Append(ctx, tx, &models.Transaction{
			Type:        models.TxTypePay,
			MerchantID:  &merchant.ID,
			FromAddress: payer,
			ToAddress:   &merchant.WalletAddress,
			Amount:      p.Amount,
			Token:       p.Token,
			TxHash:      &txHash,
			ReferenceID: p.ID,
			Status:      models.TxStatusConfirmed,
			Description: payLinkLedgerDescription(p),
			CreatedAt:   paidAt,
		})
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrStaleWrite):
		// Lost a race against expiry or cancellation between lock and update.
		return nil, apperr.Conflict("PayLink is no longer pending")
	case errors.Is(err, store.ErrUniqueViolation):
		metrics.PayLinkPayments.WithLabelValues("tx_reused").Inc()
		return nil, errTxHashUsed
	case apperr.KindOf(err) != apperr.KindInternal:
		metrics.PayLinkPayments.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return nil, err
	default:
		return nil, apperr.Internal(err)
	}

	p.Status = models.PayLinkPaid
	p.SolanaTxHash = &txHash
	p.PayerAddress = payer
	p.PaidAt = &paidAt

	metrics.PayLinkPayments.WithLabelValues("paid").Inc()
	s.logger.Info("pay link paid",
		zap.String("payLinkId", p.ID),
		zap.String("txHash", txHash),
		zap.String("received", result.Received.String()),
		zap.String("token", p.Token))
	return p, nil
}

// CancelPayLink withdraws a pending link on behalf of its merchant owner.
func (s *PayLinkService) CancelPayLink(ctx context.Context, callerID, id string) (*models.PayLink, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedMerchant(ctx, callerID, p.MerchantID); err != nil {
		return nil, err
	}
	s.expireIfDue(ctx, p)
	if err := s.cancellable(p); err != nil {
		return nil, err
	}

	err = s.store.TransitionPayLink(ctx, p.ID, models.PayLinkCancelled)
	if errors.Is(err, store.ErrStaleWrite) {
		if p, err = s.load(ctx, id); err != nil {
			return nil, err
		}
		if err := s.cancellable(p); err != nil {
			return nil, err
		}
		return nil, apperr.Conflict("PayLink is no longer pending")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	p.Status = models.PayLinkCancelled
	s.logger.Info("pay link cancelled", zap.String("payLinkId", p.ID), zap.String("by", callerID))
	return p, nil
}

// ListMerchantPayLinks lists a merchant's links newest first. Expiry is
// reflected in the returned view only.
func (s *PayLinkService) ListMerchantPayLinks(ctx context.Context, callerID, merchantID string, limit int) ([]models.PayLink, error) {
	if _, err := s.ownedMerchant(ctx, callerID, merchantID); err != nil {
		return nil, err
	}
	links, err := s.store.ListPayLinksByMerchant(ctx, merchantID, clampLimit(limit))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	now := s.now()
	for i := range links {
		if links[i].IsExpiredAt(now) {
			links[i].Status = models.PayLinkExpired
		}
	}
	return links, nil
}

// PayURL is the shareable address of a link.
func (s *PayLinkService) PayURL(id string) string {
	return strings.TrimRight(s.config.PublicBaseURL, "/") + "/pay/" + id
}

// PayLinkQR renders the link's pay URL as a PNG QR code.
func (s *PayLinkService) PayLinkQR(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(s.PayURL(id), qrcode.Medium, s.config.QRSize)
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "encode qr"))
	}
	return png, nil
}

var (
	errTxHashUsed = apperr.Conflict("Transaction has already been used for another PayLink")
	errCancelled  = apperr.Conflict("PayLink has been cancelled")
)

func (s *PayLinkService) load(ctx context.Context, id string) (*models.PayLink, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("PayLink id is required")
	}
	p, err := s.store.GetPayLink(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("PayLink not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return p, nil
}

func (s *PayLinkService) ownedMerchant(ctx context.Context, callerID, merchantID string) (*models.Merchant, error) {
	if callerID == "" {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	m, err := s.store.GetMerchant(ctx, merchantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Merchant not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if m.OwnerUserID != callerID {
		return nil, apperr.Forbidden("You do not own this merchant")
	}
	return m, nil
}

// payable rejects links that can no longer take a payment. An overdue
// pending link is moved to expired on the way.
func (s *PayLinkService) payable(ctx context.Context, p *models.PayLink) error {
	switch p.Status {
	case models.PayLinkPaid:
		return apperr.ErrAlreadyPaid
	case models.PayLinkExpired:
		return apperr.ErrExpired
	case models.PayLinkCancelled:
		return errCancelled
	}
	if s.expireIfDue(ctx, p) {
		return apperr.ErrExpired
	}
	return nil
}

// lockedPayable rechecks a row read under lock. Verification can outlast the
// link's expiry or a concurrent cancel.
func lockedPayable(p *models.PayLink, at time.Time) error {
	switch p.Status {
	case models.PayLinkPaid:
		return apperr.ErrAlreadyPaid
	case models.PayLinkExpired:
		return apperr.ErrExpired
	case models.PayLinkCancelled:
		return errCancelled
	}
	if p.IsExpiredAt(at) {
		return apperr.ErrExpired
	}
	return nil
}

func (s *PayLinkService) cancellable(p *models.PayLink) error {
	switch p.Status {
	case models.PayLinkPending:
		return nil
	case models.PayLinkPaid:
		return apperr.ErrAlreadyPaid
	case models.PayLinkCancelled:
		return errCancelled
	default:
		return apperr.ErrExpired
	}
}

// expireIfDue flips an overdue pending link to expired, in storage and in p.
// The returned flag is true when p is now expired.
func (s *PayLinkService) expireIfDue(ctx context.Context, p *models.PayLink) bool {
	if !p.IsExpiredAt(s.now()) {
		return false
	}
	err := s.store.TransitionPayLink(ctx, p.ID, models.PayLinkExpired)
	switch {
	case err == nil:
		s.logger.Info("pay link expired", zap.String("payLinkId", p.ID))
	case errors.Is(err, store.ErrStaleWrite):
		// Another request changed it first; reload to report the winner.
		if fresh, loadErr := s.store.GetPayLink(ctx, p.ID); loadErr == nil {
			*p = *fresh
			return p.Status == models.PayLinkExpired
		}
	default:
		s.logger.Warn("could not persist pay link expiry", zap.String("payLinkId", p.ID), zap.Error(err))
	}
	p.Status = models.PayLinkExpired
	return true
}

// checkPayAttempts counts attempts per link in a fixed window. Redis errors
// leave the limiter open.
func (s *PayLinkService) checkPayAttempts(ctx context.Context, payLinkID string) error {
	if s.redis == nil || s.config.MaxPayAttempts <= 0 {
		return nil
	}
	key := fmt.Sprintf("paylink:attempts:%s", payLinkID)

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Warn("pay attempt limiter unavailable", zap.Error(err))
		return nil
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, s.config.PayAttemptWindow).Err(); err != nil {
			s.logger.Warn("pay attempt limiter expiry not set", zap.String("key", key), zap.Error(err))
		}
	}
	if count > int64(s.config.MaxPayAttempts) {
		return apperr.RateLimited("Too many payment attempts for this PayLink, please try again later")
	}
	return nil
}

func (s *PayLinkService) crossCheckPayRam(ctx context.Context, merchant *models.Merchant, p *models.PayLink, txHash string) {
	if s.payram == nil || merchant.PayRamMerchantID == "" {
		return
	}
	v, err := s.payram.VerifyPayment(ctx, payram.VerifyRequest{
		MerchantID: merchant.PayRamMerchantID,
		TxHash:     txHash,
		Amount:     p.Amount.String(),
		Currency:   p.Token,
	})
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("payram").Inc()
		s.logger.Warn("payram verification unavailable, proceeding on chain confirmation",
			zap.String("payLinkId", p.ID), zap.Error(err))
		s.reporter.Error("payram verification", err, reporting.InfoData{"payLinkId": p.ID, "txHash": txHash})
		return
	}
	if !v.Verified {
		s.logger.Warn("payram did not verify payment confirmed on chain",
			zap.String("payLinkId", p.ID), zap.String("status", v.Status), zap.String("reason", v.Reason))
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperr.Validation("Amount must be a decimal string")
	}
	if !amount.IsPositive() {
		return decimal.Zero, apperr.Validation("Amount must be greater than zero")
	}
	if amount.Exponent() < -maxAmountDecimals && !amount.Equal(amount.Truncate(maxAmountDecimals)) {
		return decimal.Zero, apperr.Validation(fmt.Sprintf("Amount supports at most %d decimal places", maxAmountDecimals))
	}
	return amount, nil
}

func supportedToken(token string) bool {
	for _, t := range models.SupportedTokens {
		if t == token {
			return true
		}
	}
	return false
}

func payLinkLedgerDescription(p *models.PayLink) string {
	if p.Description != nil {
		return "PayLink " + p.ID + ": " + *p.Description
	}
	return "PayLink " + p.ID
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
