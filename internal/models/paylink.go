package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayLinkStatus string

const (
	PayLinkPending   PayLinkStatus = "pending"
	PayLinkPaid      PayLinkStatus = "paid"
	PayLinkExpired   PayLinkStatus = "expired"
	PayLinkCancelled PayLinkStatus = "cancelled"
)

// Supported pay-link tokens.
const (
	TokenSOL  = "SOL"
	TokenUSDC = "USDC"
	TokenUSDT = "USDT"
	TokenTT   = "TT"
)

var SupportedTokens = []string{TokenSOL, TokenUSDC, TokenUSDT, TokenTT}

// PayLink is a shareable request for a fixed crypto payment. Amount is kept
// as a decimal to avoid float rounding.
type PayLink struct {
	ID           string          `json:"id" db:"id"`
	MerchantID   string          `json:"merchantId" db:"merchant_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Token        string          `json:"token" db:"token"`
	Description  *string         `json:"description,omitempty" db:"description"`
	Status       PayLinkStatus   `json:"status" db:"status"`
	SolanaTxHash *string         `json:"solanaTxHash,omitempty" db:"solana_tx_hash"`
	PayerAddress *string         `json:"payerAddress,omitempty" db:"payer_address"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty" db:"expires_at"`
	PaidAt       *time.Time      `json:"paidAt,omitempty" db:"paid_at"`
}

// IsExpiredAt reports whether a pending link has passed its expiry at now.
func (p *PayLink) IsExpiredAt(now time.Time) bool {
	return p.Status == PayLinkPending && p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}
