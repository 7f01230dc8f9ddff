package models

import (
	"encoding/json"
	"time"
)

const (
	OrderTypeOnramp  = "onramp"
	OrderTypeOfframp = "offramp"
)

// OnMetaOrder mirrors an OnMeta on/off-ramp order. Status holds the last
// applied event type.
type OnMetaOrder struct {
	ID                    string     `json:"id" db:"id"`
	OnMetaOrderID         string     `json:"onmetaOrderId" db:"onmeta_order_id"`
	UserID                *string    `json:"userId,omitempty" db:"user_id"`
	OrderType             string     `json:"orderType" db:"order_type"`
	Status                string     `json:"status" db:"status"`
	EventType             string     `json:"eventType" db:"event_type"`
	BuyTokenSymbol        string     `json:"buyTokenSymbol" db:"buy_token_symbol"`
	BuyTokenAddress       string     `json:"buyTokenAddress" db:"buy_token_address"`
	FiatCurrency          string     `json:"fiatCurrency" db:"fiat_currency"`
	FiatAmount            string     `json:"fiatAmount" db:"fiat_amount"`
	ChainID               string     `json:"chainId" db:"chain_id"`
	PaymentMode           string     `json:"paymentMode" db:"payment_mode"`
	ReceiverWalletAddress string     `json:"receiverWalletAddress" db:"receiver_wallet_address"`
	TransactionHash       *string    `json:"transactionHash,omitempty" db:"transaction_hash"`
	TransferredAmount     *string    `json:"transferredAmount,omitempty" db:"transferred_amount"`
	ConversionRate        *string    `json:"conversionRate,omitempty" db:"conversion_rate"`
	Commission            *string    `json:"commission,omitempty" db:"commission"`
	Metadata              Metadata   `json:"metadata,omitempty" db:"metadata"`
	CreatedAt             time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt             time.Time  `json:"updatedAt" db:"updated_at"`
	CompletedAt           *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	ExpiredAt             *time.Time `json:"expiredAt,omitempty" db:"expired_at"`
}

// WebhookEvent is one signature-verified delivery as received.
type WebhookEvent struct {
	ID              string          `json:"id" db:"id"`
	Provider        string          `json:"provider" db:"provider"`
	OrderID         string          `json:"orderId" db:"order_id"`
	EventType       string          `json:"eventType" db:"event_type"`
	Payload         json.RawMessage `json:"payload" db:"payload"`
	ReceivedAt      time.Time       `json:"receivedAt" db:"received_at"`
	ProcessedAt     *time.Time      `json:"processedAt,omitempty" db:"processed_at"`
	ProcessingError *string         `json:"processingError,omitempty" db:"processing_error"`
}
