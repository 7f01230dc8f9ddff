package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxTypeSend       TransactionType = "send"
	TxTypeSwap       TransactionType = "swap"
	TxTypePay        TransactionType = "pay"
	TxTypeOnramp     TransactionType = "onramp"
	TxTypeP2PSend    TransactionType = "p2p_send"
	TxTypeP2PReceive TransactionType = "p2p_receive"
)

type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusConfirmed TransactionStatus = "confirmed"
	TxStatusFailed    TransactionStatus = "failed"
)

// Transaction is an append-only ledger row. ReferenceID names the pay link
// or OnMeta order that produced it; (Type, ReferenceID) is unique.
type Transaction struct {
	ID          string            `json:"id" db:"id"`
	Type        TransactionType   `json:"type" db:"type"`
	UserID      *string           `json:"userId,omitempty" db:"user_id"`
	MerchantID  *string           `json:"merchantId,omitempty" db:"merchant_id"`
	FromAddress *string           `json:"fromAddress,omitempty" db:"from_address"`
	ToAddress   *string           `json:"toAddress,omitempty" db:"to_address"`
	Amount      decimal.Decimal   `json:"amount" db:"amount"`
	Token       string            `json:"token" db:"token"`
	TxHash      *string           `json:"txHash,omitempty" db:"tx_hash"`
	ReferenceID string            `json:"referenceId" db:"reference_id"`
	Status      TransactionStatus `json:"status" db:"status"`
	Description string            `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
}
