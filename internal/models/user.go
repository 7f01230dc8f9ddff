package models

import "time"

type User struct {
	ID            string    `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	WalletAddress string    `json:"walletAddress,omitempty" db:"wallet_address"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// Merchant is a payee that owns pay links. WalletAddress receives pay-link
// settlements on Solana.
type Merchant struct {
	ID               string    `json:"id" db:"id"`
	OwnerUserID      string    `json:"ownerUserId" db:"owner_user_id"`
	Name             string    `json:"name" db:"name"`
	WalletAddress    string    `json:"walletAddress" db:"wallet_address"`
	PayRamMerchantID string    `json:"payramMerchantId,omitempty" db:"payram_merchant_id"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}
