// Package models provides data models for the whale role bot.
package models

import "time"

// WalletVerification links a Discord user to a wallet they proved they own.
// Records are written by the verification flow; the bot only reads them.
type WalletVerification struct {
	UserID        string    `json:"userId" db:"user_id"`
	WalletAddress string    `json:"walletAddress" db:"wallet_address"`
	Username      string    `json:"username" db:"username"`
	VerifiedAt    time.Time `json:"verifiedAt" db:"verified_at"`
}
