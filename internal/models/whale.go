package models

import "time"

// WhaleRecord describes why a user currently holds the whale role.
// It is a cache keyed by UserID, not a source of truth.
type WhaleRecord struct {
	UserID        string    `json:"discordUserId" db:"discord_user_id"`
	WalletAddress string    `json:"walletAddress" db:"wallet_address"`
	Username      string    `json:"username" db:"username"`
	Nickname      string    `json:"nickname" db:"nickname"`
	Score         float64   `json:"score" db:"score"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
