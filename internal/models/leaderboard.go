package models

import "time"

// LeaderboardEntry is one row of the persisted leaderboard snapshot
type LeaderboardEntry struct {
	Address   string    `json:"address" db:"address"` // always lowercased
	Nickname  string    `json:"nickname" db:"nickname"`
	Score     float64   `json:"point" db:"point"`
	Rank      int       `json:"rank" db:"rank"`
	FetchedAt time.Time `json:"fetchedAt" db:"fetched_at"`
}
