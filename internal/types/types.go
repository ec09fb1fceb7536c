// Package types provides common type definitions for the whale role bot.
package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CommandType identifies a chat command for cooldown bookkeeping
type CommandType string

const (
	// CommandLeaderboard is the !updateleaderboard command
	CommandLeaderboard CommandType = "leaderboard"
	// CommandCommunityRoles is the !updatecommunityroles command
	CommandCommunityRoles CommandType = "communityroles"
	// CommandWhaleAddresses is the !whaleaddresses command
	CommandWhaleAddresses CommandType = "whaleaddresses"
)

// DefaultBatchSize is the number of addresses matched per directory query
const DefaultBatchSize = 100

// NormalizeAddress returns the canonical (trimmed, lowercased) form used as join key
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsValidAddress reports whether address is a 20-byte hex address, with or without 0x
func IsValidAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}

// NormalizeAddresses lowercases every address and drops empty and duplicate values,
// keeping first-seen order.
func NormalizeAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		n := NormalizeAddress(a)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Chunk splits items into consecutive slices of at most size elements
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
