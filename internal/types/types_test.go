package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabc", NormalizeAddress("  0xABC "))
	assert.Equal(t, "", NormalizeAddress("   "))
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("0x52908400098527886E0F7030069857D2E4169EE7"))
	assert.True(t, IsValidAddress("52908400098527886e0f7030069857d2e4169ee7"))
	assert.False(t, IsValidAddress("0x1234"))
	assert.False(t, IsValidAddress("not-an-address"))
}

func TestNormalizeAddresses(t *testing.T) {
	got := NormalizeAddresses([]string{"0xAA", "0xaa", "", "0xBB", " 0xbb "})
	assert.Equal(t, []string{"0xaa", "0xbb"}, got)
}

func TestChunk(t *testing.T) {
	assert.Empty(t, Chunk([]int{}, 100))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk([]int{1, 2, 3, 4, 5}, 2))
	assert.Len(t, Chunk(make([]int, 250), 0), 3)
}
