package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexToBytes32_AcceptsWithAndWithoutPrefix(t *testing.T) {
	hex64 := "123456789012345678901234567890123456789012345678901234567890001a"

	got, err := hexToBytes32("0x" + hex64)
	require.NoError(t, err)
	assert.Equal(t, byte(0x12), got[0])
	assert.Equal(t, byte(0x1a), got[31])

	got2, err := hexToBytes32(hex64)
	require.NoError(t, err)
	assert.Equal(t, got, got2)
}

func TestHexToBytes32_RejectsWrongLength(t *testing.T) {
	_, err := hexToBytes32("0xabc")
	assert.Error(t, err)
}

func TestHexToBytes32_RejectsNonHex(t *testing.T) {
	hex64 := "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"
	_, err := hexToBytes32(hex64)
	assert.Error(t, err)
}
