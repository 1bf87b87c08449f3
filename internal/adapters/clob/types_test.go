package clob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnpackGammaArray_ParsesDoublyEncodedJSON(t *testing.T) {
	got := unpackGammaArray(`["123","456"]`)
	assert.Equal(t, []string{"123", "456"}, got)
}

func TestUnpackGammaArray_EmptyStringYieldsNil(t *testing.T) {
	assert.Nil(t, unpackGammaArray(""))
}

func TestUnpackGammaArray_MalformedYieldsNil(t *testing.T) {
	assert.Nil(t, unpackGammaArray(`not-json`))
}

func TestParseUSDC_ConvertsMicros(t *testing.T) {
	assert.Equal(t, 20.5, parseUSDC("20500000"))
}

func TestParseUSDC_EmptyYieldsZero(t *testing.T) {
	assert.Equal(t, 0.0, parseUSDC(""))
}

func TestParseUSDC_MalformedYieldsZero(t *testing.T) {
	assert.Equal(t, 0.0, parseUSDC("not-a-number"))
}
