package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHexRoundTrip(t *testing.T) {
	b := RandBytes32()
	s := ByteSliceToPureHexStr(b[:])
	assert.Equal(t, b[:], HexStrToByteSlice(s))
	assert.Equal(t, b[:], HexStrToByteSlice("0x"+s))
	assert.Equal(t, b, HexStrToBytes32(s))
}

func TestAmountToHrString(t *testing.T) {
	assert.Equal(t, "1.5", AmountToHrString(1_500_000_000))
	assert.Equal(t, "0.000000001", AmountToHrString(1))

	v, ok := HrStringToAmount("2.25")
	assert.True(t, ok)
	assert.Equal(t, uint64(2_250_000_000), v)

	_, ok = HrStringToAmount("-1")
	assert.False(t, ok)
	_, ok = HrStringToAmount("0.0000000001")
	assert.False(t, ok)
}
