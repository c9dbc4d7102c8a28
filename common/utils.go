package common

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// One coin expressed in the base unit (nano).
const CoinBase = int64(1_000_000_000)

// The returned string has no 0x prefix.
func ByteSliceToPureHexStr(b []byte) string {
	return hex.EncodeToString(b)
}

// HexStrToByteSlice decodes a hex string (with/without 0x prefix).
// Returns nil on malformed input.
func HexStrToByteSlice(hexStr string) []byte {
	b, err := hex.DecodeString(Trim0xPrefix(hexStr))
	if err != nil {
		return nil
	}
	return b
}

// HexStrToBytes32 converts a hex string (with/without prefix 0x) to [32]byte
func HexStrToBytes32(hexStr string) [32]byte {
	var bytes32 [32]byte
	copy(bytes32[:], HexStrToByteSlice(hexStr))
	return bytes32
}

func Trim0xPrefix(input string) string {
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		return input[2:]
	}
	return input
}

// RandBytes32 returns 32 bytes of system randomness.
func RandBytes32() [32]byte {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return b
}

// AmountToHrString renders a base-unit amount as a whole-coin decimal
// string, e.g. 1500000000 -> "1.5".
func AmountToHrString(amount uint64) string {
	d := decimal.NewFromUint64(amount).Div(decimal.NewFromInt(CoinBase))
	return d.String()
}

// HrStringToAmount parses a whole-coin decimal string into base units.
func HrStringToAmount(s string) (uint64, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	d = d.Mul(decimal.NewFromInt(CoinBase))
	if d.IsNegative() || !d.IsInteger() {
		return 0, false
	}
	return d.BigInt().Uint64(), true
}
