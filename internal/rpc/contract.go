package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/sha3"
)

// Interface IDs probed via supportsInterface(bytes4)
const (
	ERC721InterfaceID  = "0x80ac58cd"
	ERC1155InterfaceID = "0xd9b67a26"
)

var (
	selectorMu    sync.Mutex
	selectorCache = make(map[string]string)
)

// Selector returns the 4-byte function selector for a text signature such as
// "tokenURI(uint256)", as an 0x-prefixed hex string.
func Selector(signature string) string {
	selectorMu.Lock()
	defer selectorMu.Unlock()

	if sel, ok := selectorCache[signature]; ok {
		return sel
	}

	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(signature))
	hashBytes := hash.Sum(nil)

	sel := "0x" + hex.EncodeToString(hashBytes[:4])
	selectorCache[signature] = sel
	return sel
}

// EncodeCall builds eth_call calldata from a text signature and its arguments.
// Supported argument kinds: *big.Int (uint256), 0x-prefixed bytes4 strings,
// and 0x-prefixed address strings.
func EncodeCall(signature string, args ...interface{}) (string, error) {
	data := Selector(signature)
	for _, arg := range args {
		word, err := encodeArg(arg)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", signature, err)
		}
		data += word
	}
	return data, nil
}

func encodeArg(arg interface{}) (string, error) {
	switch v := arg.(type) {
	case *big.Int:
		if v == nil || v.Sign() < 0 {
			return "", fmt.Errorf("uint256 argument must be non-negative")
		}
		return padLeft(v.Text(16), 64), nil
	case string:
		if !strings.HasPrefix(v, "0x") {
			return "", fmt.Errorf("hex argument must be 0x-prefixed: %q", v)
		}
		switch len(v) {
		case 10: // bytes4, right-padded per ABI
			return padRight(strings.ToLower(v[2:]), 64), nil
		case 42: // address, left-padded
			return padLeft(strings.ToLower(v[2:]), 64), nil
		default:
			return "", fmt.Errorf("unsupported hex argument length: %q", v)
		}
	default:
		return "", fmt.Errorf("unsupported argument type %T", arg)
	}
}

// DecodeString decodes an ABI-encoded string from a contract call result.
// Malformed or empty results decode to "".
func DecodeString(hexData string) string {
	if len(hexData) < 2 {
		return ""
	}

	data := hexData[2:] // Remove 0x
	if len(data) < 128 {
		return ""
	}

	// Skip offset (first 32 bytes), then read length (next 32 bytes)
	lengthHex := data[64:128]
	length, err := strconv.ParseInt(lengthHex, 16, 64)
	if err != nil || length <= 0 {
		return ""
	}

	if len(data) < 128+int(length)*2 {
		return ""
	}

	stringHex := data[128 : 128+int(length)*2]
	stringBytes, err := hex.DecodeString(stringHex)
	if err != nil {
		return ""
	}

	return string(stringBytes)
}

// DecodeBool decodes an ABI-encoded boolean from a contract call result.
func DecodeBool(hexData string) bool {
	if len(hexData) < 2 {
		return false
	}
	data := hexData[2:]
	if len(data) < 64 {
		return false
	}
	return data[len(data)-1:] == "1"
}

// DecodeAddress extracts an address from a 32-byte contract call result,
// lower-cased. Returns "" when the result is too short or the zero address.
func DecodeAddress(hexData string) string {
	if len(hexData) < 42 {
		return ""
	}
	addr := "0x" + strings.ToLower(hexData[len(hexData)-40:])
	if addr == "0x0000000000000000000000000000000000000000" {
		return ""
	}
	return addr
}

// DecodeUint256 decodes a uint256 from a contract call result.
func DecodeUint256(hexData string) *big.Int {
	if len(hexData) < 2 {
		return nil
	}

	data := hexData[2:]
	if len(data) != 64 {
		return nil
	}

	value, ok := new(big.Int).SetString(data, 16)
	if !ok {
		return nil
	}

	return value
}

// padLeft pads a hex string to the specified length
func padLeft(str string, length int) string {
	for len(str) < length {
		str = "0" + str
	}
	return str
}

// padRight pads a hex string to the specified length
func padRight(str string, length int) string {
	for len(str) < length {
		str = str + "0"
	}
	return str
}
