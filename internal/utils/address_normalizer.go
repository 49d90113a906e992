package utils

import (
	"regexp"
	"strings"
)

var (
	evmAddressPattern = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")
	txHashPattern     = regexp.MustCompile("^0x[0-9a-fA-F]{64}$")
	usernamePattern   = regexp.MustCompile("^[a-z0-9_]{3,32}$")
)

// IsEvmAddress checks for a 0x-prefixed 20-byte hex address
func IsEvmAddress(address string) bool {
	return evmAddressPattern.MatchString(strings.TrimSpace(address))
}

// NormalizeAddress lowercases an EVM address and adds the 0x prefix if missing.
// Anything that is not a 20-byte hex address is returned trimmed but unchanged.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if len(address) == 40 && IsEvmAddress("0x"+address) {
		return "0x" + strings.ToLower(address)
	}
	if IsEvmAddress(address) {
		return strings.ToLower(address)
	}
	return address
}

// ShortAddress renders 0x1234...abcd for display
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// NormalizeUsername trims, strips a leading '@' and lowercases
func NormalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.ToLower(username)
}

// IsValidUsername checks an already normalized username
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// IsTxHash checks for a 0x-prefixed 32-byte hex hash
func IsTxHash(hash string) bool {
	return txHashPattern.MatchString(strings.TrimSpace(hash))
}

// NormalizeTxHash lowercases a transaction hash
func NormalizeTxHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
