// Token table and contract ABIs used by the registry client, the payment
// watcher and the notification formatter.
package config

import (
	"strings"
	"sync"
)

// TokenInfo symbol and decimals of an ERC20 token
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// defaultTokens Base mainnet tokens accepted by SendCash
var defaultTokens = map[string]TokenInfo{
	"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913": {Symbol: "USDC", Decimals: 6},
	"0xfde4c96c8593536e31f229ea8f37b2ada2699bb2": {Symbol: "USDT", Decimals: 6},
	"0x50c5725949a6f0c72e6c4a641f24049a917db0cb": {Symbol: "DAI", Decimals: 18},
	"0x4200000000000000000000000000000000000006": {Symbol: "WETH", Decimals: 18},
}

// TokenTable lookup of token metadata by lowercase address
type TokenTable struct {
	mu     sync.RWMutex
	tokens map[string]TokenInfo
}

// NewTokenTable builds the static table and merges configured extras
func NewTokenTable(extra []TokenConfig) *TokenTable {
	t := &TokenTable{tokens: make(map[string]TokenInfo, len(defaultTokens)+len(extra))}
	for addr, info := range defaultTokens {
		t.tokens[addr] = info
	}
	for _, tc := range extra {
		if tc.Address == "" || tc.Symbol == "" {
			continue
		}
		t.tokens[strings.ToLower(tc.Address)] = TokenInfo{Symbol: tc.Symbol, Decimals: tc.Decimals}
	}
	return t
}

// Lookup returns the token entry; ok is false for unknown tokens
func (t *TokenTable) Lookup(address string) (TokenInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.tokens[strings.ToLower(address)]
	return info, ok
}

// UsernameRegistryABI view functions of the UsernameRegistry contract
const UsernameRegistryABI = `[
	{
		"inputs": [{"name": "username", "type": "string"}],
		"name": "getAddress",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "wallet", "type": "address"}],
		"name": "getUsername",
		"outputs": [{"name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "username", "type": "string"}],
		"name": "isPremium",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// SendCashABI the PaymentSent event emitted by the SendCash contract
const SendCashABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "from", "type": "address"},
			{"indexed": true, "name": "to", "type": "address"},
			{"indexed": true, "name": "token", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": false, "name": "fee", "type": "uint256"},
			{"indexed": false, "name": "fromUsername", "type": "string"},
			{"indexed": false, "name": "toUsername", "type": "string"}
		],
		"name": "PaymentSent",
		"type": "event"
	}
]`
