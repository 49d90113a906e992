package utils

import "fmt"

// ChainInfo network defaults for a supported EVM chain
type ChainInfo struct {
	ChainID       int64    `json:"chain_id"`
	Name          string   `json:"name"`
	Symbol        string   `json:"symbol"`        // native gas token
	RPCEndpoints  []string `json:"rpc_endpoints"` // public endpoints, first is the default
	ExplorerTxURL string   `json:"explorer_tx_url"`
}

// ChainRegistry lookup of supported networks by chain ID
type ChainRegistry struct {
	byID map[int64]*ChainInfo
}

// GlobalChainRegistry networks SendCash is deployed on
var GlobalChainRegistry *ChainRegistry

func init() {
	GlobalChainRegistry = &ChainRegistry{byID: make(map[int64]*ChainInfo)}

	chains := []*ChainInfo{
		{
			ChainID:       8453,
			Name:          "Base",
			Symbol:        "ETH",
			RPCEndpoints:  []string{"https://mainnet.base.org", "https://base.llamarpc.com"},
			ExplorerTxURL: "https://basescan.org/tx/%s",
		},
		{
			ChainID:       84532,
			Name:          "Base Sepolia",
			Symbol:        "ETH",
			RPCEndpoints:  []string{"https://sepolia.base.org"},
			ExplorerTxURL: "https://sepolia.basescan.org/tx/%s",
		},
		{
			ChainID:       31337,
			Name:          "Local",
			Symbol:        "ETH",
			RPCEndpoints:  []string{"http://127.0.0.1:8545"},
			ExplorerTxURL: "http://127.0.0.1:8545/tx/%s",
		},
	}
	for _, chain := range chains {
		GlobalChainRegistry.byID[chain.ChainID] = chain
	}
}

// Get returns the network for chainID
func (r *ChainRegistry) Get(chainID int64) (*ChainInfo, bool) {
	info, ok := r.byID[chainID]
	return info, ok
}

// GetRPCEndpoint default public RPC
func (r *ChainRegistry) GetRPCEndpoint(chainID int64) (string, error) {
	info, ok := r.Get(chainID)
	if !ok || len(info.RPCEndpoints) == 0 {
		return "", fmt.Errorf("no RPC endpoint for chain: %d", chainID)
	}
	return info.RPCEndpoints[0], nil
}

// ChainName human readable name, "chain <id>" when unknown
func (r *ChainRegistry) ChainName(chainID int64) string {
	if info, ok := r.Get(chainID); ok {
		return info.Name
	}
	return fmt.Sprintf("chain %d", chainID)
}
