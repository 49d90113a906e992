package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sendcash-backend/internal/config"
	"sendcash-backend/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// RegistryClient read-only view of the on-chain UsernameRegistry
type RegistryClient interface {
	GetAddress(ctx context.Context, username string) (common.Address, error)
	GetUsername(ctx context.Context, address common.Address) (string, error)
	IsPremium(ctx context.Context, username string) (bool, error)
}

// UsernameRegistryClient calls UsernameRegistry view functions through any
// contract caller (ethclient.Client, ChainClient or a test double)
type UsernameRegistryClient struct {
	caller   ethereum.ContractCaller
	contract common.Address
	abi      abi.ABI
	timeout  time.Duration
}

// NewUsernameRegistryClient parses the registry ABI once
func NewUsernameRegistryClient(caller ethereum.ContractCaller, contract string, timeout time.Duration) (*UsernameRegistryClient, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid username registry address %q", contract)
	}
	parsedABI, err := abi.JSON(strings.NewReader(config.UsernameRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UsernameRegistryClient{
		caller:   caller,
		contract: common.HexToAddress(contract),
		abi:      parsedABI,
		timeout:  timeout,
	}, nil
}

// GetAddress returns the zero address for unregistered usernames
func (c *UsernameRegistryClient) GetAddress(ctx context.Context, username string) (common.Address, error) {
	var out common.Address
	if err := c.call(ctx, &out, "getAddress", username); err != nil {
		return common.Address{}, err
	}
	return out, nil
}

// GetUsername returns "" for addresses without a username
func (c *UsernameRegistryClient) GetUsername(ctx context.Context, address common.Address) (string, error) {
	var out string
	if err := c.call(ctx, &out, "getUsername", address); err != nil {
		return "", err
	}
	return out, nil
}

func (c *UsernameRegistryClient) IsPremium(ctx context.Context, username string) (bool, error) {
	var out bool
	if err := c.call(ctx, &out, "isPremium", username); err != nil {
		return false, err
	}
	return out, nil
}

func (c *UsernameRegistryClient) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	start := time.Now()
	defer func() {
		metrics.RegistryCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("%s call failed: %w", method, err)
	}

	if err := c.abi.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return nil
}
