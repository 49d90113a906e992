package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"

	"sendcash-backend/internal/config"
	"sendcash-backend/internal/db"
	"sendcash-backend/internal/models"
	"sendcash-backend/internal/repository"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	addrAlice = "0x1111111111111111111111111111111111111111"
	addrBob   = "0x2222222222222222222222222222222222222222"
	addrCarol = "0x3333333333333333333333333333333333333333"
	tokenUSDC = "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger := quietLogger()
	database, err := db.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(database, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return database
}

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// fakeRegistry in-memory UsernameRegistry
type fakeRegistry struct {
	mu        sync.Mutex
	addresses map[string]common.Address
	premium   map[string]bool
	calls     int
	err       error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{addresses: map[string]common.Address{}, premium: map[string]bool{}}
}

func (r *fakeRegistry) set(name, addr string, premium bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses[name] = common.HexToAddress(addr)
	r.premium[name] = premium
}

func (r *fakeRegistry) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRegistry) GetAddress(_ context.Context, username string) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return common.Address{}, r.err
	}
	return r.addresses[username], nil
}

func (r *fakeRegistry) GetUsername(_ context.Context, address common.Address) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	for name, addr := range r.addresses {
		if addr == address {
			return name, nil
		}
	}
	return "", nil
}

func (r *fakeRegistry) IsPremium(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.premium[username], nil
}

// fakeTransport records sends; chats listed in fail return an error
type fakeTransport struct {
	mu   sync.Mutex
	sent map[int64][]string
	fail map[int64]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: map[int64][]string{}, fail: map[int64]bool{}}
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errors.New("telegram: chat not found")
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeTransport) messages(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[chatID]...)
}

// fakeChain serves receipts, logs and block data from memory
type fakeChain struct {
	mu       sync.Mutex
	head     uint64
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
	queries  []ethereum.FilterQuery
}

func (c *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	var out []types.Log
	for _, lg := range c.logs {
		if lg.BlockNumber >= from && lg.BlockNumber <= to {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (c *fakeChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1700000000 + number*2, nil
}

// recordingSink captures published payments
type recordingSink struct {
	mu       sync.Mutex
	payments []*models.Payment
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) PublishPayment(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.payments = append(s.payments, &cp)
	return nil
}

type testEnv struct {
	db        *gorm.DB
	payRepo   repository.PaymentRepository
	userRepo  repository.UsernameRepository
	registry  *fakeRegistry
	usernames *UsernameService
	payments  *PaymentService
	formatter *NotificationFormatter
	chain     *fakeChain
	sink      *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database := newTestDB(t)
	logger := quietLogger()

	env := &testEnv{
		db:       database,
		payRepo:  repository.NewPaymentRepository(database),
		userRepo: repository.NewUsernameRepository(database),
		registry: newFakeRegistry(),
		chain:    &fakeChain{receipts: map[common.Hash]*types.Receipt{}},
		sink:     &recordingSink{},
	}
	env.usernames = NewUsernameService(env.userRepo, env.registry, logger)
	env.formatter = NewNotificationFormatter(config.NewTokenTable(nil), "https://basescan.org/tx/%s")
	env.payments = NewPaymentService(
		env.payRepo,
		repository.NewReceiptRepository(database),
		env.usernames,
		env.chain,
		"https://sendcash.app/receipt/",
		logger,
		env.sink,
	)
	return env
}

func storeInput(n int, from, to string, status models.PaymentStatus, createdAt int64) StorePaymentInput {
	return StorePaymentInput{
		TxHash:       txHash(n),
		FromAddress:  from,
		ToAddress:    to,
		TokenAddress: tokenUSDC,
		Amount:       "2000000",
		Fee:          "10000",
		Status:       status,
		CreatedAt:    createdAt,
	}
}

func bigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int " + s)
	}
	return v
}

func mustContain(t *testing.T, text, want string) {
	t.Helper()
	if !strings.Contains(text, want) {
		t.Errorf("expected %q to contain %q", text, want)
	}
}
