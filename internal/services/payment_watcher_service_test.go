package services

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"sendcash-backend/internal/config"
	"sendcash-backend/internal/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const sendCashContract = "0x5555555555555555555555555555555555555555"

func paymentSentLog(t *testing.T, block uint64, n int, from, to string, amount, fee int64, fromName, toName string) types.Log {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(config.SendCashABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	event := parsed.Events["PaymentSent"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(amount), big.NewInt(fee), fromName, toName)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address: common.HexToAddress(sendCashContract),
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(common.HexToAddress(from).Bytes()),
			common.BytesToHash(common.HexToAddress(to).Bytes()),
			common.BytesToHash(common.HexToAddress(tokenUSDC).Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash(txHash(n)),
	}
}

func newTestWatcher(t *testing.T, env *testEnv, start uint64) *PaymentWatcherService {
	t.Helper()
	w, err := NewPaymentWatcherService(env.chain, env.payments, WatcherOptions{
		Contract:      sendCashContract,
		BatchBlocks:   10,
		Confirmations: 5,
		StartBlock:    start,
	}, quietLogger())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	return w
}

func TestPaymentWatcher_Poll(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.chain.head = 120

	removed := paymentSentLog(t, 106, 6, addrAlice, addrBob, 1, 0, "", "")
	removed.Removed = true
	broken := paymentSentLog(t, 107, 7, addrAlice, addrBob, 1, 0, "", "")
	broken.Topics = broken.Topics[:3]

	env.chain.logs = []types.Log{
		paymentSentLog(t, 105, 1, addrAlice, addrBob, 2000000, 10000, "alice", "bob"),
		removed,
		broken,
		paymentSentLog(t, 112, 2, addrCarol, addrAlice, 500, 0, "", "alice"),
		paymentSentLog(t, 118, 3, addrBob, addrCarol, 42, 0, "bob", ""),
	}

	w := newTestWatcher(t, env, 100)
	stored, err := w.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored %d payments, want 2", stored)
	}
	if w.NextBlock() != 116 {
		t.Errorf("next block = %d, want 116", w.NextBlock())
	}
	if len(env.chain.queries) != 2 {
		t.Fatalf("expected two windows, got %d", len(env.chain.queries))
	}
	if q := env.chain.queries[1]; q.FromBlock.Uint64() != 110 || q.ToBlock.Uint64() != 115 {
		t.Errorf("second window %d-%d", q.FromBlock.Uint64(), q.ToBlock.Uint64())
	}

	p, err := env.payments.Get(ctx, txHash(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status != models.PaymentStatusConfirmed || p.Amount != "2000000" || p.Fee != "10000" {
		t.Errorf("unexpected payment %+v", p)
	}
	if p.FromAddress != addrAlice || p.ToAddress != addrBob || p.TokenAddress != tokenUSDC {
		t.Errorf("addresses %s %s %s", p.FromAddress, p.ToAddress, p.TokenAddress)
	}
	if p.CreatedAt != 1700000000+105*2 {
		t.Errorf("created at = %d, want block timestamp", p.CreatedAt)
	}
	if p.FromUsername == nil || *p.FromUsername != "alice" {
		t.Errorf("from username = %v", p.FromUsername)
	}

	if _, err := env.payments.Get(ctx, txHash(6)); err == nil {
		t.Error("removed log must not be stored")
	}

	// nothing new below the confirmed head
	if stored, err := w.Poll(ctx); err != nil || stored != 0 {
		t.Fatalf("idle poll: %d %v", stored, err)
	}
	if len(env.chain.queries) != 2 {
		t.Errorf("idle poll should not query logs")
	}

	env.chain.head = 130
	if stored, err := w.Poll(ctx); err != nil || stored != 1 {
		t.Fatalf("poll after new blocks: %d %v", stored, err)
	}

	// rescanning is harmless
	w.nextBlock = 100
	if _, err := w.Poll(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	var count int64
	env.db.Model(&models.Payment{}).Count(&count)
	if count != 3 {
		t.Errorf("rescan produced %d rows, want 3", count)
	}
}

func TestPaymentWatcher_InvalidPaymentDoesNotHoldCursor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.chain.head = 110

	env.chain.logs = []types.Log{
		// fee above amount fails validation on every attempt
		paymentSentLog(t, 101, 1, addrAlice, addrBob, 10, 20, "", ""),
		paymentSentLog(t, 102, 2, addrAlice, addrBob, 500, 0, "", ""),
	}

	w := newTestWatcher(t, env, 100)
	stored, err := w.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if stored != 1 {
		t.Errorf("stored %d, want 1", stored)
	}
	if w.NextBlock() != 106 {
		t.Errorf("next block = %d, want 106", w.NextBlock())
	}
	if _, err := env.payments.Get(ctx, txHash(2)); err != nil {
		t.Errorf("valid payment after the invalid one was not stored: %v", err)
	}
	if _, err := env.payments.Get(ctx, txHash(1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("invalid payment should not be stored, got %v", err)
	}
}

func TestPaymentWatcher_StartsAtConfirmedHead(t *testing.T) {
	env := newTestEnv(t)
	env.chain.head = 50
	w := newTestWatcher(t, env, 0)

	if _, err := w.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(env.chain.queries) != 1 || env.chain.queries[0].FromBlock.Uint64() != 45 {
		t.Fatalf("expected a single query from block 45, got %+v", env.chain.queries)
	}
	if w.NextBlock() != 46 {
		t.Errorf("next block = %d", w.NextBlock())
	}
}

func TestPaymentWatcher_RejectsBadContract(t *testing.T) {
	env := newTestEnv(t)
	if _, err := NewPaymentWatcherService(env.chain, env.payments, WatcherOptions{Contract: "sendcash"}, quietLogger()); err == nil {
		t.Fatal("expected an error for an invalid contract address")
	}
}
