package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"sendcash-backend/internal/config"
	"sendcash-backend/internal/db"
	"sendcash-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

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

func hash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func payment(n int, from, to string, createdAt int64) *models.Payment {
	return &models.Payment{
		TxHash:       hash(n),
		FromAddress:  from,
		ToAddress:    to,
		TokenAddress: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		Amount:       "1000000",
		Fee:          "0",
		Status:       models.PaymentStatusConfirmed,
		CreatedAt:    createdAt,
	}
}

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
)

func TestPaymentRepository_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	repo := NewPaymentRepository(database)

	for i := 0; i < 3; i++ {
		if err := repo.Upsert(ctx, payment(1, alice, bob, 1700000000)); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	var count int64
	if err := database.Model(&models.Payment{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after repeated upserts, got %d", count)
	}
}

func TestPaymentRepository_UpsertKeepsBookkeeping(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(newTestDB(t))

	original := payment(1, alice, bob, 1700000000)
	original.Status = models.PaymentStatusPending
	if err := repo.Upsert(ctx, original); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.MarkReminded(ctx, hash(1), 1700000500); err != nil {
		t.Fatalf("mark reminded: %v", err)
	}

	updated := payment(1, alice, bob, 1800000000)
	updated.Amount = "2000000"
	if err := repo.Upsert(ctx, updated); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.GetByTxHash(ctx, hash(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != "2000000" || got.Status != models.PaymentStatusConfirmed {
		t.Errorf("payload not updated: %+v", got)
	}
	if got.CreatedAt != 1700000000 {
		t.Errorf("created_at changed to %d", got.CreatedAt)
	}
	if got.ReminderCount != 1 || got.LastRemindedAt == nil || *got.LastRemindedAt != 1700000500 {
		t.Errorf("reminder bookkeeping lost: count=%d last=%v", got.ReminderCount, got.LastRemindedAt)
	}
}

func TestPaymentRepository_UpsertKeepsFinalStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(newTestDB(t))

	tests := []struct {
		name string
		seq  []models.PaymentStatus
		want models.PaymentStatus
	}{
		{"pending then confirmed", []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusConfirmed}, models.PaymentStatusConfirmed},
		{"pending then failed", []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusFailed}, models.PaymentStatusFailed},
		{"confirmed then pending", []models.PaymentStatus{models.PaymentStatusConfirmed, models.PaymentStatusPending}, models.PaymentStatusConfirmed},
		{"failed then confirmed", []models.PaymentStatus{models.PaymentStatusFailed, models.PaymentStatusConfirmed}, models.PaymentStatusFailed},
		{"confirmed then failed", []models.PaymentStatus{models.PaymentStatusConfirmed, models.PaymentStatusFailed}, models.PaymentStatusConfirmed},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := 100 + i
			for _, status := range tt.seq {
				p := payment(n, alice, bob, 1700000000)
				p.Status = status
				if err := repo.Upsert(ctx, p); err != nil {
					t.Fatalf("upsert %s: %v", status, err)
				}
			}
			got, err := repo.GetByTxHash(ctx, hash(n))
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestPaymentRepository_GetByTxHashNotFound(t *testing.T) {
	repo := NewPaymentRepository(newTestDB(t))
	_, err := repo.GetByTxHash(context.Background(), hash(42))
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestPaymentRepository_ListOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(newTestDB(t))

	for i := 0; i < 60; i++ {
		if err := repo.Upsert(ctx, payment(i+1, alice, bob, int64(1700000000+i))); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	// same timestamp, ordered by tx hash
	if err := repo.Upsert(ctx, payment(100, alice, carol, 1700000059)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sent, err := repo.ListSent(ctx, alice, 50)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 50 {
		t.Fatalf("expected 50 sent, got %d", len(sent))
	}
	if sent[0].TxHash != hash(100) || sent[1].TxHash != hash(60) {
		t.Errorf("unexpected head of list: %s, %s", sent[0].TxHash, sent[1].TxHash)
	}
	for i := 1; i < len(sent); i++ {
		if sent[i].CreatedAt > sent[i-1].CreatedAt {
			t.Fatalf("not descending at %d", i)
		}
	}

	received, err := repo.ListReceived(ctx, carol, 50)
	if err != nil {
		t.Fatalf("list received: %v", err)
	}
	if len(received) != 1 {
		t.Errorf("expected 1 received for carol, got %d", len(received))
	}
}

func TestPaymentRepository_SchedulerQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(newTestDB(t))

	now := int64(1700010000)

	confirmed := payment(1, alice, bob, now-100)
	notified := payment(2, alice, bob, now-100)
	stalePending := payment(3, alice, bob, now-3600)
	stalePending.Status = models.PaymentStatusPending
	freshPending := payment(4, alice, bob, now-60)
	freshPending.Status = models.PaymentStatusPending
	exhausted := payment(5, alice, bob, now-3600)
	exhausted.Status = models.PaymentStatusPending
	failed := payment(6, alice, bob, now-3600)
	failed.Status = models.PaymentStatusFailed

	for _, p := range []*models.Payment{confirmed, notified, stalePending, freshPending, exhausted, failed} {
		if err := repo.Upsert(ctx, p); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if err := repo.MarkNotified(ctx, hash(2), now); err != nil {
		t.Fatalf("mark notified: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := repo.MarkReminded(ctx, hash(5), now-7200); err != nil {
			t.Fatalf("mark reminded: %v", err)
		}
	}

	unnotified, err := repo.FindUnnotifiedConfirmed(ctx, 10)
	if err != nil {
		t.Fatalf("unnotified: %v", err)
	}
	if len(unnotified) != 1 || unnotified[0].TxHash != hash(1) {
		t.Errorf("unexpected unnotified: %v", txHashes(unnotified))
	}

	stale, err := repo.FindStalePending(ctx, now-600, now-3600, 2, 10)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 || stale[0].TxHash != hash(3) {
		t.Errorf("unexpected stale: %v", txHashes(stale))
	}

	// a recent reminder holds the payment back until remindEvery has passed
	if err := repo.MarkReminded(ctx, hash(3), now-60); err != nil {
		t.Fatalf("mark reminded: %v", err)
	}
	stale, err = repo.FindStalePending(ctx, now-600, now-3600, 2, 10)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("expected no stale payments right after a reminder, got %v", txHashes(stale))
	}
}

func txHashes(ps []*models.Payment) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.TxHash)
	}
	return out
}

func TestUsernameRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUsernameRepository(newTestDB(t))

	if err := repo.Upsert(ctx, &models.Username{Username: "alice", Address: alice, IsPremium: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.SetTelegramChatID(ctx, "alice", 4242); err != nil {
		t.Fatalf("set chat: %v", err)
	}
	// re-registering moves the address but keeps the chat link
	if err := repo.Upsert(ctx, &models.Username{Username: "alice", Address: carol}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Address != carol || got.IsPremium {
		t.Errorf("unexpected record %+v", got)
	}
	if got.TelegramChatID == nil || *got.TelegramChatID != 4242 {
		t.Errorf("chat link lost: %v", got.TelegramChatID)
	}

	byChat, err := repo.GetByTelegramChatID(ctx, 4242)
	if err != nil || byChat.Username != "alice" {
		t.Errorf("GetByTelegramChatID = %v, %v", byChat, err)
	}

	if _, err := repo.GetByAddress(ctx, alice); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("old address should no longer resolve, got %v", err)
	}
	if err := repo.SetTelegramChatID(ctx, "nobody", 1); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound for unknown username, got %v", err)
	}
	if err := repo.SetTelegramChatID(ctx, "alice", 4242); err != nil {
		t.Errorf("relinking the same chat: %v", err)
	}
	if err := repo.SetTelegramChatID(ctx, "alice", 5151); !errors.Is(err, ErrChatAlreadyLinked) {
		t.Errorf("expected ErrChatAlreadyLinked, got %v", err)
	}
}

func TestUsernameRepository_GetLinkedByAddress(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	repo := NewUsernameRepository(database)

	for _, name := range []string{"bob", "bob_alt"} {
		if err := repo.Upsert(ctx, &models.Username{Username: name, Address: alice}); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}
	if _, err := repo.GetLinkedByAddress(ctx, alice); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("no linked row yet, got %v", err)
	}
	if err := repo.SetTelegramChatID(ctx, "bob", 200); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := database.Exec("UPDATE usernames SET updated_at = updated_at + 60 WHERE username = ?", "bob_alt").Error; err != nil {
		t.Fatalf("bump: %v", err)
	}

	latest, err := repo.GetByAddress(ctx, alice)
	if err != nil || latest.Username != "bob_alt" {
		t.Fatalf("GetByAddress = %+v, %v", latest, err)
	}
	linked, err := repo.GetLinkedByAddress(ctx, alice)
	if err != nil || linked.Username != "bob" || *linked.TelegramChatID != 200 {
		t.Fatalf("GetLinkedByAddress = %+v, %v", linked, err)
	}
}

func TestReceiptRepository_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewReceiptRepository(newTestDB(t))

	first, err := repo.GetOrCreate(ctx, &models.Receipt{TxHash: hash(1), ShareLink: "https://example.test/r/1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := repo.GetOrCreate(ctx, &models.Receipt{TxHash: hash(1), ShareLink: "https://other.test/r/1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.ShareLink != second.ShareLink || second.ShareLink != "https://example.test/r/1" {
		t.Errorf("receipt should be created once: %q vs %q", first.ShareLink, second.ShareLink)
	}
}
