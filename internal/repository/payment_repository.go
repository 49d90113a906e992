package repository

import (
	"context"

	"sendcash-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// paymentPayloadColumns are rewritten by an upsert; created_at and the
// reminder bookkeeping columns are left untouched. status has its own rule.
var paymentPayloadColumns = []string{
	"from_address", "to_address", "from_username", "to_username",
	"token_address", "amount", "fee", "updated_at",
}

// PaymentRepository defines the interface for payment data access
type PaymentRepository interface {
	Upsert(ctx context.Context, payment *models.Payment) error
	GetByTxHash(ctx context.Context, txHash string) (*models.Payment, error)
	ListSent(ctx context.Context, address string, limit int) ([]*models.Payment, error)
	ListReceived(ctx context.Context, address string, limit int) ([]*models.Payment, error)

	// scheduler queries
	FindUnnotifiedConfirmed(ctx context.Context, limit int) ([]*models.Payment, error)
	FindStalePending(ctx context.Context, createdBefore, remindedBefore int64, maxReminders, limit int) ([]*models.Payment, error)
	MarkNotified(ctx context.Context, txHash string, at int64) error
	MarkReminded(ctx context.Context, txHash string, at int64) error
}

// paymentRepository implements PaymentRepository
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new PaymentRepository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Upsert inserts or rewrites the payload of a payment. Only a pending row
// takes the incoming status; confirmed and failed are final.
func (r *paymentRepository) Upsert(ctx context.Context, payment *models.Payment) error {
	updates := clause.AssignmentColumns(paymentPayloadColumns)
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "status"},
		Value:  r.keepFinalStatus(),
	})
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoUpdates: updates,
	}).Create(payment).Error
}

func (r *paymentRepository) keepFinalStatus() clause.Expr {
	pending := string(models.PaymentStatusPending)
	if r.db.Dialector.Name() == "mysql" {
		// ON DUPLICATE KEY UPDATE: bare columns are the stored row
		return gorm.Expr("CASE WHEN status = ? THEN VALUES(status) ELSE status END", pending)
	}
	return gorm.Expr("CASE WHEN payments.status = ? THEN excluded.status ELSE payments.status END", pending)
}

func (r *paymentRepository) GetByTxHash(ctx context.Context, txHash string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepository) ListSent(ctx context.Context, address string, limit int) ([]*models.Payment, error) {
	return r.listBy(ctx, "from_address", address, limit)
}

func (r *paymentRepository) ListReceived(ctx context.Context, address string, limit int) ([]*models.Payment, error) {
	return r.listBy(ctx, "to_address", address, limit)
}

func (r *paymentRepository) listBy(ctx context.Context, column, address string, limit int) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := r.db.WithContext(ctx).
		Where(column+" = ?", address).
		Order("created_at DESC").
		Order("tx_hash DESC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) FindUnnotifiedConfirmed(ctx context.Context, limit int) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND notified_at IS NULL", models.PaymentStatusConfirmed).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) FindStalePending(ctx context.Context, createdBefore, remindedBefore int64, maxReminders, limit int) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", models.PaymentStatusPending, createdBefore).
		Where("last_reminded_at IS NULL OR last_reminded_at <= ?", remindedBefore).
		Where("reminder_count < ?", maxReminders).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) MarkNotified(ctx context.Context, txHash string, at int64) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("tx_hash = ?", txHash).
		Update("notified_at", at).Error
}

func (r *paymentRepository) MarkReminded(ctx context.Context, txHash string, at int64) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("tx_hash = ?", txHash).
		Updates(map[string]interface{}{
			"last_reminded_at": at,
			"reminder_count":   gorm.Expr("reminder_count + 1"),
		}).Error
}
