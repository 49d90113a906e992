package repository

import (
	"context"

	"sendcash-backend/internal/models"

	"gorm.io/gorm"
)

// ReceiptRepository defines the interface for receipt data access
type ReceiptRepository interface {
	GetOrCreate(ctx context.Context, receipt *models.Receipt) (*models.Receipt, error)
}

// receiptRepository implements ReceiptRepository
type receiptRepository struct {
	db *gorm.DB
}

// NewReceiptRepository creates a new ReceiptRepository instance
func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

// GetOrCreate returns the stored receipt for the tx hash, creating it from
// the given value on first use
func (r *receiptRepository) GetOrCreate(ctx context.Context, receipt *models.Receipt) (*models.Receipt, error) {
	var stored models.Receipt
	err := r.db.WithContext(ctx).
		Where(models.Receipt{TxHash: receipt.TxHash}).
		Attrs(models.Receipt{ShareLink: receipt.ShareLink}).
		FirstOrCreate(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}
