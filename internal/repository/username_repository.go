package repository

import (
	"context"
	"errors"

	"sendcash-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsernameRepository defines the interface for the username cache table
type UsernameRepository interface {
	Upsert(ctx context.Context, record *models.Username) error
	GetByUsername(ctx context.Context, username string) (*models.Username, error)
	GetByAddress(ctx context.Context, address string) (*models.Username, error)
	GetLinkedByAddress(ctx context.Context, address string) (*models.Username, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*models.Username, error)
	SetTelegramChatID(ctx context.Context, username string, chatID int64) error
}

// ErrChatAlreadyLinked the username is bound to a different Telegram chat
var ErrChatAlreadyLinked = errors.New("username is linked to another chat")

// usernameRepository implements UsernameRepository
type usernameRepository struct {
	db *gorm.DB
}

// NewUsernameRepository creates a new UsernameRepository instance
func NewUsernameRepository(db *gorm.DB) UsernameRepository {
	return &usernameRepository{db: db}
}

// Upsert inserts or replaces by username; the linked chat is kept
func (r *usernameRepository) Upsert(ctx context.Context, record *models.Username) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "is_premium", "updated_at"}),
	}).Create(record).Error
}

func (r *usernameRepository) GetByUsername(ctx context.Context, username string) (*models.Username, error) {
	var record models.Username
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetByAddress returns the most recently updated username for the address
func (r *usernameRepository) GetByAddress(ctx context.Context, address string) (*models.Username, error) {
	var record models.Username
	err := r.db.WithContext(ctx).
		Where("address = ?", address).
		Order("updated_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetLinkedByAddress like GetByAddress but only rows with a Telegram chat.
// An address can own several usernames and only one of them may be linked.
func (r *usernameRepository) GetLinkedByAddress(ctx context.Context, address string) (*models.Username, error) {
	var record models.Username
	err := r.db.WithContext(ctx).
		Where("address = ? AND telegram_chat_id IS NOT NULL", address).
		Order("updated_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *usernameRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*models.Username, error) {
	var record models.Username
	err := r.db.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// SetTelegramChatID links a chat to an unlinked username. Relinking the same
// chat is a no-op; a username linked elsewhere returns ErrChatAlreadyLinked
// and an uncached one gorm.ErrRecordNotFound.
func (r *usernameRepository) SetTelegramChatID(ctx context.Context, username string, chatID int64) error {
	result := r.db.WithContext(ctx).Model(&models.Username{}).
		Where("username = ?", username).
		Where("telegram_chat_id IS NULL OR telegram_chat_id = ?", chatID).
		Update("telegram_chat_id", chatID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// mysql reports zero affected rows when the value did not change
	existing, err := r.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing.TelegramChatID != nil && *existing.TelegramChatID == chatID {
		return nil
	}
	return ErrChatAlreadyLinked
}
