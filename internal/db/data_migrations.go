package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DataMigration a one-off data fix applied after the schema migration
type DataMigration struct {
	Version     string
	Description string
	Up          func(*gorm.DB) error
}

// DataMigrationLog records applied data migrations
type DataMigrationLog struct {
	Version     string    `gorm:"primaryKey;type:varchar(50)"`
	Description string    `gorm:"type:text"`
	ExecutedAt  time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for DataMigrationLog
func (DataMigrationLog) TableName() string {
	return "data_migrations_log"
}

// GetDataMigrations return all data migrations, in order
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Lowercase payment and username addresses",
			Up:          lowercaseAddresses,
		},
		{
			Version:     "data_002",
			Description: "Backfill empty payment fees with 0",
			Up:          backfillFees,
		},
	}
}

// lowercaseAddresses rows written before address normalization used checksum case
func lowercaseAddresses(db *gorm.DB) error {
	if err := db.Exec(`UPDATE payments SET
		from_address = LOWER(from_address),
		to_address = LOWER(to_address),
		token_address = LOWER(token_address)`).Error; err != nil {
		return fmt.Errorf("lowercase payment addresses: %w", err)
	}
	if err := db.Exec(`UPDATE usernames SET address = LOWER(address)`).Error; err != nil {
		return fmt.Errorf("lowercase username addresses: %w", err)
	}
	return nil
}

func backfillFees(db *gorm.DB) error {
	return db.Exec(`UPDATE payments SET fee = '0' WHERE fee IS NULL OR fee = ''`).Error
}

// RunDataMigrations applies each migration once; the log table makes reruns no-ops
func RunDataMigrations(db *gorm.DB, log *logrus.Logger) error {
	if err := db.AutoMigrate(&DataMigrationLog{}); err != nil {
		return fmt.Errorf("create data_migrations_log: %w", err)
	}

	for _, migration := range GetDataMigrations() {
		var applied DataMigrationLog
		err := db.Where("version = ?", migration.Version).First(&applied).Error
		if err == nil {
			log.WithField("version", migration.Version).Debug("📋 Data migration already applied")
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		log.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("🚀 Running data migration")

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&DataMigrationLog{
				Version:     migration.Version,
				Description: migration.Description,
			}).Error
		})
		if err != nil {
			return fmt.Errorf("data migration %s: %w", migration.Version, err)
		}

		log.WithField("version", migration.Version).Info("✅ Data migration completed")
	}
	return nil
}
