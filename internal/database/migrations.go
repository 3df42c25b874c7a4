package database

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/dailydiary/backend/internal/diary"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSeedDefaultOwner = "2024-06-01_seed_default_owner"
	migrationNormalizeMoods   = "2024-06-15_normalize_entry_moods"
)

// OwnerSeed is the single owner provisioned for deployments without accounts.
type OwnerSeed struct {
	OwnerID string
	Email   string
}

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, seed OwnerSeed, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedDefaultOwner, apply: func(tx *gorm.DB) error { return seedDefaultOwner(tx, seed) }},
		{name: migrationNormalizeMoods, apply: normalizeEntryMoods},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func seedDefaultOwner(db *gorm.DB, seed OwnerSeed) error {
	ownerID := strings.TrimSpace(seed.OwnerID)
	email := strings.TrimSpace(seed.Email)
	if ownerID == "" || email == "" {
		return nil
	}
	now := time.Now().UTC()
	profile := diary.Profile{OwnerID: ownerID, Email: email, CreatedAt: now, UpdatedAt: now}
	return db.Where("owner_id = ?", ownerID).FirstOrCreate(&profile).Error
}

// normalizeEntryMoods lowercases moods written by clients that sent display labels.
func normalizeEntryMoods(db *gorm.DB) error {
	var entries []diary.Entry
	if err := db.Select("entry_id", "mood").Find(&entries).Error; err != nil {
		return err
	}
	for _, entry := range entries {
		mood, err := diary.ParseMood(string(entry.Mood))
		if err != nil || mood == entry.Mood {
			continue
		}
		if err := db.Model(&diary.Entry{}).
			Where("entry_id = ?", entry.EntryID).
			Update("mood", mood).Error; err != nil {
			return err
		}
	}
	return nil
}
