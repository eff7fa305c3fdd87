package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"story-o-matic/server/internal/config"
	"story-o-matic/server/internal/models"
)

type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return NewSQLStore(db)
}

// NewSQLStore wraps an open gorm connection and migrates the record table.
func NewSQLStore(db *gorm.DB) (*MySQLStore, error) {
	if err := db.AutoMigrate(&models.StoryRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate story records: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) Get(ctx context.Context, key string) (string, error) {
	var rec models.StoryRecord
	err := s.db.WithContext(ctx).Where("record_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return rec.Value, nil
}

// Set upserts the record.
func (s *MySQLStore) Set(ctx context.Context, key, value string) error {
	rec := models.StoryRecord{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *MySQLStore) Update(ctx context.Context, key string, fn func(current string) (string, error)) error {
	return s.WithTx(ctx, func(tx *gorm.DB) error {
		var rec models.StoryRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("record_key = ?", key).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return fmt.Errorf("failed to get %s: %w", key, err)
		}

		next, err := fn(rec.Value)
		if err != nil {
			return err
		}
		if err := tx.Model(&rec).Update("value", next).Error; err != nil {
			return fmt.Errorf("failed to update %s: %w", key, err)
		}
		return nil
	})
}

func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("record_key = ?", key).Delete(&models.StoryRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *MySQLStore) Scan(ctx context.Context, prefix string) (map[string]string, error) {
	var recs []models.StoryRecord
	err := s.db.WithContext(ctx).Where("record_key LIKE ?", escapeLike(prefix)+"%").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
	}

	out := make(map[string]string, len(recs))
	for _, rec := range recs {
		out[rec.Key] = rec.Value
	}
	return out, nil
}

// Transaction helper
func (s *MySQLStore) WithTx(ctx context.Context, fn func(*gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
