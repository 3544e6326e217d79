package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/raykavin/pricewatch/pkg/core"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// watchRecord is the SQL row of a watch. The composite unique index enforces
// one watch per (owner, asset) even across several processes.
type watchRecord struct {
	ID            string    `gorm:"primaryKey;size:36"`
	OwnerID       string    `gorm:"size:64;not null;uniqueIndex:idx_watch_owner_asset,priority:1"`
	DestinationID string    `gorm:"size:64;not null"`
	AssetID       string    `gorm:"size:128;not null;uniqueIndex:idx_watch_owner_asset,priority:2"`
	TargetPrice   float64   `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (watchRecord) TableName() string {
	return "watches"
}

func toRecord(watch core.Watch) watchRecord {
	return watchRecord(watch)
}

func fromRecord(record watchRecord, _ int) core.Watch {
	return core.Watch(record)
}

// SQLStorage implements core.WatchStore using a SQL database via GORM
type SQLStorage struct {
	db          *gorm.DB
	maxPerOwner int
}

var _ core.WatchStore = (*SQLStorage)(nil)

// FromSQL opens the database with the given dialector and migrates the schema
func FromSQL(dialect gorm.Dialector, opts ...Option) (*SQLStorage, error) {
	db, err := gorm.Open(dialect, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&watchRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	o := buildOptions(opts)
	return &SQLStorage{db: db, maxPerOwner: o.maxPerOwner}, nil
}

// Add implements core.WatchStore
func (s *SQLStorage) Add(watch core.Watch) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		err := tx.Model(&watchRecord{}).
			Where("owner_id = ? AND asset_id = ?", watch.OwnerID, watch.AssetID).
			Count(&existing).Error
		if err != nil {
			return fmt.Errorf("failed to look up watch: %w", err)
		}
		if existing > 0 {
			return core.ErrDuplicateWatch
		}

		if s.maxPerOwner > 0 {
			var owned int64
			err := tx.Model(&watchRecord{}).Where("owner_id = ?", watch.OwnerID).Count(&owned).Error
			if err != nil {
				return fmt.Errorf("failed to count watches: %w", err)
			}
			if owned >= int64(s.maxPerOwner) {
				return core.ErrWatchLimit
			}
		}

		record := toRecord(watch)
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return core.ErrDuplicateWatch
			}
			return fmt.Errorf("failed to create watch: %w", err)
		}

		return nil
	})
}

// Remove implements core.WatchStore
func (s *SQLStorage) Remove(ownerID, assetID string) (bool, error) {
	result := s.db.
		Where("owner_id = ? AND asset_id = ?", ownerID, assetID).
		Delete(&watchRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to remove watch: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// Retire implements core.WatchStore
func (s *SQLStorage) Retire(watch core.Watch) (bool, error) {
	result := s.db.
		Where("id = ? AND owner_id = ? AND asset_id = ?", watch.ID, watch.OwnerID, watch.AssetID).
		Delete(&watchRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to retire watch: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// ListFor implements core.WatchStore
func (s *SQLStorage) ListFor(ownerID string) ([]core.Watch, error) {
	return s.find(s.db.Where("owner_id = ?", ownerID))
}

// ListAll implements core.WatchStore
func (s *SQLStorage) ListAll() ([]core.Watch, error) {
	return s.find(s.db)
}

func (s *SQLStorage) find(query *gorm.DB) ([]core.Watch, error) {
	var records []watchRecord

	result := query.Order("created_at, owner_id, asset_id").Find(&records)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to fetch watches: %w", result.Error)
	}

	return lo.Map(records, fromRecord), nil
}

// ClearFor implements core.WatchStore
func (s *SQLStorage) ClearFor(ownerID string) (int, error) {
	result := s.db.Where("owner_id = ?", ownerID).Delete(&watchRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clear watches: %w", result.Error)
	}

	return int(result.RowsAffected), nil
}

// Count implements core.WatchStore
func (s *SQLStorage) Count() (int, error) {
	var total int64
	if err := s.db.Model(&watchRecord{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count watches: %w", err)
	}
	return int(total), nil
}

// OwnerCount implements core.WatchStore
func (s *SQLStorage) OwnerCount() (int, error) {
	return s.countDistinct("owner_id")
}

func (s *SQLStorage) countDistinct(column string) (int, error) {
	var total int64
	if err := s.db.Model(&watchRecord{}).Distinct(column).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count distinct %s: %w", column, err)
	}
	return int(total), nil
}

// Stats implements core.WatchStore
func (s *SQLStorage) Stats() (core.Stats, error) {
	watches, err := s.Count()
	if err != nil {
		return core.Stats{}, err
	}

	owners, err := s.countDistinct("owner_id")
	if err != nil {
		return core.Stats{}, err
	}

	assets, err := s.countDistinct("asset_id")
	if err != nil {
		return core.Stats{}, err
	}

	return core.Stats{Watches: watches, Owners: owners, Assets: assets}, nil
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	return sqlDB.Close()
}
