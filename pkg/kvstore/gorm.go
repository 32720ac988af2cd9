package kvstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-storefront/pkg/db/models"
)

// GormStore persists snapshots in the kv_records table (sqlite or postgres).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db required")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Get(ctx context.Context, namespace string) ([]byte, error) {
	var record models.KVRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Take(&record).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return record.Value, nil
}

func (s *GormStore) Set(ctx context.Context, namespace string, value []byte) error {
	record := models.KVRecord{Namespace: namespace, Value: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&record).
		Error
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
