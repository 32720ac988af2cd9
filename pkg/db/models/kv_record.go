package models

import "time"

// KVRecord stores one serialized snapshot under a namespaced key.
type KVRecord struct {
	Namespace string    `gorm:"column:namespace;type:varchar(255);primaryKey"`
	Value     []byte    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name independent of naming strategy.
func (KVRecord) TableName() string {
	return "kv_records"
}
