package models

import (
	"time"
)

// StoryRecord is the SQL row backing the key-value story store.
type StoryRecord struct {
	Key       string    `gorm:"column:record_key;primaryKey;size:191" json:"key"`
	Value     string    `gorm:"type:longtext" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name independent of gorm's pluralisation.
func (StoryRecord) TableName() string {
	return "story_records"
}
