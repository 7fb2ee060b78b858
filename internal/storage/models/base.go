// internal/storage/models/base.go
package models

import "time"

// BaseModel replaces gorm.Model for finer control over the columns.
type BaseModel struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
