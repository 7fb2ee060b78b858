// internal/storage/models/transaction.go
package models

import "time"

// Transaction records one buy or sell attempt against the trade API.
type Transaction struct {
	BaseModel
	IntentID     string `gorm:"index;type:varchar(36)"`
	Signature    string `gorm:"index;type:varchar(88)"`
	TokenID      string `gorm:"index;not null;type:varchar(44)"`
	Action       string `gorm:"not null;type:varchar(10)"`
	Origin       string `gorm:"type:varchar(20)"`
	Status       string `gorm:"not null;type:varchar(20)"`
	AmountSOL    float64
	EntryValue   float64
	ExitValue    float64
	PnLPercent   float64
	Reason       string `gorm:"type:text"`
	ErrorMessage string `gorm:"type:text"`
	Failures     int
	ExecutedAt   time.Time `gorm:"index;not null"`
}

// Transaction statuses.
const (
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)
