// internal/storage/models/position.go
package models

import (
	"time"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

// Position is the persisted form of a tracked position, one row per token.
type Position struct {
	BaseModel
	TokenID     string    `gorm:"uniqueIndex;not null;type:varchar(44)"`
	Name        string    `gorm:"type:varchar(100)"`
	EntryValue  float64   `gorm:"not null"`
	PeakValue   float64   `gorm:"not null"`
	History     []float64 `gorm:"serializer:json;type:text"`
	OwnedAmount uint64
	Origin      string    `gorm:"index;not null;type:varchar(20)"`
	Status      string    `gorm:"not null;type:varchar(20)"`
	OpenedAt    time.Time `gorm:"not null"`
	LastSeenAt  time.Time
}

// FromDomain converts a domain position into its row.
func FromDomain(p domain.Position) Position {
	history := make([]float64, len(p.History))
	copy(history, p.History)
	return Position{
		TokenID:     p.TokenID,
		Name:        p.Name,
		EntryValue:  p.EntryValue,
		PeakValue:   p.PeakValue,
		History:     history,
		OwnedAmount: p.OwnedAmount,
		Origin:      string(p.Origin),
		Status:      string(p.Status),
		OpenedAt:    p.OpenedAt,
		LastSeenAt:  p.UpdatedAt,
	}
}

// ToDomain converts the row back into a domain position.
func (m Position) ToDomain() domain.Position {
	history := make([]float64, len(m.History))
	copy(history, m.History)
	return domain.Position{
		TokenID:     m.TokenID,
		Name:        m.Name,
		EntryValue:  m.EntryValue,
		PeakValue:   m.PeakValue,
		History:     history,
		OwnedAmount: m.OwnedAmount,
		Origin:      domain.Origin(m.Origin),
		Status:      domain.Status(m.Status),
		OpenedAt:    m.OpenedAt,
		UpdatedAt:   m.LastSeenAt,
	}
}
