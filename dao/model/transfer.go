package model

import "gorm.io/gorm"

// Transfer records one project moving between areas. Rows are
// append-only history per project: terminal rows are never mutated.
type Transfer struct {
	gorm.Model
	ProjectID  uint `gorm:"index:idx_transfer_project;not null"`
	Project    Project
	FromAreaID uint `gorm:"not null"`
	ToAreaID   uint `gorm:"not null"`

	Status     TransferStatus `gorm:"index;type:varchar(16);not null;default:pending"`
	Notes      string         `gorm:"type:varchar(512)"`
	ApprovedBy *uint          `gorm:"comment:user who approved or rejected"`
	// Set when the transfer bypassed a failed edge-legality check.
	Forced bool `gorm:"not null;default:false"`
}
