package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FieldError is one field-level validation failure on a staging record.
// Validation errors are always a list of these, never one opaque string.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// StagingProject is a provisionally-imported project record awaiting
// review. It is consumed (hard-deleted) when transferred into the live
// Project set.
type StagingProject struct {
	gorm.Model
	AreaID   uint   `gorm:"index:idx_staging_area;not null;comment:source area"`
	Area     Area   `gorm:"foreignKey:AreaID"`
	ImportID string `gorm:"index;type:varchar(64);comment:import batch that created this row"`

	RowNumber int               `gorm:"type:int;comment:1-based data row in the source file"`
	Fields    datatypes.JSONMap `gorm:"comment:mapped field values"`
	Status    StagingStatus     `gorm:"index:idx_staging_status;type:varchar(16);not null;default:pending"`
	Notes     string            `gorm:"type:varchar(512)"`

	ValidationErrors datatypes.JSONType[[]FieldError] `gorm:"comment:field-level validation failures"`
}

// Project is a live record, created either directly or by promoting a
// staging row.
type Project struct {
	gorm.Model
	Name   string `gorm:"type:varchar(256);not null"`
	Code   string `gorm:"index;type:varchar(64)"`
	AreaID uint   `gorm:"index;not null;comment:owning area"`
	Area   Area   `gorm:"foreignKey:AreaID"`

	Fields   datatypes.JSONMap `gorm:"comment:imported field values"`
	ImportID string            `gorm:"type:varchar(64);comment:origin import batch, empty for manual records"`

	Transfers []Transfer
}
