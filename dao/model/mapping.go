package model

import "gorm.io/gorm"

// FieldMapping translates one spreadsheet column into one persisted
// record field, scoped to a source area. (AreaID, TargetTable,
// SourceField) is unique among live rows so a clone can upsert by that
// key.
type FieldMapping struct {
	gorm.Model
	AreaID uint `gorm:"index:idx_mapping_area;not null;comment:source area scope"`
	Area   Area `gorm:"foreignKey:AreaID"`

	SourceField    string  `gorm:"type:varchar(128);not null;comment:spreadsheet column name"`
	TargetField    string  `gorm:"type:varchar(128);not null;comment:persisted record field"`
	TargetTable    string  `gorm:"type:varchar(64);not null;default:projects"`
	Required       bool    `gorm:"not null;default:false"`
	Transformation string  `gorm:"type:varchar(64);comment:registered transform id (currency-parse, date-parse, ...)"`
	ValidationRule string  `gorm:"type:varchar(64);comment:registered validation rule id"`
	DefaultValue   *string `gorm:"type:varchar(256);comment:used when the source cell is empty"`
	OrderIndex     int     `gorm:"type:int;not null;default:0;comment:display/application order"`
}

// PortableMapping is the cross-environment export/import form of one
// FieldMapping, without identifiers or area scope.
type PortableMapping struct {
	SourceField    string  `json:"sourceField"`
	TargetField    string  `json:"targetField"`
	TargetTable    string  `json:"targetTable"`
	Required       bool    `json:"required"`
	Transformation string  `json:"transformation,omitempty"`
	ValidationRule string  `json:"validationRule,omitempty"`
	DefaultValue   *string `json:"defaultValue,omitempty"`
	OrderIndex     int     `json:"orderIndex"`
}

// MappingDocument is the portable JSON document for a whole area
// mapping set.
type MappingDocument struct {
	Version  int               `json:"version"`
	AreaCode string            `json:"areaCode,omitempty"`
	Mappings []PortableMapping `json:"mappings"`
}

const MappingDocumentVersion = 1

func (m *FieldMapping) Portable() PortableMapping {
	return PortableMapping{
		SourceField:    m.SourceField,
		TargetField:    m.TargetField,
		TargetTable:    m.TargetTable,
		Required:       m.Required,
		Transformation: m.Transformation,
		ValidationRule: m.ValidationRule,
		DefaultValue:   m.DefaultValue,
		OrderIndex:     m.OrderIndex,
	}
}
