package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Area is an organizational unit that owns projects and users.
type Area struct {
	gorm.Model
	Name  string `gorm:"type:varchar(128);not null;comment:area name"`
	Code  string `gorm:"uniqueIndex;type:varchar(32);not null;comment:short unique code"`
	Color string `gorm:"type:varchar(16);comment:display color (hex)"`

	OutgoingFlows []AreaFlow `gorm:"foreignKey:FromAreaID"`
	IncomingFlows []AreaFlow `gorm:"foreignKey:ToAreaID"`
}

// AreaFlow is a directed edge of the legal-transfer graph. Deleting a
// flow deactivates it (gorm soft delete); the active edge set from one
// area defines its legal next steps. FromAreaID must differ from
// ToAreaID, enforced at the service layer.
type AreaFlow struct {
	gorm.Model
	FromAreaID uint `gorm:"index:idx_flow_from;not null"`
	ToAreaID   uint `gorm:"not null"`
	FromArea   Area `gorm:"foreignKey:FromAreaID"`
	ToArea     Area `gorm:"foreignKey:ToAreaID"`

	FlowOrder        int    `gorm:"type:int;not null;default:0;comment:sequence/tie-break within a source area"`
	Required         bool   `gorm:"not null;default:false;comment:must be traversed before alternatives"`
	RequiresApproval bool   `gorm:"not null;default:false;comment:transfer along this edge needs an approval step"`
	CanSkip          bool   `gorm:"not null;default:false"`
	Description      string `gorm:"type:varchar(512)"`

	// Opaque rule bag, interpreted by the validation endpoint only.
	Conditions datatypes.JSONMap `gorm:"comment:opaque transfer conditions"`
}
