package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Optional fields for user
type UserAttribute struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Language string `json:"language,omitempty"`
}

// User is the basic entity of the system
type User struct {
	gorm.Model
	Name     string  `gorm:"uniqueIndex;type:varchar(64);not null;comment:login name"`
	Nickname string  `gorm:"type:varchar(64);comment:display name"`
	Password *string `gorm:"type:varchar(256);comment:bcrypt hash"`
	Role     Role    `gorm:"index:role;not null;comment:platform role (viewer, operator, admin)"`
	AreaID   *uint   `gorm:"index;comment:home area, nil for platform-wide users"`

	Attributes datatypes.JSONType[UserAttribute] `gorm:"comment:extra profile attributes"`
}

type UserInfo struct {
	UserName string
	Nickname string
}
