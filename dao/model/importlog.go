package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImportOptions configures one staging import run. Persisted with the
// log row so a retry re-runs with the same settings.
type ImportOptions struct {
	BatchSize      int  `json:"batchSize,omitempty"`
	StartRow       int  `json:"startRow,omitempty"`
	SkipValidation bool `json:"skipValidation,omitempty"`
}

// ImportLog records one Excel import attempt. The row is created when
// the import starts and updated as batches commit, so clients can poll
// real progress instead of simulating it. A failed import still leaves
// its row behind with status error for the history list.
type ImportLog struct {
	gorm.Model
	ImportID string `gorm:"uniqueIndex;type:varchar(64);not null;comment:external uuid"`
	AreaID   uint   `gorm:"index;not null;comment:target area"`
	Area     Area   `gorm:"foreignKey:AreaID"`

	FileName   string `gorm:"type:varchar(256);not null;comment:original upload name"`
	StoredPath string `gorm:"type:varchar(512);comment:server-side copy, kept for retry"`

	Status           ImportStatus `gorm:"index;type:varchar(16);not null;default:processing"`
	TotalRows        int          `gorm:"type:int;not null;default:0"`
	RecordsProcessed int          `gorm:"type:int;not null;default:0"`
	RecordsFailed    int          `gorm:"type:int;not null;default:0"`
	ErrorMessage     string       `gorm:"type:text"`

	Options datatypes.JSONType[ImportOptions] `gorm:"comment:run options, reused on retry"`

	StartedAt  time.Time
	FinishedAt *time.Time
}
