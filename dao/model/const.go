package model

// User role in platform
type Role uint8

const (
	_ Role = iota
	RoleViewer
	RoleOperator
	RoleAdmin
)

const InvalidUserID = 0

// Staging record status
type StagingStatus string

const (
	StagingPending   StagingStatus = "pending"
	StagingValidated StagingStatus = "validated"
	StagingError     StagingStatus = "error"
	StagingReviewed  StagingStatus = "reviewed"
)

// Transfer record status. A transfer is immutable once it reaches a
// terminal status (approved, completed, rejected, cancelled).
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferApproved  TransferStatus = "approved"
	TransferCompleted TransferStatus = "completed"
	TransferRejected  TransferStatus = "rejected"
	TransferCancelled TransferStatus = "cancelled"
)

func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferApproved, TransferCompleted, TransferRejected, TransferCancelled:
		return true
	}
	return false
}

// Import batch status
type ImportStatus string

const (
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportError      ImportStatus = "error"
	ImportCancelled  ImportStatus = "cancelled"
)
