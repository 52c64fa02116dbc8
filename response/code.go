package response

type ErrorCode int

const (
	OK ErrorCode = 0

	InvalidRequest ErrorCode = 40001
	NotFound       ErrorCode = 40002

	TokenExpired ErrorCode = 40101
	UserNotFound ErrorCode = 40102
	InvalidToken ErrorCode = 40103

	InvalidRole ErrorCode = 40301

	// Conflicts: a staging row already consumed by a transfer, a transfer
	// record already finalized, a duplicated area code, ...
	Conflict ErrorCode = 40901

	// Indicates laziness of the developer
	// Frontend will directly print the message without any translation
	NotSpecified ErrorCode = 99999
)
