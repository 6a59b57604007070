package result

type ErrorCode int

const (
	CodeOK ErrorCode = 0

	CodeGenericError      ErrorCode = 10000
	CodeIndexOutOfBounds  ErrorCode = 10001
	CodeNothingToSign     ErrorCode = 10002
	CodeSignatureRejected ErrorCode = 10003
)
