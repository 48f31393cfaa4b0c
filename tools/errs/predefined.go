package errs

// API-level error codes. 1xxx auth/param, 2xxx update-delivery.
const (
	CodeParam        = 1001
	CodeTokenExpired = 1002
	CodeUnauthorized = 1003

	CodeStoreUnavailable     = 2001
	CodeTransportUnavailable = 2002
	CodeInvalidOffset        = 2003
	CodeConnectionClosed     = 2004
)

var (
	ErrParam        = NewCodeError(CodeParam, "bad request param")
	ErrTokenExpired = NewCodeError(CodeTokenExpired, "token expired or invalid")
	ErrUnauthorized = NewCodeError(CodeUnauthorized, "unauthorized")
)
