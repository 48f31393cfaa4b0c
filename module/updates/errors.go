package updates

import "huddle/tools/errs"

var (
	// ErrStoreUnavailable: the persistence layer rejected or could not
	// process an append/read. Fatal to that operation; never silently dropped.
	ErrStoreUnavailable = errs.NewCodeError(errs.CodeStoreUnavailable, "update store unavailable")

	// ErrTransportUnavailable: pub/sub publish or subscribe failed. Durable
	// notices can be ignored (clients self-heal via diff); ephemeral
	// publishes are lost by design.
	ErrTransportUnavailable = errs.NewCodeError(errs.CodeTransportUnavailable, "notify transport unavailable")

	// ErrInvalidOffset: negative offset or out-of-range limit; rejected
	// before touching storage.
	ErrInvalidOffset = errs.NewCodeError(errs.CodeInvalidOffset, "invalid offset or limit")

	// ErrConnectionClosed: operation against a CLOSED streaming connection.
	// Callers treat this as a no-op.
	ErrConnectionClosed = errs.NewCodeError(errs.CodeConnectionClosed, "stream connection closed")
)
