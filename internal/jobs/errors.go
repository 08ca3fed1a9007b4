package jobs

import "errors"

// Kind classifies every error the engine can surface, per the taxonomy:
// each kind is either retryable or terminal, never both.
type Kind string

const (
	KindValidation        Kind = "Validation"
	KindHandlerMissing    Kind = "HandlerMissing"
	KindNotFound          Kind = "NotFound"
	KindAlreadyCancelled  Kind = "AlreadyCancelled"
	KindProcessing        Kind = "Processing"
	KindRunnerUnavailable Kind = "RunnerUnavailable"
	KindSendTimeout       Kind = "SendTimeout"
	KindTimeout           Kind = "Timeout"
	KindMailboxFull       Kind = "MailboxFull"
	KindPersistenceError  Kind = "PersistenceError"
	KindMaxRetries        Kind = "MaxRetries"
)

var retryableKinds = map[Kind]bool{
	KindProcessing:        true,
	KindRunnerUnavailable: true,
	KindSendTimeout:       true,
	KindTimeout:           true,
	KindMailboxFull:       true,
	KindPersistenceError:  true,
}

// Retryable reports whether errors of this kind should feed a retry
// schedule rather than short-circuit to compensation.
func (k Kind) Retryable() bool { return retryableKinds[k] }

// Terminal is the logical complement of Retryable.
func (k Kind) Terminal() bool { return !k.Retryable() }

// Error is a classified engine error carrying its Kind alongside a cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified Error.
func NewError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf extracts the Kind of an error if it (or something it wraps) is
// an *Error; defaults to KindProcessing (retryable) for unclassified
// errors, since failing open into a retry is safer than dead-lettering a
// job that might succeed on another attempt.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindProcessing
}

var (
	ErrValidation        = NewError(KindValidation, "validation failed", nil)
	ErrHandlerMissing    = NewError(KindHandlerMissing, "no handler registered for job type", nil)
	ErrNotFound          = NewError(KindNotFound, "not found", nil)
	ErrAlreadyCancelled  = NewError(KindAlreadyCancelled, "job already in a terminal state", nil)
	ErrRunnerUnavailable = NewError(KindRunnerUnavailable, "target runner unavailable", nil)
	ErrSendTimeout       = NewError(KindSendTimeout, "send to entity timed out", nil)
	ErrMailboxFull       = NewError(KindMailboxFull, "entity mailbox is full", nil)
	ErrMaxRetries        = NewError(KindMaxRetries, "retry budget exhausted", nil)
)
