package dispatch

import "errors"

// Failure classes a dispatch can end in. Handlers map these to HTTP statuses; the retry queue only ever sees
// failures whose outcome is marked retryable.
var (
	ErrValidation          = errors.New("validation failed")               // bad amount/address/missing field, fatal
	ErrInsufficientFunds   = errors.New("insufficient funds")              // fatal, resubmitting cannot help
	ErrSigning             = errors.New("invalid signing material")        // corrupted or undecryptable key, fatal
	ErrProviderUnavailable = errors.New("provider unavailable")            // all endpoints down, retryable
	ErrSubmissionRejected  = errors.New("submission rejected by provider") // fatal unless the message says otherwise
	ErrNotConfigured       = errors.New("missing configuration")           // absent credential or token mapping, fatal
)

// errNoSender details an ErrValidation for chain families where the caller has to name the funding address.
var errNoSender = errors.New("sender address required")
