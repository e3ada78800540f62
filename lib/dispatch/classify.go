package dispatch

import "strings"

// Provider failure messages that indicate a transient condition. Matched case-insensitively against the whole
// error chain; anything not listed here is treated as fatal.
var retryablePatterns = []string{
	"nonce too low",
	"nonce too high",
	"invalid nonce",
	"replacement transaction underpriced",
	"already known",
	"known transaction",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"unexpected eof",
	"rate limit",
	"too many requests",
	"429",
	"server_busy",
	"dup_transaction",
	"service unavailable",
	"503",
}

// Failure messages that implicate the nonce. These must invalidate the arbiter entry before any retry, so the
// next allocation re-seeds from the provider.
var noncePatterns = []string{
	"nonce",
	"replacement transaction underpriced",
	"already known",
	"known transaction",
}

// Retryable reports whether a provider-level failure is worth retrying.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	return matches(err, retryablePatterns) || eofToken(strings.ToLower(err.Error()))
}

// io.EOF surfaces as the bare token "EOF", usually at the end of a wrapped chain. A plain substring match
// would also catch words like "proof", so it needs its own boundary check.
func eofToken(msg string) bool {
	return msg == "eof" || strings.HasSuffix(msg, ": eof")
}

// NonceRelated reports whether a failure implicates the sender's nonce.
func NonceRelated(err error) bool {
	return matches(err, noncePatterns)
}

func matches(err error, patterns []string) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
