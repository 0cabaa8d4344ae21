package sources

import "errors"

// ErrUnavailable reports that a platform could not be reached, or kept
// answering with transient errors until the retry budget ran out.
var ErrUnavailable = errors.New("source unavailable")

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	return code == 429 || code >= 500
}
