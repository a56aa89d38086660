package hooks

import (
	"fmt"
	"net/http"
)

// RetryableStatus reports whether a provider HTTP status is worth retrying
// with the same credentials. 429 and 5xx are transient; 401/403 mean the
// credential was revoked and every other 4xx is a request we would just
// fail again.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// classifyHTTP turns a provider response into a failure Result. Transport
// errors (err != nil, code 0) are always retryable.
func classifyHTTP(op string, code int, err error) Result {
	if err != nil && code == 0 {
		return Failure(fmt.Errorf("%s: %w", op, err), true)
	}
	return Failure(fmt.Errorf("%s: unexpected status %d", op, code), RetryableStatus(code))
}
