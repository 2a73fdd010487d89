// Package fetch performs throttled HTTP requests with bounded retries and
// robots.txt enforcement.
package fetch

import "fmt"

// Kind classifies a fetch failure.
type Kind string

const (
	KindPolicyDenied Kind = "policy_denied"
	KindTimeout      Kind = "timeout"
	KindHTTPStatus   Kind = "http_status"
	KindNetwork      Kind = "network"
)

// FetchError is returned once a request has failed for good.
type FetchError struct {
	Kind       Kind
	URL        string
	Attempts   int
	StatusCode int // set for KindHTTPStatus
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindPolicyDenied:
		return fmt.Sprintf("fetch %s: disallowed by robots.txt", e.URL)
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	default:
		return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTPStatus:
		return retryableStatus(e.StatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
