package growatt

import (
	"errors"
	"fmt"
)

// Growatt error codes that indicate throttling rather than a bad request.
const (
	errCodeRateLimited    = 10002
	errCodeFrequentAccess = 10011
)

// UpstreamError describes a failed fetch. Transient failures (network,
// timeout, throttling, server-side errors) are safe to retry after a pause;
// everything else indicates a request or credential problem.
type UpstreamError struct {
	Endpoint  string
	Status    int
	ErrorCode int
	Message   string
	Transient bool
	Err       error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("growatt %s: %v", e.Endpoint, e.Err)
	case e.ErrorCode != 0:
		return fmt.Sprintf("growatt %s: api error %d: %s", e.Endpoint, e.ErrorCode, e.Message)
	default:
		return fmt.Sprintf("growatt %s: http status %d", e.Endpoint, e.Status)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an upstream failure worth retrying.
func IsTransient(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}

	return false
}
