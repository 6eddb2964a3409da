package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTooMany is returned before any call when a bulk request exceeds MaxBulk.
var ErrTooMany = fmt.Errorf("bulk request exceeds %d items", MaxBulk)

// RemoteError is a failed call to the remote service: either a non-2xx
// response (StatusCode > 0) or a transport/decode failure (Err != nil).
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Err != nil:
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode > 0:
		if e.Body == "" {
			return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
		}
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRemote reports whether err came from the remote boundary.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsUnauthorized reports whether the service rejected the access cookie.
func IsUnauthorized(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusUnauthorized
}
