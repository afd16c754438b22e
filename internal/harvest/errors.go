package harvest

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the harvesting components.
var (
	ErrJobTimeout             = errors.New("remote job did not complete within polling ceiling")
	ErrMissingContentType     = errors.New("response has no content type")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrInvalidCategory        = errors.New("invalid category")
	ErrCorruptDispatchMarker  = errors.New("dispatch marker could not be resumed")
	ErrChallengeUnsolvable    = errors.New("access challenge not recognized")
	ErrNotFound               = errors.New("not found")
)

// RemoteError wraps a failed interaction with the remote service. It is
// always retryable by a later run.
type RemoteError struct {
	Op  string
	Key string
	Err error
}

func (e *RemoteError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Key, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Remote wraps err as a RemoteError. A nil err yields nil.
func Remote(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Key: key, Err: err}
}

// IsTransient reports whether err leaves resumable state behind and can be
// retried by a later run.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var remote *RemoteError
	return errors.As(err, &remote) ||
		errors.Is(err, ErrJobTimeout) ||
		errors.Is(err, ErrCorruptDispatchMarker) ||
		errors.Is(err, ErrMissingContentType)
}
