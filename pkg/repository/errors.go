package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/garnizeh/jobsync/pkg/models"
)

// Kind classifies a failure for the reconcile-or-rollback decision.
type Kind int

const (
	KindNone Kind = iota
	// KindValidation: rejected client-side, the store was never touched.
	KindValidation
	// KindNetwork: the outcome on the server is unknown.
	KindNetwork
	// KindRejected: the server processed and refused the request.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindRejected:
		return "rejected"
	default:
		return "none"
	}
}

// ErrNotFound is returned by repositories when the entity does not exist.
var ErrNotFound = errors.New("not found")

// FieldError is one entry of a server validation response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RemoteError is a response the server answered with. A non-2xx status is a
// refusal; a 2xx status means the request was processed but the body could
// not be read back (Code "invalid_response").
type RemoteError struct {
	Status    int
	Code      string
	Message   string
	Path      string
	Details   []FieldError
	RequestID string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Request failed (%d)", e.Status)
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// NetworkError wraps a failure where the request may or may not have reached
// the server.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return KindValidation
	}
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return KindNetwork
	}
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		if AmbiguousStatus(rerr.Status) || committed(rerr.Status) {
			return KindNetwork
		}
		return KindRejected
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	// untyped errors carrying "network" in the message are treated as
	// transport failures
	if strings.Contains(strings.ToLower(err.Error()), "network") {
		return KindNetwork
	}
	return KindRejected
}

func committed(status int) bool { return status >= 200 && status < 300 }

// AmbiguousStatus reports statuses emitted by proxies in front of the API,
// where the request may still have been processed.
func AmbiguousStatus(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}
