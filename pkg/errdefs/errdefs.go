package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the class of a control-plane error. The set is closed:
// every component returns one of these at its boundary so the HTTP layer
// can map them to status codes.
type Kind string

const (
	// KindNotFound is returned when a workload, template, node, or
	// allocation does not exist
	KindNotFound Kind = "not_found"

	// KindForbidden is returned when the access evaluator denies
	KindForbidden Kind = "forbidden"

	// KindLocked is returned when suspension gating denies an operation
	KindLocked Kind = "locked"

	// KindInvalidState is returned when the state machine rejects a
	// transition
	KindInvalidState Kind = "invalid_state"

	// KindValidation is returned for malformed input (ports, modes,
	// rules, identifiers)
	KindValidation Kind = "validation"

	// KindCapacityExceeded is returned when memory/CPU/disk headroom is
	// insufficient on the target node
	KindCapacityExceeded Kind = "capacity_exceeded"

	// KindAllocationConflict is returned when a host port or IP address
	// is already in use
	KindAllocationConflict Kind = "allocation_conflict"

	// KindNodeUnavailable is returned when no active gateway session
	// exists for the node
	KindNodeUnavailable Kind = "node_unavailable"

	// KindNodeBackpressured is returned when a gateway send did not
	// clear queue admission within the bound
	KindNodeBackpressured Kind = "node_backpressured"

	// KindTransferFailed is returned when any transfer step failed;
	// callers must assume partial cleanup
	KindTransferFailed Kind = "transfer_failed"

	// KindDatabaseProvisioning is surfaced verbatim from the external
	// database provisioning collaborator
	KindDatabaseProvisioning Kind = "database_provisioning"

	// KindPathTraversal is returned when a file path escapes its chroot
	KindPathTraversal Kind = "path_traversal"

	// KindUnsupportedArchive is returned for unknown archive extensions
	KindUnsupportedArchive Kind = "unsupported_archive"

	// KindAuthFailed is returned when a session token is rejected
	KindAuthFailed Kind = "auth_failed"

	// KindInternal is the fallback for unclassified failures
	KindInternal Kind = "internal"
)

// Error is a classified control-plane error
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound creates a not-found error for a resource and id
func NotFound(resource, id string) *Error {
	return Newf(KindNotFound, "%s %q not found", resource, id)
}

// Forbidden creates a forbidden error for a denied permission
func Forbidden(permission string) *Error {
	return Newf(KindForbidden, "missing permission %q", permission)
}

// Locked creates a suspension-gating error
func Locked(message string) *Error {
	return New(KindLocked, message)
}

// InvalidState creates a state-machine rejection error
func InvalidState(message string) *Error {
	return New(KindInvalidState, message)
}

// Validation creates a malformed-input error
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// KindOf extracts the kind of err, or KindInternal when err carries none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsForbidden reports whether err is a permission denial
func IsForbidden(err error) bool { return IsKind(err, KindForbidden) }

// IsLocked reports whether err is a suspension-gating denial
func IsLocked(err error) bool { return IsKind(err, KindLocked) }

// IsInvalidState reports whether err is a state-machine rejection
func IsInvalidState(err error) bool { return IsKind(err, KindInvalidState) }

// IsValidation reports whether err is a malformed-input error
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsNodeUnavailable reports whether err means no live agent session
func IsNodeUnavailable(err error) bool { return IsKind(err, KindNodeUnavailable) }

// HTTPStatus maps an error to the status code the JSON surface reports
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindValidation, KindPathTraversal, KindUnsupportedArchive:
		return http.StatusBadRequest
	case KindAuthFailed:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindCapacityExceeded, KindAllocationConflict:
		return http.StatusConflict
	case KindLocked:
		return http.StatusLocked
	case KindNodeUnavailable, KindNodeBackpressured:
		return http.StatusServiceUnavailable
	case KindTransferFailed, KindDatabaseProvisioning, KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
