// internal/filehandle/permission.go
package filehandle

import (
	"context"

	"github.com/Corphon/SketchKeeper/internal/utils"
)

// PermissionState is the permission a handle currently holds.
type PermissionState string

const (
	PermissionUnknown PermissionState = "unknown"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// PermissionMode is the access mode permission is asked for.
type PermissionMode string

// ModeReadWrite is the only mode handles are checked for.
const ModeReadWrite PermissionMode = "readwrite"


// Handle is an opaque, revocable reference to a previously chosen location.
// QueryPermission must not prompt; RequestPermission may block on the user.
type Handle interface {
	ID() string
	Name() string
	QueryPermission(ctx context.Context, mode PermissionMode) (PermissionState, error)
	RequestPermission(ctx context.Context, mode PermissionMode) (PermissionState, error)
}

// Outcome is the detailed result of a permission check.
type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailed  Outcome = "failed"
)

// Verifier checks write permission on handles before they are reused.
// It holds no per-handle state; every call queries afresh.
type Verifier struct {
	logger *utils.Logger
}

// NewVerifier creates a verifier; a nil logger uses the global one.
func NewVerifier(logger *utils.Logger) *Verifier {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &Verifier{logger: logger}
}

// VerifyPermission reports whether read-write permission on h is granted,
// requesting it when it is not. Denial and platform errors both yield false.
func (v *Verifier) VerifyPermission(ctx context.Context, h Handle) bool {
	return v.CheckPermission(ctx, h) == OutcomeGranted
}

// CheckPermission is VerifyPermission with denial and failure kept apart.
func (v *Verifier) CheckPermission(ctx context.Context, h Handle) Outcome {
	if h == nil {
		return OutcomeFailed
	}

	state, err := h.QueryPermission(ctx, ModeReadWrite)
	if err != nil {
		v.logFailure(h, "query", err)
		return OutcomeFailed
	}
	if state == PermissionGranted {
		return OutcomeGranted
	}

	state, err = h.RequestPermission(ctx, ModeReadWrite)
	if err != nil {
		v.logFailure(h, "request", err)
		return OutcomeFailed
	}
	if state == PermissionGranted {
		return OutcomeGranted
	}
	return OutcomeDenied
}

func (v *Verifier) logFailure(h Handle, step string, err error) {
	v.logger.Error("file handle permission check failed", map[string]interface{}{
		"handle": h.ID(),
		"step":   step,
		"error":  err.Error(),
	})
}
