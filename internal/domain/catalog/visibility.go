package catalog

import (
	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// Visibility governs read and download access to a version.
//
// The per-version state machine is created(public|private) -> deprecated,
// terminal. There is no delete and no way back.
type Visibility string

const (
	// VisibilityPublic versions resolve for any caller.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate versions resolve only for namespace members.
	VisibilityPrivate Visibility = "private"
	// VisibilityDeprecated versions keep readable metadata but refuse
	// artifact downloads.
	VisibilityDeprecated Visibility = "deprecated"
)

// ParseVisibility parses a publish-time visibility. Deprecated is not a
// valid initial state; versions only enter it through Deprecate.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	default:
		return "", errs.Newf(errs.InvalidFormat, "visibility %q must be public or private", s)
	}
}
