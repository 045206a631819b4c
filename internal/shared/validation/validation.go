package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// String length limits
const (
	MinUsernameLength = 3
	MaxUsernameLength = 64
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxEmailLength    = 255
	MaxNameLength     = 128
)

// Regular expressions for validation
var (
	// NamePattern matches registry identifiers: lowercase letters, digits,
	// and underscores. Applies to usernames, namespaces, and package names.
	NamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	// EmailPattern is a basic email shape check
	EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// Username validates a username.
func Username(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return errs.Newf(errs.InvalidFormat, "username must be %d-%d characters", MinUsernameLength, MaxUsernameLength)
	}
	if !NamePattern.MatchString(username) {
		return errs.New(errs.InvalidFormat, "username must contain only lowercase letters, digits, and underscores")
	}
	return nil
}

// Password validates password length bounds. Long passwords are rejected to
// bound bcrypt cost.
func Password(password string) error {
	if len(password) < MinPasswordLength {
		return errs.Newf(errs.InvalidFormat, "password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return errs.Newf(errs.InvalidFormat, "password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// Email validates an email address shape.
func Email(email string) error {
	if email == "" || len(email) > MaxEmailLength {
		return errs.New(errs.InvalidFormat, "email is required")
	}
	if !EmailPattern.MatchString(email) {
		return errs.New(errs.InvalidFormat, "email is not valid")
	}
	return nil
}

// NamespaceName validates a namespace name.
func NamespaceName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return errs.New(errs.InvalidFormat, "namespace name is required")
	}
	if !NamePattern.MatchString(name) {
		return errs.New(errs.InvalidFormat, "namespace name must contain only lowercase letters, digits, and underscores")
	}
	return nil
}

// PackageName validates the bare (namespace-less) package name.
func PackageName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return errs.New(errs.InvalidFormat, "package name is required")
	}
	if !NamePattern.MatchString(name) {
		return errs.New(errs.InvalidFormat, "package name must contain only lowercase letters, digits, and underscores")
	}
	return nil
}

// SplitPackageName splits a possibly namespace-qualified name into its
// namespace and bare-name parts. The namespace part is empty when the name
// carries no slash.
func SplitPackageName(full string) (namespace, name string, err error) {
	switch parts := strings.Split(full, "/"); len(parts) {
	case 1:
		name = parts[0]
	case 2:
		namespace, name = parts[0], parts[1]
		if namespace == "" {
			return "", "", errs.Newf(errs.InvalidFormat, "package name %q has an empty namespace segment", full)
		}
	default:
		return "", "", errs.Newf(errs.InvalidFormat, "package name %q must be of the form namespace/name", full)
	}
	if err := PackageName(name); err != nil {
		return "", "", err
	}
	if namespace != "" {
		if err := NamespaceName(namespace); err != nil {
			return "", "", err
		}
	}
	return namespace, name, nil
}

// JoinPackageName builds the canonical namespace-qualified name.
func JoinPackageName(namespace, name string) string {
	return fmt.Sprintf("%s/%s", namespace, name)
}

// Version validates a semantic version string.
func Version(version string) error {
	if version == "" {
		return errs.New(errs.InvalidFormat, "version is required")
	}
	if _, err := semver.StrictNewVersion(version); err != nil {
		return errs.Wrap(errs.InvalidFormat, fmt.Sprintf("version %q is not a semantic version", version), err)
	}
	return nil
}
