package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrueSelph/jvcli/internal/shared/errs"
)

// TestUsername tests username validation rules
func TestUsername(t *testing.T) {
	assert.NoError(t, Username("alice"))
	assert.NoError(t, Username("a_1"))

	assert.Error(t, Username("ab"))
	assert.Error(t, Username("Alice"))
	assert.Error(t, Username("alice-smith"))
	assert.Error(t, Username(strings.Repeat("a", MaxUsernameLength+1)))
	assert.True(t, errs.Is(Username("ab"), errs.InvalidFormat))
}

// TestPassword tests password length bounds
func TestPassword(t *testing.T) {
	assert.NoError(t, Password("longenough"))
	assert.Error(t, Password("short"))
	assert.Error(t, Password(strings.Repeat("x", MaxPasswordLength+1)))
}

// TestEmail tests email shape validation
func TestEmail(t *testing.T) {
	assert.NoError(t, Email("alice@example.com"))
	assert.Error(t, Email(""))
	assert.Error(t, Email("not-an-email"))
	assert.Error(t, Email("missing@tld"))
}

// TestNamespaceAndPackageNames tests the shared identifier pattern
func TestNamespaceAndPackageNames(t *testing.T) {
	assert.NoError(t, NamespaceName("my_team"))
	assert.NoError(t, PackageName("agent_utils"))

	assert.Error(t, NamespaceName(""))
	assert.Error(t, NamespaceName("My-Team"))
	assert.Error(t, PackageName("agent utils"))
	assert.Error(t, PackageName("ns/name"))
}

// TestSplitPackageName tests qualified name parsing
func TestSplitPackageName(t *testing.T) {
	ns, name, err := SplitPackageName("team/tool")
	require.NoError(t, err)
	assert.Equal(t, "team", ns)
	assert.Equal(t, "tool", name)

	ns, name, err = SplitPackageName("tool")
	require.NoError(t, err)
	assert.Empty(t, ns)
	assert.Equal(t, "tool", name)

	_, _, err = SplitPackageName("/tool")
	assert.True(t, errs.Is(err, errs.InvalidFormat))

	_, _, err = SplitPackageName("a/b/c")
	assert.True(t, errs.Is(err, errs.InvalidFormat))

	_, _, err = SplitPackageName("team/Bad-Name")
	assert.True(t, errs.Is(err, errs.InvalidFormat))
}

// TestJoinPackageName tests canonical name construction
func TestJoinPackageName(t *testing.T) {
	assert.Equal(t, "team/tool", JoinPackageName("team", "tool"))
}

// TestVersion tests strict semantic version validation
func TestVersion(t *testing.T) {
	assert.NoError(t, Version("1.0.0"))
	assert.NoError(t, Version("0.1.0-alpha.1"))
	assert.NoError(t, Version("2.0.0+build.5"))

	assert.Error(t, Version(""))
	assert.Error(t, Version("1.0"))
	assert.Error(t, Version("v1.0.0"))
	assert.Error(t, Version("latest"))
	assert.True(t, errs.Is(Version("1.0"), errs.InvalidFormat))
}
