package bundlectx

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "com.example.plugin", Sanitize("com.example.plugin"))
	assert.Equal(t, "com_example_.plugin", Sanitize("com/example:.plugin"))
	assert.Equal(t, "a_b", Sanitize("a b"))
}

func TestBuilder_Build_DataDirectoryUnderBase(t *testing.T) {
	base := t.TempDir()
	b := Builder{
		HostVersion:        "1.0.0",
		BaseDataDirectory:  base,
		BundleID:           "com.example.plugin",
		GrantedPermissions: []hostapi.Permission{hostapi.DataRead},
	}
	ctx, err := b.Build()
	require.NoError(t, err)

	normalizedBase := filepath.Clean(base)
	assert.True(t, strings.HasPrefix(filepath.Clean(ctx.DataDirectory), normalizedBase))
	assert.True(t, ctx.Has(hostapi.DataRead))
	assert.False(t, ctx.Has(hostapi.Network))
}

func TestBuilder_Build_TraversalAttemptSanitized(t *testing.T) {
	base := t.TempDir()
	b := Builder{BaseDataDirectory: base, BundleID: "../../etc/passwd"}
	ctx, err := b.Build()
	require.NoError(t, err)

	normalizedBase := filepath.Clean(base)
	assert.True(t, strings.HasPrefix(filepath.Clean(ctx.DataDirectory), normalizedBase))
}

func TestBuilder_Build_EmptyBundleID(t *testing.T) {
	_, err := Builder{BaseDataDirectory: t.TempDir()}.Build()
	require.Error(t, err)
	var nullErr *hostapi.NullArgumentError
	require.ErrorAs(t, err, &nullErr)
}

func TestContext_Require(t *testing.T) {
	ctx := &Context{GrantedPermissions: hostapi.NewPermissionSet(hostapi.DataRead)}
	require.NoError(t, ctx.Require("b1", hostapi.DataRead))

	err := ctx.Require("b1", hostapi.Network)
	require.Error(t, err)
	var secErr *hostapi.SecurityViolationError
	require.ErrorAs(t, err, &secErr)
	assert.Equal(t, hostapi.PermissionDenied, secErr.Kind)
}
