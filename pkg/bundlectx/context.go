// Package bundlectx implements the per-bundle handle created at load and
// destroyed at unload: host version, a sandboxed data directory, and the
// set of permissions the host granted the bundle.
package bundlectx

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
)

var unsafeCharPattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Sanitize replaces every character outside [A-Za-z0-9._-] with "_", the
// rule the Bundle Context builder applies to a bundle id before using it
// as a directory name.
func Sanitize(id string) string {
	return unsafeCharPattern.ReplaceAllString(id, "_")
}

// Context is a bundle's sandboxed handle: the host version it was loaded
// against, its data directory, and its granted permissions.
type Context struct {
	HostVersion        string
	DataDirectory      string
	GrantedPermissions hostapi.PermissionSet
}

// Has reports whether p was granted to the bundle.
func (c *Context) Has(p hostapi.Permission) bool {
	return c.GrantedPermissions.Has(p)
}

// Require returns a *hostapi.SecurityViolationError (kind
// PermissionDenied) if p was not granted.
func (c *Context) Require(bundleID string, p hostapi.Permission) error {
	if !c.Has(p) {
		return &hostapi.SecurityViolationError{
			ID:      bundleID,
			Kind:    hostapi.PermissionDenied,
			Message: fmt.Sprintf("permission %s not granted", p),
		}
	}
	return nil
}

// Builder constructs a Context, sanitizing the bundle id and guaranteeing
// the resulting data directory normalizes under the configured base
// directory (the path-traversal guard).
type Builder struct {
	HostVersion        string
	BaseDataDirectory  string
	BundleID           string
	GrantedPermissions []hostapi.Permission
}

// Build creates the bundle's data directory (re-entrant safe) and
// returns its Context.
func (b Builder) Build() (*Context, error) {
	if b.BundleID == "" {
		return nil, &hostapi.NullArgumentError{Name: "bundle_id"}
	}

	sanitized := Sanitize(b.BundleID)
	base, err := filepath.Abs(b.BaseDataDirectory)
	if err != nil {
		return nil, err
	}
	dataDir := filepath.Join(base, sanitized)

	normalizedBase := filepath.Clean(base)
	normalizedData := filepath.Clean(dataDir)
	if normalizedData != normalizedBase && !strings.HasPrefix(normalizedData, normalizedBase+string(os.PathSeparator)) {
		return nil, &hostapi.SecurityViolationError{
			ID:      b.BundleID,
			Kind:    hostapi.PermissionDenied,
			Message: "sanitized data directory escapes base directory",
		}
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	return &Context{
		HostVersion:        b.HostVersion,
		DataDirectory:      dataDir,
		GrantedPermissions: hostapi.NewPermissionSet(b.GrantedPermissions...),
	}, nil
}
