// Package manifest defines the bundle manifest wire format
// (manifest.json inside a bundle archive) and its validation.
package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/semver"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Dependency is a single declared dependency on another bundle.
type Dependency struct {
	TargetID string `json:"target_id"`
	Range    string `json:"range"`
	Optional bool   `json:"optional"`
}

// Manifest is the parsed contents of a bundle's manifest.json: the
// Bundle Descriptor plus its dependency declarations and permissions.
type Manifest struct {
	ID             string       `json:"id"`
	HumanName      string       `json:"human_name"`
	Version        string       `json:"version"`
	MinHostVersion string       `json:"min_host_version"`
	Summary        string       `json:"summary"`
	Author         string       `json:"author"`
	Dependencies   []Dependency `json:"dependencies"`
	Permissions    []string     `json:"permissions"`

	// Capabilities is descriptive/query-only metadata; it never gates
	// lifecycle or dependency resolution.
	Capabilities []string `json:"capabilities,omitempty"`
}

// ValidationError reports a structurally invalid manifest.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest field %q: %s", e.Field, e.Reason)
}

// Parse decodes and validates a manifest.json payload.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, &ValidationError{Field: "<root>", Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks structural invariants that are cheap to verify before
// the manifest reaches the loader's trust gate: id shape, presence of a
// parseable version, and that dependency ranges parse.
func (m Manifest) Validate() error {
	if m.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if !idPattern.MatchString(m.ID) {
		return &ValidationError{Field: "id", Reason: "must match ^[A-Za-z0-9._-]+$"}
	}
	if _, err := semver.ParseVersion(m.Version); err != nil {
		return &ValidationError{Field: "version", Reason: err.Error()}
	}
	for _, dep := range m.Dependencies {
		if dep.TargetID == "" {
			return &ValidationError{Field: "dependencies[].target_id", Reason: "required"}
		}
		if _, err := semver.ParseRange(dep.Range); err != nil {
			return &ValidationError{Field: "dependencies[].range", Reason: err.Error()}
		}
	}
	return nil
}
