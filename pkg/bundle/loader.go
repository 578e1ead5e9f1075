package bundle

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/manifest"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/semver"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/trust"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// BaseDir is scanned for *.zip bundle archives.
	BaseDir string
	// HostVersion gates discover_compatible.
	HostVersion string
	// Verifier classifies a bundle's embedded signature.
	Verifier *trust.Verifier
	// Revocations is consulted after a signature passes policy.
	Revocations *trust.RevocationList
	// HostAPIPrefixes seeds each bundle's namespace allow-list.
	HostAPIPrefixes []string
}

// Loader discovers bundle artifacts under a configured directory,
// gates them through the trust verifier and revocation list, and
// instantiates each one's isolated Namespace.
type Loader struct {
	mu              sync.Mutex
	baseDir         string
	hostVersion     string
	verifier        *trust.Verifier
	revocations     *trust.RevocationList
	hostAPIPrefixes []string
}

// NewLoader constructs a Loader from cfg.
func NewLoader(cfg LoaderConfig) *Loader {
	prefixes := cfg.HostAPIPrefixes
	if prefixes == nil {
		prefixes = append([]string{}, DefaultHostAPIPrefixes...)
	}
	revocations := cfg.Revocations
	if revocations == nil {
		revocations = trust.NewEmptyRevocationList()
	}
	return &Loader{
		baseDir:         cfg.BaseDir,
		hostVersion:     cfg.HostVersion,
		verifier:        cfg.Verifier,
		revocations:     revocations,
		hostAPIPrefixes: prefixes,
	}
}

// IsHostAPI reports whether symbol is on the loader's configured
// host-API allow-list (applied to every bundle namespace it creates).
func (l *Loader) IsHostAPI(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, prefix := range l.hostAPIPrefixes {
		if strings.HasPrefix(symbol, prefix) {
			return true
		}
	}
	return false
}

// AddHostAPIPrefix registers prefix on every namespace the loader
// creates from this point forward.
func (l *Loader) AddHostAPIPrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hostAPIPrefixes = append(l.hostAPIPrefixes, prefix)
}

// IsVersionCompatible implements §4.2's "current >= min" host-version
// gate.
func IsVersionCompatible(current, min string) bool {
	return semver.IsVersionCompatible(current, min)
}

// DiscoverAll scans baseDir for bundle archives and returns one
// Container per bundle that passes the signature/revocation gate, each
// in state Discovered. Bundles that fail the gate are logged and
// omitted.
func (l *Loader) DiscoverAll() ([]*Container, error) {
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bundle: failed to scan %s: %w", l.baseDir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		paths = append(paths, filepath.Join(l.baseDir, e.Name()))
	}
	sort.Strings(paths)

	containers := make([]*Container, 0, len(paths))
	for _, p := range paths {
		c, err := l.loadOne(p)
		if err != nil {
			log.Printf("[WARN] bundle: rejecting %s: %v", p, err)
			continue
		}
		containers = append(containers, c)
	}
	return containers, nil
}

// DiscoverCompatible is DiscoverAll filtered to bundles whose
// min_host_version the configured host version satisfies.
func (l *Loader) DiscoverCompatible() ([]*Container, error) {
	all, err := l.DiscoverAll()
	if err != nil {
		return nil, err
	}
	compatible := make([]*Container, 0, len(all))
	for _, c := range all {
		if IsVersionCompatible(l.hostVersion, c.Descriptor.MinHostVersion) {
			compatible = append(compatible, c)
		}
	}
	return compatible, nil
}

// LoadArtifact re-reads and trust-gates a single bundle archive at path,
// returning a fresh Container in state Discovered. Used by the Hot
// Reloader to pick up a changed artifact without rescanning the whole
// base directory.
func (l *Loader) LoadArtifact(path string) (*Container, error) {
	return l.loadOne(path)
}

// Reload forces a fresh scan; behaviourally identical to DiscoverAll
// (there is no cache to invalidate), kept as a distinct named operation
// per spec.md §4.2.
func (l *Loader) Reload() ([]*Container, error) {
	return l.DiscoverAll()
}

// loadOne reads, validates, and trust-gates a single bundle archive.
func (l *Loader) loadOne(path string) (*Container, error) {
	archive, err := ReadArchive(path)
	if err != nil {
		return nil, err
	}

	if l.verifier != nil {
		outcome := l.verifier.Verify(archive.ManifestBytes, archive.Signature)
		if !l.verifier.Acceptable(outcome) {
			kind := hostapi.InvalidSignature
			switch outcome.Kind {
			case trust.Unsigned:
				kind = hostapi.UnsignedBundle
			case trust.Untrusted:
				kind = hostapi.UntrustedPublisher
			}
			return nil, &hostapi.SecurityViolationError{ID: archive.Manifest.ID, Kind: kind, Message: outcome.Reason}
		}

		if len(outcome.CertChain) > 0 {
			fingerprint, err := trust.ComputeFingerprint(outcome.CertChain[0].Raw)
			if err != nil {
				return nil, err
			}
			if entry, revoked := l.revocations.EntryFor(fingerprint); revoked {
				return nil, &hostapi.SecurityViolationError{
					ID:      archive.Manifest.ID,
					Kind:    hostapi.Revoked,
					Message: fmt.Sprintf("%s: %s (revoked at %s)", fingerprint, entry.Reason, entry.RevokedAt),
				}
			}
		}
	}

	container := buildContainer(archive.Manifest)

	ns, err := newNamespace(context.Background(), archive.Wasm, l.hostAPIPrefixesSnapshot())
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", archive.Manifest.ID, err)
	}
	container.Handle = ns
	if len(archive.Wasm) > 0 {
		container.Instance = newWasmInstance(ns)
	}

	return container, nil
}

func (l *Loader) hostAPIPrefixesSnapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.hostAPIPrefixes...)
}

func buildContainer(m manifest.Manifest) *Container {
	deps := make([]Dependency, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		deps = append(deps, Dependency{TargetID: d.TargetID, Range: d.Range, Optional: d.Optional})
	}

	perms := make([]hostapi.Permission, 0, len(m.Permissions))
	for _, name := range m.Permissions {
		if p, ok := hostapi.ParsePermission(name); ok {
			perms = append(perms, p)
		}
	}

	descriptor := Descriptor{
		ID:             m.ID,
		HumanName:      m.HumanName,
		Version:        m.Version,
		Summary:        m.Summary,
		Author:         m.Author,
		MinHostVersion: m.MinHostVersion,
		Capabilities:   m.Capabilities,
	}
	return NewContainer(descriptor, deps, perms)
}

// Close releases a container's namespace.
func Close(c *Container) error {
	if c.Handle == nil {
		return nil
	}
	return c.Handle.Close(context.Background())
}
