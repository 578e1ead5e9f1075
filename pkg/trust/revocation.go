package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
)

// RevokedEntry is one revoked signer-certificate fingerprint.
type RevokedEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Reason      string    `json:"reason,omitempty"`
	RevokedAt   time.Time `json:"revoked_at"`
}

type revocationFile struct {
	Version int            `json:"version"`
	Updated time.Time      `json:"updated"`
	Revoked []RevokedEntry `json:"revoked"`
}

// RevocationList holds fingerprint revocation records and answers
// is-revoked queries. Safe for concurrent use.
type RevocationList struct {
	mu      sync.RWMutex
	version int
	updated time.Time
	entries map[string]RevokedEntry // normalized fingerprint -> entry
}

// NewEmptyRevocationList returns an empty, version-0 list, the same
// value Load returns when the file is absent.
func NewEmptyRevocationList() *RevocationList {
	return &RevocationList{entries: make(map[string]RevokedEntry)}
}

// Load reads a revocation list JSON file. A missing file is not an
// error: it returns an empty list at version 0. A malformed file, or one
// missing the required "version" field, returns a *hostapi.RevocationError.
func Load(path string) (*RevocationList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewEmptyRevocationList(), nil
		}
		return nil, &hostapi.RevocationError{Reason: err.Error()}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &hostapi.RevocationError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	if _, ok := raw["version"]; !ok {
		return nil, &hostapi.RevocationError{Reason: "missing required field: version"}
	}

	var parsed revocationFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &hostapi.RevocationError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	rl := &RevocationList{
		version: parsed.Version,
		updated: parsed.Updated,
		entries: make(map[string]RevokedEntry, len(parsed.Revoked)),
	}
	for _, e := range parsed.Revoked {
		if !strings.HasPrefix(strings.ToLower(e.Fingerprint), "sha256:") {
			return nil, &hostapi.RevocationError{Reason: fmt.Sprintf("entry fingerprint %q does not start with sha256:", e.Fingerprint)}
		}
		norm := strings.ToLower(e.Fingerprint)
		e.Fingerprint = norm
		rl.entries[norm] = e
	}
	return rl, nil
}

// Save serializes the list to path as JSON.
func (rl *RevocationList) Save(path string) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	entries := make([]RevokedEntry, 0, len(rl.entries))
	for _, e := range rl.entries {
		entries = append(entries, e)
	}
	out := revocationFile{Version: rl.version, Updated: rl.updated, Revoked: entries}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return &hostapi.RevocationError{Reason: err.Error()}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &hostapi.RevocationError{Reason: err.Error()}
	}
	return nil
}

// Revoke adds or replaces a revocation entry, bumping the list's
// version and updated timestamp.
func (rl *RevocationList) Revoke(fingerprint, reason string, revokedAt time.Time) error {
	norm := strings.ToLower(fingerprint)
	if !strings.HasPrefix(norm, "sha256:") {
		return fmt.Errorf("fingerprint %q does not start with sha256:", fingerprint)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.entries[norm] = RevokedEntry{Fingerprint: norm, Reason: reason, RevokedAt: revokedAt}
	rl.version++
	rl.updated = revokedAt
	return nil
}

// IsRevoked reports whether fingerprint (case-insensitive) is on the
// list.
func (rl *RevocationList) IsRevoked(fingerprint string) bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	_, ok := rl.entries[strings.ToLower(fingerprint)]
	return ok
}

// EntryFor returns the revocation entry for fingerprint, if any.
func (rl *RevocationList) EntryFor(fingerprint string) (RevokedEntry, bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	e, ok := rl.entries[strings.ToLower(fingerprint)]
	return e, ok
}

// Version returns the list's version counter.
func (rl *RevocationList) Version() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.version
}

// Updated returns the list's last-updated timestamp.
func (rl *RevocationList) Updated() time.Time {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.updated
}

// ComputeFingerprint returns the normalized "sha256:<hex64>" fingerprint
// of data. A nil input is a NullArgument error.
func ComputeFingerprint(data []byte) (string, error) {
	if data == nil {
		return "", &hostapi.NullArgumentError{Name: "data"}
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
