package bundle

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBundleArchive(t *testing.T, dir, name, manifestJSON string) string {
	t.Helper()
	path := filepath.Join(dir, name+".zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("manifest.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(manifestJSON))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func TestLoader_DiscoverAll_NoVerifier(t *testing.T) {
	dir := t.TempDir()
	writeBundleArchive(t, dir, "a", `{"id":"com.example.a","version":"1.0.0"}`)
	writeBundleArchive(t, dir, "b", `{"id":"com.example.b","version":"2.0.0","min_host_version":"1.5.0"}`)

	loader := NewLoader(LoaderConfig{BaseDir: dir, HostVersion: "1.0.0"})
	containers, err := loader.DiscoverAll()
	require.NoError(t, err)
	require.Len(t, containers, 2)
	for _, c := range containers {
		assert.Equal(t, Discovered, c.State)
	}
}

func TestLoader_DiscoverCompatible_FiltersByHostVersion(t *testing.T) {
	dir := t.TempDir()
	writeBundleArchive(t, dir, "a", `{"id":"com.example.a","version":"1.0.0","min_host_version":"1.0.0"}`)
	writeBundleArchive(t, dir, "b", `{"id":"com.example.b","version":"1.0.0","min_host_version":"9.0.0"}`)

	loader := NewLoader(LoaderConfig{BaseDir: dir, HostVersion: "1.0.0"})
	containers, err := loader.DiscoverCompatible()
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "com.example.a", containers[0].Descriptor.ID)
}

func TestLoader_DiscoverAll_MissingDirIsEmpty(t *testing.T) {
	loader := NewLoader(LoaderConfig{BaseDir: filepath.Join(t.TempDir(), "absent"), HostVersion: "1.0.0"})
	containers, err := loader.DiscoverAll()
	require.NoError(t, err)
	assert.Empty(t, containers)
}

func TestLoader_DiscoverAll_RejectsMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeBundleArchive(t, dir, "bad", `not json`)
	writeBundleArchive(t, dir, "good", `{"id":"com.example.good","version":"1.0.0"}`)

	loader := NewLoader(LoaderConfig{BaseDir: dir, HostVersion: "1.0.0"})
	containers, err := loader.DiscoverAll()
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "com.example.good", containers[0].Descriptor.ID)
}

func TestLoader_HostAPIPrefixes(t *testing.T) {
	loader := NewLoader(LoaderConfig{BaseDir: t.TempDir(), HostVersion: "1.0.0"})
	assert.True(t, loader.IsHostAPI("plugin_api.logging"))
	assert.False(t, loader.IsHostAPI("custom.symbol"))

	loader.AddHostAPIPrefix("custom.")
	assert.True(t, loader.IsHostAPI("custom.symbol"))
}

func TestLoader_PermissionsParsedFromManifest(t *testing.T) {
	dir := t.TempDir()
	writeBundleArchive(t, dir, "a", `{"id":"com.example.a","version":"1.0.0","permissions":["DATA_READ","NOT_A_PERMISSION"]}`)

	loader := NewLoader(LoaderConfig{BaseDir: dir, HostVersion: "1.0.0"})
	containers, err := loader.DiscoverAll()
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, []hostapi.Permission{hostapi.DataRead}, containers[0].Permissions)
}
