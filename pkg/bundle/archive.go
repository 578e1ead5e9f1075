package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/manifest"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/trust"
)

// Archive is the parsed contents of a bundle artifact: its manifest, an
// optional detached signature, and an optional compiled WASM module.
type Archive struct {
	Manifest  manifest.Manifest
	Signature *trust.Signature
	Wasm      []byte

	// ManifestBytes is the raw manifest.json payload. The verifier checks
	// the signature against the SHA-256 of its JCS canonical form, not
	// against these bytes as stored.
	ManifestBytes []byte
}

type signatureFile struct {
	Signature        string   `json:"signature"`
	Algorithm        string   `json:"algorithm"`
	CertificateChain []string `json:"certificate_chain"`
}

// ReadArchive opens the zip archive at path and parses its
// manifest.json, optional signature.json, and optional main.wasm.
func ReadArchive(path string) (*Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle archive %s: %w", path, err)
	}
	defer r.Close()

	archive := &Archive{}

	manifestBytes, err := readZipFile(&r.Reader, "manifest.json")
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	m, err := manifest.Parse(manifestBytes)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	archive.Manifest = m
	archive.ManifestBytes = manifestBytes

	if sigBytes, err := readZipFile(&r.Reader, "signature.json"); err == nil {
		var sf signatureFile
		if err := json.Unmarshal(sigBytes, &sf); err != nil {
			return nil, fmt.Errorf("bundle %s: malformed signature.json: %w", path, err)
		}
		archive.Signature = &trust.Signature{
			Signature:        sf.Signature,
			Algorithm:        sf.Algorithm,
			CertificateChain: sf.CertificateChain,
		}
	}

	if wasmBytes, err := readZipFile(&r.Reader, "main.wasm"); err == nil {
		archive.Wasm = wasmBytes
	}

	return archive, nil
}

func readZipFile(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("%s not present in archive", name)
}
