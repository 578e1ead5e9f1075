// Package trust implements the Signature Verifier and Revocation List:
// the plugin runtime's trust gate for bundle artifacts.
package trust

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/canonicalize"
)

// OutcomeKind classifies a Signature Verification Outcome.
type OutcomeKind string

const (
	Trusted   OutcomeKind = "Trusted"
	Untrusted OutcomeKind = "Untrusted"
	Invalid   OutcomeKind = "Invalid"
	Unsigned  OutcomeKind = "Unsigned"
)

// Outcome is the result of verifying a bundle's signature manifest.
type Outcome struct {
	Kind      OutcomeKind
	SignerDN  string
	CertChain []*x509.Certificate
	Reason    string
}

// Signature is the detached signature plus certificate chain carried in
// a bundle's signature.json.
type Signature struct {
	Signature        string   // base64
	Algorithm        string   // ed25519 | rsa-pkcs1v15 | ecdsa-p256
	CertificateChain []string // PEM-encoded, leaf first
}

// Policy configures the Signature Verifier's acceptance rules.
type Policy struct {
	RequireSignature  bool
	TrustedPublishers map[string]bool // signer DN -> trusted
	TrustOnly         bool            // additionally reject Untrusted
}

// Verifier validates a bundle's embedded signature manifest against the
// artifact's content and a configured trust set.
type Verifier struct {
	policy Policy
}

// NewVerifier constructs a Verifier with the given policy.
func NewVerifier(policy Policy) *Verifier {
	return &Verifier{policy: policy}
}

// Verify validates sig (if any) against manifestBytes: the signature is
// checked over the SHA-256 of manifestBytes' JCS canonical form.
func (v *Verifier) Verify(manifestBytes []byte, sig *Signature) Outcome {
	if sig == nil || sig.Signature == "" {
		return Outcome{Kind: Unsigned}
	}

	chain, err := parseCertChain(sig.CertificateChain)
	if err != nil {
		return Outcome{Kind: Invalid, Reason: err.Error()}
	}
	if len(chain) == 0 {
		return Outcome{Kind: Invalid, Reason: "empty certificate chain"}
	}

	now := time.Now()
	for _, cert := range chain {
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			return Outcome{Kind: Invalid, Reason: fmt.Sprintf("certificate %s not temporally valid", cert.Subject.String())}
		}
	}

	sigBytes, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return Outcome{Kind: Invalid, Reason: "signature is not valid base64"}
	}

	leaf := chain[0]
	hash := sha256.Sum256(canonicalManifest(manifestBytes))
	if err := verifySignature(leaf.PublicKey, hash[:], sigBytes); err != nil {
		return Outcome{Kind: Invalid, Reason: err.Error()}
	}

	dn := leaf.Subject.String()
	if v.policy.TrustedPublishers[dn] {
		return Outcome{Kind: Trusted, SignerDN: dn, CertChain: chain}
	}
	return Outcome{Kind: Untrusted, SignerDN: dn, CertChain: chain}
}

// Acceptable reports whether an Outcome satisfies the configured policy:
// (require_signature => outcome in {Trusted, Untrusted}) and
// outcome != Invalid, additionally rejecting Untrusted when TrustOnly is
// set.
func (v *Verifier) Acceptable(o Outcome) bool {
	if o.Kind == Invalid {
		return false
	}
	if v.policy.RequireSignature && (o.Kind != Trusted && o.Kind != Untrusted) {
		return false
	}
	if v.policy.TrustOnly && o.Kind == Untrusted {
		return false
	}
	return true
}

// canonicalManifest returns the RFC 8785 canonical form of raw, the form
// a signature is computed over so that repackaging a bundle (whitespace,
// key order) never invalidates an otherwise-unchanged signature. Bytes
// that don't parse as JSON are hashed as-is; manifest.Parse already
// rejected anything malformed before this is ever called in practice.
func canonicalManifest(raw []byte) []byte {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw
	}
	canon, err := canonicalize.JCS(generic)
	if err != nil {
		return raw
	}
	return canon
}

func parseCertChain(pemChain []string) ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(pemChain))
	for _, p := range pemChain {
		block, _ := pem.Decode([]byte(p))
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM certificate")
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// verifySignature verifies a signature with the given public key,
// dispatching on its concrete type. Mirrors the dispatch the teacher
// uses for TUF role signatures.
func verifySignature(pubKey crypto.PublicKey, hash, sig []byte) error {
	switch pk := pubKey.(type) {
	case ed25519.PublicKey:
		if !ed25519.Verify(pk, hash, sig) {
			return fmt.Errorf("ed25519 signature verification failed")
		}
		return nil

	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(pk, crypto.SHA256, hash, sig); err != nil {
			return fmt.Errorf("rsa signature verification failed: %w", err)
		}
		return nil

	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pk, hash, sig) {
			return fmt.Errorf("ecdsa signature verification failed")
		}
		return nil

	default:
		return fmt.Errorf("unsupported key type: %T", pubKey)
	}
}
