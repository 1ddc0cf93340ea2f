package pki

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// HashAlgorithm names the digest used for raw message signatures.
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "SHA256"
	SHA384 HashAlgorithm = "SHA384"
	SHA512 HashAlgorithm = "SHA512"
)

// verificationOrder is the sequence VerifySignature tries.
var verificationOrder = []HashAlgorithm{SHA256, SHA384, SHA512}

func (a HashAlgorithm) hash() (crypto.Hash, error) {
	switch a {
	case SHA256:
		return crypto.SHA256, nil
	case SHA384:
		return crypto.SHA384, nil
	case SHA512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(a))
	}
}

// Signature is a detached RSA PKCS#1 v1.5 signature over a message.
type Signature struct {
	Value                  []byte        `json:"signature"`
	Algorithm              HashAlgorithm `json:"algorithm"`
	CertificateFingerprint string        `json:"certificate_fingerprint"`
	// ContentHash is the hex digest of the signed data under Algorithm.
	ContentHash string    `json:"content_hash"`
	Timestamp   time.Time `json:"timestamp"`
}

// VerificationResult reports the outcome of VerifySignature.
type VerificationResult struct {
	Valid     bool          `json:"valid"`
	Algorithm HashAlgorithm `json:"algorithm,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// SignMessage signs data with the participant's private key. An empty alg
// selects SHA256.
func (m *Manager) SignMessage(ctx context.Context, data []byte, participantID string, alg HashAlgorithm) (*Signature, error) {
	if alg == "" {
		alg = SHA256
	}
	h, err := alg.hash()
	if err != nil {
		return nil, err
	}

	rec, err := m.Certificate(ctx, participantID)
	if err != nil {
		return nil, err
	}

	hasher := h.New()
	hasher.Write(data)
	digest := hasher.Sum(nil)

	sig, err := rsa.SignPKCS1v15(rand.Reader, rec.PrivateKey, h, digest)
	if err != nil {
		return nil, fmt.Errorf("signing message: %w", err)
	}

	m.logger.Debug("signed message",
		slog.String("participant", participantID),
		slog.String("algorithm", string(alg)),
		slog.Int("bytes", len(data)))

	return &Signature{
		Value:                  sig,
		Algorithm:              alg,
		CertificateFingerprint: Fingerprint(rec.Certificate),
		ContentHash:            hex.EncodeToString(digest),
		Timestamp:              m.now().UTC(),
	}, nil
}

// VerifySignature checks signature over data against the certificate's RSA
// key, trying SHA256, SHA384 and SHA512 in turn.
func (m *Manager) VerifySignature(data, signature []byte, cert *x509.Certificate) *VerificationResult {
	return VerifySignature(data, signature, cert)
}

// VerifySignature is the stateless form of (*Manager).VerifySignature.
func VerifySignature(data, signature []byte, cert *x509.Certificate) *VerificationResult {
	if cert == nil {
		return &VerificationResult{Error: "certificate is required"}
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return &VerificationResult{Error: fmt.Sprintf("unsupported public key type %T", cert.PublicKey)}
	}

	for _, alg := range verificationOrder {
		h, _ := alg.hash()
		hasher := h.New()
		hasher.Write(data)
		if rsa.VerifyPKCS1v15(pub, h, hasher.Sum(nil), signature) == nil {
			return &VerificationResult{Valid: true, Algorithm: alg}
		}
	}
	return &VerificationResult{Error: "signature does not verify with SHA256, SHA384 or SHA512"}
}

// GenerateCertificateRequest creates a key pair and CSR for the participant
// to submit to a CA. See the package function of the same name.
func (m *Manager) GenerateCertificateRequest(info SubjectInfo, keySize int) (*CertificateRequest, error) {
	req, err := GenerateCertificateRequest(info, keySize)
	if err != nil {
		return nil, err
	}
	m.logger.Info("generated certificate request", slog.String("common_name", info.CommonName))
	return req, nil
}

// ValidateCertificate validates data at the manager's current time.
func (m *Manager) ValidateCertificate(data []byte) *CertificateValidation {
	return ValidateCertificate(data, m.now())
}
