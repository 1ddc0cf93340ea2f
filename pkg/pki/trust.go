package pki

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"

	"github.com/sirosfoundation/go-peppol/pkg/message"
)

// WithTrustAnchors sets the certificates that signer certificates must chain
// to. Without anchors VerifySigner rejects every certificate.
func WithTrustAnchors(anchors ...*x509.Certificate) Option {
	return func(m *Manager) {
		if len(anchors) == 0 {
			return
		}
		if m.roots == nil {
			m.roots = x509.NewCertPool()
		}
		for _, c := range anchors {
			m.roots.AddCert(c)
		}
	}
}

// LoadTrustAnchors reads every CERTIFICATE block of the given PEM files.
func LoadTrustAnchors(paths ...string) ([]*x509.Certificate, error) {
	var anchors []*x509.Certificate
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading trust anchors: %w", err)
		}
		n := 0
		for {
			var block *pem.Block
			block, data = pem.Decode(data)
			if block == nil {
				break
			}
			if block.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCertificate, path, err)
			}
			anchors = append(anchors, cert)
			n++
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidCertificate, path)
		}
	}
	return anchors, nil
}

// VerifySigner checks that cert passes ValidateCertificate and chains to a
// trust anchor at the manager's current time.
func (m *Manager) VerifySigner(cert *x509.Certificate) error {
	v := ValidateCertificate(cert.Raw, m.now())
	if !v.Report.Compliant {
		return fmt.Errorf("%w: %s", ErrInvalidCertificate, describeFailures(v.Report))
	}
	if m.roots == nil {
		return fmt.Errorf("%w: no trust anchors configured", ErrUntrustedCertificate)
	}
	_, err := cert.Verify(x509.VerifyOptions{
		Roots:       m.roots,
		CurrentTime: m.now(),
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedCertificate, err)
	}
	return nil
}

// VerifyTrustedEnvelope verifies the signature of envelopeXML with the
// certificate from its BinarySecurityToken and checks that certificate with
// VerifySigner. It returns the signer certificate.
func (m *Manager) VerifyTrustedEnvelope(envelopeXML []byte, attachments []Attachment) (*x509.Certificate, error) {
	doc, err := message.ParseDocument(envelopeXML)
	if err != nil {
		return nil, err
	}
	cert, err := embeddedCertificate(doc.Root())
	if err != nil {
		return nil, err
	}
	if err := m.VerifySigner(cert); err != nil {
		m.logger.Warn("untrusted envelope signer",
			slog.String("subject", cert.Subject.String()),
			slog.String("fingerprint", Fingerprint(cert)),
			slog.String("error", err.Error()))
		return nil, err
	}
	if err := VerifyEnvelope(envelopeXML, cert, attachments); err != nil {
		return nil, err
	}
	return cert, nil
}
