package pki

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/sirosfoundation/go-peppol/pkg/compliance"
)

// ExpiryWarningWindow is how far ahead of expiry a certificate is flagged.
const ExpiryWarningWindow = 30 * 24 * time.Hour

// MinKeySize is the minimum accepted RSA modulus size.
const MinKeySize = 2048

// Check names reported by ValidateCertificate.
const (
	CheckParseable        = "parseable"
	CheckValidityPeriod   = "validity_period"
	CheckExpiry           = "expiry"
	CheckKeyUsage         = "key_usage"
	CheckExtendedKeyUsage = "extended_key_usage"
	CheckKeySize          = "key_size"
)

// Extension describes a certificate extension.
type Extension struct {
	OID      string `json:"oid"`
	Name     string `json:"name,omitempty"`
	Critical bool   `json:"critical"`
	Value    string `json:"value"`
}

// Metadata is the descriptive data extracted from a certificate.
type Metadata struct {
	Subject            string      `json:"subject"`
	Issuer             string      `json:"issuer"`
	SerialNumber       string      `json:"serial_number"`
	NotBefore          time.Time   `json:"not_before"`
	NotAfter           time.Time   `json:"not_after"`
	FingerprintSHA256  string      `json:"fingerprint_sha256"`
	SignatureAlgorithm string      `json:"signature_algorithm"`
	PublicKeyAlgorithm string      `json:"public_key_algorithm"`
	KeySize            int         `json:"key_size"`
	KeyUsage           []string    `json:"key_usage,omitempty"`
	ExtKeyUsage        []string    `json:"ext_key_usage,omitempty"`
	DNSNames           []string    `json:"dns_names,omitempty"`
	Extensions         []Extension `json:"extensions"`
}

// CertificateValidation is the result of ValidateCertificate.
type CertificateValidation struct {
	Report   *compliance.Report
	Metadata *Metadata
	// Certificate is nil when the input could not be parsed.
	Certificate *x509.Certificate
}

// ValidateCertificate checks a PEM or DER certificate at the given instant.
// Metadata is returned whenever the certificate parses, regardless of the
// outcome of the checks. The result depends only on data and now.
func ValidateCertificate(data []byte, now time.Time) *CertificateValidation {
	r := compliance.NewReport()
	res := &CertificateValidation{Report: r}

	cert, err := ParseCertificate(data)
	if err != nil {
		r.Fail(CheckParseable, err.Error(), "Supply a PEM or DER encoded X.509 certificate")
		r.Finalize()
		return res
	}
	r.Pass(CheckParseable, "")
	res.Certificate = cert
	res.Metadata = extractMetadata(cert)

	switch {
	case now.Before(cert.NotBefore):
		r.Fail(CheckValidityPeriod, "certificate is not yet valid", "Wait until "+cert.NotBefore.UTC().Format(time.RFC3339)+" or obtain a current certificate")
	case now.After(cert.NotAfter):
		r.Fail(CheckValidityPeriod, "certificate has expired", "Renew the certificate")
	default:
		r.Pass(CheckValidityPeriod, "")
	}

	if remaining := cert.NotAfter.Sub(now); remaining > 0 && remaining <= ExpiryWarningWindow {
		days := int(remaining.Hours() / 24)
		r.Warn(CheckExpiry, fmt.Sprintf("certificate expires in %d days", days), "Schedule certificate renewal")
	} else if remaining > 0 {
		r.Pass(CheckExpiry, "")
	}

	switch {
	case !hasExtension(cert, oidKeyUsage):
		r.Warn(CheckKeyUsage, "key usage extension missing", "Request a certificate with the digitalSignature key usage")
	case cert.KeyUsage&x509.KeyUsageDigitalSignature == 0:
		r.Fail(CheckKeyUsage, "key usage does not include digitalSignature", "Request a certificate with the digitalSignature key usage")
	default:
		r.Pass(CheckKeyUsage, "")
	}

	if hasExtKeyUsage(cert, x509.ExtKeyUsageClientAuth) && hasExtKeyUsage(cert, x509.ExtKeyUsageServerAuth) {
		r.Pass(CheckExtendedKeyUsage, "")
	} else {
		r.Warn(CheckExtendedKeyUsage, "clientAuth and serverAuth extended key usages expected",
			"Request a certificate with clientAuth and serverAuth extended key usage")
	}

	if _, ok := cert.PublicKey.(*rsa.PublicKey); ok && res.Metadata.KeySize >= MinKeySize {
		r.Pass(CheckKeySize, "")
	} else {
		r.Fail(CheckKeySize, fmt.Sprintf("%s key of %d bits, at least %d bit RSA required",
			res.Metadata.PublicKeyAlgorithm, res.Metadata.KeySize, MinKeySize),
			fmt.Sprintf("Use an RSA key of at least %d bits", MinKeySize))
	}

	r.Finalize()
	return res
}

// ParseCertificate accepts a PEM block or raw DER.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidCertificate, block.Type)
		}
		data = block.Bytes
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return cert, nil
}

// Fingerprint returns the hex SHA-256 fingerprint of the certificate.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

func extractMetadata(cert *x509.Certificate) *Metadata {
	md := &Metadata{
		Subject:            cert.Subject.String(),
		Issuer:             cert.Issuer.String(),
		SerialNumber:       cert.SerialNumber.Text(16),
		NotBefore:          cert.NotBefore.UTC(),
		NotAfter:           cert.NotAfter.UTC(),
		FingerprintSHA256:  Fingerprint(cert),
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		PublicKeyAlgorithm: cert.PublicKeyAlgorithm.String(),
		KeySize:            keySize(cert.PublicKey),
		KeyUsage:           keyUsageNames(cert.KeyUsage),
		DNSNames:           cert.DNSNames,
		Extensions:         make([]Extension, 0, len(cert.Extensions)),
	}
	for _, u := range cert.ExtKeyUsage {
		md.ExtKeyUsage = append(md.ExtKeyUsage, extKeyUsageName(u))
	}
	for _, ext := range cert.Extensions {
		md.Extensions = append(md.Extensions, Extension{
			OID:      ext.Id.String(),
			Name:     extensionNames[ext.Id.String()],
			Critical: ext.Critical,
			Value:    hex.EncodeToString(ext.Value),
		})
	}
	return md
}

var extensionNames = map[string]string{
	oidKeyUsage.String():        "keyUsage",
	oidExtKeyUsage.String():     "extKeyUsage",
	oidSubjectAltName.String():  "subjectAltName",
	oidBasicConstraint.String(): "basicConstraints",
	oidSubjectKeyID.String():    "subjectKeyIdentifier",
	oidAuthorityKeyID.String():  "authorityKeyIdentifier",
}

func hasExtension(cert *x509.Certificate, oid []int) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return true
		}
	}
	return false
}

func hasExtKeyUsage(cert *x509.Certificate, usage x509.ExtKeyUsage) bool {
	for _, u := range cert.ExtKeyUsage {
		if u == usage {
			return true
		}
	}
	return false
}

func keySize(pub any) int {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k.N.BitLen()
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	case ed25519.PublicKey:
		return 256
	default:
		return 0
	}
}

func keyUsageNames(ku x509.KeyUsage) []string {
	names := []string{
		"digitalSignature", "nonRepudiation", "keyEncipherment", "dataEncipherment",
		"keyAgreement", "keyCertSign", "cRLSign", "encipherOnly", "decipherOnly",
	}
	var out []string
	for i, n := range names {
		if ku&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	return out
}

func extKeyUsageName(u x509.ExtKeyUsage) string {
	switch u {
	case x509.ExtKeyUsageClientAuth:
		return "clientAuth"
	case x509.ExtKeyUsageServerAuth:
		return "serverAuth"
	case x509.ExtKeyUsageCodeSigning:
		return "codeSigning"
	case x509.ExtKeyUsageEmailProtection:
		return "emailProtection"
	case x509.ExtKeyUsageTimeStamping:
		return "timeStamping"
	case x509.ExtKeyUsageOCSPSigning:
		return "OCSPSigning"
	case x509.ExtKeyUsageAny:
		return "any"
	default:
		return fmt.Sprintf("unknown(%d)", u)
	}
}

func describeFailures(r *compliance.Report) string {
	var parts []string
	for _, c := range r.Checks {
		if c.Status == compliance.StatusFail {
			parts = append(parts, c.Name+": "+c.Message)
		}
	}
	return strings.Join(parts, "; ")
}
