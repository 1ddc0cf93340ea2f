package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"net"
	"net/url"
)

// DefaultKeySize is the RSA modulus size used for new key pairs.
const DefaultKeySize = 2048

var (
	oidKeyUsage        = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtKeyUsage     = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidClientAuth      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}
	oidServerAuth      = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}
	oidSubjectAltName  = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidBasicConstraint = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidSubjectKeyID    = asn1.ObjectIdentifier{2, 5, 29, 14}
	oidAuthorityKeyID  = asn1.ObjectIdentifier{2, 5, 29, 35}
)

// SubjectInfo describes the subject of a certificate request.
type SubjectInfo struct {
	CommonName         string
	Organization       string
	OrganizationalUnit string
	Country            string
	Province           string
	Locality           string
	EmailAddress       string
	// DNSNames, IPAddresses and URIs become SubjectAltName entries.
	DNSNames    []string
	IPAddresses []string
	URIs        []string
}

// CertificateRequest is a PEM encoded CSR and the private key it was signed with.
type CertificateRequest struct {
	CSR           []byte
	PrivateKeyPEM []byte
	PrivateKey    *rsa.PrivateKey
}

// GenerateCertificateRequest creates an RSA key pair and a self-signed CSR
// requesting digitalSignature, nonRepudiation and keyEncipherment key usage
// plus clientAuth and serverAuth extended key usage, both critical.
func GenerateCertificateRequest(info SubjectInfo, keySize int) (*CertificateRequest, error) {
	if keySize == 0 {
		keySize = DefaultKeySize
	}
	if keySize < DefaultKeySize {
		return nil, fmt.Errorf("%w: key size %d is below %d bits", ErrInvalidKey, keySize, DefaultKeySize)
	}
	if info.CommonName == "" {
		return nil, fmt.Errorf("common name is required")
	}

	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key: %w", err)
	}

	extensions, err := requestExtensions()
	if err != nil {
		return nil, err
	}

	tmpl := &x509.CertificateRequest{
		Subject:            subjectName(info),
		SignatureAlgorithm: x509.SHA256WithRSA,
		DNSNames:           info.DNSNames,
		ExtraExtensions:    extensions,
	}
	if info.EmailAddress != "" {
		tmpl.EmailAddresses = []string{info.EmailAddress}
	}
	for _, ip := range info.IPAddresses {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return nil, fmt.Errorf("invalid IP address %q", ip)
		}
		tmpl.IPAddresses = append(tmpl.IPAddresses, parsed)
	}
	for _, u := range info.URIs {
		parsed, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("invalid URI %q: %w", u, err)
		}
		tmpl.URIs = append(tmpl.URIs, parsed)
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, tmpl, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate request: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding private key: %w", err)
	}

	return &CertificateRequest{
		CSR:           pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}),
		PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		PrivateKey:    key,
	}, nil
}

func subjectName(info SubjectInfo) pkix.Name {
	name := pkix.Name{CommonName: info.CommonName}
	if info.Organization != "" {
		name.Organization = []string{info.Organization}
	}
	if info.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{info.OrganizationalUnit}
	}
	if info.Country != "" {
		name.Country = []string{info.Country}
	}
	if info.Province != "" {
		name.Province = []string{info.Province}
	}
	if info.Locality != "" {
		name.Locality = []string{info.Locality}
	}
	return name
}

func requestExtensions() ([]pkix.Extension, error) {
	// digitalSignature(0), nonRepudiation(1), keyEncipherment(2)
	ku, err := asn1.Marshal(asn1.BitString{Bytes: []byte{0xE0}, BitLength: 3})
	if err != nil {
		return nil, fmt.Errorf("encoding key usage: %w", err)
	}
	eku, err := asn1.Marshal([]asn1.ObjectIdentifier{oidClientAuth, oidServerAuth})
	if err != nil {
		return nil, fmt.Errorf("encoding extended key usage: %w", err)
	}
	return []pkix.Extension{
		{Id: oidKeyUsage, Critical: true, Value: ku},
		{Id: oidExtKeyUsage, Critical: true, Value: eku},
	}, nil
}
