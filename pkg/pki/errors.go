package pki

import "errors"

var (
	// ErrInvalidCertificate is returned when a certificate cannot be parsed or
	// fails validation at install time.
	ErrInvalidCertificate = errors.New("invalid certificate")
	// ErrInvalidKey is returned when a private key cannot be parsed or is unsupported.
	ErrInvalidKey = errors.New("invalid private key")
	// ErrKeyMismatch is returned when a private key does not belong to the certificate.
	ErrKeyMismatch = errors.New("private key does not match certificate")
	// ErrCertificateNotFound is returned when no certificate is installed for a participant.
	ErrCertificateNotFound = errors.New("no certificate installed for participant")
	// ErrUnsupportedAlgorithm is returned for hash algorithms outside SHA-256/384/512.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	// ErrInvalidToken is returned when a security token cannot be created or decoded.
	ErrInvalidToken = errors.New("invalid security token")
	// ErrSignatureInvalid is returned when an XML signature does not verify.
	ErrSignatureInvalid = errors.New("signature verification failed")
	// ErrUntrustedCertificate is returned when a signer certificate does not
	// chain to a configured trust anchor.
	ErrUntrustedCertificate = errors.New("certificate is not trusted")
)
