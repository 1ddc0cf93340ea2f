package pki

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

// CertificateRecord is an installed participant certificate and its key.
type CertificateRecord struct {
	ParticipantID  string
	Certificate    *x509.Certificate
	CertificatePEM []byte
	PrivateKey     *rsa.PrivateKey
	Metadata       *Metadata
	InstalledAt    time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for validation and signing.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager holds participant certificates and keys and performs the
// cryptographic operations that need them.
//
// Records are cached in memory after install or first load. Installs for the
// same participant are serialized; concurrent loads share one store read.
type Manager struct {
	certs   CertStore
	records *xsync.MapOf[string, *CertificateRecord]
	locks   *xsync.MapOf[string, *sync.Mutex]
	loads   singleflight.Group
	roots   *x509.CertPool
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Manager persisting to store.
func New(store CertStore, opts ...Option) *Manager {
	m := &Manager{
		certs:   store,
		records: xsync.NewMapOf[string, *CertificateRecord](),
		locks:   xsync.NewMapOf[string, *sync.Mutex](),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InstallCertificate validates certPEM, checks that keyPEM is its private
// key and persists both for the participant. The certificate is stored
// world-readable and the key owner-only. A failed install leaves any
// previously installed pair in effect, in memory and in the store.
func (m *Manager) InstallCertificate(ctx context.Context, certPEM, keyPEM []byte, participantID string) (*CertificateRecord, error) {
	if participantID == "" {
		return nil, errors.New("participant id is required")
	}

	v := ValidateCertificate(certPEM, m.now())
	if v.Certificate == nil || !v.Report.Compliant {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCertificate, describeFailures(v.Report))
	}

	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}
	if !keyMatches(v.Certificate, key) {
		return nil, ErrKeyMismatch
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	normalizedCert := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: v.Certificate.Raw})
	normalizedKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	mu := m.lock(participantID)
	mu.Lock()
	defer mu.Unlock()

	if err := m.storePair(ctx, participantID, normalizedCert, normalizedKey); err != nil {
		return nil, err
	}

	rec := &CertificateRecord{
		ParticipantID:  participantID,
		Certificate:    v.Certificate,
		CertificatePEM: normalizedCert,
		PrivateKey:     key,
		Metadata:       v.Metadata,
		InstalledAt:    m.now().UTC(),
	}
	m.records.Store(participantID, rec)

	m.logger.Info("installed participant certificate",
		slog.String("participant", participantID),
		slog.String("subject", v.Metadata.Subject),
		slog.String("fingerprint", v.Metadata.FingerprintSHA256),
		slog.Time("not_after", v.Metadata.NotAfter),
		slog.Int("warnings", len(v.Report.Warnings())))
	return rec, nil
}

// Certificate returns the installed record for a participant, loading it
// from the store on first use.
func (m *Manager) Certificate(ctx context.Context, participantID string) (*CertificateRecord, error) {
	if rec, ok := m.records.Load(participantID); ok {
		return rec, nil
	}

	v, err, _ := m.loads.Do(participantID, func() (any, error) {
		if rec, ok := m.records.Load(participantID); ok {
			return rec, nil
		}
		rec, err := m.load(ctx, participantID)
		if err != nil {
			return nil, err
		}
		// An install that completed during the load wins.
		actual, _ := m.records.LoadOrStore(participantID, rec)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CertificateRecord), nil
}

// Forget drops the cached record so the next access reloads from the store.
func (m *Manager) Forget(participantID string) {
	m.records.Delete(participantID)
}

func (m *Manager) load(ctx context.Context, participantID string) (*CertificateRecord, error) {
	certPEM, err := m.certs.Get(ctx, certificateName(participantID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCertificateNotFound, participantID)
		}
		return nil, fmt.Errorf("loading certificate: %w", err)
	}
	keyPEM, err := m.certs.Get(ctx, privateKeyName(participantID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: private key missing for %s", ErrCertificateNotFound, participantID)
		}
		return nil, fmt.Errorf("loading private key: %w", err)
	}

	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}
	if !keyMatches(cert, key) {
		return nil, ErrKeyMismatch
	}

	m.logger.Debug("loaded participant certificate", slog.String("participant", participantID))
	return &CertificateRecord{
		ParticipantID:  participantID,
		Certificate:    cert,
		CertificatePEM: certPEM,
		PrivateKey:     key,
		Metadata:       extractMetadata(cert),
	}, nil
}

// storePair writes the key and then the certificate. When the certificate
// cannot be written the previous key, if any, is put back so the stored pair
// keeps matching.
func (m *Manager) storePair(ctx context.Context, participantID string, certPEM, keyPEM []byte) error {
	keyName := privateKeyName(participantID)
	previousKey, err := m.certs.Get(ctx, keyName)
	switch {
	case errors.Is(err, ErrNotFound):
		previousKey = nil
	case err != nil:
		return fmt.Errorf("reading current private key: %w", err)
	}

	if err := m.persist(ctx, keyName, keyPEM, PrivateKeyMode); err != nil {
		return err
	}
	certErr := m.persist(ctx, certificateName(participantID), certPEM, CertificateMode)
	if certErr == nil {
		return nil
	}
	if previousKey == nil {
		return certErr
	}
	if err := m.persist(ctx, keyName, previousKey, PrivateKeyMode); err != nil {
		m.logger.Error("failed to restore previous private key",
			slog.String("participant", participantID),
			slog.String("error", err.Error()))
		return errors.Join(certErr, fmt.Errorf("restoring previous private key: %w", err))
	}
	return certErr
}

func (m *Manager) persist(ctx context.Context, name string, data []byte, mode fs.FileMode) error {
	if err := m.certs.Put(ctx, name, data); err != nil {
		return fmt.Errorf("storing %s: %w", name, err)
	}
	if err := m.certs.Chmod(ctx, name, mode); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", name, err)
	}
	return nil
}

func (m *Manager) lock(participantID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(participantID, &sync.Mutex{})
	return mu
}

// ParsePrivateKey decodes a PEM encoded RSA key in PKCS#1 or PKCS#8 form.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		switch k := parsed.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case *ecdsa.PrivateKey:
			return nil, fmt.Errorf("%w: ECDSA keys are not supported", ErrInvalidKey)
		default:
			return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, parsed)
		}
	case "EC PRIVATE KEY":
		return nil, fmt.Errorf("%w: ECDSA keys are not supported", ErrInvalidKey)
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block %q", ErrInvalidKey, block.Type)
	}
}

func keyMatches(cert *x509.Certificate, key *rsa.PrivateKey) bool {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false
	}
	return pub.N.Cmp(key.N) == 0 && pub.E == key.E
}
