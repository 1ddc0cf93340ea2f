package pki

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File modes for stored PKI material.
const (
	CertificateMode fs.FileMode = 0o644
	PrivateKeyMode  fs.FileMode = 0o600
)

// ErrNotFound is returned by a CertStore when no object exists under a name.
var ErrNotFound = errors.New("not found")

// CertStore persists certificates and private keys by name. Names use "/"
// as separator, e.g. "0088_3A5790000435968/certificate.pem".
type CertStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Chmod(ctx context.Context, name string, mode fs.FileMode) error
}

// FileStore is a CertStore backed by a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating certificate directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid store name %q", name)
	}
	return filepath.Join(s.dir, clean), nil
}

// Get reads the named object.
func (s *FileStore) Get(_ context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// Put writes the object through a temporary file and renames it into place,
// so readers never observe a partial write. New objects are owner-only
// until Chmod widens them.
func (s *FileStore) Put(_ context.Context, name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(PrivateKeyMode); err != nil {
		tmp.Close()
		return fmt.Errorf("setting mode on %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("renaming %s: %w", name, err)
	}
	return nil
}

// Chmod sets the permission bits of the named object.
func (s *FileStore) Chmod(_ context.Context, name string, mode fs.FileMode) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Chmod(p, mode); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	return nil
}

// participantDir maps a participant id to a store directory name. Letters,
// digits and '-' are kept; every other byte becomes "_XX" with XX its upper
// case hex value, so distinct ids never share a directory.
func participantDir(participantID string) string {
	if participantID == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(participantID); i++ {
		c := participantID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02X", c)
		}
	}
	return b.String()
}

func certificateName(participantID string) string {
	return participantDir(participantID) + "/certificate.pem"
}

func privateKeyName(participantID string) string {
	return participantDir(participantID) + "/private_key.pem"
}
