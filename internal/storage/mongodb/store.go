// Package mongodb implements the PKI certificate store using MongoDB
package mongodb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-peppol/pkg/pki"
)

// ErrChecksumMismatch is returned when a stored object no longer matches the
// checksum recorded at write time.
var ErrChecksumMismatch = errors.New("stored object checksum mismatch")

// Store implements pki.CertStore using MongoDB
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	objects *mongo.Collection
	now     func() time.Time
}

var _ pki.CertStore = (*Store)(nil)

// Config holds MongoDB connection settings
type Config struct {
	URI        string
	Database   string
	Collection string
}

type objectDoc struct {
	Name      string    `bson:"name"`
	Data      []byte    `bson:"data"`
	Mode      uint32    `bson:"mode"`
	Checksum  string    `bson:"sha256"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewStore connects to MongoDB and prepares the object collection
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	s := New(client, cfg.Database, cfg.Collection)
	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}
	return s, nil
}

// New wraps an existing client. Empty names fall back to "peppol" and
// "pki_objects".
func New(client *mongo.Client, database, collection string) *Store {
	if database == "" {
		database = "peppol"
	}
	if collection == "" {
		collection = "pki_objects"
	}
	db := client.Database(database)
	return &Store{
		client:  client,
		db:      db,
		objects: db.Collection(collection),
		now:     time.Now,
	}
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.objects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Get returns the named object, verifying its checksum.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	var doc objectDoc
	err := s.objects.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", pki.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if checksum(doc.Data) != doc.Checksum {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, name)
	}
	return doc.Data, nil
}

// Put replaces the named object. Like the file store, a written object is
// owner-only until Chmod widens it.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	doc := objectDoc{
		Name:      name,
		Data:      data,
		Mode:      uint32(pki.PrivateKeyMode),
		Checksum:  checksum(data),
		UpdatedAt: s.now().UTC(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.objects.ReplaceOne(ctx, bson.M{"name": name}, doc, opts); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Chmod records the permission bits of the named object.
func (s *Store) Chmod(ctx context.Context, name string, mode fs.FileMode) error {
	res, err := s.objects.UpdateOne(ctx, bson.M{"name": name}, bson.M{
		"$set": bson.M{"mode": uint32(mode.Perm()), "updated_at": s.now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", pki.ErrNotFound, name)
	}
	return nil
}

// Mode returns the recorded permission bits of the named object.
func (s *Store) Mode(ctx context.Context, name string) (fs.FileMode, error) {
	var doc objectDoc
	err := s.objects.FindOne(ctx, bson.M{"name": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("%w: %s", pki.ErrNotFound, name)
	}
	if err != nil {
		return 0, err
	}
	return fs.FileMode(doc.Mode), nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
