// Package config handles configuration loading for the PEPPOL gateway.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows sensitive values
// like database credentials to be injected at runtime.
//
// # Configuration Sections
//
//   - server: HTTP server settings (port, TLS, base path, admin key)
//   - gateway: transport profile, delivery timeout, cleanup interval
//   - pki: certificate store backend, token lifetime and trust anchors
//   - storage: MongoDB connection for the mongodb certificate store
//   - logging: slog level and handler format
//   - observability: Prometheus metrics
//
// # Example Configuration
//
//	gateway:
//	  transportProfile: peppol-transport-as4-v2_0
//	  deliveryTimeout: 30m
//	  receiptRequested: true
//
//	pki:
//	  store: mongodb
//	  trustAnchors:
//	    - /etc/peppol/peppol-ap-ca.pem
//
//	storage:
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: peppol
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-peppol/pkg/as4"
)

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	PKI     PKIConfig     `yaml:"pki"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"basePath"` // prefix of the management API
	AdminKey string `yaml:"adminKey"` // API key for admin endpoints
	TLS      struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
	} `yaml:"tls"`
}

// GatewayConfig holds send/receive settings
type GatewayConfig struct {
	TransportProfile string        `yaml:"transportProfile"`
	DeliveryTimeout  time.Duration `yaml:"deliveryTimeout"`
	CleanupInterval  time.Duration `yaml:"cleanupInterval"`
	// DuplicateWindow bounds duplicate detection of received messages
	DuplicateWindow  time.Duration `yaml:"duplicateWindow"`
	ReceiptRequested bool          `yaml:"receiptRequested"`
	Compress         bool          `yaml:"compress"`
	// SignEnvelopes signs outgoing envelopes with the sender's key
	SignEnvelopes bool `yaml:"signEnvelopes"`
}

// PKIConfig holds certificate store settings
type PKIConfig struct {
	// Store selects the certificate store backend
	// - "file": PEM files below Dir (cert 0644, key 0600)
	// - "mongodb": documents in the storage.mongodb database
	Store    string        `yaml:"store"`
	Dir      string        `yaml:"dir"`
	TokenTTL time.Duration `yaml:"tokenTTL"`
	// TrustAnchors lists PEM files with the CA certificates that signers of
	// inbound envelopes must chain to
	TrustAnchors []string `yaml:"trustAnchors"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig holds observability settings
type MetricsConfig struct {
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data and decodes it
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api"
	}
	if c.Gateway.TransportProfile == "" {
		c.Gateway.TransportProfile = as4.TransportProfileAS4v2
	}
	if c.Gateway.DeliveryTimeout == 0 {
		c.Gateway.DeliveryTimeout = 30 * time.Minute
	}
	if c.Gateway.CleanupInterval == 0 {
		c.Gateway.CleanupInterval = time.Hour
	}
	if c.Gateway.DuplicateWindow == 0 {
		c.Gateway.DuplicateWindow = 24 * time.Hour
	}
	if c.PKI.Store == "" {
		c.PKI.Store = "file"
	}
	if c.PKI.Dir == "" {
		c.PKI.Dir = "./certs"
	}
	if c.PKI.TokenTTL == 0 {
		c.PKI.TokenTTL = time.Hour
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "peppol"
	}
	if c.Storage.MongoDB.Collection == "" {
		c.Storage.MongoDB.Collection = "pki_objects"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Metrics.Path == "" {
		c.Metrics.Metrics.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.certFile and server.tls.keyFile are required when TLS is enabled")
	}
	if !as4.IsRecognizedTransportProfile(c.Gateway.TransportProfile) {
		return fmt.Errorf("gateway.transportProfile must be %q or %q, got %q",
			as4.TransportProfileAS4v2, as4.TransportProfileBDXRAS4, c.Gateway.TransportProfile)
	}
	if c.Gateway.DeliveryTimeout < 0 {
		return fmt.Errorf("gateway.deliveryTimeout must not be negative")
	}
	if c.Gateway.CleanupInterval < 0 {
		return fmt.Errorf("gateway.cleanupInterval must not be negative")
	}

	switch c.PKI.Store {
	case "file", "mongodb":
		// Valid stores
	default:
		return fmt.Errorf("pki.store must be 'file' or 'mongodb', got '%s'", c.PKI.Store)
	}

	for _, path := range c.PKI.TrustAnchors {
		if path == "" {
			return fmt.Errorf("pki.trustAnchors must not contain empty paths")
		}
	}

	if c.PKI.Store == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("storage.mongodb.uri is required when pki.store is 'mongodb'")
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json', got '%s'", c.Logging.Format)
	}

	return nil
}

// NewLogger builds the slog logger described by the logging section
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("logging.level %q: %w", s, err)
	}
	return level, nil
}
