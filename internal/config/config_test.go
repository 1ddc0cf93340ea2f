package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-peppol/pkg/as4"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, as4.TransportProfileAS4v2, cfg.Gateway.TransportProfile)
	assert.Equal(t, 30*time.Minute, cfg.Gateway.DeliveryTimeout)
	assert.Equal(t, time.Hour, cfg.Gateway.CleanupInterval)
	assert.Equal(t, 24*time.Hour, cfg.Gateway.DuplicateWindow)
	assert.Equal(t, "file", cfg.PKI.Store)
	assert.Equal(t, "./certs", cfg.PKI.Dir)
	assert.Equal(t, time.Hour, cfg.PKI.TokenTTL)
	assert.Equal(t, "peppol", cfg.Storage.MongoDB.Database)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Metrics.Path)
	assert.Equal(t, cfg, Default())
}

func TestParse_Full(t *testing.T) {
	t.Setenv("TEST_MONGODB_URI", "mongodb://db:27017")
	t.Setenv("TEST_ADMIN_KEY", "s3cret")
	cfg, err := Parse([]byte(`
server:
  port: 8443
  adminKey: ${TEST_ADMIN_KEY}
  tls:
    enabled: true
    certFile: /etc/peppol/tls.crt
    keyFile: /etc/peppol/tls.key
gateway:
  transportProfile: bdxr-transport-ebms3-as4-v1p0
  deliveryTimeout: 5m
  cleanupInterval: 10m
  receiptRequested: true
  compress: true
  signEnvelopes: true
pki:
  store: mongodb
  tokenTTL: 15m
  trustAnchors:
    - /etc/peppol/peppol-ap-ca.pem
    - /etc/peppol/peppol-ap-test-ca.pem
storage:
  mongodb:
    uri: ${TEST_MONGODB_URI}
    collection: certs
logging:
  level: debug
  format: json
observability:
  metrics:
    enabled: true
`))
	require.NoError(t, err)

	assert.Equal(t, 8443, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.AdminKey)
	assert.True(t, cfg.Server.TLS.Enabled)
	assert.Equal(t, "/etc/peppol/tls.key", cfg.Server.TLS.KeyFile)
	assert.Equal(t, as4.TransportProfileBDXRAS4, cfg.Gateway.TransportProfile)
	assert.Equal(t, 5*time.Minute, cfg.Gateway.DeliveryTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Gateway.CleanupInterval)
	assert.True(t, cfg.Gateway.ReceiptRequested)
	assert.True(t, cfg.Gateway.Compress)
	assert.True(t, cfg.Gateway.SignEnvelopes)
	assert.Equal(t, "mongodb", cfg.PKI.Store)
	assert.Equal(t, 15*time.Minute, cfg.PKI.TokenTTL)
	assert.Equal(t, []string{"/etc/peppol/peppol-ap-ca.pem", "/etc/peppol/peppol-ap-test-ca.pem"}, cfg.PKI.TrustAnchors)
	assert.Equal(t, "mongodb://db:27017", cfg.Storage.MongoDB.URI)
	assert.Equal(t, "certs", cfg.Storage.MongoDB.Collection)
	assert.True(t, cfg.Metrics.Metrics.Enabled)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"port", "server:\n  port: 70000\n", "server.port"},
		{"tls without files", "server:\n  tls:\n    enabled: true\n", "server.tls"},
		{"profile", "gateway:\n  transportProfile: as2\n", "gateway.transportProfile"},
		{"timeout", "gateway:\n  deliveryTimeout: -1m\n", "gateway.deliveryTimeout"},
		{"store", "pki:\n  store: s3\n", "pki.store"},
		{"empty trust anchor", "pki:\n  trustAnchors: [\"\"]\n", "pki.trustAnchors"},
		{"mongodb without uri", "pki:\n  store: mongodb\n", "storage.mongodb.uri"},
		{"level", "logging:\n  level: loud\n", "logging.level"},
		{"format", "logging:\n  format: xml\n", "logging.format"},
		{"syntax", "gateway: [", "parsing config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pki:\n  dir: /var/lib/peppol\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/peppol", cfg.PKI.Dir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
