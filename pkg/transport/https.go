package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// Content types used on the wire.
const (
	ContentTypeSOAP      = "application/soap+xml"
	ContentTypeMultipart = "multipart/related"
)

// DefaultMaxBodySize bounds request and response bodies.
const DefaultMaxBodySize = 64 << 20

// Recommended TLS 1.2 cipher suites for AS4
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// ErrUnexpectedStatus is returned when the receiving access point answers
// with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// HTTPSConfig contains HTTPS client/server configuration
type HTTPSConfig struct {
	MinTLSVersion   uint16
	MaxTLSVersion   uint16
	CipherSuites    []uint16
	ClientAuth      tls.ClientAuthType
	Certificates    []tls.Certificate
	RootCAs         *x509.CertPool
	ClientCAs       *x509.CertPool
	Timeout         time.Duration
	IdleConnTimeout time.Duration
	MaxBodySize     int64
}

// DefaultHTTPSConfig returns a default HTTPS configuration
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion:   TLS12,
		MaxTLSVersion:   TLS13,
		CipherSuites:    RecommendedTLS12CipherSuites,
		ClientAuth:      tls.NoClientCert,
		Timeout:         30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		MaxBodySize:     DefaultMaxBodySize,
	}
}

// TLSConfig returns the client or server TLS settings.
func (c *HTTPSConfig) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   c.MinTLSVersion,
		MaxVersion:   c.MaxTLSVersion,
		CipherSuites: c.CipherSuites,
		Certificates: c.Certificates,
		RootCAs:      c.RootCAs,
		ClientCAs:    c.ClientCAs,
		ClientAuth:   c.ClientAuth,
	}
}

// Response is the synchronous answer of the receiving access point.
type Response struct {
	StatusCode  int
	ContentType string
	// Body is empty when the receiver answers asynchronously.
	Body []byte
}

// HTTPSClient posts AS4 messages over HTTPS
type HTTPSClient struct {
	client *http.Client
	config *HTTPSConfig
}

// NewHTTPSClient creates a new HTTPS client
func NewHTTPSClient(config *HTTPSConfig) *HTTPSClient {
	if config == nil {
		config = DefaultHTTPSConfig()
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}

	transport := &http.Transport{
		TLSClientConfig:     config.TLSConfig(),
		IdleConnTimeout:     config.IdleConnTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	return &HTTPSClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

// Send posts a serialized AS4 message to endpoint and returns the
// synchronous response.
func (c *HTTPSClient) Send(ctx context.Context, endpoint string, body []byte, contentType string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("MIME-Version", "1.0")
	req.Header.Set("User-Agent", "go-peppol/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	out := &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}
	// ebMS error signals may come back with a 500; the caller interprets them.
	if resp.StatusCode >= 300 && !isSOAP(out.ContentType) {
		return out, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, truncate(data, 256))
	}
	return out, nil
}

// Receiver processes an incoming AS4 request and returns the synchronous
// response. An empty response body is answered with 202 Accepted.
type Receiver interface {
	HandleMessage(ctx context.Context, contentType string, body []byte) (respContentType string, resp []byte, err error)
}

// Handler returns an http.Handler that feeds POSTed messages to r.
func Handler(r Receiver, maxBodySize int64, logger *slog.Logger) http.Handler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodySize))
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusRequestEntityTooLarge)
			return
		}
		defer req.Body.Close()

		ct, resp, err := r.HandleMessage(req.Context(), req.Header.Get("Content-Type"), body)
		if err != nil {
			logger.Error("failed to process AS4 request", slog.String("error", err.Error()))
			http.Error(w, "Failed to process message", http.StatusInternalServerError)
			return
		}
		if len(resp) == 0 {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		if ct == "" {
			ct = ContentTypeSOAP + "; charset=utf-8"
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp)
	})
}

// HTTPSServer serves the AS4 endpoint over HTTPS
type HTTPSServer struct {
	server *http.Server
	config *HTTPSConfig
}

// NewHTTPSServer creates a server exposing r at path
func NewHTTPSServer(addr, path string, config *HTTPSConfig, r Receiver, logger *slog.Logger) *HTTPSServer {
	if config == nil {
		config = DefaultHTTPSConfig()
	}
	if path == "" {
		path = "/as4"
	}

	mux := http.NewServeMux()
	mux.Handle(path, Handler(r, config.MaxBodySize, logger))

	return &HTTPSServer{
		config: config,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			TLSConfig:    config.TLSConfig(),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  config.IdleConnTimeout,
		},
	}
}

// Start serves until Shutdown is called
func (s *HTTPSServer) Start() error {
	if len(s.config.Certificates) == 0 {
		return fmt.Errorf("no TLS certificates configured")
	}
	err := s.server.ListenAndServeTLS("", "")
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *HTTPSServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func isSOAP(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, ContentTypeSOAP) || strings.HasPrefix(ct, ContentTypeMultipart)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
