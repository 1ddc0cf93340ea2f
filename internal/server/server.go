// Package server provides the HTTP server for the PEPPOL gateway.
//
// The server exposes three API surfaces:
//
// # AS4 Endpoint
//
// POST /as4 - Receives inbound AS4 user messages and signals. Security is
// message level: envelope signers must chain to a configured trust anchor.
//
// # Management API
//
// Admin endpoints require the X-Admin-Key header:
//
//   - PUT  {basePath}/participants/{id}/certificate - Install certificate and key
//   - POST {basePath}/participants/{id}/token       - Issue a participant token
//   - POST {basePath}/certificates/validate         - Validate a certificate
//   - POST {basePath}/csr                           - Generate a key and CSR
//   - GET  {basePath}/statistics                    - Delivery statistics
//
// Participant endpoints require a bearer token issued for that participant:
//
//   - GET  {basePath}/participants/{id}/certificate          - Installed certificate (PEM)
//   - POST {basePath}/participants/{id}/messages             - Send a document
//   - GET  {basePath}/participants/{id}/messages/{messageID} - Delivery status
//
// Documents are sent as the participant named by {id}, a qualified PEPPOL
// identifier such as 0088:5790000435968. Delivery status is only visible to
// the participant that sent the message.
//
// # Health & Metrics
//
//   - GET /health  - Liveness probe
//   - GET /ready   - Readiness probe (certificate store reachable)
//   - GET /metrics - Prometheus metrics (if enabled)
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sirosfoundation/go-peppol/internal/config"
	"github.com/sirosfoundation/go-peppol/internal/gateway"
	"github.com/sirosfoundation/go-peppol/pkg/mlr"
	"github.com/sirosfoundation/go-peppol/pkg/peppol"
	"github.com/sirosfoundation/go-peppol/pkg/pki"
	"github.com/sirosfoundation/go-peppol/pkg/transport"
)

const maxJSONBody = 1 << 20

// Server is the gateway HTTP server
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	httpSrv *http.Server
	gateway *gateway.Gateway
}

// New creates a new server for gw
func New(cfg *config.Config, gw *gateway.Gateway, logger *slog.Logger) *Server {
	s := &Server{
		config:  cfg,
		logger:  logger,
		gateway: gw,
	}

	if cfg.Server.AdminKey == "" {
		logger.Warn("no admin key configured - admin endpoints are disabled")
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start listens on the configured port until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.httpSrv.Addr, "tls", s.config.Server.TLS.Enabled)
	var err error
	if s.config.Server.TLS.Enabled {
		err = s.httpSrv.ListenAndServeTLS(s.config.Server.TLS.CertFile, s.config.Server.TLS.KeyFile)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and the gateway
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	return s.gateway.Close(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	basePath := strings.TrimSuffix(s.config.Server.BasePath, "/")

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	// AS4 endpoint (message-level security)
	mux.Handle("POST /as4", transport.Handler(s.gateway, transport.DefaultMaxBodySize, s.logger))

	if s.config.Metrics.Metrics.Enabled {
		if h := s.gateway.MetricsHandler(); h != nil {
			mux.Handle("GET "+s.config.Metrics.Metrics.Path, h)
		}
	}

	// Admin API
	mux.HandleFunc("PUT "+basePath+"/participants/{participantID}/certificate", s.withAdmin(s.handleInstallCertificate))
	mux.HandleFunc("POST "+basePath+"/participants/{participantID}/token", s.withAdmin(s.handleIssueToken))
	mux.HandleFunc("POST "+basePath+"/certificates/validate", s.withAdmin(s.handleValidateCertificate))
	mux.HandleFunc("POST "+basePath+"/csr", s.withAdmin(s.handleGenerateCSR))
	mux.HandleFunc("GET "+basePath+"/statistics", s.withAdmin(s.handleStatistics))

	// Participant API
	mux.HandleFunc("GET "+basePath+"/participants/{participantID}/certificate", s.withParticipant(s.handleGetCertificate))
	mux.HandleFunc("POST "+basePath+"/participants/{participantID}/messages", s.withParticipant(s.handleSendMessage))
	mux.HandleFunc("GET "+basePath+"/participants/{participantID}/messages/{messageID}", s.withParticipant(s.handleGetMessage))
}

// Middleware

func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-Admin-Key")
		if s.config.Server.AdminKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.config.Server.AdminKey)) != 1 {
			s.jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// withParticipant validates a bearer token issued for the participant in the path
func (s *Server) withParticipant(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID := r.PathValue("participantID")
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="PEPPOL API"`)
			s.jsonError(w, "authentication required", http.StatusUnauthorized)
			return
		}

		v, err := s.gateway.PKI().ValidateSecurityToken(r.Context(), raw, participantID)
		if err != nil {
			if errors.Is(err, pki.ErrCertificateNotFound) {
				s.jsonError(w, "participant not found", http.StatusForbidden)
				return
			}
			s.logger.Error("token validation failed", "participant", participantID, "error", err)
			s.jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !v.Valid {
			s.logger.Debug("authentication failed", "participant", participantID, "error", v.Error, "path", r.URL.Path)
			if v.SignatureValid && v.Expired {
				s.jsonError(w, "token expired", http.StatusUnauthorized)
				return
			}
			s.jsonError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.Ping(r.Context()); err != nil {
		s.jsonError(w, "certificate store not ready", http.StatusServiceUnavailable)
		return
	}
	s.jsonResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// Admin handlers

// InstallCertificateRequest carries a PEM certificate and its private key
type InstallCertificateRequest struct {
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privateKey"`
}

func (s *Server) handleInstallCertificate(w http.ResponseWriter, r *http.Request) {
	participantID := r.PathValue("participantID")

	var req InstallCertificateRequest
	if err := s.decode(r, &req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := s.gateway.PKI().InstallCertificate(r.Context(), []byte(req.Certificate), []byte(req.PrivateKey), participantID)
	if err != nil {
		switch {
		case errors.Is(err, pki.ErrInvalidCertificate), errors.Is(err, pki.ErrInvalidKey), errors.Is(err, pki.ErrKeyMismatch):
			s.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			s.logger.Error("failed to install certificate", "participant", participantID, "error", err)
			s.jsonError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"participantId": rec.ParticipantID,
		"installedAt":   rec.InstalledAt,
		"metadata":      rec.Metadata,
	}, http.StatusCreated)
}

// IssueTokenRequest lists the scopes granted to a token
type IssueTokenRequest struct {
	Scopes []string `json:"scopes"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	participantID := r.PathValue("participantID")

	var req IssueTokenRequest
	if r.ContentLength != 0 {
		if err := s.decode(r, &req); err != nil {
			s.jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	tok, err := s.gateway.IssueToken(r.Context(), participantID, req.Scopes)
	if err != nil {
		if errors.Is(err, pki.ErrCertificateNotFound) {
			s.jsonError(w, "participant not found", http.StatusNotFound)
			return
		}
		s.logger.Error("failed to issue token", "participant", participantID, "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, tok, http.StatusCreated)
}

func (s *Server) handleValidateCertificate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil || len(data) == 0 {
		s.jsonError(w, "certificate required", http.StatusBadRequest)
		return
	}
	v := s.gateway.PKI().ValidateCertificate(data)
	s.jsonResponse(w, map[string]interface{}{
		"report":   v.Report,
		"metadata": v.Metadata,
	}, http.StatusOK)
}

// CSRRequest describes the subject of a certificate request
type CSRRequest struct {
	Subject pki.SubjectInfo `json:"subject"`
	KeySize int             `json:"keySize"`
}

func (s *Server) handleGenerateCSR(w http.ResponseWriter, r *http.Request) {
	var req CSRRequest
	if err := s.decode(r, &req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	csr, err := s.gateway.PKI().GenerateCertificateRequest(req.Subject, req.KeySize)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.jsonResponse(w, map[string]string{
		"csr":        string(csr.CSR),
		"privateKey": string(csr.PrivateKeyPEM),
	}, http.StatusCreated)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, s.gateway.Statistics(), http.StatusOK)
}

// Participant handlers

func (s *Server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	rec, err := s.gateway.PKI().Certificate(r.Context(), r.PathValue("participantID"))
	if err != nil {
		s.logger.Error("failed to get certificate", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	_, _ = w.Write(rec.CertificatePEM)
}

// PartyRequest identifies a PEPPOL participant
type PartyRequest struct {
	Scheme      string `json:"scheme"`
	Identifier  string `json:"identifier"`
	Name        string `json:"name,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
}

// SendMessageRequest is a business document to deliver
type SendMessageRequest struct {
	Endpoint        string       `json:"endpoint"`
	DocumentID      string       `json:"documentId"`
	DocumentType    string       `json:"documentType"`
	CustomizationID string       `json:"customizationId,omitempty"`
	ProfileID       string       `json:"profileId,omitempty"`
	Sender          PartyRequest `json:"sender"`
	Receiver        PartyRequest `json:"receiver"`
	// Content is the base64 encoded business document.
	Content     []byte `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

// handleSendMessage sends a document on behalf of the participant in the
// path, which must be a qualified PEPPOL identifier. The sender in the body
// may be omitted; when given it must name the same participant.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	participantID := r.PathValue("participantID")
	scheme, identifier := peppol.SplitQualifiedID(participantID)
	if scheme == "" {
		s.jsonError(w, "participant id is not a PEPPOL identifier", http.StatusUnprocessableEntity)
		return
	}

	var req SendMessageRequest
	if err := s.decode(r, &req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Endpoint == "" {
		s.jsonError(w, "endpoint is required", http.StatusBadRequest)
		return
	}
	if !req.Sender.names(scheme, identifier) {
		s.logger.Warn("sender does not match participant",
			"participant", participantID,
			"sender_scheme", req.Sender.Scheme,
			"sender_identifier", req.Sender.Identifier,
		)
		s.jsonError(w, "sender does not match participant", http.StatusForbidden)
		return
	}
	sender := req.Sender.participant(participantID)
	sender.Scheme, sender.Identifier = scheme, identifier

	doc := &peppol.Document{
		ID:              req.DocumentID,
		Type:            peppol.DocumentType(req.DocumentType),
		CustomizationID: req.CustomizationID,
		ProfileID:       req.ProfileID,
		Sender:          sender,
		Receiver:        req.Receiver.participant(""),
		Content:         req.Content,
		ContentType:     req.ContentType,
	}

	res, err := s.gateway.Send(r.Context(), doc, req.Endpoint)
	if res == nil {
		s.logger.Warn("rejected send request", "participant", participantID, "error", err)
		s.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	body := map[string]interface{}{
		"messageId": res.Message.MessageID,
		"status":    res.Tracking.Status,
		"tracking":  res.Tracking,
	}
	if res.Response != nil {
		body["response"] = res.Response
	}
	if err != nil {
		body["error"] = err.Error()
		s.jsonResponse(w, body, http.StatusBadGateway)
		return
	}

	s.logger.Info("message sent",
		"participant", participantID,
		"message_id", res.Message.MessageID,
		"status", res.Tracking.Status,
	)
	s.jsonResponse(w, body, http.StatusAccepted)
}

// names reports whether p is empty or identifies scheme and identifier.
func (p PartyRequest) names(scheme peppol.Scheme, identifier string) bool {
	if p.Scheme != "" && peppol.Scheme(p.Scheme) != scheme {
		return false
	}
	return p.Identifier == "" || p.Identifier == identifier
}

func (p PartyRequest) participant(id string) peppol.Participant {
	return peppol.Participant{
		ID:          id,
		Scheme:      peppol.Scheme(p.Scheme),
		Identifier:  p.Identifier,
		Name:        p.Name,
		CountryCode: p.CountryCode,
	}
}

// handleGetMessage returns the delivery record of a message sent by the
// participant in the path. Records of other senders are reported as unknown.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	rec := s.gateway.Status(r.PathValue("messageID"))
	if rec.Status == mlr.StatusNotTracked || rec.Sender != r.PathValue("participantID") {
		s.jsonError(w, "message not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, rec, http.StatusOK)
}

// Helpers

func (s *Server) decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v)
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	s.jsonResponse(w, map[string]string{"error": message}, status)
}
