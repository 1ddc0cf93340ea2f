// Package gateway wires the PEPPOL messaging core into a single access point.
//
// A Gateway owns a certificate store, the PKI manager built on it, an AS4
// packager and an MLR tracker. Outbound documents are packaged, tracked and
// handed to a Transport; the synchronous signal that comes back settles the
// tracking record. Inbound requests are either signals, which settle
// tracking, or user messages, which are verified, unpacked and answered with
// a receipt or an ebMS error signal.
//
// # Lifecycle
//
// Start runs a background loop that evicts expired tracking records every
// gateway.cleanupInterval. Stop ends it; Close also releases the MongoDB
// connection when the mongodb certificate store is configured.
package gateway

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sirosfoundation/go-peppol/internal/config"
	"github.com/sirosfoundation/go-peppol/internal/storage/mongodb"
	"github.com/sirosfoundation/go-peppol/pkg/as4"
	"github.com/sirosfoundation/go-peppol/pkg/message"
	"github.com/sirosfoundation/go-peppol/pkg/mime"
	"github.com/sirosfoundation/go-peppol/pkg/mlr"
	"github.com/sirosfoundation/go-peppol/pkg/peppol"
	"github.com/sirosfoundation/go-peppol/pkg/pki"
	"github.com/sirosfoundation/go-peppol/pkg/sbdh"
	"github.com/sirosfoundation/go-peppol/pkg/transport"
)

var (
	// ErrNoEndpoint is returned by Send without a destination endpoint.
	ErrNoEndpoint = errors.New("no endpoint for receiver")
	// ErrNotSigned is reported for unsigned envelopes when
	// gateway.signEnvelopes is set.
	ErrNotSigned = errors.New("envelope is not signed")
	// ErrNotRunning is returned by Stop when Start was never called.
	ErrNotRunning = errors.New("gateway is not running")
)

// Transport delivers a serialized AS4 message. *transport.HTTPSClient
// implements it.
type Transport interface {
	Send(ctx context.Context, endpoint string, body []byte, contentType string) (*transport.Response, error)
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithRegistry registers MLR metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(g *Gateway) { g.registry = reg }
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithCertStore replaces the certificate store selected by pki.store.
func WithCertStore(s pki.CertStore) Option {
	return func(g *Gateway) { g.store = s }
}

// Gateway is a PEPPOL access point core.
type Gateway struct {
	cfg       *config.Config
	transport Transport
	store     pki.CertStore
	mongo     *mongodb.Store
	pki       *pki.Manager
	packager  *as4.Packager
	tracker   *mlr.Tracker
	registry  *prometheus.Registry
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Gateway from cfg. A nil cfg selects config.Default and a nil
// tr an HTTPS client with default TLS settings.
func New(ctx context.Context, cfg *config.Config, tr Transport, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if tr == nil {
		tr = transport.NewHTTPSClient(nil)
	}
	g := &Gateway{
		cfg:       cfg,
		transport: tr,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.store == nil {
		switch cfg.PKI.Store {
		case "mongodb":
			s, err := mongodb.NewStore(ctx, &mongodb.Config{
				URI:        cfg.Storage.MongoDB.URI,
				Database:   cfg.Storage.MongoDB.Database,
				Collection: cfg.Storage.MongoDB.Collection,
			})
			if err != nil {
				return nil, fmt.Errorf("opening certificate store: %w", err)
			}
			g.store, g.mongo = s, s
		default:
			s, err := pki.NewFileStore(cfg.PKI.Dir)
			if err != nil {
				return nil, fmt.Errorf("opening certificate store: %w", err)
			}
			g.store = s
		}
	}

	anchors, err := pki.LoadTrustAnchors(cfg.PKI.TrustAnchors...)
	if err != nil {
		_ = g.Close(ctx)
		return nil, err
	}
	if len(anchors) == 0 {
		g.logger.Warn("no trust anchors configured, signed envelopes will be rejected")
	}
	g.pki = pki.New(g.store, pki.WithClock(g.now), pki.WithLogger(g.logger), pki.WithTrustAnchors(anchors...))

	popts := []as4.Option{as4.WithClock(g.now), as4.WithLogger(g.logger)}
	if cfg.Gateway.SignEnvelopes {
		popts = append(popts, as4.WithSigner(g.pki))
	}
	g.packager = as4.NewPackager(popts...)

	topts := []mlr.Option{
		mlr.WithClock(g.now),
		mlr.WithLogger(g.logger),
		mlr.WithDuplicateWindow(cfg.Gateway.DuplicateWindow),
	}
	if cfg.Metrics.Metrics.Enabled {
		if g.registry == nil {
			g.registry = prometheus.NewRegistry()
		}
		topts = append(topts, mlr.WithMetrics(mlr.NewMetrics(g.registry)))
	}
	g.tracker = mlr.New(topts...)

	g.logger.Info("gateway initialized",
		slog.String("transport_profile", cfg.Gateway.TransportProfile),
		slog.String("pki_store", cfg.PKI.Store),
		slog.Bool("sign_envelopes", cfg.Gateway.SignEnvelopes),
		slog.Bool("metrics", cfg.Metrics.Metrics.Enabled))
	return g, nil
}

// PKI returns the certificate manager.
func (g *Gateway) PKI() *pki.Manager { return g.pki }

// Packager returns the AS4 packager.
func (g *Gateway) Packager() *as4.Packager { return g.packager }

// Tracker returns the MLR tracker.
func (g *Gateway) Tracker() *mlr.Tracker { return g.tracker }

// SendResult is the outcome of a Send.
type SendResult struct {
	Message *as4.Message
	// Response is nil when the receiver answered without a body.
	Response *as4.ResponseResult
	// Signal is nil when no signal could be attributed to the message.
	Signal            *mlr.SignalResult
	SignatureVerified bool
	Tracking          mlr.TrackingRecord
}

// Send packages doc, starts delivery tracking and transmits it to endpoint.
// A synchronous receipt or error signal in the response settles tracking.
// Transport failures are returned together with the partial result; the
// message stays pending until it times out.
func (g *Gateway) Send(ctx context.Context, doc *peppol.Document, endpoint string) (*SendResult, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", as4.ErrInvalidMessage)
	}
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}

	cert, err := g.senderCertificate(ctx, doc.Sender)
	if err != nil {
		return nil, err
	}

	msg, err := g.packager.CreateMessage(ctx, doc, cert, as4.ReceiverInfo{
		Endpoint:                 endpoint,
		TransportProfile:         g.cfg.Gateway.TransportProfile,
		DeliveryReceiptRequested: g.cfg.Gateway.ReceiptRequested,
		Compress:                 g.cfg.Gateway.Compress,
	})
	if err != nil {
		return nil, err
	}
	body, contentType, err := msg.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serializing message: %w", err)
	}

	if _, err := g.tracker.TrackMessageDelivery(msg.MessageID, g.cfg.Gateway.DeliveryTimeout, mlr.WithSender(doc.Sender.Key())); err != nil {
		return nil, err
	}

	log := g.logger.With(slog.String("message_id", msg.MessageID), slog.String("endpoint", endpoint))
	res := &SendResult{Message: msg}

	resp, err := g.transport.Send(ctx, endpoint, body, contentType)
	if err != nil {
		log.Error("send failed", slog.String("error", err.Error()))
		res.Tracking = g.tracker.GetDeliveryStatus(msg.MessageID)
		return res, fmt.Errorf("sending message %s: %w", msg.MessageID, err)
	}

	if len(resp.Body) > 0 {
		g.handleResponse(res, resp, log)
	}
	res.Tracking = g.tracker.GetDeliveryStatus(msg.MessageID)

	log.Info("message sent",
		slog.Int("http_status", resp.StatusCode),
		slog.String("delivery_status", string(res.Tracking.Status)))
	return res, nil
}

func (g *Gateway) senderCertificate(ctx context.Context, sender peppol.Participant) (*x509.Certificate, error) {
	rec, err := g.pki.Certificate(ctx, sender.Key())
	switch {
	case err == nil:
		return rec.Certificate, nil
	case errors.Is(err, pki.ErrCertificateNotFound) && !g.cfg.Gateway.SignEnvelopes:
		g.logger.Debug("no certificate installed for sender, sending without token",
			slog.String("participant", sender.Key()))
		return nil, nil
	default:
		return nil, fmt.Errorf("loading sender certificate: %w", err)
	}
}

func (g *Gateway) handleResponse(res *SendResult, resp *transport.Response, log *slog.Logger) {
	envelope, err := soapPart(resp.ContentType, resp.Body)
	if err != nil {
		res.Response = &as4.ResponseResult{Status: as4.StatusParseError, Error: err.Error()}
		log.Warn("unparseable response", slog.String("error", err.Error()))
		return
	}

	res.Response = g.packager.ProcessResponse(envelope)
	if res.Response.Status == as4.StatusParseError {
		return
	}

	verified, err := g.verify(envelope, nil)
	if err != nil {
		log.Warn("signal signature verification failed, tracking left unchanged",
			slog.String("signal_id", res.Response.SignalID),
			slog.String("error", err.Error()))
		return
	}
	res.SignatureVerified = verified
	res.Signal = g.tracker.ProcessIncomingSignal(envelope)
}

// verify checks the envelope signature and that its signer chains to a
// trust anchor. It reports whether a signature was verified. Unsigned
// envelopes are an error when gateway.signEnvelopes is set.
func (g *Gateway) verify(envelope []byte, attachments []pki.Attachment) (bool, error) {
	env, err := message.DecodeEnvelope(envelope)
	if err != nil {
		return false, err
	}
	if env.Security == nil || !env.Security.Signed {
		if g.cfg.Gateway.SignEnvelopes {
			return false, ErrNotSigned
		}
		return false, nil
	}
	if _, err := g.pki.VerifyTrustedEnvelope(envelope, attachments); err != nil {
		return false, err
	}
	return true, nil
}

// ReceiveResult is the outcome of processing an inbound request.
type ReceiveResult struct {
	// Signal is set when the request was a receipt or error signal.
	Signal *mlr.SignalResult
	// Message is set when the request was a user message.
	Message           *as4.Message
	Document          *sbdh.Record
	Payload           []byte
	Duplicate         bool
	SignatureVerified bool
	// Response is the receipt or error signal to return, nil for signals.
	Response *as4.SignalEnvelope
	// Error is the ebMS error reported back to the sender, if any.
	Error string
}

// Receive processes an inbound AS4 request. Problems with the message itself
// are answered with an ebMS error signal in the result; only failures to
// build that answer are returned as errors.
func (g *Gateway) Receive(ctx context.Context, contentType string, body []byte) (*ReceiveResult, error) {
	envelope, err := soapPart(contentType, body)
	if err != nil {
		return g.reject("", message.ErrorMimeInconsistency, err.Error())
	}
	env, err := message.DecodeEnvelope(envelope)
	if err != nil {
		return g.reject("", message.ErrorInvalidHeader, err.Error())
	}

	if env.Messaging.SignalMessage != nil {
		res := &ReceiveResult{}
		verified, err := g.verify(envelope, nil)
		if err != nil {
			g.logger.Warn("inbound signal signature verification failed",
				slog.String("signal_id", env.Messaging.SignalMessage.MessageInfo.MessageId),
				slog.String("error", err.Error()))
			res.Error = err.Error()
			return res, nil
		}
		res.SignatureVerified = verified
		res.Signal = g.tracker.ProcessIncomingSignal(envelope)
		return res, nil
	}

	msg, err := as4.ParseMessage(contentType, body)
	if err != nil {
		return g.reject("", message.ErrorOther, err.Error())
	}
	log := g.logger.With(slog.String("message_id", msg.MessageID))

	attachments := make([]pki.Attachment, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		attachments = append(attachments, pki.Attachment{ContentID: a.ContentID, Data: a.Data})
	}
	verified, err := g.verify(msg.Envelope, attachments)
	if err != nil {
		log.Warn("signature verification failed", slog.String("error", err.Error()))
		return g.reject(msg.MessageID, message.ErrorFailedAuthentication, err.Error())
	}

	att := msg.Payload()
	if att == nil {
		return g.reject(msg.MessageID, message.ErrorValueInconsistent, "payload part missing")
	}
	payload, err := g.packager.OpenPayload(*att)
	if err != nil {
		return g.reject(msg.MessageID, message.ErrorDecompressionFailure, err.Error())
	}
	record, err := sbdh.ParseEnvelope(payload)
	if err != nil {
		return g.reject(msg.MessageID, message.ErrorOther, err.Error())
	}

	res := &ReceiveResult{
		Message:           msg,
		Document:          record,
		Payload:           payload,
		SignatureVerified: verified,
		Duplicate:         g.tracker.MarkReceived(msg.MessageID),
	}

	receipt, err := g.packager.GenerateDeliveryReceipt(msg)
	if err != nil {
		return nil, fmt.Errorf("generating receipt: %w", err)
	}
	if g.cfg.Gateway.SignEnvelopes {
		receipt.Envelope = g.signSignal(ctx, receipt.Envelope, record.Receiver.Identifier.Value)
	}
	res.Response = receipt

	log.Info("message received",
		slog.String("from", record.Sender.Identifier.Value),
		slog.String("to", record.Receiver.Identifier.Value),
		slog.String("document", record.DocumentIdentification.InstanceIdentifier),
		slog.Bool("signed", verified),
		slog.Bool("duplicate", res.Duplicate))
	return res, nil
}

// signSignal signs a receipt with the receiving participant's key. Without
// an installed key the receipt goes out unsigned.
func (g *Gateway) signSignal(ctx context.Context, envelope []byte, participantID string) []byte {
	signed, err := g.pki.SignEnvelope(ctx, envelope, participantID, nil)
	if err != nil {
		g.logger.Warn("receipt left unsigned",
			slog.String("participant", participantID),
			slog.String("error", err.Error()))
		return envelope
	}
	return signed
}

func (g *Gateway) reject(refToMessageID string, code message.ErrorCode, detail string) (*ReceiveResult, error) {
	g.logger.Warn("rejecting inbound message",
		slog.String("ref_to_message_id", refToMessageID),
		slog.String("error_code", code.Code),
		slog.String("detail", detail))

	signal, err := g.packager.GenerateErrorSignal(refToMessageID, code, detail)
	if err != nil {
		return nil, fmt.Errorf("generating error signal: %w", err)
	}
	return &ReceiveResult{Response: signal, Error: code.Code + ": " + detail}, nil
}

// HandleMessage implements transport.Receiver.
func (g *Gateway) HandleMessage(ctx context.Context, contentType string, body []byte) (string, []byte, error) {
	res, err := g.Receive(ctx, contentType, body)
	if err != nil {
		return "", nil, err
	}
	if res.Response == nil {
		return "", nil, nil
	}
	return transport.ContentTypeSOAP + "; charset=utf-8", res.Response.Envelope, nil
}

// IssueToken creates a security token for the participant valid for
// pki.tokenTTL.
func (g *Gateway) IssueToken(ctx context.Context, participantID string, scopes []string) (*pki.SecurityToken, error) {
	return g.pki.CreateSecurityToken(ctx, participantID, scopes, g.cfg.PKI.TokenTTL)
}

// Status returns the delivery record of a sent message.
func (g *Gateway) Status(messageID string) mlr.TrackingRecord {
	return g.tracker.GetDeliveryStatus(messageID)
}

// Statistics returns the current tracking statistics.
func (g *Gateway) Statistics() mlr.Statistics {
	return g.tracker.GenerateStatistics()
}

// MetricsHandler serves the gateway's metrics registry. It returns nil when
// metrics are disabled.
func (g *Gateway) MetricsHandler() http.Handler {
	if g.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{Registry: g.registry})
}

// Start begins periodic eviction of expired tracking records.
func (g *Gateway) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.wg.Add(1)
	go g.run(ctx)
	g.logger.Info("gateway started", slog.Duration("cleanup_interval", g.cfg.Gateway.CleanupInterval))
}

// Stop ends the cleanup loop and waits for it to exit.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}
	cancel()
	g.wg.Wait()
	g.logger.Info("gateway stopped")
	return nil
}

// Ping checks that the certificate store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	if g.mongo != nil {
		return g.mongo.Ping(ctx)
	}
	return nil
}

// Close stops the gateway and releases the certificate store.
func (g *Gateway) Close(ctx context.Context) error {
	_ = g.Stop()
	if g.mongo != nil {
		return g.mongo.Close(ctx)
	}
	return nil
}

func (g *Gateway) run(ctx context.Context) {
	defer g.wg.Done()

	interval := g.cfg.Gateway.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tracker.CleanupExpiredTracking()
		}
	}
}

// soapPart returns the SOAP envelope of a plain or multipart/related body.
func soapPart(contentType string, body []byte) ([]byte, error) {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), transport.ContentTypeMultipart) {
		return body, nil
	}
	parts, err := mime.Parse(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	return parts.Envelope, nil
}
