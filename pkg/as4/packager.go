package as4

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-peppol/pkg/compression"
	"github.com/sirosfoundation/go-peppol/pkg/message"
	"github.com/sirosfoundation/go-peppol/pkg/peppol"
	"github.com/sirosfoundation/go-peppol/pkg/pki"
	"github.com/sirosfoundation/go-peppol/pkg/sbdh"
)

// Transport profiles accepted for PEPPOL AS4 delivery.
const (
	TransportProfileAS4v2   = "peppol-transport-as4-v2_0"
	TransportProfileBDXRAS4 = "bdxr-transport-ebms3-as4-v1p0"
)

const (
	// PayloadContentID is the content id of the business document attachment.
	PayloadContentID = "payload"

	// SecurityTimestampTTL is the freshness window of the wsu:Timestamp.
	SecurityTimestampTTL = 5 * time.Minute

	defaultContentType  = "application/xml"
	defaultCharacterSet = "UTF-8"

	propOriginalSender = "originalSender"
	propFinalRecipient = "finalRecipient"
)

var (
	// ErrUnknownTransportProfile is returned for a transport profile outside
	// the recognized set.
	ErrUnknownTransportProfile = errors.New("unknown transport profile")
	// ErrInvalidMessage is returned when a document cannot be packaged.
	ErrInvalidMessage = errors.New("invalid message")
)

// IsRecognizedTransportProfile reports whether profile is a supported
// transport profile identifier.
func IsRecognizedTransportProfile(profile string) bool {
	return profile == TransportProfileAS4v2 || profile == TransportProfileBDXRAS4
}

// Signer signs a serialized envelope on behalf of a participant.
// *pki.Manager implements it.
type Signer interface {
	SignEnvelope(ctx context.Context, envelopeXML []byte, participantID string, attachments []pki.Attachment) ([]byte, error)
}

// ReceiverInfo describes where and how a document is delivered.
type ReceiverInfo struct {
	// Participant overrides the document's receiver when its Identifier is set.
	Participant peppol.Participant
	Endpoint    string
	// TransportProfile defaults to TransportProfileAS4v2.
	TransportProfile         string
	DeliveryReceiptRequested bool
	// Service and Action default to the document's PROCESSID and DOCUMENTID.
	Service        string
	Action         string
	ConversationID string
	// Compress gzips the payload when its content type allows it.
	Compress bool
	Routing  sbdh.RoutingMetadata
}

// Attachment is a MIME part of an AS4 message.
type Attachment struct {
	ContentID string
	// ContentType is the MIME type on the wire; application/gzip when compressed.
	ContentType  string
	MimeType     string
	CharacterSet string
	// Size is the uncompressed size in bytes.
	Size       int
	Compressed bool
	Data       []byte
}

// Message is a packaged AS4 UserMessage ready for transmission.
type Message struct {
	MessageID        string
	Timestamp        time.Time
	ConversationID   string
	TransportProfile string
	Endpoint         string
	ReceiptRequested bool
	SequenceID       string
	// MessagingID is the wsu:Id of the eb:Messaging header.
	MessagingID string
	Envelope    []byte
	Attachments []Attachment
	UserMessage *message.UserMessage
}

// Option configures a Packager.
type Option func(*Packager)

// WithSigner signs every created envelope with the sender's key.
func WithSigner(s Signer) Option {
	return func(p *Packager) { p.signer = s }
}

// WithEnveloper replaces the SBDH enveloper.
func WithEnveloper(e *sbdh.Enveloper) Option {
	return func(p *Packager) { p.enveloper = e }
}

// WithCompressor replaces the payload compressor.
func WithCompressor(c *compression.Compressor) Option {
	return func(p *Packager) { p.compressor = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Packager) { p.logger = logger }
}

// Packager turns PEPPOL documents into AS4 messages and interprets the
// signals returned for them. It never judges document content.
type Packager struct {
	enveloper  *sbdh.Enveloper
	compressor *compression.Compressor
	signer     Signer
	now        func() time.Time
	logger     *slog.Logger
}

// NewPackager creates a Packager.
func NewPackager(opts ...Option) *Packager {
	p := &Packager{
		compressor: compression.NewCompressor(),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.enveloper == nil {
		p.enveloper = sbdh.NewEnveloper(sbdh.WithClock(p.now), sbdh.WithLogger(p.logger))
	}
	return p
}

// CreateMessage wraps the document in an SBDH and packages it as the single
// "payload" attachment of a new AS4 UserMessage. senderCert may be nil, in
// which case no BinarySecurityToken is added.
func (p *Packager) CreateMessage(ctx context.Context, doc *peppol.Document, senderCert *x509.Certificate, info ReceiverInfo) (*Message, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", ErrInvalidMessage)
	}
	d := *doc
	if info.Participant.Identifier != "" {
		d.Receiver = info.Participant
	}
	if err := d.Sender.Validate(); err != nil {
		return nil, fmt.Errorf("%w: sender: %v", ErrInvalidMessage, err)
	}
	if err := d.Receiver.Validate(); err != nil {
		return nil, fmt.Errorf("%w: receiver: %v", ErrInvalidMessage, err)
	}

	profile := info.TransportProfile
	if profile == "" {
		profile = TransportProfileAS4v2
	}
	if !IsRecognizedTransportProfile(profile) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransportProfile, profile)
	}

	docID, err := d.DocumentIdentifier()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	processID, err := d.ProcessIdentifier()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	sbd, err := p.enveloper.CreateEnvelope(&d, info.Routing)
	if err != nil {
		return nil, fmt.Errorf("creating SBDH: %w", err)
	}
	att, err := p.attachment(&d, sbd, info.Compress)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	props := []message.Property{
		{Name: message.PropMimeType, Value: att.MimeType},
		{Name: message.PropCharacterSet, Value: att.CharacterSet},
	}
	if att.Compressed {
		props = append(props, message.Property{Name: message.PropCompressionType, Value: compression.CompressionTypeGzip})
	}

	um, err := message.NewUserMessage(
		message.WithTimestamp(now),
		message.WithFrom(d.Sender.Identifier, partyIDType(d.Sender.Scheme)),
		message.WithTo(d.Receiver.Identifier, partyIDType(d.Receiver.Scheme)),
		message.WithService(firstNonEmpty(info.Service, processID), peppol.ProcessIdentifierScheme),
		message.WithAction(firstNonEmpty(info.Action, docID)),
		message.WithConversationId(info.ConversationID),
		message.WithMessageProperty(propOriginalSender, d.Sender.QualifiedID(), peppol.ParticipantIdentifierScheme),
		message.WithMessageProperty(propFinalRecipient, d.Receiver.QualifiedID(), peppol.ParticipantIdentifierScheme),
	).AddPart(att.ContentID, props...).Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	msg := &Message{
		MessageID:        um.MessageInfo.MessageId,
		Timestamp:        now,
		ConversationID:   um.CollaborationInfo.ConversationId,
		TransportProfile: profile,
		Endpoint:         info.Endpoint,
		ReceiptRequested: info.DeliveryReceiptRequested,
		MessagingID:      newWSUID("id-"),
		Attachments:      []Attachment{att},
		UserMessage:      um,
	}

	env := &message.Envelope{
		Messaging: &message.Messaging{ID: msg.MessagingID, UserMessage: um},
		BodyID:    newWSUID("id-"),
	}
	raw, err := env.Bytes()
	if err != nil {
		return nil, err
	}

	security := &message.Security{Timestamp: &message.Timestamp{
		ID:      newWSUID("TS-"),
		Created: now,
		Expires: now.Add(SecurityTimestampTTL),
	}}
	if senderCert != nil {
		security.BinarySecurityToken = &message.BinarySecurityToken{
			ID:          newWSUID("X509-"),
			Certificate: senderCert.Raw,
		}
	}
	blocks := []message.HeaderBlock{security}
	if info.DeliveryReceiptRequested {
		seq := &message.Sequence{
			ID:            newWSUID("id-"),
			Identifier:    "urn:uuid:" + uuid.NewString(),
			MessageNumber: 1,
		}
		msg.SequenceID = seq.Identifier
		blocks = append(blocks, seq)
	}

	raw, err = message.InjectHeaders(raw, blocks...)
	if err != nil {
		return nil, fmt.Errorf("injecting security headers: %w", err)
	}

	if p.signer != nil {
		raw, err = p.signer.SignEnvelope(ctx, raw, d.Sender.Key(), []pki.Attachment{{
			ContentID: att.ContentID,
			Data:      att.Data,
		}})
		if err != nil {
			return nil, fmt.Errorf("signing envelope: %w", err)
		}
	}
	msg.Envelope = raw

	p.logger.Info("created AS4 message",
		slog.String("message_id", msg.MessageID),
		slog.String("from", d.Sender.QualifiedID()),
		slog.String("to", d.Receiver.QualifiedID()),
		slog.String("transport_profile", profile),
		slog.Bool("receipt_requested", msg.ReceiptRequested),
		slog.Bool("signed", p.signer != nil),
		slog.Int("payload_bytes", att.Size))
	return msg, nil
}

// VerifyEnvelope validates the XML signature on a received envelope. A nil
// cert uses the envelope's BinarySecurityToken.
func (p *Packager) VerifyEnvelope(raw []byte, cert *x509.Certificate) error {
	return pki.VerifyEnvelope(raw, cert, nil)
}

// OpenPayload returns the attachment content, decompressed when needed.
func (p *Packager) OpenPayload(att Attachment) ([]byte, error) {
	if !att.Compressed {
		return att.Data, nil
	}
	return p.compressor.Decompress(att.Data)
}

func (p *Packager) attachment(doc *peppol.Document, data []byte, compress bool) (Attachment, error) {
	att := Attachment{
		ContentID:    PayloadContentID,
		ContentType:  firstNonEmpty(doc.ContentType, defaultContentType),
		MimeType:     firstNonEmpty(doc.ContentType, defaultContentType),
		CharacterSet: firstNonEmpty(doc.CharacterSet, defaultCharacterSet),
		Size:         len(data),
		Data:         data,
	}
	if compress && compression.ShouldCompress(att.MimeType) {
		compressed, err := p.compressor.Compress(data)
		if err != nil {
			return Attachment{}, fmt.Errorf("compressing payload: %w", err)
		}
		att.Data = compressed
		att.Compressed = true
		att.ContentType = compression.CompressionTypeGzip
	}
	return att, nil
}

func partyIDType(s peppol.Scheme) string {
	return message.PartyIDTypePrefix + string(s)
}

func newWSUID(prefix string) string {
	return prefix + uuid.NewString()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
