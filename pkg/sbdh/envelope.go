package sbdh

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/sirosfoundation/go-peppol/pkg/peppol"
)

var (
	// ErrMalformedXML is returned when XML cannot be parsed or the wrapped
	// content is not well-formed.
	ErrMalformedXML = errors.New("malformed XML")
	// ErrInvalidDocument is returned when a document lacks routing data.
	ErrInvalidDocument = errors.New("invalid document")
)

const (
	nsCBC = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	nsCAC = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
)

// RoutingMetadata carries routing details not present on the document.
// Zero values fall back to data from the document's participants.
type RoutingMetadata struct {
	InstanceIdentifier string
	CreationTime       time.Time
	SenderContact      *peppol.Contact
	ReceiverContact    *peppol.Contact
	CountryC1          string
	CountryC4          string
	// Scopes are appended after the mandatory scopes.
	Scopes []Scope
}

// Enveloper wraps validated documents in an SBDH.
type Enveloper struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures an Enveloper.
type Option func(*Enveloper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Enveloper) {
		e.now = now
	}
}

// WithIDGenerator overrides InstanceIdentifier generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Enveloper) {
		e.newID = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enveloper) {
		e.logger = logger
	}
}

// NewEnveloper creates an Enveloper.
func NewEnveloper(opts ...Option) *Enveloper {
	e := &Enveloper{
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateEnvelope builds a StandardBusinessDocument around the document.
func (e *Enveloper) CreateEnvelope(doc *peppol.Document, meta RoutingMetadata) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	info, err := doc.TypeInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.Sender.Identifier == "" || doc.Receiver.Identifier == "" {
		return nil, fmt.Errorf("%w: sender and receiver identifiers are required", ErrInvalidDocument)
	}

	created := meta.CreationTime
	if created.IsZero() {
		created = e.now()
	}
	instanceID := meta.InstanceIdentifier
	if instanceID == "" {
		instanceID = e.newID()
	}

	content := doc.Content
	if len(bytes.TrimSpace(content)) == 0 {
		content, err = skeleton(doc, info, created)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("synthesized document skeleton",
			slog.String("document_id", doc.ID),
			slog.String("type", string(doc.Type)))
	} else {
		content, err = prepareContent(content)
		if err != nil {
			return nil, err
		}
	}

	header := Header{
		HeaderVersion: HeaderVersion,
		Sender:        partner(doc.Sender, meta.SenderContact),
		Receiver:      partner(doc.Receiver, meta.ReceiverContact),
		DocumentIdentification: DocumentIdentification{
			Standard:            info.Namespace,
			TypeVersion:         peppol.UBLVersion,
			InstanceIdentifier:  instanceID,
			Type:                info.RootElement,
			CreationDateAndTime: created.UTC().Format(time.RFC3339),
		},
		BusinessScope: BusinessScope{Scope: e.scopes(doc, info, meta)},
	}

	headerXML, err := xml.MarshalIndent(header, "  ", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling SBDH: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<StandardBusinessDocument xmlns="` + Namespace + `">` + "\n  ")
	buf.Write(headerXML)
	buf.WriteString("\n")
	buf.Write(content)
	buf.WriteString("\n</StandardBusinessDocument>\n")

	e.logger.Debug("created SBDH",
		slog.String("instance_id", instanceID),
		slog.String("sender", doc.Sender.QualifiedID()),
		slog.String("receiver", doc.Receiver.QualifiedID()))
	return buf.Bytes(), nil
}

func (e *Enveloper) scopes(doc *peppol.Document, info peppol.DocumentTypeInfo, meta RoutingMetadata) []Scope {
	processID := doc.ProfileID
	if processID == "" {
		processID = info.ProfileID
	}
	scopes := []Scope{
		{
			Type:               ScopeDocumentID,
			InstanceIdentifier: info.DocumentIdentifier(doc.CustomizationID),
			Identifier:         peppol.DocumentIdentifierScheme,
		},
		{
			Type:               ScopeProcessID,
			InstanceIdentifier: processID,
			Identifier:         peppol.ProcessIdentifierScheme,
		},
	}

	c1 := firstNonEmpty(meta.CountryC1, doc.Sender.CountryCode)
	if c1 != "" {
		scopes = append(scopes, Scope{Type: ScopeCountryC1, InstanceIdentifier: c1})
	} else {
		e.logger.Warn("sender country unknown, COUNTRY_C1 omitted", slog.String("sender", doc.Sender.QualifiedID()))
	}
	c4 := firstNonEmpty(meta.CountryC4, doc.Receiver.CountryCode)
	if c4 != "" {
		scopes = append(scopes, Scope{Type: ScopeCountryC4, InstanceIdentifier: c4})
	}

	return append(scopes, meta.Scopes...)
}

func partner(p peppol.Participant, contact *peppol.Contact) Partner {
	if contact == nil {
		contact = p.Contact
	}
	return Partner{
		Identifier: PartnerIdentifier{
			Authority: peppol.ParticipantIdentifierScheme,
			Value:     p.QualifiedID(),
		},
		ContactInformation: contactFrom(contact),
	}
}

// prepareContent strips a BOM and XML declaration and verifies the content
// is a well-formed element.
func prepareContent(content []byte) ([]byte, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	content = bytes.TrimSpace(content)
	if bytes.HasPrefix(content, []byte("<?xml")) {
		end := bytes.Index(content, []byte("?>"))
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated XML declaration", ErrMalformedXML)
		}
		content = bytes.TrimSpace(content[end+2:])
	}

	dec := xml.NewDecoder(bytes.NewReader(content))
	roots := 0
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
		}
		switch tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if roots != 1 {
		return nil, fmt.Errorf("%w: document content must have exactly one root element, found %d", ErrMalformedXML, roots)
	}
	return content, nil
}

// skeleton synthesizes a minimal UBL document for the type.
func skeleton(doc *peppol.Document, info peppol.DocumentTypeInfo, created time.Time) ([]byte, error) {
	d := etree.NewDocument()
	root := d.CreateElement(info.RootElement)
	root.CreateAttr("xmlns", info.Namespace)
	root.CreateAttr("xmlns:cac", nsCAC)
	root.CreateAttr("xmlns:cbc", nsCBC)

	root.CreateElement("cbc:CustomizationID").SetText(firstNonEmpty(doc.CustomizationID, info.CustomizationID))
	root.CreateElement("cbc:ProfileID").SetText(firstNonEmpty(doc.ProfileID, info.ProfileID))
	root.CreateElement("cbc:ID").SetText(doc.ID)
	root.CreateElement("cbc:IssueDate").SetText(created.UTC().Format("2006-01-02"))

	d.Indent(2)
	out, err := d.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("writing document skeleton: %w", err)
	}
	return bytes.TrimSpace(out), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
