// Package mime implements MIME multipart/related message handling for AS4
package mime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-peppol/pkg/message"
)

const (
	// ContentTypeMultipartRelated is the MIME type for multipart/related
	ContentTypeMultipartRelated = "multipart/related"
	// ContentTypeApplicationXML is the MIME type for XML
	ContentTypeApplicationXML = "application/xml"
	// ContentTypeSOAPXML is the MIME type for SOAP 1.2
	ContentTypeSOAPXML = "application/soap+xml"
)

// ErrNoEnvelope is returned when a multipart message has no SOAP part.
var ErrNoEnvelope = errors.New("SOAP envelope not found in message")

// Message represents a complete AS4 MIME message
type Message struct {
	Boundary string
	StartID  string
	Type     string
	// Envelope is the serialized SOAP envelope (root part).
	Envelope []byte
	Payloads []Payload
}

// Payload represents a MIME payload part
type Payload struct {
	ContentID       string
	ContentType     string
	ContentTransfer string
	CompressionType string
	MimeType        string
	CharacterSet    string
	Data            []byte
	Headers         textproto.MIMEHeader
}

// NewMessage creates a new MIME message with the given envelope and payloads
func NewMessage(envelope []byte, payloads []Payload) *Message {
	return &Message{
		Boundary: generateBoundary(),
		StartID:  "<" + uuid.NewString() + "@peppol.siros.org>",
		Type:     ContentTypeSOAPXML,
		Envelope: envelope,
		Payloads: payloads,
	}
}

// Serialize creates the complete MIME multipart message and returns it with
// its Content-Type header value.
func (m *Message) Serialize() ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.SetBoundary(m.Boundary); err != nil {
		return nil, "", fmt.Errorf("failed to set boundary: %w", err)
	}

	soapHeader := textproto.MIMEHeader{}
	soapHeader.Set("Content-Type", ContentTypeSOAPXML+"; charset=UTF-8")
	soapHeader.Set("Content-Transfer-Encoding", "8bit")
	soapHeader.Set("Content-ID", AddContentIDBrackets(m.StartID))

	soapPart, err := writer.CreatePart(soapHeader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create SOAP part: %w", err)
	}
	if _, err := soapPart.Write(m.Envelope); err != nil {
		return nil, "", fmt.Errorf("failed to write SOAP part: %w", err)
	}

	for _, payload := range m.Payloads {
		payloadHeader := textproto.MIMEHeader{}

		contentType := payload.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		payloadHeader.Set("Content-Type", contentType)

		transferEncoding := payload.ContentTransfer
		if transferEncoding == "" {
			transferEncoding = "binary"
		}
		payloadHeader.Set("Content-Transfer-Encoding", transferEncoding)

		contentID := payload.ContentID
		if contentID == "" {
			contentID = uuid.NewString() + "@peppol.siros.org"
		}
		payloadHeader.Set("Content-ID", AddContentIDBrackets(contentID))

		for key, values := range payload.Headers {
			for _, value := range values {
				payloadHeader.Add(key, value)
			}
		}

		payloadPart, err := writer.CreatePart(payloadHeader)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create payload part: %w", err)
		}
		if _, err := payloadPart.Write(payload.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write payload part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	// The start parameter references the Content-ID without angle brackets.
	contentType := mime.FormatMediaType(ContentTypeMultipartRelated, map[string]string{
		"boundary": m.Boundary,
		"type":     m.Type,
		"start":    GetContentIDWithoutBrackets(m.StartID),
	})

	return buf.Bytes(), contentType, nil
}

// Parse parses a MIME multipart message. The root part is the one named by
// the start parameter, or the first part when start is absent.
func Parse(r io.Reader, contentType string) (*Message, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("not a multipart message: %s", mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("boundary not found in content type")
	}

	msg := &Message{
		Boundary: boundary,
		StartID:  params["start"],
		Type:     params["type"],
	}

	reader := multipart.NewReader(r, boundary)
	first := true
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("failed to read part data: %w", err)
		}

		contentID := part.Header.Get("Content-ID")
		isEnvelope := false
		if msg.Envelope == nil {
			if msg.StartID == "" {
				isEnvelope = first
			} else {
				isEnvelope = message.MatchContentID(msg.StartID, contentID)
			}
		}
		first = false

		if isEnvelope {
			msg.Envelope = data
			continue
		}
		msg.Payloads = append(msg.Payloads, Payload{
			ContentID:       contentID,
			ContentType:     part.Header.Get("Content-Type"),
			ContentTransfer: part.Header.Get("Content-Transfer-Encoding"),
			Data:            data,
			Headers:         part.Header,
		})
	}

	if msg.Envelope == nil {
		return nil, ErrNoEnvelope
	}
	return msg, nil
}

// CorrelatePayloads enriches each payload with the PartProperties of the
// PartInfo that references it.
func (m *Message) CorrelatePayloads(userMessage *message.UserMessage) {
	meta := message.ExtractPayloadMetadata(userMessage)
	for i := range m.Payloads {
		p := &m.Payloads[i]
		md, ok := meta[message.NormalizeContentID(p.ContentID)]
		if !ok {
			continue
		}
		p.MimeType = md.MimeType
		p.CompressionType = md.CompressionType
		p.CharacterSet = md.CharacterSet
	}
}

// GetPayloadByContentID finds a payload by its Content-ID
// Handles various Content-ID formats (with/without cid:, angle brackets)
func (m *Message) GetPayloadByContentID(contentID string) *Payload {
	for i := range m.Payloads {
		if message.MatchContentID(m.Payloads[i].ContentID, contentID) {
			return &m.Payloads[i]
		}
	}
	return nil
}

func generateBoundary() string {
	return "----=_Part_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GetContentIDWithoutBrackets removes < and > from Content-ID
func GetContentIDWithoutBrackets(contentID string) string {
	contentID = strings.TrimPrefix(contentID, "<")
	contentID = strings.TrimSuffix(contentID, ">")
	return contentID
}

// AddContentIDBrackets adds < and > to Content-ID if not present
func AddContentIDBrackets(contentID string) string {
	if !strings.HasPrefix(contentID, "<") {
		contentID = "<" + contentID
	}
	if !strings.HasSuffix(contentID, ">") {
		contentID = contentID + ">"
	}
	return contentID
}
