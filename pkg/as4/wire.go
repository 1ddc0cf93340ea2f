package as4

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sirosfoundation/go-peppol/pkg/compression"
	"github.com/sirosfoundation/go-peppol/pkg/message"
	"github.com/sirosfoundation/go-peppol/pkg/mime"
)

// Serialize renders the message as a multipart/related body and returns it
// together with its Content-Type header value.
func (m *Message) Serialize() ([]byte, string, error) {
	payloads := make([]mime.Payload, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		payloads = append(payloads, mime.Payload{
			ContentID:   a.ContentID,
			ContentType: a.ContentType,
			Data:        a.Data,
		})
	}
	return mime.NewMessage(m.Envelope, payloads).Serialize()
}

// ParseMessage decodes a received AS4 UserMessage from an HTTP body.
// Plain SOAP bodies are accepted and yield a message without attachments.
func ParseMessage(contentType string, body []byte) (*Message, error) {
	envelope := body
	var parts *mime.Message
	if isMultipart(contentType) {
		var err error
		parts, err = mime.Parse(bytes.NewReader(body), contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		envelope = parts.Envelope
	}

	env, err := message.DecodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	um := env.Messaging.UserMessage
	if um == nil {
		return nil, fmt.Errorf("%w: no UserMessage", ErrInvalidMessage)
	}

	msg := &Message{
		MessageID:      um.MessageInfo.MessageId,
		Timestamp:      um.MessageInfo.Timestamp,
		ConversationID: um.CollaborationInfo.ConversationId,
		MessagingID:    env.Messaging.ID,
		Envelope:       envelope,
		UserMessage:    um,
	}
	if env.Sequence != nil {
		msg.ReceiptRequested = true
		msg.SequenceID = env.Sequence.Identifier
	}

	if parts != nil {
		parts.CorrelatePayloads(um)
		for _, p := range parts.Payloads {
			msg.Attachments = append(msg.Attachments, Attachment{
				ContentID:    message.NormalizeContentID(p.ContentID),
				ContentType:  p.ContentType,
				MimeType:     p.MimeType,
				CharacterSet: p.CharacterSet,
				Size:         len(p.Data),
				Compressed:   p.CompressionType == compression.CompressionTypeGzip,
				Data:         p.Data,
			})
		}
	}
	return msg, nil
}

// Payload returns the attachment referenced as "payload", or nil.
func (m *Message) Payload() *Attachment {
	for i := range m.Attachments {
		if message.MatchContentID(m.Attachments[i].ContentID, PayloadContentID) {
			return &m.Attachments[i]
		}
	}
	return nil
}

func isMultipart(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "multipart/")
}
