package as4

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"

	"github.com/sirosfoundation/go-peppol/pkg/message"
	"github.com/sirosfoundation/go-peppol/pkg/pki"
)

// SignalEnvelope is a serialized SOAP envelope carrying a SignalMessage.
type SignalEnvelope struct {
	MessageID      string
	RefToMessageID string
	Timestamp      time.Time
	Signal         *message.SignalMessage
	Envelope       []byte
}

// GenerateDeliveryReceipt builds the receipt for a received message. When the
// original was signed, its signature references are echoed as
// non-repudiation information; otherwise the eb:Messaging header is
// referenced by its wsu:Id with a SHA-256 digest.
func (p *Packager) GenerateDeliveryReceipt(original *Message) (*SignalEnvelope, error) {
	if original == nil || original.MessageID == "" {
		return nil, errors.New("original message id is required")
	}

	nri, err := nonRepudiation(original)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	signal := message.NewReceipt(original.MessageID, nri)
	signal.MessageInfo.Timestamp = now

	raw, err := signalEnvelope(signal, now)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("generated delivery receipt",
		slog.String("message_id", signal.MessageInfo.MessageId),
		slog.String("ref_to_message_id", original.MessageID),
		slog.Int("references", len(nri.References)))

	return &SignalEnvelope{
		MessageID:      signal.MessageInfo.MessageId,
		RefToMessageID: original.MessageID,
		Timestamp:      now,
		Signal:         signal,
		Envelope:       raw,
	}, nil
}

// GenerateErrorSignal builds an error signal for a received message.
// refToMessageID may be empty when the message could not be identified.
func (p *Packager) GenerateErrorSignal(refToMessageID string, code message.ErrorCode, detail string) (*SignalEnvelope, error) {
	now := p.now().UTC()
	signal := message.NewError(refToMessageID, code, detail)
	signal.MessageInfo.Timestamp = now

	raw, err := signalEnvelope(signal, now)
	if err != nil {
		return nil, err
	}
	return &SignalEnvelope{
		MessageID:      signal.MessageInfo.MessageId,
		RefToMessageID: refToMessageID,
		Timestamp:      now,
		Signal:         signal,
		Envelope:       raw,
	}, nil
}

func signalEnvelope(signal *message.SignalMessage, now time.Time) ([]byte, error) {
	env := &message.Envelope{
		Security: &message.Security{Timestamp: &message.Timestamp{
			ID:      newWSUID("TS-"),
			Created: now,
			Expires: now.Add(SecurityTimestampTTL),
		}},
		Messaging: &message.Messaging{ID: newWSUID("id-"), SignalMessage: signal},
		BodyID:    newWSUID("id-"),
	}
	return env.Bytes()
}

func nonRepudiation(original *Message) (*message.NonRepudiationInformation, error) {
	nri := &message.NonRepudiationInformation{}
	if len(original.Envelope) == 0 {
		nri.References = append(nri.References, message.Reference{
			URI:          "#" + firstNonEmpty(original.MessagingID, original.MessageID),
			DigestMethod: pki.AlgorithmSHA256,
		})
		return nri, nil
	}

	doc, err := message.ParseDocument(original.Envelope)
	if err != nil {
		return nil, fmt.Errorf("reading original envelope: %w", err)
	}
	root := doc.Root()

	if si := signedInfo(root); si != nil {
		for _, ref := range si.SelectElements("Reference") {
			dm := ref.SelectElement("DigestMethod")
			dv := ref.SelectElement("DigestValue")
			r := message.Reference{URI: ref.SelectAttrValue("URI", "")}
			if dm != nil {
				r.DigestMethod = dm.SelectAttrValue("Algorithm", "")
			}
			if dv != nil {
				r.DigestValue = dv.Text()
			}
			nri.References = append(nri.References, r)
		}
		if len(nri.References) > 0 {
			return nri, nil
		}
	}

	messaging := message.FindMessaging(root)
	if messaging == nil {
		return nil, message.ErrNoMessaging
	}
	id := firstNonEmpty(message.WSUID(messaging), original.MessagingID, original.MessageID)

	canonical, err := signedxml.ExclusiveCanonicalization{}.ProcessElement(messaging, "")
	if err != nil {
		return nil, fmt.Errorf("canonicalizing Messaging header: %w", err)
	}
	sum := sha256.Sum256([]byte(canonical))
	nri.References = append(nri.References, message.Reference{
		URI:          "#" + id,
		DigestMethod: pki.AlgorithmSHA256,
		DigestValue:  base64.StdEncoding.EncodeToString(sum[:]),
	})
	return nri, nil
}

func signedInfo(root *etree.Element) *etree.Element {
	for _, el := range root.FindElements(".//SignedInfo") {
		if el.NamespaceURI() == message.NsDS {
			return el
		}
	}
	return nil
}
