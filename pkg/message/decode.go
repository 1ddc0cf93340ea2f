package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// ErrMalformedXML is returned when input cannot be parsed as XML.
var ErrMalformedXML = errors.New("malformed XML")

// ErrNoMessaging is returned when a document carries no ebMS3 Messaging header.
var ErrNoMessaging = errors.New("no ebMS3 Messaging header")

// ParseDocument parses raw XML, wrapping parse failures in ErrMalformedXML.
func ParseDocument(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedXML)
	}
	return doc, nil
}

// IsSOAPEnvelope reports whether el is a SOAP 1.2 Envelope element.
func IsSOAPEnvelope(el *etree.Element) bool {
	return el != nil && el.Tag == "Envelope" && el.NamespaceURI() == NsSOAPEnv
}

// FindMessaging returns the first ebMS3 Messaging element below root,
// or root itself when it is one.
func FindMessaging(root *etree.Element) *etree.Element {
	if isEbMS(root, "Messaging") {
		return root
	}
	for _, el := range root.FindElements(".//Messaging") {
		if el.NamespaceURI() == NsEbMS {
			return el
		}
	}
	return nil
}

// DecodeEnvelope decodes a SOAP envelope. Missing optional elements are left
// zero; only unparseable XML or the absence of a Messaging header fail.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()

	env := &Envelope{}
	if m := FindMessaging(root); m != nil {
		env.Messaging = DecodeMessaging(m)
	} else {
		return nil, ErrNoMessaging
	}

	if header := root.SelectElement("Header"); header != nil {
		if sec := header.SelectElement("Security"); sec != nil {
			env.Security = decodeSecurity(sec)
		}
		if seq := header.SelectElement("Sequence"); seq != nil {
			env.Sequence = decodeSequence(seq)
		}
	}
	if body := root.SelectElement("Body"); body != nil {
		env.BodyID = WSUID(body)
	}
	return env, nil
}

// DecodeMessaging decodes a Messaging element.
func DecodeMessaging(el *etree.Element) *Messaging {
	m := &Messaging{ID: WSUID(el)}
	if um := el.SelectElement("UserMessage"); um != nil {
		m.UserMessage = decodeUserMessage(um)
	}
	if sm := el.SelectElement("SignalMessage"); sm != nil {
		m.SignalMessage = DecodeSignalMessage(sm)
	}
	return m
}

func decodeUserMessage(el *etree.Element) *UserMessage {
	u := &UserMessage{}
	if mi := el.SelectElement("MessageInfo"); mi != nil {
		u.MessageInfo = decodeMessageInfo(mi)
	}
	if pi := el.SelectElement("PartyInfo"); pi != nil {
		u.PartyInfo.From = decodeParty(pi.SelectElement("From"))
		u.PartyInfo.To = decodeParty(pi.SelectElement("To"))
	}
	if ci := el.SelectElement("CollaborationInfo"); ci != nil {
		u.CollaborationInfo = CollaborationInfo{
			AgreementRef:   text(ci, "AgreementRef"),
			Action:         text(ci, "Action"),
			ConversationId: text(ci, "ConversationId"),
		}
		if svc := ci.SelectElement("Service"); svc != nil {
			u.CollaborationInfo.Service = Service{
				Type:  svc.SelectAttrValue("type", ""),
				Value: strings.TrimSpace(svc.Text()),
			}
		}
	}
	if mp := el.SelectElement("MessageProperties"); mp != nil {
		u.MessageProperties = decodeProperties(mp)
	}
	if pl := el.SelectElement("PayloadInfo"); pl != nil {
		for _, p := range pl.SelectElements("PartInfo") {
			part := PartInfo{Href: p.SelectAttrValue("href", "")}
			if pp := p.SelectElement("PartProperties"); pp != nil {
				part.Properties = decodeProperties(pp)
			}
			u.PayloadInfo = append(u.PayloadInfo, part)
		}
	}
	return u
}

// DecodeSignalMessage decodes a SignalMessage element.
func DecodeSignalMessage(el *etree.Element) *SignalMessage {
	s := &SignalMessage{}
	if mi := el.SelectElement("MessageInfo"); mi != nil {
		s.MessageInfo = decodeMessageInfo(mi)
	}
	if r := el.SelectElement("Receipt"); r != nil {
		s.Receipt = &Receipt{}
		if nri := r.FindElement(".//NonRepudiationInformation"); nri != nil {
			s.Receipt.NonRepudiation = &NonRepudiationInformation{}
			for _, ref := range nri.FindElements(".//Reference") {
				dm := ref.SelectElement("DigestMethod")
				s.Receipt.NonRepudiation.References = append(s.Receipt.NonRepudiation.References, Reference{
					URI:          ref.SelectAttrValue("URI", ""),
					DigestMethod: attrOf(dm, "Algorithm"),
					DigestValue:  text(ref, "DigestValue"),
				})
			}
		}
	}
	for _, e := range el.SelectElements("Error") {
		s.Errors = append(s.Errors, Error{
			ErrorCode:           e.SelectAttrValue("errorCode", ""),
			Severity:            e.SelectAttrValue("severity", ""),
			Category:            e.SelectAttrValue("category", ""),
			ShortDescription:    e.SelectAttrValue("shortDescription", ""),
			Origin:              e.SelectAttrValue("origin", ""),
			RefToMessageInError: e.SelectAttrValue("refToMessageInError", ""),
			Description:         text(e, "Description"),
			ErrorDetail:         text(e, "ErrorDetail"),
		})
	}
	return s
}

func decodeMessageInfo(el *etree.Element) MessageInfo {
	return MessageInfo{
		Timestamp:      ParseTimestamp(text(el, "Timestamp")),
		MessageId:      text(el, "MessageId"),
		RefToMessageId: text(el, "RefToMessageId"),
	}
}

func decodeParty(el *etree.Element) Party {
	var p Party
	if el == nil {
		return p
	}
	for _, id := range el.SelectElements("PartyId") {
		p.PartyId = append(p.PartyId, PartyId{
			Type:  id.SelectAttrValue("type", ""),
			Value: strings.TrimSpace(id.Text()),
		})
	}
	p.Role = text(el, "Role")
	return p
}

func decodeProperties(el *etree.Element) []Property {
	var props []Property
	for _, p := range el.SelectElements("Property") {
		props = append(props, Property{
			Name:  p.SelectAttrValue("name", ""),
			Type:  p.SelectAttrValue("type", ""),
			Value: strings.TrimSpace(p.Text()),
		})
	}
	return props
}

func decodeSecurity(el *etree.Element) *Security {
	s := &Security{Signed: el.SelectElement("Signature") != nil}
	if ts := el.SelectElement("Timestamp"); ts != nil {
		s.Timestamp = &Timestamp{
			ID:      WSUID(ts),
			Created: ParseTimestamp(text(ts, "Created")),
			Expires: ParseTimestamp(text(ts, "Expires")),
		}
	}
	return s
}

func decodeSequence(el *etree.Element) *Sequence {
	n, _ := strconv.ParseUint(text(el, "MessageNumber"), 10, 64)
	return &Sequence{
		ID:            WSUID(el),
		Identifier:    text(el, "Identifier"),
		MessageNumber: n,
	}
}

// ParseTimestamp parses an xsd:dateTime value, returning the zero time when
// the value is empty or invalid.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// WSUID returns the wsu:Id attribute of el, whatever prefix is bound to the
// utility namespace.
func WSUID(el *etree.Element) string {
	for _, a := range el.Attr {
		if a.Key == "Id" && a.NamespaceURI() == NsWSU {
			return a.Value
		}
	}
	return ""
}

func isEbMS(el *etree.Element, tag string) bool {
	return el != nil && el.Tag == tag && el.NamespaceURI() == NsEbMS
}

func text(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func attrOf(el *etree.Element, key string) string {
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(key, "")
}
