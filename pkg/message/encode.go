package message

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// TimestampFormat is used for ebMS and WS-Security timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Token profile URIs for the BinarySecurityToken.
const (
	EncodingBase64Binary = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"
	ValueTypeX509v3      = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-x509-token-profile-1.0#X509v3"
)

// HeaderBlock is a SOAP header block that can be rendered as an element.
type HeaderBlock interface {
	Element() *etree.Element
}

// Document renders the envelope with the soap, eb, wsse and wsu prefixes
// declared on the root.
func (e *Envelope) Document() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("soap:Envelope")
	declareNamespaces(root)
	if e.Sequence != nil {
		root.CreateAttr("xmlns:wsrm", NsWSRM)
	}

	header := root.CreateElement("soap:Header")
	if e.Security != nil {
		header.AddChild(e.Security.Element())
	}
	if e.Sequence != nil {
		header.AddChild(e.Sequence.Element())
	}
	if e.Messaging != nil {
		header.AddChild(e.Messaging.Element())
	}

	body := root.CreateElement("soap:Body")
	if e.BodyID != "" {
		body.CreateAttr("wsu:Id", e.BodyID)
	}
	return doc
}

// Bytes serializes the envelope.
func (e *Envelope) Bytes() ([]byte, error) {
	b, err := e.Document().WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to write envelope: %w", err)
	}
	return b, nil
}

func declareNamespaces(root *etree.Element) {
	for _, ns := range [][2]string{
		{"soap", NsSOAPEnv},
		{"eb", NsEbMS},
		{"wsse", NsWSSE},
		{"wsu", NsWSU},
	} {
		if root.SelectAttr("xmlns:"+ns[0]) == nil {
			root.CreateAttr("xmlns:"+ns[0], ns[1])
		}
	}
}

// Element renders the ebMS3 Messaging header.
func (m *Messaging) Element() *etree.Element {
	el := etree.NewElement("eb:Messaging")
	el.CreateAttr("soap:mustUnderstand", "true")
	if m.ID != "" {
		el.CreateAttr("wsu:Id", m.ID)
	}
	if m.UserMessage != nil {
		el.AddChild(m.UserMessage.element())
	}
	if m.SignalMessage != nil {
		el.AddChild(m.SignalMessage.element())
	}
	return el
}

func (u *UserMessage) element() *etree.Element {
	el := etree.NewElement("eb:UserMessage")
	el.AddChild(u.MessageInfo.element())

	pi := el.CreateElement("eb:PartyInfo")
	u.PartyInfo.From.render(pi.CreateElement("eb:From"))
	u.PartyInfo.To.render(pi.CreateElement("eb:To"))

	ci := el.CreateElement("eb:CollaborationInfo")
	if u.CollaborationInfo.AgreementRef != "" {
		ci.CreateElement("eb:AgreementRef").SetText(u.CollaborationInfo.AgreementRef)
	}
	svc := ci.CreateElement("eb:Service")
	if u.CollaborationInfo.Service.Type != "" {
		svc.CreateAttr("type", u.CollaborationInfo.Service.Type)
	}
	svc.SetText(u.CollaborationInfo.Service.Value)
	ci.CreateElement("eb:Action").SetText(u.CollaborationInfo.Action)
	ci.CreateElement("eb:ConversationId").SetText(u.CollaborationInfo.ConversationId)

	if len(u.MessageProperties) > 0 {
		renderProperties(el.CreateElement("eb:MessageProperties"), u.MessageProperties)
	}

	if len(u.PayloadInfo) > 0 {
		pl := el.CreateElement("eb:PayloadInfo")
		for _, part := range u.PayloadInfo {
			p := pl.CreateElement("eb:PartInfo")
			p.CreateAttr("href", part.Href)
			if len(part.Properties) > 0 {
				renderProperties(p.CreateElement("eb:PartProperties"), part.Properties)
			}
		}
	}
	return el
}

func (mi MessageInfo) element() *etree.Element {
	el := etree.NewElement("eb:MessageInfo")
	el.CreateElement("eb:Timestamp").SetText(mi.Timestamp.UTC().Format(TimestampFormat))
	el.CreateElement("eb:MessageId").SetText(mi.MessageId)
	if mi.RefToMessageId != "" {
		el.CreateElement("eb:RefToMessageId").SetText(mi.RefToMessageId)
	}
	return el
}

func (p Party) render(el *etree.Element) {
	for _, id := range p.PartyId {
		pid := el.CreateElement("eb:PartyId")
		if id.Type != "" {
			pid.CreateAttr("type", id.Type)
		}
		pid.SetText(id.Value)
	}
	el.CreateElement("eb:Role").SetText(p.Role)
}

func renderProperties(parent *etree.Element, props []Property) {
	for _, prop := range props {
		p := parent.CreateElement("eb:Property")
		p.CreateAttr("name", prop.Name)
		if prop.Type != "" {
			p.CreateAttr("type", prop.Type)
		}
		p.SetText(prop.Value)
	}
}

func (s *SignalMessage) element() *etree.Element {
	el := etree.NewElement("eb:SignalMessage")
	el.AddChild(s.MessageInfo.element())

	if s.Receipt != nil {
		r := el.CreateElement("eb:Receipt")
		if nri := s.Receipt.NonRepudiation; nri != nil {
			n := r.CreateElement("ebbp:NonRepudiationInformation")
			n.CreateAttr("xmlns:ebbp", NsEbBP)
			for _, ref := range nri.References {
				part := n.CreateElement("ebbp:MessagePartNRInformation")
				dr := part.CreateElement("ds:Reference")
				dr.CreateAttr("xmlns:ds", NsDS)
				dr.CreateAttr("URI", ref.URI)
				dr.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", ref.DigestMethod)
				dr.CreateElement("ds:DigestValue").SetText(ref.DigestValue)
			}
		}
	}

	for _, e := range s.Errors {
		el.AddChild(e.element())
	}
	return el
}

func (e Error) element() *etree.Element {
	el := etree.NewElement("eb:Error")
	el.CreateAttr("errorCode", e.ErrorCode)
	el.CreateAttr("severity", e.Severity)
	if e.Category != "" {
		el.CreateAttr("category", e.Category)
	}
	if e.ShortDescription != "" {
		el.CreateAttr("shortDescription", e.ShortDescription)
	}
	if e.Origin != "" {
		el.CreateAttr("origin", e.Origin)
	}
	if e.RefToMessageInError != "" {
		el.CreateAttr("refToMessageInError", e.RefToMessageInError)
	}
	if e.Description != "" {
		d := el.CreateElement("eb:Description")
		d.CreateAttr("xml:lang", "en")
		d.SetText(e.Description)
	}
	if e.ErrorDetail != "" {
		el.CreateElement("eb:ErrorDetail").SetText(e.ErrorDetail)
	}
	return el
}

// Element renders the wsse:Security header.
func (s *Security) Element() *etree.Element {
	el := etree.NewElement("wsse:Security")
	el.CreateAttr("soap:mustUnderstand", "true")

	if bst := s.BinarySecurityToken; bst != nil {
		b := el.CreateElement("wsse:BinarySecurityToken")
		if bst.ID != "" {
			b.CreateAttr("wsu:Id", bst.ID)
		}
		b.CreateAttr("EncodingType", EncodingBase64Binary)
		b.CreateAttr("ValueType", ValueTypeX509v3)
		b.SetText(base64.StdEncoding.EncodeToString(bst.Certificate))
	}

	if ts := s.Timestamp; ts != nil {
		t := el.CreateElement("wsu:Timestamp")
		if ts.ID != "" {
			t.CreateAttr("wsu:Id", ts.ID)
		}
		t.CreateElement("wsu:Created").SetText(ts.Created.UTC().Format(TimestampFormat))
		t.CreateElement("wsu:Expires").SetText(ts.Expires.UTC().Format(TimestampFormat))
	}
	return el
}

// Element renders the wsrm:Sequence header.
func (s *Sequence) Element() *etree.Element {
	el := etree.NewElement("wsrm:Sequence")
	el.CreateAttr("xmlns:wsrm", NsWSRM)
	el.CreateAttr("soap:mustUnderstand", "true")
	if s.ID != "" {
		el.CreateAttr("wsu:Id", s.ID)
	}
	el.CreateElement("wsrm:Identifier").SetText(s.Identifier)
	el.CreateElement("wsrm:MessageNumber").SetText(strconv.FormatUint(s.MessageNumber, 10))
	return el
}

// InjectHeaders parses a serialized SOAP envelope and inserts the blocks at
// the start of its Header, in order. It fails with ErrMalformedXML if the
// input is not a well-formed SOAP envelope.
func InjectHeaders(envelopeXML []byte, blocks ...HeaderBlock) ([]byte, error) {
	doc, err := ParseDocument(envelopeXML)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if !IsSOAPEnvelope(root) {
		return nil, fmt.Errorf("%w: root element is not a SOAP 1.2 Envelope", ErrMalformedXML)
	}
	declareNamespaces(root)

	header := root.SelectElement("Header")
	if header == nil {
		header = etree.NewElement("soap:Header")
		root.InsertChildAt(0, header)
	}

	for i, b := range blocks {
		header.InsertChildAt(i, b.Element())
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to write envelope: %w", err)
	}
	return out, nil
}
