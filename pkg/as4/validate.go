package as4

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-peppol/pkg/compliance"
	"github.com/sirosfoundation/go-peppol/pkg/message"
)

// Check names reported by ValidateCompliance.
const (
	CheckSOAPEnvelope     = "soap_envelope"
	CheckEbMSMessaging    = "ebms_messaging"
	CheckWSSecurity       = "ws_security"
	CheckTransportProfile = "transport_profile"
	CheckAttachments      = "attachments"
)

// ValidateCompliance checks the structure of a packaged message. Missing
// security headers and attachments are advisory; everything else fails.
func ValidateCompliance(msg *Message) *compliance.Report {
	r := compliance.NewReport()
	if msg == nil {
		r.Fail(CheckSOAPEnvelope, "no message", "Create the message with CreateMessage")
		return r.Finalize()
	}

	var root *etree.Element
	if doc, err := message.ParseDocument(msg.Envelope); err != nil {
		r.Fail(CheckSOAPEnvelope, err.Error(), "Regenerate the SOAP envelope")
	} else if !message.IsSOAPEnvelope(doc.Root()) {
		r.Fail(CheckSOAPEnvelope, fmt.Sprintf("root element is {%s}%s", doc.Root().NamespaceURI(), doc.Root().Tag),
			"Use a SOAP 1.2 Envelope as the root element")
	} else {
		root = doc.Root()
		r.Pass(CheckSOAPEnvelope, "")
	}

	var header *etree.Element
	if root != nil {
		header = root.SelectElement("Header")
	}

	switch m := findMessagingIn(header); {
	case m == nil:
		r.Fail(CheckEbMSMessaging, "eb:Messaging header missing", "Add an ebMS3 Messaging header with a UserMessage")
	case m.SelectElement("UserMessage") == nil && m.SelectElement("SignalMessage") == nil:
		r.Fail(CheckEbMSMessaging, "eb:Messaging carries no UserMessage or SignalMessage", "Add an ebMS3 UserMessage")
	default:
		r.Pass(CheckEbMSMessaging, "")
	}

	if sec := securityHeader(header); sec != nil {
		r.Pass(CheckWSSecurity, "")
	} else {
		r.Warn(CheckWSSecurity, "wsse:Security header missing", "Add a WS-Security header with timestamp and signature")
	}

	if IsRecognizedTransportProfile(msg.TransportProfile) {
		r.Pass(CheckTransportProfile, "")
	} else {
		r.Fail(CheckTransportProfile, fmt.Sprintf("unrecognized transport profile %q", msg.TransportProfile),
			fmt.Sprintf("Use %s or %s", TransportProfileAS4v2, TransportProfileBDXRAS4))
	}

	if len(msg.Attachments) > 0 {
		r.Pass(CheckAttachments, "")
	} else {
		r.Warn(CheckAttachments, "message has no attachments", "Attach the business document as the payload part")
	}

	return r.Finalize()
}

func findMessagingIn(header *etree.Element) *etree.Element {
	if header == nil {
		return nil
	}
	return message.FindMessaging(header)
}

func securityHeader(header *etree.Element) *etree.Element {
	if header == nil {
		return nil
	}
	for _, el := range header.SelectElements("Security") {
		if el.NamespaceURI() == message.NsWSSE {
			return el
		}
	}
	return nil
}
