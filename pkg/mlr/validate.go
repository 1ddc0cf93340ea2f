package mlr

import (
	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-peppol/pkg/compliance"
	"github.com/sirosfoundation/go-peppol/pkg/message"
)

// Check names reported by ValidateCompliance.
const (
	CheckWellFormed     = "well_formed"
	CheckSOAPEnvelope   = "soap_envelope"
	CheckEbMSMessaging  = "ebms_messaging"
	CheckSignalMessage  = "signal_message"
	CheckMessageInfo    = "message_info"
	CheckSignalContent  = "receipt_or_error"
	CheckRefToMessageID = "ref_to_message_id"
)

// ValidateCompliance checks the structure of an MLR signal. A missing
// RefToMessageId is a warning for receipts and errors alike; every other
// check fails hard. Checks depending on an element that is absent are
// reported as failed rather than skipped.
func ValidateCompliance(data []byte) *compliance.Report {
	r := compliance.NewReport()

	doc, err := message.ParseDocument(data)
	if err != nil {
		r.Fail(CheckWellFormed, "signal is not well-formed XML", "Supply a well-formed SOAP envelope")
		return r.Finalize()
	}
	r.Pass(CheckWellFormed, "")

	root := doc.Root()
	if message.IsSOAPEnvelope(root) {
		r.Pass(CheckSOAPEnvelope, "")
	} else {
		r.Fail(CheckSOAPEnvelope, "root element is not a SOAP 1.2 Envelope", "Use a SOAP 1.2 Envelope as the root element")
	}

	messaging := message.FindMessaging(root)
	if messaging == nil {
		r.Fail(CheckEbMSMessaging, "eb:Messaging header missing", "Add an ebMS3 Messaging header")
	} else {
		r.Pass(CheckEbMSMessaging, "")
	}

	var signal *etree.Element
	if messaging != nil {
		signal = messaging.SelectElement("SignalMessage")
	}
	if signal == nil {
		r.Fail(CheckSignalMessage, "eb:SignalMessage missing", "Add an eb:SignalMessage to the Messaging header")
	} else {
		r.Pass(CheckSignalMessage, "")
	}

	var info *etree.Element
	if signal != nil {
		info = signal.SelectElement("MessageInfo")
	}
	switch {
	case info == nil:
		r.Fail(CheckMessageInfo, "eb:MessageInfo missing", "Add MessageInfo with MessageId and Timestamp")
	case childText(info, "MessageId") == "" || childText(info, "Timestamp") == "":
		r.Fail(CheckMessageInfo, "MessageInfo lacks MessageId or Timestamp", "Add MessageInfo with MessageId and Timestamp")
	default:
		r.Pass(CheckMessageInfo, "")
	}

	if signal != nil && (signal.SelectElement("Receipt") != nil || signal.SelectElement("Error") != nil) {
		r.Pass(CheckSignalContent, "")
	} else {
		r.Fail(CheckSignalContent, "signal carries neither Receipt nor Error", "Add an eb:Receipt or eb:Error")
	}

	if info != nil && childText(info, "RefToMessageId") != "" {
		r.Pass(CheckRefToMessageID, "")
	} else {
		r.Warn(CheckRefToMessageID, "RefToMessageId missing", "Reference the message the signal responds to")
	}

	return r.Finalize()
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}
