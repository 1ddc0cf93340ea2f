package sbdh

import (
	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-peppol/pkg/compliance"
)

// Check names reported by ValidateCompliance.
const (
	CheckWellFormed         = "well_formed"
	CheckRootElement        = "root_element"
	CheckHeaderVersion      = "header_version"
	CheckSender             = "sender_identifier"
	CheckReceiver           = "receiver_identifier"
	CheckInstanceIdentifier = "instance_identifier"
	CheckDocumentIDScope    = "documentid_scope"
	CheckProcessIDScope     = "processid_scope"
	CheckContent            = "document_content"
)

// ValidateCompliance checks a StandardBusinessDocument against the PEPPOL
// envelope rules.
func ValidateCompliance(data []byte) *compliance.Report {
	r := compliance.NewReport()

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil || doc.Root() == nil {
		r.Fail(CheckWellFormed, "document is not well-formed XML", "Supply a well-formed StandardBusinessDocument")
		return r.Finalize()
	}
	r.Pass(CheckWellFormed, "")

	root := doc.Root()
	if root.Tag != "StandardBusinessDocument" || root.NamespaceURI() != Namespace {
		r.Fail(CheckRootElement, "root element must be StandardBusinessDocument in "+Namespace,
			"Wrap the document in a StandardBusinessDocument element")
		return r.Finalize()
	}
	r.Pass(CheckRootElement, "")

	rec := &Record{}
	if hdr := root.SelectElement(headerElement); hdr != nil {
		readHeader(hdr, rec)
	}

	if rec.HeaderVersion == HeaderVersion {
		r.Pass(CheckHeaderVersion, "")
	} else {
		r.Warn(CheckHeaderVersion, "header version is "+quoteOrEmpty(rec.HeaderVersion)+", expected "+HeaderVersion,
			"Set HeaderVersion to "+HeaderVersion)
	}

	requireValue(r, CheckSender, rec.Sender.Identifier.Value, "Sender identifier missing",
		"Set the sender participant identifier")
	requireValue(r, CheckReceiver, rec.Receiver.Identifier.Value, "Receiver identifier missing",
		"Set the receiver participant identifier")
	requireValue(r, CheckInstanceIdentifier, rec.DocumentIdentification.InstanceIdentifier,
		"DocumentIdentification InstanceIdentifier missing", "Generate a unique InstanceIdentifier")
	requireValue(r, CheckDocumentIDScope, rec.Scope(ScopeDocumentID), "DOCUMENTID scope missing",
		"Add a DOCUMENTID business scope")
	requireValue(r, CheckProcessIDScope, rec.Scope(ScopeProcessID), "PROCESSID scope missing",
		"Add a PROCESSID business scope")

	if contentElement(root) != nil {
		r.Pass(CheckContent, "")
	} else {
		r.Warn(CheckContent, "no business document wrapped", "Include the business document after the header")
	}

	return r.Finalize()
}

func requireValue(r *compliance.Report, name, value, msg, rec string) {
	if value == "" {
		r.Fail(name, msg, rec)
		return
	}
	r.Pass(name, "")
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "empty"
	}
	return `"` + s + `"`
}
