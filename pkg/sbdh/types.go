package sbdh

import (
	"encoding/xml"
	"strings"

	"github.com/sirosfoundation/go-peppol/pkg/peppol"
)

// Namespace is the UN/CEFACT SBDH namespace.
const Namespace = "http://www.unece.org/cefact/namespaces/StandardBusinessDocumentHeader"

// HeaderVersion is the only SBDH version emitted.
const HeaderVersion = "1.3"

// Business scope types
const (
	ScopeDocumentID = "DOCUMENTID"
	ScopeProcessID  = "PROCESSID"
	ScopeCountryC1  = "COUNTRY_C1"
	ScopeCountryC4  = "COUNTRY_C4"
)

// Header is the StandardBusinessDocumentHeader element.
type Header struct {
	XMLName                xml.Name               `xml:"StandardBusinessDocumentHeader"`
	HeaderVersion          string                 `xml:"HeaderVersion"`
	Sender                 Partner                `xml:"Sender"`
	Receiver               Partner                `xml:"Receiver"`
	DocumentIdentification DocumentIdentification `xml:"DocumentIdentification"`
	BusinessScope          BusinessScope          `xml:"BusinessScope"`
}

// Partner is a Sender or Receiver block.
type Partner struct {
	Identifier         PartnerIdentifier   `xml:"Identifier"`
	ContactInformation *ContactInformation `xml:"ContactInformation,omitempty"`
}

// PartnerIdentifier is the scheme-qualified participant identifier.
type PartnerIdentifier struct {
	Authority string `xml:"Authority,attr,omitempty"`
	Value     string `xml:",chardata"`
}

// Scheme returns the ICD prefix of the identifier.
func (p PartnerIdentifier) Scheme() peppol.Scheme {
	s, _ := peppol.SplitQualifiedID(p.Value)
	return s
}

// ID returns the identifier without its ICD prefix.
func (p PartnerIdentifier) ID() string {
	_, id := peppol.SplitQualifiedID(p.Value)
	return id
}

// ContactInformation is the optional SBDH contact block.
type ContactInformation struct {
	Contact               string `xml:"Contact,omitempty"`
	EmailAddress          string `xml:"EmailAddress,omitempty"`
	TelephoneNumber       string `xml:"TelephoneNumber,omitempty"`
	ContactTypeIdentifier string `xml:"ContactTypeIdentifier,omitempty"`
}

// DocumentIdentification identifies the wrapped business document.
type DocumentIdentification struct {
	Standard            string `xml:"Standard"`
	TypeVersion         string `xml:"TypeVersion"`
	InstanceIdentifier  string `xml:"InstanceIdentifier"`
	Type                string `xml:"Type"`
	CreationDateAndTime string `xml:"CreationDateAndTime"`
}

// BusinessScope holds the routing scopes.
type BusinessScope struct {
	Scope []Scope `xml:"Scope"`
}

// Scope is a single business scope entry.
type Scope struct {
	Type               string `xml:"Type"`
	InstanceIdentifier string `xml:"InstanceIdentifier"`
	Identifier         string `xml:"Identifier,omitempty"`
}

// Record is the parsed form of a StandardBusinessDocument. Missing optional
// fields are left empty.
type Record struct {
	HeaderVersion          string
	Sender                 Partner
	Receiver               Partner
	DocumentIdentification DocumentIdentification
	Scopes                 []Scope
	// ContentRoot is the local name of the wrapped document's root element.
	ContentRoot string
	Content     []byte
}

// Scope returns the InstanceIdentifier of the first scope with the given type.
func (r *Record) Scope(scopeType string) string {
	for _, s := range r.Scopes {
		if strings.EqualFold(s.Type, scopeType) {
			return s.InstanceIdentifier
		}
	}
	return ""
}

func contactFrom(c *peppol.Contact) *ContactInformation {
	if c == nil {
		return nil
	}
	return &ContactInformation{
		Contact:               c.Name,
		EmailAddress:          c.Email,
		TelephoneNumber:       c.Phone,
		ContactTypeIdentifier: c.TypeCode,
	}
}
