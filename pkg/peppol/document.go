package peppol

import (
	"errors"
	"fmt"
)

// UBLVersion is the UBL syntax version used in DOCUMENTID and TypeVersion.
const UBLVersion = "2.1"

// DocumentIdentifierScheme is the PEPPOL document type identifier scheme.
const DocumentIdentifierScheme = "busdox-docid-qns"

// ProcessIdentifierScheme is the PEPPOL process identifier scheme.
const ProcessIdentifierScheme = "cenbii-procid-ubl"

// DocumentType identifies a supported business document type.
type DocumentType string

const (
	DocumentInvoice             DocumentType = "invoice"
	DocumentCreditNote          DocumentType = "credit_note"
	DocumentOrder               DocumentType = "order"
	DocumentOrderResponse       DocumentType = "order_response"
	DocumentDespatchAdvice      DocumentType = "despatch_advice"
	DocumentApplicationResponse DocumentType = "application_response"
)

// DocumentTypeInfo describes the UBL syntax and default PEPPOL identifiers
// for a document type.
type DocumentTypeInfo struct {
	Type            DocumentType
	Namespace       string
	RootElement     string
	CustomizationID string
	ProfileID       string
}

var documentTypes = map[DocumentType]DocumentTypeInfo{
	DocumentInvoice: {
		Type:            DocumentInvoice,
		Namespace:       "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2",
		RootElement:     "Invoice",
		CustomizationID: "urn:cen.eu:en16931:2017#compliant#urn:fdc:peppol.eu:2017:poacc:billing:3.0",
		ProfileID:       "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0",
	},
	DocumentCreditNote: {
		Type:            DocumentCreditNote,
		Namespace:       "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2",
		RootElement:     "CreditNote",
		CustomizationID: "urn:cen.eu:en16931:2017#compliant#urn:fdc:peppol.eu:2017:poacc:billing:3.0",
		ProfileID:       "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0",
	},
	DocumentOrder: {
		Type:            DocumentOrder,
		Namespace:       "urn:oasis:names:specification:ubl:schema:xsd:Order-2",
		RootElement:     "Order",
		CustomizationID: "urn:fdc:peppol.eu:poacc:trns:order:3",
		ProfileID:       "urn:fdc:peppol.eu:poacc:bis:ordering:3",
	},
	DocumentOrderResponse: {
		Type:            DocumentOrderResponse,
		Namespace:       "urn:oasis:names:specification:ubl:schema:xsd:OrderResponse-2",
		RootElement:     "OrderResponse",
		CustomizationID: "urn:fdc:peppol.eu:poacc:trns:order_response:3",
		ProfileID:       "urn:fdc:peppol.eu:poacc:bis:ordering:3",
	},
	DocumentDespatchAdvice: {
		Type:            DocumentDespatchAdvice,
		Namespace:       "urn:oasis:names:specification:ubl:schema:xsd:DespatchAdvice-2",
		RootElement:     "DespatchAdvice",
		CustomizationID: "urn:fdc:peppol.eu:poacc:trns:despatch_advice:3",
		ProfileID:       "urn:fdc:peppol.eu:poacc:bis:despatch_advice:3",
	},
	DocumentApplicationResponse: {
		Type:            DocumentApplicationResponse,
		Namespace:       "urn:oasis:names:specification:ubl:schema:xsd:ApplicationResponse-2",
		RootElement:     "ApplicationResponse",
		CustomizationID: "urn:fdc:peppol.eu:poacc:trns:mlr:3",
		ProfileID:       "urn:fdc:peppol.eu:poacc:bis:mlr:3",
	},
}

// ErrUnknownDocumentType is returned for document types outside the catalogue.
var ErrUnknownDocumentType = errors.New("unknown document type")

// LookupDocumentType returns the catalogue entry for t.
func LookupDocumentType(t DocumentType) (DocumentTypeInfo, error) {
	info, ok := documentTypes[t]
	if !ok {
		return DocumentTypeInfo{}, fmt.Errorf("%w: %q", ErrUnknownDocumentType, t)
	}
	return info, nil
}

// DocumentIdentifier builds the PEPPOL document type identifier,
// e.g. "<namespace>::Invoice##<customization>::2.1".
func (i DocumentTypeInfo) DocumentIdentifier(customizationID string) string {
	if customizationID == "" {
		customizationID = i.CustomizationID
	}
	return i.Namespace + "::" + i.RootElement + "##" + customizationID + "::" + UBLVersion
}

// Document is an already validated business document admitted for sending.
type Document struct {
	ID              string
	Type            DocumentType
	CustomizationID string
	ProfileID       string
	Sender          Participant
	Receiver        Participant
	// Content is the serialized business document. It may be empty, in which
	// case the SBDH enveloper synthesizes a skeleton.
	Content      []byte
	ContentType  string
	CharacterSet string
}

// TypeInfo resolves the catalogue entry for the document.
func (d *Document) TypeInfo() (DocumentTypeInfo, error) {
	return LookupDocumentType(d.Type)
}

// DocumentIdentifier returns the DOCUMENTID scope value for the document.
func (d *Document) DocumentIdentifier() (string, error) {
	info, err := d.TypeInfo()
	if err != nil {
		return "", err
	}
	return info.DocumentIdentifier(d.CustomizationID), nil
}

// ProcessIdentifier returns the PROCESSID scope value: the document's profile
// id, or the catalogue default when unset.
func (d *Document) ProcessIdentifier() (string, error) {
	if d.ProfileID != "" {
		return d.ProfileID, nil
	}
	info, err := d.TypeInfo()
	if err != nil {
		return "", err
	}
	return info.ProfileID, nil
}
