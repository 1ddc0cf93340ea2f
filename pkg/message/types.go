// Package message provides the ebMS3 message model and its SOAP 1.2 wire form.
package message

import (
	"time"
)

// Namespace constants for AS4/ebMS3
const (
	NsSOAPEnv = "http://www.w3.org/2003/05/soap-envelope"
	NsEbMS    = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/"
	NsWSSE    = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	NsWSU     = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	NsWSRM    = "http://docs.oasis-open.org/ws-rx/wsrm/200702"
	NsDS      = "http://www.w3.org/2000/09/xmldsig#"
	NsEbBP    = "http://docs.oasis-open.org/ebxml-bp/ebbp-signals-2.0"
)

// Party roles
const (
	RoleInitiator = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/initiator"
	RoleResponder = "http://docs.oasis-open.org/ebxml-msg/ebms/v3.0/ns/core/200704/responder"
)

// PartyIDTypePrefix is prepended to the ISO 6523 ICD to form a PartyId type.
const PartyIDTypePrefix = "urn:oasis:names:tc:ebcore:partyid-type:iso6523:"

// Envelope is a SOAP 1.2 envelope carrying an ebMS3 Messaging header and
// optional WS-Security and WS-ReliableMessaging headers. The body is empty;
// payloads travel as MIME attachments.
type Envelope struct {
	Security  *Security
	Sequence  *Sequence
	Messaging *Messaging
	// BodyID is the wsu:Id of the SOAP Body.
	BodyID string
}

// Messaging represents the ebMS3 Messaging header
type Messaging struct {
	// ID is the wsu:Id used as signature and non-repudiation reference.
	ID            string
	UserMessage   *UserMessage
	SignalMessage *SignalMessage
}

// UserMessage represents an ebMS3 UserMessage
type UserMessage struct {
	MessageInfo       MessageInfo
	PartyInfo         PartyInfo
	CollaborationInfo CollaborationInfo
	MessageProperties []Property
	PayloadInfo       []PartInfo
}

// MessageInfo contains message identification and timestamps
type MessageInfo struct {
	Timestamp      time.Time
	MessageId      string
	RefToMessageId string
}

// PartyInfo contains sender and receiver party information
type PartyInfo struct {
	From Party
	To   Party
}

// Party represents a messaging party
type Party struct {
	PartyId []PartyId
	Role    string
}

// PartyId represents a party identifier with type
type PartyId struct {
	Type  string
	Value string
}

// CollaborationInfo contains service and action information
type CollaborationInfo struct {
	AgreementRef   string
	Service        Service
	Action         string
	ConversationId string
}

// Service identifies the service
type Service struct {
	Type  string
	Value string
}

// Property represents a message or part property
type Property struct {
	Name  string
	Type  string
	Value string
}

// PartInfo describes a payload part
type PartInfo struct {
	Href       string
	Properties []Property
}

// SignalMessage represents an ebMS3 SignalMessage (Receipt or Error)
type SignalMessage struct {
	MessageInfo MessageInfo
	Receipt     *Receipt
	Errors      []Error
}

// Receipt represents a receipt acknowledgment. A receipt without
// non-repudiation information is a reception-awareness receipt.
type Receipt struct {
	NonRepudiation *NonRepudiationInformation
}

// NonRepudiationInformation lists the digests of the acknowledged message.
type NonRepudiationInformation struct {
	References []Reference
}

// Reference is a ds:Reference inside non-repudiation information.
type Reference struct {
	URI          string
	DigestMethod string
	DigestValue  string
}

// Error represents an ebMS3 error
type Error struct {
	ErrorCode           string
	Severity            string
	Category            string
	ShortDescription    string
	Origin              string
	RefToMessageInError string
	Description         string
	ErrorDetail         string
}

// Security is the WS-Security header content emitted by this package.
type Security struct {
	Timestamp           *Timestamp
	BinarySecurityToken *BinarySecurityToken
	// Signed is set on decode when the header carries a ds:Signature.
	Signed bool
}

// Timestamp is a wsu:Timestamp freshness window.
type Timestamp struct {
	ID      string
	Created time.Time
	Expires time.Time
}

// BinarySecurityToken carries a DER encoded X.509 certificate.
type BinarySecurityToken struct {
	ID          string
	Certificate []byte
}

// Sequence is the WS-ReliableMessaging Sequence header.
type Sequence struct {
	ID            string
	Identifier    string
	MessageNumber uint64
}
