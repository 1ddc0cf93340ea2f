package pki

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/leifj/signedxml"

	"github.com/sirosfoundation/go-peppol/pkg/message"
)

// Algorithm URIs used in envelope signatures.
const (
	AlgorithmExcC14N       = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgorithmRSASHA256     = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgorithmSHA256        = "http://www.w3.org/2001/04/xmlenc#sha256"
	AlgorithmAttachmentSwA = "http://docs.oasis-open.org/wss/oasis-wss-SwAProfile-1.1#Attachment-Content-Signature-Transform"
)

const (
	securityTimestampTTL      = 5 * time.Minute
	attachmentReferenceScheme = "cid:"
)

// Attachment is a MIME part covered by an envelope signature.
type Attachment struct {
	ContentID string
	Data      []byte
}

// SignEnvelope adds a WS-Security XML signature to a SOAP 1.2 envelope using
// the participant's key. The signature covers the wsu:Timestamp, the Body,
// the ebMS Messaging header and each attachment. An existing Timestamp or
// BinarySecurityToken in the Security header is reused.
func (m *Manager) SignEnvelope(ctx context.Context, envelopeXML []byte, participantID string, attachments []Attachment) ([]byte, error) {
	rec, err := m.Certificate(ctx, participantID)
	if err != nil {
		return nil, err
	}

	doc, err := message.ParseDocument(envelopeXML)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if !message.IsSOAPEnvelope(root) {
		return nil, fmt.Errorf("%w: root element is not a SOAP 1.2 envelope", message.ErrMalformedXML)
	}
	soapPrefix := root.Space
	ensureNamespace(root, "wsse", message.NsWSSE)
	ensureNamespace(root, "wsu", message.NsWSU)

	header := root.SelectElement("Header")
	if header == nil {
		header = etree.NewElement(qualify(soapPrefix, "Header"))
		root.InsertChildAt(0, header)
	}
	security := header.SelectElement("Security")
	if security == nil || security.NamespaceURI() != message.NsWSSE {
		security = etree.NewElement("wsse:Security")
		security.CreateAttr(qualify(soapPrefix, "mustUnderstand"), "true")
		header.InsertChildAt(0, security)
	}

	bst := security.SelectElement("BinarySecurityToken")
	if bst == nil {
		bst = security.CreateElement("wsse:BinarySecurityToken")
		bst.CreateAttr("EncodingType", message.EncodingBase64Binary)
		bst.CreateAttr("ValueType", message.ValueTypeX509v3)
		bst.SetText(base64.StdEncoding.EncodeToString(rec.Certificate.Raw))
	}
	bstID := ensureID(bst, "X509-")

	ts := security.SelectElement("Timestamp")
	if ts == nil {
		now := m.now().UTC()
		ts = security.CreateElement("wsu:Timestamp")
		ts.CreateElement("wsu:Created").SetText(now.Format(message.TimestampFormat))
		ts.CreateElement("wsu:Expires").SetText(now.Add(securityTimestampTTL).Format(message.TimestampFormat))
	}
	tsID := ensureID(ts, "TS-")

	body := root.SelectElement("Body")
	if body == nil {
		return nil, fmt.Errorf("%w: SOAP Body not found", message.ErrMalformedXML)
	}
	bodyID := ensureID(body, "id-")

	sig := security.CreateElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", message.NsDS)
	signedInfo := sig.CreateElement("ds:SignedInfo")
	c14n := signedInfo.CreateElement("ds:CanonicalizationMethod")
	c14n.CreateAttr("Algorithm", AlgorithmExcC14N)
	inclusive := c14n.CreateElement("ec:InclusiveNamespaces")
	inclusive.CreateAttr("xmlns:ec", AlgorithmExcC14N)
	inclusive.CreateAttr("PrefixList", soapPrefix)
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", AlgorithmRSASHA256)

	addReference(signedInfo, tsID, "")
	addReference(signedInfo, bodyID, "")
	if messaging := message.FindMessaging(header); messaging != nil {
		addReference(signedInfo, ensureID(messaging, "id-"), soapPrefix)
	}
	for _, att := range attachments {
		addAttachmentReference(signedInfo, att)
	}

	sig.CreateElement("ds:SignatureValue")
	str := sig.CreateElement("ds:KeyInfo").CreateElement("wsse:SecurityTokenReference")
	ref := str.CreateElement("wsse:Reference")
	ref.CreateAttr("URI", "#"+bstID)
	ref.CreateAttr("ValueType", message.ValueTypeX509v3)

	xmlStr, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("serializing envelope: %w", err)
	}
	signer, err := signedxml.NewSigner(xmlStr)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	signer.SetReferenceIDAttribute("wsu:Id")
	signed, err := signer.Sign(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("signing envelope: %w", err)
	}

	m.logger.Debug("signed envelope",
		slog.String("participant", participantID),
		slog.Int("attachments", len(attachments)))
	return []byte(signed), nil
}

// VerifyEnvelope validates the XML signature of a signed envelope. With a nil
// cert the certificate is taken from the envelope's BinarySecurityToken.
// Attachment references are checked against the supplied attachments; with
// none supplied only the XML references are validated.
func (m *Manager) VerifyEnvelope(envelopeXML []byte, cert *x509.Certificate, attachments []Attachment) error {
	return VerifyEnvelope(envelopeXML, cert, attachments)
}

// VerifyEnvelope is the stateless form of (*Manager).VerifyEnvelope.
func VerifyEnvelope(envelopeXML []byte, cert *x509.Certificate, attachments []Attachment) error {
	doc, err := message.ParseDocument(envelopeXML)
	if err != nil {
		return err
	}
	sig := findSignature(doc.Root())
	if sig == nil {
		return fmt.Errorf("%w: no ds:Signature in envelope", ErrSignatureInvalid)
	}

	if cert == nil {
		cert, err = embeddedCertificate(doc.Root())
		if err != nil {
			return err
		}
	}

	validator, err := signedxml.NewValidator(string(envelopeXML))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	validator.Certificates = append(validator.Certificates, *cert)
	validator.SetReferenceIDAttribute("wsu:Id")
	if _, err := validator.ValidateReferences(); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	return verifyAttachmentDigests(sig, attachments)
}

func verifyAttachmentDigests(sig *etree.Element, attachments []Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	byID := make(map[string][]byte, len(attachments))
	for _, att := range attachments {
		byID[message.NormalizeContentID(att.ContentID)] = att.Data
	}
	for _, ref := range sig.FindElements(".//Reference") {
		uri := ref.SelectAttrValue("URI", "")
		if !strings.HasPrefix(uri, attachmentReferenceScheme) {
			continue
		}
		data, ok := byID[message.NormalizeContentID(uri)]
		if !ok {
			return fmt.Errorf("%w: attachment %s not supplied", ErrSignatureInvalid, uri)
		}
		digest := ref.SelectElement("DigestValue")
		if digest == nil {
			return fmt.Errorf("%w: reference %s has no digest", ErrSignatureInvalid, uri)
		}
		want, err := base64.StdEncoding.DecodeString(digest.Text())
		if err != nil {
			return fmt.Errorf("%w: reference %s digest: %v", ErrSignatureInvalid, uri, err)
		}
		sum := sha256.Sum256(data)
		if !bytes.Equal(want, sum[:]) {
			return fmt.Errorf("%w: attachment %s digest mismatch", ErrSignatureInvalid, uri)
		}
	}
	return nil
}

func findSignature(root *etree.Element) *etree.Element {
	for _, el := range root.FindElements(".//Signature") {
		if el.NamespaceURI() == message.NsDS {
			return el
		}
	}
	return nil
}

func embeddedCertificate(root *etree.Element) (*x509.Certificate, error) {
	for _, el := range root.FindElements(".//BinarySecurityToken") {
		if el.NamespaceURI() != message.NsWSSE {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(el.Text())
		if err != nil {
			return nil, fmt.Errorf("%w: decoding BinarySecurityToken: %v", ErrInvalidCertificate, err)
		}
		return ParseCertificate(der)
	}
	return nil, fmt.Errorf("%w: no BinarySecurityToken in envelope", ErrCertificateNotFound)
}

func addReference(signedInfo *etree.Element, id, prefixList string) {
	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "#"+id)
	transform := ref.CreateElement("ds:Transforms").CreateElement("ds:Transform")
	transform.CreateAttr("Algorithm", AlgorithmExcC14N)
	if prefixList != "" {
		incl := transform.CreateElement("ec:InclusiveNamespaces")
		incl.CreateAttr("xmlns:ec", AlgorithmExcC14N)
		incl.CreateAttr("PrefixList", prefixList)
	}
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", AlgorithmSHA256)
	ref.CreateElement("ds:DigestValue")
}

func addAttachmentReference(signedInfo *etree.Element, att Attachment) {
	sum := sha256.Sum256(att.Data)
	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", attachmentReferenceScheme+message.NormalizeContentID(att.ContentID))
	ref.CreateElement("ds:Transforms").CreateElement("ds:Transform").CreateAttr("Algorithm", AlgorithmAttachmentSwA)
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", AlgorithmSHA256)
	ref.CreateElement("ds:DigestValue").SetText(base64.StdEncoding.EncodeToString(sum[:]))
}

func ensureID(el *etree.Element, prefix string) string {
	if id := message.WSUID(el); id != "" {
		return id
	}
	id := prefix + uuid.NewString()
	el.CreateAttr("wsu:Id", id)
	return id
}

func ensureNamespace(root *etree.Element, prefix, uri string) {
	if root.SelectAttr("xmlns:"+prefix) == nil {
		root.CreateAttr("xmlns:"+prefix, uri)
	}
}

func qualify(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}
