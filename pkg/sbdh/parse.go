package sbdh

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

const headerElement = "StandardBusinessDocumentHeader"

// ParseEnvelope extracts the header fields and the wrapped content. It fails
// only when the input is not parseable XML; missing fields are left empty.
func ParseEnvelope(data []byte) (*Record, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedXML)
	}

	rec := &Record{}
	if hdr := root.SelectElement(headerElement); hdr != nil {
		readHeader(hdr, rec)
	}

	if content := contentElement(root); content != nil {
		rec.ContentRoot = content.Tag
		out, err := detach(root, content)
		if err != nil {
			return nil, err
		}
		rec.Content = out
	}
	return rec, nil
}

func readHeader(hdr *etree.Element, rec *Record) {
	rec.HeaderVersion = childText(hdr, "HeaderVersion")
	rec.Sender = readPartner(hdr.SelectElement("Sender"))
	rec.Receiver = readPartner(hdr.SelectElement("Receiver"))

	if di := hdr.SelectElement("DocumentIdentification"); di != nil {
		rec.DocumentIdentification = DocumentIdentification{
			Standard:            childText(di, "Standard"),
			TypeVersion:         childText(di, "TypeVersion"),
			InstanceIdentifier:  childText(di, "InstanceIdentifier"),
			Type:                childText(di, "Type"),
			CreationDateAndTime: childText(di, "CreationDateAndTime"),
		}
	}

	if bs := hdr.SelectElement("BusinessScope"); bs != nil {
		for _, s := range bs.SelectElements("Scope") {
			rec.Scopes = append(rec.Scopes, Scope{
				Type:               childText(s, "Type"),
				InstanceIdentifier: childText(s, "InstanceIdentifier"),
				Identifier:         childText(s, "Identifier"),
			})
		}
	}
}

func readPartner(el *etree.Element) Partner {
	var p Partner
	if el == nil {
		return p
	}
	if id := el.SelectElement("Identifier"); id != nil {
		p.Identifier = PartnerIdentifier{
			Authority: id.SelectAttrValue("Authority", ""),
			Value:     strings.TrimSpace(id.Text()),
		}
	}
	if ci := el.SelectElement("ContactInformation"); ci != nil {
		p.ContactInformation = &ContactInformation{
			Contact:               childText(ci, "Contact"),
			EmailAddress:          childText(ci, "EmailAddress"),
			TelephoneNumber:       childText(ci, "TelephoneNumber"),
			ContactTypeIdentifier: childText(ci, "ContactTypeIdentifier"),
		}
	}
	return p
}

// contentElement returns the first child of the root that is not the header.
func contentElement(root *etree.Element) *etree.Element {
	for _, child := range root.ChildElements() {
		if child.Tag != headerElement {
			return child
		}
	}
	return nil
}

// detach serializes el as a standalone document, carrying over namespace
// declarations made on the envelope root that el does not redeclare.
func detach(root, el *etree.Element) ([]byte, error) {
	cp := el.Copy()
	for _, attr := range root.Attr {
		if attr.Space != "xmlns" {
			continue
		}
		if cp.SelectAttr("xmlns:"+attr.Key) == nil {
			cp.CreateAttr("xmlns:"+attr.Key, attr.Value)
		}
	}

	out := etree.NewDocument()
	out.SetRoot(cp)
	b, err := out.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing document content: %w", err)
	}
	return b, nil
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}
