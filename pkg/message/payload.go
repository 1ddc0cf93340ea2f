package message

import (
	"strings"
)

// Well-known PartProperties
const (
	PropMimeType        = "MimeType"
	PropCharacterSet    = "CharacterSet"
	PropCompressionType = "CompressionType"
)

// PayloadMetadata contains metadata extracted from PartInfo for a payload
type PayloadMetadata struct {
	// Href is the Content-ID reference (e.g., "cid:payload")
	Href string
	// ContentID is the href without the "cid:" prefix
	ContentID       string
	MimeType        string
	CompressionType string
	CharacterSet    string
	Properties      map[string]string
}

// ExtractPayloadMetadata extracts metadata from UserMessage PayloadInfo.
// Returns a map from Content-ID (without cid: prefix) to PayloadMetadata.
func ExtractPayloadMetadata(userMsg *UserMessage) map[string]*PayloadMetadata {
	result := make(map[string]*PayloadMetadata)
	if userMsg == nil {
		return result
	}

	for _, partInfo := range userMsg.PayloadInfo {
		contentID := NormalizeContentID(partInfo.Href)
		meta := &PayloadMetadata{
			Href:       partInfo.Href,
			ContentID:  contentID,
			Properties: make(map[string]string, len(partInfo.Properties)),
		}
		for _, prop := range partInfo.Properties {
			meta.Properties[prop.Name] = prop.Value
			switch prop.Name {
			case PropMimeType:
				meta.MimeType = prop.Value
			case PropCompressionType:
				meta.CompressionType = prop.Value
			case PropCharacterSet:
				meta.CharacterSet = prop.Value
			}
		}
		result[contentID] = meta
	}

	return result
}

// NormalizeContentID normalizes a Content-ID by removing angle brackets and cid: prefix
func NormalizeContentID(contentID string) string {
	contentID = strings.TrimPrefix(contentID, "cid:")
	contentID = strings.TrimPrefix(contentID, "<")
	contentID = strings.TrimSuffix(contentID, ">")
	return contentID
}

// MatchContentID checks if two Content-IDs match, ignoring formatting differences
func MatchContentID(id1, id2 string) bool {
	return NormalizeContentID(id1) == NormalizeContentID(id2)
}

// NewPartInfo creates a new PartInfo with the given Content-ID
func NewPartInfo(contentID string) PartInfo {
	return PartInfo{Href: "cid:" + NormalizeContentID(contentID)}
}

// AddProperty adds a property to PartInfo
func (p *PartInfo) AddProperty(name, value string) {
	p.Properties = append(p.Properties, Property{Name: name, Value: value})
}

// Property returns the value of the named part property.
func (p *PartInfo) Property(name string) string {
	for _, prop := range p.Properties {
		if prop.Name == name {
			return prop.Value
		}
	}
	return ""
}
