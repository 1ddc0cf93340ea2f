package mime

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-peppol/pkg/message"
)

const testEnvelope = `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Header/><soap:Body/></soap:Envelope>`

func TestSerializeParse_RoundTrip(t *testing.T) {
	payload := []byte(`<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"/>`)
	msg := NewMessage([]byte(testEnvelope), []Payload{{
		ContentID:   "payload",
		ContentType: "application/xml",
		Data:        payload,
	}})

	body, contentType, err := msg.Serialize()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(contentType, "multipart/related;"))
	assert.Contains(t, contentType, `type="application/soap+xml"`)
	assert.Contains(t, string(body), "Content-Id: <payload>")

	parsed, err := Parse(bytes.NewReader(body), contentType)
	require.NoError(t, err)
	assert.Equal(t, testEnvelope, string(parsed.Envelope))
	require.Len(t, parsed.Payloads, 1)
	assert.Equal(t, payload, parsed.Payloads[0].Data)
	assert.Equal(t, "application/xml", parsed.Payloads[0].ContentType)
	assert.Equal(t, "binary", parsed.Payloads[0].ContentTransfer)

	assert.NotNil(t, parsed.GetPayloadByContentID("cid:payload"))
	assert.Nil(t, parsed.GetPayloadByContentID("other"))
}

func TestParse_StartParameterSelectsRoot(t *testing.T) {
	body := "--b\r\n" +
		"Content-Type: application/xml\r\n" +
		"Content-ID: <payload>\r\n\r\n" +
		"<doc/>\r\n" +
		"--b\r\n" +
		"Content-Type: application/soap+xml\r\n" +
		"Content-ID: <root@x>\r\n\r\n" +
		testEnvelope + "\r\n" +
		"--b--\r\n"

	parsed, err := Parse(strings.NewReader(body), `multipart/related; boundary=b; type="application/soap+xml"; start="<root@x>"`)
	require.NoError(t, err)
	assert.Equal(t, testEnvelope, string(parsed.Envelope))
	require.Len(t, parsed.Payloads, 1)
	assert.Equal(t, "<doc/>", string(parsed.Payloads[0].Data))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader(""), "application/soap+xml")
	assert.Error(t, err)

	_, err = Parse(strings.NewReader(""), "multipart/related")
	assert.Error(t, err)

	body := "--b\r\nContent-ID: <a>\r\n\r\nx\r\n--b--\r\n"
	_, err = Parse(strings.NewReader(body), `multipart/related; boundary=b; start="<missing>"`)
	assert.True(t, errors.Is(err, ErrNoEnvelope))
}

func TestCorrelatePayloads(t *testing.T) {
	msg := &Message{Payloads: []Payload{{ContentID: "<payload>"}, {ContentID: "<other>"}}}
	um := &message.UserMessage{PayloadInfo: []message.PartInfo{{
		Href: "cid:payload",
		Properties: []message.Property{
			{Name: message.PropMimeType, Value: "application/xml"},
			{Name: message.PropCompressionType, Value: "application/gzip"},
		},
	}}}

	msg.CorrelatePayloads(um)
	assert.Equal(t, "application/xml", msg.Payloads[0].MimeType)
	assert.Equal(t, "application/gzip", msg.Payloads[0].CompressionType)
	assert.Empty(t, msg.Payloads[1].MimeType)
}

func TestContentIDBrackets(t *testing.T) {
	assert.Equal(t, "<a>", AddContentIDBrackets("a"))
	assert.Equal(t, "<a>", AddContentIDBrackets("<a>"))
	assert.Equal(t, "a", GetContentIDWithoutBrackets("<a>"))
}
