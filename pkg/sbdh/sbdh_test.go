package sbdh

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-peppol/pkg/compliance"
	"github.com/sirosfoundation/go-peppol/pkg/peppol"
)

var testTime = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func newTestEnveloper() *Enveloper {
	return NewEnveloper(
		WithClock(func() time.Time { return testTime }),
		WithIDGenerator(func() string { return "550e8400-e29b-41d4-a716-446655440000" }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func nigeriaToGermany() *peppol.Document {
	return &peppol.Document{
		ID:   "INV-001",
		Type: peppol.DocumentInvoice,
		Sender: peppol.Participant{
			Scheme:      peppol.SchemeNigerianTIN,
			Identifier:  "12345678901",
			CountryCode: "NG",
			Contact:     &peppol.Contact{Name: "Accounts", Email: "ap@example.ng"},
		},
		Receiver: peppol.Participant{
			Scheme:      peppol.SchemeGLN,
			Identifier:  "5790000435968",
			CountryCode: "DE",
		},
		Content: []byte(`<?xml version="1.0" encoding="UTF-8"?>
<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
         xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
  <cbc:ID>INV-001</cbc:ID>
</Invoice>`),
	}
}

func TestCreateEnvelope_RoundTrip(t *testing.T) {
	data, err := newTestEnveloper().CreateEnvelope(nigeriaToGermany(), RoutingMetadata{})
	require.NoError(t, err)

	rec, err := ParseEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, HeaderVersion, rec.HeaderVersion)
	assert.Equal(t, "9999:12345678901", rec.Sender.Identifier.Value)
	assert.Equal(t, peppol.ParticipantIdentifierScheme, rec.Sender.Identifier.Authority)
	assert.Equal(t, peppol.SchemeNigerianTIN, rec.Sender.Identifier.Scheme())
	assert.Equal(t, "12345678901", rec.Sender.Identifier.ID())
	assert.Equal(t, "0088:5790000435968", rec.Receiver.Identifier.Value)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", rec.DocumentIdentification.InstanceIdentifier)
	assert.Equal(t, "2025-01-15T10:30:00Z", rec.DocumentIdentification.CreationDateAndTime)
	assert.Equal(t, peppol.UBLVersion, rec.DocumentIdentification.TypeVersion)
	assert.Equal(t, "Invoice", rec.DocumentIdentification.Type)

	require.NotNil(t, rec.Sender.ContactInformation)
	assert.Equal(t, "ap@example.ng", rec.Sender.ContactInformation.EmailAddress)
	assert.Nil(t, rec.Receiver.ContactInformation)

	assert.Equal(t, "Invoice", rec.ContentRoot)
	assert.Contains(t, string(rec.Content), "INV-001")
}

func TestCreateEnvelope_CountryScopes(t *testing.T) {
	data, err := newTestEnveloper().CreateEnvelope(nigeriaToGermany(), RoutingMetadata{})
	require.NoError(t, err)

	rec, err := ParseEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, "NG", rec.Scope(ScopeCountryC1))
	assert.Equal(t, "DE", rec.Scope(ScopeCountryC4))
	assert.Equal(t, "urn:fdc:peppol.eu:2017:poacc:billing:01:1.0", rec.Scope(ScopeProcessID))
	assert.True(t, strings.HasPrefix(rec.Scope(ScopeDocumentID), "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2::Invoice##"))
}

func TestCreateEnvelope_MetadataOverrides(t *testing.T) {
	doc := nigeriaToGermany()
	data, err := newTestEnveloper().CreateEnvelope(doc, RoutingMetadata{
		InstanceIdentifier: "custom-id",
		CountryC4:          "AT",
		Scopes:             []Scope{{Type: "SENDER_ASSIGNED_ID", InstanceIdentifier: "abc"}},
	})
	require.NoError(t, err)

	rec, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "custom-id", rec.DocumentIdentification.InstanceIdentifier)
	assert.Equal(t, "AT", rec.Scope(ScopeCountryC4))
	assert.Equal(t, "abc", rec.Scope("sender_assigned_id"))
}

func TestCreateEnvelope_Skeleton(t *testing.T) {
	doc := nigeriaToGermany()
	doc.Content = nil

	data, err := newTestEnveloper().CreateEnvelope(doc, RoutingMetadata{})
	require.NoError(t, err)

	rec, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "Invoice", rec.ContentRoot)
	assert.Contains(t, string(rec.Content), "<cbc:ID>INV-001</cbc:ID>")
	assert.Contains(t, string(rec.Content), "<cbc:IssueDate>2025-01-15</cbc:IssueDate>")
}

func TestCreateEnvelope_MalformedContent(t *testing.T) {
	doc := nigeriaToGermany()
	doc.Content = []byte("<Invoice><unclosed></Invoice>")

	_, err := newTestEnveloper().CreateEnvelope(doc, RoutingMetadata{})
	assert.True(t, errors.Is(err, ErrMalformedXML))

	doc.Content = []byte("<a/><b/>")
	_, err = newTestEnveloper().CreateEnvelope(doc, RoutingMetadata{})
	assert.True(t, errors.Is(err, ErrMalformedXML))
}

func TestCreateEnvelope_InvalidDocument(t *testing.T) {
	doc := nigeriaToGermany()
	doc.Type = "unknown"
	_, err := newTestEnveloper().CreateEnvelope(doc, RoutingMetadata{})
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	_, err = newTestEnveloper().CreateEnvelope(nil, RoutingMetadata{})
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestCreateEnvelope_MissingCountryOmitsScope(t *testing.T) {
	doc := nigeriaToGermany()
	doc.Sender.CountryCode = ""

	data, err := newTestEnveloper().CreateEnvelope(doc, RoutingMetadata{})
	require.NoError(t, err)
	rec, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Empty(t, rec.Scope(ScopeCountryC1))
	assert.Equal(t, "DE", rec.Scope(ScopeCountryC4))
}

func TestParseEnvelope_Malformed(t *testing.T) {
	_, err := ParseEnvelope([]byte("<StandardBusinessDocument>"))
	assert.True(t, errors.Is(err, ErrMalformedXML))
}

func TestParseEnvelope_MissingFieldsAreEmpty(t *testing.T) {
	rec, err := ParseEnvelope([]byte(`<StandardBusinessDocument xmlns="` + Namespace + `"/>`))
	require.NoError(t, err)
	assert.Empty(t, rec.HeaderVersion)
	assert.Empty(t, rec.Sender.Identifier.Value)
	assert.Empty(t, rec.Scopes)
	assert.Nil(t, rec.Content)
}

func TestValidateCompliance_Generated(t *testing.T) {
	data, err := newTestEnveloper().CreateEnvelope(nigeriaToGermany(), RoutingMetadata{})
	require.NoError(t, err)

	r := ValidateCompliance(data)
	assert.True(t, r.Compliant)
	assert.Equal(t, 100, r.Score)
	assert.Empty(t, r.Recommendations)
}

func TestValidateCompliance_WrongRoot(t *testing.T) {
	r := ValidateCompliance([]byte(`<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"/>`))
	assert.False(t, r.Compliant)
	c, ok := r.Check(CheckRootElement)
	require.True(t, ok)
	assert.Equal(t, compliance.StatusFail, c.Status)
}

func TestValidateCompliance_WrongNamespace(t *testing.T) {
	r := ValidateCompliance([]byte(`<StandardBusinessDocument xmlns="urn:other"/>`))
	assert.False(t, r.Compliant)
	assert.Contains(t, r.Failed(), CheckRootElement)
}

func TestValidateCompliance_NotXML(t *testing.T) {
	r := ValidateCompliance([]byte("not xml"))
	assert.False(t, r.Compliant)
	assert.Contains(t, r.Failed(), CheckWellFormed)
}

func TestValidateCompliance_Findings(t *testing.T) {
	doc := `<StandardBusinessDocument xmlns="` + Namespace + `">
  <StandardBusinessDocumentHeader>
    <HeaderVersion>1.0</HeaderVersion>
    <Sender><Identifier Authority="iso6523-actorid-upis">0088:123</Identifier></Sender>
    <Receiver><Identifier Authority="iso6523-actorid-upis"></Identifier></Receiver>
    <DocumentIdentification><InstanceIdentifier>abc</InstanceIdentifier></DocumentIdentification>
    <BusinessScope>
      <Scope><Type>DOCUMENTID</Type><InstanceIdentifier>doc</InstanceIdentifier></Scope>
    </BusinessScope>
  </StandardBusinessDocumentHeader>
</StandardBusinessDocument>`

	r := ValidateCompliance([]byte(doc))
	assert.False(t, r.Compliant)
	assert.ElementsMatch(t, []string{CheckReceiver, CheckProcessIDScope}, r.Failed())
	assert.ElementsMatch(t, []string{CheckHeaderVersion, CheckContent}, r.Warnings())
	assert.NotEmpty(t, r.Recommendations)
}
