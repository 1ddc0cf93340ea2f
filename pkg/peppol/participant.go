// Package peppol defines the PEPPOL participant and business document model
// shared by the SBDH, AS4 and MLR packages.
package peppol

import (
	"errors"
	"fmt"
	"strings"
)

// ParticipantIdentifierScheme is the PEPPOL identifier scheme used in the
// SBDH Authority attribute and in AS4 message properties.
const ParticipantIdentifierScheme = "iso6523-actorid-upis"

// Scheme is an ISO 6523 International Code Designator accepted on the network.
type Scheme string

const (
	SchemeGLN         Scheme = "0088"
	SchemeDUNS        Scheme = "0060"
	SchemeLEI         Scheme = "0199"
	SchemeNationalID  Scheme = "0007"
	SchemeVATID       Scheme = "9906"
	SchemeNigerianTIN Scheme = "9999"
)

var schemeNames = map[Scheme]string{
	SchemeGLN:         "GLN",
	SchemeDUNS:        "DUNS",
	SchemeLEI:         "LEI",
	SchemeNationalID:  "NATIONAL_ID",
	SchemeVATID:       "VAT_ID",
	SchemeNigerianTIN: "NG_TIN",
}

// ErrUnknownScheme is returned when a scheme code is not in the catalogue.
var ErrUnknownScheme = errors.New("unknown participant identifier scheme")

// ParseScheme validates an ICD code.
func ParseScheme(code string) (Scheme, error) {
	s := Scheme(strings.TrimSpace(code))
	if _, ok := schemeNames[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, code)
	}
	return s, nil
}

// Valid reports whether s is a known scheme.
func (s Scheme) Valid() bool {
	_, ok := schemeNames[s]
	return ok
}

// Name returns the mnemonic for the scheme, e.g. "GLN".
func (s Scheme) Name() string {
	return schemeNames[s]
}

// Contact is optional contact information carried in the SBDH.
type Contact struct {
	Name     string
	Email    string
	Phone    string
	TypeCode string
}

// Participant is a network participant as registered by onboarding.
// This package treats it as read-only.
type Participant struct {
	// ID is the internal participant identifier used to key PKI material.
	ID          string
	Scheme      Scheme
	Identifier  string
	Name        string
	CountryCode string
	Contact     *Contact
	// Certificates holds DER encoded certificates issued to the participant.
	Certificates [][]byte
}

// QualifiedID returns the scheme-qualified identifier, e.g. "0088:5790000435968".
func (p Participant) QualifiedID() string {
	if p.Scheme == "" {
		return p.Identifier
	}
	return string(p.Scheme) + ":" + p.Identifier
}

// Key returns the identifier used for certificate lookups.
func (p Participant) Key() string {
	if p.ID != "" {
		return p.ID
	}
	return p.QualifiedID()
}

// Validate checks that the participant can be addressed on the network.
func (p Participant) Validate() error {
	if p.Identifier == "" {
		return errors.New("participant identifier is required")
	}
	if !p.Scheme.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownScheme, p.Scheme)
	}
	return nil
}

// SplitQualifiedID splits "scheme:identifier". Values without a known scheme
// prefix are returned with an empty scheme.
func SplitQualifiedID(qualified string) (Scheme, string) {
	prefix, rest, found := strings.Cut(qualified, ":")
	if !found {
		return "", qualified
	}
	if s := Scheme(prefix); s.Valid() {
		return s, rest
	}
	return "", qualified
}
