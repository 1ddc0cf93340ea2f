package pki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of a security token when none is given.
const DefaultTokenTTL = time.Hour

// SecurityToken is a participant-signed bearer token.
type SecurityToken struct {
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Subject   string    `json:"participant_id"`
	Scopes    []string  `json:"scopes"`
	// Signature is the base64url signature segment of Raw.
	Signature string `json:"signature"`
	Raw       string `json:"token"`
}

// TokenValidation reports signature validity and expiry independently.
type TokenValidation struct {
	Valid          bool           `json:"valid"`
	SignatureValid bool           `json:"signature_valid"`
	Expired        bool           `json:"expired"`
	Token          *SecurityToken `json:"token,omitempty"`
	Error          string         `json:"error,omitempty"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// CreateSecurityToken issues an RS256 token for the participant, signed with
// its installed key. A zero ttl selects DefaultTokenTTL.
func (m *Manager) CreateSecurityToken(ctx context.Context, participantID string, scopes []string, ttl time.Duration) (*SecurityToken, error) {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	if ttl < time.Second {
		return nil, fmt.Errorf("%w: ttl must be at least one second", ErrInvalidToken)
	}

	rec, err := m.Certificate(ctx, participantID)
	if err != nil {
		return nil, err
	}

	issued := m.now().UTC().Truncate(time.Second)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
		Scopes: append([]string{}, scopes...),
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	m.logger.Debug("issued security token",
		slog.String("participant", participantID),
		slog.String("token_id", claims.ID),
		slog.Time("expires_at", issued.Add(ttl)))

	return tokenFromClaims(raw, &claims), nil
}

// ValidateSecurityToken checks raw against the participant's certificate.
// Expiry is strict: a token is expired at exactly its expiry instant.
func (m *Manager) ValidateSecurityToken(ctx context.Context, raw, participantID string) (*TokenValidation, error) {
	rec, err := m.Certificate(ctx, participantID)
	if err != nil {
		return nil, err
	}

	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return &TokenValidation{Error: fmt.Sprintf("%v: %v", ErrInvalidToken, err)}, nil
	}

	res := &TokenValidation{Token: tokenFromClaims(raw, &claims)}

	_, err = jwt.ParseWithClaims(raw, &tokenClaims{}, func(*jwt.Token) (any, error) {
		return rec.Certificate.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithoutClaimsValidation())
	switch {
	case err == nil:
		res.SignatureValid = true
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		res.Error = "token signature is invalid"
	default:
		res.Error = err.Error()
	}

	res.Expired = !m.now().Before(res.Token.ExpiresAt)
	if res.Expired && res.Error == "" {
		res.Error = "token has expired"
	}

	subjectMatches := claims.Subject == participantID
	if !subjectMatches && res.Error == "" {
		res.Error = fmt.Sprintf("token subject %q does not match participant", claims.Subject)
	}

	res.Valid = res.SignatureValid && !res.Expired && subjectMatches
	return res, nil
}

func tokenFromClaims(raw string, c *tokenClaims) *SecurityToken {
	t := &SecurityToken{
		TokenID: c.ID,
		Subject: c.Subject,
		Scopes:  c.Scopes,
		Raw:     raw,
	}
	if c.IssuedAt != nil {
		t.IssuedAt = c.IssuedAt.UTC()
	}
	if c.ExpiresAt != nil {
		t.ExpiresAt = c.ExpiresAt.UTC()
	}
	if i := strings.LastIndexByte(raw, '.'); i >= 0 {
		t.Signature = raw[i+1:]
	}
	return t
}
