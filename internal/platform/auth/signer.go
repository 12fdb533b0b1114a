package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType discriminates the credential kinds this service mints. Verify
// callers must check the type before trusting any other claim, so a share
// token can never be replayed where a session token is expected.
type TokenType string

const (
	TokenSession   TokenType = "SESSION"
	TokenShare     TokenType = "SHARE"
	TokenEmergency TokenType = "EMERGENCY"
)

// ErrInvalidToken is the single failure outcome of Verify. Signature
// mismatch, malformed structure and expiry are deliberately
// indistinguishable to the caller.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the signed claim set carried by every minted token.
type Claims struct {
	jwt.RegisteredClaims
	Type      TokenType `json:"typ"`
	Role      Role      `json:"role,omitempty"`
	PatientID string    `json:"patient_id,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
}

// Signer mints and verifies compact HMAC-SHA256 tokens. It holds the
// process-wide key material, loaded once at startup: the first key signs,
// every key verifies, which leaves room for key rotation.
type Signer struct {
	keys [][]byte
}

func NewSigner(keys [][]byte) (*Signer, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one signing key is required")
	}
	for i, k := range keys {
		if len(k) < 32 {
			return nil, fmt.Errorf("signing key %d is too short: %d bytes", i, len(k))
		}
	}
	return &Signer{keys: keys}, nil
}

// GenerateKey returns 32 bytes of fresh random key material. Used for the
// ephemeral development key when TOKEN_SIGNING_KEYS is not configured.
func GenerateKey() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	return b, nil
}

// Mint produces a signed, self-contained token encoding claims with an
// absolute expiry of now + ttl. No server-side state is created.
func (s *Signer) Mint(claims Claims, ttl time.Duration) (string, error) {
	if claims.Type == "" {
		return "", fmt.Errorf("token type is required")
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(s.keys[0])
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature integrity and expiry against every accepted key.
// Any failure collapses to ErrInvalidToken.
func (s *Signer) Verify(tokenStr string) (*Claims, error) {
	for _, key := range s.keys {
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			continue
		}
		if claims.Type == "" || claims.ExpiresAt == nil {
			break
		}
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// SessionClaims builds the claim set for an interactive login session.
func SessionClaims(principalID uuid.UUID, role Role) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: principalID.String()},
		Type:             TokenSession,
		Role:             role,
	}
}

// ShareClaims builds the claim set for a single-record share link. The token
// itself is the capability: resolution never re-checks consent.
func ShareClaims(recordID, patientID uuid.UUID) Claims {
	return Claims{
		Type:      TokenShare,
		RecordID:  recordID.String(),
		PatientID: patientID.String(),
	}
}

// EmergencyClaims builds the claim set minted after a successful break-glass
// verification. The token is scoped to exactly one patient.
func EmergencyClaims(patientID uuid.UUID) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: patientID.String()},
		Type:             TokenEmergency,
		Role:             RoleEmergency,
		PatientID:        patientID.String(),
	}
}
