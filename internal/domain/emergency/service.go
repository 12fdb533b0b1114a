package emergency

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// SecretTTL bounds how long an issued break-glass secret stays usable.
	SecretTTL = time.Hour
	// SessionTTL bounds the emergency token minted after a successful verify.
	SessionTTL = 15 * time.Minute

	secretBytes = 32
)

var (
	ErrNotFound      = errors.New("no emergency credential for this patient")
	ErrInvalidSecret = errors.New("invalid or expired emergency secret")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Enable issues a fresh break-glass secret for the patient and returns it
// exactly once. Only the SHA-256 digest is stored; re-enabling replaces the
// prior credential, so an old secret can never verify again.
func (s *Service) Enable(ctx context.Context, patientID uuid.UUID) (string, *Credential, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generating emergency secret: %w", err)
	}
	secret := hex.EncodeToString(raw)
	digest := sha256.Sum256([]byte(secret))

	cred := &Credential{
		PatientID:    patientID,
		SecretDigest: digest[:],
		ExpiresAt:    s.now().Add(SecretTTL),
		Enabled:      true,
	}
	if err := s.repo.Upsert(ctx, cred); err != nil {
		return "", nil, err
	}
	return secret, cred, nil
}

// Disable turns the patient's credential off. Disabling when none exists is
// a no-op.
func (s *Service) Disable(ctx context.Context, patientID uuid.UUID) error {
	return s.repo.Disable(ctx, patientID)
}

// Verify checks a presented secret against the stored digest. The compare
// is constant time; timing must not reveal how close a guess was. Expired,
// disabled and missing credentials all fail the same way.
func (s *Service) Verify(ctx context.Context, patientID uuid.UUID, presented string) error {
	cred, err := s.repo.GetByPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidSecret
		}
		return err
	}

	digest := sha256.Sum256([]byte(presented))
	match := subtle.ConstantTimeCompare(digest[:], cred.SecretDigest) == 1
	if !match || !cred.Enabled || !s.now().Before(cred.ExpiresAt) {
		return ErrInvalidSecret
	}
	return nil
}
