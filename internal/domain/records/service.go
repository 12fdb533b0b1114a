package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/access"
	"github.com/medvault/medvault/internal/platform/auth"
)

// ShareTTL bounds the life of a QR share token. A leaked link stays usable
// until expiry, so the window is kept short.
const ShareTTL = 15 * time.Minute

var (
	ErrNotFound        = errors.New("record not found")
	ErrForbidden       = errors.New("not allowed to act on this record")
	ErrSharingDisabled = errors.New("sharing is disabled for this record")
	ErrNoFile          = errors.New("record has no attached file")
	ErrPatientNotFound = errors.New("owner is not a registered patient")
)

// AccessDeniedError carries the engine's deny reason to the HTTP layer.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return "access denied: " + e.Reason
}

// PatientDirectory verifies that an id belongs to an account with a role.
// The identity repository satisfies it.
type PatientDirectory interface {
	HasRole(ctx context.Context, id uuid.UUID, role auth.Role) (bool, error)
}

type Service struct {
	repo     Repository
	engine   *access.Engine
	signer   *auth.Signer
	patients PatientDirectory
}

func NewService(repo Repository, engine *access.Engine, signer *auth.Signer, patients PatientDirectory) *Service {
	return &Service{repo: repo, engine: engine, signer: signer, patients: patients}
}

type CreateRequest struct {
	OwnerPatientID uuid.UUID `json:"owner_patient_id"`
	Title          string    `json:"title"`
	Description    *string   `json:"description"`
	Category       string    `json:"category"`
	Hospital       *string   `json:"hospital"`
	DoctorName     *string   `json:"doctor_name"`
	FileRef        *string   `json:"file_ref"`
}

// Create stores a new record. Patients create records for themselves;
// doctors and admins may create records for any registered patient, which
// stamps them as creator.
func (s *Service) Create(ctx context.Context, actor auth.Principal, req CreateRequest) (*HealthRecord, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if req.Category == "" {
		return nil, fmt.Errorf("category is required")
	}

	ownerID := req.OwnerPatientID
	switch actor.Role {
	case auth.RolePatient:
		if ownerID != uuid.Nil && ownerID != actor.ID {
			return nil, ErrForbidden
		}
		ownerID = actor.ID
	case auth.RoleDoctor, auth.RoleAdmin:
		if ownerID == uuid.Nil {
			return nil, fmt.Errorf("owner_patient_id is required")
		}
		if ownerID != actor.ID {
			ok, err := s.patients.HasRole(ctx, ownerID, auth.RolePatient)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrPatientNotFound
			}
		}
	default:
		return nil, ErrForbidden
	}

	rec := &HealthRecord{
		OwnerPatientID: ownerID,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Hospital:       req.Hospital,
		DoctorName:     req.DoctorName,
		FileRef:        req.FileRef,
		CreatorID:      actor.ID,
		CreatorRole:    actor.Role,
		ConsentEnabled: true,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the record if the engine allows the read. A record that does
// not exist yields ErrNotFound for any caller; a record the caller may not
// read yields AccessDeniedError with the engine's reason.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id uuid.UUID) (*HealthRecord, error) {
	_, decision, err := s.engine.Authorize(ctx, actor, id)
	if err != nil {
		if errors.Is(err, access.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !decision.Allowed {
		return nil, &AccessDeniedError{Reason: decision.Reason}
	}
	return s.repo.GetByID(ctx, id)
}

// List returns every record the actor may read, newest first.
func (s *Service) List(ctx context.Context, actor auth.Principal, limit, offset int) ([]*HealthRecord, int, error) {
	v, err := s.engine.VisibilityFor(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.ListVisible(ctx, v, limit, offset)
}

// ToggleConsent sets the owner's per-record sharing switch. Only the owner
// or an admin may flip it.
func (s *Service) ToggleConsent(ctx context.Context, actor auth.Principal, id uuid.UUID, enabled bool) (*HealthRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerPatientID != actor.ID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := s.repo.SetConsentEnabled(ctx, id, enabled); err != nil {
		return nil, err
	}
	rec.ConsentEnabled = enabled
	return rec, nil
}

// IssueShare mints a record-scoped share token for QR or offline access.
// Only the record's owner or an admin may issue one, and only while the
// record's sharing toggle is on. The token is the capability: resolution
// never re-checks consent, so its life is bounded by ShareTTL alone.
func (s *Service) IssueShare(ctx context.Context, actor auth.Principal, recordID uuid.UUID) (string, time.Time, error) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return "", time.Time{}, err
	}
	if rec.OwnerPatientID != actor.ID && !actor.IsAdmin() {
		return "", time.Time{}, ErrForbidden
	}
	if !rec.ConsentEnabled {
		return "", time.Time{}, ErrSharingDisabled
	}
	token, err := s.signer.Mint(auth.ShareClaims(rec.ID, rec.OwnerPatientID), ShareTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(ShareTTL), nil
}

// ResolveShare redeems a share token for its record. Any failure, expired,
// tampered or wrong-type token included, yields auth.ErrInvalidToken.
func (s *Service) ResolveShare(ctx context.Context, token string) (*HealthRecord, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	if claims.Type != auth.TokenShare {
		return nil, auth.ErrInvalidToken
	}
	recordID, err := uuid.Parse(claims.RecordID)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	return s.repo.GetByID(ctx, recordID)
}

// Download returns the record's file reference after the same authorize
// check as Get. EMERGENCY principals may retrieve it; the transport of the
// file itself is out of scope here.
func (s *Service) Download(ctx context.Context, actor auth.Principal, id uuid.UUID) (string, error) {
	rec, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	if rec.FileRef == nil || *rec.FileRef == "" {
		return "", ErrNoFile
	}
	return *rec.FileRef, nil
}

// CountOwned and CountAuthored satisfy the dashboard's record counter.
func (s *Service) CountOwned(ctx context.Context, patientID uuid.UUID) (int, error) {
	return s.repo.CountOwned(ctx, patientID)
}

func (s *Service) CountAuthored(ctx context.Context, creatorID uuid.UUID) (int, error) {
	return s.repo.CountAuthored(ctx, creatorID)
}
