package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/auth"
)

// DefaultTTL applies when a grant request names no expiry.
const DefaultTTL = 30 * 24 * time.Hour

var (
	ErrNotFound        = errors.New("consent grant not found")
	ErrForbidden       = errors.New("not allowed to act on this grant")
	ErrGranteeNotFound = errors.New("grantee is not a registered doctor")
	ErrInvalidScope    = errors.New("scoped records must belong to the granting patient")
)

// RecordOwnership is the slice of the records domain the ledger needs to
// validate scoped grants.
type RecordOwnership interface {
	AllOwnedBy(ctx context.Context, recordIDs []uuid.UUID, patientID uuid.UUID) (bool, error)
}

// GranteeResolver checks that a grantee id belongs to an account holding a
// given role. The identity repository satisfies it.
type GranteeResolver interface {
	HasRole(ctx context.Context, id uuid.UUID, role auth.Role) (bool, error)
}

type Service struct {
	repo     Repository
	records  RecordOwnership
	grantees GranteeResolver
	now      func() time.Time
}

func NewService(repo Repository, records RecordOwnership, grantees GranteeResolver) *Service {
	return &Service{repo: repo, records: records, grantees: grantees, now: time.Now}
}

type GrantRequest struct {
	PatientID   uuid.UUID   `json:"patient_id"`
	GranteeID   uuid.UUID   `json:"grantee_id"`
	GranteeType GranteeType `json:"grantee_type"`
	ScopeAll    bool        `json:"scope_all"`
	RecordIDs   []uuid.UUID `json:"record_ids"`
	Purpose     *string     `json:"purpose"`
	ExpiresAt   *time.Time  `json:"expires_at"`
}

// Grant records a new consent entry. Patients grant for themselves; an admin
// may grant on a patient's behalf by naming the patient id.
func (s *Service) Grant(ctx context.Context, actor auth.Principal, req GrantRequest) (*ConsentGrant, error) {
	patientID := req.PatientID
	if patientID == uuid.Nil {
		patientID = actor.ID
	}
	if patientID != actor.ID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if req.GranteeID == uuid.Nil {
		return nil, fmt.Errorf("grantee_id is required")
	}
	if req.GranteeID == patientID {
		return nil, fmt.Errorf("cannot grant consent to yourself")
	}

	granteeType := req.GranteeType
	if granteeType == "" {
		granteeType = GranteeDoctor
	}
	if !granteeType.Valid() {
		return nil, fmt.Errorf("unknown grantee type %q", granteeType)
	}
	if granteeType == GranteeDoctor {
		ok, err := s.grantees.HasRole(ctx, req.GranteeID, auth.RoleDoctor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrGranteeNotFound
		}
	}

	now := s.now()
	if !req.ScopeAll {
		if len(req.RecordIDs) == 0 {
			return nil, fmt.Errorf("a scoped grant must name at least one record")
		}
		owned, err := s.records.AllOwnedBy(ctx, req.RecordIDs, patientID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, ErrInvalidScope
		}
	}

	expiresAt := now.Add(DefaultTTL)
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return nil, fmt.Errorf("expires_at must be in the future")
		}
		expiresAt = *req.ExpiresAt
	}

	g := &ConsentGrant{
		PatientID:   patientID,
		GranteeID:   req.GranteeID,
		GranteeType: granteeType,
		ScopeAll:    req.ScopeAll,
		RecordIDs:   req.RecordIDs,
		Purpose:     req.Purpose,
		ExpiresAt:   expiresAt,
		Active:      true,
		CreatedAt:   now,
	}
	if g.ScopeAll {
		g.RecordIDs = nil
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Revoke deactivates a grant. Only the granting patient or an admin may
// revoke; revoking an already-revoked grant succeeds without effect.
func (s *Service) Revoke(ctx context.Context, actor auth.Principal, grantID uuid.UUID) error {
	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return err
	}
	if g.PatientID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}
	if !g.Active {
		return nil
	}
	return s.repo.Revoke(ctx, grantID, s.now())
}

// GetByID returns a grant to its patient, its grantee, or an admin.
func (s *Service) GetByID(ctx context.Context, actor auth.Principal, grantID uuid.UUID) (*ConsentGrant, error) {
	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if g.PatientID != actor.ID && g.GranteeID != actor.ID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return g, nil
}

// FindValidGrant returns the most recent valid grant from patientID to
// granteeID, or nil when none exists.
func (s *Service) FindValidGrant(ctx context.Context, patientID, granteeID uuid.UUID) (*ConsentGrant, error) {
	return s.repo.FindValidGrant(ctx, patientID, granteeID, s.now())
}

// ListFor returns the grants visible to the principal. Patients see every
// grant they issued, revoked and expired included; doctors see only the
// currently-valid grants naming them; admins see the whole ledger.
func (s *Service) ListFor(ctx context.Context, actor auth.Principal, limit, offset int) ([]*ConsentGrant, int, error) {
	switch {
	case actor.IsAdmin():
		return s.repo.ListAll(ctx, limit, offset)
	case actor.Role == auth.RoleDoctor:
		return s.repo.ListValidByGranteePaged(ctx, actor.ID, s.now(), limit, offset)
	case actor.Role == auth.RolePatient:
		return s.repo.ListByPatient(ctx, actor.ID, limit, offset)
	}
	return nil, 0, ErrForbidden
}

// CountValidIssuedBy satisfies the dashboard's consent counter.
func (s *Service) CountValidIssuedBy(ctx context.Context, patientID uuid.UUID) (int, error) {
	return s.repo.CountValidIssuedBy(ctx, patientID, s.now())
}

func (s *Service) CountValidGrantedTo(ctx context.Context, granteeID uuid.UUID) (int, error) {
	return s.repo.CountValidGrantedTo(ctx, granteeID, s.now())
}
