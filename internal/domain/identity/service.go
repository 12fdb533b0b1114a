package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/medvault/medvault/internal/platform/auth"
)

var (
	ErrNotFound           = errors.New("patient not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// RecordCounter is the slice of the records domain the dashboard needs.
type RecordCounter interface {
	CountOwned(ctx context.Context, patientID uuid.UUID) (int, error)
	CountAuthored(ctx context.Context, creatorID uuid.UUID) (int, error)
}

// ConsentCounter is the slice of the consent ledger the dashboard needs.
type ConsentCounter interface {
	CountValidIssuedBy(ctx context.Context, patientID uuid.UUID) (int, error)
	CountValidGrantedTo(ctx context.Context, granteeID uuid.UUID) (int, error)
}

type Service struct {
	repo     Repository
	records  RecordCounter
	consents ConsentCounter
}

func NewService(repo Repository, records RecordCounter, consents ConsentCounter) *Service {
	return &Service{repo: repo, records: records, consents: consents}
}

// Register creates a new account. Only PATIENT and DOCTOR accounts may be
// self-registered; ADMIN accounts are provisioned out of band.
func (s *Service) Register(ctx context.Context, name, email, password string, role auth.Role) (*Patient, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	if role == "" {
		role = auth.RolePatient
	}
	if role != auth.RolePatient && role != auth.RoleDoctor {
		return nil, fmt.Errorf("role %q cannot self-register", role)
	}

	if existing, err := s.repo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	p := &Patient{
		Name:              name,
		Email:             email,
		PasswordDigest:    string(digest),
		Role:              role,
		PreferredLanguage: "en",
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Login verifies the credentials and returns the account. Wrong email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Patient, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	p, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordDigest), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile applies the allow-listed fields and returns the updated row.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, fmt.Errorf("name cannot be empty")
		}
		p.Name = *upd.Name
	}
	if upd.PreferredLanguage != nil {
		p.PreferredLanguage = *upd.PreferredLanguage
	}
	if upd.Phone != nil {
		p.Phone = upd.Phone
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Dashboard builds the role-dependent summary for the principal.
func (s *Service) Dashboard(ctx context.Context, principal auth.Principal) (*Dashboard, error) {
	user, err := s.repo.GetByID(ctx, principal.ID)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{User: user}
	switch principal.Role {
	case auth.RolePatient:
		if d.TotalRecords, err = s.records.CountOwned(ctx, principal.ID); err != nil {
			return nil, err
		}
		if d.ActiveConsents, err = s.consents.CountValidIssuedBy(ctx, principal.ID); err != nil {
			return nil, err
		}
	case auth.RoleDoctor:
		if d.AuthoredRecords, err = s.records.CountAuthored(ctx, principal.ID); err != nil {
			return nil, err
		}
		if d.ActiveConsents, err = s.consents.CountValidGrantedTo(ctx, principal.ID); err != nil {
			return nil, err
		}
	}
	return d, nil
}
