package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/auth"
)

type mockRepo struct {
	byID    map[uuid.UUID]*Patient
	byEmail map[string]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{byID: map[uuid.UUID]*Patient{}, byEmail: map[string]*Patient{}}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	cp := *p
	m.byID[p.ID] = &cp
	m.byEmail[p.Email] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*Patient, error) {
	p, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	cp := *p
	m.byID[p.ID] = &cp
	m.byEmail[p.Email] = &cp
	return nil
}

func (m *mockRepo) HasRole(_ context.Context, id uuid.UUID, role auth.Role) (bool, error) {
	p, ok := m.byID[id]
	return ok && p.Role == role, nil
}

type stubCounts struct {
	owned, authored, issued, granted int
}

func (s *stubCounts) CountOwned(context.Context, uuid.UUID) (int, error)    { return s.owned, nil }
func (s *stubCounts) CountAuthored(context.Context, uuid.UUID) (int, error) { return s.authored, nil }
func (s *stubCounts) CountValidIssuedBy(context.Context, uuid.UUID) (int, error) {
	return s.issued, nil
}
func (s *stubCounts) CountValidGrantedTo(context.Context, uuid.UUID) (int, error) {
	return s.granted, nil
}

func newTestService() (*Service, *mockRepo, *stubCounts) {
	repo := newMockRepo()
	counts := &stubCounts{}
	return NewService(repo, counts, counts), repo, counts
}

func TestRegisterAndLogin(t *testing.T) {
	svc, repo, _ := newTestService()

	p, err := svc.Register(context.Background(), "Ada", "Ada@Example.com", "correct horse", auth.RolePatient)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.Email != "ada@example.com" {
		t.Errorf("email = %q, want lowercased", p.Email)
	}
	if p.PasswordDigest == "correct horse" {
		t.Error("password stored in the clear")
	}
	if repo.byID[p.ID] == nil {
		t.Fatal("patient not persisted")
	}

	got, err := svc.Login(context.Background(), "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("login returned %s, want %s", got.ID, p.ID)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Register(context.Background(), "Ada", "ada@example.com", "correct horse", auth.RolePatient); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, wrongPassword := svc.Login(context.Background(), "ada@example.com", "wrong")
	_, wrongEmail := svc.Login(context.Background(), "nobody@example.com", "correct horse")

	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(wrongEmail, ErrInvalidCredentials) {
		t.Errorf("wrong password -> %v, wrong email -> %v; both must be ErrInvalidCredentials", wrongPassword, wrongEmail)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Register(context.Background(), "", "a@b.com", "longenough", auth.RolePatient); err == nil {
		t.Error("empty name accepted")
	}
	if _, err := svc.Register(context.Background(), "A", "a@b.com", "short", auth.RolePatient); err == nil {
		t.Error("short password accepted")
	}
	if _, err := svc.Register(context.Background(), "A", "a@b.com", "longenough", auth.RoleAdmin); err == nil {
		t.Error("admin self-registration accepted")
	}

	if _, err := svc.Register(context.Background(), "A", "a@b.com", "longenough", auth.RolePatient); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "B", "a@b.com", "longenough", auth.RolePatient); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email: got %v, want ErrEmailTaken", err)
	}
}

func TestUpdateProfileAllowList(t *testing.T) {
	svc, _, _ := newTestService()
	p, err := svc.Register(context.Background(), "Ada", "ada@example.com", "correct horse", auth.RolePatient)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	name := "Ada L."
	lang := "fr"
	updated, err := svc.UpdateProfile(context.Background(), p.ID, ProfileUpdate{Name: &name, PreferredLanguage: &lang})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.PreferredLanguage != lang {
		t.Errorf("updated = %q/%q", updated.Name, updated.PreferredLanguage)
	}

	empty := ""
	if _, err := svc.UpdateProfile(context.Background(), p.ID, ProfileUpdate{Name: &empty}); err == nil {
		t.Error("empty name accepted")
	}
}

func TestDashboardByRole(t *testing.T) {
	svc, _, counts := newTestService()
	counts.owned, counts.authored, counts.issued, counts.granted = 3, 7, 2, 5

	patient, err := svc.Register(context.Background(), "Pat", "pat@example.com", "longenough", auth.RolePatient)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	doctor, err := svc.Register(context.Background(), "Doc", "doc@example.com", "longenough", auth.RoleDoctor)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	d, err := svc.Dashboard(context.Background(), auth.Principal{ID: patient.ID, Role: auth.RolePatient})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.TotalRecords != 3 || d.ActiveConsents != 2 {
		t.Errorf("patient dashboard = %+v", d)
	}

	d, err = svc.Dashboard(context.Background(), auth.Principal{ID: doctor.ID, Role: auth.RoleDoctor})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.AuthoredRecords != 7 || d.ActiveConsents != 5 {
		t.Errorf("doctor dashboard = %+v", d)
	}
}
