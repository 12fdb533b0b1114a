package access

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/auth"
)

type mockConsentSource struct {
	// grants maps patientID -> granteeID -> scope.
	grants map[uuid.UUID]map[uuid.UUID]Grant
}

func (m *mockConsentSource) FindValidGrant(_ context.Context, patientID, granteeID uuid.UUID) (*Grant, error) {
	if g, ok := m.grants[patientID][granteeID]; ok {
		return &g, nil
	}
	return nil, nil
}

func (m *mockConsentSource) ListValidForGrantee(_ context.Context, granteeID uuid.UUID) ([]PatientGrant, error) {
	var out []PatientGrant
	for patientID, byGrantee := range m.grants {
		if g, ok := byGrantee[granteeID]; ok {
			out = append(out, PatientGrant{PatientID: patientID, Scope: g})
		}
	}
	return out, nil
}

type mockRecordSource struct {
	records map[uuid.UUID]Record
}

func (m *mockRecordSource) GetSnapshot(_ context.Context, id uuid.UUID) (*Record, error) {
	if r, ok := m.records[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func TestDecideOrderedRules(t *testing.T) {
	owner := uuid.New()
	author := uuid.New()
	stranger := uuid.New()
	rec := Record{ID: uuid.New(), OwnerPatientID: owner, CreatorID: author}

	tests := []struct {
		name    string
		p       auth.Principal
		grant   *Grant
		allowed bool
		reason  string
	}{
		{"admin always allowed", auth.Principal{ID: stranger, Role: auth.RoleAdmin}, nil, true, ""},
		{"owner always allowed", auth.Principal{ID: owner, Role: auth.RolePatient}, nil, true, ""},
		{"author always allowed", auth.Principal{ID: author, Role: auth.RoleDoctor}, nil, true, ""},
		{"doctor without grant", auth.Principal{ID: stranger, Role: auth.RoleDoctor}, nil, false, ReasonNoConsent},
		{"doctor with blanket grant", auth.Principal{ID: stranger, Role: auth.RoleDoctor}, &Grant{ScopeAll: true}, true, ""},
		{"doctor with covering scoped grant", auth.Principal{ID: stranger, Role: auth.RoleDoctor}, &Grant{RecordIDs: []uuid.UUID{rec.ID}}, true, ""},
		{"doctor with non-covering scoped grant", auth.Principal{ID: stranger, Role: auth.RoleDoctor}, &Grant{RecordIDs: []uuid.UUID{uuid.New()}}, false, ReasonRecordNotInScope},
		{"emergency scoped to owner", auth.Principal{ID: uuid.New(), Role: auth.RoleEmergency, ScopedPatientID: owner}, nil, true, ""},
		{"emergency scoped elsewhere", auth.Principal{ID: uuid.New(), Role: auth.RoleEmergency, ScopedPatientID: uuid.New()}, nil, false, ReasonForbidden},
		{"unrelated patient", auth.Principal{ID: stranger, Role: auth.RolePatient}, nil, false, ReasonForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.p, rec, tt.grant)
			if d.Allowed != tt.allowed {
				t.Fatalf("allowed = %v, want %v (reason %q)", d.Allowed, tt.allowed, d.Reason)
			}
			if d.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

// Ownership beats the consent rule: a doctor reading their own record never
// needs a grant, so the consent lookup must not run for them.
func TestDecideOwnerDoctorNeedsNoGrant(t *testing.T) {
	doctorID := uuid.New()
	rec := Record{ID: uuid.New(), OwnerPatientID: doctorID, CreatorID: uuid.New()}
	d := Decide(auth.Principal{ID: doctorID, Role: auth.RoleDoctor}, rec, nil)
	if !d.Allowed {
		t.Errorf("doctor denied on own record: %q", d.Reason)
	}
}

func TestAuthorizeMissingRecord(t *testing.T) {
	engine := NewEngine(&mockRecordSource{records: map[uuid.UUID]Record{}}, &mockConsentSource{})
	_, _, err := engine.Authorize(context.Background(), auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin}, uuid.New())
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("got %v, want ErrRecordNotFound", err)
	}
}

func TestAuthorizeConsultsLedgerOnlyForForeignDoctor(t *testing.T) {
	owner := uuid.New()
	doctor := uuid.New()
	rec := Record{ID: uuid.New(), OwnerPatientID: owner, CreatorID: uuid.New()}

	source := &mockConsentSource{grants: map[uuid.UUID]map[uuid.UUID]Grant{
		owner: {doctor: {ScopeAll: true}},
	}}
	engine := NewEngine(&mockRecordSource{records: map[uuid.UUID]Record{rec.ID: rec}}, source)

	_, d, err := engine.Authorize(context.Background(), auth.Principal{ID: doctor, Role: auth.RoleDoctor}, rec.ID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !d.Allowed {
		t.Errorf("doctor with blanket grant denied: %q", d.Reason)
	}

	_, d, err = engine.Authorize(context.Background(), auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}, rec.ID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if d.Allowed || d.Reason != ReasonNoConsent {
		t.Errorf("ungranted doctor: allowed=%v reason=%q", d.Allowed, d.Reason)
	}
}

// The set-builder listing and the per-record point check are two forms of
// the same policy and must agree on every input. Exercise them against
// randomly generated ownership and consent fixtures.
func TestVisibilityAgreesWithDecide(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		patients := make([]uuid.UUID, 4)
		for i := range patients {
			patients[i] = uuid.New()
		}
		doctors := make([]uuid.UUID, 3)
		for i := range doctors {
			doctors[i] = uuid.New()
		}

		var recs []Record
		for i := 0; i < 12; i++ {
			owner := patients[rng.Intn(len(patients))]
			creator := owner
			if rng.Intn(2) == 0 {
				creator = doctors[rng.Intn(len(doctors))]
			}
			recs = append(recs, Record{ID: uuid.New(), OwnerPatientID: owner, CreatorID: creator})
		}

		grants := map[uuid.UUID]map[uuid.UUID]Grant{}
		for _, p := range patients {
			grants[p] = map[uuid.UUID]Grant{}
			for _, d := range doctors {
				switch rng.Intn(3) {
				case 0:
					grants[p][d] = Grant{ScopeAll: true}
				case 1:
					var ids []uuid.UUID
					for _, r := range recs {
						if r.OwnerPatientID == p && rng.Intn(2) == 0 {
							ids = append(ids, r.ID)
						}
					}
					if len(ids) > 0 {
						grants[p][d] = Grant{RecordIDs: ids}
					}
				}
			}
		}

		recordSource := &mockRecordSource{records: map[uuid.UUID]Record{}}
		for _, r := range recs {
			recordSource.records[r.ID] = r
		}
		engine := NewEngine(recordSource, &mockConsentSource{grants: grants})

		var principals []auth.Principal
		for _, p := range patients {
			principals = append(principals, auth.Principal{ID: p, Role: auth.RolePatient})
		}
		for _, d := range doctors {
			principals = append(principals, auth.Principal{ID: d, Role: auth.RoleDoctor})
		}
		principals = append(principals,
			auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin},
			auth.Principal{ID: uuid.New(), Role: auth.RoleEmergency, ScopedPatientID: patients[0]},
		)

		for _, p := range principals {
			v, err := engine.VisibilityFor(context.Background(), p)
			if err != nil {
				t.Fatalf("visibility: %v", err)
			}
			for _, rec := range recs {
				_, decision, err := engine.Authorize(context.Background(), p, rec.ID)
				if err != nil {
					t.Fatalf("authorize: %v", err)
				}
				if decision.Allowed != v.Matches(rec) {
					t.Fatalf("trial %d: role %s: point check %v but listing %v for record %s (reason %q)",
						trial, p.Role, decision.Allowed, v.Matches(rec), rec.ID, decision.Reason)
				}
			}
		}
	}
}

func TestVisibilityForAdminSeesEverything(t *testing.T) {
	engine := NewEngine(&mockRecordSource{}, &mockConsentSource{})
	v, err := engine.VisibilityFor(context.Background(), auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin})
	if err != nil {
		t.Fatalf("visibility: %v", err)
	}
	if !v.All {
		t.Error("admin visibility should be unrestricted")
	}
}

func TestGrantCovers(t *testing.T) {
	id := uuid.New()
	if !(Grant{ScopeAll: true}).Covers(id) {
		t.Error("blanket grant should cover any record")
	}
	if !(Grant{RecordIDs: []uuid.UUID{id}}).Covers(id) {
		t.Error("scoped grant should cover a named record")
	}
	if (Grant{RecordIDs: []uuid.UUID{uuid.New()}}).Covers(id) {
		t.Error("scoped grant should not cover an unnamed record")
	}
	if (Grant{}).Covers(id) {
		t.Error("empty grant should cover nothing")
	}
}
