package consent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/access"
)

// EngineSource adapts the ledger to the decision engine. Where a patient has
// issued several overlapping grants to the same grantee, the engine sees the
// merged effective scope: blanket if any valid grant is blanket, otherwise
// the union of the scoped record ids. This keeps single-record checks in
// agreement with the visibility listings, which also union all valid grants.
type EngineSource struct {
	repo Repository
	now  func() time.Time
}

func NewEngineSource(repo Repository) *EngineSource {
	return &EngineSource{repo: repo, now: time.Now}
}

var _ access.ConsentSource = (*EngineSource)(nil)

func (s *EngineSource) FindValidGrant(ctx context.Context, patientID, granteeID uuid.UUID) (*access.Grant, error) {
	grants, err := s.repo.ListValidForPair(ctx, patientID, granteeID, s.now())
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, nil
	}
	return mergeGrants(grants), nil
}

func (s *EngineSource) ListValidForGrantee(ctx context.Context, granteeID uuid.UUID) ([]access.PatientGrant, error) {
	grants, err := s.repo.ListValidByGrantee(ctx, granteeID, s.now())
	if err != nil {
		return nil, err
	}

	byPatient := make(map[uuid.UUID][]*ConsentGrant)
	var order []uuid.UUID
	for _, g := range grants {
		if _, seen := byPatient[g.PatientID]; !seen {
			order = append(order, g.PatientID)
		}
		byPatient[g.PatientID] = append(byPatient[g.PatientID], g)
	}

	out := make([]access.PatientGrant, 0, len(order))
	for _, pid := range order {
		out = append(out, access.PatientGrant{
			PatientID: pid,
			Scope:     *mergeGrants(byPatient[pid]),
		})
	}
	return out, nil
}

func mergeGrants(grants []*ConsentGrant) *access.Grant {
	merged := &access.Grant{}
	seen := make(map[uuid.UUID]bool)
	for _, g := range grants {
		if g.ScopeAll {
			return &access.Grant{ScopeAll: true}
		}
		for _, id := range g.RecordIDs {
			if !seen[id] {
				seen[id] = true
				merged.RecordIDs = append(merged.RecordIDs, id)
			}
		}
	}
	return merged
}
