package consent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const grantCols = `id, patient_id, grantee_id, grantee_type, scope_all, record_ids, purpose, expires_at, active, revoked_at, created_at`

// validWhere filters to grants that confer access at $N (active and unexpired).
const validWhere = `active AND expires_at > `

func scanGrant(row pgx.Row) (*ConsentGrant, error) {
	var g ConsentGrant
	err := row.Scan(&g.ID, &g.PatientID, &g.GranteeID, &g.GranteeType, &g.ScopeAll,
		&g.RecordIDs, &g.Purpose, &g.ExpiresAt, &g.Active, &g.RevokedAt, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &g, err
}

func collectGrants(rows pgx.Rows) ([]*ConsentGrant, error) {
	defer rows.Close()
	var out []*ConsentGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, g *ConsentGrant) error {
	g.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO consent_grant (id, patient_id, grantee_id, grantee_type, scope_all, record_ids, purpose, expires_at, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		g.ID, g.PatientID, g.GranteeID, g.GranteeType, g.ScopeAll, g.RecordIDs, g.Purpose, g.ExpiresAt, g.Active)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ConsentGrant, error) {
	return scanGrant(r.pool.QueryRow(ctx,
		`SELECT `+grantCols+` FROM consent_grant WHERE id = $1`, id))
}

func (r *repoPG) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE consent_grant SET active = FALSE, revoked_at = $2
		WHERE id = $1 AND active`,
		id, at)
	return err
}

func (r *repoPG) FindValidGrant(ctx context.Context, patientID, granteeID uuid.UUID, now time.Time) (*ConsentGrant, error) {
	g, err := scanGrant(r.pool.QueryRow(ctx, `
		SELECT `+grantCols+` FROM consent_grant
		WHERE patient_id = $1 AND grantee_id = $2 AND `+validWhere+`$3
		ORDER BY created_at DESC
		LIMIT 1`,
		patientID, granteeID, now))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return g, err
}

func (r *repoPG) ListValidForPair(ctx context.Context, patientID, granteeID uuid.UUID, now time.Time) ([]*ConsentGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+grantCols+` FROM consent_grant
		WHERE patient_id = $1 AND grantee_id = $2 AND `+validWhere+`$3
		ORDER BY created_at DESC`,
		patientID, granteeID, now)
	if err != nil {
		return nil, err
	}
	return collectGrants(rows)
}

func (r *repoPG) ListValidByGrantee(ctx context.Context, granteeID uuid.UUID, now time.Time) ([]*ConsentGrant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+grantCols+` FROM consent_grant
		WHERE grantee_id = $1 AND `+validWhere+`$2
		ORDER BY created_at DESC`,
		granteeID, now)
	if err != nil {
		return nil, err
	}
	return collectGrants(rows)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*ConsentGrant, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM consent_grant WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+grantCols+` FROM consent_grant
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	grants, err := collectGrants(rows)
	return grants, total, err
}

func (r *repoPG) ListValidByGranteePaged(ctx context.Context, granteeID uuid.UUID, now time.Time, limit, offset int) ([]*ConsentGrant, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM consent_grant WHERE grantee_id = $1 AND `+validWhere+`$2`,
		granteeID, now).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+grantCols+` FROM consent_grant
		WHERE grantee_id = $1 AND `+validWhere+`$2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		granteeID, now, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	grants, err := collectGrants(rows)
	return grants, total, err
}

func (r *repoPG) ListAll(ctx context.Context, limit, offset int) ([]*ConsentGrant, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM consent_grant`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+grantCols+` FROM consent_grant
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	grants, err := collectGrants(rows)
	return grants, total, err
}

func (r *repoPG) CountValidIssuedBy(ctx context.Context, patientID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM consent_grant WHERE patient_id = $1 AND `+validWhere+`$2`,
		patientID, now).Scan(&n)
	return n, err
}

func (r *repoPG) CountValidGrantedTo(ctx context.Context, granteeID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM consent_grant WHERE grantee_id = $1 AND `+validWhere+`$2`,
		granteeID, now).Scan(&n)
	return n, err
}
