package records

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medvault/medvault/internal/platform/access"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const recordCols = `id, owner_patient_id, title, description, category, hospital, doctor_name, file_ref, creator_id, creator_role, consent_enabled, created_at, updated_at`

func scanRecord(row pgx.Row) (*HealthRecord, error) {
	var r HealthRecord
	err := row.Scan(&r.ID, &r.OwnerPatientID, &r.Title, &r.Description, &r.Category,
		&r.Hospital, &r.DoctorName, &r.FileRef, &r.CreatorID, &r.CreatorRole,
		&r.ConsentEnabled, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &r, err
}

func (r *repoPG) Create(ctx context.Context, rec *HealthRecord) error {
	rec.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO health_record (id, owner_patient_id, title, description, category, hospital, doctor_name, file_ref, creator_id, creator_role, consent_enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.ID, rec.OwnerPatientID, rec.Title, rec.Description, rec.Category,
		rec.Hospital, rec.DoctorName, rec.FileRef, rec.CreatorID, rec.CreatorRole, rec.ConsentEnabled)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*HealthRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM health_record WHERE id = $1`, id))
}

func (r *repoPG) GetSnapshot(ctx context.Context, id uuid.UUID) (*access.Record, error) {
	var snap access.Record
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_patient_id, creator_id FROM health_record WHERE id = $1`, id).
		Scan(&snap.ID, &snap.OwnerPatientID, &snap.CreatorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// visibilityFilter renders the Visibility set as a SQL predicate. It is the
// database form of access.Visibility.Matches.
func visibilityFilter(v access.Visibility, argOffset int) (string, []interface{}) {
	if v.All {
		return "TRUE", nil
	}
	var clauses []string
	var args []interface{}
	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", argOffset+len(args))
	}
	if v.OwnerID != uuid.Nil {
		clauses = append(clauses, "owner_patient_id = "+arg(v.OwnerID))
	}
	if v.AuthoredBy != uuid.Nil {
		clauses = append(clauses, "creator_id = "+arg(v.AuthoredBy))
	}
	if len(v.PatientIDs) > 0 {
		clauses = append(clauses, "owner_patient_id = ANY("+arg(v.PatientIDs)+")")
	}
	if len(v.RecordIDs) > 0 {
		clauses = append(clauses, "id = ANY("+arg(v.RecordIDs)+")")
	}
	if len(clauses) == 0 {
		return "FALSE", nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

func (r *repoPG) ListVisible(ctx context.Context, v access.Visibility, limit, offset int) ([]*HealthRecord, int, error) {
	where, args := visibilityFilter(v, 0)

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM health_record WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM health_record WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		recordCols, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*HealthRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (r *repoPG) SetConsentEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE health_record SET consent_enabled = $2, updated_at = NOW()
		WHERE id = $1`,
		id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AllOwnedBy(ctx context.Context, recordIDs []uuid.UUID, patientID uuid.UUID) (bool, error) {
	if len(recordIDs) == 0 {
		return false, nil
	}
	var owned int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT id) FROM health_record
		WHERE id = ANY($1) AND owner_patient_id = $2`,
		recordIDs, patientID).Scan(&owned)
	if err != nil {
		return false, err
	}
	unique := make(map[uuid.UUID]bool, len(recordIDs))
	for _, id := range recordIDs {
		unique[id] = true
	}
	return owned == len(unique), nil
}

func (r *repoPG) CountOwned(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM health_record WHERE owner_patient_id = $1`, patientID).Scan(&n)
	return n, err
}

func (r *repoPG) CountAuthored(ctx context.Context, creatorID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM health_record WHERE creator_id = $1`, creatorID).Scan(&n)
	return n, err
}
