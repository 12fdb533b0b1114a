package emergency

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) Upsert(ctx context.Context, c *Credential) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO emergency_credential (patient_id, secret_digest, expires_at, enabled, created_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (patient_id) DO UPDATE
		SET secret_digest = EXCLUDED.secret_digest,
		    expires_at    = EXCLUDED.expires_at,
		    enabled       = EXCLUDED.enabled,
		    created_at    = NOW()`,
		c.PatientID, c.SecretDigest, c.ExpiresAt, c.Enabled)
	return err
}

func (r *repoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*Credential, error) {
	var c Credential
	err := r.pool.QueryRow(ctx, `
		SELECT patient_id, secret_digest, expires_at, enabled, created_at
		FROM emergency_credential WHERE patient_id = $1`,
		patientID).Scan(&c.PatientID, &c.SecretDigest, &c.ExpiresAt, &c.Enabled, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) Disable(ctx context.Context, patientID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE emergency_credential SET enabled = FALSE WHERE patient_id = $1`, patientID)
	return err
}
