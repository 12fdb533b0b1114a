package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medvault/medvault/internal/platform/auth"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `id, name, email, password_digest, role, preferred_language, phone, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordDigest, &p.Role,
		&p.PreferredLanguage, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, name, email, password_digest, role, preferred_language, phone)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.Name, p.Email, p.PasswordDigest, p.Role, p.PreferredLanguage, p.Phone)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE email = $1`, email))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE patients SET name=$2, preferred_language=$3, phone=$4, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.PreferredLanguage, p.Phone)
	return err
}

func (r *repoPG) HasRole(ctx context.Context, id uuid.UUID, role auth.Role) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1 AND role = $2)`, id, role).Scan(&exists)
	return exists, err
}
