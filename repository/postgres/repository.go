package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	fleetAuth "github.com/MrEthical07/fleetAuth"
	"github.com/MrEthical07/fleetAuth/otp"
)

// Schema creates the principals table and its identifier indexes.
const Schema = `
CREATE TABLE IF NOT EXISTS principals (
	id             TEXT PRIMARY KEY,
	email          TEXT,
	phone          TEXT,
	roles          TEXT[] NOT NULL,
	approval_state TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS principals_email_key ON principals (lower(email)) WHERE email IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS principals_phone_key ON principals (phone) WHERE phone IS NOT NULL;
`

const selectColumns = `SELECT id, COALESCE(email, ''), COALESCE(phone, ''), roles, approval_state, created_at FROM principals`

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements fleetAuth.PrincipalRepository.
type Repository struct {
	pool pool
	now  func() time.Time
}

var _ fleetAuth.PrincipalRepository = (*Repository)(nil)

// New returns a repository over pool, usually a *pgxpool.Pool.
func New(p pool) *Repository {
	return &Repository{pool: p, now: time.Now}
}

// EnsureSchema applies Schema. It is idempotent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return oops.With("operation", "ensure principals schema").Wrap(err)
	}
	return nil
}

// FindByID returns the principal with id, or nil when none exists.
func (r *Repository) FindByID(ctx context.Context, id string) (*fleetAuth.Principal, error) {
	p, err := r.scanOne(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		return nil, oops.With("operation", "find principal by id").With("principal_id", id).Wrap(err)
	}
	return p, nil
}

// FindByIdentifier matches identifier against email (case-insensitive) or
// phone. It returns nil when nothing matches.
func (r *Repository) FindByIdentifier(ctx context.Context, identifier string) (*fleetAuth.Principal, error) {
	id := otp.NormalizeIdentifier(identifier)
	if id == "" {
		return nil, nil
	}

	query := selectColumns + ` WHERE phone = $1 LIMIT 1`
	if strings.Contains(id, "@") {
		query = selectColumns + ` WHERE lower(email) = $1 LIMIT 1`
	}

	p, err := r.scanOne(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, oops.With("operation", "find principal by identifier").Wrap(err)
	}
	return p, nil
}

// Save inserts p or replaces the stored row with the same id.
func (r *Repository) Save(ctx context.Context, p *fleetAuth.Principal) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return oops.Errorf("principal id is required")
	}

	roles := make([]string, len(p.Roles))
	for i, role := range p.Roles {
		roles[i] = role.String()
	}
	now := r.now().UTC()
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO principals (id, email, phone, roles, approval_state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET email = $2, phone = $3, roles = $4, approval_state = $5, updated_at = $7`,
		p.ID, nullable(p.Email), nullable(p.Phone), roles, p.Approval.String(), created, now)
	if err != nil {
		return oops.With("operation", "save principal").With("principal_id", p.ID).Wrap(err)
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (*fleetAuth.Principal, error) {
	var (
		p        fleetAuth.Principal
		roles    []string
		approval string
	)
	err := row.Scan(&p.ID, &p.Email, &p.Phone, &roles, &approval, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Roles = make([]fleetAuth.Role, 0, len(roles))
	for _, name := range roles {
		role, err := fleetAuth.ParseRole(name)
		if err != nil {
			return nil, oops.With("principal_id", p.ID).Wrapf(err, "corrupt roles column")
		}
		p.Roles = append(p.Roles, role)
	}
	if p.Approval, err = fleetAuth.ParseApprovalState(approval); err != nil {
		return nil, oops.With("principal_id", p.ID).Wrapf(err, "corrupt approval_state column")
	}
	return &p, nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
