package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mandala-pos/terminal/internal/domain/staff"
)

const (
	findStaffByPinHashSQL = `SELECT id, name, role, pin_hash
		FROM staff WHERE pin_hash = $1 AND active`

	upsertStaffSQL = `INSERT INTO staff (id, name, role, pin_hash, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			pin_hash = EXCLUDED.pin_hash,
			active = TRUE`
)

var _ staff.Repository = (*StaffRepository)(nil)

// StaffRepository provides staff lookups backed by PostgreSQL.
type StaffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository returns a StaffRepository that uses the given pool.
func NewStaffRepository(pool *pgxpool.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

// FindByPinHash looks up an active member by the HMAC of their PIN.
func (r *StaffRepository) FindByPinHash(ctx context.Context, hash string) (*staff.Member, error) {
	var (
		m    staff.Member
		role string
	)
	err := r.pool.QueryRow(ctx, findStaffByPinHashSQL, hash).Scan(&m.ID, &m.Name, &role, &m.PinHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, staff.ErrNotFound
		}
		return nil, fmt.Errorf("finding staff by pin hash: %w", err)
	}
	m.Role = staff.Role(role)
	return &m, nil
}

// Upsert inserts or updates members in one batch. PinHash must already be
// computed with staff.HashPIN.
func (r *StaffRepository) Upsert(ctx context.Context, members []staff.Member) error {
	batch := &pgx.Batch{}
	for _, m := range members {
		if m.ID == "" || m.PinHash == "" {
			return errors.Errorf("staff member %q: id and pin hash are required", m.Name)
		}
		batch.Queue(upsertStaffSQL, m.ID, m.Name, string(m.Role), m.PinHash)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting staff: %w", err)
	}
	return nil
}
