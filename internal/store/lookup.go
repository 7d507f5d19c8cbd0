package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/marshallshelly/procuredb/pkg/policy"
)

// AdminLookup reads the admin flag and account status on the privileged
// connection, outside row security.
type AdminLookup struct {
	db  DB
	cfg policy.Config
}

// NewAdminLookup creates an AdminLookup for the principal table in cfg.
func NewAdminLookup(db DB, cfg policy.Config) *AdminLookup {
	return &AdminLookup{db: db, cfg: cfg}
}

// IsAdmin implements policy.AdminLookup. Unknown users, and users whose
// status is not the active one, yield policy.ErrPrincipalDisabled.
func (l *AdminLookup) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	status := "NULL"
	if l.cfg.StatusColumn != "" {
		status = pgx.Identifier{l.cfg.StatusColumn}.Sanitize()
	}
	sql := fmt.Sprintf("SELECT %s, %s FROM %s WHERE id = $1",
		pgx.Identifier{l.cfg.AdminColumn}.Sanitize(), status, pgx.Identifier{l.cfg.PrincipalTable}.Sanitize())

	var (
		admin bool
		state *string
	)
	if err := l.db.QueryRow(ctx, sql, userID).Scan(&admin, &state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, policy.ErrPrincipalDisabled
		}
		return false, fmt.Errorf("lookup admin flag: %w", err)
	}
	if l.cfg.StatusColumn != "" && (state == nil || *state != l.cfg.ActiveStatus) {
		return false, policy.ErrPrincipalDisabled
	}
	return admin, nil
}

var _ policy.AdminLookup = (*AdminLookup)(nil)
