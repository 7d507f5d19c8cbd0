// Package store runs every statement inside a transaction scoped to a
// principal. Row security is enforced by PostgreSQL; the policy set is
// consulted before each write and appended to each read so denials surface
// as ErrAccessDenied and hidden rows as ErrNotFound.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/metrics"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/registry"
	"github.com/marshallshelly/procuredb/pkg/runtime"
)

// DB is satisfied by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store opens principal scoped transactions.
type Store struct {
	db       DB
	reg      *registry.Registry
	policies *policy.Set
	log      *zap.Logger
	metrics  *metrics.Metrics
	builder  squirrel.StatementBuilderType
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log.Named("store") }
}

// WithMetrics records policy decisions, violations and transactions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store over db. reg must hold every model the repositories
// touch and policies must cover every table.
func New(db DB, reg *registry.Registry, policies *policy.Set, opts ...Option) *Store {
	s := &Store{
		db:       db,
		reg:      reg,
		policies: policies,
		log:      zap.NewNop(),
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policies returns the rule set the store evaluates.
func (s *Store) Policies() *policy.Set { return s.policies }

// Do runs fn in a transaction as p. Non-system principals switch to the
// application role and publish their user id to the session, so the
// database applies the same policies the store evaluates. The transaction
// commits when fn returns nil and rolls back otherwise.
func (s *Store) Do(ctx context.Context, p policy.Principal, fn func(*Tx) error) (err error) {
	kind := principalKind(p)
	defer func() {
		result := "commit"
		if err != nil {
			result = "rollback"
			var ce *runtime.ConstraintError
			if errors.As(err, &ce) {
				s.metrics.Violation(string(ce.Kind), ce.Table)
			}
		}
		s.metrics.Transaction(kind, result)
	}()

	pgTx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.log.Warn("rollback failed", zap.Stringer("principal", p), zap.Error(rbErr))
			}
		}
	}()

	if !p.System {
		if err = s.scope(ctx, pgTx, p); err != nil {
			return err
		}
	}

	tx := &Tx{tx: pgTx, store: s, principal: p}
	if err = fn(tx); err != nil {
		s.log.Debug("transaction rolled back", zap.Stringer("principal", p), zap.Error(err))
		return err
	}

	if err = pgTx.Commit(ctx); err != nil {
		return runtime.Classify(err)
	}
	return nil
}

func (s *Store) scope(ctx context.Context, tx pgx.Tx, p policy.Principal) error {
	cfg := s.policies.Config()
	if _, err := tx.Exec(ctx, "SET LOCAL ROLE "+pgx.Identifier{cfg.Role}.Sanitize()); err != nil {
		return fmt.Errorf("switch to role %s: %w", cfg.Role, err)
	}
	var userID string
	if p.Authenticated() {
		userID = p.UserID.String()
	}
	if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", cfg.Setting, userID); err != nil {
		return fmt.Errorf("set session user: %w", err)
	}
	return nil
}

func principalKind(p policy.Principal) string {
	switch {
	case p.System:
		return "system"
	case !p.Authenticated():
		return "anonymous"
	case p.Admin:
		return "admin"
	default:
		return "user"
	}
}
