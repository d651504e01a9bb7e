package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-trust/internal/db"
	"github.com/sells-group/listing-trust/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlGetListing = `SELECT body FROM listings WHERE id = $1`
	sqlPutListing = `INSERT INTO listings (id, category, body, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET category = EXCLUDED.category, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	sqlAppendAudit = `INSERT INTO trust_audits (id, user_id, listing_id, trust_score, sub_scores, flags, suggested_fixes, signature, evaluated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	sqlSelectAudits = `SELECT id, user_id, listing_id, trust_score, sub_scores, flags, suggested_fixes, signature, evaluated_at FROM trust_audits WHERE true`
)

// preparedStatements are prepared on each new connection for the hot path.
var preparedStatements = map[string]string{
	"get_listing":  sqlGetListing,
	"put_listing":  sqlPutListing,
	"append_audit": sqlAppendAudit,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id         TEXT PRIMARY KEY,
	category   TEXT NOT NULL DEFAULT '',
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_category ON listings(category);

CREATE TABLE IF NOT EXISTS trust_audits (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL DEFAULT '',
	listing_id      TEXT NOT NULL DEFAULT '',
	trust_score     INTEGER NOT NULL CHECK (trust_score BETWEEN 0 AND 100),
	sub_scores      JSONB NOT NULL,
	flags           JSONB NOT NULL,
	suggested_fixes JSONB NOT NULL,
	signature       TEXT NOT NULL DEFAULT '',
	evaluated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trust_audits_user ON trust_audits(user_id, evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_trust_audits_listing ON trust_audits(listing_id, evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_trust_audits_evaluated_at ON trust_audits(evaluated_at DESC);

CREATE OR REPLACE FUNCTION trust_audits_append_only() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'trust_audits is append-only';
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE TRIGGER trust_audits_no_change
	BEFORE UPDATE OR DELETE ON trust_audits
	FOR EACH ROW EXECUTE FUNCTION trust_audits_append_only();
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, sqlGetListing, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrListingNotFound, "postgres: get listing %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get listing %s", id)
	}
	l, err := decodeListing(body)
	return l, eris.Wrapf(err, "postgres: get listing %s", id)
}

func (s *PostgresStore) UpsertListing(ctx context.Context, l *model.Listing) error {
	if err := checkListing(l); err != nil {
		return err
	}
	body, err := encodeListing(l)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert listing")
	}
	if _, err := s.pool.Exec(ctx, sqlPutListing, l.ID, l.Category, body, time.Now().UTC()); err != nil {
		return persistErr(err, fmt.Sprintf("postgres: upsert listing %s", l.ID))
	}
	return nil
}

// ImportListings bulk-loads listings with COPY; later duplicates of an id win.
func (s *PostgresStore) ImportListings(ctx context.Context, listings []*model.Listing) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(listings))
	for i, l := range listings {
		if err := checkListing(l); err != nil {
			return 0, eris.Wrapf(err, "postgres: import listing %d", i)
		}
		body, err := encodeListing(l)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: import listing %d", i)
		}
		rows = append(rows, []any{l.ID, l.Category, body, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "listings",
		Columns:      []string{"id", "category", "body", "updated_at"},
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, persistErr(err, "postgres: import listings")
	}
	return n, nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, a model.TrustAudit) error {
	if err := checkAudit(a); err != nil {
		return err
	}
	enc, err := encodeAudit(a)
	if err != nil {
		return eris.Wrap(err, "postgres: append audit")
	}
	_, err = s.pool.Exec(ctx, sqlAppendAudit,
		a.ID, a.UserID, a.ListingID, a.TrustScore,
		enc.subScores, enc.flags, enc.fixes,
		a.Signature, a.EvaluatedAt.UTC(),
	)
	if err != nil {
		return persistErr(err, fmt.Sprintf("postgres: append audit %s", a.ID))
	}
	return nil
}

func (s *PostgresStore) ListAudits(ctx context.Context, filter AuditFilter) ([]model.TrustAudit, error) {
	query := sqlSelectAudits
	args := []any{}
	argIdx := 1

	add := func(clause string, v any) {
		query += fmt.Sprintf(clause, argIdx)
		args = append(args, v)
		argIdx++
	}
	if filter.UserID != "" {
		add(` AND user_id = $%d`, filter.UserID)
	}
	if filter.ListingID != "" {
		add(` AND listing_id = $%d`, filter.ListingID)
	}
	if !filter.Since.IsZero() {
		add(` AND evaluated_at >= $%d`, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		add(` AND evaluated_at < $%d`, filter.Until.UTC())
	}
	query += ` ORDER BY evaluated_at DESC, id`
	add(` LIMIT $%d`, filter.limit())
	if filter.Offset > 0 {
		add(` OFFSET $%d`, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audits")
	}
	defer rows.Close()

	audits := []model.TrustAudit{}
	for rows.Next() {
		var (
			a   model.TrustAudit
			enc auditJSON
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ListingID, &a.TrustScore,
			&enc.subScores, &enc.flags, &enc.fixes, &a.Signature, &a.EvaluatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		if err := enc.decodeInto(&a); err != nil {
			return nil, eris.Wrapf(err, "postgres: audit %s", a.ID)
		}
		a.EvaluatedAt = a.EvaluatedAt.UTC()
		audits = append(audits, a)
	}
	return audits, eris.Wrap(rows.Err(), "postgres: list audits iterate")
}
