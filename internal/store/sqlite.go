package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/listing-trust/internal/model"
)

// sqliteTime is fixed-width so stored timestamps sort lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if dsn == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id         TEXT PRIMARY KEY,
	category   TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_category ON listings(category);

CREATE TABLE IF NOT EXISTS trust_audits (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL DEFAULT '',
	listing_id      TEXT NOT NULL DEFAULT '',
	trust_score     INTEGER NOT NULL CHECK (trust_score BETWEEN 0 AND 100),
	sub_scores      TEXT NOT NULL,
	flags           TEXT NOT NULL,
	suggested_fixes TEXT NOT NULL,
	signature       TEXT NOT NULL DEFAULT '',
	evaluated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trust_audits_user ON trust_audits(user_id, evaluated_at);
CREATE INDEX IF NOT EXISTS idx_trust_audits_listing ON trust_audits(listing_id, evaluated_at);
CREATE INDEX IF NOT EXISTS idx_trust_audits_evaluated_at ON trust_audits(evaluated_at);

CREATE TRIGGER IF NOT EXISTS trust_audits_no_update BEFORE UPDATE ON trust_audits
BEGIN
	SELECT RAISE(ABORT, 'trust_audits is append-only');
END;

CREATE TRIGGER IF NOT EXISTS trust_audits_no_delete BEFORE DELETE ON trust_audits
BEGIN
	SELECT RAISE(ABORT, 'trust_audits is append-only');
END;
`

const sqliteUpsertListing = `INSERT INTO listings (id, category, body, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET category = excluded.category, body = excluded.body, updated_at = excluded.updated_at`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM listings WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrListingNotFound, "sqlite: get listing %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get listing %s", id)
	}
	l, err := decodeListing([]byte(body))
	return l, eris.Wrapf(err, "sqlite: get listing %s", id)
}

func (s *SQLiteStore) UpsertListing(ctx context.Context, l *model.Listing) error {
	if err := checkListing(l); err != nil {
		return err
	}
	body, err := encodeListing(l)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert listing")
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsertListing,
		l.ID, l.Category, string(body), time.Now().UTC().Format(sqliteTime))
	if err != nil {
		return persistErr(err, fmt.Sprintf("sqlite: upsert listing %s", l.ID))
	}
	return nil
}

// ImportListings upserts all listings in one transaction.
func (s *SQLiteStore) ImportListings(ctx context.Context, listings []*model.Listing) (int64, error) {
	if len(listings) == 0 {
		return 0, nil
	}
	for i, l := range listings {
		if err := checkListing(l); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import listing %d", i)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertListing)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC().Format(sqliteTime)
	var n int64
	for _, l := range listings {
		body, err := encodeListing(l)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import listing %s", l.ID)
		}
		res, err := stmt.ExecContext(ctx, l.ID, l.Category, string(body), now)
		if err != nil {
			return 0, persistErr(err, fmt.Sprintf("sqlite: import listing %s", l.ID))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "rows affected")
		}
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, persistErr(err, "sqlite: import: commit")
	}
	return n, nil
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, a model.TrustAudit) error {
	if err := checkAudit(a); err != nil {
		return err
	}
	enc, err := encodeAudit(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: append audit")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trust_audits (id, user_id, listing_id, trust_score, sub_scores, flags, suggested_fixes, signature, evaluated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.ListingID, a.TrustScore,
		string(enc.subScores), string(enc.flags), string(enc.fixes),
		a.Signature, a.EvaluatedAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return persistErr(err, fmt.Sprintf("sqlite: append audit %s", a.ID))
	}
	return nil
}

func (s *SQLiteStore) ListAudits(ctx context.Context, filter AuditFilter) ([]model.TrustAudit, error) {
	query := `SELECT id, user_id, listing_id, trust_score, sub_scores, flags, suggested_fixes, signature, evaluated_at FROM trust_audits WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.ListingID != "" {
		query += ` AND listing_id = ?`
		args = append(args, filter.ListingID)
	}
	if !filter.Since.IsZero() {
		query += ` AND evaluated_at >= ?`
		args = append(args, filter.Since.UTC().Format(sqliteTime))
	}
	if !filter.Until.IsZero() {
		query += ` AND evaluated_at < ?`
		args = append(args, filter.Until.UTC().Format(sqliteTime))
	}
	query += ` ORDER BY evaluated_at DESC, id LIMIT ?`
	args = append(args, filter.limit())
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audits")
	}
	defer rows.Close() //nolint:errcheck

	audits := []model.TrustAudit{}
	for rows.Next() {
		var (
			a                       model.TrustAudit
			subScores, flags, fixes string
			evaluatedAt             string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ListingID, &a.TrustScore,
			&subScores, &flags, &fixes, &a.Signature, &evaluatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		enc := auditJSON{subScores: []byte(subScores), flags: []byte(flags), fixes: []byte(fixes)}
		if err := enc.decodeInto(&a); err != nil {
			return nil, eris.Wrapf(err, "sqlite: audit %s", a.ID)
		}
		if a.EvaluatedAt, err = time.Parse(sqliteTime, evaluatedAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: audit %s evaluated_at", a.ID)
		}
		audits = append(audits, a)
	}
	return audits, eris.Wrap(rows.Err(), "sqlite: list audits iterate")
}
