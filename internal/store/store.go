// Package store persists listings and the append-only trust audit log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-trust/internal/config"
	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/resilience"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditFilter selects trust audits. Zero values match everything.
type AuditFilter struct {
	UserID    string    `json:"user_id,omitempty"`
	ListingID string    `json:"listing_id,omitempty"`
	Since     time.Time `json:"since,omitempty"`
	Until     time.Time `json:"until,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

func (f AuditFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultAuditLimit
	case f.Limit > maxAuditLimit:
		return maxAuditLimit
	default:
		return f.Limit
	}
}

// ListingStore loads and saves listings by id.
type ListingStore interface {
	// GetListing returns model.ErrListingNotFound for an unknown id.
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	UpsertListing(ctx context.Context, l *model.Listing) error
	ImportListings(ctx context.Context, listings []*model.Listing) (int64, error)
}

// AuditStore is the append-only trust audit log. Records are never
// updated or deleted through it.
type AuditStore interface {
	AppendAudit(ctx context.Context, a model.TrustAudit) error
	// ListAudits returns matching audits, newest first.
	ListAudits(ctx context.Context, filter AuditFilter) ([]model.TrustAudit, error)
}

// Store defines the persistence interface for the scoring service.
type Store interface {
	ListingStore
	AuditStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := NewPostgres(ctx, cfg.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// persistErr marks a failed write so callers can match ErrPersistence
// while keeping the driver error in the chain.
func persistErr(err error, msg string) error {
	return errors.Join(resilience.ErrPersistence, eris.Wrap(err, msg))
}

func checkListing(l *model.Listing) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.ID == "" {
		return eris.Wrap(model.ErrInvalidInput, "listing id is required")
	}
	return nil
}

func checkAudit(a model.TrustAudit) error {
	if a.ID == "" {
		return eris.Wrap(model.ErrInvalidInput, "audit id is required")
	}
	if a.EvaluatedAt.IsZero() {
		return eris.Wrap(model.ErrInvalidInput, "audit evaluatedAt is required")
	}
	return nil
}

// nonNil keeps decoded audit lists non-nil so JSON output stays [] not null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
