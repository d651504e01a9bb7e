package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-trust/internal/config"
	"github.com/sells-group/listing-trust/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testAudit(id, user, listing string, at time.Time) model.TrustAudit {
	return model.TrustAudit{
		ID:          id,
		UserID:      user,
		ListingID:   listing,
		TrustScore:  45,
		SubScores:   model.SubScores{Consistency: 20, Plausibility: 40, Completeness: 60},
		Flags:       []model.Flag{{Code: "DATE_SWAP", Message: "end before start"}},
		Signature:   "sha256:" + id,
		EvaluatedAt: at,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ListingRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		in := &model.Listing{
			ID:          "l-1",
			Category:    "hotel",
			Title:       "Hotel Firenze",
			Destination: "Firenze",
			StartDate:   model.MustDate("2099-01-01"),
			EndDate:     model.MustDate("2099-01-03"),
			Price:       model.Float(180),
			Currency:    "EUR",
		}
		require.NoError(t, s.UpsertListing(ctx, in))

		got, err := s.GetListing(ctx, "l-1")
		require.NoError(t, err)
		assert.Equal(t, "Hotel Firenze", got.Title)
		assert.Equal(t, "2099-01-03", got.EndDate.String())
		assert.Equal(t, []string{}, got.Images)

		in.Price = model.Float(150)
		require.NoError(t, s.UpsertListing(ctx, in))
		got, err = s.GetListing(ctx, "l-1")
		require.NoError(t, err)
		assert.Equal(t, 150.0, *got.Price)
	})

	t.Run("ListingNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetListing(context.Background(), "nope")
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrListingNotFound))
	})

	t.Run("ImportListings", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		n, err := s.ImportListings(ctx, []*model.Listing{
			{ID: "a", Category: "train"},
			{ID: "b", Category: "bus"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err := s.GetListing(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, "bus", got.Category)
	})

	t.Run("ImportRejectsInvalid", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.ImportListings(ctx, []*model.Listing{{ID: "a"}, {Category: "bus"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrInvalidInput))

		_, err = s.GetListing(ctx, "a")
		assert.True(t, errors.Is(err, model.ErrListingNotFound), "nothing imported")
	})

	t.Run("AppendAndListAudits", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := range 3 {
			a := testAudit(fmt.Sprintf("a-%d", i), "user:7", "l-1", base.Add(time.Duration(i)*time.Hour))
			require.NoError(t, s.AppendAudit(ctx, a))
		}
		require.NoError(t, s.AppendAudit(ctx, testAudit("b-0", "user:8", "l-2", base)))

		all, err := s.ListAudits(ctx, AuditFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)

		mine, err := s.ListAudits(ctx, AuditFilter{UserID: "user:7"})
		require.NoError(t, err)
		require.Len(t, mine, 3)
		assert.Equal(t, "a-2", mine[0].ID, "newest first")
		assert.Equal(t, base.Add(2*time.Hour), mine[0].EvaluatedAt)
		assert.Equal(t, "DATE_SWAP", mine[0].Flags[0].Code)
		assert.NotNil(t, mine[0].SuggestedFixes)
		assert.Equal(t, 40, mine[0].SubScores.Plausibility)

		window, err := s.ListAudits(ctx, AuditFilter{ListingID: "l-1", Since: base.Add(time.Hour), Until: base.Add(2 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, window, 1)
		assert.Equal(t, "a-1", window[0].ID)

		page, err := s.ListAudits(ctx, AuditFilter{UserID: "user:7", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "a-1", page[0].ID)
	})

	t.Run("AppendAuditIsWriteOnce", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := testAudit("a-1", "user:7", "l-1", base)
		require.NoError(t, s.AppendAudit(ctx, a))

		a.TrustScore = 99
		require.Error(t, s.AppendAudit(ctx, a))

		got, err := s.ListAudits(ctx, AuditFilter{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 45, got[0].TrustScore)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLiteStore_AuditTableRejectsUpdates(t *testing.T) {
	s := newTestSQLite(t).(*SQLiteStore)
	ctx := context.Background()

	require.NoError(t, s.AppendAudit(ctx, testAudit("a-1", "", "", time.Now())))

	_, err := s.db.ExecContext(ctx, `UPDATE trust_audits SET trust_score = 100`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = s.db.ExecContext(ctx, `DELETE FROM trust_audits`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown driver "mysql"`)
}

func TestAuditFilterLimit(t *testing.T) {
	assert.Equal(t, defaultAuditLimit, AuditFilter{}.limit())
	assert.Equal(t, 7, AuditFilter{Limit: 7}.limit())
	assert.Equal(t, maxAuditLimit, AuditFilter{Limit: maxAuditLimit + 1}.limit())
}
