package extract

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-trust/internal/model"
)

func fullFields() model.ExtractedFields {
	return model.ExtractedFields{
		Intent:      model.String(model.IntentOffer),
		Category:    model.String("train"),
		Origin:      model.String("Roma"),
		Destination: model.String("Milano"),
		StartDate:   model.MustDate("2025-10-15"),
		EndDate:     model.MustDate("2025-10-16"),
		DepartDate:  model.MustDate("2025-10-15"),
		ArriveDate:  model.MustDate("2025-10-16"),
		CheckIn:     model.MustDate("2025-10-15"),
		CheckOut:    model.MustDate("2025-10-16"),
		HolderName:  model.String("Mario Rossi"),
		Price:       model.Float(45),
		Currency:    model.String("EUR"),
	}
}

func TestMerge_IdentityOnEmptyUpdate(t *testing.T) {
	t.Parallel()

	for _, a := range []model.ExtractedFields{{}, fullFields(), {Origin: model.String("Bari")}} {
		assert.Equal(t, a, Merge(a, model.ExtractedFields{}))
	}
}

func TestMerge_NextWinsWhereSet(t *testing.T) {
	t.Parallel()

	prior := model.ExtractedFields{
		Intent:   model.String(model.IntentSeek),
		Origin:   model.String("Roma"),
		Price:    model.Float(50),
		Currency: model.String("EUR"),
	}
	next := model.ExtractedFields{
		Intent:      model.String(model.IntentOffer),
		Destination: model.String("Milano"),
		Price:       model.Float(0),
	}

	got := Merge(prior, next)
	assert.Equal(t, model.IntentOffer, *got.Intent)
	assert.Equal(t, "Roma", *got.Origin, "nil in next keeps prior")
	assert.Equal(t, "Milano", *got.Destination)
	assert.InDelta(t, 0.0, *got.Price, 0.0001, "zero is a value, not a gap")
	assert.Equal(t, "EUR", *got.Currency)
}

func TestMerge_CoversEveryField(t *testing.T) {
	t.Parallel()

	// Every field set in next must arrive in the merge result; a missing
	// rule would leave the zero value.
	got := Merge(model.ExtractedFields{}, fullFields())
	assert.Equal(t, fullFields(), got)
	assert.Len(t, FieldNames(), 13)
}

func TestFillAndFilled(t *testing.T) {
	t.Parallel()

	base := model.ExtractedFields{Category: model.String("train"), Origin: model.String("Roma")}
	ai := model.ExtractedFields{
		Category:    model.String("flight"),
		Origin:      model.String("Rome"),
		Destination: model.String("Milano"),
		Intent:      model.String(model.IntentOffer),
	}

	got := Fill(base, ai)
	assert.Equal(t, "train", *got.Category, "deterministic value kept")
	assert.Equal(t, "Roma", *got.Origin)
	assert.Equal(t, "Milano", *got.Destination)
	assert.Equal(t, []string{"intent", "destination"}, Filled(base, got))
}

func TestNormalize_Intent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.IntentOffer, *Normalize(model.ExtractedFields{Intent: model.String(" offer ")}).Intent)
	assert.Equal(t, model.IntentSeek, *Normalize(model.ExtractedFields{Intent: model.String("seek")}).Intent)
	assert.Nil(t, Normalize(model.ExtractedFields{Intent: model.String("SELL")}).Intent)
	assert.Nil(t, Normalize(model.ExtractedFields{Intent: model.String("")}).Intent)
}

func TestNormalize_Scalars(t *testing.T) {
	t.Parallel()

	f := Normalize(model.ExtractedFields{
		Category:   model.String(" Hotel "),
		Currency:   model.String("eur"),
		Origin:     model.String("  "),
		HolderName: model.String(" Anna "),
	})
	assert.Equal(t, "hotel", *f.Category)
	assert.Equal(t, "EUR", *f.Currency)
	assert.Nil(t, f.Origin)
	assert.Equal(t, "Anna", *f.HolderName)

	assert.Equal(t, "EUR", *Normalize(model.ExtractedFields{Currency: model.String("€")}).Currency)
	assert.Equal(t, "JPY", *Normalize(model.ExtractedFields{Currency: model.String("jpy")}).Currency)
	assert.Nil(t, Normalize(model.ExtractedFields{Currency: model.String("euro-ish")}).Currency)
	assert.Nil(t, Normalize(model.ExtractedFields{Currency: model.String("E1R")}).Currency)
}

func TestNormalize_Price(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		keep bool
	}{
		{45, true},
		{0, true},
		{-5, false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}
	for _, tt := range tests {
		f := Normalize(model.ExtractedFields{Price: model.Float(tt.in)})
		if tt.keep {
			require.NotNil(t, f.Price)
			assert.InDelta(t, tt.in, *f.Price, 0.0001)
		} else {
			assert.Nil(t, f.Price)
		}
	}
}

func TestNormalize_TravelAliases(t *testing.T) {
	t.Parallel()

	f := Normalize(model.ExtractedFields{
		Category:   model.String("train"),
		StartDate:  model.MustDate("2025-10-15"),
		ArriveDate: model.MustDate("2025-10-16"),
	})
	assert.Equal(t, "2025-10-15", f.DepartDate.String())
	assert.Equal(t, "2025-10-16", f.EndDate.String())
	assert.Nil(t, f.CheckIn, "lodging aliases untouched for travel")
	assert.Nil(t, f.CheckOut)
}

func TestNormalize_LodgingAliases(t *testing.T) {
	t.Parallel()

	f := Normalize(model.ExtractedFields{
		Category: model.String("hotel"),
		CheckIn:  model.MustDate("2026-03-01"),
		EndDate:  model.MustDate("2026-03-04"),
	})
	assert.Equal(t, "2026-03-01", f.StartDate.String())
	assert.Equal(t, "2026-03-04", f.CheckOut.String())
	assert.Nil(t, f.DepartDate)
}

func TestNormalize_StartWinsOverAlias(t *testing.T) {
	t.Parallel()

	f := Normalize(model.ExtractedFields{
		Category:   model.String("flight"),
		StartDate:  model.MustDate("2025-12-01"),
		DepartDate: model.MustDate("2025-12-02"),
	})
	assert.Equal(t, "2025-12-01", f.StartDate.String())
	assert.Equal(t, "2025-12-01", f.DepartDate.String(), "alias rewritten from start")
}

func TestNormalize_UnknownCategoryRewritesSetAliases(t *testing.T) {
	t.Parallel()

	f := Normalize(model.ExtractedFields{
		StartDate: model.MustDate("2026-02-10"),
		CheckIn:   model.MustDate("2026-02-09"),
	})
	assert.Equal(t, "2026-02-10", f.CheckIn.String())
	assert.Nil(t, f.DepartDate, "unset aliases stay unset")
}

func TestNormalize_UnknownCategoryFeedsStart(t *testing.T) {
	t.Parallel()

	f := Normalize(model.ExtractedFields{CheckOut: model.MustDate("2026-01-05")})
	assert.Equal(t, "2026-01-05", f.EndDate.String())
	assert.Nil(t, f.ArriveDate)
}

func TestReconcile_AcrossTurns(t *testing.T) {
	t.Parallel()

	turn1 := Reconcile(model.ExtractedFields{}, Parse("Cerco biglietto treno Roma -> Milano", "EUR"))
	assert.Equal(t, model.IntentSeek, *turn1.Intent)
	assert.Nil(t, turn1.StartDate)

	turn2 := Reconcile(turn1, Parse("il 15/10/2025, massimo 40 euro", "EUR"))
	assert.Equal(t, model.IntentSeek, *turn2.Intent, "null in later turn never erases")
	assert.Equal(t, "Roma", *turn2.Origin)
	assert.Equal(t, "2025-10-15", turn2.StartDate.String())
	assert.Equal(t, "2025-10-15", turn2.DepartDate.String())
	assert.InDelta(t, 40.0, *turn2.Price, 0.0001)
}

func TestReconcile_LaterTurnCorrectsDate(t *testing.T) {
	t.Parallel()

	turn1 := Reconcile(model.ExtractedFields{}, Parse("Vendo treno Roma -> Milano 15/10/2025", "EUR"))
	require.Equal(t, "2025-10-15", turn1.StartDate.String())
	require.Equal(t, "2025-10-15", turn1.DepartDate.String())

	turn2 := Reconcile(turn1, Parse("la data giusta è 20/10/2025", "EUR"))
	assert.Equal(t, "train", *turn2.Category)
	assert.Equal(t, "2025-10-20", turn2.StartDate.String())
	assert.Equal(t, "2025-10-20", turn2.DepartDate.String(), "stale alias replaced")

	turn3 := Reconcile(turn2, model.ExtractedFields{DepartDate: model.MustDate("2025-10-22")})
	assert.Equal(t, "2025-10-22", turn3.StartDate.String(), "alias-only turn moves start")
	assert.Equal(t, "2025-10-22", turn3.DepartDate.String())

	hotel := Reconcile(
		model.ExtractedFields{Category: model.String("hotel"), CheckIn: model.MustDate("2026-03-01"), CheckOut: model.MustDate("2026-03-04")},
		model.ExtractedFields{CheckOut: model.MustDate("2026-03-05")},
	)
	assert.Equal(t, "2026-03-01", hotel.CheckIn.String())
	assert.Equal(t, "2026-03-05", hotel.EndDate.String())
	assert.Equal(t, "2026-03-05", hotel.CheckOut.String())
}

func TestMissing(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{GapCategory, GapDate, GapLocation, GapIntent}, Missing(model.ExtractedFields{}))
	assert.Empty(t, Missing(fullFields()))

	partial := model.ExtractedFields{
		Category: model.String("hotel"),
		CheckIn:  model.MustDate("2026-03-01"),
	}
	assert.Equal(t, []string{GapLocation, GapIntent}, Missing(partial))
}
