package pronos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	cfg := DefaultConfig()
	cfg.DbPath = ":memory:"
	store, err := OpenStore(cfg)
	require.NoError(t, err, "Failed to open in-memory database")
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreMatchRoundTrip(t *testing.T) {
	store := openTestStore(t)

	matches := []*Match{
		played("m2", day(5), "Metz", "Nice", 1, 1),
		played("m1", day(1), "Lyon", "Metz", 2, 0),
		fixture("u1", day(10), "Nice", "Lyon"),
	}
	require.NoError(t, store.SaveMatches(matches))

	historical, err := store.HistoricalMatches()
	require.NoError(t, err)
	require.Len(t, historical, 2, "Fixtures without a result are not historical")
	assert.Equal(t, "m1", historical[0].ID, "Results should come back date ascending")
	assert.Equal(t, "m2", historical[1].ID)
	assert.Equal(t, 2, historical[0].HomeScore)
	assert.Equal(t, 0, historical[0].AwayScore)
	assert.True(t, historical[0].Played())

	upcoming, err := store.UpcomingMatches()
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "u1", upcoming[0].ID)
	assert.False(t, upcoming[0].Played(), "Unscored matches keep their sentinel scores")
}

func TestStoreMatchUpsert(t *testing.T) {
	store := openTestStore(t)

	// A fixture arrives first without a result, then the result lands
	m := fixture("m1", day(1), "Lyon", "Metz")
	require.NoError(t, store.SaveMatches([]*Match{m}))

	m.HomeScore = 3
	m.AwayScore = 1
	require.NoError(t, store.SaveMatches([]*Match{m}))

	historical, err := store.HistoricalMatches()
	require.NoError(t, err)
	require.Len(t, historical, 1, "Saving the same id twice must update, not duplicate")
	assert.Equal(t, 3, historical[0].HomeScore)

	upcoming, err := store.UpcomingMatches()
	require.NoError(t, err)
	assert.Empty(t, upcoming, "The fixture moved to the historical side")
}

func TestStoreMatchesBefore(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveMatches([]*Match{
		played("m1", day(1), "Lyon", "Metz", 1, 0),
		played("m2", day(5), "Metz", "Nice", 0, 0),
		played("m3", day(9), "Nice", "Lyon", 2, 2),
	}))

	before, err := store.MatchesBefore(day(5))
	require.NoError(t, err)
	require.Len(t, before, 1, "The cutoff is strict, the day(5) match is excluded")
	assert.Equal(t, "m1", before[0].ID)
}

func TestStoreWeatherRoundTrip(t *testing.T) {
	store := openTestStore(t)

	observations := []*WeatherObservation{
		{Date: day(1), Temperature: 12.5, Precipitation: 3.2, WindSpeed: 18, Condition: "rain"},
		{Date: day(2), Temperature: 21, Precipitation: 0, WindSpeed: 9, Condition: "clear"},
	}
	require.NoError(t, store.SaveWeather(observations))

	loaded, err := store.AllWeather()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	byCondition := map[string]*WeatherObservation{}
	for _, w := range loaded {
		byCondition[w.Condition] = w
	}
	require.Contains(t, byCondition, "rain")
	assert.InDelta(t, 12.5, byCondition["rain"].Temperature, 1e-9)
	assert.Equal(t, DayKey(day(1)), DayKey(byCondition["rain"].Date), "Observations persist keyed on the day")
}

func TestStoreCongestionRoundTrip(t *testing.T) {
	store := openTestStore(t)

	records := []*CongestionRecord{
		{Team: "Lyon", Date: day(3), Competition: "UEL", Continental: true},
		{Team: "Lyon", Date: day(6), Competition: "Coupe", Continental: false},
	}
	require.NoError(t, store.SaveCongestion(records))

	loaded, err := store.AllCongestion()
	require.NoError(t, err)
	require.Len(t, loaded, 2, "Same team on different dates are distinct records")

	var continental int
	for _, r := range loaded {
		assert.Equal(t, "Lyon", r.Team)
		if r.Continental {
			continental++
		}
	}
	assert.Equal(t, 1, continental)
}

func TestStorePredictionUpsertAndWarnings(t *testing.T) {
	store := openTestStore(t)

	prediction := &MatchPrediction{
		MatchID:            "m1",
		Date:               day(10),
		HomeTeam:           "Lyon",
		AwayTeam:           "Metz",
		PredictedHomeGoals: 1.84,
		PredictedAwayGoals: 0.92,
		DiscreteHomeGoals:  2,
		DiscreteAwayGoals:  1,
		HomeWinProbability: 50,
		DrawProbability:    25,
		AwayWinProbability: 25,
		Warnings:           []string{"no weather observation for 2024-01-11, using dataset means"},
	}
	require.NoError(t, store.SavePredictions([]*MatchPrediction{prediction}))

	loaded, err := store.PredictionFor("m1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, 1.84, loaded.PredictedHomeGoals, 1e-9)
	assert.Equal(t, prediction.Warnings, loaded.Warnings, "Warnings survive the round trip")

	// A re-run overwrites the stored prediction
	prediction.PredictedHomeGoals = 2.10
	prediction.Warnings = nil
	require.NoError(t, store.SavePredictions([]*MatchPrediction{prediction}))

	loaded, err = store.PredictionFor("m1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.InDelta(t, 2.10, loaded.PredictedHomeGoals, 1e-9)
	assert.Empty(t, loaded.Warnings)

	missing, err := store.PredictionFor("nope")
	require.NoError(t, err)
	assert.Nil(t, missing, "Unknown fixtures have no stored prediction")
}

func TestPredictAndStorePersists(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	pipeline, matches := newTestPredictionPipeline(t, cfg, nil)

	upcoming := []*Match{fixture("u1", day(200), "Lyon", "Metz")}

	predictions, err := pipeline.PredictAndStore(store, matches, upcoming)
	require.NoError(t, err)
	require.Len(t, predictions, 1)

	stored, err := store.PredictionFor("u1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, predictions[0].DiscreteHomeGoals, stored.DiscreteHomeGoals)
	assert.Equal(t, predictions[0].HomeTeam, stored.HomeTeam)
}

func TestSaveMatchesRollsBackOnInvalidRow(t *testing.T) {
	store := openTestStore(t)

	bad := fixture("bad", day(2), "Nice", "Lens")
	bad.HomeScore = 1 // away score unset, the save hook rejects this

	batch := []*Match{
		played("good", day(1), "Lyon", "Metz", 2, 0),
		bad,
	}

	err := store.SaveMatches(batch)
	require.Error(t, err, "An invalid row must fail the batch")

	historical, err := store.HistoricalMatches()
	require.NoError(t, err)
	assert.Empty(t, historical, "A failed batch persists nothing, not even its valid rows")

	upcoming, err := store.UpcomingMatches()
	require.NoError(t, err)
	assert.Empty(t, upcoming)

	// The store stays usable after the rollback
	require.NoError(t, store.SaveMatches([]*Match{played("good", day(1), "Lyon", "Metz", 2, 0)}))
	historical, err = store.HistoricalMatches()
	require.NoError(t, err)
	assert.Len(t, historical, 1)
}

func TestMatchRejectsPartialScore(t *testing.T) {
	store := openTestStore(t)

	m := fixture("m1", day(1), "Lyon", "Metz")
	m.HomeScore = 2 // away score still unset

	err := store.SaveMatches([]*Match{m})
	assert.Error(t, err, "A match with only one score must not persist")
}
