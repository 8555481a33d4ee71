package pronos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// day returns a kickoff time n days into a fixed test season
func day(n int) time.Time {
	return time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// played creates a completed match
func played(id string, date time.Time, home, away string, hs, as int) *Match {
	m := NewMatch()
	m.ID = id
	m.Date = date
	m.HomeTeam = home
	m.AwayTeam = away
	m.HomeScore = hs
	m.AwayScore = as
	return m
}

// fixture creates an unplayed match
func fixture(id string, date time.Time, home, away string) *Match {
	m := NewMatch()
	m.ID = id
	m.Date = date
	m.HomeTeam = home
	m.AwayTeam = away
	return m
}

func newTestEngine(t *testing.T, weather []*WeatherObservation, congestion []*CongestionRecord) *FeatureEngine {
	engine, err := NewFeatureEngine(DefaultConfig(), weather, congestion)
	require.NoError(t, err, "Failed to build feature engine")
	return engine
}

func TestTeamFormColdStart(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	snapshot := engine.TeamForm(nil, "Lyon", day(10))
	assert.Equal(t, 0, snapshot.Matches, "No history should mean no counted matches")
	assert.Equal(t, 0.0, snapshot.Form, "Cold start form should be exactly zero")
	assert.Equal(t, 0.0, snapshot.PlainForm, "Cold start plain form should be exactly zero")
}

func TestTeamFormPerfectRun(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	// Five straight 1-0 wins. Every match contributes (3 + 0.1) / 3
	// regardless of weighting because the weights sum to one.
	var history []*Match
	for i := 0; i < 5; i++ {
		history = append(history, played("m"+string(rune('a'+i)), day(i), "Lyon", "Metz", 1, 0))
	}

	snapshot := engine.TeamForm(history, "Lyon", day(10))
	assert.Equal(t, 5, snapshot.Matches)
	assert.InDelta(t, 3.1/3.0, snapshot.Form, 1e-9, "A perfect run of 1-0 wins has a known form value")
	assert.InDelta(t, 1.0, snapshot.PlainForm, 1e-9, "Plain form for five wins is 1")
}

func TestTeamFormRecencyWeighting(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	// Same results in opposite chronological order. The side whose win is
	// most recent must carry the higher form.
	winLast := []*Match{
		played("a1", day(0), "Nice", "Metz", 0, 1),
		played("a2", day(1), "Nice", "Metz", 0, 1),
		played("a3", day(2), "Nice", "Metz", 0, 1),
		played("a4", day(3), "Nice", "Metz", 0, 1),
		played("a5", day(4), "Nice", "Metz", 2, 0),
	}
	winFirst := []*Match{
		played("b1", day(0), "Lens", "Metz", 2, 0),
		played("b2", day(1), "Lens", "Metz", 0, 1),
		played("b3", day(2), "Lens", "Metz", 0, 1),
		played("b4", day(3), "Lens", "Metz", 0, 1),
		played("b5", day(4), "Lens", "Metz", 0, 1),
	}

	formWinLast := engine.TeamForm(winLast, "Nice", day(10)).Form
	formWinFirst := engine.TeamForm(winFirst, "Lens", day(10)).Form

	assert.Greater(t, formWinLast, formWinFirst, "A recent win should outweigh the same win further in the past")
}

func TestRecencyWeightsSumToOne(t *testing.T) {
	for _, n := range []int{1, 2, 5, 10} {
		weights := recencyWeights(n)
		require.Len(t, weights, n)
		var sum float64
		for _, w := range weights {
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "Weights for %d matches should be normalized", n)
		if n > 1 {
			assert.Greater(t, weights[n-1], weights[0], "The newest match should carry the most weight")
		}
	}
}

func TestTeamFormStrictCutoff(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	history := []*Match{
		played("m1", day(0), "Lyon", "Metz", 3, 0),
		played("m2", day(5), "Lyon", "Metz", 3, 0), // On the cutoff itself
		played("m3", day(6), "Lyon", "Metz", 3, 0), // After the cutoff
	}

	snapshot := engine.TeamForm(history, "Lyon", day(5))
	assert.Equal(t, 1, snapshot.Matches, "Matches on or after the cutoff must not contribute")
}

func TestScoringAverages(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	history := []*Match{
		played("m1", day(0), "Lyon", "Metz", 2, 1),
		played("m2", day(1), "Lyon", "Nice", 4, 0),
		played("m3", day(2), "Metz", "Lyon", 1, 1), // Away match, excluded from home averages
	}

	scored, conceded := engine.ScoringAverages(history, "Lyon", day(10), true)
	assert.InDelta(t, 3.0, scored, 1e-9, "Home scoring average over 2 and 4 goals")
	assert.InDelta(t, 0.5, conceded, 1e-9, "Home conceded average over 1 and 0 goals")

	scored, conceded = engine.ScoringAverages(history, "Lyon", day(10), false)
	assert.InDelta(t, 1.0, scored, 1e-9)
	assert.InDelta(t, 1.0, conceded, 1e-9)

	// Cold start
	scored, conceded = engine.ScoringAverages(history, "Brest", day(10), true)
	assert.Equal(t, 0.0, scored, "Unknown team scores zero")
	assert.Equal(t, 0.0, conceded, "Unknown team concedes zero")
}

func TestHeadToHeadSymmetry(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	history := []*Match{
		played("m1", day(0), "Lyon", "Metz", 2, 0),
		played("m2", day(30), "Metz", "Lyon", 1, 1),
		played("m3", day(60), "Lyon", "Metz", 0, 3),
		played("m4", day(90), "Lyon", "Nice", 4, 0), // Different pairing, excluded
	}

	ab := engine.HeadToHead(history, "Lyon", "Metz", day(100))
	ba := engine.HeadToHead(history, "Metz", "Lyon", day(100))

	require.Equal(t, 3, ab.Meetings)
	require.Equal(t, 3, ba.Meetings)

	// Swapping the perspective mirrors every rate and average
	assert.Equal(t, ab.WinRateA, ba.WinRateB)
	assert.Equal(t, ab.WinRateB, ba.WinRateA)
	assert.Equal(t, ab.DrawRate, ba.DrawRate)
	assert.Equal(t, ab.AvgGoalsA, ba.AvgGoalsB)
	assert.Equal(t, ab.AvgGoalsB, ba.AvgGoalsA)

	assert.InDelta(t, 1.0, ab.WinRateA+ab.DrawRate+ab.WinRateB, 1e-9, "Rates must sum to one")
}

func TestHeadToHeadColdStart(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	record := engine.HeadToHead(nil, "Lyon", "Metz", day(10))
	assert.Equal(t, 0, record.Meetings)
	assert.Equal(t, 0.0, record.WinRateA)
	assert.Equal(t, 0.0, record.DrawRate)
	assert.Equal(t, 0.0, record.WinRateB)
	assert.Equal(t, 0.0, record.AvgGoalsA)
	assert.Equal(t, 0.0, record.AvgGoalsB)
}

func TestFatigueIndexSaturates(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	// Ten matches inside the window, five of them away. Both terms
	// saturate so the index lands exactly on 1.
	var history []*Match
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			history = append(history, played("f"+string(rune('a'+i)), day(i), "Lyon", "Metz", 1, 0))
		} else {
			history = append(history, played("f"+string(rune('a'+i)), day(i), "Metz", "Lyon", 0, 1))
		}
	}

	index := engine.FatigueIndex(history, "Lyon", day(15))
	assert.Equal(t, 1.0, index, "A fully congested window should saturate the index at 1")

	// No matches at all
	assert.Equal(t, 0.0, engine.FatigueIndex(nil, "Lyon", day(15)))
}

func TestFatigueIndexClampsOverflow(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	// Ten away matches in the window. The raw sum is 0.7 + 0.6 = 1.3,
	// the index must still come back as 1.
	var history []*Match
	for i := 0; i < 10; i++ {
		history = append(history, played("c"+string(rune('a'+i)), day(i), "Metz", "Lyon", 0, 1))
	}

	index := engine.FatigueIndex(history, "Lyon", day(15))
	assert.Equal(t, 1.0, index, "The index never exceeds 1 however congested the window")
}

func TestFatigueIndexWindow(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	// One match well outside the trailing window
	history := []*Match{
		played("old", day(0), "Lyon", "Metz", 1, 0),
	}
	assert.Equal(t, 0.0, engine.FatigueIndex(history, "Lyon", day(60)), "Matches outside the window must not count")

	// The same match inside the window
	index := engine.FatigueIndex(history, "Lyon", day(10))
	assert.InDelta(t, 0.7*(1.0/10.0), index, 1e-9)
}

func TestFeaturesLeakageFreedom(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	base := []*Match{
		played("m1", day(0), "Lyon", "Metz", 2, 0),
		played("m2", day(3), "Metz", "Nice", 1, 1),
		played("m3", day(6), "Nice", "Lyon", 0, 2),
	}
	target := played("m4", day(10), "Lyon", "Nice", 1, 0)

	withFuture := append([]*Match{}, base...)
	withFuture = append(withFuture, target,
		played("m5", day(14), "Lyon", "Metz", 5, 0),
		played("m6", day(20), "Nice", "Metz", 3, 3))

	vecClean, err := engine.Features(target, base)
	require.NoError(t, err)
	vecFuture, err := engine.Features(target, withFuture)
	require.NoError(t, err)

	assert.Equal(t, vecClean.Values, vecFuture.Values,
		"Matches on or after the fixture date must not influence its features")
}

func TestFeaturesColdStartIsAllZeros(t *testing.T) {
	engine := newTestEngine(t, nil, nil)

	vec, err := engine.Features(fixture("f1", day(0), "Lyon", "Metz"), nil)
	require.NoError(t, err)

	for i, name := range vec.Names {
		if name == "weather_temp" || name == "weather_rain" || name == "weather_wind" {
			continue // Imputed weather is zero here too but checked elsewhere
		}
		assert.Equal(t, 0.0, vec.Values[i], "Feature %s should be zero with no history", name)
	}
}

func TestFeaturesWeatherImputation(t *testing.T) {
	weather := []*WeatherObservation{
		{Date: day(1), Temperature: 10, Precipitation: 5, WindSpeed: 20},
		{Date: day(2), Temperature: 20, Precipitation: 0, WindSpeed: 10},
	}
	engine := newTestEngine(t, weather, nil)
	cfg := DefaultConfig()

	// Observed day, no warning
	vec, err := engine.Features(fixture("f1", day(1), "Lyon", "Metz"), nil)
	require.NoError(t, err)
	assert.Empty(t, vec.Warnings)
	assert.InDelta(t, 10.0/cfg.TempNorm, vec.Value("weather_temp"), 1e-9)
	assert.InDelta(t, 5.0/cfg.RainNorm, vec.Value("weather_rain"), 1e-9)
	assert.InDelta(t, 20.0/cfg.WindNorm, vec.Value("weather_wind"), 1e-9)

	// Unobserved day, imputed from the dataset means with a warning
	vec, err = engine.Features(fixture("f2", day(9), "Lyon", "Metz"), nil)
	require.NoError(t, err)
	require.Len(t, vec.Warnings, 1, "Imputation should be flagged")
	assert.InDelta(t, 15.0/cfg.TempNorm, vec.Value("weather_temp"), 1e-9, "Temperature imputes to the dataset mean")
	assert.Equal(t, 0.0, vec.Value("weather_rain"), "Precipitation imputes to zero")
	assert.InDelta(t, 15.0/cfg.WindNorm, vec.Value("weather_wind"), 1e-9, "Wind imputes to the dataset mean")
}

func TestFeaturesEuropeanMatchFlag(t *testing.T) {
	congestion := []*CongestionRecord{
		{Team: "Lyon", Date: day(8), Competition: "UEL", Continental: true},
		{Team: "Metz", Date: day(8), Competition: "Coupe", Continental: false},
	}
	engine := newTestEngine(t, nil, congestion)

	vec, err := engine.Features(fixture("f1", day(10), "Lyon", "Metz"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, vec.Value("home_european_match"), "Continental tie inside the window sets the flag")
	assert.Equal(t, 0.0, vec.Value("away_european_match"), "Domestic cup ties do not set the flag")

	// Outside the window
	vec, err = engine.Features(fixture("f2", day(30), "Lyon", "Metz"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, vec.Value("home_european_match"))
}

func TestNormalizeSkipsConstantFeatures(t *testing.T) {
	vectors := []*FeatureVector{
		{Names: FeatureNames(), Values: make([]float64, len(featureNames))},
		{Names: FeatureNames(), Values: make([]float64, len(featureNames))},
	}
	vectors[0].SetValue("home_team_form", 0.5)
	vectors[1].SetValue("home_team_form", 1.0)
	// away_team_form stays 0 in both rows, a constant feature

	means, stds := FitNormalization(vectors)

	vec := &FeatureVector{Names: FeatureNames(), Values: make([]float64, len(featureNames))}
	vec.SetValue("home_team_form", 0.75)
	vec.SetValue("away_team_form", 0.4)

	require.NoError(t, Normalize(vec, means, stds))

	assert.Equal(t, 0.0, vec.Value("home_team_form"), "0.75 is exactly the mean, z-score is zero")
	assert.Equal(t, 0.4, vec.Value("away_team_form"), "Zero deviation features pass through untouched")
}

func TestFeatureOrderIsStable(t *testing.T) {
	names := FeatureNames()
	require.Equal(t, len(featureNames), len(names))
	assert.Equal(t, "home_team_form", names[0])
	assert.Equal(t, "away_fatigue_index", names[len(names)-1])

	// Mutating the copy must not affect the canonical order
	names[0] = "tampered"
	assert.Equal(t, "home_team_form", FeatureNames()[0])
}
