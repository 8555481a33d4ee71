package pronos

import (
	"fmt"
	"math"
	"time"
)

// The canonical feature order shared by training and prediction.
// Models are only valid against vectors built in this exact order.
var featureNames = []string{
	"home_team_form",
	"away_team_form",
	"home_goals_scored_avg",
	"away_goals_scored_avg",
	"home_goals_conceded_avg",
	"away_goals_conceded_avg",
	"weather_temp",
	"weather_rain",
	"weather_wind",
	"form_difference",
	"goals_scored_diff",
	"goals_conceded_diff",
	"h2h_goal_diff",
	"h2h_experience",
	"home_high_form",
	"away_high_form",
	"home_european_match",
	"away_european_match",
	"home_fatigue_index",
	"away_fatigue_index",
}

// FeatureNames returns the canonical feature order
func FeatureNames() []string {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return names
}

// FeatureVector holds the engineered inputs for one match
type FeatureVector struct {
	MatchID  string    `json:"matchId"`
	Names    []string  `json:"names"`
	Values   []float64 `json:"values"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Value returns the named feature, 0 if absent
func (v *FeatureVector) Value(name string) float64 {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i]
		}
	}
	return 0
}

// SetValue overwrites the named feature, no-op if absent
func (v *FeatureVector) SetValue(name string, value float64) {
	for i, n := range v.Names {
		if n == name {
			v.Values[i] = value
			return
		}
	}
}

// TeamFormSnapshot captures a team's recent form strictly before a cutoff
type TeamFormSnapshot struct {
	Team      string    `json:"team"`
	AsOf      time.Time `json:"asOf"`
	Matches   int       `json:"matches"`
	Form      float64   `json:"form"`
	PlainForm float64   `json:"plainForm"`
}

// HeadToHeadRecord summarizes direct meetings between two teams from the
// first team's perspective
type HeadToHeadRecord struct {
	TeamA     string  `json:"teamA"`
	TeamB     string  `json:"teamB"`
	Meetings  int     `json:"meetings"`
	WinRateA  float64 `json:"winRateA"`
	DrawRate  float64 `json:"drawRate"`
	WinRateB  float64 `json:"winRateB"`
	AvgGoalsA float64 `json:"avgGoalsA"`
	AvgGoalsB float64 `json:"avgGoalsB"`
}

// FeatureEngine derives match features from historical results, weather
// observations and congestion records. Every lookback uses a strict cutoff,
// a match never contributes to its own features.
type FeatureEngine struct {
	cfg *Config

	weatherByDay map[time.Time]*WeatherObservation
	meanTemp     float64
	meanWind     float64

	congestionByTeam map[string][]*CongestionRecord

	// Fitted form means driving the high form indicators. Zero until
	// SetHighFormMeans is called, the flags stay 0 before that.
	homeFormMean float64
	awayFormMean float64
	formMeansSet bool
}

// NewFeatureEngine builds an engine over the given weather and congestion
// context. Either slice may be nil.
func NewFeatureEngine(cfg *Config, weather []*WeatherObservation, congestion []*CongestionRecord) (*FeatureEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &FeatureEngine{
		cfg:              cfg,
		weatherByDay:     make(map[time.Time]*WeatherObservation),
		congestionByTeam: make(map[string][]*CongestionRecord),
	}

	var tempSum, windSum float64
	for _, w := range weather {
		e.weatherByDay[DayKey(w.Date)] = w
		tempSum += w.Temperature
		windSum += w.WindSpeed
	}
	if len(weather) > 0 {
		e.meanTemp = tempSum / float64(len(weather))
		e.meanWind = windSum / float64(len(weather))
	}

	for _, r := range congestion {
		e.congestionByTeam[r.Team] = append(e.congestionByTeam[r.Team], r)
	}

	return e, nil
}

// SetHighFormMeans fixes the thresholds for the high form indicator
// features. Training fits these on its own rows, prediction restores them
// from the model bundle.
func (e *FeatureEngine) SetHighFormMeans(home, away float64) {
	e.homeFormMean = home
	e.awayFormMean = away
	e.formMeansSet = true
}

/////////////////////////////////////////////////////////////////////////
////// Core feature operations
/////////////////////////////////////////////////////////////////////////

// TeamForm computes a recency weighted form score over the team's last
// matches strictly before asOf. Each match contributes its league points
// plus a tenth of its goal difference, the weighted sum is scaled down by
// the maximum per-match points so a run of wins approaches 1.
func (e *FeatureEngine) TeamForm(history []*Match, team string, asOf time.Time) *TeamFormSnapshot {
	recent := e.recentMatches(history, team, asOf, e.cfg.FormWindow)

	snapshot := &TeamFormSnapshot{
		Team: team,
		AsOf: asOf,
	}

	n := len(recent)
	if n == 0 {
		return snapshot
	}
	snapshot.Matches = n

	weights := recencyWeights(n)

	var weighted, points float64
	for i, m := range recent {
		p := float64(m.PointsFor(team))
		gd := float64(m.GoalsFor(team) - m.GoalsAgainst(team))
		weighted += weights[i] * (p + 0.1*gd)
		points += p
	}

	snapshot.PlainForm = points / (float64(n) * 3.0)
	if e.cfg.WeightedForm {
		snapshot.Form = weighted / 3.0
	} else {
		snapshot.Form = snapshot.PlainForm
	}

	return snapshot
}

// recencyWeights returns normalized exponential weights for n matches
// ordered oldest to newest, the newest match carrying the most weight
func recencyWeights(n int) []float64 {
	weights := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		// n points evenly spaced from -1 to 0
		x := -1.0
		if n > 1 {
			x = -1.0 + float64(i)/float64(n-1)
		}
		weights[i] = math.Exp(x)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

// recentMatches returns the team's last window played matches strictly
// before asOf, ordered oldest to newest. A window of 0 means no limit.
func (e *FeatureEngine) recentMatches(history []*Match, team string, asOf time.Time, window int) []*Match {
	var recent []*Match
	for _, m := range history {
		if !m.Played() || !m.Involves(team) {
			continue
		}
		if !m.Date.Before(asOf) {
			continue
		}
		recent = append(recent, m)
	}
	SortMatchesByDate(recent)

	if window > 0 && len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	return recent
}

// ScoringAverages computes a team's mean goals scored and conceded at the
// given venue strictly before asOf. Both averages are 0 with no history.
func (e *FeatureEngine) ScoringAverages(history []*Match, team string, asOf time.Time, home bool) (scored, conceded float64) {
	var gf, ga, count float64
	for _, m := range history {
		if !m.Played() || !m.Date.Before(asOf) {
			continue
		}
		if home && m.HomeTeam != team {
			continue
		}
		if !home && m.AwayTeam != team {
			continue
		}
		gf += float64(m.GoalsFor(team))
		ga += float64(m.GoalsAgainst(team))
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return gf / count, ga / count
}

// HeadToHead summarizes direct meetings between a and b strictly before
// asOf. Rates are from a's perspective and sum to 1 when any meetings
// exist, the record is all zeros otherwise. Symmetric: swapping the teams
// mirrors the win rates and goal averages.
func (e *FeatureEngine) HeadToHead(history []*Match, a, b string, asOf time.Time) *HeadToHeadRecord {
	var meetings []*Match
	for _, m := range history {
		if !m.Played() || !m.Date.Before(asOf) {
			continue
		}
		if (m.HomeTeam == a && m.AwayTeam == b) || (m.HomeTeam == b && m.AwayTeam == a) {
			meetings = append(meetings, m)
		}
	}
	SortMatchesByDate(meetings)

	if e.cfg.H2HWindow > 0 && len(meetings) > e.cfg.H2HWindow {
		meetings = meetings[len(meetings)-e.cfg.H2HWindow:]
	}

	record := &HeadToHeadRecord{TeamA: a, TeamB: b}
	if len(meetings) == 0 {
		return record
	}
	record.Meetings = len(meetings)

	var winsA, draws, winsB int
	var goalsA, goalsB float64
	for _, m := range meetings {
		gfA := m.GoalsFor(a)
		gfB := m.GoalsFor(b)
		goalsA += float64(gfA)
		goalsB += float64(gfB)
		switch {
		case gfA > gfB:
			winsA++
		case gfA == gfB:
			draws++
		default:
			winsB++
		}
	}

	n := float64(record.Meetings)
	record.WinRateA = float64(winsA) / n
	record.DrawRate = float64(draws) / n
	record.WinRateB = float64(winsB) / n
	record.AvgGoalsA = goalsA / n
	record.AvgGoalsB = goalsB / n

	return record
}

// FatigueIndex measures fixture congestion over the trailing window.
// The overall appearance count and the away appearance count each
// saturate at their configured scale, the result is clamped to [0, 1].
func (e *FeatureEngine) FatigueIndex(history []*Match, team string, asOf time.Time) float64 {
	from := asOf.AddDate(0, 0, -e.cfg.FatigueWindowDays)

	var matches, away float64
	for _, m := range history {
		if !m.Played() || !m.Involves(team) {
			continue
		}
		if m.Date.Before(from) || !m.Date.Before(asOf) {
			continue
		}
		matches++
		if m.AwayTeam == team {
			away++
		}
	}

	index := e.cfg.FatigueMatchWeight*(matches/e.cfg.FatigueMatchScale) +
		e.cfg.FatigueAwayWeight*(away/e.cfg.FatigueAwayScale)

	return clamp(index, 0, 1)
}

// WeatherFor returns the stored observation for the match day, or an
// imputed observation built from the dataset means when none exists.
// The second return value reports whether the day was actually observed.
func (e *FeatureEngine) WeatherFor(date time.Time) (*WeatherObservation, bool) {
	if w, ok := e.weatherByDay[DayKey(date)]; ok {
		return w, true
	}
	return &WeatherObservation{
		Date:          DayKey(date),
		Temperature:   e.meanTemp,
		Precipitation: 0,
		WindSpeed:     e.meanWind,
	}, false
}

// europeanMatch reports whether the team had a continental appearance
// within the congestion window before asOf
func (e *FeatureEngine) europeanMatch(team string, asOf time.Time) float64 {
	from := asOf.AddDate(0, 0, -e.cfg.CongestionWindowDays)
	for _, r := range e.congestionByTeam[team] {
		if !r.Continental {
			continue
		}
		if r.Date.Before(from) || !r.Date.Before(asOf) {
			continue
		}
		return 1
	}
	return 0
}

/////////////////////////////////////////////////////////////////////////
////// Vector assembly
/////////////////////////////////////////////////////////////////////////

// Features assembles the full feature vector for a match against the given
// history. Only matches dated strictly before the fixture contribute.
func (e *FeatureEngine) Features(match *Match, history []*Match) (*FeatureVector, error) {
	if match == nil {
		return nil, fmt.Errorf("must pass a match")
	}
	if match.HomeTeam == "" || match.AwayTeam == "" {
		return nil, fmt.Errorf("match %s is missing a team name", match.ID)
	}

	vec := &FeatureVector{
		MatchID: match.ID,
		Names:   FeatureNames(),
		Values:  make([]float64, len(featureNames)),
	}

	asOf := match.Date

	homeForm := e.TeamForm(history, match.HomeTeam, asOf)
	awayForm := e.TeamForm(history, match.AwayTeam, asOf)

	homeScored, homeConceded := e.ScoringAverages(history, match.HomeTeam, asOf, true)
	awayScored, awayConceded := e.ScoringAverages(history, match.AwayTeam, asOf, false)

	h2h := e.HeadToHead(history, match.HomeTeam, match.AwayTeam, asOf)

	weather, observed := e.WeatherFor(asOf)
	if !observed {
		vec.Warnings = append(vec.Warnings,
			fmt.Sprintf("no weather observation for %s, using dataset means", DayKey(asOf).Format("2006-01-02")))
	}

	vec.SetValue("home_team_form", homeForm.Form)
	vec.SetValue("away_team_form", awayForm.Form)
	vec.SetValue("home_goals_scored_avg", homeScored)
	vec.SetValue("away_goals_scored_avg", awayScored)
	vec.SetValue("home_goals_conceded_avg", homeConceded)
	vec.SetValue("away_goals_conceded_avg", awayConceded)

	vec.SetValue("weather_temp", weather.Temperature/e.cfg.TempNorm)
	vec.SetValue("weather_rain", weather.Precipitation/e.cfg.RainNorm)
	vec.SetValue("weather_wind", weather.WindSpeed/e.cfg.WindNorm)

	vec.SetValue("form_difference", homeForm.Form-awayForm.Form)
	vec.SetValue("goals_scored_diff", homeScored-awayScored)
	vec.SetValue("goals_conceded_diff", homeConceded-awayConceded)

	vec.SetValue("h2h_goal_diff", h2h.AvgGoalsA-h2h.AvgGoalsB)
	vec.SetValue("h2h_experience", math.Log1p(float64(h2h.Meetings)))

	if e.formMeansSet {
		if homeForm.Form > e.homeFormMean {
			vec.SetValue("home_high_form", 1)
		}
		if awayForm.Form > e.awayFormMean {
			vec.SetValue("away_high_form", 1)
		}
	}

	vec.SetValue("home_european_match", e.europeanMatch(match.HomeTeam, asOf))
	vec.SetValue("away_european_match", e.europeanMatch(match.AwayTeam, asOf))

	vec.SetValue("home_fatigue_index", e.FatigueIndex(history, match.HomeTeam, asOf))
	vec.SetValue("away_fatigue_index", e.FatigueIndex(history, match.AwayTeam, asOf))

	return vec, nil
}

/////////////////////////////////////////////////////////////////////////
////// Normalization
/////////////////////////////////////////////////////////////////////////

// FitNormalization computes per-feature means and standard deviations over
// the given vectors in canonical order
func FitNormalization(vectors []*FeatureVector) (means, stds []float64) {
	n := len(featureNames)
	means = make([]float64, n)
	stds = make([]float64, n)

	if len(vectors) == 0 {
		return means, stds
	}

	count := float64(len(vectors))
	for _, v := range vectors {
		for i := range v.Values {
			means[i] += v.Values[i]
		}
	}
	for i := range means {
		means[i] /= count
	}

	for _, v := range vectors {
		for i := range v.Values {
			d := v.Values[i] - means[i]
			stds[i] += d * d
		}
	}
	for i := range stds {
		stds[i] = math.Sqrt(stds[i] / count)
	}

	return means, stds
}

// Normalize z-scores the vector in place using the fitted parameters.
// Features with zero deviation are left untouched.
func Normalize(vec *FeatureVector, means, stds []float64) error {
	if len(means) != len(vec.Values) || len(stds) != len(vec.Values) {
		return fmt.Errorf("normalization parameters cover %d features, vector has %d", len(means), len(vec.Values))
	}
	for i := range vec.Values {
		if stds[i] == 0 {
			continue
		}
		vec.Values[i] = (vec.Values[i] - means[i]) / stds[i]
	}
	return nil
}

// clamp restricts v to the closed interval [lo, hi]
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
