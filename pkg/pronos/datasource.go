package pronos

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pronos-app/pronos/internal/logger"
	"github.com/pronos-app/pronos/pkg/transport"
)

// Datasource fetches football data from external sources and loads it
// into the store. Training and prediction never touch the network, sync
// is the only ingress.
type Datasource struct {
	cfg *Config

	ResultsURL  string
	FixturesURL string
	WeatherURL  string
}

// NewDatasource builds a datasource with the given endpoints. Any empty
// URL disables that part of the sync.
func NewDatasource(cfg *Config, resultsURL, fixturesURL, weatherURL string) *Datasource {
	return &Datasource{
		cfg:         cfg,
		ResultsURL:  resultsURL,
		FixturesURL: fixturesURL,
		WeatherURL:  weatherURL,
	}
}

// Sync refreshes the store from all configured sources. A network or
// parse failure aborts the sync, partial ingests from earlier sources
// remain persisted.
func (d *Datasource) Sync(store *Store) error {
	if err := os.MkdirAll(d.cfg.CachePath, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	if d.ResultsURL != "" {
		csvData, err := d.fetchCached(d.ResultsURL, "results.csv")
		if err != nil {
			return fmt.Errorf("failed to fetch results: %w", err)
		}
		matches, err := ParseResultsCSV(string(csvData))
		if err != nil {
			return fmt.Errorf("failed to parse results: %w", err)
		}
		if err := store.SaveMatches(matches); err != nil {
			return &PersistenceError{Op: "save results", Err: err}
		}
		logger.Info("Synced results", len(matches))
	}

	if d.FixturesURL != "" {
		html, err := transport.Get(d.FixturesURL)
		if err != nil {
			return fmt.Errorf("failed to fetch fixtures page: %w", err)
		}
		fixtures, err := ParseFixturesHTML(string(html))
		if err != nil {
			return fmt.Errorf("failed to parse fixtures page: %w", err)
		}
		if err := store.SaveMatches(fixtures); err != nil {
			return &PersistenceError{Op: "save fixtures", Err: err}
		}
		logger.Info("Synced fixtures", len(fixtures))
	}

	if d.WeatherURL != "" {
		body, err := transport.Get(d.WeatherURL)
		if err != nil {
			return fmt.Errorf("failed to fetch weather: %w", err)
		}
		observations, err := ParseWeatherJSON(body)
		if err != nil {
			return fmt.Errorf("failed to parse weather: %w", err)
		}
		if err := store.SaveWeather(observations); err != nil {
			return &PersistenceError{Op: "save weather", Err: err}
		}
		logger.Info("Synced weather observations", len(observations))
	}

	return nil
}

// fetchCached fetches a URL through a file cache in the configured cache
// directory
func (d *Datasource) fetchCached(url, cacheName string) ([]byte, error) {
	cacheFile := d.cfg.CachePath + cacheName

	if data, err := os.ReadFile(cacheFile); err == nil {
		logger.Debug("Returning data from cached file", cacheFile)
		return data, nil
	}

	logger.Inform("HTTP get called for ", url)
	data, err := transport.Get(url)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		logger.Warn("Failed to write cache file", cacheFile, err)
		// Continue processing even if caching fails
	}

	return data, nil
}

/////////////////////////////////////////////////////////////////////////
////// Results CSV (football-data.co.uk layout)
/////////////////////////////////////////////////////////////////////////

// ParseResultsCSV parses each row of a results CSV into a played Match.
// Expects the football-data.co.uk column layout, rows without a full time
// score are skipped.
func ParseResultsCSV(csvData string) ([]*Match, error) {
	reader := csv.NewReader(strings.NewReader(csvData))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	if len(records) == 0 {
		return []*Match{}, nil
	}

	// Map column names from the header row
	headers := records[0]
	col := make(map[string]int, len(headers))
	for i, h := range headers {
		col[strings.TrimSpace(h)] = i
	}

	for _, required := range []string{"Date", "HomeTeam", "AwayTeam", "FTHG", "FTAG"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("CSV is missing column %s", required)
		}
	}

	var matches []*Match
	for rowNum, row := range records[1:] {
		get := func(name string) string {
			i := col[name]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		dateStr := get("Date")
		home := get("HomeTeam")
		away := get("AwayTeam")
		if dateStr == "" || home == "" || away == "" {
			continue
		}

		date, err := parseResultDate(dateStr)
		if err != nil {
			logger.Warn("Skipping row with unparseable date", rowNum+2, dateStr)
			continue
		}

		match := NewMatch()
		match.ID = matchID(date, home, away)
		match.Date = date
		match.HomeTeam = home
		match.AwayTeam = away

		var hg, ag int
		if _, err := fmt.Sscanf(get("FTHG"), "%d", &hg); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(get("FTAG"), "%d", &ag); err != nil {
			continue
		}
		match.HomeScore = hg
		match.AwayScore = ag

		matches = append(matches, match)
	}

	return matches, nil
}

// parseResultDate handles the two date layouts football-data.co.uk has
// used over the years
func parseResultDate(s string) (time.Time, error) {
	for _, layout := range []string{"02/01/2006", "02/01/06"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// matchID builds a stable fixture identity from date and team names
func matchID(date time.Time, home, away string) string {
	slug := func(s string) string {
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, " ", "-")
		return s
	}
	return fmt.Sprintf("%s-%s-%s", date.Format("20060102"), slug(home), slug(away))
}

/////////////////////////////////////////////////////////////////////////
////// Fixtures page
/////////////////////////////////////////////////////////////////////////

// ParseFixturesHTML extracts upcoming fixtures from the JSON payload a
// league overview page embeds in its __NEXT_DATA__ script tag
func ParseFixturesHTML(html string) ([]*Match, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	var scriptData string
	doc.Find("script#__NEXT_DATA__").Each(func(i int, s *goquery.Selection) {
		scriptData = s.Text()
	})

	if scriptData == "" {
		return nil, fmt.Errorf("could not find __NEXT_DATA__ script tag")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(scriptData), &data); err != nil {
		return nil, fmt.Errorf("error parsing JSON data: %w", err)
	}

	fixturesData, ok := dig(data, "props", "pageProps", "fixtures")
	if !ok {
		return nil, fmt.Errorf("could not find fixtures in page payload")
	}

	items, ok := fixturesData.([]any)
	if !ok {
		return nil, fmt.Errorf("fixtures payload is not a list")
	}

	var fixtures []*Match
	for i, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		match := NewMatch()

		if home, ok := entry["homeTeam"].(string); ok {
			match.HomeTeam = home
		}
		if away, ok := entry["awayTeam"].(string); ok {
			match.AwayTeam = away
		}
		if dateStr, ok := entry["date"].(string); ok {
			if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
				match.Date = t.UTC()
			}
		}

		if match.HomeTeam == "" || match.AwayTeam == "" || match.Date.IsZero() {
			logger.Warn("Skipping incomplete fixture entry", i)
			continue
		}

		if id, ok := entry["id"].(string); ok && id != "" {
			match.ID = id
		} else {
			match.ID = matchID(match.Date, match.HomeTeam, match.AwayTeam)
		}

		fixtures = append(fixtures, match)
	}

	return fixtures, nil
}

// dig walks nested string-keyed maps
func dig(data map[string]any, keys ...string) (any, bool) {
	var current any = data
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

/////////////////////////////////////////////////////////////////////////
////// Weather feed
/////////////////////////////////////////////////////////////////////////

// ParseWeatherJSON parses a weather forecast document into observations
func ParseWeatherJSON(body []byte) ([]*WeatherObservation, error) {
	var entries []struct {
		Date          string  `json:"date"`
		Temperature   float64 `json:"temperature"`
		Precipitation float64 `json:"precipitation"`
		WindSpeed     float64 `json:"windSpeed"`
		Condition     string  `json:"condition"`
	}

	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse weather document: %w", err)
	}

	var observations []*WeatherObservation
	for i, e := range entries {
		date, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			logger.Warn("Skipping weather entry with unparseable date", i, e.Date)
			continue
		}
		observations = append(observations, &WeatherObservation{
			Date:          date.UTC(),
			Temperature:   e.Temperature,
			Precipitation: e.Precipitation,
			WindSpeed:     e.WindSpeed,
			Condition:     e.Condition,
		})
	}

	return observations, nil
}
