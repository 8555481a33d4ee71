package pronos

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pronos-app/pronos/internal/logger"
)

// Store wraps the sqlite database holding matches, weather, congestion
// records and persisted predictions. Construct with OpenStore, a Store
// owns its connection and should be closed by the caller.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (creating if necessary) the database at the configured
// path and ensures all tables exist
func OpenStore(cfg *Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows one writer, and a second pooled connection to a
	// :memory: path would be a separate empty database
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: cfg.DbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database initialized successfully", cfg.DbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// createTables creates all necessary database tables
func (s *Store) createTables() error {
	if err := s.CreateTable(&Match{}); err != nil {
		return fmt.Errorf("failed to create match table: %w", err)
	}

	if err := s.CreateTable(&WeatherObservation{}); err != nil {
		return fmt.Errorf("failed to create weather table: %w", err)
	}

	if err := s.CreateTable(&CongestionRecord{}); err != nil {
		return fmt.Errorf("failed to create congestion table: %w", err)
	}

	if err := s.CreateTable(&MatchPrediction{}); err != nil {
		return fmt.Errorf("failed to create prediction table: %w", err)
	}

	return nil
}

/////////////////////////////////////////////////////////////////////////
////// Match queries
/////////////////////////////////////////////////////////////////////////

// SaveMatches saves matches to the database using BulkSave
func (s *Store) SaveMatches(matches []*Match) error {
	logger.Info("Saving matches to database", len(matches))

	var persistables []Persistable
	for _, match := range matches {
		persistables = append(persistables, match)
	}

	if len(persistables) == 0 {
		logger.Info("No matches to save")
		return nil
	}

	if err := s.BulkSave(persistables); err != nil {
		return fmt.Errorf("failed to bulk save matches: %w", err)
	}
	return nil
}

// HistoricalMatches returns all played matches ordered by date ascending
func (s *Store) HistoricalMatches() ([]*Match, error) {
	results, err := s.FindWhere(&Match{}, "homeScore >= 0 AND awayScore >= 0 ORDER BY date ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load historical matches: %w", err)
	}
	return castMatches(results)
}

// UpcomingMatches returns all matches without a result ordered by date ascending
func (s *Store) UpcomingMatches() ([]*Match, error) {
	results, err := s.FindWhere(&Match{}, "homeScore < 0 OR awayScore < 0 ORDER BY date ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to load upcoming matches: %w", err)
	}
	return castMatches(results)
}

// MatchesBefore returns played matches strictly before the given time
func (s *Store) MatchesBefore(cutoff time.Time) ([]*Match, error) {
	results, err := s.FindWhere(&Match{}, "homeScore >= 0 AND awayScore >= 0 AND date < ? ORDER BY date ASC, id ASC", cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches before %s: %w", cutoff, err)
	}
	return castMatches(results)
}

func castMatches(results []interface{}) ([]*Match, error) {
	matches := make([]*Match, 0, len(results))
	for _, result := range results {
		match, ok := result.(*Match)
		if !ok {
			return nil, fmt.Errorf("unexpected type in match results")
		}
		matches = append(matches, match)
	}
	return matches, nil
}

/////////////////////////////////////////////////////////////////////////
////// Weather and congestion queries
/////////////////////////////////////////////////////////////////////////

// SaveWeather persists weather observations
func (s *Store) SaveWeather(observations []*WeatherObservation) error {
	var persistables []Persistable
	for _, w := range observations {
		persistables = append(persistables, w)
	}
	if len(persistables) == 0 {
		return nil
	}
	if err := s.BulkSave(persistables); err != nil {
		return fmt.Errorf("failed to bulk save weather: %w", err)
	}
	return nil
}

// AllWeather returns every stored weather observation
func (s *Store) AllWeather() ([]*WeatherObservation, error) {
	results, err := s.FindAll(&WeatherObservation{})
	if err != nil {
		return nil, fmt.Errorf("failed to load weather: %w", err)
	}
	observations := make([]*WeatherObservation, 0, len(results))
	for _, result := range results {
		w, ok := result.(*WeatherObservation)
		if !ok {
			return nil, fmt.Errorf("unexpected type in weather results")
		}
		observations = append(observations, w)
	}
	return observations, nil
}

// SaveCongestion persists congestion records
func (s *Store) SaveCongestion(records []*CongestionRecord) error {
	var persistables []Persistable
	for _, r := range records {
		persistables = append(persistables, r)
	}
	if len(persistables) == 0 {
		return nil
	}
	if err := s.BulkSave(persistables); err != nil {
		return fmt.Errorf("failed to bulk save congestion records: %w", err)
	}
	return nil
}

// AllCongestion returns every stored congestion record
func (s *Store) AllCongestion() ([]*CongestionRecord, error) {
	results, err := s.FindAll(&CongestionRecord{})
	if err != nil {
		return nil, fmt.Errorf("failed to load congestion records: %w", err)
	}
	records := make([]*CongestionRecord, 0, len(results))
	for _, result := range results {
		r, ok := result.(*CongestionRecord)
		if !ok {
			return nil, fmt.Errorf("unexpected type in congestion results")
		}
		records = append(records, r)
	}
	return records, nil
}

/////////////////////////////////////////////////////////////////////////
////// Prediction persistence
/////////////////////////////////////////////////////////////////////////

// SavePredictions upserts predictions keyed on their fixture id
func (s *Store) SavePredictions(predictions []*MatchPrediction) error {
	var persistables []Persistable
	for _, p := range predictions {
		persistables = append(persistables, p)
	}
	if len(persistables) == 0 {
		return nil
	}
	if err := s.BulkSave(persistables); err != nil {
		return fmt.Errorf("failed to bulk save predictions: %w", err)
	}
	return nil
}

// PredictionFor loads the stored prediction for a fixture, nil if absent
func (s *Store) PredictionFor(matchID string) (*MatchPrediction, error) {
	results, err := s.FindWhere(&MatchPrediction{}, "matchId = ?", matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction for %s: %w", matchID, err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	p, ok := results[0].(*MatchPrediction)
	if !ok {
		return nil, fmt.Errorf("unexpected type in prediction results")
	}
	if err := p.RestoreWarnings(); err != nil {
		return nil, fmt.Errorf("failed to restore warnings for %s: %w", matchID, err)
	}
	return p, nil
}
