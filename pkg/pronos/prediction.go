package pronos

import (
	"encoding/json"
	"fmt"
	"time"
)

var _ Persistable = (*MatchPrediction)(nil)

// MatchPrediction holds the model output for one fixture
type MatchPrediction struct {
	// Primary key, the fixture this prediction belongs to
	MatchID string `json:"matchId" column:"matchId" dbtype:"TEXT" primary:"true"`

	Date     time.Time `json:"date" column:"date" dbtype:"DATETIME" index:"true"`
	HomeTeam string    `json:"homeTeam" column:"homeTeam" dbtype:"TEXT NOT NULL"`
	AwayTeam string    `json:"awayTeam" column:"awayTeam" dbtype:"TEXT NOT NULL"`

	// Raw regressor output after clamping, rounded to 2 decimal places
	PredictedHomeGoals float64 `json:"predictedHomeGoals" column:"predictedHomeGoals" dbtype:"REAL DEFAULT -1.0"`
	PredictedAwayGoals float64 `json:"predictedAwayGoals" column:"predictedAwayGoals" dbtype:"REAL DEFAULT -1.0"`

	// Poisson discretization of the raw output
	DiscreteHomeGoals int `json:"discreteHomeGoals" column:"discreteHomeGoals" dbtype:"INTEGER DEFAULT -1"`
	DiscreteAwayGoals int `json:"discreteAwayGoals" column:"discreteAwayGoals" dbtype:"INTEGER DEFAULT -1"`

	// Win/Draw/Loss probabilities (percentages, sum to 100)
	HomeWinProbability float64 `json:"homeWinProbability" column:"homeWinProbability" dbtype:"REAL DEFAULT -1.0"`
	DrawProbability    float64 `json:"drawProbability" column:"drawProbability" dbtype:"REAL DEFAULT -1.0"`
	AwayWinProbability float64 `json:"awayWinProbability" column:"awayWinProbability" dbtype:"REAL DEFAULT -1.0"`

	// Feature computation warnings raised for this fixture
	Warnings []string `json:"warnings,omitempty"`

	// JSON serialization of Warnings for persistence
	WarningsJSON string `json:"-" column:"warnings" dbtype:"TEXT"`

	CreatedAt time.Time `json:"createdAt" column:"created_at" dbtype:"DATETIME DEFAULT CURRENT_TIMESTAMP"`
}

func (p *MatchPrediction) GetTableName() string {
	return "prediction"
}

func (p *MatchPrediction) GetPrimaryKey() map[string]interface{} {
	return map[string]any{
		"matchId": p.MatchID,
	}
}

func (p *MatchPrediction) SetPrimaryKey(pk map[string]interface{}) error {
	if id, ok := pk["matchId"]; ok {
		if idStr, ok := id.(string); ok {
			p.MatchID = idStr
			return nil
		}
		return fmt.Errorf("primary key 'matchId' must be a string")
	}
	return fmt.Errorf("primary key 'matchId' not found")
}

// BeforeSave flattens the warning list into its persisted column
func (p *MatchPrediction) BeforeSave() error {
	if p.MatchID == "" {
		return fmt.Errorf("prediction has no match id")
	}
	if len(p.Warnings) > 0 {
		data, err := json.Marshal(p.Warnings)
		if err != nil {
			return fmt.Errorf("failed to marshal warnings: %w", err)
		}
		p.WarningsJSON = string(data)
	} else {
		p.WarningsJSON = ""
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return nil
}

// AfterSave restores nothing, the in-memory warning list stays authoritative
func (p *MatchPrediction) AfterSave() error    { return nil }
func (p *MatchPrediction) BeforeDelete() error { return nil }
func (p *MatchPrediction) AfterDelete() error  { return nil }

// RestoreWarnings rebuilds the warning list after a load from the database
func (p *MatchPrediction) RestoreWarnings() error {
	if p.WarningsJSON == "" {
		p.Warnings = nil
		return nil
	}
	return json.Unmarshal([]byte(p.WarningsJSON), &p.Warnings)
}
