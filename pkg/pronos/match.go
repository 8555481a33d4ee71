package pronos

import (
	"fmt"
	"sort"
	"time"
)

// Compile-time check to ensure Match implements Persistable interface
var _ Persistable = (*Match)(nil)

// Match represents a football match with database persistence annotations.
// A score of -1 means the match has not been played yet, both scores are
// always set or unset together.
type Match struct {
	// Primary key
	ID string `json:"id" column:"id" dbtype:"TEXT" primary:"true" index:"true"`

	Date     time.Time `json:"date" column:"date" dbtype:"DATETIME" index:"true"`
	Season   string    `json:"season,omitempty" column:"season" dbtype:"TEXT" index:"true"`
	HomeTeam string    `json:"homeTeam" column:"homeTeam" dbtype:"TEXT NOT NULL" index:"true"`
	AwayTeam string    `json:"awayTeam" column:"awayTeam" dbtype:"TEXT NOT NULL" index:"true"`

	HomeScore int `json:"homeScore" column:"homeScore" dbtype:"INTEGER DEFAULT -1"`
	AwayScore int `json:"awayScore" column:"awayScore" dbtype:"INTEGER DEFAULT -1"`

	// Metadata
	CreatedAt time.Time `json:"createdAt" column:"created_at" dbtype:"DATETIME DEFAULT CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updatedAt" column:"updated_at" dbtype:"DATETIME DEFAULT CURRENT_TIMESTAMP"`
}

// NewMatch creates a new Match with score sentinels unset
func NewMatch() *Match {
	return &Match{
		HomeScore: -1,
		AwayScore: -1,
	}
}

/////////////////////////////////////////////////////////////////////////
////// Persistable Interface Implementation
/////////////////////////////////////////////////////////////////////////

// GetPrimaryKey returns the primary key as a map
func (m *Match) GetPrimaryKey() map[string]interface{} {
	return map[string]any{
		"id": m.ID,
	}
}

// SetPrimaryKey sets the primary key from a map
func (m *Match) SetPrimaryKey(pk map[string]interface{}) error {
	if id, ok := pk["id"]; ok {
		if idStr, ok := id.(string); ok {
			m.ID = idStr
			return nil
		}
		return fmt.Errorf("primary key 'id' must be a string")
	}
	return fmt.Errorf("primary key 'id' not found")
}

// GetTableName returns the table name for matches
func (m *Match) GetTableName() string {
	return "match"
}

// BeforeSave is called before saving the match
func (m *Match) BeforeSave() error {
	if m.ID == "" {
		return fmt.Errorf("match has no id")
	}
	// Both scores must be set or unset together
	if (m.HomeScore >= 0) != (m.AwayScore >= 0) {
		return fmt.Errorf("match %s has a partial score %d - %d", m.ID, m.HomeScore, m.AwayScore)
	}

	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	return nil
}

// AfterSave is called after saving the match
func (m *Match) AfterSave() error {
	return nil
}

// BeforeDelete is called before deleting the match
func (m *Match) BeforeDelete() error {
	return nil
}

// AfterDelete is called after deleting the match
func (m *Match) AfterDelete() error {
	return nil
}

/////////////////////////////////////////////////////////////////////////
////// Status Query Methods
/////////////////////////////////////////////////////////////////////////

// Played determines if the match has been completed
func (m *Match) Played() bool {
	return m.HomeScore >= 0 && m.AwayScore >= 0
}

// Involves reports whether the given team took part in this match
func (m *Match) Involves(team string) bool {
	return m.HomeTeam == team || m.AwayTeam == team
}

// GoalsFor returns the goals scored by the given team, -1 if not played
// or the team did not take part
func (m *Match) GoalsFor(team string) int {
	if !m.Played() {
		return -1
	}
	switch team {
	case m.HomeTeam:
		return m.HomeScore
	case m.AwayTeam:
		return m.AwayScore
	}
	return -1
}

// GoalsAgainst returns the goals conceded by the given team, -1 if not
// played or the team did not take part
func (m *Match) GoalsAgainst(team string) int {
	if !m.Played() {
		return -1
	}
	switch team {
	case m.HomeTeam:
		return m.AwayScore
	case m.AwayTeam:
		return m.HomeScore
	}
	return -1
}

// PointsFor returns the league points the given team earned from this match
func (m *Match) PointsFor(team string) int {
	gf := m.GoalsFor(team)
	ga := m.GoalsAgainst(team)
	if gf < 0 || ga < 0 {
		return 0
	}
	if gf > ga {
		return 3
	}
	if gf == ga {
		return 1
	}
	return 0
}

// ScoreStr generates a score string from the recorded goals
func (m *Match) ScoreStr() string {
	if !m.Played() {
		return ""
	}
	return fmt.Sprintf("%d - %d", m.HomeScore, m.AwayScore)
}

/////////////////////////////////////////////////////////////////////////
////// Match Collection Operations
/////////////////////////////////////////////////////////////////////////

// SortMatchesByDate orders matches by date ascending, in place.
// Ties break on the match id so the order is stable across runs.
func SortMatchesByDate(matches []*Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Date.Equal(matches[j].Date) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Date.Before(matches[j].Date)
	})
}

// PlayedMatches filters the given matches down to those with a recorded result
func PlayedMatches(matches []*Match) []*Match {
	var played []*Match
	for _, m := range matches {
		if m.Played() {
			played = append(played, m)
		}
	}
	return played
}

// TeamsFromMatches extracts unique team names from matches
func TeamsFromMatches(matches []*Match) []string {
	teamSet := make(map[string]bool)

	for _, match := range matches {
		if match.HomeTeam != "" {
			teamSet[match.HomeTeam] = true
		}
		if match.AwayTeam != "" {
			teamSet[match.AwayTeam] = true
		}
	}

	teams := make([]string, 0, len(teamSet))
	for team := range teamSet {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	return teams
}
