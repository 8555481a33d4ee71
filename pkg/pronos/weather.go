package pronos

import (
	"fmt"
	"time"
)

var _ Persistable = (*WeatherObservation)(nil)
var _ Persistable = (*CongestionRecord)(nil)

// WeatherObservation holds the conditions recorded for a match day.
// Observations are keyed on the day, kickoff times within the day share
// one observation.
type WeatherObservation struct {
	Date          time.Time `json:"date" column:"date" dbtype:"DATETIME" primary:"true"`
	Temperature   float64   `json:"temperature" column:"temperature" dbtype:"REAL"`
	Precipitation float64   `json:"precipitation" column:"precipitation" dbtype:"REAL"`
	WindSpeed     float64   `json:"windSpeed" column:"windSpeed" dbtype:"REAL"`
	Condition     string    `json:"condition,omitempty" column:"condition" dbtype:"TEXT"`
}

// DayKey truncates a timestamp to its calendar day in UTC
func DayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (w *WeatherObservation) GetTableName() string {
	return "weather"
}

func (w *WeatherObservation) GetPrimaryKey() map[string]interface{} {
	return map[string]any{
		"date": DayKey(w.Date),
	}
}

func (w *WeatherObservation) SetPrimaryKey(pk map[string]interface{}) error {
	if d, ok := pk["date"]; ok {
		if dt, ok := d.(time.Time); ok {
			w.Date = dt
			return nil
		}
		return fmt.Errorf("primary key 'date' must be a time")
	}
	return fmt.Errorf("primary key 'date' not found")
}

func (w *WeatherObservation) BeforeSave() error {
	w.Date = DayKey(w.Date)
	return nil
}

func (w *WeatherObservation) AfterSave() error    { return nil }
func (w *WeatherObservation) BeforeDelete() error { return nil }
func (w *WeatherObservation) AfterDelete() error  { return nil }

// CongestionRecord notes an additional competitive appearance for a team,
// typically a cup or continental tie that does not appear in the league
// match table. Continental appearances drive the european match features.
type CongestionRecord struct {
	Team        string    `json:"team" column:"team" dbtype:"TEXT" primary:"true" index:"true"`
	Date        time.Time `json:"date" column:"date" dbtype:"DATETIME" primary:"true" index:"true"`
	Competition string    `json:"competition" column:"competition" dbtype:"TEXT"`
	Continental bool      `json:"continental" column:"continental" dbtype:"INTEGER DEFAULT 0"`
}

func (c *CongestionRecord) GetTableName() string {
	return "congestion"
}

func (c *CongestionRecord) GetPrimaryKey() map[string]interface{} {
	return map[string]any{
		"team": c.Team,
		"date": c.Date,
	}
}

func (c *CongestionRecord) SetPrimaryKey(pk map[string]interface{}) error {
	team, ok := pk["team"].(string)
	if !ok {
		return fmt.Errorf("primary key 'team' not found")
	}
	date, ok := pk["date"].(time.Time)
	if !ok {
		return fmt.Errorf("primary key 'date' not found")
	}
	c.Team = team
	c.Date = date
	return nil
}

func (c *CongestionRecord) BeforeSave() error {
	if c.Team == "" {
		return fmt.Errorf("congestion record has no team")
	}
	return nil
}

func (c *CongestionRecord) AfterSave() error    { return nil }
func (c *CongestionRecord) BeforeDelete() error { return nil }
func (c *CongestionRecord) AfterDelete() error  { return nil }
