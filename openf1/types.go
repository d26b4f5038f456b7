// Package openf1 implements a typed, read-only client for the OpenF1 API.
package openf1

import (
	"encoding/json"
	"fmt"
	"time"
)

// UTCTime is a time.Time that tolerates the timestamp variants the OpenF1
// API emits: RFC 3339 with a "Z" suffix, with an explicit offset, or with
// no offset at all (treated as UTC). It always marshals as RFC 3339 with
// an explicit offset so cached entries round-trip without shifting
// wall-clock meaning.
type UTCTime struct {
	time.Time
}

var utcTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *UTCTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing timestamp: %w", err)
	}
	for _, layout := range utcTimeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t UTCTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Meeting is a race weekend grouping multiple sessions.
type Meeting struct {
	CircuitKey          int     `json:"circuit_key"`
	CircuitShortName    string  `json:"circuit_short_name"`
	CountryCode         string  `json:"country_code"`
	CountryKey          int     `json:"country_key"`
	CountryName         string  `json:"country_name"`
	DateStart           UTCTime `json:"date_start"`
	GMTOffset           string  `json:"gmt_offset"`
	Location            string  `json:"location"`
	MeetingKey          int     `json:"meeting_key"`
	MeetingName         string  `json:"meeting_name"`
	MeetingOfficialName string  `json:"meeting_official_name"`
	Year                int     `json:"year"`
}

// Session is a timed track session (practice, qualifying, race) within a
// meeting. Read-only reference data from the upstream source.
type Session struct {
	CircuitKey       int     `json:"circuit_key"`
	CircuitShortName string  `json:"circuit_short_name"`
	CountryCode      string  `json:"country_code"`
	CountryKey       int     `json:"country_key"`
	CountryName      string  `json:"country_name"`
	DateEnd          UTCTime `json:"date_end"`
	DateStart        UTCTime `json:"date_start"`
	GMTOffset        string  `json:"gmt_offset"`
	Location         string  `json:"location"`
	MeetingKey       int     `json:"meeting_key"`
	SessionKey       int     `json:"session_key"`
	SessionName      string  `json:"session_name"`
	SessionType      string  `json:"session_type"`
	Year             int     `json:"year"`
}

// Driver is a competitor profile, scoped to a session context; driver
// numbers are not globally unique across seasons.
type Driver struct {
	DriverNumber  int    `json:"driver_number"`
	BroadcastName string `json:"broadcast_name,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	HeadshotURL   string `json:"headshot_url,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	NameAcronym   string `json:"name_acronym,omitempty"`
	TeamColour    string `json:"team_colour,omitempty"`
	TeamName      string `json:"team_name,omitempty"`
}

// RadioMessage is one team-radio transmission. Messages are immutable once
// fetched; the upstream does not enforce uniqueness, so duplicates are
// possible.
type RadioMessage struct {
	Date         UTCTime `json:"date"`
	DriverNumber int     `json:"driver_number,omitempty"`
	MeetingKey   int     `json:"meeting_key"`
	RecordingURL string  `json:"recording_url"`
	SessionKey   int     `json:"session_key"`

	Category      string  `json:"category,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	Transcription string  `json:"transcription,omitempty"`
	DriverInfo    *Driver `json:"driver_info,omitempty"`
}

// SessionSummary aggregates everything known about one session.
type SessionSummary struct {
	Session           *Session       `json:"session"`
	Drivers           []Driver       `json:"drivers"`
	Radios            []RadioMessage `json:"radios"`
	RadioCount        int            `json:"radio_count"`
	DriversWithRadios int            `json:"drivers_with_radios"`
}
