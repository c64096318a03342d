package models

import "fmt"

const (
	// FirstYear is the first championship season the source still serves.
	FirstYear = 2017
	// FirstSeasonID is the source's internal identifier for FirstYear.
	FirstSeasonID = 174
	// UnknownTeam and UnknownDriver are placeholders for rows the source could not name.
	UnknownTeam   = "Unknown Team"
	UnknownDriver = "Unknown Driver"
	// NoTitle is used when a page has no readable title element.
	NoTitle = "No Title Found"
)

// SeasonID maps a championship year to the source's season identifier.
func SeasonID(year int) int {
	return year - FirstYear + FirstSeasonID
}

// YearFor is the inverse of SeasonID.
func YearFor(seasonID int) int {
	return seasonID - FirstSeasonID + FirstYear
}

// SeasonRecord is one championship season of a single data kind.
type SeasonRecord[T any] struct {
	Year    int
	Title   string
	Entries []T
}

type Race struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Month     string `json:"month"`
	Location  string `json:"location"`
}

// StandingEntry is a driver or team row of a standings table. Score slices are
// positionally aligned with the season's race order.
type StandingEntry struct {
	CompetitorName string
	TotalPoints    string
	SprintScores   []string
	FeatureScores  []string
}

type RosterEntry struct {
	TeamName string   `json:"teamName"`
	Drivers  []string `json:"drivers"`
}

type CalendarSeason = SeasonRecord[Race]
type StandingsSeason = SeasonRecord[StandingEntry]
type RosterSeason = SeasonRecord[RosterEntry]

// RaceCount is the number of race weekends covered by the longest score sequence.
func RaceCount(s StandingsSeason) int {
	n := 0
	for _, e := range s.Entries {
		if l := len(e.SprintScores); l > n {
			n = l
		}
		if l := len(e.FeatureScores); l > n {
			n = l
		}
	}
	return n
}

// IsComplete reports whether every entry carries a sprint and a feature score for
// each of races. In-progress seasons are expected to fail this.
func IsComplete(s StandingsSeason, races int) bool {
	for _, e := range s.Entries {
		if len(e.SprintScores) != races || len(e.FeatureScores) != races {
			return false
		}
	}
	return true
}

// ValidateStandings checks that every score is a numeric string.
func ValidateStandings(s StandingsSeason) error {
	for _, e := range s.Entries {
		for _, scores := range [][]string{e.SprintScores, e.FeatureScores} {
			for i, v := range scores {
				if !IsNumeric(v) {
					return fmt.Errorf("%d %s: score %d is %q", s.Year, e.CompetitorName, i, v)
				}
			}
		}
	}
	return nil
}

// ValidateRoster checks that no placeholder team or driver leaked through.
func ValidateRoster(s RosterSeason) error {
	for _, t := range s.Entries {
		if t.TeamName == "" || t.TeamName == UnknownTeam {
			return fmt.Errorf("%d: unresolved team name %q", s.Year, t.TeamName)
		}
		for _, d := range t.Drivers {
			if d == UnknownDriver {
				return fmt.Errorf("%d %s: unresolved driver name", s.Year, t.TeamName)
			}
		}
	}
	return nil
}

// ValidateCalendar checks that every race has a location.
func ValidateCalendar(s CalendarSeason) error {
	for i, r := range s.Entries {
		if r.Location == "" {
			return fmt.Errorf("%d: race %d has no location", s.Year, i)
		}
	}
	return nil
}

// IsNumeric accepts integers and decimals ("12", "0.5"); half points are
// awarded for shortened races.
func IsNumeric(v string) bool {
	if v == "" {
		return false
	}
	dot := false
	for i, c := range v {
		switch {
		case c >= '0' && c <= '9':
		case c == '.' && !dot && i > 0 && i < len(v)-1:
			dot = true
		default:
			return false
		}
	}
	return true
}
