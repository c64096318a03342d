package models

// DataKind names one of the scraped documents.
type DataKind string

const (
	KindDriverStandings DataKind = "driver-standings"
	KindTeamStandings   DataKind = "team-standings"
	KindCalendar        DataKind = "calendar"
	KindTeamsAndDrivers DataKind = "teams-and-drivers"
)

// AllKinds is the fixed order a cycle scrapes in.
var AllKinds = []DataKind{
	KindDriverStandings,
	KindTeamStandings,
	KindCalendar,
	KindTeamsAndDrivers,
}

func (k DataKind) Filename() string {
	return string(k) + ".json"
}

func (k DataKind) DisplayName() string {
	switch k {
	case KindDriverStandings:
		return "Driver Standings"
	case KindTeamStandings:
		return "Team Standings"
	case KindCalendar:
		return "Calendar"
	case KindTeamsAndDrivers:
		return "Teams and Drivers"
	}
	return string(k)
}

func (k DataKind) Valid() bool {
	for _, kind := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ParseKind accepts the kind slug as used in filenames and routes.
func ParseKind(s string) (DataKind, bool) {
	k := DataKind(s)
	return k, k.Valid()
}
