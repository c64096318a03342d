package extract

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"f2_scrooper/models"
)

// Era selects the roster page layout.
type Era int

const (
	EraClassic Era = iota // seasons before 2020
	EraModern
)

const (
	RosterAnchor = "body"

	modernEraStart = 2020
	rosterTitle    = "Teams & Drivers Formula 2"
)

var yearRe = regexp.MustCompile(`\d{4}`)

func EraFor(year int) Era {
	if year < modernEraStart {
		return EraClassic
	}
	return EraModern
}

func (e Era) String() string {
	if e == EraClassic {
		return "classic"
	}
	return "modern"
}

type rosterLayout struct {
	team    string
	names   []string
	drivers string
	// driver cells reuse .name, so team name candidates inside this are skipped
	exclude string
}

var layouts = map[Era]rosterLayout{
	EraClassic: {team: ".team-drivers", names: []string{".name", ".brand-link"}, drivers: ".caption .name", exclude: ".caption"},
	EraModern:  {team: ".wrapper", names: []string{".brand-link"}, drivers: ".name-wrapper.has-link .name"},
}

func (l rosterLayout) teamName(block *goquery.Selection) string {
	for _, sel := range l.names {
		found := block.Find(sel)
		if l.exclude != "" {
			found = found.FilterFunction(func(_ int, s *goquery.Selection) bool {
				return s.Closest(l.exclude).Length() == 0
			})
		}
		if found.Length() > 0 {
			return textOr(CleanText(found.First().Text()), models.UnknownTeam)
		}
	}
	return models.UnknownTeam
}

// Roster reads the team line-ups from a Teams & Drivers page laid out for era.
// Blocks without a team name are dropped.
func Roster(doc *goquery.Document, era Era) (string, []models.RosterEntry) {
	title := rosterTitle
	if y := yearRe.FindString(doc.Find(".c").First().Text()); y != "" {
		title = rosterTitle + " " + y
	}

	layout := layouts[era]
	var teams []models.RosterEntry
	doc.Find(layout.team).Each(func(_ int, block *goquery.Selection) {
		name := layout.teamName(block)
		if name == models.UnknownTeam {
			return
		}

		drivers := []string{}
		block.Find(layout.drivers).Each(func(_ int, d *goquery.Selection) {
			if n := CleanText(d.Text()); n != "" {
				drivers = append(drivers, n)
			}
		})
		teams = append(teams, models.RosterEntry{TeamName: name, Drivers: drivers})
	})
	return title, teams
}
