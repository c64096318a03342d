package extract

import (
	"github.com/PuerkitoBio/goquery"

	"f2_scrooper/models"
)

const (
	// StandingsAnchor appears once the standings table has rendered. Driver
	// and team pages share the markup.
	StandingsAnchor = ".driver-name"

	standingsTitle = ".container.standings-header .col-xl-6"
	standingsRows  = ".table.table-bordered tbody tr"
)

// Standings reads a driver or team standings table. Score cells alternate
// sprint, feature, sprint, ... in race order.
func Standings(doc *goquery.Document) (string, []models.StandingEntry) {
	title := textOr(firstText(doc.Selection, standingsTitle), models.NoTitle)

	var entries []models.StandingEntry
	doc.Find(standingsRows).Each(func(_ int, row *goquery.Selection) {
		name := firstText(row, ".visible-desktop-up")
		if name == "" {
			return
		}

		entry := models.StandingEntry{
			CompetitorName: name,
			TotalPoints:    textOr(firstText(row, ".total-points"), "0"),
			SprintScores:   []string{},
			FeatureScores:  []string{},
		}
		row.Find(".score").Each(func(i int, cell *goquery.Selection) {
			score := NormalizeScore(cell.Text())
			if i%2 == 0 {
				entry.SprintScores = append(entry.SprintScores, score)
			} else {
				entry.FeatureScores = append(entry.FeatureScores, score)
			}
		})
		entries = append(entries, entry)
	})
	return title, entries
}
