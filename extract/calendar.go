package extract

import (
	"github.com/PuerkitoBio/goquery"

	"f2_scrooper/models"
)

const (
	CalendarAnchor = ".result-card.post-race-wrapper"

	calendarTitle = ".col-xl-6"
)

// Calendar reads the season title and race weekends from a calendar page.
// Races without a location are dropped.
func Calendar(doc *goquery.Document) (string, []models.Race) {
	title := textOr(firstText(doc.Selection, calendarTitle), models.NoTitle)

	var races []models.Race
	doc.Find(CalendarAnchor).Each(func(_ int, card *goquery.Selection) {
		race := models.Race{
			StartDate: firstText(card, ".date .start-date"),
			EndDate:   firstText(card, ".date .end-date"),
			Month:     firstText(card, ".month"),
			Location:  firstText(card, ".event-place"),
		}
		if race.Location == "" {
			return
		}
		races = append(races, race)
	})
	return title, races
}
