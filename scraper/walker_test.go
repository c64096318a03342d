package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"f2_scrooper/browser"
	"f2_scrooper/extract"
	"f2_scrooper/models"
)

func driverSource(maxSeasons int) Source[models.StandingEntry] {
	site := testSite()
	return Source[models.StandingEntry]{
		Kind:       models.KindDriverStandings,
		Anchor:     extract.StandingsAnchor,
		URL:        seasonURL(site, models.KindDriverStandings),
		Extract:    extractStandings,
		MaxSeasons: maxSeasons,
	}
}

func TestWalkStopsAtFirstMissingSeason(t *testing.T) {
	for _, k := range []int{0, 1, 3, 8} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			loader := newFakeLoader()
			seedSeasons(loader, k)

			records, err := Walk(context.Background(), loader, driverSource(0), zap.NewNop())
			require.NoError(t, err)
			require.Len(t, records, k)

			for i, r := range records {
				assert.Equal(t, models.FirstYear+i, r.Year)
				assert.Equal(t, fmt.Sprintf("%d Driver Standings", r.Year), r.Title)
			}
			assert.Equal(t, 1, loader.requested(driverURL(models.FirstSeasonID+k)))
			assert.Equal(t, 0, loader.requested(driverURL(models.FirstSeasonID+k+1)))
		})
	}
}

func TestWalkEmptyPageEndsWalk(t *testing.T) {
	loader := newFakeLoader()
	seedSeasons(loader, 4)
	loader.pages[calendarURL(175)] = emptyCalendarPage("2018 Calendar")

	src := Source[models.Race]{
		Kind:   models.KindCalendar,
		Anchor: extract.CalendarAnchor,
		URL:    seasonURL(testSite(), models.KindCalendar),
		Extract: func(doc *goquery.Document, _ Season) (string, []models.Race) {
			return extract.Calendar(doc)
		},
	}

	records, err := Walk(context.Background(), loader, src, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2017, records[0].Year)
	assert.Equal(t, 0, loader.requested(calendarURL(176)))
}

func TestWalkRespectsCeiling(t *testing.T) {
	loader := newFakeLoader()
	seedSeasons(loader, 10)

	records, err := Walk(context.Background(), loader, driverSource(4), zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Equal(t, 0, loader.requested(driverURL(178)))
}

func TestWalkSkipMisses(t *testing.T) {
	loader := newFakeLoader()
	seedSeasons(loader, 0)
	delete(loader.pages, testBase+"/roster/2018")

	scraper := NewRosterScraper(Options{Site: testSite(), Log: zap.NewNop()}).(*seasonScraper[models.RosterEntry])
	records, err := Walk(context.Background(), loader, scraper.source, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, 2017, records[0].Year)
	assert.Equal(t, 2019, records[1].Year)
	assert.Equal(t, "Teams & Drivers Formula 2 2019", records[1].Title)
}

func TestWalkPropagatesLoaderFailure(t *testing.T) {
	loader := newFakeLoader()
	seedSeasons(loader, 3)
	boom := errors.New("browser crashed")
	loader.errs[driverURL(175)] = boom

	records, err := Walk(context.Background(), loader, driverSource(0), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, browser.ErrNoData)
	assert.Nil(t, records)
}

func TestWalkCancelled(t *testing.T) {
	loader := newFakeLoader()
	seedSeasons(loader, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Walk(ctx, loader, driverSource(0), zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, loader.requests)
}

func TestNewScraperUnknownKind(t *testing.T) {
	_, err := NewScraper(models.DataKind("qualifying"), Options{Site: testSite(), Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrUnknownKind)

	scrapers := NewScrapers(Options{Site: testSite(), Log: zap.NewNop()})
	require.Len(t, scrapers, len(models.AllKinds))
	for i, s := range scrapers {
		assert.Equal(t, models.AllKinds[i], s.Kind())
	}
}

func TestScrapeNoSeasons(t *testing.T) {
	s := NewCalendarScraper(Options{Site: testSite(), Log: zap.NewNop()})
	_, err := s.Scrape(context.Background(), newFakeLoader())
	assert.ErrorIs(t, err, ErrNoSeasons)
}
