package scraper

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"f2_scrooper/browser"
	"f2_scrooper/config"
	"f2_scrooper/extract"
	"f2_scrooper/models"
)

var (
	ErrUnknownKind = errors.New("unknown kind")
	// ErrNoSeasons is returned when a walk finds nothing at all. The kind's
	// previous document is kept rather than replaced with an empty one.
	ErrNoSeasons = errors.New("no seasons found")
)

// Document is a scraped kind ready to be persisted. Payload carries the exact
// JSON shape the dashboard reads.
type Document struct {
	Kind    models.DataKind
	Seasons int
	Payload any
}

type Scraper interface {
	Kind() models.DataKind
	Scrape(ctx context.Context, loader browser.Loader) (*Document, error)
}

type Options struct {
	Site       *config.SiteConfig
	MaxSeasons int
	Log        *zap.Logger
}

// NewScraper returns the scraper for kind.
func NewScraper(kind models.DataKind, opts Options) (Scraper, error) {
	switch kind {
	case models.KindDriverStandings:
		return NewDriverStandingsScraper(opts), nil
	case models.KindTeamStandings:
		return NewTeamStandingsScraper(opts), nil
	case models.KindCalendar:
		return NewCalendarScraper(opts), nil
	case models.KindTeamsAndDrivers:
		return NewRosterScraper(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// NewScrapers builds one scraper per kind in cycle order.
func NewScrapers(opts Options) []Scraper {
	scrapers := make([]Scraper, 0, len(models.AllKinds))
	for _, kind := range models.AllKinds {
		s, _ := NewScraper(kind, opts)
		scrapers = append(scrapers, s)
	}
	return scrapers
}

type seasonScraper[T any] struct {
	source   Source[T]
	validate func(models.SeasonRecord[T]) error
	shape    func([]models.SeasonRecord[T]) any
	log      *zap.Logger
}

func (s *seasonScraper[T]) Kind() models.DataKind {
	return s.source.Kind
}

func (s *seasonScraper[T]) Scrape(ctx context.Context, loader browser.Loader) (*Document, error) {
	records, err := Walk(ctx, loader, s.source, s.log)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", s.source.Kind, ErrNoSeasons)
	}

	for _, r := range records {
		if err := s.validate(r); err != nil {
			s.log.Warn("season failed validation",
				zap.String("kind", string(s.source.Kind)), zap.Int("year", r.Year), zap.Error(err))
		}
	}

	return &Document{
		Kind:    s.source.Kind,
		Seasons: len(records),
		Payload: s.shape(records),
	}, nil
}

func seasonURL(site *config.SiteConfig, kind models.DataKind) func(Season) (string, bool) {
	return func(s Season) (string, bool) {
		return site.SeasonURL(string(kind), s.SeasonID)
	}
}

func extractStandings(doc *goquery.Document, _ Season) (string, []models.StandingEntry) {
	return extract.Standings(doc)
}

func NewDriverStandingsScraper(opts Options) Scraper {
	return &seasonScraper[models.StandingEntry]{
		source: Source[models.StandingEntry]{
			Kind:       models.KindDriverStandings,
			Anchor:     extract.StandingsAnchor,
			URL:        seasonURL(opts.Site, models.KindDriverStandings),
			Extract:    extractStandings,
			MaxSeasons: opts.MaxSeasons,
		},
		validate: models.ValidateStandings,
		shape:    shapeStandings(newDriverStanding),
		log:      opts.Log,
	}
}

func NewTeamStandingsScraper(opts Options) Scraper {
	return &seasonScraper[models.StandingEntry]{
		source: Source[models.StandingEntry]{
			Kind:       models.KindTeamStandings,
			Anchor:     extract.StandingsAnchor,
			URL:        seasonURL(opts.Site, models.KindTeamStandings),
			Extract:    extractStandings,
			MaxSeasons: opts.MaxSeasons,
		},
		validate: models.ValidateStandings,
		shape:    shapeStandings(newTeamStanding),
		log:      opts.Log,
	}
}

func NewCalendarScraper(opts Options) Scraper {
	return &seasonScraper[models.Race]{
		source: Source[models.Race]{
			Kind:   models.KindCalendar,
			Anchor: extract.CalendarAnchor,
			URL:    seasonURL(opts.Site, models.KindCalendar),
			Extract: func(doc *goquery.Document, _ Season) (string, []models.Race) {
				return extract.Calendar(doc)
			},
			MaxSeasons: opts.MaxSeasons,
		},
		validate: models.ValidateCalendar,
		shape:    shapeCalendar,
		log:      opts.Log,
	}
}

// NewRosterScraper walks the pinned per-year roster snapshots. Archived pages
// are flaky, so a missing year is skipped rather than ending the walk.
func NewRosterScraper(opts Options) Scraper {
	return &seasonScraper[models.RosterEntry]{
		source: Source[models.RosterEntry]{
			Kind:   models.KindTeamsAndDrivers,
			Anchor: extract.RosterAnchor,
			URL: func(s Season) (string, bool) {
				return opts.Site.RosterURL(s.Year)
			},
			Extract: func(doc *goquery.Document, s Season) (string, []models.RosterEntry) {
				return extract.Roster(doc, extract.EraFor(s.Year))
			},
			SkipMisses: true,
			MaxSeasons: opts.MaxSeasons,
		},
		validate: models.ValidateRoster,
		shape:    shapeRoster,
		log:      opts.Log,
	}
}

// Persisted document shapes.

type DriverStanding struct {
	DriverName        string   `json:"driverName"`
	TotalPoints       string   `json:"totalPoints"`
	SprintRaceScores  []string `json:"sprintRaceScores"`
	FeatureRaceScores []string `json:"featureRaceScores"`
}

type TeamStanding struct {
	TeamName          string   `json:"teamName"`
	TotalPoints       string   `json:"totalPoints"`
	SprintRaceScores  []string `json:"sprintRaceScores"`
	FeatureRaceScores []string `json:"featureRaceScores"`
}

type StandingsYear[R any] struct {
	Year      int    `json:"year"`
	Title     string `json:"title"`
	Standings []R    `json:"standings"`
}

type CalendarYear struct {
	Title string        `json:"title"`
	Races []models.Race `json:"races"`
}

// CalendarDocument is keyed by the year as a string.
type CalendarDocument map[string]CalendarYear

type RosterYear struct {
	Year  int                  `json:"year"`
	Title string               `json:"title"`
	Teams []models.RosterEntry `json:"teams"`
}

func newDriverStanding(e models.StandingEntry) DriverStanding {
	return DriverStanding{
		DriverName:        e.CompetitorName,
		TotalPoints:       e.TotalPoints,
		SprintRaceScores:  nonNil(e.SprintScores),
		FeatureRaceScores: nonNil(e.FeatureScores),
	}
}

func newTeamStanding(e models.StandingEntry) TeamStanding {
	return TeamStanding{
		TeamName:          e.CompetitorName,
		TotalPoints:       e.TotalPoints,
		SprintRaceScores:  nonNil(e.SprintScores),
		FeatureRaceScores: nonNil(e.FeatureScores),
	}
}

func shapeStandings[R any](row func(models.StandingEntry) R) func([]models.StandingsSeason) any {
	return func(seasons []models.StandingsSeason) any {
		out := make([]StandingsYear[R], 0, len(seasons))
		for _, s := range seasons {
			rows := make([]R, 0, len(s.Entries))
			for _, e := range s.Entries {
				rows = append(rows, row(e))
			}
			out = append(out, StandingsYear[R]{Year: s.Year, Title: s.Title, Standings: rows})
		}
		return out
	}
}

func shapeCalendar(seasons []models.CalendarSeason) any {
	out := make(CalendarDocument, len(seasons))
	for _, s := range seasons {
		out[strconv.Itoa(s.Year)] = CalendarYear{Title: s.Title, Races: s.Entries}
	}
	return out
}

func shapeRoster(seasons []models.RosterSeason) any {
	out := make([]RosterYear, 0, len(seasons))
	for _, s := range seasons {
		teams := make([]models.RosterEntry, 0, len(s.Entries))
		for _, t := range s.Entries {
			t.Drivers = nonNil(t.Drivers)
			teams = append(teams, t)
		}
		out = append(out, RosterYear{Year: s.Year, Title: s.Title, Teams: teams})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
