package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"f2_scrooper/browser"
	"f2_scrooper/models"
)

// Season is one step of a walk: the championship year and the site's id for it.
type Season struct {
	Year     int
	SeasonID int
}

func seasonAt(offset int) Season {
	return Season{Year: models.FirstYear + offset, SeasonID: models.FirstSeasonID + offset}
}

// Source describes how to walk one data kind season by season.
type Source[T any] struct {
	Kind   models.DataKind
	Anchor string
	// URL returns false once the source has no page for the season.
	URL     func(Season) (string, bool)
	Extract func(*goquery.Document, Season) (string, []T)
	// SkipMisses moves on to the next season after a failed or empty page
	// instead of ending the walk.
	SkipMisses bool
	// MaxSeasons caps the walk. Zero means no cap.
	MaxSeasons int
}

// Walk loads seasons from 2017 onwards until the source runs dry. Pages that
// fail to load or yield no entries mark the end of the data; only context
// cancellation and non-page failures are returned as errors.
func Walk[T any](ctx context.Context, loader browser.Loader, src Source[T], log *zap.Logger) ([]models.SeasonRecord[T], error) {
	log = log.With(zap.String("kind", string(src.Kind)))

	var records []models.SeasonRecord[T]
	for i := 0; src.MaxSeasons <= 0 || i < src.MaxSeasons; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		season := seasonAt(i)
		url, ok := src.URL(season)
		if !ok {
			log.Info("no more season pages", zap.Int("year", season.Year))
			return records, nil
		}

		doc, err := loader.Load(ctx, url, src.Anchor)
		if err != nil {
			if !errors.Is(err, browser.ErrNoData) {
				return nil, fmt.Errorf("%s season %d: %w", src.Kind, season.SeasonID, err)
			}
			if src.SkipMisses {
				log.Warn("season unavailable, skipping", zap.Int("year", season.Year), zap.Error(err))
				continue
			}
			log.Info("stopped at season", zap.Int("season_id", season.SeasonID), zap.Int("year", season.Year), zap.Error(err))
			return records, nil
		}

		title, entries := src.Extract(doc, season)
		if len(entries) == 0 {
			if src.SkipMisses {
				log.Warn("season empty, skipping", zap.Int("year", season.Year))
				continue
			}
			log.Info("stopped at season", zap.Int("season_id", season.SeasonID), zap.Int("year", season.Year), zap.String("reason", "empty page"))
			return records, nil
		}

		log.Debug("season scraped", zap.Int("year", season.Year), zap.Int("entries", len(entries)))
		records = append(records, models.SeasonRecord[T]{
			Year:    season.Year,
			Title:   title,
			Entries: entries,
		})
	}

	log.Info("season ceiling reached", zap.Int("max_seasons", src.MaxSeasons))
	return records, nil
}
