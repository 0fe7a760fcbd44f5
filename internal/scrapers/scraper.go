// Package scrapers contains the source adapters that read cinema programmes.
package scrapers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/config"
	"github.com/amaumene/gokino/internal/models"
	"github.com/amaumene/gokino/internal/resolver"
)

// Sink receives the raw showings of a source run
type Sink interface {
	Resolve(ctx context.Context, raw models.RawShowing) (*models.ShowTime, error)
}

// Profile is the static description of a source
type Profile struct {
	Cinema              models.Cinema
	SpecialEventMarkers []string
	Ignore              []string
}

// Scraper reads one cinema's programme and feeds every showing to the sink.
// It returns an error only when the source could not be read as a whole.
type Scraper interface {
	Profile() Profile
	Scrape(ctx context.Context, sink Sink) error
}

// emit hands a showing to the sink. Skipped showings are not errors for the source.
func emit(ctx context.Context, sink Sink, raw models.RawShowing) error {
	if _, err := sink.Resolve(ctx, raw); err != nil && !resolver.IsSkip(err) {
		return err
	}
	return nil
}

// FromSources builds the ordered scraper registry from source definitions
func FromSources(sources []config.Source, fetcher *Fetcher, location *time.Location, logger *logrus.Logger) ([]Scraper, error) {
	scrapers := make([]Scraper, 0, len(sources))
	for _, source := range sources {
		profile := profileFor(source)

		switch source.Kind {
		case config.SourceCSV:
			scrapers = append(scrapers, NewCSV(profile, source.URL, fetcher, location, logger))
		case config.SourcePremiumkino:
			scrapers = append(scrapers, NewPremiumkino(profile, source.URL, fetcher, location, logger))
		case config.SourceHTML:
			scrapers = append(scrapers, NewHTMLTable(profile, source.URL, source.Selectors, fetcher, location, logger))
		default:
			return nil, fmt.Errorf("unknown source kind %q", source.Kind)
		}

		logger.WithFields(logrus.Fields{
			"cinema": source.Cinema.Name,
			"kind":   source.Kind,
		}).Debug("Registered source")
	}
	return scrapers, nil
}

func profileFor(source config.Source) Profile {
	return Profile{
		Cinema: models.Cinema{
			DisplayName:      strings.TrimSpace(source.Cinema.Name),
			Website:          source.Cinema.Website,
			Color:            source.Cinema.Color,
			ReliableMetadata: source.Cinema.ReliableMetadata,
			LinkToShop:       source.Cinema.LinkToShop,
		},
		SpecialEventMarkers: source.SpecialEventMarkers,
		Ignore:              source.Ignore,
	}
}

// parseLocalTime parses a source timestamp. Values without a zone are read in location.
func parseLocalTime(value string, location *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02 15:04", "02.01.2006 15:04"} {
		if t, err := time.ParseInLocation(layout, value, location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", value)
}
