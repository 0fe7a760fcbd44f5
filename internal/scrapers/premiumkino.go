package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/models"
)

// premiumkinoConfigPath is the programme endpoint relative to the site base URL
const premiumkinoConfigPath = "/api/v1/de/config"

// Entries are kept raw so one mistyped record does not spoil the document
type premiumkinoConfig struct {
	MovieList []json.RawMessage `json:"movie_list"`
}

type premiumkinoMovie struct {
	Name         string            `json:"name"`
	Show         bool              `json:"show"`
	Minutes      int               `json:"minutes"`
	Description  string            `json:"description"`
	Poster       string            `json:"poster"`
	Trailer      string            `json:"trailer"`
	Performances []json.RawMessage `json:"performances"`
}

type premiumkinoPerformance struct {
	Begin      string `json:"begin"`
	Bookable   bool   `json:"bookable"`
	Reservable bool   `json:"reservable"`
	IsOV       bool   `json:"is_ov"`
	IsOmU      bool   `json:"is_omu"`
	Language   string `json:"language"`
	Slug       string `json:"slug"`
	CryptID    string `json:"crypt_id"`
}

// Premiumkino reads the JSON programme API used by premiumkino.de sites
type Premiumkino struct {
	profile Profile
	baseURL string
	fetcher *Fetcher
	tz      *time.Location
	logger  *logrus.Logger
}

// NewPremiumkino creates a premiumkino source for the site at baseURL
func NewPremiumkino(profile Profile, baseURL string, fetcher *Fetcher, tz *time.Location, logger *logrus.Logger) *Premiumkino {
	return &Premiumkino{
		profile: profile,
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		tz:      tz,
		logger:  logger,
	}
}

// Profile returns the source description
func (s *Premiumkino) Profile() Profile {
	return s.profile
}

// Scrape fetches the programme and emits every performance of every listed movie
func (s *Premiumkino) Scrape(ctx context.Context, sink Sink) error {
	var cfg premiumkinoConfig
	if err := s.fetcher.GetJSON(ctx, s.baseURL+premiumkinoConfigPath, &cfg); err != nil {
		return err
	}

	for i, entry := range cfg.MovieList {
		var movie premiumkinoMovie
		if err := json.Unmarshal(entry, &movie); err != nil {
			s.skip(err, logrus.Fields{"movie_index": i})
			continue
		}
		if !movie.Show {
			continue
		}
		meta := movie.metadata()

		for j, rawPerformance := range movie.Performances {
			if err := ctx.Err(); err != nil {
				return err
			}

			var performance premiumkinoPerformance
			if err := json.Unmarshal(rawPerformance, &performance); err != nil {
				s.skip(err, logrus.Fields{"movie": movie.Name, "performance_index": j})
				continue
			}

			raw := models.RawShowing{
				Title:        movie.Name,
				Hint:         performance.Language,
				DubVariant:   performance.dubVariant(),
				BookingKnown: true,
				Bookable:     performance.Bookable,
				Reservable:   performance.Reservable,
				URL:          fmt.Sprintf("%s/film/%s", s.baseURL, performance.Slug),
				ShopURL:      fmt.Sprintf("%s/vorstellung/%s/0/0/%s", s.baseURL, performance.Slug, performance.CryptID),
				Metadata:     meta,
			}
			if start, err := parseLocalTime(performance.Begin, s.tz); err == nil {
				raw.StartTime = start
			}

			if err := emit(ctx, sink, raw); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Premiumkino) skip(err error, fields logrus.Fields) {
	s.logger.WithField("cinema", s.profile.Cinema.DisplayName).
		WithFields(fields).
		WithError(err).
		Warn("Skipping malformed programme entry")
}

// dubVariant maps the explicit flags; the API always states them
func (p premiumkinoPerformance) dubVariant() models.DubVariant {
	switch {
	case p.IsOV:
		return models.DubOriginalVersion
	case p.IsOmU:
		return models.DubSubtitled
	default:
		return models.DubRegular
	}
}

func (m premiumkinoMovie) metadata() *models.MovieMetadata {
	meta := &models.MovieMetadata{
		Description: m.Description,
		PosterURL:   m.Poster,
		TrailerURL:  m.Trailer,
	}
	if m.Minutes > 0 {
		minutes := m.Minutes
		meta.RuntimeMinutes = &minutes
	}
	return meta
}
