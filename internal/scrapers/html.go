package scrapers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/config"
	"github.com/amaumene/gokino/internal/models"
)

// HTMLTable reads a programme page where every matching row element is one showing.
// A row with a date but no showing (a day header) sets the date of the rows after it.
type HTMLTable struct {
	profile   Profile
	pageURL   string
	selectors config.HTMLSelectors
	fetcher   *Fetcher
	tz        *time.Location
	logger    *logrus.Logger
	now       func() time.Time
}

// NewHTMLTable creates an HTML programme source
func NewHTMLTable(profile Profile, pageURL string, selectors config.HTMLSelectors, fetcher *Fetcher, tz *time.Location, logger *logrus.Logger) *HTMLTable {
	if selectors.DateLayout == "" {
		selectors.DateLayout = "02.01.2006"
	}
	if selectors.TimeLayout == "" {
		selectors.TimeLayout = "15:04"
	}
	return &HTMLTable{
		profile:   profile,
		pageURL:   pageURL,
		selectors: selectors,
		fetcher:   fetcher,
		tz:        tz,
		logger:    logger,
		now:       time.Now,
	}
}

// Profile returns the source description
func (s *HTMLTable) Profile() Profile {
	return s.profile
}

// Scrape downloads the page and emits one showing per row
func (s *HTMLTable) Scrape(ctx context.Context, sink Sink) error {
	var emitErr error
	rows := 0

	err := s.fetcher.Retry(ctx, s.pageURL, func() error {
		rows = 0
		c := s.collector(ctx, sink, &rows, &emitErr)
		if err := c.Visit(s.pageURL); err != nil {
			return err
		}
		if emitErr != nil {
			return backoff.Permanent(emitErr)
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	})
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		return err
	}

	// A page without a single row is a layout change, not an empty programme
	if rows == 0 {
		return fmt.Errorf("%w: no rows match %q on %s", ErrSourceUnavailable, s.selectors.Row, s.pageURL)
	}

	s.logger.WithFields(logrus.Fields{
		"cinema": s.profile.Cinema.DisplayName,
		"rows":   rows,
	}).Debug("Parsed programme page")
	return nil
}

func (s *HTMLTable) collector(ctx context.Context, sink Sink, rows *int, emitErr *error) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(s.fetcher.Timeout())

	day := s.today()
	c.OnHTML(s.selectors.Row, func(e *colly.HTMLElement) {
		*rows++
		if *emitErr != nil || ctx.Err() != nil {
			return
		}

		if s.selectors.Date != "" {
			if d, ok := s.parseDate(e.ChildText(s.selectors.Date)); ok {
				day = d
			}
		}

		title := strings.TrimSpace(e.ChildText(s.selectors.Title))
		clock, hasClock := s.parseClock(e.ChildText(s.selectors.Time))
		if title == "" && !hasClock {
			return
		}

		raw := models.RawShowing{Title: title}
		if hasClock {
			raw.StartTime = time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, s.tz)
		}
		if s.selectors.Hint != "" {
			raw.Hint = strings.TrimSpace(e.ChildText(s.selectors.Hint))
		}
		if s.selectors.Link != "" {
			if href := e.ChildAttr(s.selectors.Link, "href"); href != "" {
				raw.URL = e.Request.AbsoluteURL(href)
			}
		}

		if err := emit(ctx, sink, raw); err != nil {
			*emitErr = err
		}
	})

	return c
}

func (s *HTMLTable) today() time.Time {
	now := s.now().In(s.tz)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.tz)
}

// parseDate accepts the whole cell or any word of it, so "Mo 20.05.2024" works.
// Layouts without a year get the year that puts the date closest to today.
func (s *HTMLTable) parseDate(text string) (time.Time, bool) {
	candidates := append([]string{strings.TrimSpace(text)}, strings.Fields(text)...)
	for _, candidate := range candidates {
		d, err := time.ParseInLocation(s.selectors.DateLayout, candidate, s.tz)
		if err != nil {
			continue
		}
		if d.Year() == 0 {
			today := s.today()
			d = time.Date(today.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.tz)
			if d.Before(today.AddDate(0, -6, 0)) {
				d = d.AddDate(1, 0, 0)
			}
		}
		return d, true
	}
	return time.Time{}, false
}

// parseClock finds the first word that is a time of day
func (s *HTMLTable) parseClock(text string) (time.Time, bool) {
	for _, word := range strings.Fields(text) {
		if t, err := time.Parse(s.selectors.TimeLayout, strings.TrimSuffix(word, "Uhr")); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
