package scrapers

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/models"
)

// CSV reads a programme maintained by hand as a CSV file with the
// header columns Time, Title and the optional Url and Hint.
type CSV struct {
	profile  Profile
	location string
	fetcher  *Fetcher
	tz       *time.Location
	logger   *logrus.Logger
}

// NewCSV creates a CSV source reading a local path or an http(s) URL
func NewCSV(profile Profile, location string, fetcher *Fetcher, tz *time.Location, logger *logrus.Logger) *CSV {
	return &CSV{
		profile:  profile,
		location: location,
		fetcher:  fetcher,
		tz:       tz,
		logger:   logger,
	}
}

// Profile returns the source description
func (s *CSV) Profile() Profile {
	return s.profile
}

// Scrape reads every record and emits it
func (s *CSV) Scrape(ctx context.Context, sink Sink) error {
	data, err := s.read(ctx)
	if err != nil {
		return err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := make(map[string]int)
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := columns["time"]; !ok {
		return fmt.Errorf("CSV header has no Time column")
	}
	if _, ok := columns["title"]; !ok {
		return fmt.Errorf("CSV header has no Title column")
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// The reader resumes at the next line
			s.logger.WithFields(logrus.Fields{
				"cinema": s.profile.Cinema.DisplayName,
				"line":   parseErr.StartLine,
			}).WithError(err).Warn("Skipping malformed CSV record")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record: %w", err)
		}

		raw := models.RawShowing{
			Title: field(record, "title"),
			Hint:  field(record, "hint"),
			URL:   field(record, "url"),
		}
		// An unparseable time leaves StartTime zero and the resolver rejects the record
		if start, err := parseLocalTime(field(record, "time"), s.tz); err == nil {
			raw.StartTime = start
		}

		if err := emit(ctx, sink, raw); err != nil {
			return err
		}
	}
}

func (s *CSV) read(ctx context.Context) ([]byte, error) {
	if strings.HasPrefix(s.location, "http://") || strings.HasPrefix(s.location, "https://") {
		return s.fetcher.Get(ctx, s.location)
	}

	data, err := os.ReadFile(s.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return data, nil
}
