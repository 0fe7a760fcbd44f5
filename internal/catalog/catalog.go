// Package catalog defines the snapshot exchanged between the catalog server and its clients.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/amaumene/gokino/internal/models"
)

const (
	// DataFile is the full snapshot
	DataFile = "data.json"
	// MarkerFile holds only the version of DataFile
	MarkerFile = "data.json.update"
)

// Snapshot is the full catalog of upcoming showtimes
type Snapshot struct {
	Version   string     `json:"version"`
	Cinemas   []Cinema   `json:"cinemas"`
	Movies    []Movie    `json:"movies"`
	ShowTimes []ShowTime `json:"showTimes"`
}

// Cinema is the snapshot form of models.Cinema
type Cinema struct {
	ID               uint   `json:"id"`
	DisplayName      string `json:"displayName"`
	Website          string `json:"url"`
	Color            string `json:"color,omitempty"`
	ReliableMetadata bool   `json:"reliableMetadata"`
	LinkToShop       bool   `json:"linkToShop"`
}

// Movie is the snapshot form of models.Movie
type Movie struct {
	ID          uint       `json:"id"`
	DisplayName string     `json:"displayName"`
	Aliases     []string   `json:"aliases,omitempty"`
	Runtime     *int       `json:"runtime,omitempty"` // Minutes
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
	TmdbID      *int       `json:"tmdbId,omitempty"`
	Description string     `json:"description,omitempty"`
	PosterURL   string     `json:"posterUrl,omitempty"`
	TrailerURL  string     `json:"trailerUrl,omitempty"`
}

// ShowTime is the snapshot form of models.ShowTime; movie and cinema are IDs
type ShowTime struct {
	ID           uint              `json:"id"`
	Movie        uint              `json:"movie"`
	Cinema       uint              `json:"cinema"`
	StartTime    time.Time         `json:"startTime"`
	Language     models.Language   `json:"language"`
	DubVariant   models.DubVariant `json:"type"`
	SpecialEvent string            `json:"specialEvent,omitempty"`
	URL          string            `json:"url"`
	ShopURL      string            `json:"shopUrl,omitempty"`
}

// ExportEvent announces a new snapshot
type ExportEvent struct {
	Version    string    `json:"version"`
	Cinemas    int       `json:"cinemas"`
	Movies     int       `json:"movies"`
	ShowTimes  int       `json:"showTimes"`
	ExportedAt time.Time `json:"exportedAt"`
}

// Build assembles a snapshot. Only movies and cinemas referenced by a showtime are kept.
func Build(version string, cinemas []*models.Cinema, movies []*models.Movie, showTimes []*models.ShowTime) *Snapshot {
	snapshot := &Snapshot{
		Version:   version,
		Cinemas:   []Cinema{},
		Movies:    []Movie{},
		ShowTimes: make([]ShowTime, 0, len(showTimes)),
	}

	usedMovies := make(map[uint]bool)
	usedCinemas := make(map[uint]bool)
	for _, st := range showTimes {
		usedMovies[st.MovieID] = true
		usedCinemas[st.CinemaID] = true
		snapshot.ShowTimes = append(snapshot.ShowTimes, ShowTime{
			ID:           st.ID,
			Movie:        st.MovieID,
			Cinema:       st.CinemaID,
			StartTime:    st.StartTime.UTC(),
			Language:     st.Language,
			DubVariant:   st.DubVariant,
			SpecialEvent: st.SpecialEvent,
			URL:          st.URL,
			ShopURL:      st.ShopURL,
		})
	}

	for _, c := range cinemas {
		if !usedCinemas[c.ID] {
			continue
		}
		snapshot.Cinemas = append(snapshot.Cinemas, Cinema{
			ID:               c.ID,
			DisplayName:      c.DisplayName,
			Website:          c.Website,
			Color:            c.Color,
			ReliableMetadata: c.ReliableMetadata,
			LinkToShop:       c.LinkToShop,
		})
	}

	for _, m := range movies {
		if !usedMovies[m.ID] {
			continue
		}
		aliases := m.AliasValues()
		sort.Strings(aliases)
		snapshot.Movies = append(snapshot.Movies, Movie{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Aliases:     aliases,
			Runtime:     m.RuntimeMinutes,
			ReleaseDate: m.ReleaseDate,
			TmdbID:      m.TmdbID,
			Description: m.Description,
			PosterURL:   m.PosterURL,
			TrailerURL:  m.TrailerURL,
		})
	}

	return snapshot
}

// Validate checks that every showtime references a movie and a cinema of the snapshot
func (s *Snapshot) Validate() error {
	movies := make(map[uint]bool, len(s.Movies))
	for _, m := range s.Movies {
		movies[m.ID] = true
	}
	cinemas := make(map[uint]bool, len(s.Cinemas))
	for _, c := range s.Cinemas {
		cinemas[c.ID] = true
	}

	for _, st := range s.ShowTimes {
		if !movies[st.Movie] {
			return fmt.Errorf("showtime %d references unknown movie %d", st.ID, st.Movie)
		}
		if !cinemas[st.Cinema] {
			return fmt.Errorf("showtime %d references unknown cinema %d", st.ID, st.Cinema)
		}
	}
	return nil
}

// Event summarises the snapshot for notifications
func (s *Snapshot) Event(exportedAt time.Time) ExportEvent {
	return ExportEvent{
		Version:    s.Version,
		Cinemas:    len(s.Cinemas),
		Movies:     len(s.Movies),
		ShowTimes:  len(s.ShowTimes),
		ExportedAt: exportedAt.UTC(),
	}
}

// Encode writes the snapshot as JSON
func Encode(w io.Writer, snapshot *Snapshot) error {
	return json.NewEncoder(w).Encode(snapshot)
}

// Decode reads a JSON snapshot and checks its references
func Decode(r io.Reader) (*Snapshot, error) {
	var snapshot Snapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return &snapshot, nil
}

// NextVersion returns the version for an export at now. It is strictly
// greater than previous, so clients always see a changed marker.
func NextVersion(previous string, now time.Time) string {
	next := now.UTC()
	if prev, err := ParseVersion(previous); err == nil && !next.After(prev) {
		next = prev.Add(time.Nanosecond)
	}
	return next.Format(time.RFC3339Nano)
}

// ParseVersion parses a version marker
func ParseVersion(version string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(version))
}
