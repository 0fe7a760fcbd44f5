package models

import "time"

// Movie is the canonical film record shared by every source that lists it
type Movie struct {
	ID          uint   `gorm:"primaryKey"`
	DisplayName string `gorm:"not null"`
	NameKey     string `gorm:"uniqueIndex;not null"` // Comparison key of DisplayName (case and diacritics folded)

	Aliases []MovieAlias `gorm:"constraint:OnDelete:CASCADE"`

	// Optional metadata, backfilled from sources with reliable metadata
	RuntimeMinutes *int
	ReleaseDate    *time.Time
	TmdbID         *int
	Description    string
	PosterURL      string
	TrailerURL     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MovieAlias is a raw title string that has been resolved to a movie
type MovieAlias struct {
	ID      uint   `gorm:"primaryKey"`
	MovieID uint   `gorm:"not null;uniqueIndex:idx_movie_alias_value"`
	Value   string `gorm:"not null;uniqueIndex:idx_movie_alias_value"`
	Key     string `gorm:"column:alias_key;not null;index"`
}

// AliasValues returns the alias strings of the movie
func (m *Movie) AliasValues() []string {
	values := make([]string, 0, len(m.Aliases))
	for _, alias := range m.Aliases {
		values = append(values, alias.Value)
	}
	return values
}

// HasAlias reports whether value is already a known alias
func (m *Movie) HasAlias(value string) bool {
	for _, alias := range m.Aliases {
		if alias.Value == value {
			return true
		}
	}
	return false
}

// MovieMetadata carries optional movie details a source may expose
type MovieMetadata struct {
	RuntimeMinutes *int
	ReleaseDate    *time.Time
	TmdbID         *int
	Description    string
	PosterURL      string
	TrailerURL     string
}

// Backfill copies metadata into empty fields of the movie.
// Returns true if any field changed.
func (m *Movie) Backfill(meta *MovieMetadata) bool {
	if meta == nil {
		return false
	}

	changed := false
	if m.RuntimeMinutes == nil && meta.RuntimeMinutes != nil {
		m.RuntimeMinutes = meta.RuntimeMinutes
		changed = true
	}
	if m.ReleaseDate == nil && meta.ReleaseDate != nil {
		m.ReleaseDate = meta.ReleaseDate
		changed = true
	}
	if m.TmdbID == nil && meta.TmdbID != nil {
		m.TmdbID = meta.TmdbID
		changed = true
	}
	if m.Description == "" && meta.Description != "" {
		m.Description = meta.Description
		changed = true
	}
	if m.PosterURL == "" && meta.PosterURL != "" {
		m.PosterURL = meta.PosterURL
		changed = true
	}
	if m.TrailerURL == "" && meta.TrailerURL != "" {
		m.TrailerURL = meta.TrailerURL
		changed = true
	}
	return changed
}
