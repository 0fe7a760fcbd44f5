package models

import "time"

// Cinema is a venue, configured once per source adapter
type Cinema struct {
	ID               uint   `gorm:"primaryKey"`
	DisplayName      string `gorm:"uniqueIndex;not null"`
	Website          string `gorm:"not null"`
	Color            string
	ReliableMetadata bool // Metadata from this source is trusted when merging movies
	LinkToShop       bool // Showtimes link to the ticket shop instead of the info page

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShowTime is one scheduled screening
type ShowTime struct {
	ID       uint    `gorm:"primaryKey"`
	MovieID  uint    `gorm:"not null;index"`
	Movie    *Movie  `gorm:"constraint:OnDelete:CASCADE"`
	CinemaID uint    `gorm:"not null;index"`
	Cinema   *Cinema `gorm:"constraint:OnDelete:CASCADE"`

	StartTime    time.Time  `gorm:"not null;index"` // Always UTC
	Language     Language   `gorm:"not null"`
	DubVariant   DubVariant `gorm:"not null"`
	SpecialEvent string
	URL          string `gorm:"not null"`
	ShopURL      string

	CreatedAt time.Time
}

// ScrapeRun records one source adapter run
type ScrapeRun struct {
	ID         string `gorm:"primaryKey"` // UUID
	CinemaID   uint   `gorm:"index"`
	CinemaName string
	Status     ScrapeRunStatus `gorm:"index"`

	Accepted   int // ShowTimes buffered for commit
	Skipped    int // Past, unbookable, ignored or malformed records
	Duplicates int // Same (cinema, movie, start) listed twice

	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}
