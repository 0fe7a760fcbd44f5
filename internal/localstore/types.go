package localstore

import (
	"time"

	"github.com/amaumene/gokino/internal/models"
)

// Configuration is a key/value setting of the local store
type Configuration struct {
	ID    string `boltholdKey:"ID"`
	Value string
}

// LocalCinema is the client copy of a catalog cinema
type LocalCinema struct {
	ID               uint64 `boltholdKey:"ID"`
	DisplayName      string `boltholdIndex:"DisplayName"`
	Website          string
	Color            string
	ReliableMetadata bool
	LinkToShop       bool
}

// LocalMovie is the client copy of a catalog movie
type LocalMovie struct {
	ID          uint64 `boltholdKey:"ID"`
	DisplayName string `boltholdIndex:"DisplayName"`
	Aliases     []string

	Runtime     *int // Minutes
	ReleaseDate *time.Time
	TmdbID      *int
	Description string
	PosterURL   string
	TrailerURL  string
}

// LocalShowTime is the client copy of a catalog showtime
type LocalShowTime struct {
	ID       uint64 `boltholdKey:"ID"`
	MovieID  uint64 `boltholdIndex:"MovieID"`
	CinemaID uint64 `boltholdIndex:"CinemaID"`

	StartTime    time.Time         `boltholdIndex:"StartTime"`
	Language     models.Language   `boltholdIndex:"Language"`
	DubVariant   models.DubVariant `boltholdIndex:"DubVariant"`
	SpecialEvent string
	URL          string
	ShopURL      string
}

// Counts summarises the local store contents
type Counts struct {
	Cinemas   int
	Movies    int
	ShowTimes int
}

// EvictStats counts the records removed by an eviction
type EvictStats struct {
	ShowTimes int
	Movies    int
	Cinemas   int
}

// Total returns the number of removed records
func (s EvictStats) Total() int {
	return s.ShowTimes + s.Movies + s.Cinemas
}
