// Package localstore is the client copy of the catalog, kept in a bolthold file.
package localstore

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"

	"github.com/amaumene/gokino/internal/catalog"
)

// versionKey holds the version of the applied snapshot
const versionKey = "dataVersion"

// Store wraps the bolthold store
type Store struct {
	store *bolthold.Store
}

// Open opens (or creates) the local store
func Open(path string) (*Store, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	return &Store{store: store}, nil
}

// Close closes the local store
func (s *Store) Close() error {
	return s.store.Close()
}

// Version returns the version of the applied snapshot, or "" before the first sync
func (s *Store) Version() (string, error) {
	var config Configuration
	err := s.store.Get(versionKey, &config)
	if errors.Is(err, bolthold.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return config.Value, nil
}

// ReplaceSnapshot clears all three tables, loads the snapshot and records its
// version in a single transaction. On error nothing changes.
func (s *Store) ReplaceSnapshot(snapshot *catalog.Snapshot) error {
	return s.store.Bolt().Update(func(tx *bbolt.Tx) error {
		if err := s.store.TxDeleteMatching(tx, &LocalShowTime{}, &bolthold.Query{}); err != nil {
			return fmt.Errorf("failed to clear showtimes: %w", err)
		}
		if err := s.store.TxDeleteMatching(tx, &LocalMovie{}, &bolthold.Query{}); err != nil {
			return fmt.Errorf("failed to clear movies: %w", err)
		}
		if err := s.store.TxDeleteMatching(tx, &LocalCinema{}, &bolthold.Query{}); err != nil {
			return fmt.Errorf("failed to clear cinemas: %w", err)
		}

		for _, c := range snapshot.Cinemas {
			cinema := &LocalCinema{
				ID:               uint64(c.ID),
				DisplayName:      c.DisplayName,
				Website:          c.Website,
				Color:            c.Color,
				ReliableMetadata: c.ReliableMetadata,
				LinkToShop:       c.LinkToShop,
			}
			if err := s.store.TxInsert(tx, cinema.ID, cinema); err != nil {
				return fmt.Errorf("failed to insert cinema %d: %w", c.ID, err)
			}
		}

		for _, m := range snapshot.Movies {
			movie := &LocalMovie{
				ID:          uint64(m.ID),
				DisplayName: m.DisplayName,
				Aliases:     m.Aliases,
				Runtime:     m.Runtime,
				ReleaseDate: m.ReleaseDate,
				TmdbID:      m.TmdbID,
				Description: m.Description,
				PosterURL:   m.PosterURL,
				TrailerURL:  m.TrailerURL,
			}
			if err := s.store.TxInsert(tx, movie.ID, movie); err != nil {
				return fmt.Errorf("failed to insert movie %d: %w", m.ID, err)
			}
		}

		for _, st := range snapshot.ShowTimes {
			showTime := &LocalShowTime{
				ID:           uint64(st.ID),
				MovieID:      uint64(st.Movie),
				CinemaID:     uint64(st.Cinema),
				StartTime:    st.StartTime.UTC(),
				Language:     st.Language,
				DubVariant:   st.DubVariant,
				SpecialEvent: st.SpecialEvent,
				URL:          st.URL,
				ShopURL:      st.ShopURL,
			}
			if err := s.store.TxInsert(tx, showTime.ID, showTime); err != nil {
				return fmt.Errorf("failed to insert showtime %d: %w", st.ID, err)
			}
		}

		version := &Configuration{ID: versionKey, Value: snapshot.Version}
		if err := s.store.TxUpsert(tx, versionKey, version); err != nil {
			return fmt.Errorf("failed to store version: %w", err)
		}
		return nil
	})
}

// Evict deletes showtimes starting before cutoff, then movies and cinemas
// no remaining showtime references.
func (s *Store) Evict(cutoff time.Time) (EvictStats, error) {
	var stats EvictStats

	err := s.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var old []LocalShowTime
		if err := s.store.TxFind(tx, &old, bolthold.Where("StartTime").Lt(cutoff.UTC())); err != nil {
			return fmt.Errorf("failed to find old showtimes: %w", err)
		}
		for _, st := range old {
			if err := s.store.TxDelete(tx, st.ID, &LocalShowTime{}); err != nil {
				return fmt.Errorf("failed to delete showtime %d: %w", st.ID, err)
			}
		}
		stats.ShowTimes = len(old)

		var remaining []LocalShowTime
		if err := s.store.TxFind(tx, &remaining, nil); err != nil {
			return fmt.Errorf("failed to find showtimes: %w", err)
		}
		usedMovies := make(map[uint64]bool)
		usedCinemas := make(map[uint64]bool)
		for _, st := range remaining {
			usedMovies[st.MovieID] = true
			usedCinemas[st.CinemaID] = true
		}

		var movies []LocalMovie
		if err := s.store.TxFind(tx, &movies, nil); err != nil {
			return fmt.Errorf("failed to find movies: %w", err)
		}
		for _, m := range movies {
			if usedMovies[m.ID] {
				continue
			}
			if err := s.store.TxDelete(tx, m.ID, &LocalMovie{}); err != nil {
				return fmt.Errorf("failed to delete movie %d: %w", m.ID, err)
			}
			stats.Movies++
		}

		var cinemas []LocalCinema
		if err := s.store.TxFind(tx, &cinemas, nil); err != nil {
			return fmt.Errorf("failed to find cinemas: %w", err)
		}
		for _, c := range cinemas {
			if usedCinemas[c.ID] {
				continue
			}
			if err := s.store.TxDelete(tx, c.ID, &LocalCinema{}); err != nil {
				return fmt.Errorf("failed to delete cinema %d: %w", c.ID, err)
			}
			stats.Cinemas++
		}
		return nil
	})
	if err != nil {
		return EvictStats{}, err
	}
	return stats, nil
}

// Counts returns the number of records per table
func (s *Store) Counts() (Counts, error) {
	var counts Counts

	var cinemas []LocalCinema
	if err := s.store.Find(&cinemas, nil); err != nil {
		return counts, err
	}
	var movies []LocalMovie
	if err := s.store.Find(&movies, nil); err != nil {
		return counts, err
	}
	var showTimes []LocalShowTime
	if err := s.store.Find(&showTimes, nil); err != nil {
		return counts, err
	}

	counts.Cinemas = len(cinemas)
	counts.Movies = len(movies)
	counts.ShowTimes = len(showTimes)
	return counts, nil
}

// Query helpers

// CinemasWithShowTimes returns the cinemas that have at least one showtime, ordered by name
func (s *Store) CinemasWithShowTimes() ([]*LocalCinema, error) {
	var showTimes []LocalShowTime
	if err := s.store.Find(&showTimes, nil); err != nil {
		return nil, err
	}
	used := make(map[uint64]bool)
	for _, st := range showTimes {
		used[st.CinemaID] = true
	}

	var cinemas []*LocalCinema
	if err := s.store.Find(&cinemas, nil); err != nil {
		return nil, err
	}
	result := make([]*LocalCinema, 0, len(cinemas))
	for _, c := range cinemas {
		if used[c.ID] {
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].DisplayName < result[j].DisplayName })
	return result, nil
}

// MoviesWithShowTimes returns the movies that have at least one showtime, ordered by name
func (s *Store) MoviesWithShowTimes() ([]*LocalMovie, error) {
	var showTimes []LocalShowTime
	if err := s.store.Find(&showTimes, nil); err != nil {
		return nil, err
	}
	used := make(map[uint64]bool)
	for _, st := range showTimes {
		used[st.MovieID] = true
	}

	var movies []*LocalMovie
	if err := s.store.Find(&movies, nil); err != nil {
		return nil, err
	}
	result := make([]*LocalMovie, 0, len(movies))
	for _, m := range movies {
		if used[m.ID] {
			result = append(result, m)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].DisplayName < result[j].DisplayName })
	return result, nil
}

// ShowTimesBetween returns the showtimes starting in [from, to), ordered by start
func (s *Store) ShowTimesBetween(from, to time.Time) ([]*LocalShowTime, error) {
	var showTimes []*LocalShowTime
	query := bolthold.Where("StartTime").Ge(from.UTC()).And("StartTime").Lt(to.UTC()).SortBy("StartTime", "ID")
	if err := s.store.Find(&showTimes, query); err != nil {
		return nil, err
	}
	return showTimes, nil
}
