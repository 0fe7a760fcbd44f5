package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = gorm.ErrRecordNotFound

// Database wraps the canonical catalog store
type Database struct {
	db *gorm.DB
}

// Counts summarises the catalog contents
type Counts struct {
	Cinemas           int64 `json:"cinemas"`
	Movies            int64 `json:"movies"`
	UpcomingShowTimes int64 `json:"upcoming_showtimes"`
}

// MovieKey is the lightweight projection used for near-duplicate checks
type MovieKey struct {
	ID      uint
	NameKey string
}

// NewDatabase opens (or creates) the SQLite catalog and migrates the schema
func NewDatabase(path string) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// SQLite has a single writer; one connection keeps run commits serialised
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(&Cinema{}, &Movie{}, &MovieAlias{}, &ShowTime{}, &ScrapeRun{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: gdb}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Cinema operations

// EnsureCinema creates the cinema or updates its attributes, matched by display name.
// The cinema ID is set on return.
func (db *Database) EnsureCinema(ctx context.Context, cinema *Cinema) error {
	// A map keeps false flags in the update
	attrs := map[string]interface{}{
		"website":           cinema.Website,
		"color":             cinema.Color,
		"reliable_metadata": cinema.ReliableMetadata,
		"link_to_shop":      cinema.LinkToShop,
	}
	wanted := *cinema
	err := db.db.WithContext(ctx).
		Where(Cinema{DisplayName: cinema.DisplayName}).
		Assign(attrs).
		FirstOrCreate(cinema).Error
	if err != nil {
		return err
	}

	cinema.Website = wanted.Website
	cinema.Color = wanted.Color
	cinema.ReliableMetadata = wanted.ReliableMetadata
	cinema.LinkToShop = wanted.LinkToShop
	return nil
}

// GetCinemas retrieves all cinemas ordered by name
func (db *Database) GetCinemas(ctx context.Context) ([]*Cinema, error) {
	var cinemas []*Cinema
	err := db.db.WithContext(ctx).Order("display_name").Find(&cinemas).Error
	return cinemas, err
}

// GetCinemasByIDs retrieves the given cinemas ordered by name
func (db *Database) GetCinemasByIDs(ctx context.Context, ids []uint) ([]*Cinema, error) {
	var cinemas []*Cinema
	if len(ids) == 0 {
		return cinemas, nil
	}
	err := db.db.WithContext(ctx).Where("id IN ?", ids).Order("display_name").Find(&cinemas).Error
	return cinemas, err
}

// Movie operations

// FindMovieByKey retrieves the movie whose display name key or any alias key equals key
func (db *Database) FindMovieByKey(ctx context.Context, key string) (*Movie, error) {
	var movie Movie
	err := db.db.WithContext(ctx).Preload("Aliases").Where("name_key = ?", key).First(&movie).Error
	if err == nil {
		return &movie, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Lowest movie ID wins when several movies share an alias key
	var alias MovieAlias
	err = db.db.WithContext(ctx).Where("alias_key = ?", key).Order("movie_id").First(&alias).Error
	if err != nil {
		return nil, err
	}
	return db.GetMovieByID(ctx, alias.MovieID)
}

// GetMovieByID retrieves a movie with its aliases
func (db *Database) GetMovieByID(ctx context.Context, id uint) (*Movie, error) {
	var movie Movie
	err := db.db.WithContext(ctx).Preload("Aliases").First(&movie, id).Error
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// GetMoviesByIDs retrieves the given movies with aliases, ordered by name
func (db *Database) GetMoviesByIDs(ctx context.Context, ids []uint) ([]*Movie, error) {
	var movies []*Movie
	if len(ids) == 0 {
		return movies, nil
	}
	err := db.db.WithContext(ctx).Preload("Aliases").Where("id IN ?", ids).Order("display_name").Find(&movies).Error
	return movies, err
}

// GetMovieKeys retrieves the ID and name key of every movie
func (db *Database) GetMovieKeys(ctx context.Context) ([]MovieKey, error) {
	var keys []MovieKey
	err := db.db.WithContext(ctx).Model(&Movie{}).Select("id", "name_key").Find(&keys).Error
	return keys, err
}

// CreateMovie creates a new movie together with its aliases
func (db *Database) CreateMovie(ctx context.Context, movie *Movie) error {
	return db.db.WithContext(ctx).Create(movie).Error
}

// AddAlias records an alias for a movie; adding a known alias is a no-op
func (db *Database) AddAlias(ctx context.Context, movieID uint, value, key string) error {
	alias := MovieAlias{MovieID: movieID, Value: value, Key: key}
	return db.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&alias).Error
}

// UpdateMovieMetadata persists the optional metadata fields of a movie
func (db *Database) UpdateMovieMetadata(ctx context.Context, movie *Movie) error {
	return db.db.WithContext(ctx).Model(movie).Select(
		"RuntimeMinutes", "ReleaseDate", "TmdbID", "Description", "PosterURL", "TrailerURL",
	).Updates(movie).Error
}

// ShowTime operations

// ReplaceFutureShowTimes atomically replaces every showtime of a cinema starting at or
// after from with the given set. Either the whole set is stored or nothing changes.
func (db *Database) ReplaceFutureShowTimes(ctx context.Context, cinemaID uint, from time.Time, showTimes []*ShowTime) error {
	return db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cinema_id = ? AND start_time >= ?", cinemaID, from.UTC()).Delete(&ShowTime{}).Error; err != nil {
			return fmt.Errorf("failed to delete showtimes: %w", err)
		}
		if len(showTimes) == 0 {
			return nil
		}
		if err := tx.Omit(clause.Associations).CreateInBatches(showTimes, 100).Error; err != nil {
			return fmt.Errorf("failed to insert showtimes: %w", err)
		}
		return nil
	})
}

// GetShowTimesFrom retrieves all showtimes starting at or after from, ordered by start
func (db *Database) GetShowTimesFrom(ctx context.Context, from time.Time) ([]*ShowTime, error) {
	var showTimes []*ShowTime
	err := db.db.WithContext(ctx).
		Where("start_time >= ?", from.UTC()).
		Order("start_time, id").
		Find(&showTimes).Error
	return showTimes, err
}

// DeleteShowTimesBefore deletes showtimes starting before cutoff
func (db *Database) DeleteShowTimesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := db.db.WithContext(ctx).Where("start_time < ?", cutoff.UTC()).Delete(&ShowTime{})
	return res.RowsAffected, res.Error
}

// GetCounts counts cinemas, movies and showtimes starting at or after from
func (db *Database) GetCounts(ctx context.Context, from time.Time) (Counts, error) {
	var counts Counts
	if err := db.db.WithContext(ctx).Model(&Cinema{}).Count(&counts.Cinemas).Error; err != nil {
		return counts, err
	}
	if err := db.db.WithContext(ctx).Model(&Movie{}).Count(&counts.Movies).Error; err != nil {
		return counts, err
	}
	err := db.db.WithContext(ctx).Model(&ShowTime{}).Where("start_time >= ?", from.UTC()).Count(&counts.UpcomingShowTimes).Error
	return counts, err
}

// ScrapeRun operations

// CreateScrapeRun records the start of a source run
func (db *Database) CreateScrapeRun(ctx context.Context, run *ScrapeRun) error {
	return db.db.WithContext(ctx).Create(run).Error
}

// UpdateScrapeRun records the outcome of a source run
func (db *Database) UpdateScrapeRun(ctx context.Context, run *ScrapeRun) error {
	return db.db.WithContext(ctx).Save(run).Error
}

// GetRecentScrapeRuns retrieves the latest source runs, newest first
func (db *Database) GetRecentScrapeRuns(ctx context.Context, limit int) ([]*ScrapeRun, error) {
	var runs []*ScrapeRun
	err := db.db.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&runs).Error
	return runs, err
}
