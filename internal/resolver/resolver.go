// Package resolver turns raw showings into canonical movies and showtimes.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/classify"
	"github.com/amaumene/gokino/internal/models"
	"github.com/amaumene/gokino/internal/normalize"
	"github.com/amaumene/gokino/internal/utils"
)

var (
	ErrMalformed   = errors.New("malformed showing")
	ErrPast        = errors.New("showing starts in the past")
	ErrNotBookable = errors.New("showing is neither bookable nor reservable")
	ErrIgnored     = errors.New("showing is on the ignore list")
	ErrDuplicate   = errors.New("duplicate showing")
	ErrRunClosed   = errors.New("run already committed or rolled back")
)

// IsSkip reports whether err only means the showing was not imported
func IsSkip(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrPast) ||
		errors.Is(err, ErrNotBookable) ||
		errors.Is(err, ErrIgnored) ||
		errors.Is(err, ErrDuplicate)
}

// nearDuplicateDistance is the edit distance below which a new movie is reported as a possible split
const nearDuplicateDistance = 2

// Options are the per-source settings of a run
type Options struct {
	Markers []string          // Special-event markers of the source
	Ignore  *utils.IgnoreList // Titles or URLs never imported
}

// Resolver maps raw titles to movies. It is safe for concurrent use;
// movie find-or-create is serialised process wide.
type Resolver struct {
	db     *models.Database
	movies *cache.Cache // name or alias key -> *models.Movie
	mu     sync.Mutex
	logger *logrus.Logger
	now    func() time.Time
}

// NewResolver creates a new resolver
func NewResolver(db *models.Database, logger *logrus.Logger) *Resolver {
	return &Resolver{
		db:     db,
		movies: cache.New(time.Hour, 10*time.Minute),
		logger: logger,
		now:    time.Now,
	}
}

// Begin opens a unit of work for one source run
func (r *Resolver) Begin(ctx context.Context, cinema *models.Cinema, opts Options) *Run {
	return &Run{
		resolver:  r,
		cinema:    cinema,
		opts:      opts,
		startedAt: r.now().UTC(),
		seen:      make(map[showKey]*models.ShowTime),
	}
}

// resolveMovie finds the movie for a normalized title or creates it
func (r *Resolver) resolveMovie(ctx context.Context, cinema *models.Cinema, rawTitle string, title normalize.Result, meta *models.MovieMetadata) (*models.Movie, error) {
	key := normalize.Key(title.Canonical)

	r.mu.Lock()
	defer r.mu.Unlock()

	movie, err := r.lookup(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return r.createMovie(ctx, cinema, key, rawTitle, title.Canonical, meta)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find movie: %w", err)
	}

	for _, value := range []string{rawTitle, title.Canonical} {
		if movie.HasAlias(value) {
			continue
		}
		aliasKey := normalize.Key(value)
		if err := r.db.AddAlias(ctx, movie.ID, value, aliasKey); err != nil {
			return nil, fmt.Errorf("failed to add alias: %w", err)
		}
		movie.Aliases = append(movie.Aliases, models.MovieAlias{MovieID: movie.ID, Value: value, Key: aliasKey})
		r.logger.WithFields(logrus.Fields{
			"movie_id": movie.ID,
			"movie":    movie.DisplayName,
			"alias":    value,
		}).Debug("Added movie alias")
	}

	if cinema.ReliableMetadata && movie.Backfill(meta) {
		if err := r.db.UpdateMovieMetadata(ctx, movie); err != nil {
			return nil, fmt.Errorf("failed to update movie metadata: %w", err)
		}
	}

	return movie, nil
}

// lookup checks the cache before the database. Callers hold r.mu.
func (r *Resolver) lookup(ctx context.Context, key string) (*models.Movie, error) {
	if cached, ok := r.movies.Get(key); ok {
		return cached.(*models.Movie), nil
	}

	movie, err := r.db.FindMovieByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	r.movies.SetDefault(key, movie)
	return movie, nil
}

// createMovie creates a movie named after the canonical title. Callers hold r.mu.
func (r *Resolver) createMovie(ctx context.Context, cinema *models.Cinema, key, rawTitle, canonical string, meta *models.MovieMetadata) (*models.Movie, error) {
	r.warnNearDuplicates(ctx, key, canonical)

	movie := &models.Movie{
		DisplayName: canonical,
		NameKey:     key,
		Aliases:     []models.MovieAlias{{Value: canonical, Key: key}},
	}
	if rawTitle != canonical {
		movie.Aliases = append(movie.Aliases, models.MovieAlias{Value: rawTitle, Key: normalize.Key(rawTitle)})
	}
	if cinema.ReliableMetadata {
		movie.Backfill(meta)
	}

	if err := r.db.CreateMovie(ctx, movie); err != nil {
		// Another writer may have created it meanwhile
		if existing, findErr := r.db.FindMovieByKey(ctx, key); findErr == nil {
			r.movies.SetDefault(key, existing)
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create movie: %w", err)
	}

	r.movies.SetDefault(key, movie)
	r.logger.WithFields(logrus.Fields{
		"movie_id": movie.ID,
		"movie":    movie.DisplayName,
		"cinema":   cinema.DisplayName,
	}).Info("Created movie")
	return movie, nil
}

// warnNearDuplicates logs existing movies whose key is a few edits away.
// They are never merged automatically.
func (r *Resolver) warnNearDuplicates(ctx context.Context, key, canonical string) {
	if len(key) <= 2*nearDuplicateDistance {
		return
	}

	keys, err := r.db.GetMovieKeys(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to load movie keys for duplicate check")
		return
	}

	for _, existing := range keys {
		if existing.NameKey == key {
			continue
		}
		if levenshtein.ComputeDistance(existing.NameKey, key) <= nearDuplicateDistance {
			r.logger.WithFields(logrus.Fields{
				"title":       canonical,
				"existing_id": existing.ID,
				"existing":    existing.NameKey,
			}).Warn("Possible duplicate movie")
		}
	}
}

// Stats counts the outcome of the showings resolved in a run
type Stats struct {
	Accepted   int
	Skipped    int
	Duplicates int
}

type showKey struct {
	movieID uint
	start   int64
}

// Run is the unit of work of one source run. Showtimes are buffered until
// Commit replaces the cinema's future showtimes with them in one transaction.
type Run struct {
	resolver  *Resolver
	cinema    *models.Cinema
	opts      Options
	startedAt time.Time

	mu        sync.Mutex
	showTimes []*models.ShowTime
	seen      map[showKey]*models.ShowTime
	stats     Stats
	closed    bool
}

// Cinema returns the cinema the run imports for
func (run *Run) Cinema() *models.Cinema {
	return run.cinema
}

// Resolve validates a raw showing and buffers the resulting showtime.
// Skipped showings return an error for which IsSkip is true.
func (run *Run) Resolve(ctx context.Context, raw models.RawShowing) (*models.ShowTime, error) {
	if run.isClosed() {
		return nil, ErrRunClosed
	}
	if err := run.filter(raw); err != nil {
		run.count(func(s *Stats) { s.Skipped++ })
		return nil, err
	}

	title := normalize.Title(raw.Title, run.opts.Markers)
	movie, err := run.resolver.resolveMovie(ctx, run.cinema, raw.Title, title, raw.Metadata)
	if err != nil {
		return nil, err
	}

	dubVariant := raw.DubVariant
	if dubVariant == "" {
		dubVariant = classify.DubVariant(raw.Hint)
		if dubVariant == models.DubRegular {
			dubVariant = classify.DubVariant(title.Annotation)
		}
	}

	specialEvent := raw.SpecialEvent
	if specialEvent == "" {
		specialEvent = title.SpecialEvent
	}

	url := raw.URL
	if url == "" {
		url = run.cinema.Website
	}

	showTime := &models.ShowTime{
		MovieID:      movie.ID,
		CinemaID:     run.cinema.ID,
		StartTime:    raw.StartTime.UTC(),
		Language:     classify.Language(strings.TrimSpace(raw.Hint + " " + title.Annotation)),
		DubVariant:   dubVariant,
		SpecialEvent: specialEvent,
		URL:          url,
		ShopURL:      raw.ShopURL,
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	if run.closed {
		return nil, ErrRunClosed
	}
	key := showKey{movieID: movie.ID, start: showTime.StartTime.UnixNano()}
	if existing, ok := run.seen[key]; ok {
		run.stats.Duplicates++
		return existing, ErrDuplicate
	}
	run.seen[key] = showTime
	run.showTimes = append(run.showTimes, showTime)
	run.stats.Accepted++
	return showTime, nil
}

// filter applies the import policy before any resolution happens
func (run *Run) filter(raw models.RawShowing) error {
	if strings.TrimSpace(raw.Title) == "" || raw.StartTime.IsZero() {
		return ErrMalformed
	}
	if raw.StartTime.Before(run.resolver.now()) {
		return ErrPast
	}
	if raw.BookingKnown && !raw.Bookable && !raw.Reservable {
		return ErrNotBookable
	}
	if matched, term := run.opts.Ignore.Matches(raw.Title, raw.URL); matched {
		return fmt.Errorf("%w: %s", ErrIgnored, term)
	}
	return nil
}

func (run *Run) isClosed() bool {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.closed
}

func (run *Run) count(update func(*Stats)) {
	run.mu.Lock()
	update(&run.stats)
	run.mu.Unlock()
}

// Stats returns the counters of the run so far
func (run *Run) Stats() Stats {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.stats
}

// Commit stores the buffered showtimes, replacing the cinema's future showtimes.
// Either the whole set is stored or nothing changes.
func (run *Run) Commit(ctx context.Context) error {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.closed {
		return ErrRunClosed
	}
	run.closed = true

	if err := run.resolver.db.ReplaceFutureShowTimes(ctx, run.cinema.ID, run.startedAt, run.showTimes); err != nil {
		return fmt.Errorf("failed to commit showtimes for %s: %w", run.cinema.DisplayName, err)
	}
	return nil
}

// Rollback discards the buffered showtimes. Rolling back a closed run is a no-op.
func (run *Run) Rollback() {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.closed {
		return
	}
	run.closed = true
	run.showTimes = nil
	run.seen = nil
}
