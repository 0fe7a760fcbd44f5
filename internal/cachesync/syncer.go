// Package cachesync keeps the local store in step with the published catalog.
package cachesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/amaumene/gokino/internal/catalog"
	"github.com/amaumene/gokino/internal/localstore"
	"github.com/amaumene/gokino/internal/metrics"
)

var (
	// ErrSyncUnavailable means the marker or the snapshot could not be fetched
	ErrSyncUnavailable = errors.New("catalog unavailable")
	// ErrApplyFailed means the snapshot was fetched but could not be stored
	ErrApplyFailed = errors.New("failed to apply snapshot")
)

// State is the position of the syncer in its state machine
type State string

const (
	StateStale   State = "stale"
	StateSyncing State = "syncing"
	StateFresh   State = "fresh"
)

// Outcome is the result of one poll
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged" // Marker equals the local version
	OutcomeUpdated   Outcome = "updated"   // A new snapshot was applied
	OutcomeFailed    Outcome = "failed"    // Fetch or apply failed, local data untouched
	OutcomeCoalesced Outcome = "coalesced" // Another poll was already running
)

// Source is the remote side of the sync
type Source interface {
	FetchVersion(ctx context.Context) (string, error)
	FetchSnapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// Store is the local side of the sync
type Store interface {
	Version() (string, error)
	ReplaceSnapshot(snapshot *catalog.Snapshot) error
	Evict(cutoff time.Time) (localstore.EvictStats, error)
}

// Status is a point-in-time view of the syncer
type Status struct {
	State    State
	Version  string
	LastPoll time.Time
	LastErr  error
}

// Syncer polls the catalog and replaces the local store when the version changes.
// Polls never overlap; a poll started while another runs returns OutcomeCoalesced.
type Syncer struct {
	source  Source
	store   Store
	grace   time.Duration
	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *logrus.Logger
	now     func() time.Time

	polling atomic.Bool

	mu       sync.RWMutex
	state    State
	lastPoll time.Time
	lastErr  error
}

// NewSyncer creates a syncer in the Stale state
func NewSyncer(source Source, store Store, grace time.Duration, m *metrics.Metrics, tracer trace.Tracer, logger *logrus.Logger) *Syncer {
	return &Syncer{
		source:  source,
		store:   store,
		grace:   grace,
		metrics: m,
		tracer:  tracer,
		logger:  logger,
		now:     time.Now,
		state:   StateStale,
	}
}

// State returns the current state
func (s *Syncer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns the state together with the local version and the last poll
func (s *Syncer) Status() Status {
	s.mu.RLock()
	status := Status{State: s.state, LastPoll: s.lastPoll, LastErr: s.lastErr}
	s.mu.RUnlock()

	if version, err := s.store.Version(); err == nil {
		status.Version = version
	}
	return status
}

// Poll compares the local version with the remote marker and pulls the snapshot
// on mismatch. Eviction runs after every poll that did not fail. Failures leave
// the local data untouched and are retried on the next poll only.
func (s *Syncer) Poll(ctx context.Context) (Outcome, error) {
	if !s.polling.CompareAndSwap(false, true) {
		s.metrics.SyncPolls.WithLabelValues(string(OutcomeCoalesced)).Inc()
		return OutcomeCoalesced, nil
	}
	defer s.polling.Store(false)

	ctx, span := s.tracer.Start(ctx, "cache.sync")
	defer span.End()

	outcome, err := s.poll(ctx)

	s.mu.Lock()
	s.lastPoll = s.now()
	s.lastErr = err
	s.mu.Unlock()

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.setState(StateStale)
		s.logger.WithError(err).Warn("Cache sync failed, keeping local data")
	} else {
		s.evict()
	}

	s.metrics.SyncPolls.WithLabelValues(string(outcome)).Inc()
	return outcome, err
}

func (s *Syncer) poll(ctx context.Context) (Outcome, error) {
	remote, err := s.source.FetchVersion(ctx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("%w: %v", ErrSyncUnavailable, err)
	}

	local, err := s.store.Version()
	if err != nil {
		// Unreadable version forces a full sync
		s.logger.WithError(err).Warn("Failed to read local version")
		local = ""
	}

	if local == remote {
		s.setState(StateFresh)
		s.logger.WithField("version", local).Debug("Local cache is up to date")
		return OutcomeUnchanged, nil
	}

	s.logger.WithFields(logrus.Fields{
		"local":  local,
		"remote": remote,
	}).Info("Catalog changed, syncing")
	s.setState(StateStale)
	s.setState(StateSyncing)

	snapshot, err := s.source.FetchSnapshot(ctx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("%w: %v", ErrSyncUnavailable, err)
	}
	// The marker may have moved on between the two requests; the snapshot's
	// own version is what gets stored.
	if snapshot.Version == "" {
		snapshot.Version = remote
	}

	if err := s.store.ReplaceSnapshot(snapshot); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: %v", ErrApplyFailed, err)
	}

	s.setState(StateFresh)
	s.logger.WithFields(logrus.Fields{
		"version":   snapshot.Version,
		"cinemas":   len(snapshot.Cinemas),
		"movies":    len(snapshot.Movies),
		"showtimes": len(snapshot.ShowTimes),
	}).Info("Local cache updated")
	return OutcomeUpdated, nil
}

// evict removes aged-out showtimes and the movies and cinemas left without any
func (s *Syncer) evict() {
	cutoff := s.now().Add(-s.grace)
	stats, err := s.store.Evict(cutoff)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to evict old records")
		return
	}

	s.metrics.Removed.WithLabelValues("local_showtime").Add(float64(stats.ShowTimes))
	s.metrics.Removed.WithLabelValues("local_movie").Add(float64(stats.Movies))
	s.metrics.Removed.WithLabelValues("local_cinema").Add(float64(stats.Cinemas))

	if stats.Total() > 0 {
		s.logger.WithFields(logrus.Fields{
			"showtimes": stats.ShowTimes,
			"movies":    stats.Movies,
			"cinemas":   stats.Cinemas,
		}).Info("Evicted old records")
	}
}

func (s *Syncer) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != state {
		s.logger.WithFields(logrus.Fields{
			"from": s.state,
			"to":   state,
		}).Debug("Sync state changed")
		s.state = state
	}
}
