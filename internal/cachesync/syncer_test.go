package cachesync

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/catalog"
	"github.com/amaumene/gokino/internal/localstore"
	"github.com/amaumene/gokino/internal/metrics"
	"github.com/amaumene/gokino/internal/models"
	"github.com/amaumene/gokino/internal/telemetry"
)

var base = time.Date(2030, 5, 20, 18, 0, 0, 0, time.UTC)

// fakeSource serves a snapshot and counts the requests it gets
type fakeSource struct {
	mu             sync.Mutex
	snapshot       *catalog.Snapshot
	versionErr     error
	snapshotErr    error
	versionCalls   int
	snapshotCalls  int
	blockVersion   chan struct{}
	enteredVersion chan struct{}
}

func (f *fakeSource) FetchVersion(ctx context.Context) (string, error) {
	if f.enteredVersion != nil {
		close(f.enteredVersion)
		<-f.blockVersion
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionCalls++
	if f.versionErr != nil {
		return "", f.versionErr
	}
	return f.snapshot.Version, nil
}

func (f *fakeSource) FetchSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls++
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	copied := *f.snapshot
	return &copied, nil
}

// failingStore refuses every snapshot
type failingStore struct {
	*localstore.Store
}

func (s failingStore) ReplaceSnapshot(snapshot *catalog.Snapshot) error {
	return errors.New("disk full")
}

func snapshotAt(version string) *catalog.Snapshot {
	return &catalog.Snapshot{
		Version: version,
		Cinemas: []catalog.Cinema{{ID: 1, DisplayName: "Astor"}, {ID: 2, DisplayName: "Apollo"}},
		Movies:  []catalog.Movie{{ID: 10, DisplayName: "Dune: Part Two"}, {ID: 11, DisplayName: "Anora"}},
		ShowTimes: []catalog.ShowTime{
			{ID: 100, Movie: 10, Cinema: 1, StartTime: base.Add(2 * time.Hour), Language: models.LanguageEnglish, DubVariant: models.DubSubtitled},
			{ID: 101, Movie: 11, Cinema: 2, StartTime: base.Add(-3 * time.Hour), Language: models.LanguageGerman, DubVariant: models.DubRegular},
		},
	}
}

func newTestStore(t *testing.T) *localstore.Store {
	t.Helper()

	store, err := localstore.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSyncer(source Source, store Store) *Syncer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := NewSyncer(source, store, time.Hour, metrics.New(), telemetry.Tracer(telemetry.NewTracerProvider(logger)), logger)
	s.now = func() time.Time { return base }
	return s
}

func dump(t *testing.T, store *localstore.Store) []*localstore.LocalShowTime {
	t.Helper()

	showTimes, err := store.ShowTimesBetween(base.Add(-24*time.Hour), base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ShowTimesBetween failed: %v", err)
	}
	return showTimes
}

func TestPollUpdatesThenSkipsUnchangedMarker(t *testing.T) {
	source := &fakeSource{snapshot: snapshotAt("v1")}
	store := newTestStore(t)
	s := newTestSyncer(source, store)

	if s.State() != StateStale {
		t.Fatalf("expected initial state stale, got %s", s.State())
	}

	outcome, err := s.Poll(context.Background())
	if err != nil || outcome != OutcomeUpdated {
		t.Fatalf("expected updated, got %s (%v)", outcome, err)
	}
	if s.State() != StateFresh {
		t.Errorf("expected fresh, got %s", s.State())
	}

	outcome, err = s.Poll(context.Background())
	if err != nil || outcome != OutcomeUnchanged {
		t.Fatalf("expected unchanged, got %s (%v)", outcome, err)
	}
	if source.snapshotCalls != 1 {
		t.Errorf("expected 1 snapshot fetch, got %d", source.snapshotCalls)
	}
	if source.versionCalls != 2 {
		t.Errorf("expected 2 version checks, got %d", source.versionCalls)
	}
	if got := s.Status().Version; got != "v1" {
		t.Errorf("expected local version v1, got %q", got)
	}
}

func TestPollEvictsAfterSync(t *testing.T) {
	store := newTestStore(t)
	s := newTestSyncer(&fakeSource{snapshot: snapshotAt("v1")}, store)

	if _, err := s.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	counts, err := store.Counts()
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	// Showtime 101 started 3h before now with a 1h grace; Anora and Apollo go with it
	if counts != (localstore.Counts{Cinemas: 1, Movies: 1, ShowTimes: 1}) {
		t.Errorf("unexpected counts after eviction %+v", counts)
	}
}

func TestFetchFailureLeavesDataUntouched(t *testing.T) {
	tests := []struct {
		name        string
		versionErr  error
		snapshotErr error
	}{
		{"marker unreachable", errors.New("connection refused"), nil},
		{"snapshot unreachable", nil, errors.New("timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			// Previous data, including a showtime eviction would remove
			if err := store.ReplaceSnapshot(snapshotAt("v1")); err != nil {
				t.Fatalf("ReplaceSnapshot failed: %v", err)
			}
			before := dump(t, store)

			source := &fakeSource{snapshot: snapshotAt("v2"), versionErr: tt.versionErr, snapshotErr: tt.snapshotErr}
			s := newTestSyncer(source, store)

			outcome, err := s.Poll(context.Background())
			if outcome != OutcomeFailed || !errors.Is(err, ErrSyncUnavailable) {
				t.Fatalf("expected a failed poll with ErrSyncUnavailable, got %s (%v)", outcome, err)
			}
			if s.State() != StateStale {
				t.Errorf("expected stale, got %s", s.State())
			}
			if !reflect.DeepEqual(before, dump(t, store)) {
				t.Error("local data changed after a failed sync")
			}
			if version, _ := store.Version(); version != "v1" {
				t.Errorf("expected version v1, got %q", version)
			}
			if s.Status().LastErr == nil {
				t.Error("expected the error to be kept for status")
			}
		})
	}
}

func TestApplyFailure(t *testing.T) {
	store := newTestStore(t)
	s := newTestSyncer(&fakeSource{snapshot: snapshotAt("v1")}, failingStore{store})

	outcome, err := s.Poll(context.Background())
	if outcome != OutcomeFailed || !errors.Is(err, ErrApplyFailed) {
		t.Fatalf("expected ErrApplyFailed, got %s (%v)", outcome, err)
	}
	if s.State() != StateStale {
		t.Errorf("expected stale, got %s", s.State())
	}
	if version, _ := store.Version(); version != "" {
		t.Errorf("expected no version, got %q", version)
	}
}

func TestConcurrentPollsAreCoalesced(t *testing.T) {
	source := &fakeSource{
		snapshot:       snapshotAt("v1"),
		blockVersion:   make(chan struct{}),
		enteredVersion: make(chan struct{}),
	}
	s := newTestSyncer(source, newTestStore(t))

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := s.Poll(context.Background())
		done <- outcome
	}()
	<-source.enteredVersion

	outcome, err := s.Poll(context.Background())
	if err != nil || outcome != OutcomeCoalesced {
		t.Errorf("expected coalesced, got %s (%v)", outcome, err)
	}

	close(source.blockVersion)
	if first := <-done; first != OutcomeUpdated {
		t.Errorf("expected the first poll to update, got %s", first)
	}
	if source.versionCalls != 1 {
		t.Errorf("expected 1 version check, got %d", source.versionCalls)
	}
}
