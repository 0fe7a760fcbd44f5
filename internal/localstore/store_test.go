package localstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/amaumene/gokino/internal/catalog"
	"github.com/amaumene/gokino/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSnapshot(version string, base time.Time) *catalog.Snapshot {
	return &catalog.Snapshot{
		Version: version,
		Cinemas: []catalog.Cinema{
			{ID: 1, DisplayName: "Astor", Website: "https://astor.example"},
			{ID: 2, DisplayName: "Apollo", Website: "https://apollo.example"},
		},
		Movies: []catalog.Movie{
			{ID: 10, DisplayName: "Dune: Part Two", Aliases: []string{"DUNE: PART TWO (OmU)"}},
			{ID: 11, DisplayName: "Anora"},
		},
		ShowTimes: []catalog.ShowTime{
			{ID: 100, Movie: 10, Cinema: 1, StartTime: base.Add(-3 * time.Hour), Language: models.LanguageEnglish, DubVariant: models.DubSubtitled, URL: "u"},
			{ID: 101, Movie: 10, Cinema: 1, StartTime: base.Add(2 * time.Hour), Language: models.LanguageGerman, DubVariant: models.DubRegular, URL: "u"},
			{ID: 102, Movie: 11, Cinema: 2, StartTime: base.Add(-2 * time.Hour), Language: models.LanguageGerman, DubVariant: models.DubRegular, URL: "u"},
			{ID: 103, Movie: 10, Cinema: 1, StartTime: base.Add(30 * time.Minute), Language: models.LanguageGerman, DubVariant: models.DubRegular, URL: "u"},
		},
	}
}

func TestVersionBeforeFirstSync(t *testing.T) {
	store := newTestStore(t)

	version, err := store.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version != "" {
		t.Errorf("expected empty version, got %q", version)
	}
}

func TestReplaceSnapshot(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2030, 5, 20, 18, 0, 0, 0, time.UTC)

	if err := store.ReplaceSnapshot(testSnapshot("v1", base)); err != nil {
		t.Fatalf("ReplaceSnapshot failed: %v", err)
	}

	second := &catalog.Snapshot{
		Version: "v2",
		Cinemas: []catalog.Cinema{{ID: 2, DisplayName: "Apollo", ReliableMetadata: true, LinkToShop: true}},
		Movies:  []catalog.Movie{{ID: 11, DisplayName: "Anora"}},
		ShowTimes: []catalog.ShowTime{
			{ID: 200, Movie: 11, Cinema: 2, StartTime: base, Language: models.LanguageGerman, DubVariant: models.DubRegular},
		},
	}
	if err := store.ReplaceSnapshot(second); err != nil {
		t.Fatalf("second ReplaceSnapshot failed: %v", err)
	}

	version, err := store.Version()
	if err != nil || version != "v2" {
		t.Errorf("expected version v2, got %q (%v)", version, err)
	}

	counts, err := store.Counts()
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts != (Counts{Cinemas: 1, Movies: 1, ShowTimes: 1}) {
		t.Errorf("expected the previous data to be gone, got %+v", counts)
	}

	cinemas, err := store.CinemasWithShowTimes()
	if err != nil {
		t.Fatalf("CinemasWithShowTimes failed: %v", err)
	}
	if len(cinemas) != 1 || !cinemas[0].ReliableMetadata || !cinemas[0].LinkToShop {
		t.Errorf("expected cinema flags to be stored, got %+v", cinemas)
	}
}

func TestEvictRemovesOldShowTimesThenOrphans(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2030, 5, 20, 18, 0, 0, 0, time.UTC)

	if err := store.ReplaceSnapshot(testSnapshot("v1", base)); err != nil {
		t.Fatalf("ReplaceSnapshot failed: %v", err)
	}

	// Cutoff is now - 1h grace
	stats, err := store.Evict(base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if stats != (EvictStats{ShowTimes: 2, Movies: 1, Cinemas: 1}) {
		t.Errorf("unexpected evict stats %+v", stats)
	}

	cinemas, err := store.CinemasWithShowTimes()
	if err != nil {
		t.Fatalf("CinemasWithShowTimes failed: %v", err)
	}
	if len(cinemas) != 1 || cinemas[0].DisplayName != "Astor" {
		t.Errorf("expected only Astor, got %+v", cinemas)
	}

	counts, _ := store.Counts()
	if counts != (Counts{Cinemas: 1, Movies: 1, ShowTimes: 2}) {
		t.Errorf("unexpected counts %+v", counts)
	}

	// Version is not touched by eviction
	if version, _ := store.Version(); version != "v1" {
		t.Errorf("expected version v1, got %q", version)
	}
}

func TestQueryHelpers(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2030, 5, 20, 18, 0, 0, 0, time.UTC)

	if err := store.ReplaceSnapshot(testSnapshot("v1", base)); err != nil {
		t.Fatalf("ReplaceSnapshot failed: %v", err)
	}

	cinemas, err := store.CinemasWithShowTimes()
	if err != nil {
		t.Fatalf("CinemasWithShowTimes failed: %v", err)
	}
	if len(cinemas) != 2 || cinemas[0].DisplayName != "Apollo" || cinemas[1].DisplayName != "Astor" {
		t.Errorf("expected cinemas ordered by name, got %+v", cinemas)
	}

	movies, err := store.MoviesWithShowTimes()
	if err != nil {
		t.Fatalf("MoviesWithShowTimes failed: %v", err)
	}
	if len(movies) != 2 || movies[0].DisplayName != "Anora" {
		t.Errorf("expected movies ordered by name, got %+v", movies)
	}

	showTimes, err := store.ShowTimesBetween(base, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("ShowTimesBetween failed: %v", err)
	}
	if len(showTimes) != 2 {
		t.Fatalf("expected 2 showtimes, got %d", len(showTimes))
	}
	if showTimes[0].ID != 103 || showTimes[1].ID != 101 {
		t.Errorf("expected showtimes ordered by start, got %d, %d", showTimes[0].ID, showTimes[1].ID)
	}
	if !showTimes[0].StartTime.Equal(base.Add(30 * time.Minute)) {
		t.Errorf("unexpected start time %s", showTimes[0].StartTime)
	}
}
