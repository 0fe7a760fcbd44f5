package scrapers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/gokino/internal/config"
	"github.com/amaumene/gokino/internal/models"
	"github.com/amaumene/gokino/internal/resolver"
)

// recordingSink keeps every showing it receives
type recordingSink struct {
	showings []models.RawShowing
	err      error
}

func (s *recordingSink) Resolve(ctx context.Context, raw models.RawShowing) (*models.ShowTime, error) {
	s.showings = append(s.showings, raw)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ShowTime{}, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testFetcher(retries int) *Fetcher {
	f := NewFetcher(5*time.Second, retries, testLogger())
	f.initialInterval = time.Millisecond
	return f
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	return loc
}

func TestFetcherRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	body, err := testFetcher(3).Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("unexpected body %q", body)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestFetcherDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := testFetcher(3).Get(context.Background(), server.URL)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestPremiumkinoScrape(t *testing.T) {
	payload := `{"movie_list": [
		{"name": "Dune: Part Two", "show": true, "minutes": 166, "performances": [
			{"begin": "2030-05-20T20:15:00+02:00", "bookable": true, "reservable": false, "is_ov": true, "language": "Englisch", "slug": "dune-part-two", "crypt_id": "abc"},
			{"begin": "2030-05-21T17:00:00", "bookable": false, "reservable": false, "is_omu": true, "language": "Deutsch", "slug": "dune-part-two", "crypt_id": "def"}
		]},
		{"name": "Hidden", "show": false, "performances": [
			{"begin": "2030-05-20T20:15:00+02:00", "bookable": true, "slug": "hidden", "crypt_id": "x"}
		]}
	]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != premiumkinoConfigPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	loc := berlin(t)
	scraper := NewPremiumkino(Profile{Cinema: models.Cinema{DisplayName: "Astor"}}, server.URL+"/", testFetcher(0), loc, testLogger())
	sink := &recordingSink{}
	if err := scraper.Scrape(context.Background(), sink); err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if len(sink.showings) != 2 {
		t.Fatalf("expected 2 showings, got %d", len(sink.showings))
	}

	first := sink.showings[0]
	if first.DubVariant != models.DubOriginalVersion || first.Hint != "Englisch" {
		t.Errorf("unexpected first showing %+v", first)
	}
	if first.ShopURL != server.URL+"/vorstellung/dune-part-two/0/0/abc" {
		t.Errorf("unexpected shop url %s", first.ShopURL)
	}
	if first.URL != server.URL+"/film/dune-part-two" {
		t.Errorf("unexpected movie url %s", first.URL)
	}
	if !first.BookingKnown || !first.Bookable {
		t.Error("expected booking state to be passed on")
	}
	if first.Metadata == nil || first.Metadata.RuntimeMinutes == nil || *first.Metadata.RuntimeMinutes != 166 {
		t.Error("expected runtime metadata")
	}

	second := sink.showings[1]
	if second.DubVariant != models.DubSubtitled {
		t.Errorf("expected subtitled, got %s", second.DubVariant)
	}
	want := time.Date(2030, 5, 21, 17, 0, 0, 0, loc)
	if !second.StartTime.Equal(want) {
		t.Errorf("expected local start %s, got %s", want, second.StartTime)
	}
}

func TestPremiumkinoUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	scraper := NewPremiumkino(Profile{}, server.URL, testFetcher(1), time.UTC, testLogger())
	err := scraper.Scrape(context.Background(), &recordingSink{})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestPremiumkinoSkipsMalformedEntries(t *testing.T) {
	payload := `{"movie_list": [
		{"name": "Perfect Days", "show": true, "performances": [
			{"begin": "2030-05-20T20:15:00+02:00", "bookable": "yes", "slug": "perfect-days", "crypt_id": "a"},
			{"begin": "2030-05-20T22:15:00+02:00", "bookable": true, "slug": "perfect-days", "crypt_id": "b"}
		]},
		{"name": 42, "show": true, "performances": []},
		{"name": "Alien", "show": true, "performances": [
			{"begin": "2030-05-21T18:00:00+02:00", "bookable": true, "slug": "alien", "crypt_id": "c"}
		]}
	]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	scraper := NewPremiumkino(Profile{}, server.URL, testFetcher(0), time.UTC, testLogger())
	sink := &recordingSink{}
	if err := scraper.Scrape(context.Background(), sink); err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if len(sink.showings) != 2 {
		t.Fatalf("expected 2 showings, got %d", len(sink.showings))
	}
	if sink.showings[0].Title != "Perfect Days" || !strings.HasSuffix(sink.showings[0].ShopURL, "/b") {
		t.Errorf("unexpected first showing %+v", sink.showings[0])
	}
	if sink.showings[1].Title != "Alien" {
		t.Errorf("expected Alien after the malformed movie, got %q", sink.showings[1].Title)
	}
}

func TestCSVScrape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "programme.csv")
	content := "Time,Title,Url,Hint\n" +
		"2030-06-01 20:00,Perfect Days,https://kino.example/perfect-days,OmU\n" +
		"2030-06-02 18:30,Alien,,\n" +
		"not a time,Broken,,\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}

	loc := berlin(t)
	sink := &recordingSink{}
	scraper := NewCSV(Profile{}, path, testFetcher(0), loc, testLogger())
	if err := scraper.Scrape(context.Background(), sink); err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if len(sink.showings) != 3 {
		t.Fatalf("expected 3 showings, got %d", len(sink.showings))
	}
	if sink.showings[0].URL != "https://kino.example/perfect-days" || sink.showings[0].Hint != "OmU" {
		t.Errorf("unexpected first showing %+v", sink.showings[0])
	}
	if !sink.showings[1].StartTime.Equal(time.Date(2030, 6, 2, 18, 30, 0, 0, loc)) {
		t.Errorf("unexpected start %s", sink.showings[1].StartTime)
	}
	if !sink.showings[2].StartTime.IsZero() {
		t.Error("unparseable time must be left zero for the resolver to reject")
	}
}

func TestCSVMissingFile(t *testing.T) {
	scraper := NewCSV(Profile{}, filepath.Join(t.TempDir(), "missing.csv"), testFetcher(0), time.UTC, testLogger())
	if err := scraper.Scrape(context.Background(), &recordingSink{}); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestCSVMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "programme.csv")
	if err := os.WriteFile(path, []byte("When,Title\n2030-06-01 20:00,Alien\n"), 0644); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}
	scraper := NewCSV(Profile{}, path, testFetcher(0), time.UTC, testLogger())
	if err := scraper.Scrape(context.Background(), &recordingSink{}); err == nil {
		t.Error("expected an error for a missing Time column")
	}
}

func TestCSVSkipsMalformedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "programme.csv")
	content := "Time,Title,Url\n" +
		"2030-06-01 20:00,Perfect Days,\n" +
		"2030-06-01 22:00,Bad \"quoted title,\n" +
		"2030-06-02 18:30,Alien,\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}

	sink := &recordingSink{}
	scraper := NewCSV(Profile{}, path, testFetcher(0), time.UTC, testLogger())
	if err := scraper.Scrape(context.Background(), sink); err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if len(sink.showings) != 2 {
		t.Fatalf("expected 2 showings, got %d", len(sink.showings))
	}
	if sink.showings[0].Title != "Perfect Days" || sink.showings[1].Title != "Alien" {
		t.Errorf("unexpected titles %q, %q", sink.showings[0].Title, sink.showings[1].Title)
	}
}

const programmePage = `<html><body>
<table class="programm">
  <tr class="day"><td class="date">Mo 20.05.2030</td></tr>
  <tr class="show"><td class="time">20:15</td><td class="title"><a href="/film/perfect-days">Perfect Days (OmU)</a></td><td class="hint">japanisch</td></tr>
  <tr class="show"><td class="time">22:30 Uhr</td><td class="title"><a href="/film/alien">Alien</a></td></tr>
  <tr class="day"><td class="date">Di 21.05.2030</td></tr>
  <tr class="show"><td class="time">18:00</td><td class="title"><a href="/film/dune">Dune</a></td></tr>
</table>
</body></html>`

func TestHTMLTableScrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, programmePage)
	}))
	defer server.Close()

	selectors := config.HTMLSelectors{
		Row:   "table.programm tr",
		Date:  "td.date",
		Time:  "td.time",
		Title: "td.title a",
		Link:  "td.title a",
		Hint:  "td.hint",
	}
	loc := berlin(t)
	scraper := NewHTMLTable(Profile{}, server.URL+"/programm", selectors, testFetcher(0), loc, testLogger())
	sink := &recordingSink{}
	if err := scraper.Scrape(context.Background(), sink); err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if len(sink.showings) != 3 {
		t.Fatalf("expected 3 showings, got %d", len(sink.showings))
	}

	tests := []struct {
		title string
		start time.Time
		url   string
	}{
		{"Perfect Days (OmU)", time.Date(2030, 5, 20, 20, 15, 0, 0, loc), server.URL + "/film/perfect-days"},
		{"Alien", time.Date(2030, 5, 20, 22, 30, 0, 0, loc), server.URL + "/film/alien"},
		{"Dune", time.Date(2030, 5, 21, 18, 0, 0, 0, loc), server.URL + "/film/dune"},
	}
	for i, tt := range tests {
		got := sink.showings[i]
		if got.Title != tt.title {
			t.Errorf("showing %d: title %q, want %q", i, got.Title, tt.title)
		}
		if !got.StartTime.Equal(tt.start) {
			t.Errorf("showing %d: start %s, want %s", i, got.StartTime, tt.start)
		}
		if got.URL != tt.url {
			t.Errorf("showing %d: url %s, want %s", i, got.URL, tt.url)
		}
	}
	if sink.showings[0].Hint != "japanisch" {
		t.Errorf("expected hint, got %q", sink.showings[0].Hint)
	}
}

func TestHTMLTableLayoutChange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><div>Relaunch</div></body></html>")
	}))
	defer server.Close()

	scraper := NewHTMLTable(Profile{}, server.URL, config.HTMLSelectors{Row: "table.programm tr", Time: "td.time", Title: "td.title"}, testFetcher(0), time.UTC, testLogger())
	if err := scraper.Scrape(context.Background(), &recordingSink{}); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestEmitStopsOnStorageErrors(t *testing.T) {
	skip := &recordingSink{err: resolver.ErrPast}
	if err := emit(context.Background(), skip, models.RawShowing{}); err != nil {
		t.Errorf("skips must not stop a source, got %v", err)
	}

	storage := &recordingSink{err: errors.New("disk full")}
	if err := emit(context.Background(), storage, models.RawShowing{}); err == nil {
		t.Error("expected storage error to be returned")
	}
}

func TestFromSources(t *testing.T) {
	sources := []config.Source{
		{Kind: config.SourceCSV, URL: "/tmp/a.csv", Cinema: config.CinemaSpec{Name: " Kino A ", Website: "https://a.example"}},
		{Kind: config.SourcePremiumkino, URL: "https://b.example", Cinema: config.CinemaSpec{Name: "Kino B", ReliableMetadata: true}, SpecialEventMarkers: []string{"(MET "}},
		{Kind: config.SourceHTML, URL: "https://c.example", Cinema: config.CinemaSpec{Name: "Kino C"}, Ignore: []string{"Oper"}},
	}

	registry, err := FromSources(sources, testFetcher(0), time.UTC, testLogger())
	if err != nil {
		t.Fatalf("FromSources failed: %v", err)
	}
	if len(registry) != 3 {
		t.Fatalf("expected 3 scrapers, got %d", len(registry))
	}
	if _, ok := registry[0].(*CSV); !ok {
		t.Errorf("expected CSV first, got %T", registry[0])
	}
	if got := registry[0].Profile().Cinema.DisplayName; got != "Kino A" {
		t.Errorf("expected trimmed cinema name, got %q", got)
	}
	if !registry[1].Profile().Cinema.ReliableMetadata || len(registry[1].Profile().SpecialEventMarkers) != 1 {
		t.Error("expected profile settings to be carried over")
	}
	if _, ok := registry[2].(*HTMLTable); !ok {
		t.Errorf("expected HTMLTable last, got %T", registry[2])
	}

	if _, err := FromSources([]config.Source{{Kind: "ftp"}}, testFetcher(0), time.UTC, testLogger()); err == nil {
		t.Error("expected error for unknown kind")
	}
}
