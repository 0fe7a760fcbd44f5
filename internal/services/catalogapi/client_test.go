package catalogapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

const snapshotJSON = `{"version":"2030-05-20T10:00:00Z",
"cinemas":[{"id":1,"displayName":"Astor","url":"https://astor.example","linkToShop":false}],
"movies":[{"id":10,"displayName":"Dune: Part Two"}],
"showTimes":[{"id":100,"movie":10,"cinema":1,"startTime":"2030-05-20T18:15:00Z","language":"english","type":"subtitled","url":"https://astor.example/dune"}]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client, err := NewClient(server.URL, time.Second, logger)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestFetchVersionAndSnapshot(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/data.json.update":
			w.Header().Set("Content-Type", "text/plain")
			io.WriteString(w, "2030-05-20T10:00:00Z\n")
		case "/data/data.json":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, snapshotJSON)
		default:
			http.NotFound(w, r)
		}
	})

	version, err := client.FetchVersion(context.Background())
	if err != nil {
		t.Fatalf("FetchVersion failed: %v", err)
	}
	if version != "2030-05-20T10:00:00Z" {
		t.Errorf("unexpected version %q", version)
	}

	snapshot, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}
	if len(snapshot.ShowTimes) != 1 || snapshot.ShowTimes[0].Movie != 10 {
		t.Errorf("unexpected snapshot %+v", snapshot)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not found", http.NotFound},
		{"empty marker", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "  \n")
		}},
		{"truncated snapshot", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/data/data.json.update" {
				io.WriteString(w, "v2")
				return
			}
			io.WriteString(w, snapshotJSON[:40])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)

			_, versionErr := client.FetchVersion(context.Background())
			_, snapshotErr := client.FetchSnapshot(context.Background())
			if versionErr == nil && snapshotErr == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFetchTimesOut(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)
	client.httpClient.Timeout = 50 * time.Millisecond

	start := time.Now()
	if _, err := client.FetchVersion(context.Background()); err == nil {
		t.Error("expected a timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("request was not bounded by the timeout")
	}
}
