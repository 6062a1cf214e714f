package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/overpass"
)

const testResponse = `{
	"version": 0.6,
	"generator": "Overpass API",
	"osm3s": {"timestamp_osm_base": "2021-03-14T09:00:02Z"},
	"elements": [
		{"type": "node", "id": 1234, "version": 7, "lat": 50.06, "lon": 19.93,
			"tags": {"amenity": "post_box", "ref": "12-345"}},
		{"type": "way", "id": 99, "version": 1},
		{"type": "node", "id": 5678, "version": 2, "lat": 50.07, "lon": 19.94}
	]
}`

type fakeStore struct {
	initialized bool
	nodes       []*element.Node
	timestamp   time.Time
}

func (s *fakeStore) Init() error { s.initialized = true; return nil }

func (s *fakeStore) TruncateAll() error { return nil }

func (s *fakeStore) SetBaseTimestamp(timestamp time.Time) error {
	s.timestamp = timestamp
	return nil
}

func (s *fakeStore) BaseTimestamp() (time.Time, error) { return s.timestamp, nil }

func (s *fakeStore) UpsertNodes(nodes []*element.Node) error {
	s.nodes = append(s.nodes, nodes...)
	return nil
}

func (s *fakeStore) SelectNodes(limit int) ([]*element.Node, error) { return s.nodes, nil }

func (s *fakeStore) DeleteNodes(ids []int64) error { return nil }

func (s *fakeStore) UpsertIDMappings(mappings []element.IDMapping) error { return nil }

func (s *fakeStore) SelectIDMappings() (map[int64]string, map[string]int64, error) {
	return nil, nil, nil
}

func (s *fakeStore) Close() error { return nil }

func TestRunQuery(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		received = r.PostForm.Get("data")
		w.Write([]byte(testResponse))
	}))
	defer server.Close()

	store := &fakeStore{}
	client := &overpass.Client{URL: server.URL}
	opts := Options{Query: `node[amenity=post_box];out meta;`}
	if err := Run(context.Background(), store, client, opts); err != nil {
		t.Fatal(err)
	}

	if received != `node[amenity=post_box];out meta;` {
		t.Errorf("unexpected query sent: %q", received)
	}
	if !store.initialized {
		t.Error("expected store to be initialized")
	}
	if len(store.nodes) != 2 {
		t.Fatalf("expected 2 nodes stored, got %d", len(store.nodes))
	}
	if store.nodes[0].ID != 1234 || store.nodes[1].ID != 5678 {
		t.Errorf("unexpected nodes stored: %v", store.nodes)
	}
	expected := time.Date(2021, 3, 14, 9, 0, 2, 0, time.UTC)
	if !store.timestamp.Equal(expected) {
		t.Errorf("expected base timestamp %v, got %v", expected, store.timestamp)
	}
}

func TestRunQueryFile(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		received = r.PostForm.Get("data")
		w.Write([]byte(testResponse))
	}))
	defer server.Close()

	queryFile := filepath.Join(t.TempDir(), "query.overpassql")
	if err := os.WriteFile(queryFile, []byte(`node[amenity=bench];out;`), 0644); err != nil {
		t.Fatal(err)
	}

	store := &fakeStore{}
	client := &overpass.Client{URL: server.URL}
	if err := Run(context.Background(), store, client, Options{QueryFile: queryFile}); err != nil {
		t.Fatal(err)
	}
	if received != `node[amenity=bench];out;` {
		t.Errorf("unexpected query sent: %q", received)
	}
}

func TestRunMissingSource(t *testing.T) {
	store := &fakeStore{}
	err := Run(context.Background(), store, &overpass.Client{}, Options{})
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if store.initialized {
		t.Error("expected store to be left alone")
	}
}

func TestRunQueryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too busy", http.StatusGatewayTimeout)
	}))
	defer server.Close()

	store := &fakeStore{}
	client := &overpass.Client{URL: server.URL}
	err := Run(context.Background(), store, client, Options{Query: "node;out;"})
	if err == nil {
		t.Fatal("expected error from failing server")
	}
	if store.initialized || len(store.nodes) != 0 {
		t.Error("expected store to be left alone on error")
	}
}
