package compare

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/openstreetmap-polska/synchrosm/element"
)

type fakeStore struct {
	nodes    []*element.Node
	limit    int
	upserted []*element.Node
	deleted  []int64
}

func (s *fakeStore) Init() error { return nil }

func (s *fakeStore) TruncateAll() error { return nil }

func (s *fakeStore) SetBaseTimestamp(timestamp time.Time) error { return nil }

func (s *fakeStore) BaseTimestamp() (time.Time, error) { return time.Time{}, nil }

func (s *fakeStore) UpsertNodes(nodes []*element.Node) error {
	s.upserted = append(s.upserted, nodes...)
	return nil
}

func (s *fakeStore) SelectNodes(limit int) ([]*element.Node, error) {
	s.limit = limit
	if limit > 0 && limit < len(s.nodes) {
		return s.nodes[:limit], nil
	}
	return s.nodes, nil
}

func (s *fakeStore) DeleteNodes(ids []int64) error {
	s.deleted = append(s.deleted, ids...)
	return nil
}

func (s *fakeStore) UpsertIDMappings(mappings []element.IDMapping) error { return nil }

func (s *fakeStore) SelectIDMappings() (map[int64]string, map[string]int64, error) {
	return nil, nil, nil
}

func (s *fakeStore) Close() error { return nil }

type fakeFetcher struct {
	nodes     map[int64]*element.Node
	requested []int64
}

func (f *fakeFetcher) Nodes(ctx context.Context, ids []int64) (map[int64]*element.Node, error) {
	f.requested = append(f.requested, ids...)
	return f.nodes, nil
}

func TestClassify(t *testing.T) {
	stored := []*element.Node{
		{ID: 1, Version: 3, Lat: 50.0, Long: 20.0},
		{ID: 2, Version: 1, Lat: 50.1, Long: 20.1},
		{ID: 3, Version: 5, Lat: 50.2, Long: 20.2},
		{ID: 4, Version: 2, Lat: 50.3, Long: 20.3},
	}
	remote := map[int64]*element.Node{
		1: {ID: 1, Version: 3, Lat: 50.0, Long: 20.0},
		2: {ID: 2, Version: 4, Lat: 51.0, Long: 21.0},
		3: {ID: 3, Version: 2, Lat: 50.2, Long: 20.2}, // regression, skipped
		// node 4 missing, skipped
	}

	results := Classify(stored, remote)
	if len(results.Unchanged) != 1 || results.Unchanged[0].ID != 1 {
		t.Errorf("unexpected unchanged nodes: %v", results.Unchanged)
	}
	if len(results.NewVersion) != 1 {
		t.Fatalf("expected 1 new version, got %v", results.NewVersion)
	}
	comparison := results.NewVersion[0]
	if comparison.Old.ID != 2 || comparison.Old.Version != 1 {
		t.Errorf("unexpected old node: %v", comparison.Old)
	}
	if comparison.New.ID != 2 || comparison.New.Version != 4 {
		t.Errorf("unexpected new node: %v", comparison.New)
	}
}

func TestRun(t *testing.T) {
	store := &fakeStore{nodes: []*element.Node{
		{ID: 1, Version: 3, Lat: 50.0, Long: 20.0},
		{ID: 2, Version: 1, Lat: 50.1, Long: 20.1},
	}}
	fetcher := &fakeFetcher{nodes: map[int64]*element.Node{
		1: {ID: 1, Version: 3, Lat: 50.0, Long: 20.0},
		2: {ID: 2, Version: 4, Lat: 51.0, Long: 21.0},
	}}

	results, err := Run(context.Background(), store, fetcher, Options{Limit: 300})
	if err != nil {
		t.Fatal(err)
	}
	if store.limit != 300 {
		t.Errorf("expected select limit 300, got %d", store.limit)
	}
	if len(fetcher.requested) != 2 || fetcher.requested[0] != 1 || fetcher.requested[1] != 2 {
		t.Errorf("unexpected ids fetched: %v", fetcher.requested)
	}
	if len(results.Unchanged) != 1 || len(results.NewVersion) != 1 {
		t.Errorf("unexpected results: %v", results)
	}
	if len(store.upserted) != 0 || len(store.deleted) != 0 {
		t.Error("expected store to be left alone without -update")
	}
}

func TestRunUpdate(t *testing.T) {
	store := &fakeStore{nodes: []*element.Node{
		{ID: 1, Version: 1, Lat: 50.0, Long: 20.0},
		{ID: 2, Version: 1, Lat: 50.1, Long: 20.1},
		{ID: 3, Version: 1, Lat: 50.2, Long: 20.2},
	}}
	fetcher := &fakeFetcher{nodes: map[int64]*element.Node{
		1: {ID: 1, Version: 1, Lat: 50.0, Long: 20.0},
		2: {ID: 2, Version: 2, Lat: 51.0, Long: 21.0},
		3: {ID: 3, Version: 2, Lat: math.NaN(), Long: math.NaN()},
	}}

	results, err := Run(context.Background(), store, fetcher, Options{Update: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results.NewVersion) != 2 {
		t.Fatalf("expected 2 new versions, got %v", results.NewVersion)
	}
	// moved node upserted, deleted node removed
	if len(store.upserted) != 1 || store.upserted[0].ID != 2 || store.upserted[0].Version != 2 {
		t.Errorf("unexpected upserts: %v", store.upserted)
	}
	if len(store.deleted) != 1 || store.deleted[0] != 3 {
		t.Errorf("unexpected deletes: %v", store.deleted)
	}
}
