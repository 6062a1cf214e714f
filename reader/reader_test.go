package reader

import (
	"context"
	"os"
	"testing"
	"time"

	osm "github.com/omniscale/go-osm"
)

func TestNodeConversion(t *testing.T) {
	source := &osm.Node{
		Element: osm.Element{
			ID:   1234,
			Tags: osm.Tags{"amenity": "post_box", "ref": "12-345"},
			Metadata: &osm.Metadata{
				UserID:    999,
				UserName:  "someone",
				Version:   7,
				Timestamp: time.Date(2021, 3, 13, 22, 40, 0, 0, time.UTC),
				Changeset: 900100,
			},
		},
		Lat:  50.06,
		Long: 19.93,
	}

	result := node(source)
	if result.ID != 1234 || result.Version != 7 {
		t.Errorf("unexpected node: %v", result)
	}
	if result.Lat != 50.06 || result.Long != 19.93 {
		t.Errorf("unexpected coordinates: %v", result)
	}
	if result.Tags["ref"] != "12-345" {
		t.Errorf("unexpected tags: %v", result.Tags)
	}
	if result.Metadata["changeset"] != int64(900100) {
		t.Errorf("unexpected changeset: %v", result.Metadata)
	}
	if result.Metadata["user"] != "someone" {
		t.Errorf("unexpected user: %v", result.Metadata)
	}
	if result.Metadata["uid"] != int64(999) {
		t.Errorf("unexpected uid: %v", result.Metadata)
	}
	if result.Metadata["timestamp"] != "2021-03-13T22:40:00Z" {
		t.Errorf("unexpected timestamp: %v", result.Metadata)
	}
}

func TestNodeConversionBareMetadata(t *testing.T) {
	source := &osm.Node{
		Element: osm.Element{
			ID:       5678,
			Tags:     osm.Tags{"amenity": "bench"},
			Metadata: &osm.Metadata{Version: 1},
		},
		Lat:  50.0,
		Long: 20.0,
	}

	result := node(source)
	if result.Version != 1 {
		t.Errorf("unexpected version: %v", result)
	}
	if len(result.Metadata) != 0 {
		t.Errorf("expected no metadata values, got %v", result.Metadata)
	}
}

func TestReadPBFMissingFile(t *testing.T) {
	_, _, err := ReadPBF(context.Background(), "does-not-exist.osm.pbf")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// TestReadPBF runs against a real extract. Point SYNCHROSM_TEST_PBF at
// any OSM PBF file to enable it.
func TestReadPBF(t *testing.T) {
	filename := os.Getenv("SYNCHROSM_TEST_PBF")
	if filename == "" {
		t.Skip("SYNCHROSM_TEST_PBF not set, skipping pbf read test")
	}

	nodes, timestamp, err := ReadPBF(context.Background(), filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) == 0 {
		t.Fatal("expected tagged nodes in extract")
	}
	if timestamp.IsZero() {
		t.Error("expected a data timestamp")
	}
	for _, node := range nodes {
		if len(node.Tags) == 0 {
			t.Fatalf("expected only tagged nodes, got %v", node)
		}
		if !node.HasLocation() {
			t.Fatalf("expected nodes with location, got %v", node)
		}
	}
}
