package matching

import (
	"math"
	"testing"

	"github.com/openstreetmap-polska/synchrosm/element"
)

func TestIndexSkipsNodesWithoutLocation(t *testing.T) {
	nodes := []*element.Node{
		testNode(1, 50.0, 20.0, nil),
		testNode(2, math.NaN(), math.NaN(), nil),
		testNode(3, 50.0002, 20.0002, nil),
	}
	idx := NewIndex(nodes)
	if idx.Size() != 2 {
		t.Fatalf("index size %d, want 2", idx.Size())
	}
}

func TestIndexSearch(t *testing.T) {
	nodes := []*element.Node{
		testNode(1, 50.0, 20.0, nil),
		testNode(2, 50.0005, 20.0005, nil),
		testNode(3, 50.5, 20.5, nil),
		testNode(4, 0, 0, nil),
	}
	idx := NewIndex(nodes)

	hits := idx.Search(50.0001, 20.0001, 0.001)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2: %v", len(hits), hits)
	}
	if hits[0].ID != 1 || hits[1].ID != 2 {
		t.Errorf("hits %v, %v not in insertion order", hits[0], hits[1])
	}

	if hits := idx.Search(-10.0, -10.0, 0.001); len(hits) != 0 {
		t.Errorf("got %d hits far from all nodes, want 0", len(hits))
	}

	// the origin is a valid location
	if hits := idx.Search(0.0001, -0.0001, 0.001); len(hits) != 1 || hits[0].ID != 4 {
		t.Errorf("got %v, want node 4", hits)
	}
}

func TestIndexSearchInsertionOrder(t *testing.T) {
	// many co-located nodes, inserted in a known order
	var nodes []*element.Node
	for id := int64(1); id <= 60; id++ {
		nodes = append(nodes, testNode(id, 50.0, 20.0, nil))
	}
	idx := NewIndex(nodes)

	hits := idx.Search(50.0, 20.0, 0.001)
	if len(hits) != 60 {
		t.Fatalf("got %d hits, want 60", len(hits))
	}
	for i, hit := range hits {
		if hit.ID != int64(i+1) {
			t.Fatalf("hit %d has id %d, want %d", i, hit.ID, i+1)
		}
	}
}
