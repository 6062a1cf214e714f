package matching

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/openstreetmap-polska/synchrosm/element"
)

// indexMargin pads each indexed location into a small rectangle, so
// entries never have a degenerate zero area. It does not widen the
// effective search radius in any meaningful way.
const indexMargin = 0.0001

type indexEntry struct {
	node   *element.Node
	seq    int
	bounds rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect { return e.bounds }

// Index answers bounding-box queries over node locations.
type Index struct {
	tree *rtreego.Rtree
	size int
}

// NewIndex builds a spatial index over all nodes that have a location.
// Nodes without coordinates are skipped.
func NewIndex(nodes []*element.Node) *Index {
	idx := &Index{tree: rtreego.NewTree(2, 25, 50)}
	for _, node := range nodes {
		if !node.HasLocation() {
			continue
		}
		point := rtreego.Point{node.Long, node.Lat}
		idx.tree.Insert(&indexEntry{
			node:   node,
			seq:    idx.size,
			bounds: point.ToRect(indexMargin),
		})
		idx.size++
	}
	return idx
}

// Size returns the number of indexed nodes.
func (idx *Index) Size() int {
	return idx.size
}

// Search returns all nodes within ±radius degrees of the given
// location, ordered by their insertion into the index.
func (idx *Index) Search(lat, long, radius float64) []*element.Node {
	box := rtreego.Point{long, lat}.ToRect(radius)
	hits := idx.tree.SearchIntersect(box)

	entries := make([]*indexEntry, len(hits))
	for i, hit := range hits {
		entries[i] = hit.(*indexEntry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	nodes := make([]*element.Node, len(entries))
	for i, entry := range entries {
		nodes[i] = entry.node
	}
	return nodes
}
