// Package element holds the domain model shared by all synchrosm
// components: OSM nodes as stored locally, candidate objects supplied by
// callers, and the result types of the compare flow.
package element

import (
	"fmt"
	"math"
)

// Tags is a collection of key=value pairs describing an OSM element.
type Tags map[string]string

func (t *Tags) String() string {
	return fmt.Sprintf("%v", (map[string]string)(*t))
}

// Metadata carries provenance values of a node (changeset, user, uid,
// timestamp, visible). The values are opaque to all matching logic and are
// only preserved for persistence round-trips.
type Metadata map[string]interface{}

// Node is a geographic point feature as known to synchrosm.
//
// Lat and Long are NaN for nodes that were deleted upstream. Such nodes
// have no valid location and are excluded from spatial indexing, but they
// keep their identity and tags.
type Node struct {
	ID       int64
	Version  int32
	Lat      float64
	Long     float64
	Tags     Tags
	Metadata Metadata
}

// NodeKey is the comparable identity of a node state. Two nodes with the
// same ID but different versions are distinct states of the same feature.
type NodeKey struct {
	ID      int64
	Version int32
}

// HasLocation reports whether the node still has valid coordinates.
func (n *Node) HasLocation() bool {
	return !math.IsNaN(n.Lat) && !math.IsNaN(n.Long)
}

// Key returns the (ID, Version) identity used for deduplication.
func (n *Node) Key() NodeKey {
	return NodeKey{ID: n.ID, Version: n.Version}
}

// Equal reports whether both nodes represent the same state of the same
// feature. Coordinates and tags do not take part in the comparison.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.ID == o.ID && n.Version == o.Version
}

func (n *Node) String() string {
	if n.HasLocation() {
		return fmt.Sprintf("node %d v%d at %.5f %.5f", n.ID, n.Version, n.Lat, n.Long)
	}
	return fmt.Sprintf("node %d v%d deleted", n.ID, n.Version)
}

// Object is an externally supplied record the caller wants to locate in,
// or import into, OSM. Its ID lives in the caller's identifier space, not
// in OSM's. Tags are optional and only used when the object gets created
// as a new node.
type Object struct {
	ID   string  `json:"id"`
	Lat  float64 `json:"latitude"`
	Long float64 `json:"longitude"`
	Tags Tags    `json:"tags,omitempty"`
}

// IDMapping records an accepted match between an OSM node id and a
// caller-domain object id.
type IDMapping struct {
	OSMID    int64
	ObjectID string
}

// NodeComparison pairs the locally stored state of a node with a newer
// state reported by the OSM API.
type NodeComparison struct {
	Old *Node
	New *Node
}

// ComparisonResults partitions a compared batch of nodes into the ones
// whose stored version is still current and the ones with a newer version
// in OSM.
type ComparisonResults struct {
	Unchanged  []*Node
	NewVersion []NodeComparison
}
