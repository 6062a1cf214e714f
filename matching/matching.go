// Package matching resolves externally supplied objects to OSM nodes.
//
// Each object is matched in two phases. The exact-id phase compares the
// object identifier against a configured node tag (for example ref) and
// claims the node that carries it, regardless of distance. Objects left
// over go through the spatial phase: a bounding-box query around the
// object location, with the closest remaining node winning. Every node
// is claimed at most once per run, in object input order.
package matching

import (
	"math"

	"github.com/pkg/errors"

	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/geo"
	"github.com/openstreetmap-polska/synchrosm/log"
)

// DefaultIDTag is the node tag that carries an object identifier.
const DefaultIDTag = "ref"

// DefaultSearchRadius is the spatial-phase box half-width in degrees,
// roughly 111 m at the equator.
const DefaultSearchRadius = 0.001

// MappingStore persists accepted matches as node-id mappings.
type MappingStore interface {
	UpsertIDMappings([]element.IDMapping) error
}

// Config controls a matching run.
type Config struct {
	// IDTag names the node tag whose value identifies an object.
	// An empty IDTag disables the exact-id phase.
	IDTag string
	// SearchRadius is the half-width in degrees of the box queried
	// around each object in the spatial phase.
	SearchRadius float64
	// Mappings, when set, receives an id mapping for every match.
	Mappings MappingStore
	// Logger defaults to log.DefaultLogger.
	Logger log.Logger
}

// DefaultConfig returns the standard matching configuration.
func DefaultConfig() Config {
	return Config{
		IDTag:        DefaultIDTag,
		SearchRadius: DefaultSearchRadius,
	}
}

// Match pairs an object with the node it resolved to. Node is nil for
// objects that could not be placed.
type Match struct {
	Object element.Object
	Node   *element.Node
}

// MatchObjects resolves each object to at most one node, preserving the
// input order of objects. Nodes and objects are never modified.
func MatchObjects(objects []element.Object, nodes []*element.Node, conf Config) ([]Match, error) {
	logger := conf.Logger
	if logger == nil {
		logger = log.DefaultLogger
	}
	if conf.SearchRadius <= 0 {
		conf.SearchRadius = DefaultSearchRadius
	}

	var byID map[string]*element.Node
	if conf.IDTag != "" {
		byID = buildLookup(nodes, conf.IDTag)
	}
	index := NewIndex(nodes)
	claimed := make(map[element.NodeKey]bool)

	matches := make([]Match, 0, len(objects))
	var mappings []element.IDMapping

	matched := 0
	for _, obj := range objects {
		var node *element.Node

		if byID != nil {
			// A node with an empty id-tag value stays eligible for
			// proximity matching and may already be claimed here.
			if hit, ok := byID[obj.ID]; ok && !claimed[hit.Key()] {
				node = hit
				delete(byID, obj.ID)
			}
		}
		if node == nil {
			node = nearest(obj, index, claimed, conf)
		}

		if node != nil {
			claimed[node.Key()] = true
			matched++
			mappings = append(mappings, element.IDMapping{
				OSMID:    node.ID,
				ObjectID: obj.ID,
			})
		}
		matches = append(matches, Match{Object: obj, Node: node})
	}

	logger.Printf("[info] matched %d of %d objects", matched, len(objects))

	if conf.Mappings != nil && len(mappings) > 0 {
		if err := conf.Mappings.UpsertIDMappings(mappings); err != nil {
			return nil, errors.Wrap(err, "storing id mappings")
		}
	}
	return matches, nil
}

// buildLookup maps id-tag values to the node carrying them. A value
// carried by multiple nodes maps to the last one.
func buildLookup(nodes []*element.Node, idTag string) map[string]*element.Node {
	byID := make(map[string]*element.Node)
	for _, node := range nodes {
		if value, ok := node.Tags[idTag]; ok {
			byID[value] = node
		}
	}
	return byID
}

// nearest returns the closest unclaimed node within the search box
// around obj, or nil. Nodes carrying a non-empty id tag are reserved
// for the exact-id phase and never matched by proximity.
func nearest(obj element.Object, index *Index, claimed map[element.NodeKey]bool, conf Config) *element.Node {
	var best *element.Node
	bestDist := math.NaN()

	for _, node := range index.Search(obj.Lat, obj.Long, conf.SearchRadius) {
		if conf.IDTag != "" && node.Tags[conf.IDTag] != "" {
			continue
		}
		if claimed[node.Key()] {
			continue
		}
		dist := geo.Distance(obj.Lat, obj.Long, node.Lat, node.Long)
		if math.IsNaN(dist) {
			continue
		}
		if best == nil || dist < bestDist {
			best = node
			bestDist = dist
		}
	}
	return best
}
