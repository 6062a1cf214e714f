// Package import_ implements the import flow: match externally supplied
// objects against the known nodes and create the missing ones in OSM.
package import_

import (
	"context"
	"encoding/json"
	"io/ioutil"

	"github.com/pkg/errors"

	"github.com/openstreetmap-polska/synchrosm/database"
	"github.com/openstreetmap-polska/synchrosm/download"
	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/log"
	"github.com/openstreetmap-polska/synchrosm/matching"
	"github.com/openstreetmap-polska/synchrosm/overpass"
)

type Options struct {
	// Download configures the node refresh that runs first.
	Download download.Options
	// IDTag and SearchRadius configure matching, see matching.Config.
	IDTag        string
	SearchRadius float64
	// ChangesetTags are added to the changeset opened for created nodes.
	ChangesetTags element.Tags
	// NodeTags are added to every created node. Tags of the object win
	// on conflict.
	NodeTags element.Tags
}

// NodeCreator is the part of the OSM API client the import needs.
type NodeCreator interface {
	CreateNodes(ctx context.Context, objects []element.Object, changesetTags element.Tags) ([]*element.Node, error)
}

// Results partitions the imported objects: the ones a matching node
// already existed for, and the ones created by this run.
type Results struct {
	AlreadyPresent []element.Object
	Imported       []element.Object
}

// ReadObjects loads the objects to import from a JSON file: an array of
// records with id, latitude, longitude and optional tags.
func ReadObjects(path string) ([]element.Object, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading objects from %s", path)
	}
	var objects []element.Object
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, errors.Wrapf(err, "decoding objects from %s", path)
	}
	return objects, nil
}

// Run refreshes the local node base, matches the objects against it and
// creates the unmatched ones in OSM. Created nodes are stored locally
// together with their id mappings, so later runs recognize them without
// re-matching.
func Run(ctx context.Context, store database.Store, client *overpass.Client, creator NodeCreator,
	objects []element.Object, opts Options) (*Results, error) {
	if err := download.Run(ctx, store, client, opts.Download); err != nil {
		return nil, err
	}
	nodes, err := store.SelectNodes(0)
	if err != nil {
		return nil, err
	}

	conf := matching.Config{
		IDTag:        opts.IDTag,
		SearchRadius: opts.SearchRadius,
		Mappings:     store,
	}
	if _, err := matching.MatchObjects(objects, nodes, conf); err != nil {
		return nil, err
	}
	_, objectToOSM, err := store.SelectIDMappings()
	if err != nil {
		return nil, err
	}

	results := &Results{}
	var missing []element.Object
	for _, obj := range objects {
		if _, ok := objectToOSM[obj.ID]; ok {
			results.AlreadyPresent = append(results.AlreadyPresent, obj)
		} else {
			missing = append(missing, obj)
		}
	}
	if len(missing) == 0 {
		log.Println("[info] all objects already in OSM, nothing to import")
		return results, nil
	}

	created, err := creator.CreateNodes(ctx, withNodeTags(missing, opts.NodeTags), opts.ChangesetTags)
	if err != nil {
		return nil, err
	}
	if err := store.UpsertNodes(created); err != nil {
		return nil, err
	}
	mappings := make([]element.IDMapping, 0, len(created))
	for i, node := range created {
		mappings = append(mappings, element.IDMapping{OSMID: node.ID, ObjectID: missing[i].ID})
	}
	if err := store.UpsertIDMappings(mappings); err != nil {
		return nil, err
	}

	results.Imported = missing
	log.Printf("[info] %d objects already in OSM, %d imported",
		len(results.AlreadyPresent), len(results.Imported))
	return results, nil
}

func withNodeTags(objects []element.Object, nodeTags element.Tags) []element.Object {
	if len(nodeTags) == 0 {
		return objects
	}
	result := make([]element.Object, len(objects))
	for i, obj := range objects {
		tags := element.Tags{}
		for key, value := range nodeTags {
			tags[key] = value
		}
		for key, value := range obj.Tags {
			tags[key] = value
		}
		obj.Tags = tags
		result[i] = obj
	}
	return result
}
