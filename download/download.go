// Package download fetches the current state of the monitored nodes and
// stores it as the local base for comparing and matching.
package download

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/openstreetmap-polska/synchrosm/database"
	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/log"
	"github.com/openstreetmap-polska/synchrosm/overpass"
	"github.com/openstreetmap-polska/synchrosm/reader"
)

// Options selects the node source: an Overpass query (inline text or
// from a file) or a local PBF extract.
type Options struct {
	Query     string
	QueryFile string
	PBFFile   string
}

// Run fetches the nodes and upserts them into the store, together with
// the freshness timestamp of the data.
func Run(ctx context.Context, store database.Store, client *overpass.Client, opts Options) error {
	nodes, timestamp, err := fetch(ctx, client, opts)
	if err != nil {
		return err
	}
	if err := store.Init(); err != nil {
		return err
	}
	if err := store.UpsertNodes(nodes); err != nil {
		return err
	}
	if err := store.SetBaseTimestamp(timestamp); err != nil {
		return err
	}
	log.Printf("[info] stored %d nodes, data till %v", len(nodes), timestamp)
	return nil
}

func fetch(ctx context.Context, client *overpass.Client, opts Options) ([]*element.Node, time.Time, error) {
	switch {
	case opts.PBFFile != "":
		return reader.ReadPBF(ctx, opts.PBFFile)
	case opts.QueryFile != "":
		result, err := client.QueryFile(ctx, opts.QueryFile)
		if err != nil {
			return nil, time.Time{}, err
		}
		return overpass.Nodes(result.Elements), result.Timestamp, nil
	case opts.Query != "":
		result, err := client.Query(ctx, opts.Query)
		if err != nil {
			return nil, time.Time{}, err
		}
		return overpass.Nodes(result.Elements), result.Timestamp, nil
	}
	return nil, time.Time{}, errors.New("missing query, query file, or pbf extract")
}
