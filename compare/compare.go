// Package compare checks locally stored nodes against the live OSM API
// and reports which ones changed upstream.
package compare

import (
	"context"

	"github.com/openstreetmap-polska/synchrosm/database"
	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/log"
)

type Options struct {
	// Limit caps how many stored nodes are checked per run, to stay
	// below API rate limits. Zero or negative checks all.
	Limit int
	// Update brings the local store up to date with the comparison
	// results: moved nodes are upserted, deleted nodes removed.
	Update bool
}

// NodeFetcher is the part of the OSM API client the comparison needs.
type NodeFetcher interface {
	Nodes(ctx context.Context, ids []int64) (map[int64]*element.Node, error)
}

// Run loads up to opts.Limit stored nodes, fetches their current state
// from the API and classifies them.
func Run(ctx context.Context, store database.Store, fetcher NodeFetcher, opts Options) (*element.ComparisonResults, error) {
	stored, err := store.SelectNodes(opts.Limit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(stored))
	for _, node := range stored {
		ids = append(ids, node.ID)
	}
	remote, err := fetcher.Nodes(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := Classify(stored, remote)
	log.Printf("[info] %d nodes did not change", len(results.Unchanged))
	log.Printf("[info] %d nodes have newer versions available", len(results.NewVersion))

	if opts.Update && len(results.NewVersion) > 0 {
		if err := applyUpdates(store, results.NewVersion); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Classify partitions the stored nodes by how their version relates to
// the version the API reports. Version regressions and nodes missing
// remotely are logged as errors and skipped, they never halt the batch.
func Classify(stored []*element.Node, remote map[int64]*element.Node) *element.ComparisonResults {
	results := &element.ComparisonResults{}
	for _, node := range stored {
		current, ok := remote[node.ID]
		switch {
		case !ok:
			log.Errorf("node %d not found", node.ID)
		case current.Version == node.Version:
			results.Unchanged = append(results.Unchanged, node)
		case current.Version > node.Version:
			results.NewVersion = append(results.NewVersion, element.NodeComparison{Old: node, New: current})
		default:
			log.Errorf("node %d has version %d while API sent version %d",
				node.ID, node.Version, current.Version)
		}
	}
	return results
}

func applyUpdates(store database.Store, comparisons []element.NodeComparison) error {
	var upserts []*element.Node
	var deletes []int64
	for _, comparison := range comparisons {
		if comparison.New.HasLocation() {
			upserts = append(upserts, comparison.New)
		} else {
			deletes = append(deletes, comparison.New.ID)
		}
	}
	if len(upserts) > 0 {
		if err := store.UpsertNodes(upserts); err != nil {
			return err
		}
	}
	if len(deletes) > 0 {
		if err := store.DeleteNodes(deletes); err != nil {
			return err
		}
	}
	return nil
}
