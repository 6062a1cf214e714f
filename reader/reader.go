// Package reader seeds the local node store from OSM PBF extracts.
package reader

import (
	"context"
	"os"
	"runtime"
	"time"

	osm "github.com/omniscale/go-osm"
	"github.com/omniscale/go-osm/parser/pbf"
	"github.com/pkg/errors"

	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/log"
)

// ReadPBF parses all tagged nodes from an OSM PBF extract. Plain
// coordinate nodes without tags are skipped, they cannot take part in
// matching. The returned timestamp is the data timestamp from the file
// header, or the file modification time for extracts without one.
func ReadPBF(ctx context.Context, filename string) ([]*element.Node, time.Time, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer file.Close()

	nodes := make(chan []osm.Node, 4)
	coords := make(chan []osm.Node, 4)
	parser := pbf.New(file, pbf.Config{
		IncludeMetadata: true,
		Nodes:           nodes,
		Coords:          coords,
		Concurrency:     runtime.NumCPU(),
	})

	header, err := parser.Header()
	if err != nil {
		return nil, time.Time{}, errors.Wrapf(err, "reading header of %s", filename)
	}
	timestamp := header.Time
	if timestamp.IsZero() {
		stat, err := file.Stat()
		if err != nil {
			return nil, time.Time{}, err
		}
		timestamp = stat.ModTime()
		log.Printf("[warn] %s has no data timestamp, using modification time %v", filename, timestamp)
	} else {
		log.Printf("[info] reading %s with data till %v", filename, timestamp)
	}

	var result []*element.Node
	done := make(chan struct{})
	go func() {
		defer close(done)
		for batch := range nodes {
			for i := range batch {
				result = append(result, node(&batch[i]))
			}
		}
	}()
	go func() {
		for range coords {
		}
	}()

	if err := parser.Parse(ctx); err != nil {
		return nil, time.Time{}, errors.Wrapf(err, "parsing %s", filename)
	}
	<-done

	log.Printf("[info] read %d tagged nodes from %s", len(result), filename)
	return result, timestamp, nil
}

func node(n *osm.Node) *element.Node {
	result := &element.Node{
		ID:   n.ID,
		Lat:  n.Lat,
		Long: n.Long,
		Tags: element.Tags(n.Tags),
	}
	if n.Metadata != nil {
		result.Version = n.Metadata.Version
		result.Metadata = element.Metadata{}
		if n.Metadata.Changeset != 0 {
			result.Metadata["changeset"] = n.Metadata.Changeset
		}
		if n.Metadata.UserName != "" {
			result.Metadata["user"] = n.Metadata.UserName
		}
		if n.Metadata.UserID != 0 {
			result.Metadata["uid"] = int64(n.Metadata.UserID)
		}
		if !n.Metadata.Timestamp.IsZero() {
			result.Metadata["timestamp"] = n.Metadata.Timestamp.UTC().Format(time.RFC3339)
		}
	}
	return result
}
