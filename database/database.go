// Package database defines the persistence interface for nodes, node-id
// mappings and the freshness timestamp, with a registry of backends
// keyed by the connection-string scheme.
package database

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openstreetmap-polska/synchrosm/element"
)

// Config describes how to reach a store.
type Config struct {
	// Type is the connection scheme, e.g. "postgres" or "badger".
	Type string
	// ConnectionParams is the full connection string.
	ConnectionParams string
}

// Store keeps the last known set of nodes, the cached id-mapping table
// and a single freshness timestamp. Write methods are transactional per
// call: a whole batch succeeds or fails together. Upserts key on the
// node id resp. the OSM id of a mapping, last write wins. SelectNodes
// returns all nodes for limit <= 0. BaseTimestamp returns the zero time
// when no timestamp was recorded yet.
type Store interface {
	Init() error
	TruncateAll() error
	SetBaseTimestamp(time.Time) error
	BaseTimestamp() (time.Time, error)
	UpsertNodes([]*element.Node) error
	SelectNodes(limit int) ([]*element.Node, error)
	DeleteNodes(ids []int64) error
	UpsertIDMappings([]element.IDMapping) error
	SelectIDMappings() (map[int64]string, map[string]int64, error)
	Close() error
}

var stores map[string]func(Config) (Store, error)

func init() {
	stores = make(map[string]func(Config) (Store, error))
}

func Register(name string, f func(Config) (Store, error)) {
	stores[name] = f
}

func Open(conf Config) (Store, error) {
	newFunc, ok := stores[conf.Type]
	if !ok {
		return nil, errors.New("unsupported database type: " + conf.Type)
	}

	store, err := newFunc(conf)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// ConnectionType returns the scheme of a connection string.
func ConnectionType(param string) string {
	parts := strings.SplitN(param, ":", 2)
	return parts[0]
}
