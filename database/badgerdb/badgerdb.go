// Package badgerdb implements the node store on an embedded Badger
// key-value database. It is the default backend: a local store that
// needs no running database server.
package badgerdb

import (
	"encoding/json"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"

	"github.com/openstreetmap-polska/synchrosm/database"
	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/log"
)

var (
	nodePrefix    = []byte("node/")
	mappingPrefix = []byte("mapping/")
	timestampKey  = []byte("meta/osm_base_timestamp")
)

type BadgerDB struct {
	DB   *badger.DB
	path string
}

func New(conf database.Config) (database.Store, error) {
	path := strings.TrimPrefix(conf.ConnectionParams, "badger://")
	if path == "" {
		return nil, errors.New("missing path in badger connection string")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger store in %s", path)
	}
	return &BadgerDB{DB: db, path: path}, nil
}

// nodeRecord mirrors element.Node with nullable coordinates, since
// NaN is not representable in JSON.
type nodeRecord struct {
	ID       int64            `json:"id"`
	Version  int32            `json:"version"`
	Lat      *float64         `json:"latitude"`
	Long     *float64         `json:"longitude"`
	Tags     element.Tags     `json:"tags,omitempty"`
	Metadata element.Metadata `json:"metadata,omitempty"`
}

func record(node *element.Node) nodeRecord {
	rec := nodeRecord{
		ID:       node.ID,
		Version:  node.Version,
		Tags:     node.Tags,
		Metadata: node.Metadata,
	}
	if node.HasLocation() {
		lat, long := node.Lat, node.Long
		rec.Lat = &lat
		rec.Long = &long
	}
	return rec
}

func (r *nodeRecord) node() *element.Node {
	node := &element.Node{
		ID:       r.ID,
		Version:  r.Version,
		Lat:      math.NaN(),
		Long:     math.NaN(),
		Tags:     r.Tags,
		Metadata: r.Metadata,
	}
	if r.Lat != nil {
		node.Lat = *r.Lat
	}
	if r.Long != nil {
		node.Long = *r.Long
	}
	return node
}

func nodeKey(id int64) []byte {
	return []byte("node/" + strconv.FormatInt(id, 10))
}

func mappingKey(id int64) []byte {
	return []byte("mapping/" + strconv.FormatInt(id, 10))
}

// Init is a no-op, the store is schema-free.
func (b *BadgerDB) Init() error {
	return nil
}

func (b *BadgerDB) TruncateAll() error {
	var keys [][]byte
	err := b.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	txn := b.DB.NewTransaction(true)
	defer func() { txn.Discard() }()
	for _, key := range keys {
		if err := txn.Delete(key); err == badger.ErrTxnTooBig {
			if err := txn.Commit(); err != nil {
				return err
			}
			txn = b.DB.NewTransaction(true)
			if err := txn.Delete(key); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	log.Printf("[debug] truncated store, keys: %d", len(keys))
	return nil
}

func (b *BadgerDB) SetBaseTimestamp(timestamp time.Time) error {
	return b.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(timestampKey, []byte(timestamp.Format(time.RFC3339Nano)))
	})
}

func (b *BadgerDB) BaseTimestamp() (time.Time, error) {
	var value []byte
	err := b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(timestampKey)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	timestamp, err := time.Parse(time.RFC3339Nano, string(value))
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing stored timestamp")
	}
	return timestamp, nil
}

func (b *BadgerDB) UpsertNodes(nodes []*element.Node) error {
	err := b.DB.Update(func(txn *badger.Txn) error {
		for _, node := range nodes {
			rec := record(node)
			value, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			if err := txn.Set(nodeKey(node.ID), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[debug] updated store, nodes: %d", len(nodes))
	return nil
}

func (b *BadgerDB) SelectNodes(limit int) ([]*element.Node, error) {
	var nodes []*element.Node
	err := b.DB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(nodePrefix); it.ValidForPrefix(nodePrefix); it.Next() {
			if limit > 0 && len(nodes) >= limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				rec := nodeRecord{}
				if err := json.Unmarshal(value, &rec); err != nil {
					return errors.Wrapf(err, "decoding node %s", it.Item().Key())
				}
				nodes = append(nodes, rec.node())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[debug] selected from store, nodes: %d", len(nodes))
	return nodes, nil
}

func (b *BadgerDB) DeleteNodes(ids []int64) error {
	err := b.DB.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(nodeKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[debug] deleted from store, nodes: %d", len(ids))
	return nil
}

func (b *BadgerDB) UpsertIDMappings(mappings []element.IDMapping) error {
	err := b.DB.Update(func(txn *badger.Txn) error {
		for _, mapping := range mappings {
			if err := txn.Set(mappingKey(mapping.OSMID), []byte(mapping.ObjectID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[debug] updated store, mappings: %d", len(mappings))
	return nil
}

func (b *BadgerDB) SelectIDMappings() (map[int64]string, map[string]int64, error) {
	osmToObject := map[int64]string{}
	objectToOSM := map[string]int64{}
	err := b.DB.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(mappingPrefix); it.ValidForPrefix(mappingPrefix); it.Next() {
			item := it.Item()
			id, err := strconv.ParseInt(string(item.Key()[len(mappingPrefix):]), 10, 64)
			if err != nil {
				return errors.Wrapf(err, "decoding mapping key %s", item.Key())
			}
			err = item.Value(func(value []byte) error {
				osmToObject[id] = string(value)
				objectToOSM[string(value)] = id
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[debug] selected from store, mappings: %d", len(osmToObject))
	return osmToObject, objectToOSM, nil
}

func (b *BadgerDB) Close() error {
	return b.DB.Close()
}

func init() {
	database.Register("badger", New)
}
