// Package postgres implements the node store on PostgreSQL.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/openstreetmap-polska/synchrosm/database"
	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/log"
)

const timestampKey = "osm_base_timestamp"

type SQLError struct {
	query         string
	originalError error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("SQL Error: %s in query %s", e.originalError.Error(), e.query)
}

type Postgres struct {
	DB     *sql.DB
	Params string
}

func New(conf database.Config) (database.Store, error) {
	pg := &Postgres{}

	params, err := pq.ParseURL(conf.ConnectionParams)
	if err != nil {
		return nil, errors.Wrap(err, "parsing connection string")
	}
	pg.Params = disableDefaultSslOnLocalhost(params)

	if err := pg.open(); err != nil {
		return nil, err
	}
	return pg, nil
}

func (pg *Postgres) open() error {
	var err error
	pg.DB, err = sql.Open("postgres", pg.Params)
	if err != nil {
		return err
	}
	// check that the connection actually works
	return pg.DB.Ping()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		id BIGINT PRIMARY KEY,
		version INTEGER NOT NULL,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		tags TEXT NOT NULL,
		metadata TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS node_id_mappings (
		osm_id BIGINT PRIMARY KEY,
		object_id TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func (pg *Postgres) Init() error {
	for _, stmt := range schema {
		if _, err := pg.DB.Exec(stmt); err != nil {
			return &SQLError{stmt, err}
		}
	}
	log.Println("[debug] created tables")
	return nil
}

func (pg *Postgres) TruncateAll() error {
	stmt := `TRUNCATE nodes, node_id_mappings, meta`
	if _, err := pg.DB.Exec(stmt); err != nil {
		return &SQLError{stmt, err}
	}
	log.Println("[debug] truncated tables")
	return nil
}

func (pg *Postgres) SetBaseTimestamp(timestamp time.Time) error {
	stmt := `INSERT INTO meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := pg.DB.Exec(stmt, timestampKey, timestamp.Format(time.RFC3339Nano)); err != nil {
		return &SQLError{stmt, err}
	}
	return nil
}

func (pg *Postgres) BaseTimestamp() (time.Time, error) {
	stmt := `SELECT value FROM meta WHERE key = $1`
	var value string
	err := pg.DB.QueryRow(stmt, timestampKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, &SQLError{stmt, err}
	}
	timestamp, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing stored timestamp")
	}
	return timestamp, nil
}

func (pg *Postgres) UpsertNodes(nodes []*element.Node) error {
	stmt := `INSERT INTO nodes (id, version, latitude, longitude, tags, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata`

	tx, err := pg.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prepared, err := tx.Prepare(stmt)
	if err != nil {
		return &SQLError{stmt, err}
	}
	defer prepared.Close()

	for _, node := range nodes {
		tags, err := json.Marshal(node.Tags)
		if err != nil {
			return err
		}
		metadata, err := json.Marshal(node.Metadata)
		if err != nil {
			return err
		}
		_, err = prepared.Exec(node.ID, node.Version,
			nullFloat(node.Lat), nullFloat(node.Long),
			string(tags), string(metadata))
		if err != nil {
			return &SQLError{stmt, err}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[debug] updated database, rows: %d", len(nodes))
	return nil
}

func (pg *Postgres) SelectNodes(limit int) ([]*element.Node, error) {
	stmt := `SELECT id, version, latitude, longitude, tags, metadata FROM nodes ORDER BY id`
	args := []interface{}{}
	if limit > 0 {
		stmt += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := pg.DB.Query(stmt, args...)
	if err != nil {
		return nil, &SQLError{stmt, err}
	}
	defer rows.Close()

	var nodes []*element.Node
	for rows.Next() {
		var (
			node      element.Node
			lat, long sql.NullFloat64
			tags      string
			metadata  string
		)
		if err := rows.Scan(&node.ID, &node.Version, &lat, &long, &tags, &metadata); err != nil {
			return nil, &SQLError{stmt, err}
		}
		node.Lat = floatOrNaN(lat)
		node.Long = floatOrNaN(long)
		if err := json.Unmarshal([]byte(tags), &node.Tags); err != nil {
			return nil, errors.Wrapf(err, "decoding tags of node %d", node.ID)
		}
		if err := json.Unmarshal([]byte(metadata), &node.Metadata); err != nil {
			return nil, errors.Wrapf(err, "decoding metadata of node %d", node.ID)
		}
		nodes = append(nodes, &node)
	}
	if err := rows.Err(); err != nil {
		return nil, &SQLError{stmt, err}
	}
	log.Printf("[debug] selected from database, rows: %d", len(nodes))
	return nodes, nil
}

func (pg *Postgres) DeleteNodes(ids []int64) error {
	stmt := `DELETE FROM nodes WHERE id = ANY($1)`
	if _, err := pg.DB.Exec(stmt, pq.Array(ids)); err != nil {
		return &SQLError{stmt, err}
	}
	log.Printf("[debug] deleted nodes, rows: %d", len(ids))
	return nil
}

func (pg *Postgres) UpsertIDMappings(mappings []element.IDMapping) error {
	stmt := `INSERT INTO node_id_mappings (osm_id, object_id) VALUES ($1, $2)
		ON CONFLICT (osm_id) DO UPDATE SET object_id = EXCLUDED.object_id`

	tx, err := pg.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	prepared, err := tx.Prepare(stmt)
	if err != nil {
		return &SQLError{stmt, err}
	}
	defer prepared.Close()

	for _, mapping := range mappings {
		if _, err := prepared.Exec(mapping.OSMID, mapping.ObjectID); err != nil {
			return &SQLError{stmt, err}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[debug] updated database, rows: %d", len(mappings))
	return nil
}

func (pg *Postgres) SelectIDMappings() (map[int64]string, map[string]int64, error) {
	stmt := `SELECT osm_id, object_id FROM node_id_mappings`
	rows, err := pg.DB.Query(stmt)
	if err != nil {
		return nil, nil, &SQLError{stmt, err}
	}
	defer rows.Close()

	osmToObject := map[int64]string{}
	objectToOSM := map[string]int64{}
	for rows.Next() {
		var (
			osmID    int64
			objectID string
		)
		if err := rows.Scan(&osmID, &objectID); err != nil {
			return nil, nil, &SQLError{stmt, err}
		}
		osmToObject[osmID] = objectID
		objectToOSM[objectID] = osmID
	}
	if err := rows.Err(); err != nil {
		return nil, nil, &SQLError{stmt, err}
	}
	log.Printf("[debug] selected from database, rows: %d", len(osmToObject))
	return osmToObject, objectToOSM, nil
}

func (pg *Postgres) Close() error {
	return pg.DB.Close()
}

func nullFloat(f float64) interface{} {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}

// disableDefaultSslOnLocalhost adds sslmode=disable to params when host
// is localhost/127.0.0.1 and the sslmode param and PGSSLMODE environment
// are both not set.
func disableDefaultSslOnLocalhost(params string) string {
	parts := strings.Fields(params)
	isLocalHost := false
	for _, p := range parts {
		if strings.HasPrefix(p, "sslmode=") {
			return params
		}
		if p == "host=localhost" || p == "host=127.0.0.1" {
			isLocalHost = true
		}
	}

	if !isLocalHost {
		return params
	}

	for _, v := range os.Environ() {
		parts := strings.SplitN(v, "=", 2)
		if parts[0] == "PGSSLMODE" {
			return params
		}
	}

	// found localhost but explicit no sslmode, disable sslmode
	return params + " sslmode=disable"
}

func init() {
	database.Register("postgres", New)
	database.Register("postgresql", New)
}
