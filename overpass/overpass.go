// Package overpass queries an Overpass API server for OSM elements.
package overpass

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openstreetmap-polska/synchrosm"
	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/log"
)

// DefaultURL is the public Overpass interpreter endpoint.
const DefaultURL = "https://lz4.overpass-api.de/api/interpreter"

// Client calls a single Overpass interpreter endpoint. The zero value
// queries DefaultURL with http.DefaultClient.
type Client struct {
	URL    string
	HTTP   *http.Client
	Logger log.Logger
}

// Element is a raw record as returned by the interpreter.
type Element struct {
	Type      string       `json:"type"`
	ID        int64        `json:"id"`
	Version   int32        `json:"version"`
	Lat       *float64     `json:"lat"`
	Lon       *float64     `json:"lon"`
	Tags      element.Tags `json:"tags"`
	Changeset int64        `json:"changeset"`
	User      string       `json:"user"`
	UID       int64        `json:"uid"`
	Timestamp string       `json:"timestamp"`
}

// Result is a decoded interpreter response.
type Result struct {
	// Timestamp is the server's osm_base time, i.e. how fresh the
	// underlying OSM snapshot was.
	Timestamp time.Time
	Elements  []Element
}

type response struct {
	OSM3S struct {
		TimestampOSMBase string `json:"timestamp_osm_base"`
	} `json:"osm3s"`
	Elements []Element `json:"elements"`
}

// Query posts an Overpass QL query and returns the decoded response.
func (c *Client) Query(ctx context.Context, query string) (*Result, error) {
	server := c.URL
	if server == "" {
		server = DefaultURL
	}
	c.logger().Printf("[info] sending request to %s", server)

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, "POST", server, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "synchrosm "+synchrosm.Version)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", server)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 8*1024))
		c.logger().Printf("[error] overpass response %s: %s", resp.Status, bytes.TrimSpace(body))
		return nil, errors.Errorf("overpass query to %s failed: %s", server, resp.Status)
	}

	data := response{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "decoding overpass response")
	}
	timestamp, err := time.Parse(time.RFC3339, data.OSM3S.TimestampOSMBase)
	if err != nil {
		return nil, errors.Wrap(err, "parsing osm_base timestamp")
	}
	return &Result{Timestamp: timestamp, Elements: data.Elements}, nil
}

// QueryFile reads an Overpass QL query from path and runs it.
func (c *Client) QueryFile(ctx context.Context, path string) (*Result, error) {
	c.logger().Printf("[info] reading query from %s", path)
	query, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading query from %s", path)
	}
	return c.Query(ctx, string(query))
}

func (c *Client) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.DefaultLogger
}

// Nodes converts all node records to elements, silently skipping ways,
// relations and other element types.
func Nodes(elements []Element) []*element.Node {
	var nodes []*element.Node
	for _, e := range elements {
		if e.Type != "node" {
			continue
		}
		nodes = append(nodes, e.node())
	}
	return nodes
}

func (e *Element) node() *element.Node {
	lat, long := math.NaN(), math.NaN()
	if e.Lat != nil {
		lat = *e.Lat
	}
	if e.Lon != nil {
		long = *e.Lon
	}
	metadata := element.Metadata{}
	if e.Changeset != 0 {
		metadata["changeset"] = e.Changeset
	}
	if e.User != "" {
		metadata["user"] = e.User
	}
	if e.UID != 0 {
		metadata["uid"] = e.UID
	}
	if e.Timestamp != "" {
		metadata["timestamp"] = e.Timestamp
	}
	return &element.Node{
		ID:       e.ID,
		Version:  e.Version,
		Lat:      lat,
		Long:     long,
		Tags:     e.Tags,
		Metadata: metadata,
	}
}
