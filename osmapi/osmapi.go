// Package osmapi edits OSM data through the 0.6 editing API.
//
// All edits happen inside a changeset session: open a changeset, apply
// every change, close the changeset. A failing remote call aborts the
// whole batch.
package osmapi

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/openstreetmap-polska/synchrosm"
	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/log"
)

// DefaultURL is the production OSM API server.
const DefaultURL = "https://api.openstreetmap.org"

// chunkSize limits how many node ids go into a single fetch request.
const chunkSize = 50

// fetchConcurrency limits parallel fetch requests.
const fetchConcurrency = 4

// Client talks to one OSM API server. The zero value reads from
// DefaultURL; User and Password are required for edits only.
type Client struct {
	URL      string
	User     string
	Password string
	HTTP     *http.Client
	Logger   log.Logger
}

type osmFile struct {
	XMLName    xml.Name       `xml:"osm"`
	Nodes      []osmNode      `xml:"node"`
	Changesets []osmChangeset `xml:"changeset"`
}

type osmNode struct {
	ID        int64    `xml:"id,attr,omitempty"`
	Version   int32    `xml:"version,attr,omitempty"`
	Lat       *float64 `xml:"lat,attr"`
	Lon       *float64 `xml:"lon,attr"`
	Changeset int64    `xml:"changeset,attr,omitempty"`
	Visible   *bool    `xml:"visible,attr"`
	Timestamp string   `xml:"timestamp,attr,omitempty"`
	User      string   `xml:"user,attr,omitempty"`
	UID       int64    `xml:"uid,attr,omitempty"`
	Tags      []osmTag `xml:"tag"`
}

type osmChangeset struct {
	Tags []osmTag `xml:"tag"`
}

type osmTag struct {
	Key   string `xml:"k,attr"`
	Value string `xml:"v,attr"`
}

// Nodes fetches the current state of all ids, in chunks of 50 fetched
// in parallel. Deleted nodes come back without coordinates.
func (c *Client) Nodes(ctx context.Context, ids []int64) (map[int64]*element.Node, error) {
	result := make(map[int64]*element.Node, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	chunks := chunkIDs(ids, chunkSize)
	c.logger().Printf("[info] fetching %d nodes in %d requests", len(ids), len(chunks))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			nodes, err := c.fetchChunk(ctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, node := range nodes {
				result[node.ID] = node
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) fetchChunk(ctx context.Context, ids []int64) ([]*element.Node, error) {
	params := make([]string, len(ids))
	for i, id := range ids {
		params[i] = strconv.FormatInt(id, 10)
	}
	body, err := c.request(ctx, "GET", "/api/0.6/nodes?nodes="+strings.Join(params, ","), nil)
	if err != nil {
		return nil, err
	}

	file := osmFile{}
	if err := xml.Unmarshal(body, &file); err != nil {
		return nil, errors.Wrap(err, "decoding nodes response")
	}
	nodes := make([]*element.Node, 0, len(file.Nodes))
	for i := range file.Nodes {
		nodes = append(nodes, file.Nodes[i].node())
	}
	return nodes, nil
}

// CreateNodes creates one node per object inside a single changeset and
// returns the created nodes with their server-assigned ids.
func (c *Client) CreateNodes(ctx context.Context, objects []element.Object, changesetTags element.Tags) ([]*element.Node, error) {
	changesetID, err := c.openChangeset(ctx, changesetTags)
	if err != nil {
		return nil, err
	}

	created := make([]*element.Node, 0, len(objects))
	for _, obj := range objects {
		node := &element.Node{Lat: obj.Lat, Long: obj.Long, Tags: obj.Tags}
		body, err := c.request(ctx, "PUT", "/api/0.6/node/create",
			&osmFile{Nodes: []osmNode{uploadNode(node, changesetID)}})
		if err != nil {
			return nil, err
		}
		id, err := parseID(body)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing id of created node for %q", obj.ID)
		}
		created = append(created, &element.Node{
			ID:       id,
			Version:  1,
			Lat:      obj.Lat,
			Long:     obj.Long,
			Tags:     obj.Tags,
			Metadata: element.Metadata{"changeset": changesetID},
		})
	}

	if err := c.closeChangeset(ctx, changesetID); err != nil {
		return nil, err
	}
	c.logger().Printf("[info] created %d nodes in changeset %d", len(created), changesetID)
	return created, nil
}

// UpdateNodes uploads full node snapshots inside a single changeset and
// returns the nodes with their new versions.
func (c *Client) UpdateNodes(ctx context.Context, nodes []*element.Node, changesetTags element.Tags) ([]*element.Node, error) {
	changesetID, err := c.openChangeset(ctx, changesetTags)
	if err != nil {
		return nil, err
	}

	updated := make([]*element.Node, 0, len(nodes))
	for _, node := range nodes {
		body, err := c.request(ctx, "PUT", fmt.Sprintf("/api/0.6/node/%d", node.ID),
			&osmFile{Nodes: []osmNode{uploadNode(node, changesetID)}})
		if err != nil {
			return nil, err
		}
		version, err := parseID(body)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing new version of node %d", node.ID)
		}
		result := *node
		result.Version = int32(version)
		result.Metadata = element.Metadata{"changeset": changesetID}
		updated = append(updated, &result)
	}

	if err := c.closeChangeset(ctx, changesetID); err != nil {
		return nil, err
	}
	c.logger().Printf("[info] updated %d nodes in changeset %d", len(updated), changesetID)
	return updated, nil
}

func (c *Client) openChangeset(ctx context.Context, tags element.Tags) (int64, error) {
	body, err := c.request(ctx, "PUT", "/api/0.6/changeset/create",
		&osmFile{Changesets: []osmChangeset{{Tags: uploadTags(tags)}}})
	if err != nil {
		return 0, err
	}
	id, err := parseID(body)
	if err != nil {
		return 0, errors.Wrap(err, "parsing changeset id")
	}
	c.logger().Printf("[info] opened changeset %d", id)
	return id, nil
}

func (c *Client) closeChangeset(ctx context.Context, id int64) error {
	_, err := c.request(ctx, "PUT", fmt.Sprintf("/api/0.6/changeset/%d/close", id), nil)
	return err
}

// request sends one API call and returns the raw response body.
// A non-nil payload is marshalled as an XML document.
func (c *Client) request(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := xml.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = strings.NewReader(xml.Header + string(data))
	}

	server := c.URL
	if server == "" {
		server = DefaultURL
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(server, "/")+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	}
	req.Header.Set("User-Agent", "synchrosm "+synchrosm.Version)
	if c.User != "" {
		req.SetBasicAuth(c.User, c.Password)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		return nil, errors.Wrapf(err, "reading response of %s %s", method, path)
	}
	if resp.StatusCode != 200 {
		c.logger().Printf("[error] osm api response %s: %s", resp.Status, bytes.TrimSpace(body))
		return nil, errors.Errorf("%s %s failed: %s", method, path, resp.Status)
	}
	return body, nil
}

func (c *Client) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.DefaultLogger
}

func (n *osmNode) node() *element.Node {
	lat, long := math.NaN(), math.NaN()
	if n.Lat != nil {
		lat = *n.Lat
	}
	if n.Lon != nil {
		long = *n.Lon
	}
	tags := make(element.Tags, len(n.Tags))
	for _, tag := range n.Tags {
		tags[tag.Key] = tag.Value
	}
	metadata := element.Metadata{}
	if n.Changeset != 0 {
		metadata["changeset"] = n.Changeset
	}
	if n.Visible != nil {
		metadata["visible"] = *n.Visible
	}
	if n.Timestamp != "" {
		metadata["timestamp"] = n.Timestamp
	}
	if n.User != "" {
		metadata["user"] = n.User
	}
	if n.UID != 0 {
		metadata["uid"] = n.UID
	}
	return &element.Node{
		ID:       n.ID,
		Version:  n.Version,
		Lat:      lat,
		Long:     long,
		Tags:     tags,
		Metadata: metadata,
	}
}

func uploadNode(node *element.Node, changesetID int64) osmNode {
	result := osmNode{
		ID:        node.ID,
		Version:   node.Version,
		Changeset: changesetID,
		Tags:      uploadTags(node.Tags),
	}
	if node.HasLocation() {
		lat, long := node.Lat, node.Long
		result.Lat = &lat
		result.Lon = &long
	}
	return result
}

func uploadTags(tags element.Tags) []osmTag {
	result := make([]osmTag, 0, len(tags))
	for key, value := range tags {
		result = append(result, osmTag{Key: key, Value: value})
	}
	return result
}

// parseID reads the plain-text number the API returns from create,
// update and changeset calls.
func parseID(body []byte) (int64, error) {
	return strconv.ParseInt(string(bytes.TrimSpace(body)), 10, 64)
}

func chunkIDs(ids []int64, size int) [][]int64 {
	var chunks [][]int64
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
