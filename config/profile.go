package config

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/openstreetmap-polska/synchrosm/element"
	"github.com/openstreetmap-polska/synchrosm/matching"
)

// Profile describes one synchronization task: the Overpass query that
// delimits the node set, the matching parameters, and the tags applied
// to created nodes and changesets.
//
// An explicitly empty id_tag disables exact-id matching.
type Profile struct {
	Query         string       `yaml:"query"`
	QueryFile     string       `yaml:"queryfile"`
	IDTag         string       `yaml:"id_tag"`
	SearchRadius  float64      `yaml:"search_radius"`
	ChangesetTags element.Tags `yaml:"changeset_tags"`
	NodeTags      element.Tags `yaml:"node_tags"`
}

// LoadProfile reads a YAML profile. Omitted matching parameters get
// their defaults.
func LoadProfile(path string) (*Profile, error) {
	profile := &Profile{
		IDTag:        matching.DefaultIDTag,
		SearchRadius: matching.DefaultSearchRadius,
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading profile %s", path)
	}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, errors.Wrapf(err, "decoding profile %s", path)
	}
	if profile.Query != "" && profile.QueryFile != "" {
		return nil, errors.Errorf("profile %s: query and queryfile are mutually exclusive", path)
	}
	return profile, nil
}
