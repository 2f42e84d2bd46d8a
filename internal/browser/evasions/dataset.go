package evasions

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// DefaultProfile is the dataset used when none is configured.
const DefaultProfile = "chrome"

// Profiles lists the embedded dataset names.
func Profiles() []string {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// LoadProfile decodes an embedded dataset by name.
func LoadProfile(name string) (*schemas.Dataset, error) {
	data, err := profileFS.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown dataset profile %q (available: %s)", name, strings.Join(Profiles(), ", "))
	}
	ds, err := decodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("decoding profile %q: %w", name, err)
	}
	if ds.Name == "" {
		ds.Name = name
	}
	return ds, nil
}

// LoadDatasetFile decodes a dataset from disk. Files ending in .json are
// read as JSON, anything else as YAML.
func LoadDatasetFile(file string) (*schemas.Dataset, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	var ds *schemas.Dataset
	if strings.EqualFold(filepath.Ext(file), ".json") {
		ds = &schemas.Dataset{}
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, ds); err != nil {
			return nil, fmt.Errorf("decoding dataset %s: %w", file, err)
		}
	} else if ds, err = decodeYAML(data); err != nil {
		return nil, fmt.Errorf("decoding dataset %s: %w", file, err)
	}
	if ds.Name == "" {
		ds.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	return ds, nil
}

func decodeYAML(data []byte) (*schemas.Dataset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var ds schemas.Dataset
	if err := dec.Decode(&ds); err != nil {
		return nil, err
	}
	return &ds, nil
}
