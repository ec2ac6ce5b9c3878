package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// BadgeSeed is one entry of the badge catalog seed file.
type BadgeSeed struct {
	Code           string `yaml:"code"`
	Name           string `yaml:"name"`
	Icon           string `yaml:"icon"`
	Description    string `yaml:"description"`
	PointsRequired int64  `yaml:"points_required"`
}

// BadgeCatalog is the top-level structure of the seed file.
type BadgeCatalog struct {
	Badges []BadgeSeed `yaml:"badges"`
}

// LoadBadgeCatalog reads and parses a badge catalog YAML file
func LoadBadgeCatalog(path string) (*BadgeCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading badge catalog %s: %w", path, err)
	}

	var catalog BadgeCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parsing badge catalog %s: %w", path, err)
	}

	for i, b := range catalog.Badges {
		if b.Name == "" {
			return nil, fmt.Errorf("badge catalog entry %d: name is required", i)
		}
		if b.PointsRequired < 0 {
			return nil, fmt.Errorf("badge catalog entry %q: points_required must not be negative", b.Name)
		}
	}
	return &catalog, nil
}
