package crawler

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type sourcesFile struct {
	Stores []SourceConfig `yaml:"stores"`
}

// LoadSources reads the source list from a YAML file
func LoadSources(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes a `stores:` list and rejects entries missing a
// required field.
func ParseSources(data []byte) ([]SourceConfig, error) {
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}

	for i, src := range file.Stores {
		if missing := missingFields(src); len(missing) > 0 {
			return nil, fmt.Errorf("store #%d (%q) is missing %s", i+1, src.Name, strings.Join(missing, ", "))
		}
	}

	return file.Stores, nil
}

func missingFields(src SourceConfig) []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", src.Name},
		{"url", src.URL},
		{"item_selector", src.ItemSelector},
		{"link_selector", src.LinkSelector},
		{"price_current_selector", src.PriceCurrentSelector},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
