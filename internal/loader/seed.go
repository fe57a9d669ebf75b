// Package loader reads seed documents that populate empty collections on
// first start.
//
// A seed document is YAML with one sequence per collection:
//
//	version: 1
//	fields:
//	  - name: Mathematics
//	questions:
//	  - title: 2 + 2 = ?
//	    label: arithmetic
//	    type: singleChoice
//	    answers:
//	      - {content: "4", correct: true}
//	      - {content: "5"}
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// SeedYAML represents the seed file structure
type SeedYAML struct {
	Version   int              `yaml:"version"`
	Questions []map[string]any `yaml:"questions,omitempty"`
	Tests     []map[string]any `yaml:"tests,omitempty"`
	Fields    []map[string]any `yaml:"fields,omitempty"`
}

// Seed holds the records of each collection as a JSON array
type Seed map[string][]byte

// Collections returns the seeded collection names in order
func (s Seed) Collections() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadSeed reads a seed file
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses seed YAML data
func ParseSeed(data []byte) (Seed, error) {
	var y SeedYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("parse seed YAML: %w", err)
	}
	if y.Version > 1 {
		return nil, fmt.Errorf("unsupported seed version %d", y.Version)
	}

	seed := make(Seed)
	for name, records := range map[string][]map[string]any{
		"questions": y.Questions,
		"tests":     y.Tests,
		"fields":    y.Fields,
	} {
		if len(records) == 0 {
			continue
		}
		for i, rec := range records {
			if rec == nil {
				return nil, fmt.Errorf("%s[%d]: record is empty", name, i)
			}
		}
		data, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", name, err)
		}
		seed[name] = data
	}
	return seed, nil
}
