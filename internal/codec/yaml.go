package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export. Records are written as a sequence of
// mappings with the same field names as the JSON form.
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType returns the MIME type of exported documents
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// Parse reads a YAML sequence of records and converts each to JSON
func (c *YAMLCodec) Parse(r io.Reader) ([]json.RawMessage, error) {
	var docs []map[string]any
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	items := make([]json.RawMessage, 0, len(docs))
	for i, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("failed to parse YAML: item %d is not a mapping", i)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert item %d: %w", i, err)
		}
		items = append(items, data)
	}
	return items, nil
}

// Export writes the snapshot as a YAML sequence
func (c *YAMLCodec) Export(snapshot []byte, w io.Writer) error {
	items, err := records(snapshot)
	if err != nil {
		return err
	}

	docs := make([]map[string]any, 0, len(items))
	for i, item := range items {
		var doc map[string]any
		if err := json.Unmarshal(item, &doc); err != nil {
			return fmt.Errorf("failed to decode item %d: %w", i, err)
		}
		docs = append(docs, doc)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(docs); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}
