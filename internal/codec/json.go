package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ContentType returns the MIME type of exported documents
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// Parse reads a JSON array of records
func (c *JSONCodec) Parse(r io.Reader) ([]json.RawMessage, error) {
	var items []json.RawMessage
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	for i, item := range items {
		if t := bytes.TrimSpace(item); len(t) == 0 || t[0] != '{' {
			return nil, fmt.Errorf("failed to parse JSON: item %d is not an object", i)
		}
	}
	return items, nil
}

// Export writes the snapshot as an indented JSON array
func (c *JSONCodec) Export(snapshot []byte, w io.Writer) error {
	if _, err := records(snapshot); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, snapshot, "", "  "); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	buf.WriteByte('\n')

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}
