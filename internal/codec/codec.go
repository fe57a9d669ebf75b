// Package codec converts collection snapshots to and from interchange
// formats. A snapshot is the JSON array a repository writes to disk.
package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Importer parses a document into the raw records of a collection
type Importer interface {
	Parse(r io.Reader) ([]json.RawMessage, error)
	Format() string
}

// Exporter renders a collection snapshot
type Exporter interface {
	Export(snapshot []byte, w io.Writer) error
	Format() string
	ContentType() string
}

// Codec is both an Importer and an Exporter
type Codec interface {
	Importer
	Exporter
}

var codecs = map[string]Codec{
	"json": NewJSONCodec(),
	"yaml": NewYAMLCodec(),
	"yml":  NewYAMLCodec(),
}

// ForFormat returns the codec registered for format
func ForFormat(format string) (Codec, error) {
	if format == "" {
		format = "json"
	}
	c, ok := codecs[format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q (supported: %v)", format, Formats())
	}
	return c, nil
}

// Formats lists the supported format names
func Formats() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// records splits a snapshot into its elements
func records(snapshot []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(snapshot, &items); err != nil {
		return nil, fmt.Errorf("snapshot is not a JSON array: %w", err)
	}
	return items, nil
}
