package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Patch is a partial record: top-level JSON fields to overwrite.
type Patch map[string]json.RawMessage

// NewPatch builds a Patch from plain values.
func NewPatch(fields map[string]any) (Patch, error) {
	p := make(Patch, len(fields))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		p[k] = raw
	}
	return p, nil
}

var archivePatch = Patch{"archived": json.RawMessage("true")}

// record pairs a decoded entity with the stored object it came from. The
// stored bytes are what gets written back, so fields the entity type does not
// declare, key order and zero values the type would add all stay as they are
// on disk.
type record[T any] struct {
	value T
	raw   json.RawMessage
}

// newRecord builds the record of an entity that has never been stored.
func newRecord[T any](value T) (record[T], error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return record[T]{}, err
	}
	return record[T]{value: value, raw: raw}, nil
}

// decodeRecord builds a record from one stored JSON object.
func decodeRecord[T any](raw json.RawMessage) (record[T], error) {
	if _, err := parseObject(raw); err != nil {
		return record[T]{}, err
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return record[T]{}, err
	}
	stored := make(json.RawMessage, len(raw))
	copy(stored, raw)
	return record[T]{value: value, raw: stored}, nil
}

// decodeCollection parses a collection file. Input that is not JSON is a read
// failure; JSON that is not an array of objects is corrupt.
func decodeCollection[T any](data []byte) ([]record[T], error) {
	if !json.Valid(data) {
		return nil, newError(ErrReadFailure, "", "", errors.New("malformed JSON"))
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, newError(ErrCorrupt, "", "", errors.New("content is not an array"))
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, newError(ErrCorrupt, "", "", err)
	}
	records := make([]record[T], 0, len(items))
	for i, item := range items {
		rec, err := decodeRecord[T](item)
		if err != nil {
			return nil, newError(ErrCorrupt, "", storedID(item), fmt.Errorf("item %d: %w", i, err))
		}
		records = append(records, rec)
	}
	return records, nil
}

func encodeCollection[T any](records []record[T]) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, rec := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		if len(rec.raw) == 0 {
			return nil, errors.New("record has no stored form")
		}
		buf.Write(rec.raw)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// merge overlays patch on the stored object of rec. The id field of the patch
// is ignored. Fields keep their stored position; new fields are appended.
func merge[T any](rec record[T], patch Patch) (record[T], error) {
	obj, err := parseObject(rec.raw)
	if err != nil {
		return record[T]{}, err
	}
	for _, k := range sortedKeys(patch) {
		if k == "id" {
			continue
		}
		var value bytes.Buffer
		if err := json.Compact(&value, patch[k]); err != nil {
			return record[T]{}, fmt.Errorf("field %s: %w", k, err)
		}
		obj.set(k, value.Bytes())
	}
	return decodeRecord[T](obj.encode())
}

// storedID extracts the id of a stored object for error reports. It returns
// an empty string when there is none.
func storedID(raw json.RawMessage) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.ID
}

// object is a JSON object that remembers the order of its keys.
type object struct {
	keys   []string
	fields map[string]json.RawMessage
}

func parseObject(raw []byte) (*object, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("record is not an object")
	}
	obj := &object{fields: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		obj.set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func (o *object) set(key string, value json.RawMessage) {
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = value
}

func (o *object) encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(o.fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func sortedKeys(p Patch) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
