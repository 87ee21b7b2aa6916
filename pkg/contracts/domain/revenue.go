package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is one company's monthly revenue disclosure as returned by an exchange API.
// The field set is owned by the upstream API; Record keeps it as an ordered list of
// field names with their text values so that exports preserve the upstream column order.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord builds a Record from alternating key/value pairs.
// It panics on an odd number of arguments, so it is intended for fixtures and tests.
func NewRecord(kv ...string) Record {
	if len(kv)%2 != 0 {
		panic("domain.NewRecord: odd number of arguments")
	}
	r := Record{values: make(map[string]string, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Keys returns the field names in the order the upstream API sent them.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Get returns the value stored for key and whether it was present.
func (r Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Set stores value under key, appending key to the field order when it is new.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Row projects the record onto columns. Missing fields become empty strings and
// fields outside columns are reported in extras.
func (r Record) Row(columns []string) (row []string, extras []string) {
	row = make([]string, len(columns))
	want := make(map[string]struct{}, len(columns))
	for i, col := range columns {
		want[col] = struct{}{}
		row[i] = r.values[col]
	}
	for _, k := range r.keys {
		if _, ok := want[k]; !ok {
			extras = append(extras, k)
		}
	}
	return row, extras
}

// UnmarshalJSON decodes a JSON object while keeping its key order.
// Strings and numbers keep their literal text, null becomes "", booleans become
// "true"/"false" and nested objects or arrays are kept as compact JSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object, got %v", tok)
	}

	*r = Record{values: make(map[string]string)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		value, err := fieldText(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		r.Set(key, value)
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func fieldText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n':
		return "", nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		// numbers and booleans keep their literal text
		return string(trimmed), nil
	}
}

// RecordBatch is the ordered set of records one source returned in one run.
// A nil or empty batch means the source contributed no data.
type RecordBatch []Record

// Columns returns the field order of the first record, which defines the CSV
// columns for the batch. It returns nil for an empty batch.
func (b RecordBatch) Columns() []string {
	if len(b) == 0 {
		return nil
	}
	return b[0].Keys()
}

// Summary is the badge document written per source after each run.
// Field order is fixed: schemaVersion, label, message, color.
type Summary struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
}

const (
	// SummarySchemaVersion is the badge endpoint schema version.
	SummarySchemaVersion = 1
	// SummaryColor is the badge color used for every source.
	SummaryColor = "blue"
)

// NewSummary builds the badge document for a record count.
func NewSummary(label string, count int) Summary {
	return Summary{
		SchemaVersion: SummarySchemaVersion,
		Label:         label,
		Message:       fmt.Sprintf("%d", count),
		Color:         SummaryColor,
	}
}
