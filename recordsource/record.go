package recordsource

import (
	"bytes"
	"encoding/json"
)

// Record is an ordered mapping from column name to scalar value. Column
// order reflects the order columns were encountered in the source (JSON key
// order within that object, or header order for Excel) and is preserved on
// the wire; it plays no role in checksum computation, which canonicalizes
// independently of order.
type Record struct {
	Columns []string
	Values  map[string]any
}

// AsMap returns a plain map view of the record, suitable for checksum
// canonicalization where column order is irrelevant.
func (r Record) AsMap() map[string]any {
	m := make(map[string]any, len(r.Values))
	for _, col := range r.Columns {
		m[col] = r.Values[col]
	}
	return m
}

// MarshalJSON preserves column order, unlike encoding/json's default
// alphabetical ordering for map[string]any.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[col])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
