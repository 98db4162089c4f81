package docstore

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	edmInt64   = "Edm.Int64"
	odataType  = "@odata.type"
	keyColumn  = "PartitionKey"
	idColumn   = "RowKey"
	tsColumn   = "Timestamp"
	etagColumn = "odata.etag"
)

// Fields is the wire representation of a document's properties.
type Fields map[string]any

// String returns the named field when present and of string type.
func (f Fields) String(key string) (string, bool) {
	v, ok := f[key].(string)
	return v, ok
}

// Int64 returns the named field when present and numeric. Table storage
// round-trips Edm.Int64 values as annotated strings; decodeEntity normalizes
// those back to int64 before they reach here.
func (f Fields) Int64(key string) (int64, bool) {
	switch v := f[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Bool returns the named field when present and of bool type.
func (f Fields) Bool(key string) (bool, bool) {
	v, ok := f[key].(bool)
	return v, ok
}

// Document is a single record fetched from a collection.
type Document struct {
	ID     string
	Fields Fields
}

// Filter restricts a query or subscription to documents whose property equals
// the given value.
type Filter struct {
	Field string
	Value string
}

// encodeEntity builds the table entity payload for a document. int64 fields
// carry the Edm.Int64 annotation so table storage preserves their width.
func encodeEntity(collection, id string, fields Fields) ([]byte, error) {
	ent := map[string]any{
		keyColumn: collection,
		idColumn:  id,
	}
	for k, v := range fields {
		switch n := v.(type) {
		case int64:
			ent[k] = strconv.FormatInt(n, 10)
			ent[k+odataType] = edmInt64
		case int:
			ent[k] = strconv.Itoa(n)
			ent[k+odataType] = edmInt64
		default:
			ent[k] = v
		}
	}
	return json.Marshal(ent)
}

// decodeEntity converts a raw table entity back into a Document, resolving
// Edm.Int64 annotations and stripping system columns.
func decodeEntity(data []byte) (Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, err
	}

	doc := Document{Fields: Fields{}}
	if id, ok := raw[idColumn].(string); ok {
		doc.ID = id
	}
	for k, v := range raw {
		if k == keyColumn || k == idColumn || k == tsColumn || strings.HasPrefix(k, "odata.") {
			continue
		}
		if strings.HasSuffix(k, odataType) {
			continue
		}
		if t, ok := raw[k+odataType].(string); ok && t == edmInt64 {
			if s, ok := v.(string); ok {
				if n, err := strconv.ParseInt(s, 10, 64); err == nil {
					doc.Fields[k] = n
					continue
				}
			}
		}
		doc.Fields[k] = v
	}
	return doc, nil
}
