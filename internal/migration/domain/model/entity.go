package model

import (
	"fmt"
	"strings"
)

// Record is a raw key/value document as read from, or written to, a store.
type Record map[string]interface{}

// Entity is one domain object moving through the migration.
type Entity struct {
	Kind   Kind
	ID     string
	Fields Record
}

// TypeField carries an explicit kind on raw documents.
const TypeField = "type"

// IDField is the identifier key of every document.
const IDField = "id"

// NewEntity builds an entity from a raw document. An explicit `type` field is
// consumed and wins over prefix classification.
func NewEntity(doc Record) (*Entity, error) {
	fields := doc.Clone()
	id, _ := fields[IDField].(string)
	if id == "" {
		return nil, fmt.Errorf("document has no %q field", IDField)
	}

	kind := KindUnknown
	if t, ok := fields[TypeField].(string); ok {
		kind = ParseKind(t)
		delete(fields, TypeField)
	}
	if kind == KindUnknown {
		kind = Classify(id)
	}
	return &Entity{Kind: kind, ID: id, Fields: fields}, nil
}

// NewTypedEntity builds an entity whose kind is known from the source collection.
func NewTypedEntity(kind Kind, doc Record) (*Entity, error) {
	id, _ := doc[IDField].(string)
	if id == "" {
		return nil, fmt.Errorf("%s document has no %q field", kind, IDField)
	}
	return &Entity{Kind: kind, ID: id, Fields: doc.Clone()}, nil
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	return &Entity{Kind: e.Kind, ID: e.ID, Fields: e.Fields.Clone()}
}

// Clone deep-copies the record, including nested maps and slices.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Record:
		return val.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Record(val).Clone())
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(val))
		for i, item := range val {
			out[i] = map[string]interface{}(Record(item).Clone())
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]interface{}:
		return m, true
	}
	return nil, false
}

// Get returns the value at a dot-separated path such as "solution.solutionId".
func (r Record) Get(path string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// GetString returns the string at path, or "" when absent or not a string.
func (r Record) GetString(path string) string {
	v, ok := r.Get(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set assigns value at a dot-separated path. Intermediate maps must exist;
// Set reports false otherwise.
func (r Record) Set(path string, value interface{}) bool {
	parts := strings.Split(path, ".")
	var current map[string]interface{} = r
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(current[part])
		if !ok {
			return false
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
	return true
}
