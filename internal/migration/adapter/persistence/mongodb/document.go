package mongodb

import (
	"time"

	"cosmo-migrator/internal/migration/domain/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToRecord converts a decoded BSON document into a plain record. Dates become
// time.Time, object ids their hex form, and nested documents and arrays are
// converted recursively. A document without an "id" field gets one from _id.
func ToRecord(doc bson.M) model.Record {
	rec := make(model.Record, len(doc))
	for k, v := range doc {
		rec[k] = convertValue(v)
	}
	if id, ok := rec[model.IDField].(string); !ok || id == "" {
		switch oid := doc["_id"].(type) {
		case string:
			rec[model.IDField] = oid
		case primitive.ObjectID:
			rec[model.IDField] = oid.Hex()
		}
	}
	return rec
}

func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.ObjectID:
		return val.Hex()
	case primitive.Decimal128:
		return val.String()
	case int32:
		return int64(val)
	case primitive.M:
		return convertNested(val)
	case primitive.D:
		m := make(bson.M, len(val))
		for _, e := range val {
			m[e.Key] = e.Value
		}
		return convertNested(m)
	case primitive.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	case map[string]interface{}:
		return convertNested(bson.M(val))
	default:
		return v
	}
}

// convertNested converts an embedded document; unlike ToRecord it never
// synthesizes an id.
func convertNested(m bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = convertValue(v)
	}
	return out
}
