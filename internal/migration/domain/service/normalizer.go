package service

import (
	"strings"

	"cosmo-migrator/internal/migration/domain/model"
)

// DefaultInternalPrefix marks store-generated metadata (_rid, _etag, _ts, _id...).
const DefaultInternalPrefix = "_"

// DefaultTimestampFields are converted to epoch milliseconds.
var DefaultTimestampFields = []string{"creationDate", "lastUpdate"}

// NormalizerOptions configures a Normalizer.
type NormalizerOptions struct {
	InternalPrefix  string
	TimestampFields []string
}

// Normalizer rewrites a raw source record into the destination schema.
type Normalizer struct {
	internalPrefix  string
	timestampFields []string
}

// NewNormalizer creates a normalizer with the default options.
func NewNormalizer() *Normalizer {
	return NewNormalizerWithOptions(NormalizerOptions{})
}

// NewNormalizerWithOptions creates a normalizer; zero-valued options fall back to defaults.
func NewNormalizerWithOptions(opts NormalizerOptions) *Normalizer {
	if opts.InternalPrefix == "" {
		opts.InternalPrefix = DefaultInternalPrefix
	}
	if len(opts.TimestampFields) == 0 {
		opts.TimestampFields = DefaultTimestampFields
	}
	return &Normalizer{
		internalPrefix:  opts.InternalPrefix,
		timestampFields: opts.TimestampFields,
	}
}

// Normalize returns a normalized copy of entity; the input is left untouched.
// scope holds the source ids of the traversal position and supplies
// organizationId, workspaceId and scenarioId when the record lacks them.
func (n *Normalizer) Normalize(entity *model.Entity, scope model.Scope) (*model.Entity, error) {
	out := entity.Clone()
	fields := out.Fields
	if fields == nil {
		fields = make(model.Record)
		out.Fields = fields
	}

	for key := range fields {
		if strings.HasPrefix(key, n.internalPrefix) {
			delete(fields, key)
		}
	}

	if v, ok := fields["ioTypes"]; ok {
		fields["io_types"] = v
		delete(fields, "ioTypes")
	}
	renameCompatibilityKeys(fields["compatibility"])

	for _, field := range n.timestampFields {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		millis, changed, err := ToEpochMillis(field, raw)
		if err != nil {
			return nil, err
		}
		if changed {
			fields[field] = millis
		}
	}

	attachScope(out.Kind, fields, scope)
	return out, nil
}

func renameCompatibilityKeys(v interface{}) {
	rename := func(m map[string]interface{}) {
		if key, ok := m["solutionKey"]; ok {
			m["solution_key"] = key
			delete(m, "solutionKey")
		}
	}
	switch list := v.(type) {
	case []interface{}:
		for _, item := range list {
			switch m := item.(type) {
			case map[string]interface{}:
				rename(m)
			case model.Record:
				rename(m)
			}
		}
	case []map[string]interface{}:
		for _, m := range list {
			rename(m)
		}
	}
}

// attachScope fills in the scope-derived foreign keys a record of kind is
// expected to carry. Global kinds never receive them.
func attachScope(kind model.Kind, fields model.Record, scope model.Scope) {
	if kind.IsGlobal() || kind == model.KindOrganization {
		return
	}
	setIfAbsent := func(key, value string) {
		if value == "" {
			return
		}
		if existing, ok := fields[key].(string); ok && existing != "" {
			return
		}
		fields[key] = value
	}

	setIfAbsent("organizationId", scope.OrganizationID)
	switch kind {
	case model.KindScenario:
		setIfAbsent("workspaceId", scope.WorkspaceID)
	case model.KindScenarioRun:
		setIfAbsent("workspaceId", scope.WorkspaceID)
		setIfAbsent("scenarioId", scope.ScenarioID)
	}
}
