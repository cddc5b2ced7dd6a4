package service

import (
	"fmt"
	"strings"

	"cosmo-migrator/internal/migration/domain/model"

	"github.com/google/cel-go/cel"
)

// EntityFilter decides, per entity, whether it takes part in a run. The
// expression sees three variables: kind and id as strings, and record as the
// raw field map. A nil filter admits everything.
//
//	kind != "ScenarioRun" && (!has(record.tags) || !("archived" in record.tags))
type EntityFilter struct {
	expression string
	program    cel.Program
}

func newFilterEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewEntityFilter compiles expression. An empty expression yields a nil filter.
func NewEntityFilter(expression string) (*EntityFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, nil
	}

	env, err := newFilterEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL filter must evaluate to bool, got %s", out)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &EntityFilter{expression: expression, program: program}, nil
}

// Expression returns the source text of the filter.
func (f *EntityFilter) Expression() string {
	if f == nil {
		return ""
	}
	return f.expression
}

// Allow evaluates the filter against entity.
func (f *EntityFilter) Allow(entity *model.Entity) (bool, error) {
	if f == nil {
		return true, nil
	}
	fields := map[string]interface{}(entity.Fields)
	if fields == nil {
		fields = map[string]interface{}{}
	}
	out, _, err := f.program.Eval(map[string]interface{}{
		"kind":   string(entity.Kind),
		"id":     entity.ID,
		"record": fields,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean value")
	}
	return result, nil
}
