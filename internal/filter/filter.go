// Package filter narrows the project table with a CEL expression.
//
// The expression sees one project at a time through these variables:
//
//	name           string  project name, e.g. "SimpleHooks.Web"
//	path           string  project source directory
//	descriptor     string  descriptor file name, e.g. "SimpleHooks.Web.csproj"
//	container_tag  string  image tag prefix, "" when no image is built
//	has_container  bool    container_tag != ""
//
// and must evaluate to a bool, for example:
//
//	has_container && name.startsWith("SimpleHooks.A")
package filter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/shinji-kodama/release-automation/internal/model"
)

// costLimit bounds evaluation of a single expression.
const costLimit = 100000

// Filter is a compiled project filter. The zero value and a Filter built
// from an empty expression match every project.
type Filter struct {
	expr    string
	program cel.Program
}

// New compiles expr. Compilation problems are reported as
// model.CLIError with ExitInvalidInput so they surface before any
// release step runs.
func New(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Filter{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("descriptor", cel.StringType),
		cel.Variable("container_tag", cel.StringType),
		cel.Variable("has_container", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, model.WrapCLIError(model.ExitInvalidInput,
			fmt.Sprintf("invalid filter %q", expr), issues.Err())
	}

	program, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidInput,
			fmt.Sprintf("invalid filter %q", expr), err)
	}
	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match reports whether p satisfies the filter.
func (f *Filter) Match(p *model.ProjectEntry) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}

	result, _, err := f.program.Eval(map[string]any{
		"name":          p.Name,
		"path":          p.Path,
		"descriptor":    p.Descriptor,
		"container_tag": p.ContainerTag,
		"has_container": p.HasContainer(),
	})
	if err != nil {
		return false, model.WrapCLIError(model.ExitInvalidInput,
			fmt.Sprintf("filter %q failed for %s", f.expr, p.Name), err)
	}
	if result.Type() != types.BoolType {
		return false, model.NewCLIError(model.ExitInvalidInput,
			fmt.Sprintf("filter %q must return bool, got %v", f.expr, result.Type()))
	}
	return result.Value().(bool), nil
}

// Apply returns the projects that satisfy the filter, in table order.
func (f *Filter) Apply(projects []model.ProjectEntry) ([]model.ProjectEntry, error) {
	out := make([]model.ProjectEntry, 0, len(projects))
	for i := range projects {
		ok, err := f.Match(&projects[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, projects[i])
		}
	}
	return out, nil
}
