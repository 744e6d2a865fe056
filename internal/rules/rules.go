// Package rules classifies records with CEL expressions. A record matching
// the error expression fails; one matching the warning expression is flagged.
//
// Expressions see the variables id, title, body, size (len(body)), tags and
// version, e.g.
//
//	size == 0 || title == ""
//	"draft" in tags && version > 3
package rules

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// Verdict is the outcome of classifying a record.
type Verdict int

const (
	Pass Verdict = iota
	Warn
	Fail
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Record is the view of an item the expressions are evaluated against.
type Record struct {
	ID      string
	Title   string
	Body    string
	Tags    []string
	Version int
}

// Rules holds the compiled expressions. The zero value passes everything.
// Programs are stateless, so a Rules may be shared by all workers.
type Rules struct {
	errorIf cel.Program
	warnIf  cel.Program
}

// Compile builds Rules. Either expression may be empty.
func Compile(errorIf, warnIf string) (*Rules, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("body", cel.StringType),
		cel.Variable("size", cel.IntType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("version", cel.IntType),
	)
	if err != nil {
		return nil, err
	}

	r := &Rules{}
	if r.errorIf, err = compile(env, errorIf); err != nil {
		return nil, fmt.Errorf("error-if: %w", err)
	}
	if r.warnIf, err = compile(env, warnIf); err != nil {
		return nil, fmt.Errorf("warn-if: %w", err)
	}
	return r, nil
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	return env.Program(ast)
}

// Classify evaluates the error expression, then the warning expression.
// An evaluation error is returned together with Fail.
func (r *Rules) Classify(rec Record) (Verdict, error) {
	if r == nil {
		return Pass, nil
	}

	vars := map[string]any{
		"id":      rec.ID,
		"title":   rec.Title,
		"body":    rec.Body,
		"size":    int64(len(rec.Body)),
		"tags":    rec.Tags,
		"version": int64(rec.Version),
	}
	if rec.Tags == nil {
		vars["tags"] = []string{}
	}

	hit, err := eval(r.errorIf, vars)
	if err != nil {
		return Fail, fmt.Errorf("error-if: %w", err)
	}
	if hit {
		return Fail, nil
	}

	hit, err = eval(r.warnIf, vars)
	if err != nil {
		return Fail, fmt.Errorf("warn-if: %w", err)
	}
	if hit {
		return Warn, nil
	}
	return Pass, nil
}

func eval(prog cel.Program, vars map[string]any) (bool, error) {
	if prog == nil {
		return false, nil
	}
	out, _, err := prog.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("non-bool result %v", out.Value())
	}
	return b, nil
}
