package analysis

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// RuleSet holds operator-defined acceptance rules written in CEL. Each rule
// sees `caption` (string) and `words` (int) and must evaluate to true. The
// CEL strings extension is available.
type RuleSet struct {
	rules []compiledRule
}

type compiledRule struct {
	expr string
	prg  cel.Program
}

// CompileRules compiles exprs. An empty list yields an empty RuleSet.
func CompileRules(exprs []string) (*RuleSet, error) {
	rs := &RuleSet{}
	if len(exprs) == 0 {
		return rs, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("caption", cel.StringType),
		cel.Variable("words", cel.IntType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	for i, expr := range exprs {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %d: compile: %w", i, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %d: must evaluate to bool, got %s", i, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %d: program: %w", i, err)
		}
		rs.rules = append(rs.rules, compiledRule{expr: expr, prg: prg})
	}
	return rs, nil
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Check returns the first rule that does not hold. Evaluation errors count as
// violations.
func (rs *RuleSet) Check(caption string, words int) *Failure {
	if rs == nil {
		return nil
	}
	input := map[string]any{"caption": caption, "words": int64(words)}
	for _, r := range rs.rules {
		out, _, err := r.prg.Eval(input)
		if err != nil {
			return fail(FailureCustomRule, r.expr, err)
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			return fail(FailureCustomRule, r.expr, nil)
		}
	}
	return nil
}
