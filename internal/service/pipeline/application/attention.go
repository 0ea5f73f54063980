// internal/service/pipeline/application/attention.go
package application

import (
	"dealflow/internal/service/pipeline/domain"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// DefaultAttentionExpr 下次行动日在 3 天以内（含已过期）的商谈需要关注
const DefaultAttentionExpr = "days_until_due <= 3"

// AttentionRule 用 CEL 表达式判断商谈是否需要关注。
// 可用变量：days_until_due(int)、status(string)、priority(string)、progress_rate(int)。
// 没有下次行动日的商谈不会进入表达式，直接排除。
type AttentionRule struct {
	expr    string
	program cel.Program
}

// NewAttentionRule 编译表达式，要求结果类型为 bool
func NewAttentionRule(expr string) (*AttentionRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("days_until_due", cel.IntType),
		cel.Variable("status", cel.StringType),
		cel.Variable("priority", cel.StringType),
		cel.Variable("progress_rate", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile attention rule %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("attention rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build attention rule %q", expr)
	}
	return &AttentionRule{expr: expr, program: prg}, nil
}

// MustAttentionRule 编译失败时 panic，只用于常量表达式
func MustAttentionRule(expr string) *AttentionRule {
	r, err := NewAttentionRule(expr)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *AttentionRule) String() string { return r.expr }

// Matches 以 asOf 为基准判断商谈是否需要关注
func (r *AttentionRule) Matches(deal *domain.Deal, asOf domain.Date) (bool, error) {
	if !deal.HasNextActionDate() {
		return false, nil
	}
	out, _, err := r.program.Eval(map[string]any{
		"days_until_due": int64(asOf.DaysUntil(*deal.NextActionDate)),
		"status":         string(deal.Status),
		"priority":       string(deal.Priority),
		"progress_rate":  int64(deal.ProgressRate),
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate attention rule for deal %d", deal.ID)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("attention rule returned %T", out.Value())
	}
	return matched, nil
}
