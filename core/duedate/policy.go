package duedate

import (
	"math"

	"github.com/Knetic/govaluate"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/core"
)

// LateFeePolicy computes the cumulative late fee owed on an overdue installment.
type LateFeePolicy interface {
	LateFee(daysOverdue int, amount int64) (int64, error)
}

// FormulaPolicy evaluates an arithmetic expression over `days_overdue` and `amount` (the installment principal),
// rounded to the nearest unit and capped at Cap when Cap > 0.
type FormulaPolicy struct {
	formula string
	expr    *govaluate.EvaluableExpression
	cap     int64
}

var _ LateFeePolicy = (*FormulaPolicy)(nil)

func NewFormulaPolicy(formula string, cap int64) (*FormulaPolicy, error) {
	formula = core.CleanString(formula)
	if formula == "" {
		formula = "0"
	}
	expr, err := govaluate.NewEvaluableExpression(formula)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing late fee formula %q", formula)
	}
	for _, v := range expr.Vars() {
		if v != "days_overdue" && v != "amount" {
			return nil, errors.Errorf("late fee formula %q: unknown variable %q", formula, v)
		}
	}
	return &FormulaPolicy{formula: formula, expr: expr, cap: cap}, nil
}

// NewPolicy builds the policy from the lateFee config section.
func NewPolicy(conf *core.Config) (LateFeePolicy, error) {
	return NewFormulaPolicy(conf.LateFee.Formula, conf.LateFee.Cap)
}

func (p FormulaPolicy) LateFee(daysOverdue int, amount int64) (int64, error) {
	if daysOverdue <= 0 {
		return 0, nil
	}
	result, err := p.expr.Evaluate(map[string]interface{}{
		"days_overdue": float64(daysOverdue),
		"amount":       float64(amount),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "evaluating late fee formula %q", p.formula)
	}
	value, ok := result.(float64)
	if !ok {
		return 0, errors.Errorf("late fee formula %q did not evaluate to a number", p.formula)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errors.Errorf("late fee formula %q evaluated to %v", p.formula, value)
	}

	fee := int64(math.Round(value))
	if fee < 0 {
		fee = 0
	}
	if p.cap > 0 && fee > p.cap {
		fee = p.cap
	}
	return fee, nil
}
