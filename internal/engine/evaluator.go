package engine

import (
	"fmt"

	"github.com/formbricks/forms/internal/models"
)

// Evaluate tests one condition against an answer set without template context.
// Numeric comparison is used for equality when either side is a number.
// A missing answer is treated as empty.
func Evaluate(cond models.LogicCondition, answers models.AnswerSet) bool {
	answer := answers.Get(cond.FieldID)
	numeric := answer.Kind() == models.KindNumber || cond.Value.Kind() == models.KindNumber

	result, _ := evaluateValue(cond.Operator, answer, cond.Value, numeric)

	return result
}

// Evaluator evaluates conditions with knowledge of the template's fields, so it can
// compare type-aware and fail safe on references to fields that do not exist.
type Evaluator struct {
	fields map[string]models.FieldType
	diags  []Diagnostic
}

// NewEvaluator indexes the fields of t.
func NewEvaluator(t *models.Template) *Evaluator {
	fields := make(map[string]models.FieldType)

	if t != nil {
		for _, section := range t.Sections {
			for _, field := range section.Fields {
				fields[field.ID] = field.Type
			}
		}
	}

	return &Evaluator{fields: fields}
}

// Diagnostics returns problems found during evaluation, in the order found.
func (e *Evaluator) Diagnostics() []Diagnostic {
	return e.diags
}

// Evaluate tests cond against answers. ownerID and ruleID only label diagnostics.
// A condition on an unknown field is false.
func (e *Evaluator) Evaluate(cond models.LogicCondition, answers models.AnswerSet, ownerID, ruleID string) bool {
	fieldType, ok := e.fields[cond.FieldID]
	if !ok {
		e.report(Diagnostic{
			Kind:     DiagInvalidConditionReference,
			Severity: SeverityError,
			OwnerID:  ownerID,
			RuleID:   ruleID,
			FieldID:  cond.FieldID,
			Message:  fmt.Sprintf("condition references unknown field %q", cond.FieldID),
		})

		return false
	}

	result, known := evaluateValue(cond.Operator, answers.Get(cond.FieldID), cond.Value, fieldType.IsNumeric())
	if !known {
		e.report(Diagnostic{
			Kind:     DiagUnknownOperator,
			Severity: SeverityError,
			OwnerID:  ownerID,
			RuleID:   ruleID,
			FieldID:  cond.FieldID,
			Message:  fmt.Sprintf("unknown condition operator %q", cond.Operator),
		})
	}

	return result
}

func (e *Evaluator) report(d Diagnostic) {
	e.diags = append(e.diags, d)
}

// evaluateValue applies op. The second result is false for an unknown operator,
// which evaluates to false.
func evaluateValue(op models.ConditionOperator, answer, literal models.Value, numeric bool) (bool, bool) {
	switch op {
	case models.OpEquals:
		return equalValues(answer, literal, numeric), true
	case models.OpNotEquals:
		return !equalValues(answer, literal, numeric), true
	case models.OpContains:
		list, ok := answer.AsStringList()
		if !ok {
			return false, true
		}

		return containsAll(list, literal), true
	case models.OpNotContains:
		list, ok := answer.AsStringList()
		if !ok {
			return false, true
		}

		return !containsAll(list, literal), true
	case models.OpGreaterThan:
		return compareNumeric(answer, literal, func(a, b float64) bool { return a > b }), true
	case models.OpLessThan:
		return compareNumeric(answer, literal, func(a, b float64) bool { return a < b }), true
	case models.OpIsEmpty:
		return answer.IsEmpty(), true
	case models.OpNotEmpty:
		return !answer.IsEmpty(), true
	default:
		return false, false
	}
}

// equalValues is strict equality: numeric when requested and both sides are
// numbers, element-wise for lists, string form otherwise. Two empty values are equal.
func equalValues(a, b models.Value, numeric bool) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return a.IsEmpty() && b.IsEmpty()
	}

	if numeric {
		an, aok := a.AsNumber()
		bn, bok := b.AsNumber()

		if aok && bok {
			return an == bn
		}
	}

	if a.Kind() == models.KindStringList && b.Kind() == models.KindStringList {
		return a.Equal(b)
	}

	return a.Text() == b.Text()
}

// containsAll reports whether list holds the literal, or every element of a list literal.
func containsAll(list []string, literal models.Value) bool {
	if want, ok := literal.AsStringList(); ok {
		if len(want) == 0 {
			return false
		}

		for _, w := range want {
			if !containsString(list, w) {
				return false
			}
		}

		return true
	}

	if literal.IsEmpty() {
		return false
	}

	return containsString(list, literal.Text())
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}

// compareNumeric returns false when either side is not a number.
func compareNumeric(a, b models.Value, cmp func(float64, float64) bool) bool {
	an, aok := a.AsNumber()
	bn, bok := b.AsNumber()

	if !aok || !bok {
		return false
	}

	return cmp(an, bn)
}
