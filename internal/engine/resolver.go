package engine

import (
	"fmt"
	"sort"

	"github.com/formbricks/forms/internal/models"
)

// Scope tells the resolver whether rules belong to a field or a section.
type Scope int

// Rule scopes.
const (
	ScopeField Scope = iota
	ScopeSection
)

// ValueSet is a proposed answer mutation from a fired setValue rule.
type ValueSet struct {
	FieldID string
	Value   models.Value
	RuleID  string
}

// Jump is a fired jumpToSection action. Priority is zero for field rules.
type Jump struct {
	TargetSectionID string `json:"target_section_id"`
	RuleID          string `json:"rule_id"`
	Priority        int    `json:"priority"`
}

// Resolution is the combined outcome of a rule list.
//
// Visible is nil when no visibility rule fired. Required reports an explicit
// require action; it can only raise requiredness. ValueSets holds one entry per
// target field. Jumps is kept in application order, so the last entry is the
// strongest.
type Resolution struct {
	Visible   *bool
	Required  bool
	HasShow   bool
	ValueSets []ValueSet
	Jumps     []Jump
	Fired     []string
}

// RuleFires combines the rule's conditions with its operator. A rule without
// conditions always fires.
func (e *Evaluator) RuleFires(rule models.LogicRule, answers models.AnswerSet, ownerID string) bool {
	if len(rule.Conditions) == 0 {
		return true
	}

	if rule.Operator == models.BoolOr {
		fired := false
		// every condition is evaluated so reference diagnostics are complete
		for _, cond := range rule.Conditions {
			if e.Evaluate(cond, answers, ownerID, rule.ID) {
				fired = true
			}
		}

		return fired
	}

	fired := true
	for _, cond := range rule.Conditions {
		if !e.Evaluate(cond, answers, ownerID, rule.ID) {
			fired = false
		}
	}

	return fired
}

// Resolve evaluates rules owned by ownerID and applies the fired actions.
//
// Rules are applied in precedence order: declaration order for fields, and
// ascending priority for sections with ties kept in declaration order. Within
// one action category (visibility, requirement, value, navigation) the last
// applied action wins; different categories compose.
func (e *Evaluator) Resolve(rules []models.LogicRule, answers models.AnswerSet, ownerID string, scope Scope) Resolution {
	var res Resolution

	ordered := orderRules(rules, scope)
	valueIdx := make(map[string]int)

	for _, rule := range ordered {
		if !validAction(rule.Action, scope) {
			e.report(Diagnostic{
				Kind:     DiagInvalidAction,
				Severity: SeverityError,
				OwnerID:  ownerID,
				RuleID:   rule.ID,
				Message:  fmt.Sprintf("action %q is not allowed here", rule.Action),
			})

			continue
		}

		if rule.Action == models.ActionShow || rule.Action == models.ActionShowSection {
			res.HasShow = true
		}

		if !e.RuleFires(rule, answers, ownerID) {
			continue
		}

		res.Fired = append(res.Fired, rule.ID)

		switch rule.Action {
		case models.ActionShow, models.ActionShowSection:
			res.Visible = boolPtr(true)
		case models.ActionHide, models.ActionHideSection:
			res.Visible = boolPtr(false)
		case models.ActionRequire:
			required := true
			if b, ok := rule.Value.AsBool(); ok {
				required = b
			}

			res.Required = required
		case models.ActionSetValue:
			target := rule.TargetFieldID
			if target == "" {
				target = ownerID
			}

			vs := ValueSet{FieldID: target, Value: rule.Value, RuleID: rule.ID}
			if i, ok := valueIdx[target]; ok {
				res.ValueSets[i] = vs
			} else {
				valueIdx[target] = len(res.ValueSets)
				res.ValueSets = append(res.ValueSets, vs)
			}
		case models.ActionJumpToSection:
			jump := Jump{TargetSectionID: rule.TargetSectionID, RuleID: rule.ID}
			if scope == ScopeSection {
				jump.Priority = rule.Priority
			}

			res.Jumps = append(res.Jumps, jump)
		}
	}

	return res
}

// orderRules returns rules in application order without touching the input.
func orderRules(rules []models.LogicRule, scope Scope) []models.LogicRule {
	if scope != ScopeSection {
		return rules
	}

	out := make([]models.LogicRule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})

	return out
}

func validAction(a models.RuleAction, scope Scope) bool {
	if scope == ScopeSection {
		return a.IsSectionAction()
	}

	return a.IsFieldAction()
}

func boolPtr(b bool) *bool { return &b }
