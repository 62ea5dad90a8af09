package engine

import (
	"fmt"

	"github.com/formbricks/forms/internal/models"
)

// Lint checks a template statically, without answers. Errors make the
// template unsafe to publish; warnings flag rules that evaluate in ways the
// author may not expect.
func Lint(t *models.Template) []Diagnostic {
	l := &linter{
		t:              t,
		fieldPos:       make(map[string]int),
		fieldSection:   make(map[string]string),
		sectionPos:     make(map[string]int),
		setValueTarget: make(map[string]string),
	}

	if len(t.Sections) == 0 {
		l.add(Diagnostic{Kind: DiagNoSections, Severity: SeverityError, Message: "template has no sections"})

		return l.diags
	}

	l.index()
	l.checkDefaults()

	for _, section := range t.SortedSections() {
		for _, field := range section.Fields {
			for _, rule := range field.ConditionalLogic {
				l.checkRule(rule, field.ID, ScopeField)
			}
		}

		for _, rule := range section.ConditionalLogic {
			l.checkRule(rule, section.ID, ScopeSection)
		}
	}

	l.checkChains()

	return l.diags
}

type linter struct {
	t     *models.Template
	diags []Diagnostic

	fieldPos     map[string]int
	fieldSection map[string]string
	sectionPos   map[string]int

	// setValue target -> first rule setting it
	setValueTarget map[string]string
}

func (l *linter) add(d Diagnostic) {
	l.diags = append(l.diags, d)
}

// index records declaration positions in navigation order and reports duplicates.
func (l *linter) index() {
	pos := 0

	for si, section := range l.t.SortedSections() {
		if _, dup := l.sectionPos[section.ID]; dup {
			l.add(Diagnostic{
				Kind:     DiagDuplicateSectionID,
				Severity: SeverityError,
				OwnerID:  section.ID,
				Message:  fmt.Sprintf("section id %q is used more than once", section.ID),
			})
		} else {
			l.sectionPos[section.ID] = si
		}

		for _, field := range section.Fields {
			if _, dup := l.fieldPos[field.ID]; dup {
				l.add(Diagnostic{
					Kind:     DiagDuplicateFieldID,
					Severity: SeverityError,
					FieldID:  field.ID,
					Message:  fmt.Sprintf("field id %q is used more than once", field.ID),
				})
			} else {
				l.fieldPos[field.ID] = pos
				l.fieldSection[field.ID] = section.ID
			}

			if !field.Type.IsValid() {
				l.add(Diagnostic{
					Kind:     DiagInvalidFieldType,
					Severity: SeverityError,
					FieldID:  field.ID,
					Message:  fmt.Sprintf("field %q has invalid type %q", field.ID, field.Type),
				})
			}

			pos++
		}
	}
}

func (l *linter) checkDefaults() {
	var defaults []string

	for _, section := range l.t.Sections {
		if section.IsDefault {
			defaults = append(defaults, section.ID)
		}
	}

	switch {
	case len(defaults) == 0:
		l.add(Diagnostic{
			Kind:     DiagDefaultSection,
			Severity: SeverityWarning,
			OwnerID:  l.t.DefaultSectionID(),
			Message:  "no section is marked default; the first section by order is used",
		})
	case len(defaults) > 1:
		l.add(Diagnostic{
			Kind:     DiagDefaultSection,
			Severity: SeverityWarning,
			OwnerID:  defaults[0],
			Message:  fmt.Sprintf("%d sections are marked default; %q is used", len(defaults), l.t.DefaultSectionID()),
		})
	}
}

func (l *linter) checkRule(rule models.LogicRule, ownerID string, scope Scope) {
	valid := rule.Action.IsFieldAction()
	if scope == ScopeSection {
		valid = rule.Action.IsSectionAction()
	}

	if !valid {
		l.add(Diagnostic{
			Kind:     DiagInvalidAction,
			Severity: SeverityError,
			OwnerID:  ownerID,
			RuleID:   rule.ID,
			Message:  fmt.Sprintf("action %q is not allowed on %s", rule.Action, scopeName(scope)),
		})

		return
	}

	if scope == ScopeField && rule.Priority != 0 {
		l.add(Diagnostic{
			Kind:     DiagIgnoredPriority,
			Severity: SeverityWarning,
			OwnerID:  ownerID,
			RuleID:   rule.ID,
			Message:  "priority only orders section rules; it has no effect on a field rule",
		})
	}

	for _, cond := range rule.Conditions {
		l.checkCondition(cond, rule, ownerID, scope)
	}

	switch rule.Action {
	case models.ActionJumpToSection:
		if _, ok := l.sectionPos[rule.TargetSectionID]; !ok {
			l.add(Diagnostic{
				Kind:     DiagUnknownJumpTarget,
				Severity: SeverityError,
				OwnerID:  ownerID,
				RuleID:   rule.ID,
				Message:  fmt.Sprintf("jump targets unknown section %q", rule.TargetSectionID),
			})
		}
	case models.ActionSetValue:
		target := rule.TargetFieldID
		if target == "" {
			target = ownerID
		}

		if _, ok := l.fieldPos[target]; !ok {
			l.add(Diagnostic{
				Kind:     DiagUnknownSetValueTarget,
				Severity: SeverityError,
				OwnerID:  ownerID,
				RuleID:   rule.ID,
				FieldID:  target,
				Message:  fmt.Sprintf("setValue targets unknown field %q", target),
			})

			return
		}

		if field, _, ok := l.t.FindField(target); ok {
			if err := field.Type.Accepts(rule.Value); err != nil {
				l.add(setValueMismatch(ownerID, rule.ID, field, err))
			}
		}

		if _, seen := l.setValueTarget[target]; !seen {
			l.setValueTarget[target] = rule.ID
		}
	}
}

func (l *linter) checkCondition(cond models.LogicCondition, rule models.LogicRule, ownerID string, scope Scope) {
	if !knownOperator(cond.Operator) {
		l.add(Diagnostic{
			Kind:     DiagUnknownOperator,
			Severity: SeverityError,
			OwnerID:  ownerID,
			RuleID:   rule.ID,
			FieldID:  cond.FieldID,
			Message:  fmt.Sprintf("unknown condition operator %q", cond.Operator),
		})
	}

	refPos, ok := l.fieldPos[cond.FieldID]
	if !ok {
		l.add(Diagnostic{
			Kind:     DiagInvalidConditionReference,
			Severity: SeverityError,
			OwnerID:  ownerID,
			RuleID:   rule.ID,
			FieldID:  cond.FieldID,
			Message:  fmt.Sprintf("condition references unknown field %q", cond.FieldID),
		})

		return
	}

	forward := false

	switch scope {
	case ScopeField:
		// setValue and jumps may read the field's own answer
		if rule.Action == models.ActionSetValue || rule.Action == models.ActionJumpToSection {
			forward = refPos > l.fieldPos[ownerID]
		} else {
			forward = refPos >= l.fieldPos[ownerID]
		}
	case ScopeSection:
		// jumps are taken when leaving the section, so its own fields are fair game
		if rule.Action != models.ActionJumpToSection {
			forward = l.sectionPos[l.fieldSection[cond.FieldID]] >= l.sectionPos[ownerID]
		}
	}

	if forward {
		l.add(Diagnostic{
			Kind:     DiagForwardReference,
			Severity: SeverityWarning,
			OwnerID:  ownerID,
			RuleID:   rule.ID,
			FieldID:  cond.FieldID,
			Message:  fmt.Sprintf("condition on %q refers to a field that is not answered before %q", cond.FieldID, ownerID),
		})
	}
}

// checkChains flags setValue rules conditioned on another setValue target.
// Only one propagation pass runs per answer change, so the second hop lags.
func (l *linter) checkChains() {
	for _, section := range l.t.SortedSections() {
		for _, field := range section.Fields {
			for _, rule := range field.ConditionalLogic {
				if rule.Action != models.ActionSetValue {
					continue
				}

				for _, cond := range rule.Conditions {
					upstream, chained := l.setValueTarget[cond.FieldID]
					if !chained {
						continue
					}

					l.add(Diagnostic{
						Kind:     DiagSetValueChain,
						Severity: SeverityWarning,
						OwnerID:  field.ID,
						RuleID:   rule.ID,
						FieldID:  cond.FieldID,
						Message: fmt.Sprintf(
							"rule depends on %q, which rule %q sets; chained values resolve one answer change late",
							cond.FieldID, upstream,
						),
					})
				}
			}
		}
	}
}

func knownOperator(op models.ConditionOperator) bool {
	_, known := evaluateValue(op, models.EmptyValue(), models.EmptyValue(), false)

	return known
}

func scopeName(s Scope) string {
	if s == ScopeSection {
		return "a section"
	}

	return "a field"
}
