// Package engine evaluates conditional form logic: conditions, rule resolution,
// the visibility snapshot of a template, section navigation, and completion.
//
// Every function in this package is pure with respect to its inputs. Templates
// are read, never written, so one template may be shared by any number of
// concurrent sessions.
package engine

import "fmt"

// DiagnosticKind classifies a template-authoring problem.
type DiagnosticKind string

// Diagnostic kinds.
const (
	DiagInvalidConditionReference DiagnosticKind = "invalid_condition_reference"
	DiagUnknownOperator           DiagnosticKind = "unknown_operator"
	DiagInvalidAction             DiagnosticKind = "invalid_action"
	DiagUnknownJumpTarget         DiagnosticKind = "unknown_jump_target"
	DiagUnknownSetValueTarget     DiagnosticKind = "unknown_set_value_target"
	DiagSetValueTypeMismatch      DiagnosticKind = "set_value_type_mismatch"
	DiagIgnoredPriority           DiagnosticKind = "ignored_priority"
	DiagForwardReference          DiagnosticKind = "forward_reference"
	DiagDuplicateFieldID          DiagnosticKind = "duplicate_field_id"
	DiagDuplicateSectionID        DiagnosticKind = "duplicate_section_id"
	DiagInvalidFieldType          DiagnosticKind = "invalid_field_type"
	DiagSetValueChain             DiagnosticKind = "set_value_chain"
	DiagDefaultSection            DiagnosticKind = "default_section"
	DiagNoSections                DiagnosticKind = "no_sections"
)

// Severity of a diagnostic. Errors make a template unsafe to publish; warnings
// describe behavior the author may not expect.
type Severity string

// Severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic describes one problem found in a template, either statically by
// Lint or while evaluating rules.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Severity Severity       `json:"severity"`
	OwnerID  string         `json:"owner_id,omitempty"` // field or section the rule belongs to
	RuleID   string         `json:"rule_id,omitempty"`
	FieldID  string         `json:"field_id,omitempty"`
	Message  string         `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Kind, d.Message)
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}

	return false
}
