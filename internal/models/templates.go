package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var errNotNumeric = errors.New("expected a number")

// FieldType is the closed set of input kinds a template field can have.
type FieldType string

// Field type constants.
const (
	FieldTypeText        FieldType = "text"
	FieldTypeEmail       FieldType = "email"
	FieldTypePhone       FieldType = "phone"
	FieldTypeNumber      FieldType = "number"
	FieldTypeTextarea    FieldType = "textarea"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiselect FieldType = "multiselect"
	FieldTypeCheckbox    FieldType = "checkbox"
	FieldTypeRadio       FieldType = "radio"
	FieldTypeDate        FieldType = "date"
	FieldTypeFile        FieldType = "file"
	FieldTypeRating      FieldType = "rating"
)

var validFieldTypes = map[FieldType]struct{}{
	FieldTypeText:        {},
	FieldTypeEmail:       {},
	FieldTypePhone:       {},
	FieldTypeNumber:      {},
	FieldTypeTextarea:    {},
	FieldTypeSelect:      {},
	FieldTypeMultiselect: {},
	FieldTypeCheckbox:    {},
	FieldTypeRadio:       {},
	FieldTypeDate:        {},
	FieldTypeFile:        {},
	FieldTypeRating:      {},
}

// IsValid reports whether ft is a known field type.
func (ft FieldType) IsValid() bool {
	_, ok := validFieldTypes[ft]

	return ok
}

// AllFieldTypes returns every known field type. The order is not guaranteed.
func AllFieldTypes() []FieldType {
	out := make([]FieldType, 0, len(validFieldTypes))
	for ft := range validFieldTypes {
		out = append(out, ft)
	}

	return out
}

// IsNumeric reports whether answers to this field type compare numerically.
func (ft FieldType) IsNumeric() bool {
	return ft == FieldTypeNumber || ft == FieldTypeRating
}

// Accepts checks that v fits the field type. Empty always fits: it clears
// the answer. File fields only take references produced by the upload service.
func (ft FieldType) Accepts(v Value) error {
	if v.IsEmpty() {
		return nil
	}

	kind := v.Kind()

	switch ft {
	case FieldTypeNumber, FieldTypeRating:
		if _, ok := v.AsNumber(); !ok {
			return errNotNumeric
		}

		return nil
	case FieldTypeFile:
		return expectKind(kind, KindFileRef)
	case FieldTypeMultiselect:
		return expectKind(kind, KindStringList)
	case FieldTypeCheckbox:
		return expectKind(kind, KindBoolean, KindStringList)
	case FieldTypeSelect, FieldTypeRadio:
		return expectKind(kind, KindString, KindNumber, KindBoolean)
	default:
		return expectKind(kind, KindString)
	}
}

func expectKind(got ValueKind, allowed ...ValueKind) error {
	for _, k := range allowed {
		if got == k {
			return nil
		}
	}

	return fmt.Errorf("unexpected %s value", got)
}

// ParseFieldType converts a string to a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	ft := FieldType(s)
	if !ft.IsValid() {
		return "", fmt.Errorf("invalid field type: %q", s)
	}

	return ft, nil
}

// ConditionOperator compares one answer against a literal.
type ConditionOperator string

// Condition operators.
const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "notEquals"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "notContains"
	OpGreaterThan ConditionOperator = "greaterThan"
	OpLessThan    ConditionOperator = "lessThan"
	OpIsEmpty     ConditionOperator = "isEmpty"
	OpNotEmpty    ConditionOperator = "notEmpty"
)

// BoolOperator combines the conditions of one rule.
type BoolOperator string

// Rule combinators. An empty operator is treated as AND.
const (
	BoolAnd BoolOperator = "AND"
	BoolOr  BoolOperator = "OR"
)

// RuleAction is what a fired rule does.
type RuleAction string

// Field-level and section-level actions. JumpToSection is valid on both.
const (
	ActionShow          RuleAction = "show"
	ActionHide          RuleAction = "hide"
	ActionRequire       RuleAction = "require"
	ActionSetValue      RuleAction = "setValue"
	ActionJumpToSection RuleAction = "jumpToSection"
	ActionShowSection   RuleAction = "showSection"
	ActionHideSection   RuleAction = "hideSection"
)

// IsFieldAction reports whether the action may appear on a field rule.
func (a RuleAction) IsFieldAction() bool {
	switch a {
	case ActionShow, ActionHide, ActionRequire, ActionSetValue, ActionJumpToSection:
		return true
	default:
		return false
	}
}

// IsSectionAction reports whether the action may appear on a section rule.
func (a RuleAction) IsSectionAction() bool {
	switch a {
	case ActionShowSection, ActionHideSection, ActionJumpToSection:
		return true
	default:
		return false
	}
}

// LogicCondition tests the answer of FieldID with Operator against Value.
type LogicCondition struct {
	FieldID  string            `json:"field_id"`
	Operator ConditionOperator `json:"operator"`
	Value    Value             `json:"value"`
}

// LogicRule is a conditional statement attached to a field or a section.
// Value is the literal assigned by a setValue action. Priority only
// applies to section rules.
type LogicRule struct {
	ID              string           `json:"id"`
	Action          RuleAction       `json:"action"`
	Conditions      []LogicCondition `json:"conditions"`
	Operator        BoolOperator     `json:"operator,omitempty"`
	TargetSectionID string           `json:"target_section_id,omitempty"`
	TargetFieldID   string           `json:"target_field_id,omitempty"`
	Value           Value            `json:"value"`
	Priority        int              `json:"priority,omitempty"`
}

// FieldOption is one choice of a select/radio/multiselect field.
type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field is the atomic input unit of a template.
type Field struct {
	ID               string        `json:"id"                          validate:"required,max=255,no_null_bytes"`
	Type             FieldType     `json:"type"                        validate:"field_type"`
	Label            string        `json:"label,omitempty"             validate:"max=1024,no_null_bytes"`
	Required         bool          `json:"required,omitempty"`
	Options          []FieldOption `json:"options,omitempty"`
	ConditionalLogic []LogicRule   `json:"conditional_logic,omitempty"`
}

// Section is an ordered container of fields.
type Section struct {
	ID               string      `json:"id"                          validate:"required,max=255,no_null_bytes"`
	Title            string      `json:"title"                       validate:"max=1024,no_null_bytes"`
	Order            int         `json:"order"`
	IsDefault        bool        `json:"is_default,omitempty"`
	Fields           []Field     `json:"fields"                      validate:"dive"`
	ConditionalLogic []LogicRule `json:"conditional_logic,omitempty"`
}

// NavigationType selects how respondents move between sections.
type NavigationType string

// Navigation types.
const (
	NavigationLinear      NavigationType = "linear"
	NavigationConditional NavigationType = "conditional"
	NavigationFreeform    NavigationType = "freeform"
)

// NavigationSettings controls section-to-section movement.
type NavigationSettings struct {
	Type                NavigationType `json:"type"                  validate:"omitempty,oneof=linear conditional freeform"`
	AllowBackNavigation bool           `json:"allow_back_navigation"`
	ShowProgressBar     bool           `json:"show_progress_bar"`
	AutoAdvance         bool           `json:"auto_advance"`
}

// Template is the immutable, versioned definition of a form.
// The evaluation engine only ever reads it.
type Template struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Version     int                `json:"version"`
	Sections    []Section          `json:"sections"`
	Navigation  NavigationSettings `json:"navigation"`
	NotifyURL   *string            `json:"notify_url,omitempty"`
	SigningKey  string             `json:"-"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Description *string            `json:"description,omitempty"`
}

// CreateTemplateRequest represents the request to create a template.
type CreateTemplateRequest struct {
	Name        string             `json:"name"                  validate:"required,min=1,max=255,no_null_bytes"`
	Description *string            `json:"description,omitempty" validate:"omitempty,max=4096,no_null_bytes"`
	Sections    []Section          `json:"sections"              validate:"required,min=1,dive"`
	Navigation  NavigationSettings `json:"navigation"`
	NotifyURL   *string            `json:"notify_url,omitempty"  validate:"omitempty,url,max=2048"`
	SigningKey  string             `json:"signing_key,omitempty"`
}

// UpdateTemplateRequest replaces the definition of a template. Version must match
// the stored version (optimistic concurrency).
type UpdateTemplateRequest struct {
	Version     int                 `json:"version"               validate:"min=1"`
	Name        *string             `json:"name,omitempty"        validate:"omitempty,min=1,max=255,no_null_bytes"`
	Description *string             `json:"description,omitempty" validate:"omitempty,max=4096,no_null_bytes"`
	Sections    []Section           `json:"sections,omitempty"    validate:"omitempty,min=1,dive"`
	Navigation  *NavigationSettings `json:"navigation,omitempty"`
	NotifyURL   *string             `json:"notify_url,omitempty"  validate:"omitempty,url,max=2048"`
}

// ListTemplatesFilters represents filters for listing templates.
type ListTemplatesFilters struct {
	Limit  int `form:"limit"  validate:"omitempty,min=1,max=1000"`
	Offset int `form:"offset" validate:"omitempty,min=0,max=2147483647"`
}

// ListTemplatesResponse represents the response for listing templates.
type ListTemplatesResponse struct {
	Data   []Template `json:"data"`
	Total  int64      `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// SortedSections returns the sections ordered by Order, keeping declaration
// order for ties. The template itself is not modified.
func (t *Template) SortedSections() []Section {
	out := make([]Section, len(t.Sections))
	copy(out, t.Sections)

	// insertion sort keeps ties stable and templates are small
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Order > out[j].Order; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}

	return out
}

// DefaultSectionID returns the section marked default, or the first section by
// order when none is marked. Returns "" for a template without sections.
func (t *Template) DefaultSectionID() string {
	sorted := t.SortedSections()
	for i := range sorted {
		if sorted[i].IsDefault {
			return sorted[i].ID
		}
	}

	if len(sorted) == 0 {
		return ""
	}

	return sorted[0].ID
}

// FindField returns the field with the given ID and the ID of its section.
func (t *Template) FindField(id string) (*Field, string, bool) {
	for si := range t.Sections {
		for fi := range t.Sections[si].Fields {
			if t.Sections[si].Fields[fi].ID == id {
				return &t.Sections[si].Fields[fi], t.Sections[si].ID, true
			}
		}
	}

	return nil, "", false
}

// FindSection returns the section with the given ID.
func (t *Template) FindSection(id string) (*Section, bool) {
	for i := range t.Sections {
		if t.Sections[i].ID == id {
			return &t.Sections[i], true
		}
	}

	return nil, false
}
