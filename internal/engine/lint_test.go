package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/forms/internal/models"
)

func kinds(diags []Diagnostic) []DiagnosticKind {
	out := make([]DiagnosticKind, len(diags))
	for i, d := range diags {
		out[i] = d.Kind
	}

	return out
}

func TestLint_CleanTemplates(t *testing.T) {
	for name, tmpl := range map[string]*models.Template{
		"country/state": countryStateTemplate(),
		"consent":       consentTemplate(),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, Lint(tmpl))
		})
	}
}

func TestLint_NoSections(t *testing.T) {
	diags := Lint(&models.Template{})

	require.Len(t, diags, 1)
	assert.Equal(t, DiagNoSections, diags[0].Kind)
	assert.True(t, HasErrors(diags))
}

func TestLint_Duplicates(t *testing.T) {
	tmpl := &models.Template{Sections: []models.Section{
		{ID: "s1", Order: 1, IsDefault: true, Fields: []models.Field{{ID: "f", Type: models.FieldTypeText}}},
		{ID: "s1", Order: 2, Fields: []models.Field{{ID: "f", Type: models.FieldTypeText}}},
	}}

	assert.ElementsMatch(t, []DiagnosticKind{DiagDuplicateSectionID, DiagDuplicateFieldID}, kinds(Lint(tmpl)))
}

func TestLint_RuleProblems(t *testing.T) {
	badJump := rule("bad-jump", models.ActionJumpToSection)
	badJump.TargetSectionID = "nowhere"

	badSet := rule("bad-set", models.ActionSetValue)
	badSet.TargetFieldID = "nothing"

	tmpl := &models.Template{Sections: []models.Section{
		{
			ID: "s1", Order: 1, IsDefault: true,
			Fields: []models.Field{
				{ID: "a", Type: models.FieldTypeText, ConditionalLogic: []models.LogicRule{
					rule("forward", models.ActionShow, cond("b", models.OpNotEmpty, models.EmptyValue())),
					rule("ghost", models.ActionShow, cond("ghost", models.OpNotEmpty, models.EmptyValue())),
					rule("bad-op", models.ActionShow, cond("b", "near", models.EmptyValue())),
					rule("bad-action", models.ActionHideSection),
				}},
				{ID: "b", Type: models.FieldType("slider"), ConditionalLogic: []models.LogicRule{badJump, badSet}},
			},
		},
	}}

	diags := Lint(tmpl)

	assert.Subset(t, kinds(diags), []DiagnosticKind{
		DiagForwardReference,
		DiagInvalidConditionReference,
		DiagUnknownOperator,
		DiagInvalidAction,
		DiagUnknownJumpTarget,
		DiagUnknownSetValueTarget,
		DiagInvalidFieldType,
	})
	assert.True(t, HasErrors(diags))
}

func TestLint_SectionRuleOnOwnFields(t *testing.T) {
	jump := rule("jump", models.ActionJumpToSection, cond("own", models.OpNotEmpty, models.EmptyValue()))
	jump.TargetSectionID = "s2"

	tmpl := &models.Template{Sections: []models.Section{
		{
			ID: "s1", Order: 1, IsDefault: true,
			Fields: []models.Field{{ID: "own", Type: models.FieldTypeText}},
			ConditionalLogic: []models.LogicRule{
				jump,
				rule("hide-self", models.ActionHideSection, cond("own", models.OpIsEmpty, models.EmptyValue())),
			},
		},
		{ID: "s2", Order: 2},
	}}

	diags := Lint(tmpl)

	require.Len(t, diags, 1)
	assert.Equal(t, DiagForwardReference, diags[0].Kind)
	assert.Equal(t, "hide-self", diags[0].RuleID)
	assert.Equal(t, SeverityWarning, diags[0].Severity)
	assert.False(t, HasErrors(diags))
}

func TestLint_SetValueChain(t *testing.T) {
	setB := rule("set-b", models.ActionSetValue, cond("a", models.OpEquals, models.StringValue("x")))
	setB.TargetFieldID = "b"
	setB.Value = models.StringValue("y")

	setC := rule("set-c", models.ActionSetValue, cond("b", models.OpEquals, models.StringValue("y")))
	setC.TargetFieldID = "c"
	setC.Value = models.StringValue("z")

	tmpl := &models.Template{Sections: []models.Section{{
		ID: "s1", IsDefault: true,
		Fields: []models.Field{
			{ID: "a", Type: models.FieldTypeText, ConditionalLogic: []models.LogicRule{setB}},
			{ID: "b", Type: models.FieldTypeText},
			{ID: "c", Type: models.FieldTypeText, ConditionalLogic: []models.LogicRule{setC}},
		},
	}}}

	diags := Lint(tmpl)

	require.Len(t, diags, 1)
	assert.Equal(t, DiagSetValueChain, diags[0].Kind)
	assert.Equal(t, "set-c", diags[0].RuleID)
	assert.Contains(t, diags[0].Message, "set-b")
}

func TestLint_SetValueTypeMismatch(t *testing.T) {
	tmpl := orderTemplate()
	assert.Empty(t, Lint(tmpl))

	tmpl.Sections[0].Fields[0].ConditionalLogic[0].Value = models.StringValue("lots")

	diags := Lint(tmpl)

	require.Len(t, diags, 1)
	assert.Equal(t, DiagSetValueTypeMismatch, diags[0].Kind)
	assert.Equal(t, SeverityError, diags[0].Severity)
	assert.Equal(t, "total", diags[0].FieldID)
	assert.True(t, HasErrors(diags))
}

func TestLint_FieldRulePriorityIgnored(t *testing.T) {
	tmpl := consentTemplate()

	jump := rule("skip", models.ActionJumpToSection, cond("hasConsent", models.OpEquals, models.BoolValue(false)))
	jump.TargetSectionID = "s3"
	jump.Priority = 5
	tmpl.Sections[0].Fields[0].ConditionalLogic = []models.LogicRule{jump}

	diags := Lint(tmpl)

	require.Len(t, diags, 1)
	assert.Equal(t, DiagIgnoredPriority, diags[0].Kind)
	assert.Equal(t, SeverityWarning, diags[0].Severity)
	assert.Equal(t, "skip", diags[0].RuleID)

	// the same priority on a section rule is meaningful
	tmpl.Sections[0].Fields[0].ConditionalLogic = nil
	tmpl.Sections[0].ConditionalLogic = []models.LogicRule{jump}
	assert.Empty(t, Lint(tmpl))
}

func TestLint_DefaultSection(t *testing.T) {
	tmpl := consentTemplate()
	tmpl.Sections[0].IsDefault = false

	diags := Lint(tmpl)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagDefaultSection, diags[0].Kind)
	assert.Equal(t, "s1", diags[0].OwnerID)

	tmpl.Sections[0].IsDefault = true
	tmpl.Sections[2].IsDefault = true

	diags = Lint(tmpl)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagDefaultSection, diags[0].Kind)
}
