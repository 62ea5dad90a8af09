package engine

import "github.com/formbricks/forms/internal/models"

func cond(fieldID string, op models.ConditionOperator, v models.Value) models.LogicCondition {
	return models.LogicCondition{FieldID: fieldID, Operator: op, Value: v}
}

func rule(id string, action models.RuleAction, conds ...models.LogicCondition) models.LogicRule {
	return models.LogicRule{ID: id, Action: action, Conditions: conds}
}

// countryStateTemplate is a single section where "state" only shows for US respondents.
func countryStateTemplate() *models.Template {
	return &models.Template{
		Name: "address",
		Sections: []models.Section{{
			ID:        "s1",
			Order:     1,
			IsDefault: true,
			Fields: []models.Field{
				{
					ID:   "country",
					Type: models.FieldTypeSelect,
					Options: []models.FieldOption{
						{Value: "US", Label: "United States"},
						{Value: "CA", Label: "Canada"},
					},
				},
				{
					ID:       "state",
					Type:     models.FieldTypeText,
					Required: true,
					ConditionalLogic: []models.LogicRule{
						rule("show-state", models.ActionShow, cond("country", models.OpEquals, models.StringValue("US"))),
					},
				},
			},
		}},
		Navigation: models.NavigationSettings{Type: models.NavigationConditional, AllowBackNavigation: true},
	}
}

// consentTemplate has three sections; s2 hides once consent is refused.
func consentTemplate() *models.Template {
	return &models.Template{
		Name: "consent",
		Sections: []models.Section{
			{
				ID: "s1", Order: 1, IsDefault: true,
				Fields: []models.Field{{ID: "hasConsent", Type: models.FieldTypeCheckbox}},
			},
			{
				ID: "s2", Order: 2,
				Fields: []models.Field{{ID: "details", Type: models.FieldTypeTextarea}},
				ConditionalLogic: []models.LogicRule{
					rule("hide-s2", models.ActionHideSection, cond("hasConsent", models.OpEquals, models.BoolValue(false))),
				},
			},
			{
				ID: "s3", Order: 3,
				Fields: []models.Field{{ID: "email", Type: models.FieldTypeEmail, Required: true}},
			},
		},
		Navigation: models.NavigationSettings{Type: models.NavigationConditional, AllowBackNavigation: true},
	}
}

// orderTemplate totals an order: choosing qty 10 sets total to 100.
func orderTemplate() *models.Template {
	setTotal := rule("set-total", models.ActionSetValue, cond("qty", models.OpEquals, models.NumberValue(10)))
	setTotal.TargetFieldID = "total"
	setTotal.Value = models.NumberValue(100)

	return &models.Template{
		Name: "order",
		Sections: []models.Section{{
			ID: "s1", Order: 1, IsDefault: true,
			Fields: []models.Field{
				{ID: "qty", Type: models.FieldTypeNumber, ConditionalLogic: []models.LogicRule{setTotal}},
				{ID: "total", Type: models.FieldTypeNumber},
			},
		}},
		Navigation: models.NavigationSettings{Type: models.NavigationConditional},
	}
}
