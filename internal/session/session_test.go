package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/forms/internal/engine"
	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/models"
)

type fakePersister struct {
	saved []*models.Response
	err   error
}

func (f *fakePersister) PersistResponse(_ context.Context, resp *models.Response) error {
	if f.err != nil {
		return f.err
	}

	f.saved = append(f.saved, resp)

	return nil
}

type recordingNotifier struct {
	changes []Change
}

func (r *recordingNotifier) SessionChanged(_ context.Context, change Change) {
	r.changes = append(r.changes, change)
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	return func() time.Time {
		t = t.Add(time.Second)

		return t
	}
}

func cond(fieldID string, op models.ConditionOperator, v models.Value) models.LogicCondition {
	return models.LogicCondition{FieldID: fieldID, Operator: op, Value: v}
}

func consentTemplate() *models.Template {
	return &models.Template{
		ID:      uuid.MustParse("0190c4a2-0000-7000-8000-000000000001"),
		Version: 1,
		Sections: []models.Section{
			{
				ID: "s1", Order: 1, IsDefault: true,
				Fields: []models.Field{{ID: "hasConsent", Type: models.FieldTypeCheckbox}},
			},
			{
				ID: "s2", Order: 2,
				Fields: []models.Field{{ID: "details", Type: models.FieldTypeTextarea}},
				ConditionalLogic: []models.LogicRule{{
					ID:         "hide-s2",
					Action:     models.ActionHideSection,
					Conditions: []models.LogicCondition{cond("hasConsent", models.OpEquals, models.BoolValue(false))},
				}},
			},
			{
				ID: "s3", Order: 3,
				Fields: []models.Field{{ID: "email", Type: models.FieldTypeEmail, Required: true}},
			},
		},
		Navigation: models.NavigationSettings{Type: models.NavigationConditional, AllowBackNavigation: true},
	}
}

func orderTemplate() *models.Template {
	return &models.Template{
		ID: uuid.MustParse("0190c4a2-0000-7000-8000-000000000002"),
		Sections: []models.Section{{
			ID: "s1", Order: 1, IsDefault: true,
			Fields: []models.Field{
				{ID: "qty", Type: models.FieldTypeNumber, ConditionalLogic: []models.LogicRule{{
					ID:            "set-total",
					Action:        models.ActionSetValue,
					Conditions:    []models.LogicCondition{cond("qty", models.OpEquals, models.NumberValue(10))},
					TargetFieldID: "total",
					Value:         models.NumberValue(100),
				}}},
				{ID: "total", Type: models.FieldTypeNumber},
				{ID: "name", Type: models.FieldTypeText, Required: true},
				{ID: "note", Type: models.FieldTypeText},
			},
		}},
		Navigation: models.NavigationSettings{Type: models.NavigationConditional},
	}
}

func TestNew_StartsOnDefaultSection(t *testing.T) {
	s := New(context.Background(), consentTemplate(), &fakePersister{})

	assert.NotEqual(t, uuid.Nil, s.ID())
	assert.Equal(t, engine.NavResult{SectionID: "s1"}, s.Position())
	assert.Equal(t, models.ResponseStatusDraft, s.Status())
	assert.False(t, s.Dirty())
	assert.Equal(t, 0, s.Completion())
}

func TestSetAnswer_SetValueAppliedInOneCall(t *testing.T) {
	notifier := &recordingNotifier{}
	s := New(context.Background(), orderTemplate(), &fakePersister{}, WithNotifier(notifier))

	require.NoError(t, s.SetAnswer(context.Background(), "qty", models.NumberValue(10)))

	answers := s.Answers()
	assert.True(t, answers["total"].Equal(models.NumberValue(100)))
	assert.True(t, s.Dirty())
	assert.Empty(t, s.Snapshot().PendingValueSets)

	require.Len(t, notifier.changes, 1)
	assert.Equal(t, ChangeAnswers, notifier.changes[0].Kind)
	assert.Equal(t, []string{"qty", "total"}, notifier.changes[0].ChangedFields)
}

func TestSetAnswer_ChainedSetValueStopsAfterOnePass(t *testing.T) {
	tmpl := orderTemplate()
	tmpl.Sections[0].Fields[1].ConditionalLogic = []models.LogicRule{{
		ID:            "set-note",
		Action:        models.ActionSetValue,
		Conditions:    []models.LogicCondition{cond("total", models.OpEquals, models.NumberValue(100))},
		TargetFieldID: "note",
		Value:         models.StringValue("bulk order"),
	}}

	s := New(context.Background(), tmpl, &fakePersister{})
	require.NoError(t, s.SetAnswer(context.Background(), "qty", models.NumberValue(10)))

	answers := s.Answers()
	assert.True(t, answers["total"].Equal(models.NumberValue(100)))
	assert.NotContains(t, answers, "note")

	// the next answer change carries the second hop
	require.NoError(t, s.SetAnswer(context.Background(), "name", models.StringValue("Ada")))
	assert.True(t, s.Answers()["note"].Equal(models.StringValue("bulk order")))
}

func TestSetAnswer_SetValueOfWrongKindIsDropped(t *testing.T) {
	tmpl := orderTemplate()
	tmpl.Sections[0].Fields[0].ConditionalLogic[0].Value = models.StringValue("lots")

	s := New(context.Background(), tmpl, &fakePersister{})

	err := s.SetAnswer(context.Background(), "total", models.StringValue("lots"))
	require.ErrorIs(t, err, huberrors.ErrValidation)

	require.NoError(t, s.SetAnswer(context.Background(), "qty", models.NumberValue(10)))

	assert.NotContains(t, s.Answers(), "total", "a rule cannot store what the respondent could not")
	require.NotEmpty(t, s.Snapshot().Diagnostics)
	assert.Equal(t, engine.DiagSetValueTypeMismatch, s.Snapshot().Diagnostics[0].Kind)
}

func TestSetAnswer_RejectsBadInputWithoutChanges(t *testing.T) {
	tmpl := orderTemplate()
	tmpl.Sections[0].Fields = append(tmpl.Sections[0].Fields, models.Field{ID: "upload", Type: models.FieldTypeFile})

	s := New(context.Background(), tmpl, &fakePersister{})

	err := s.SetAnswers(context.Background(), models.AnswerSet{
		"name":   models.StringValue("Ada"),
		"ghost":  models.StringValue("x"),
		"upload": models.StringValue("not-a-ref"),
		"qty":    models.StringValue("many"),
	})

	var valErr *huberrors.ValidationError
	require.ErrorAs(t, err, &valErr)

	ids := make([]string, len(valErr.Fields))
	for i, f := range valErr.Fields {
		ids[i] = f.FieldID
	}

	assert.Equal(t, []string{"ghost", "qty", "upload"}, ids)
	assert.Empty(t, s.Answers())
	assert.False(t, s.Dirty())

	require.NoError(t, s.SetAnswer(context.Background(), "upload", models.FileValue(models.FileRef{ID: "file-1", Name: "cv.pdf"})))
}

func TestSetAnswer_EmptyClearsAnswer(t *testing.T) {
	s := New(context.Background(), orderTemplate(), &fakePersister{})

	require.NoError(t, s.SetAnswer(context.Background(), "name", models.StringValue("Ada")))
	assert.Equal(t, 25, s.Completion())

	require.NoError(t, s.SetAnswer(context.Background(), "name", models.StringValue("")))
	assert.NotContains(t, s.Answers(), "name")
	assert.Equal(t, 0, s.Completion())
}

func TestSetAnswer_CurrentSectionHiddenMovesForward(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, consentTemplate(), &fakePersister{})

	require.NoError(t, s.SetAnswer(ctx, "hasConsent", models.BoolValue(true)))

	res, err := s.Navigate(ctx, engine.DirectionNext)
	require.NoError(t, err)
	assert.Equal(t, "s2", res.SectionID)

	require.NoError(t, s.SetAnswer(ctx, "hasConsent", models.BoolValue(false)))
	assert.Equal(t, "s3", s.Position().SectionID)

	res, err = s.Navigate(ctx, engine.DirectionNext)
	require.NoError(t, err)
	assert.True(t, res.End)
}

func TestSubmit_ReportsEveryMissingField(t *testing.T) {
	persister := &fakePersister{}
	s := New(context.Background(), orderTemplate(), persister)

	err := s.Submit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, huberrors.ErrValidation)

	var valErr *huberrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, []huberrors.FieldError{{FieldID: "name", Message: "field is required"}}, valErr.Fields)

	assert.Equal(t, models.ResponseStatusDraft, s.Status())
	assert.Empty(t, persister.saved)
}

func TestSubmit_HiddenRequiredFieldIsIgnored(t *testing.T) {
	ctx := context.Background()
	tmpl := consentTemplate()
	tmpl.Sections[1].Fields[0].Required = true

	s := New(ctx, tmpl, &fakePersister{})
	require.NoError(t, s.SetAnswers(ctx, models.AnswerSet{
		"hasConsent": models.BoolValue(false),
		"email":      models.StringValue("ada@example.com"),
	}))

	require.NoError(t, s.Submit(ctx))
}

func TestSubmit_TerminalState(t *testing.T) {
	ctx := context.Background()
	persister := &fakePersister{}
	notifier := &recordingNotifier{}
	s := New(ctx, orderTemplate(), persister, WithClock(fixedClock()), WithNotifier(notifier))

	require.NoError(t, s.SetAnswer(ctx, "name", models.StringValue("Ada")))
	require.NoError(t, s.Submit(ctx))

	assert.Equal(t, models.ResponseStatusSubmitted, s.Status())
	assert.False(t, s.Dirty())
	require.Len(t, persister.saved, 1)
	assert.Equal(t, models.ResponseStatusSubmitted, persister.saved[0].Status)
	require.NotNil(t, persister.saved[0].SubmittedAt)
	assert.Equal(t, ChangeSubmitted, notifier.changes[len(notifier.changes)-1].Kind)

	assert.ErrorIs(t, s.SetAnswer(ctx, "note", models.StringValue("late")), huberrors.ErrAlreadySubmitted)
	assert.ErrorIs(t, s.Submit(ctx), huberrors.ErrAlreadySubmitted)
	assert.ErrorIs(t, s.Save(ctx), huberrors.ErrAlreadySubmitted)

	_, err := s.Navigate(ctx, engine.DirectionNext)
	assert.ErrorIs(t, err, huberrors.ErrAlreadySubmitted)

	assert.NotContains(t, s.Answers(), "note")
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("database unavailable")
	persister := &fakePersister{}
	s := New(ctx, orderTemplate(), persister)

	require.NoError(t, s.SetAnswer(ctx, "name", models.StringValue("Ada")))

	persister.err = boom

	err := s.Save(ctx)
	assert.Same(t, boom, err)
	assert.True(t, s.Dirty())

	err = s.Submit(ctx)
	assert.Same(t, boom, err)
	assert.Equal(t, models.ResponseStatusDraft, s.Status())

	persister.err = nil

	require.NoError(t, s.Save(ctx))
	assert.False(t, s.Dirty())
}

func TestSave_PersistsDraft(t *testing.T) {
	ctx := context.Background()
	persister := &fakePersister{}
	submitter := &models.SubmitterInfo{Language: ptr("en")}
	s := New(ctx, consentTemplate(), persister, WithClock(fixedClock()), WithSubmitter(submitter))

	require.NoError(t, s.SetAnswer(ctx, "hasConsent", models.BoolValue(true)))
	_, err := s.Navigate(ctx, engine.DirectionNext)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx))
	require.NoError(t, s.Save(ctx))

	require.Len(t, persister.saved, 2)
	first := persister.saved[0]
	assert.Equal(t, s.ID(), first.ID)
	assert.Equal(t, models.ResponseStatusDraft, first.Status)
	assert.Equal(t, "s2", first.CurrentSectionID)
	assert.Equal(t, 1, first.TemplateVersion)
	assert.Equal(t, submitter, first.Submitter)
	assert.Equal(t, first.UpdatedAt, persister.saved[1].UpdatedAt, "unchanged sessions save with the same version")
	assert.Equal(t, 33, first.CompletionPercentage)
}

func TestUnsaved(t *testing.T) {
	ctx := context.Background()
	persister := &fakePersister{}
	s := New(ctx, consentTemplate(), persister)

	assert.True(t, s.Unsaved(), "never stored")
	assert.False(t, s.Dirty())

	require.NoError(t, s.Save(ctx))
	assert.False(t, s.Unsaved())

	require.NoError(t, s.SetAnswer(ctx, "hasConsent", models.BoolValue(true)))
	assert.True(t, s.Unsaved())

	persister.err = errors.New("db down")
	assert.Error(t, s.Save(ctx))
	assert.True(t, s.Unsaved(), "failed save keeps the draft unsaved")

	persister.err = nil
	require.NoError(t, s.Save(ctx))

	restored := Restore(ctx, consentTemplate(), s.Response(), persister)
	assert.False(t, restored.Unsaved())
}

func TestNavigate_BackDisabled(t *testing.T) {
	ctx := context.Background()
	tmpl := consentTemplate()
	tmpl.Navigation.AllowBackNavigation = false

	s := New(ctx, tmpl, &fakePersister{})
	_, err := s.Navigate(ctx, engine.DirectionNext)
	require.NoError(t, err)

	_, err = s.Navigate(ctx, engine.DirectionPrevious)
	assert.ErrorIs(t, err, huberrors.ErrNavigation)
	assert.Equal(t, "s2", s.Position().SectionID)
}

func TestNavigate_PreviousFollowsVisitedPath(t *testing.T) {
	ctx := context.Background()
	tmpl := &models.Template{
		Sections: []models.Section{
			{
				ID: "s1", Order: 1,
				Fields: []models.Field{{ID: "path", Type: models.FieldTypeRadio}},
				ConditionalLogic: []models.LogicRule{{
					ID:              "fast-track",
					Action:          models.ActionJumpToSection,
					Conditions:      []models.LogicCondition{cond("path", models.OpEquals, models.StringValue("fast"))},
					TargetSectionID: "s3",
				}},
			},
			{ID: "s2", Order: 2},
			{ID: "s3", Order: 3},
		},
		Navigation: models.NavigationSettings{Type: models.NavigationConditional, AllowBackNavigation: true},
	}

	s := New(ctx, tmpl, &fakePersister{})
	require.NoError(t, s.SetAnswer(ctx, "path", models.StringValue("fast")))

	res, err := s.Navigate(ctx, engine.DirectionNext)
	require.NoError(t, err)
	assert.Equal(t, "s3", res.SectionID)
	assert.True(t, res.ViaJump)

	res, err = s.Navigate(ctx, engine.DirectionNext)
	require.NoError(t, err)
	assert.True(t, res.End)

	res, err = s.Navigate(ctx, engine.DirectionPrevious)
	require.NoError(t, err)
	assert.Equal(t, "s3", res.SectionID)

	res, err = s.Navigate(ctx, engine.DirectionPrevious)
	require.NoError(t, err)
	assert.Equal(t, "s1", res.SectionID, "skipped section is not revisited")

	_, err = s.Navigate(ctx, engine.DirectionPrevious)
	assert.ErrorIs(t, err, huberrors.ErrNavigation)
	assert.Equal(t, "s1", s.Position().SectionID)
}

func TestJumpTo(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, consentTemplate(), &fakePersister{})
	require.NoError(t, s.SetAnswer(ctx, "hasConsent", models.BoolValue(false)))

	_, err := s.JumpTo(ctx, "s2")
	assert.ErrorIs(t, err, huberrors.ErrNavigation)
	assert.Equal(t, "s1", s.Position().SectionID)

	res, err := s.JumpTo(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, "s3", res.SectionID)

	res, err = s.Navigate(ctx, engine.DirectionPrevious)
	require.NoError(t, err)
	assert.Equal(t, "s1", res.SectionID)
}

func TestAutoAdvance(t *testing.T) {
	ctx := context.Background()
	tmpl := consentTemplate()
	tmpl.Navigation.AutoAdvance = true

	s := New(ctx, tmpl, &fakePersister{})
	require.NoError(t, s.SetAnswer(ctx, "hasConsent", models.BoolValue(false)))
	assert.Equal(t, "s3", s.Position().SectionID)

	require.NoError(t, s.SetAnswer(ctx, "email", models.StringValue("ada@example.com")))
	assert.Equal(t, "s3", s.Position().SectionID, "never auto-advances to the end")
}

func TestNoVisibleContent(t *testing.T) {
	ctx := context.Background()
	tmpl := consentTemplate()
	for i := range tmpl.Sections {
		tmpl.Sections[i].ConditionalLogic = []models.LogicRule{{ID: "hide", Action: models.ActionHideSection}}
	}

	s := New(ctx, tmpl, &fakePersister{})
	pos := s.Position()
	assert.True(t, pos.End)
	assert.True(t, pos.NoContent)

	view := s.View()
	assert.True(t, view.NoContent)
	assert.Equal(t, 0, view.CompletionPercentage)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	tmpl := consentTemplate()
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	resp := &models.Response{
		ID:               uuid.MustParse("0190c4a2-0000-7000-8000-0000000000aa"),
		TemplateID:       tmpl.ID,
		Status:           models.ResponseStatusDraft,
		Answers:          models.AnswerSet{"hasConsent": models.BoolValue(false)},
		CurrentSectionID: "s2",
		CreatedAt:        created,
		UpdatedAt:        created,
	}

	s := Restore(ctx, tmpl, resp, &fakePersister{})

	assert.Equal(t, resp.ID, s.ID())
	assert.Equal(t, "s3", s.Position().SectionID, "restored on a section hidden by its answers")
	assert.Equal(t, 50, s.Completion())
	assert.False(t, s.Dirty())

	resp.Status = models.ResponseStatusSubmitted
	s = Restore(ctx, tmpl, resp, &fakePersister{})
	assert.ErrorIs(t, s.SetAnswer(ctx, "email", models.StringValue("x@example.com")), huberrors.ErrAlreadySubmitted)
}

func TestView(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, consentTemplate(), &fakePersister{})
	require.NoError(t, s.SetAnswer(ctx, "hasConsent", models.BoolValue(false)))

	view := s.View()
	assert.Equal(t, s.ID(), view.SessionID)
	require.Len(t, view.Sections, 3)
	assert.True(t, view.Sections[0].Visible)
	assert.True(t, view.Sections[0].Fields[0].Answered)
	assert.False(t, view.Sections[1].Visible)
	assert.False(t, view.Sections[1].Fields[0].Visible)
	assert.True(t, view.Sections[2].Fields[0].Required)
	assert.True(t, view.Dirty)
}

func ptr[T any](v T) *T { return &v }
