package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formbricks/forms/internal/datatypes"
	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/models"
)

type publishedEvent struct {
	eventType     datatypes.EventType
	data          any
	changedFields []string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) PublishEvent(ctx context.Context, eventType datatypes.EventType, data any) {
	f.PublishEventWithChangedFields(ctx, eventType, data, nil)
}

func (f *fakePublisher) PublishEventWithChangedFields(
	_ context.Context, eventType datatypes.EventType, data any, changedFields []string,
) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, publishedEvent{eventType: eventType, data: data, changedFields: changedFields})
}

func (f *fakePublisher) types() []datatypes.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]datatypes.EventType, len(f.events))
	for i, e := range f.events {
		out[i] = e.eventType
	}

	return out
}

func (f *fakePublisher) last() publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.events[len(f.events)-1]
}

// fakeTemplatesRepo is an in-memory TemplatesRepository.
type fakeTemplatesRepo struct {
	mu        sync.Mutex
	templates map[uuid.UUID]*models.Template
	gets      int
	updateErr error
}

func newFakeTemplatesRepo(templates ...*models.Template) *fakeTemplatesRepo {
	r := &fakeTemplatesRepo{templates: make(map[uuid.UUID]*models.Template)}
	for _, t := range templates {
		r.templates[t.ID] = t
	}

	return r
}

func (r *fakeTemplatesRepo) Create(_ context.Context, t *models.Template) (*models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := *t
	created.ID = uuid.Must(uuid.NewV7())
	created.Version = 1
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	r.templates[created.ID] = &created

	return &created, nil
}

func (r *fakeTemplatesRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gets++

	t, ok := r.templates[id]
	if !ok {
		return nil, huberrors.NewNotFoundError("template", "template not found")
	}

	return t, nil
}

func (r *fakeTemplatesRepo) Update(_ context.Context, t *models.Template, expectedVersion int) (*models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateErr != nil {
		return nil, r.updateErr
	}

	current, ok := r.templates[t.ID]
	if !ok {
		return nil, huberrors.NewNotFoundError("template", "template not found")
	}

	if current.Version != expectedVersion {
		return nil, huberrors.NewConflictError("template version is stale")
	}

	updated := *t
	updated.Version = current.Version + 1
	r.templates[t.ID] = &updated

	return &updated, nil
}

func (r *fakeTemplatesRepo) List(_ context.Context, _ *models.ListTemplatesFilters) ([]models.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, *t)
	}

	return out, nil
}

func (r *fakeTemplatesRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.templates)), nil
}

func (r *fakeTemplatesRepo) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.gets
}

// fakeResponsesRepo keeps the last persisted copy of every response.
type fakeResponsesRepo struct {
	mu        sync.Mutex
	responses map[uuid.UUID]*models.Response
	persists  int
}

func newFakeResponsesRepo() *fakeResponsesRepo {
	return &fakeResponsesRepo{responses: make(map[uuid.UUID]*models.Response)}
}

func (r *fakeResponsesRepo) PersistResponse(_ context.Context, resp *models.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *resp
	stored.Answers = resp.Answers.Clone()
	r.responses[resp.ID] = &stored
	r.persists++

	return nil
}

func (r *fakeResponsesRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp, ok := r.responses[id]
	if !ok {
		return nil, huberrors.NewNotFoundError("response", "response not found")
	}

	out := *resp
	out.Answers = resp.Answers.Clone()

	return &out, nil
}

func (r *fakeResponsesRepo) stored(id uuid.UUID) (*models.Response, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp, ok := r.responses[id]

	return resp, ok
}

func (r *fakeResponsesRepo) persistCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.persists
}

func strPtr(s string) *string { return &s }

// feedbackTemplate has a required rating and a comment that only shows for low ratings.
func feedbackTemplate() *models.Template {
	return &models.Template{
		ID:      uuid.MustParse("0190c4a2-0000-7000-8000-0000000000aa"),
		Name:    "Feedback",
		Version: 1,
		Sections: []models.Section{
			{
				ID: "rate", Title: "Rate us", Order: 1, IsDefault: true,
				Fields: []models.Field{{ID: "score", Type: models.FieldTypeRating, Required: true}},
			},
			{
				ID: "details", Title: "Details", Order: 2,
				Fields: []models.Field{{
					ID: "comment", Type: models.FieldTypeTextarea,
					ConditionalLogic: []models.LogicRule{{
						ID:     "show-comment",
						Action: models.ActionShow,
						Conditions: []models.LogicCondition{{
							FieldID: "score", Operator: models.OpLessThan, Value: models.NumberValue(3),
						}},
					}},
				}},
			},
		},
		Navigation: models.NavigationSettings{Type: models.NavigationConditional, AllowBackNavigation: true},
		NotifyURL:  strPtr("https://example.com/hooks/forms"),
		SigningKey: "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw",
	}
}
