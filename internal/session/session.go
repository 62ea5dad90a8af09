// Package session holds one respondent's live form: answers, the current
// section and the save/submit lifecycle. Every mutation recomputes the
// visibility snapshot, navigation position and completion.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formbricks/forms/internal/engine"
	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/models"
	"github.com/formbricks/forms/internal/observability"
)

// Persister stores draft and submitted responses. Implementations should treat
// a repeated call with the same response ID and UpdatedAt as a no-op.
type Persister interface {
	PersistResponse(ctx context.Context, resp *models.Response) error
}

// ChangeKind names what happened to a session.
type ChangeKind string

// Change kinds.
const (
	ChangeAnswers    ChangeKind = "answers"
	ChangeNavigation ChangeKind = "navigation"
	ChangeSaved      ChangeKind = "saved"
	ChangeSubmitted  ChangeKind = "submitted"
)

// Change describes one completed session operation.
type Change struct {
	SessionID     uuid.UUID
	TemplateID    uuid.UUID
	Kind          ChangeKind
	ChangedFields []string
	Response      *models.Response
}

// Notifier receives changes after they are applied. It must not block and must
// not call back into the session.
type Notifier interface {
	SessionChanged(ctx context.Context, change Change)
}

// Submit outcomes used for metrics.
const (
	outcomeSuccess          = "success"
	outcomeValidationFailed = "validation_failed"
	outcomePersistFailed    = "persist_failed"
)

// Session is a Draft → Submitted state machine over one template. Operations
// are serialized; a template may be shared by many sessions.
type Session struct {
	mu sync.Mutex

	id        uuid.UUID
	template  *models.Template
	persister Persister
	notifier  Notifier
	metrics   observability.EngineMetrics
	now       func() time.Time

	status      models.ResponseStatus
	answers     models.AnswerSet
	current     string
	atEnd       bool
	noContent   bool
	history     []string
	snapshot    *engine.Snapshot
	completion  int
	dirty       bool
	persisted   bool
	submitter   *models.SubmitterInfo
	createdAt   time.Time
	updatedAt   time.Time
	submittedAt *time.Time

	// diagnostics already logged, so a broken rule is reported once per session
	reported map[string]struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithSubmitter attaches submitter info that is passed through to persistence.
func WithSubmitter(info *models.SubmitterInfo) Option {
	return func(s *Session) { s.submitter = info }
}

// WithNotifier attaches a change listener.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

// WithMetrics records engine and session metrics. A nil value disables them.
func WithMetrics(m observability.EngineMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New opens a fresh draft session on the template's start section.
func New(ctx context.Context, t *models.Template, persister Persister, opts ...Option) *Session {
	s := newSession(t, persister, opts...)
	if s.id == uuid.Nil {
		s.id = uuid.Must(uuid.NewV7())
	}

	s.createdAt = s.now()
	s.updatedAt = s.createdAt
	s.current = t.DefaultSectionID()

	s.recompute(ctx)

	return s
}

// Restore rebuilds a session from a persisted response. A submitted response
// yields a terminal session.
func Restore(ctx context.Context, t *models.Template, resp *models.Response, persister Persister, opts ...Option) *Session {
	s := newSession(t, persister, opts...)

	s.id = resp.ID
	s.status = resp.Status
	s.answers = resp.Answers.Clone()
	s.current = resp.CurrentSectionID
	s.createdAt = resp.CreatedAt
	s.updatedAt = resp.UpdatedAt
	s.submittedAt = resp.SubmittedAt
	s.persisted = true

	if resp.Submitter != nil {
		s.submitter = resp.Submitter
	}

	if s.current == "" {
		s.current = t.DefaultSectionID()
	}

	s.recompute(ctx)

	return s
}

func newSession(t *models.Template, persister Persister, opts ...Option) *Session {
	s := &Session{
		template:  t,
		persister: persister,
		now:       time.Now,
		status:    models.ResponseStatusDraft,
		answers:   make(models.AnswerSet),
		reported:  make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ID returns the session (response) ID.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Template returns the template the session runs on.
func (s *Session) Template() *models.Template {
	return s.template
}

// SetAnswer changes one answer. See SetAnswers.
func (s *Session) SetAnswer(ctx context.Context, fieldID string, value models.Value) error {
	return s.SetAnswers(ctx, models.AnswerSet{fieldID: value})
}

// SetAnswers applies answers as one mutation. Fired setValue rules are then
// applied as one batch followed by exactly one more recomputation; values set
// by that batch do not trigger further setValue rules within this call.
// Empty values clear the answer. No answer is changed when any value is rejected.
func (s *Session) SetAnswers(ctx context.Context, answers models.AnswerSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.ResponseStatusSubmitted {
		return huberrors.NewAlreadySubmittedError("response already submitted; answers cannot change")
	}

	if err := s.checkAnswers(answers); err != nil {
		return err
	}

	changed := make([]string, 0, len(answers))
	for id, v := range answers {
		if s.answers.Get(id).Equal(v) || (s.answers.Get(id).IsEmpty() && v.IsEmpty()) {
			continue
		}

		s.setValue(id, v)
		changed = append(changed, id)
	}

	s.recompute(ctx)

	if pending := s.snapshot.PendingValueSets; len(pending) > 0 {
		for id, v := range pending {
			s.setValue(id, v)
			changed = append(changed, id)
		}

		if s.metrics != nil {
			s.metrics.RecordValueSetPass(ctx, len(pending))
		}

		s.recompute(ctx)
	}

	s.autoAdvance()

	s.dirty = true
	s.updatedAt = s.now()

	s.notify(ctx, ChangeAnswers, sortedIDs(changed))

	return nil
}

// Navigate moves one section in dir. Moving back follows the respondent's own
// path when possible. An illegal move leaves the session unchanged and returns
// a *huberrors.NavigationError.
func (s *Session) Navigate(ctx context.Context, dir engine.Direction) (engine.NavResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.ResponseStatusSubmitted {
		return engine.NavResult{}, huberrors.NewAlreadySubmittedError("response already submitted")
	}

	var (
		res engine.NavResult
		err error
	)

	switch {
	case dir == engine.DirectionNext && s.atEnd:
		return s.position(), nil
	case dir == engine.DirectionPrevious:
		res, err = s.previous()
	default:
		res, err = engine.NextSection(s.snapshot, s.template, s.current, dir)
	}

	if err != nil {
		s.recordNavigationError(ctx, err)

		return engine.NavResult{}, err
	}

	s.pushHistory(dir)
	s.moveTo(res)
	s.dirty = true
	s.updatedAt = s.now()

	s.notify(ctx, ChangeNavigation, nil)

	return res, nil
}

// JumpTo moves directly to a visible section.
func (s *Session) JumpTo(ctx context.Context, sectionID string) (engine.NavResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.ResponseStatusSubmitted {
		return engine.NavResult{}, huberrors.NewAlreadySubmittedError("response already submitted")
	}

	res, err := engine.JumpTo(s.snapshot, s.template, s.current, sectionID)
	if err != nil {
		s.recordNavigationError(ctx, err)

		return engine.NavResult{}, err
	}

	if sectionID != s.current || s.atEnd {
		s.pushHistory(engine.DirectionNext)
	}

	s.moveTo(res)
	s.dirty = true
	s.updatedAt = s.now()

	s.notify(ctx, ChangeNavigation, nil)

	return res, nil
}

// Save persists the session as a draft and clears the dirty flag. On a
// persistence error the session is unchanged and the error is returned as is.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.ResponseStatusSubmitted {
		return huberrors.NewAlreadySubmittedError("response already submitted")
	}

	if err := s.persister.PersistResponse(ctx, s.response(models.ResponseStatusDraft, nil)); err != nil {
		s.recordSave(ctx, outcomePersistFailed)

		return err
	}

	s.dirty = false
	s.persisted = true
	s.recordSave(ctx, outcomeSuccess)

	s.notify(ctx, ChangeSaved, nil)

	return nil
}

// Submit validates and finalizes the response. Every visible, required and
// empty field is reported in one *huberrors.ValidationError. A submitted
// session accepts no further changes.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.ResponseStatusSubmitted {
		return huberrors.NewAlreadySubmittedError("response already submitted")
	}

	if missing := s.missingRequired(); len(missing) > 0 {
		s.recordSubmit(ctx, outcomeValidationFailed)

		return huberrors.NewFieldsValidationError("", missing)
	}

	submittedAt := s.now()

	if err := s.persister.PersistResponse(ctx, s.response(models.ResponseStatusSubmitted, &submittedAt)); err != nil {
		s.recordSubmit(ctx, outcomePersistFailed)

		return err
	}

	s.status = models.ResponseStatusSubmitted
	s.submittedAt = &submittedAt
	s.dirty = false
	s.persisted = true
	s.recordSubmit(ctx, outcomeSuccess)

	s.notify(ctx, ChangeSubmitted, nil)

	return nil
}

// Status returns the lifecycle state.
func (s *Session) Status() models.ResponseStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Dirty reports whether there are changes not yet saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dirty
}

// Unsaved reports whether the store is behind this draft: it has unsaved
// changes or was never stored at all. Submitted sessions are never unsaved.
func (s *Session) Unsaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status == models.ResponseStatusDraft && (s.dirty || !s.persisted)
}

// Answers returns a copy of the current answers.
func (s *Session) Answers() models.AnswerSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.answers.Clone()
}

// Snapshot returns the current visibility snapshot. Callers must not modify it.
func (s *Session) Snapshot() *engine.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot
}

// Position returns the current navigation position.
func (s *Session) Position() engine.NavResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.position()
}

// Completion returns the current completion percentage.
func (s *Session) Completion() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.completion
}

// Response returns the persistable form of the session.
func (s *Session) Response() *models.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.response(s.status, s.submittedAt)
}

// View projects the session for respondents.
func (s *Session) View() models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	sections := make([]models.SectionState, 0, len(s.template.Sections))
	for _, section := range s.template.SortedSections() {
		state := models.SectionState{
			ID:      section.ID,
			Title:   section.Title,
			Visible: s.snapshot.SectionVisible(section.ID),
			Fields:  make([]models.FieldState, 0, len(section.Fields)),
		}

		for _, field := range section.Fields {
			state.Fields = append(state.Fields, models.FieldState{
				ID:       field.ID,
				Visible:  s.snapshot.FieldVisible(field.ID),
				Required: s.snapshot.FieldRequired[field.ID],
				Answered: !s.answers.Get(field.ID).IsEmpty(),
			})
		}

		sections = append(sections, state)
	}

	return models.SessionView{
		SessionID:            s.id,
		TemplateID:           s.template.ID,
		Status:               s.status,
		CurrentSectionID:     s.current,
		AtEnd:                s.atEnd,
		NoContent:            s.noContent,
		CompletionPercentage: s.completion,
		Dirty:                s.dirty,
		Answers:              s.answers.Clone(),
		Sections:             sections,
		UpdatedAt:            s.updatedAt,
	}
}

// recompute refreshes the snapshot, keeps the position off hidden sections and
// refreshes completion.
func (s *Session) recompute(ctx context.Context) {
	start := time.Now()
	s.snapshot = engine.ComputeSnapshot(s.template, s.answers)

	if s.metrics != nil {
		s.metrics.RecordSnapshotDuration(ctx, time.Since(start))
	}

	s.reportDiagnostics(ctx)

	switch {
	case s.atEnd && s.noContent:
		// content may have reappeared
		s.moveTo(engine.StartSection(s.snapshot, s.template))
	case s.atEnd:
		s.noContent = len(s.snapshot.VisibleSectionIDs(s.template)) == 0
	default:
		s.moveTo(engine.ResolveCurrent(s.snapshot, s.template, s.current))
	}

	s.completion = engine.Completion(s.snapshot, s.template, s.answers)
}

func (s *Session) moveTo(res engine.NavResult) {
	s.atEnd = res.End
	s.noContent = res.NoContent

	if !res.End {
		s.current = res.SectionID
	}
}

func (s *Session) position() engine.NavResult {
	if s.atEnd {
		return engine.NavResult{End: true, NoContent: s.noContent}
	}

	return engine.NavResult{SectionID: s.current}
}

// previous walks the visited-section history back to the nearest visible
// section and falls back to section order. History is only trimmed on success.
func (s *Session) previous() (engine.NavResult, error) {
	if !s.template.Navigation.AllowBackNavigation {
		return engine.NavResult{}, huberrors.NewNavigationError(s.current, "back navigation is disabled")
	}

	// leaving the end screen returns to the last section shown
	if s.atEnd && s.snapshot.SectionVisible(s.current) {
		return engine.NavResult{SectionID: s.current}, nil
	}

	for i := len(s.history) - 1; i >= 0; i-- {
		if id := s.history[i]; id != s.current && s.snapshot.SectionVisible(id) {
			s.history = s.history[:i]

			return engine.NavResult{SectionID: id}, nil
		}
	}

	res, err := engine.NextSection(s.snapshot, s.template, s.current, engine.DirectionPrevious)
	if err != nil {
		return engine.NavResult{}, err
	}

	s.history = s.history[:0]

	return res, nil
}

func (s *Session) pushHistory(dir engine.Direction) {
	if dir != engine.DirectionNext || s.atEnd || s.current == "" {
		return
	}

	s.history = append(s.history, s.current)
}

// autoAdvance moves on once every visible field of the current section is
// answered. It never moves to the end screen.
func (s *Session) autoAdvance() {
	if !s.template.Navigation.AutoAdvance || s.atEnd {
		return
	}

	section, ok := s.template.FindSection(s.current)
	if !ok {
		return
	}

	visible := 0

	for _, field := range section.Fields {
		if !s.snapshot.FieldVisible(field.ID) {
			continue
		}

		visible++

		if s.answers.Get(field.ID).IsEmpty() {
			return
		}
	}

	if visible == 0 {
		return
	}

	res, err := engine.NextSection(s.snapshot, s.template, s.current, engine.DirectionNext)
	if err != nil || res.End {
		return
	}

	s.pushHistory(engine.DirectionNext)
	s.moveTo(res)
}

// missingRequired lists visible required fields without an answer, in form order.
func (s *Session) missingRequired() []huberrors.FieldError {
	var missing []huberrors.FieldError

	for _, section := range s.template.SortedSections() {
		for _, field := range section.Fields {
			if s.snapshot.FieldRequiredAndVisible(field.ID) && s.answers.Get(field.ID).IsEmpty() {
				missing = append(missing, huberrors.FieldError{FieldID: field.ID, Message: "field is required"})
			}
		}
	}

	return missing
}

// checkAnswers rejects unknown fields and values of the wrong kind.
func (s *Session) checkAnswers(answers models.AnswerSet) error {
	var problems []huberrors.FieldError

	for _, id := range sortedIDs(keys(answers)) {
		field, _, ok := s.template.FindField(id)
		if !ok {
			problems = append(problems, huberrors.FieldError{FieldID: id, Message: "unknown field"})

			continue
		}

		if err := field.Type.Accepts(answers[id]); err != nil {
			problems = append(problems, huberrors.FieldError{FieldID: id, Message: err.Error()})
		}
	}

	if len(problems) > 0 {
		return huberrors.NewFieldsValidationError("", problems)
	}

	return nil
}

func (s *Session) setValue(id string, v models.Value) {
	if v.IsEmpty() {
		delete(s.answers, id)

		return
	}

	s.answers[id] = v
}

func (s *Session) response(status models.ResponseStatus, submittedAt *time.Time) *models.Response {
	return &models.Response{
		ID:                   s.id,
		TemplateID:           s.template.ID,
		TemplateVersion:      s.template.Version,
		Status:               status,
		Answers:              s.answers.Clone(),
		CurrentSectionID:     s.current,
		CompletionPercentage: s.completion,
		Submitter:            s.submitter,
		CreatedAt:            s.createdAt,
		UpdatedAt:            s.updatedAt,
		SubmittedAt:          submittedAt,
	}
}

func (s *Session) notify(ctx context.Context, kind ChangeKind, fields []string) {
	if s.notifier == nil {
		return
	}

	s.notifier.SessionChanged(ctx, Change{
		SessionID:     s.id,
		TemplateID:    s.template.ID,
		Kind:          kind,
		ChangedFields: fields,
		Response:      s.response(s.status, s.submittedAt),
	})
}

func (s *Session) reportDiagnostics(ctx context.Context) {
	for _, d := range s.snapshot.Diagnostics {
		key := fmt.Sprintf("%s|%s|%s|%s", d.Kind, d.OwnerID, d.RuleID, d.FieldID)
		if _, seen := s.reported[key]; seen {
			continue
		}

		s.reported[key] = struct{}{}

		slog.WarnContext(ctx, "template rule problem",
			"template_id", s.template.ID,
			"session_id", s.id,
			"kind", d.Kind,
			"owner_id", d.OwnerID,
			"rule_id", d.RuleID,
			"field_id", d.FieldID,
			"message", d.Message,
		)

		if s.metrics != nil {
			s.metrics.RecordDiagnostic(ctx, string(d.Kind))
		}
	}
}

func (s *Session) recordNavigationError(ctx context.Context, err error) {
	if s.metrics != nil && errors.Is(err, huberrors.ErrNavigation) {
		s.metrics.RecordNavigationError(ctx)
	}
}

func (s *Session) recordSubmit(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmit(ctx, outcome)
	}
}

func (s *Session) recordSave(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSave(ctx, outcome)
	}
}
