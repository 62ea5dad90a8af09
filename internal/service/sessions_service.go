package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/formbricks/forms/internal/datatypes"
	"github.com/formbricks/forms/internal/engine"
	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/models"
	"github.com/formbricks/forms/internal/observability"
	"github.com/formbricks/forms/internal/session"
)

const evictionSaveTimeout = 10 * time.Second

// TemplateGetter loads templates by ID.
type TemplateGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error)
}

// ResponsesRepository persists responses and loads drafts for resuming.
type ResponsesRepository interface {
	session.Persister
	GetByID(ctx context.Context, id uuid.UUID) (*models.Response, error)
}

// SessionsServiceParams holds the dependencies of SessionsService.
type SessionsServiceParams struct {
	Templates   TemplateGetter
	Responses   ResponsesRepository
	Publisher   MessagePublisher
	Metrics     observability.EngineMetrics // may be nil
	MaxSessions int
	IdleTTL     time.Duration
}

// SessionsService keeps live respondent sessions in memory. Every access renews a
// session's idle TTL. Sessions idle past it are evicted; drafts the store is behind
// on are saved on eviction so Get can rebuild them.
type SessionsService struct {
	templates   TemplateGetter
	responses   ResponsesRepository
	publisher   MessagePublisher
	metrics     observability.EngineMetrics
	notifier    session.Notifier
	registry    *expirable.LRU[uuid.UUID, *session.Session]
	maxSessions int

	mu      sync.Mutex // serializes the capacity check with Add
	resumes singleflight.Group
	flushes sync.WaitGroup

	evictMu  sync.Mutex
	evicting map[uuid.UUID]chan struct{} // closed once the eviction save is done
}

// NewSessionsService creates the session registry.
func NewSessionsService(p SessionsServiceParams) *SessionsService {
	s := &SessionsService{
		templates:   p.Templates,
		responses:   p.Responses,
		publisher:   p.Publisher,
		metrics:     p.Metrics,
		notifier:    &sessionEvents{publisher: p.Publisher},
		maxSessions: p.MaxSessions,
		evicting:    make(map[uuid.UUID]chan struct{}),
	}

	// One slot over the cap: Add never evicts a live session, the capacity check rejects first.
	s.registry = expirable.NewLRU[uuid.UUID, *session.Session](p.MaxSessions+1, s.onEvict, p.IdleTTL)

	return s
}

// Open starts a new draft session on a template.
func (s *SessionsService) Open(ctx context.Context, req *models.OpenSessionRequest) (*session.Session, error) {
	t, err := s.templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	sess := session.New(ctx, t, s.responses,
		session.WithSubmitter(req.Submitter),
		session.WithNotifier(s.notifier),
		session.WithMetrics(s.metrics),
	)

	if err := s.register(sess); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session opened", "session_id", sess.ID(), "template_id", t.ID, "template_version", t.Version)

	s.publisher.PublishEvent(ctx, datatypes.ResponseCreated, sess.Response())

	return sess, nil
}

// Get returns a live session, resuming it from its stored response when it is not in memory.
// Submitted responses are returned as read-only sessions and are not kept in memory.
func (s *SessionsService) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	if sess, ok := s.touch(id); ok {
		return sess, nil
	}

	v, err, _ := s.resumes.Do(id.String(), func() (any, error) {
		if sess, ok := s.touch(id); ok {
			return sess, nil
		}

		// the store must have the evicted draft before it is read back
		if err := s.awaitEviction(ctx, id); err != nil {
			return nil, err
		}

		return s.resume(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	return v.(*session.Session), nil
}

// touch returns a live session and restarts its idle TTL. An expired entry the
// purge has not reached yet is evicted here, which starts its save.
func (s *SessionsService) touch(id uuid.UUID) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.registry.Get(id); ok {
		s.registry.Add(id, sess)

		return sess, true
	}

	if s.registry.Contains(id) {
		s.registry.Remove(id)
	}

	return nil, false
}

func (s *SessionsService) awaitEviction(ctx context.Context, id uuid.UUID) error {
	s.evictMu.Lock()
	done, ok := s.evicting[id]
	s.evictMu.Unlock()

	if !ok {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SessionsService) resume(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	resp, err := s.responses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	t, err := s.templates.GetByID(ctx, resp.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template of response %s: %w", id, err)
	}

	if t.Version != resp.TemplateVersion {
		slog.InfoContext(ctx, "resuming response on a newer template version",
			"session_id", id, "stored_version", resp.TemplateVersion, "template_version", t.Version)
	}

	sess := session.Restore(ctx, t, resp, s.responses,
		session.WithNotifier(s.notifier),
		session.WithMetrics(s.metrics),
	)

	if resp.Status == models.ResponseStatusSubmitted {
		return sess, nil
	}

	if err := s.register(sess); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session resumed", "session_id", id, "template_id", t.ID)

	return sess, nil
}

func (s *SessionsService) register(sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry.Len() >= s.maxSessions {
		return huberrors.NewLimitExceededError("too many active sessions, try again later")
	}

	s.registry.Add(sess.ID(), sess)
	s.reportLive()

	return nil
}

// View returns the respondent projection of a session.
func (s *SessionsService) View(ctx context.Context, id uuid.UUID) (models.SessionView, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return models.SessionView{}, err
	}

	return sess.View(), nil
}

// SetAnswer changes one answer.
func (s *SessionsService) SetAnswer(ctx context.Context, id uuid.UUID, req *models.SetAnswerRequest) (models.SessionView, error) {
	return s.SetAnswers(ctx, id, &models.SetAnswersRequest{Answers: models.AnswerSet{req.FieldID: req.Value}})
}

// SetAnswers applies several answers as one change.
func (s *SessionsService) SetAnswers(ctx context.Context, id uuid.UUID, req *models.SetAnswersRequest) (models.SessionView, error) {
	return s.apply(ctx, id, "sessions.set_answers", func(ctx context.Context, sess *session.Session) error {
		return sess.SetAnswers(ctx, req.Answers)
	})
}

// Navigate moves by direction or jumps to a section; exactly one must be given.
func (s *SessionsService) Navigate(ctx context.Context, id uuid.UUID, req *models.NavigateRequest) (models.SessionView, error) {
	if (req.Direction == "") == (req.SectionID == "") {
		return models.SessionView{}, huberrors.NewValidationError("direction", "exactly one of direction or section_id is required")
	}

	return s.apply(ctx, id, "sessions.navigate", func(ctx context.Context, sess *session.Session) error {
		if req.SectionID != "" {
			_, err := sess.JumpTo(ctx, req.SectionID)

			return err
		}

		dir, err := engine.ParseDirection(req.Direction)
		if err != nil {
			return huberrors.NewValidationError("direction", err.Error())
		}

		_, err = sess.Navigate(ctx, dir)

		return err
	})
}

// Save stores the session as a draft.
func (s *SessionsService) Save(ctx context.Context, id uuid.UUID) (models.SessionView, error) {
	return s.apply(ctx, id, "sessions.save", func(ctx context.Context, sess *session.Session) error {
		return sess.Save(ctx)
	})
}

// Submit validates and finalizes the response. The session leaves memory afterwards.
func (s *SessionsService) Submit(ctx context.Context, id uuid.UUID) (models.SessionView, error) {
	view, err := s.apply(ctx, id, "sessions.submit", func(ctx context.Context, sess *session.Session) error {
		return sess.Submit(ctx)
	})
	if err != nil {
		return models.SessionView{}, err
	}

	s.registry.Remove(id)
	s.reportLive()

	return view, nil
}

func (s *SessionsService) apply(
	ctx context.Context, id uuid.UUID, name string, op func(context.Context, *session.Session) error,
) (models.SessionView, error) {
	ctx, span := observability.StartSpan(ctx, name, attribute.String("session.id", id.String()))
	defer span.End()

	sess, err := s.Get(ctx, id)
	if err != nil {
		return models.SessionView{}, err
	}

	ctx = observability.WithSessionID(ctx, id.String())

	if err := op(ctx, sess); err != nil {
		if !isClientError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "session operation failed")
			slog.ErrorContext(ctx, "session operation failed", "error", err)
		}

		return models.SessionView{}, err
	}

	return sess.View(), nil
}

// Len returns the number of sessions in memory.
func (s *SessionsService) Len() int {
	return s.registry.Len()
}

// Close evicts every session, saving unsaved drafts, and waits for the saves.
func (s *SessionsService) Close() {
	s.registry.Purge()
	s.flushes.Wait()
}

// onEvict runs under the registry lock, so the save happens on its own goroutine.
// Saves of the same session run in eviction order.
func (s *SessionsService) onEvict(id uuid.UUID, sess *session.Session) {
	done := make(chan struct{})

	s.evictMu.Lock()
	prev := s.evicting[id]
	s.evicting[id] = done
	s.evictMu.Unlock()

	s.flushes.Add(1)

	go func() {
		defer s.flushes.Done()
		defer func() {
			s.evictMu.Lock()
			if s.evicting[id] == done {
				delete(s.evicting, id)
			}
			s.evictMu.Unlock()

			close(done)
		}()

		if prev != nil {
			<-prev
		}

		s.reportLive()

		if !sess.Unsaved() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), evictionSaveTimeout)
		defer cancel()

		if err := sess.Save(observability.WithSessionID(ctx, id.String())); err != nil {
			slog.ErrorContext(ctx, "failed to save evicted session", "session_id", id, "error", err)

			return
		}

		slog.DebugContext(ctx, "evicted session saved", "session_id", id)
	}()
}

func (s *SessionsService) reportLive() {
	if s.metrics != nil {
		s.metrics.SetLiveSessions(s.registry.Len())
	}
}

func isClientError(err error) bool {
	return errors.Is(err, huberrors.ErrValidation) ||
		errors.Is(err, huberrors.ErrNavigation) ||
		errors.Is(err, huberrors.ErrAlreadySubmitted) ||
		errors.Is(err, huberrors.ErrNotFound)
}
