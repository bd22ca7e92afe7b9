package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/editor"
	"github.com/makemykankotri/kankotri/pkg/events"
	"github.com/makemykankotri/kankotri/pkg/feature"
	"github.com/makemykankotri/kankotri/pkg/models"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Editor session defaults
const (
	DefaultHistoryLimit  = 100
	DefaultAutoSaveDelay = 2 * time.Second
	DefaultSessionTTL    = 30 * time.Minute
)

type session struct {
	store    *editor.Store
	saver    *editor.AutoSaver
	openedBy string
	lastUsed time.Time
}

// EditorService keeps one in-memory editing session per template. Sessions
// are shared by every admin editing the same template.
type EditorService struct {
	templates *TemplateService
	bus       *events.Bus
	flags     *feature.Flags
	clock     clockwork.Clock
	cfg       config.EditorConfig
	logger    observability.Logger
	metrics   observability.MetricsClient

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewEditorService creates an EditorService. A nil clock uses the real clock.
func NewEditorService(
	templates *TemplateService,
	bus *events.Bus,
	flags *feature.Flags,
	cfg config.EditorConfig,
	clock clockwork.Clock,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *EditorService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.AutoSaveDelay <= 0 {
		cfg.AutoSaveDelay = DefaultAutoSaveDelay
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &EditorService{
		templates: templates,
		bus:       bus,
		flags:     flags,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.WithPrefix("editor-service"),
		metrics:   metrics,
		sessions:  make(map[uuid.UUID]*session),
	}
}

// Open starts, or rejoins, the session of a template
func (s *EditorService) Open(ctx context.Context, id uuid.UUID, user string) (editor.State, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.lastUsed = s.clock.Now()
		s.mu.Unlock()
		return sess.store.State(), nil
	}
	s.mu.Unlock()

	t, err := s.templates.Get(ctx, id)
	if err != nil {
		return editor.State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// another request may have opened it meanwhile
	if sess, ok := s.sessions[id]; ok {
		sess.lastUsed = s.clock.Now()
		return sess.store.State(), nil
	}

	sess := &session{
		store:    editor.NewStore(t, s.cfg.HistoryLimit),
		openedBy: user,
		lastUsed: s.clock.Now(),
	}
	sess.saver = editor.NewAutoSaver(s.clock, s.cfg.AutoSaveDelay, func(ctx context.Context) error {
		return s.persist(ctx, id, sess, true)
	}, s.logger)
	s.sessions[id] = sess

	s.metrics.RecordGauge("editor_sessions", float64(len(s.sessions)), nil)
	s.logger.Info("Editor session opened", map[string]interface{}{
		"template_id": id.String(),
		"user":        user,
	})
	return sess.store.State(), nil
}

// State returns the current session state
func (s *EditorService) State(id uuid.UUID) (editor.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return editor.State{}, err
	}
	return sess.store.State(), nil
}

// AddElement inserts an element at the root or into a container
func (s *EditorService) AddElement(id uuid.UUID, el models.Element, parentID string) (models.Element, editor.State, error) {
	var added models.Element
	state, err := s.mutate(id, func(store *editor.Store) (err error) {
		added, err = store.AddElement(el, parentID)
		return err
	})
	return added, state, err
}

// UpdateElement applies a patch to one element
func (s *EditorService) UpdateElement(id uuid.UUID, elementID string, patch editor.ElementPatch) (editor.State, error) {
	return s.mutate(id, func(store *editor.Store) error {
		_, err := store.UpdateElement(elementID, patch)
		return err
	})
}

// RemoveElement deletes one element and its children
func (s *EditorService) RemoveElement(id uuid.UUID, elementID string) (editor.State, error) {
	return s.mutate(id, func(store *editor.Store) error {
		return store.RemoveElement(elementID)
	})
}

// DuplicateElement copies one element next to the original
func (s *EditorService) DuplicateElement(id uuid.UUID, elementID string) (models.Element, editor.State, error) {
	var dup models.Element
	state, err := s.mutate(id, func(store *editor.Store) (err error) {
		dup, err = store.DuplicateElement(elementID)
		return err
	})
	return dup, state, err
}

// SetLayout replaces the page layout
func (s *EditorService) SetLayout(id uuid.UUID, layout models.Layout) (editor.State, error) {
	return s.mutate(id, func(store *editor.Store) error {
		return store.SetLayout(layout)
	})
}

// Select changes the selected element
func (s *EditorService) Select(id uuid.UUID, elementID string) (editor.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return editor.State{}, err
	}
	if err := sess.store.Select(elementID); err != nil {
		return editor.State{}, err
	}
	return sess.store.State(), nil
}

// Undo steps back one edit
func (s *EditorService) Undo(id uuid.UUID) (editor.State, error) {
	return s.mutate(id, func(store *editor.Store) error {
		_, err := store.Undo()
		return err
	})
}

// Redo steps forward one edit
func (s *EditorService) Redo(id uuid.UUID) (editor.State, error) {
	return s.mutate(id, func(store *editor.Store) error {
		_, err := store.Redo()
		return err
	})
}

// Save writes the session template to storage now
func (s *EditorService) Save(ctx context.Context, id uuid.UUID) (editor.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return editor.State{}, err
	}
	if err := s.persist(ctx, id, sess, false); err != nil {
		return editor.State{}, err
	}
	return sess.store.State(), nil
}

// Close ends a session, discarding unsaved changes
func (s *EditorService) Close(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	count := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "template %s", id)
	}
	sess.saver.Stop()
	s.metrics.RecordGauge("editor_sessions", float64(count), nil)
	return nil
}

// CloseAll stops every session, saving the dirty ones first
func (s *EditorService) CloseAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.closeSaving(ctx, id)
	}
}

// Sweep closes sessions idle for longer than the session TTL, saving dirty
// ones first. It returns the number of sessions closed.
func (s *EditorService) Sweep(ctx context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	var idle []uuid.UUID
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.cfg.SessionTTL {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	for _, id := range idle {
		s.closeSaving(ctx, id)
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is done
func (s *EditorService) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.SessionTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := s.Sweep(ctx); n > 0 {
				s.logger.Info("Closed idle editor sessions", map[string]interface{}{"count": n})
			}
		}
	}
}

// Sessions returns the number of open sessions
func (s *EditorService) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *EditorService) closeSaving(ctx context.Context, id uuid.UUID) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.saver.Stop()
	if sess.store.IsDirty() {
		if err := s.persist(ctx, id, sess, true); err != nil {
			s.logger.Error("Failed to save editor session on close", map[string]interface{}{
				"template_id": id.String(),
				"error":       err.Error(),
			})
		}
	}
	_ = s.Close(id)
}

func (s *EditorService) session(id uuid.UUID) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrSessionNotFound, "template %s", id)
	}
	sess.lastUsed = s.clock.Now()
	return sess, nil
}

func (s *EditorService) mutate(id uuid.UUID, fn func(store *editor.Store) error) (editor.State, error) {
	sess, err := s.session(id)
	if err != nil {
		return editor.State{}, err
	}
	if err := fn(sess.store); err != nil {
		return editor.State{}, err
	}
	if s.flags == nil || s.flags.IsEnabled(feature.AutoSave) {
		sess.saver.Trigger()
	}
	return sess.store.State(), nil
}

func (s *EditorService) persist(ctx context.Context, id uuid.UUID, sess *session, auto bool) error {
	t, rev := sess.store.Snapshot()
	if err := s.templates.Save(ctx, t); err != nil {
		return errors.Wrap(err, "failed to save editor session")
	}
	// edits made while saving keep the session dirty
	if !sess.store.MarkSavedAt(rev) {
		s.logger.Debug("Editor session changed during save", map[string]interface{}{"template_id": id.String()})
	}

	s.bus.Emit(ctx, events.EditorSaved, events.EditorPayload{TemplateID: id.String(), Auto: auto})
	return nil
}
