// Package session drives one user's editing session: the note forest, the
// active note with its annotations, and the saves that keep the store in
// step with local state.
//
// Local changes are applied first and then persisted. Free-text edits are
// debounced per note and field; structural changes are saved right away and
// rolled back locally when the save fails.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Velsaravanan-kafka/Second-brain/internal/annotation"
	"github.com/Velsaravanan-kafka/Second-brain/internal/debounce"
	"github.com/Velsaravanan-kafka/Second-brain/internal/definer"
	"github.com/Velsaravanan-kafka/Second-brain/internal/document"
	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
	"github.com/Velsaravanan-kafka/Second-brain/internal/observability"
	"github.com/Velsaravanan-kafka/Second-brain/internal/storage"
	"github.com/Velsaravanan-kafka/Second-brain/internal/tree"
)

const (
	DefaultDebounce       = time.Second
	DefaultPersistTimeout = 10 * time.Second
)

// State is the lifecycle of the active note.
type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Mutating
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Mutating:
		return "mutating"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type options struct {
	logger         *zap.Logger
	metrics        *observability.Metrics
	definer        definer.Definer
	debounce       time.Duration
	persistTimeout time.Duration
	clock          debounce.Clock
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithDefiner(d definer.Definer) Option {
	return func(o *options) { o.definer = d }
}

// WithDebounce sets the quiet period for title and content saves.
func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

func WithPersistTimeout(d time.Duration) Option {
	return func(o *options) { o.persistTimeout = d }
}

// WithClock replaces the clock driving debounced saves.
func WithClock(c debounce.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{
		logger:         zap.NewNop(),
		definer:        definer.NopDefiner{},
		debounce:       DefaultDebounce,
		persistTimeout: DefaultPersistTimeout,
		clock:          debounce.SystemClock,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.debounce <= 0 {
		o.debounce = DefaultDebounce
	}
	if o.persistTimeout <= 0 {
		o.persistTimeout = DefaultPersistTimeout
	}
	return o
}

// Session is the editing state of one owner.
type Session struct {
	mu      sync.Mutex
	owner   string
	store   storage.Storage
	definer definer.Definer
	logger  *zap.Logger
	metrics *observability.Metrics
	timeout time.Duration

	forest tree.Forest
	active string
	state  State
	index  *annotation.Index

	saves  *debounce.Debouncer
	closed bool
}

// View is the active note with its annotations.
type View struct {
	State      string              `json:"state"`
	Note       *models.Note        `json:"note"`
	Questions  []models.Annotation `json:"questions"`
	Important  []models.Annotation `json:"important"`
	Vocabulary []models.Annotation `json:"vocabulary"`
}

func New(ownerID string, store storage.Storage, opts ...Option) (*Session, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("session owner: %w", models.ErrUnauthenticated)
	}
	o := buildOptions(opts)
	s := &Session{
		owner:   ownerID,
		store:   store,
		definer: o.definer,
		logger:  o.logger.With(zap.String("owner_id", ownerID)),
		metrics: o.metrics,
		timeout: o.persistTimeout,
		forest:  tree.BuildTree(nil),
		index:   annotation.NewIndex(),
	}
	s.saves = debounce.New(o.debounce,
		debounce.WithClock(o.clock),
		debounce.OnCoalesce(func(string) { s.metrics.Coalesced() }),
	)
	s.metrics.SessionOpened()
	return s, nil
}

func (s *Session) Owner() string {
	return s.owner
}

// Open loads the owner's notes and rebuilds the forest.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var notes []models.Note
	err := s.persist(ctx, "list_notes", func(ctx context.Context) error {
		var err error
		notes, err = s.store.ListNotes(ctx, s.owner)
		return err
	})
	if err != nil {
		return err
	}
	s.forest = tree.BuildTree(notes)
	if s.active != "" && !s.forest.Contains(s.active) {
		s.active, s.state = "", Unloaded
	}
	s.logger.Info("Session opened", zap.Int("notes", s.forest.Len()))
	return nil
}

// Forest returns the current snapshot.
func (s *Session) Forest() tree.Forest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest
}

func (s *Session) Tree() []*tree.Node {
	return s.Forest().Roots()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Select makes noteID the active note and loads its annotations.
func (s *Session) Select(ctx context.Context, noteID string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.forest.Contains(noteID) {
		return View{}, fmt.Errorf("note %q: %w", noteID, models.ErrNotFound)
	}
	prevActive, prevState := s.active, s.state
	s.active, s.state = noteID, Loading

	rows := make([][]models.Annotation, len(models.Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range models.Kinds {
		i, kind := i, kind
		g.Go(func() error {
			return s.persist(gctx, "list_"+string(kind), func(ctx context.Context) error {
				var err error
				rows[i], err = s.store.ListAnnotations(ctx, s.owner, kind, noteID)
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		s.active, s.state = prevActive, prevState
		return View{}, err
	}

	for i, kind := range models.Kinds {
		s.index.Load(noteID, kind, rows[i])
	}
	s.state = Ready
	s.logger.Debug("Note selected", zap.String("note_id", noteID))
	return s.view(), nil
}

// View returns the active note and its annotations.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Session) view() View {
	v := View{State: s.state.String()}
	n, ok := s.forest.Get(s.active)
	if !ok {
		return v
	}
	v.Note = &n
	v.Questions = s.index.List(s.active, models.KindQuestion)
	v.Important = s.index.List(s.active, models.KindImportant)
	v.Vocabulary = s.index.List(s.active, models.KindVocabulary)
	return v
}

func (s *Session) ready() error {
	if s.state != Ready || s.active == "" {
		return fmt.Errorf("no active note: %w", models.ErrValidation)
	}
	return nil
}

// begin moves a ready session to Mutating until the returned func runs.
func (s *Session) begin() func() {
	if s.state != Ready {
		return func() {}
	}
	s.state = Mutating
	return func() { s.state = Ready }
}

// persist runs one store call with the session timeout and records it.
func (s *Session) persist(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	status := "success"
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	s.metrics.ObservePersist(op, status, time.Since(start))
	if err == nil || classified(err) {
		return err
	}
	return fmt.Errorf("%s: %v: %w", op, err, models.ErrPersistence)
}

func classified(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrUnauthenticated) ||
		errors.Is(err, models.ErrPersistence)
}

func titleKey(noteID string) string   { return noteID + "/title" }
func contentKey(noteID string) string { return noteID + "/content" }

// EditTitle renames a note locally and schedules the save.
func (s *Session) EditTitle(noteID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.forest.Contains(noteID) {
		return fmt.Errorf("note %q: %w", noteID, models.ErrNotFound)
	}
	s.forest = s.forest.UpdateTitle(noteID, title)
	s.schedule(titleKey(noteID), noteID, models.NoteUpdate{Title: models.StringPtr(title)})
	return nil
}

// EditContent replaces a note's document locally and schedules the save.
// Only the last content of a burst reaches the store.
func (s *Session) EditContent(noteID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.forest.Contains(noteID) {
		return fmt.Errorf("note %q: %w", noteID, models.ErrNotFound)
	}
	if _, err := document.Parse(content); err != nil {
		return err
	}
	s.forest = s.forest.UpdateContent(noteID, content)
	s.schedule(contentKey(noteID), noteID, models.NoteUpdate{Content: models.StringPtr(content)})
	return nil
}

func (s *Session) schedule(key, noteID string, upd models.NoteUpdate) {
	s.saves.Add(key, func() {
		err := s.persist(context.Background(), "update_note", func(ctx context.Context) error {
			_, err := s.store.UpdateNote(ctx, s.owner, noteID, upd)
			return err
		})
		if err != nil {
			s.logger.Error("Failed to save note", zap.String("note_id", noteID), zap.String("key", key), zap.Error(err))
			return
		}
		s.logger.Debug("Note saved", zap.String("note_id", noteID), zap.String("key", key))
	})
}

// saveContent writes content now, superseding any pending debounced save.
// When the write fails the pending save is scheduled again, since the
// caller's rollback restores the edit it carries.
func (s *Session) saveContent(ctx context.Context, noteID, content string) error {
	key := contentKey(noteID)
	pending, ok := s.saves.Take(key)
	err := s.persist(ctx, "update_note", func(ctx context.Context) error {
		_, err := s.store.UpdateNote(ctx, s.owner, noteID, models.NoteUpdate{Content: models.StringPtr(content)})
		return err
	})
	if err != nil && ok {
		s.saves.Add(key, pending)
	}
	return err
}

// CreateNote adds a note under parentID, or a root when parentID is empty or
// tree.RootParent.
func (s *Session) CreateNote(ctx context.Context, parentID, title string, icon *string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID == "" {
		parentID = tree.RootParent
	}
	if parentID != tree.RootParent && !s.forest.Contains(parentID) {
		return models.Note{}, fmt.Errorf("parent %q: %w", parentID, models.ErrNotFound)
	}
	if title == "" {
		title = models.DefaultNoteTitle
	}
	done := s.begin()
	defer done()

	n := models.Note{ID: newID(), OwnerID: s.owner, Title: title, Icon: icon}
	if parentID != tree.RootParent {
		n.ParentID = models.StringPtr(parentID)
	}
	prev := s.forest
	s.forest = s.forest.Insert(parentID, n)

	err := s.persist(ctx, "create_note", func(ctx context.Context) error {
		return s.store.CreateNote(ctx, &n)
	})
	if err != nil {
		s.forest = prev
		s.logger.Error("Failed to create note", zap.String("note_id", n.ID), zap.Error(err))
		return models.Note{}, err
	}
	s.forest = s.forest.UpdateNote(n)
	s.logger.Info("Note created", zap.String("note_id", n.ID), zap.String("parent_id", parentID))
	return n, nil
}

// DeleteNote removes a note with its descendants. Unknown ids are ignored.
func (s *Session) DeleteNote(ctx context.Context, noteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.forest.Contains(noteID) {
		return nil
	}
	done := s.begin()
	defer func() { done() }()

	removed := append([]string{noteID}, s.forest.Descendants(noteID)...)
	pending := make(map[string]func())
	for _, id := range removed {
		for _, key := range []string{titleKey(id), contentKey(id)} {
			if fn, ok := s.saves.Take(key); ok {
				pending[key] = fn
			}
		}
	}
	prev := s.forest
	s.forest = s.forest.Delete(noteID)

	err := s.persist(ctx, "delete_note", func(ctx context.Context) error {
		return s.store.DeleteNote(ctx, s.owner, noteID)
	})
	if err != nil {
		s.forest = prev
		for key, fn := range pending {
			s.saves.Add(key, fn)
		}
		s.logger.Error("Failed to delete note", zap.String("note_id", noteID), zap.Error(err))
		return err
	}

	for _, id := range removed {
		s.index.Forget(id)
		if id == s.active {
			s.active = ""
			done = func() { s.state = Unloaded }
		}
	}
	s.logger.Info("Note deleted", zap.String("note_id", noteID), zap.Int("removed", len(removed)))
	return nil
}

// MoveNote reparents a note. Moving under itself or a descendant fails with
// models.ErrValidation.
func (s *Session) MoveNote(ctx context.Context, noteID, parentID string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID == "" {
		parentID = tree.RootParent
	}
	if !s.forest.Contains(noteID) {
		return models.Note{}, fmt.Errorf("note %q: %w", noteID, models.ErrNotFound)
	}
	if parentID != tree.RootParent {
		if !s.forest.Contains(parentID) {
			return models.Note{}, fmt.Errorf("parent %q: %w", parentID, models.ErrNotFound)
		}
		if parentID == noteID || contains(s.forest.Descendants(noteID), parentID) {
			return models.Note{}, fmt.Errorf("cannot move %q under its own subtree: %w", noteID, models.ErrValidation)
		}
	}
	done := s.begin()
	defer done()

	prev := s.forest
	s.forest = s.forest.Move(noteID, parentID)

	var parent *string
	if parentID != tree.RootParent {
		parent = models.StringPtr(parentID)
	}
	var moved *models.Note
	err := s.persist(ctx, "move_note", func(ctx context.Context) error {
		var err error
		moved, err = s.store.MoveNote(ctx, s.owner, noteID, parent)
		return err
	})
	if err != nil {
		s.forest = prev
		s.logger.Error("Failed to move note", zap.String("note_id", noteID), zap.Error(err))
		return models.Note{}, err
	}
	n, _ := s.forest.Get(noteID)
	n.UpdatedAt = moved.UpdatedAt
	s.forest = s.forest.UpdateNote(n)
	return n, nil
}

// Flush sends every pending debounced save now.
func (s *Session) Flush() int {
	return s.saves.FlushAll()
}

// Close flushes pending saves and waits for running ones. Edits made after
// Close are saved synchronously.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	n := s.saves.Stop()
	s.metrics.SessionClosed()
	s.logger.Info("Session closed", zap.Int("flushed", n))
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
