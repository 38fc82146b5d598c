package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Velsaravanan-kafka/Second-brain/internal/document"
	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

func newID() string {
	return uuid.New().String()
}

// NewAnnotation describes an annotation made on the active note.
type NewAnnotation struct {
	// ID is generated when empty.
	ID string `json:"id"`
	// Range is the selected span. Only questions may omit it.
	Range *document.Range `json:"range"`
	// Text is the selected text or, for a typed question, the prompt.
	Text string `json:"text"`
}

func (s *Session) AddQuestion(ctx context.Context, in NewAnnotation) (models.Question, error) {
	a, err := s.AddAnnotation(ctx, models.KindQuestion, in)
	if err != nil {
		return models.Question{}, err
	}
	return a.(models.Question), nil
}

func (s *Session) AddImportant(ctx context.Context, in NewAnnotation) (models.Important, error) {
	a, err := s.AddAnnotation(ctx, models.KindImportant, in)
	if err != nil {
		return models.Important{}, err
	}
	return a.(models.Important), nil
}

func (s *Session) AddVocabulary(ctx context.Context, in NewAnnotation) (models.Vocabulary, error) {
	a, err := s.AddAnnotation(ctx, models.KindVocabulary, in)
	if err != nil {
		return models.Vocabulary{}, err
	}
	return a.(models.Vocabulary), nil
}

// AddAnnotation creates an annotation on the active note. With a range, the
// row is stored first and the mark is then added to the content and saved;
// a failed content save removes the row again.
func (s *Session) AddAnnotation(ctx context.Context, kind models.Kind, in NewAnnotation) (models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	note, _ := s.forest.Get(s.active)
	if in.ID == "" {
		in.ID = newID()
	}

	label := strings.TrimSpace(in.Text)
	content := note.Content
	if in.Range != nil {
		selected, err := document.TextBetween(note.Content, *in.Range)
		if err != nil {
			return nil, err
		}
		if label == "" {
			label = selected
		}
		if content, err = document.AddMark(note.Content, kind, in.ID, *in.Range); err != nil {
			return nil, err
		}
	} else if kind != models.KindQuestion {
		return nil, fmt.Errorf("%s needs a text selection: %w", kind, models.ErrValidation)
	} else if label == "" {
		label = models.DefaultQuestionText
	}

	a, err := models.NewAnnotation(kind, in.ID, note.ID, label)
	if err != nil {
		return nil, err
	}
	if err := s.index.Create(a); err != nil {
		return nil, err
	}
	done := s.begin()
	defer done()

	var stored models.Annotation
	err = s.persist(ctx, "create_"+string(kind), func(ctx context.Context) error {
		var err error
		stored, err = s.store.CreateAnnotation(ctx, s.owner, a)
		return err
	})
	if err != nil {
		s.index.Delete(kind, in.ID)
		s.logger.Error("Failed to create annotation",
			zap.String("kind", string(kind)),
			zap.String("annotation_id", in.ID),
			zap.Error(err))
		return nil, err
	}
	s.index.Put(stored)

	if content != note.Content {
		prev := s.forest
		s.forest = s.forest.UpdateContent(note.ID, content)
		if err := s.saveContent(ctx, note.ID, content); err != nil {
			s.forest = prev
			s.index.Delete(kind, in.ID)
			s.compensate(kind, in.ID)
			s.logger.Error("Failed to save marked content",
				zap.String("note_id", note.ID),
				zap.String("annotation_id", in.ID),
				zap.Error(err))
			return nil, err
		}
	}
	s.logger.Info("Annotation created",
		zap.String("kind", string(kind)),
		zap.String("annotation_id", in.ID),
		zap.String("note_id", note.ID))
	return stored, nil
}

// compensate removes a row whose mark never made it into the content.
func (s *Session) compensate(kind models.Kind, id string) {
	err := s.persist(context.Background(), "delete_"+string(kind), func(ctx context.Context) error {
		return s.store.DeleteAnnotation(ctx, s.owner, kind, id)
	})
	if err != nil {
		s.logger.Error("Failed to remove unmarked annotation", zap.String("annotation_id", id), zap.Error(err))
	}
}

// UpdateQuestion edits a question. Answering it also flags its mark solved.
func (s *Session) UpdateQuestion(ctx context.Context, id string, upd models.QuestionUpdate) (models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.index.Get(models.KindQuestion, id)
	if !ok {
		return models.Question{}, fmt.Errorf("question %q: %w", id, models.ErrNotFound)
	}
	prev := a.(models.Question)
	if upd.Question != nil && strings.TrimSpace(*upd.Question) == "" {
		return models.Question{}, fmt.Errorf("question text is required: %w", models.ErrValidation)
	}
	done := s.begin()
	defer done()

	s.index.UpdateQuestion(id, upd)
	var stored *models.Question
	err := s.persist(ctx, "update_question", func(ctx context.Context) error {
		var err error
		stored, err = s.store.UpdateQuestion(ctx, s.owner, id, upd)
		return err
	})
	if err != nil {
		s.index.Put(prev)
		s.logger.Error("Failed to update question", zap.String("annotation_id", id), zap.Error(err))
		return models.Question{}, err
	}
	s.index.Put(*stored)

	if stored.IsSolved {
		s.markSolved(ctx, stored.NodeID, id)
	}
	return *stored, nil
}

// markSolved flags the question's mark. The row is already saved, so a
// failed content save is left to the debouncer to retry.
func (s *Session) markSolved(ctx context.Context, noteID, id string) {
	note, ok := s.forest.Get(noteID)
	if !ok {
		return
	}
	content, n, err := document.MarkSolved(note.Content, id)
	if err != nil || n == 0 {
		return
	}
	s.forest = s.forest.UpdateContent(noteID, content)
	if err := s.saveContent(ctx, noteID, content); err != nil {
		s.logger.Warn("Failed to save solved mark, retrying later", zap.String("note_id", noteID), zap.String("annotation_id", id), zap.Error(err))
		s.schedule(contentKey(noteID), noteID, models.NoteUpdate{Content: models.StringPtr(content)})
	}
}

// DeleteAnnotation strips the mark and saves the content, then deletes the
// row. Unknown ids are ignored.
func (s *Session) DeleteAnnotation(ctx context.Context, kind models.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := document.MarkType(kind); err != nil {
		return err
	}
	a, ok := s.index.Get(kind, id)
	if !ok {
		return nil
	}
	done := s.begin()
	defer done()

	if note, ok := s.forest.Get(a.NoteID()); ok {
		content, n, err := document.RemoveMark(note.Content, kind, id)
		if err != nil {
			return err
		}
		if n > 0 {
			prev := s.forest
			s.forest = s.forest.UpdateContent(note.ID, content)
			if err := s.saveContent(ctx, note.ID, content); err != nil {
				s.forest = prev
				s.logger.Error("Failed to save unmarked content", zap.String("note_id", note.ID), zap.Error(err))
				return err
			}
		}
	}

	s.index.Delete(kind, id)
	err := s.persist(ctx, "delete_"+string(kind), func(ctx context.Context) error {
		return s.store.DeleteAnnotation(ctx, s.owner, kind, id)
	})
	if err != nil {
		s.index.Put(a)
		s.logger.Error("Failed to delete annotation", zap.String("annotation_id", id), zap.Error(err))
		return err
	}
	s.logger.Info("Annotation deleted", zap.String("kind", string(kind)), zap.String("annotation_id", id))
	return nil
}

// DefineVocabulary asks the definer for a definition and stores it.
func (s *Session) DefineVocabulary(ctx context.Context, id string) (models.Vocabulary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.index.Get(models.KindVocabulary, id)
	if !ok {
		return models.Vocabulary{}, fmt.Errorf("vocabulary %q: %w", id, models.ErrNotFound)
	}
	v := a.(models.Vocabulary)

	var passage string
	if note, ok := s.forest.Get(v.NodeID); ok {
		passage, _ = document.PlainText(note.Content)
	}
	definition, err := s.definer.Define(ctx, v.Text, passage)
	if err != nil {
		return models.Vocabulary{}, err
	}

	var stored *models.Vocabulary
	err = s.persist(ctx, "define_vocabulary", func(ctx context.Context) error {
		var err error
		stored, err = s.store.SetVocabularyDefinition(ctx, s.owner, id, definition)
		return err
	})
	if err != nil {
		return models.Vocabulary{}, err
	}
	s.index.SetDefinition(id, definition)
	return *stored, nil
}

// Reconcile strips marks whose annotation row no longer exists and returns
// the marks removed. Rows are authoritative.
func (s *Session) Reconcile(ctx context.Context, noteID string) ([]document.MarkRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.forest.Get(noteID)
	if !ok {
		return nil, fmt.Errorf("note %q: %w", noteID, models.ErrNotFound)
	}
	marks, err := document.Marks(note.Content)
	if err != nil {
		return nil, err
	}

	rows := make(map[models.Kind]map[string]bool, len(models.Kinds))
	for _, kind := range models.Kinds {
		var list []models.Annotation
		err := s.persist(ctx, "list_"+string(kind), func(ctx context.Context) error {
			var err error
			list, err = s.store.ListAnnotations(ctx, s.owner, kind, noteID)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.index.Load(noteID, kind, list)
		rows[kind] = s.index.IDs(noteID, kind)
	}

	content := note.Content
	pruned := make([]document.MarkRef, 0)
	for _, m := range marks {
		if rows[m.Kind][m.ID] {
			continue
		}
		if content, _, err = document.RemoveMark(content, m.Kind, m.ID); err != nil {
			return nil, err
		}
		pruned = append(pruned, m)
	}
	if len(pruned) == 0 {
		return pruned, nil
	}

	prev := s.forest
	s.forest = s.forest.UpdateContent(noteID, content)
	if err := s.saveContent(ctx, noteID, content); err != nil {
		s.forest = prev
		return nil, err
	}
	s.metrics.Pruned(len(pruned))
	s.logger.Info("Pruned orphaned marks", zap.String("note_id", noteID), zap.Int("pruned", len(pruned)))
	return pruned, nil
}
