package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

type MemoryStorage struct {
	mu          sync.RWMutex
	notes       map[string]models.Note
	annotations map[models.Kind]map[string]models.Annotation
	clock       monotonic
}

func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{
		notes:       make(map[string]models.Note),
		annotations: make(map[models.Kind]map[string]models.Annotation),
	}
	for _, k := range models.Kinds {
		s.annotations[k] = make(map[string]models.Annotation)
	}
	return s
}

// Note methods
func (s *MemoryStorage) ListNotes(ctx context.Context, ownerID string) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := s.ownedNotes(ownerID)
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes, nil
}

func (s *MemoryStorage) ownedNotes(ownerID string) []models.Note {
	notes := make([]models.Note, 0)
	for _, n := range s.notes {
		if n.OwnerID == ownerID {
			notes = append(notes, n)
		}
	}
	return notes
}

func (s *MemoryStorage) GetNote(ctx context.Context, ownerID, id string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.note(ownerID, id)
	if !ok {
		return nil, fmt.Errorf("note %q: %w", id, models.ErrNotFound)
	}
	return &n, nil
}

func (s *MemoryStorage) note(ownerID, id string) (models.Note, bool) {
	n, ok := s.notes[id]
	if !ok || n.OwnerID != ownerID {
		return models.Note{}, false
	}
	return n, true
}

func (s *MemoryStorage) CreateNote(ctx context.Context, note *models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.OwnerID == "" {
		return fmt.Errorf("note owner: %w", models.ErrUnauthenticated)
	}
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	if _, exists := s.notes[note.ID]; exists {
		return fmt.Errorf("note %q already exists: %w", note.ID, models.ErrValidation)
	}
	if note.Title == "" {
		note.Title = models.DefaultNoteTitle
	}
	if !note.HasParent() {
		note.ParentID = nil
	} else if _, ok := s.note(note.OwnerID, *note.ParentID); !ok {
		return fmt.Errorf("parent %q: %w", *note.ParentID, models.ErrNotFound)
	}
	now := s.clock.now()
	note.Content = ""
	note.CreatedAt, note.UpdatedAt = now, now
	s.notes[note.ID] = *note
	return nil
}

func (s *MemoryStorage) UpdateNote(ctx context.Context, ownerID, id string, upd models.NoteUpdate) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.note(ownerID, id)
	if !ok {
		return nil, fmt.Errorf("note %q: %w", id, models.ErrNotFound)
	}
	upd.Apply(&n)
	n.UpdatedAt = s.clock.now()
	s.notes[id] = n
	return &n, nil
}

func (s *MemoryStorage) MoveNote(ctx context.Context, ownerID, id string, parentID *string) (*models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.note(ownerID, id)
	if !ok {
		return nil, fmt.Errorf("note %q: %w", id, models.ErrNotFound)
	}
	if parentID != nil && *parentID != "" {
		if _, ok := s.note(ownerID, *parentID); !ok {
			return nil, fmt.Errorf("parent %q: %w", *parentID, models.ErrNotFound)
		}
		if contains(subtree(s.ownedNotes(ownerID), id), *parentID) {
			return nil, fmt.Errorf("cannot move %q under its own subtree: %w", id, models.ErrValidation)
		}
		n.ParentID = models.StringPtr(*parentID)
	} else {
		n.ParentID = nil
	}
	n.UpdatedAt = s.clock.now()
	s.notes[id] = n
	return &n, nil
}

func (s *MemoryStorage) DeleteNote(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.note(ownerID, id); !ok {
		return nil
	}
	for _, nid := range subtree(s.ownedNotes(ownerID), id) {
		delete(s.notes, nid)
		for _, rows := range s.annotations {
			for aid, a := range rows {
				if a.NoteID() == nid {
					delete(rows, aid)
				}
			}
		}
	}
	return nil
}

// Annotation methods
func (s *MemoryStorage) ListAnnotations(ctx context.Context, ownerID string, kind models.Kind, nodeID string) ([]models.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]models.Annotation, 0)
	if _, ok := s.note(ownerID, nodeID); !ok {
		return rows, nil
	}
	for _, a := range s.annotations[kind] {
		if a.NoteID() == nodeID {
			rows = append(rows, a)
		}
	}
	sortAnnotations(rows)
	return rows, nil
}

func (s *MemoryStorage) CreateAnnotation(ctx context.Context, ownerID string, a models.Annotation) (models.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.note(ownerID, a.NoteID()); !ok {
		return nil, fmt.Errorf("note %q: %w", a.NoteID(), models.ErrNotFound)
	}
	rows, ok := s.annotations[a.Kind()]
	if !ok {
		return nil, fmt.Errorf("unknown annotation kind %q: %w", a.Kind(), models.ErrValidation)
	}
	if _, exists := rows[a.AnnotationID()]; exists {
		if _, mine := s.owned(ownerID, a.Kind(), a.AnnotationID()); !mine {
			return nil, fmt.Errorf("note %q: %w", a.NoteID(), models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s %q already exists: %w", a.Kind(), a.AnnotationID(), models.ErrValidation)
	}
	a = stampAnnotation(a, s.clock.now())
	rows[a.AnnotationID()] = a
	return a, nil
}

func (s *MemoryStorage) owned(ownerID string, kind models.Kind, id string) (models.Annotation, bool) {
	a, ok := s.annotations[kind][id]
	if !ok {
		return nil, false
	}
	if _, ok := s.note(ownerID, a.NoteID()); !ok {
		return nil, false
	}
	return a, true
}

func (s *MemoryStorage) UpdateQuestion(ctx context.Context, ownerID, id string, upd models.QuestionUpdate) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.owned(ownerID, models.KindQuestion, id)
	if !ok {
		return nil, fmt.Errorf("question %q: %w", id, models.ErrNotFound)
	}
	q := a.(models.Question)
	upd.Apply(&q)
	q.UpdatedAt = s.clock.now()
	s.annotations[models.KindQuestion][id] = q
	return &q, nil
}

func (s *MemoryStorage) SetVocabularyDefinition(ctx context.Context, ownerID, id, definition string) (*models.Vocabulary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.owned(ownerID, models.KindVocabulary, id)
	if !ok {
		return nil, fmt.Errorf("vocabulary %q: %w", id, models.ErrNotFound)
	}
	v := a.(models.Vocabulary)
	v.Definition = models.StringPtr(definition)
	s.annotations[models.KindVocabulary][id] = v
	return &v, nil
}

func (s *MemoryStorage) DeleteAnnotation(ctx context.Context, ownerID string, kind models.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owned(ownerID, kind, id); ok {
		delete(s.annotations[kind], id)
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
