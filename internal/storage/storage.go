package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

// Storage is the persisted note and annotation store.
//
// Every call is scoped by owner. A note id that does not belong to the
// caller behaves exactly like a missing one: reads and updates return
// models.ErrNotFound and deletes are silent no-ops.
type Storage interface {
	NoteStore
	AnnotationStore
	Close() error
}

type NoteStore interface {
	ListNotes(ctx context.Context, ownerID string) ([]models.Note, error)
	GetNote(ctx context.Context, ownerID, id string) (*models.Note, error)
	// CreateNote persists a new note. An empty ID is generated; timestamps
	// are set by the store and written back into note.
	CreateNote(ctx context.Context, note *models.Note) error
	UpdateNote(ctx context.Context, ownerID, id string, upd models.NoteUpdate) (*models.Note, error)
	// MoveNote reparents a note. A nil parent makes it a root. Moving a note
	// under itself or one of its descendants fails with models.ErrValidation.
	MoveNote(ctx context.Context, ownerID, id string, parentID *string) (*models.Note, error)
	// DeleteNote removes a note with all of its descendants and their annotations.
	DeleteNote(ctx context.Context, ownerID, id string) error
}

type AnnotationStore interface {
	// ListAnnotations returns the rows of one kind for a note, newest first.
	ListAnnotations(ctx context.Context, ownerID string, kind models.Kind, nodeID string) ([]models.Annotation, error)
	// CreateAnnotation stores a row with the caller-chosen id. It fails with
	// models.ErrNotFound when the note does not exist for the owner.
	CreateAnnotation(ctx context.Context, ownerID string, a models.Annotation) (models.Annotation, error)
	UpdateQuestion(ctx context.Context, ownerID, id string, upd models.QuestionUpdate) (*models.Question, error)
	SetVocabularyDefinition(ctx context.Context, ownerID, id, definition string) (*models.Vocabulary, error)
	DeleteAnnotation(ctx context.Context, ownerID string, kind models.Kind, id string) error
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func sortAnnotations(rows []models.Annotation) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Created().After(rows[j].Created())
	})
}

// subtree returns id and every transitive child of id among notes.
func subtree(notes []models.Note, id string) []string {
	children := make(map[string][]string)
	for _, n := range notes {
		if n.HasParent() {
			children[*n.ParentID] = append(children[*n.ParentID], n.ID)
		}
	}
	out := []string{id}
	seen := map[string]bool{id: true}
	for i := 0; i < len(out); i++ {
		for _, c := range children[out[i]] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// monotonic hands out strictly increasing UTC timestamps so rows created in
// the same instant still sort newest first.
type monotonic struct {
	mu   sync.Mutex
	last time.Time
}

func (m *monotonic) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := time.Now().UTC().Truncate(time.Microsecond)
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

// stampAnnotation sets the creation time and derived fields of a new row.
func stampAnnotation(a models.Annotation, now time.Time) models.Annotation {
	if q, ok := a.(models.Question); ok {
		q.IsSolved = models.IsAnswered(q.Answer)
		a = q
	}
	if a.Created().IsZero() {
		a = models.WithCreatedAt(a, now)
	}
	return a
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
