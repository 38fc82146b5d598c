// Package annotation keeps the per-note collections of questions, important
// highlights and vocabulary entries held by a session.
//
// The index is purely local: it never talks to a store. Referential
// integrity (the note exists and belongs to the caller) is enforced by the
// persistence layer when the session saves the row.
package annotation

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

type collection map[models.Kind][]models.Annotation

// Index holds annotation rows grouped by note and kind, newest first.
type Index struct {
	validate *validator.Validate
	notes    map[string]collection
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		validate: validator.New(),
		notes:    make(map[string]collection),
	}
}

// Load replaces the rows of one kind for a note.
func (x *Index) Load(nodeID string, kind models.Kind, rows []models.Annotation) {
	c := x.collection(nodeID)
	kept := make([]models.Annotation, 0, len(rows))
	for _, r := range rows {
		if r.Kind() == kind {
			kept = append(kept, r)
		}
	}
	sortNewestFirst(kept)
	c[kind] = kept
}

// Forget drops every row of a note.
func (x *Index) Forget(nodeID string) {
	delete(x.notes, nodeID)
}

func (x *Index) collection(nodeID string) collection {
	c, ok := x.notes[nodeID]
	if !ok {
		c = make(collection, len(models.Kinds))
		x.notes[nodeID] = c
	}
	return c
}

// List returns the rows of one kind for a note, newest first.
func (x *Index) List(nodeID string, kind models.Kind) []models.Annotation {
	rows := x.notes[nodeID][kind]
	return append([]models.Annotation(nil), rows...)
}

// Validate checks the required fields of a row.
func (x *Index) Validate(a models.Annotation) error {
	if a == nil {
		return fmt.Errorf("missing annotation: %w", models.ErrValidation)
	}
	if err := x.validate.Struct(a); err != nil {
		return fmt.Errorf("invalid %s: %v: %w", a.Kind(), err, models.ErrValidation)
	}
	return nil
}

// Create adds a new row at the head of its collection. The id is chosen by
// the caller and must be unique within the kind.
func (x *Index) Create(a models.Annotation) error {
	if err := x.Validate(a); err != nil {
		return err
	}
	if _, exists := x.Get(a.Kind(), a.AnnotationID()); exists {
		return fmt.Errorf("%s %q already exists: %w", a.Kind(), a.AnnotationID(), models.ErrValidation)
	}
	c := x.collection(a.NoteID())
	c[a.Kind()] = append([]models.Annotation{a}, c[a.Kind()]...)
	return nil
}

// Put inserts or replaces a row and keeps the collection ordered.
func (x *Index) Put(a models.Annotation) {
	x.remove(a.Kind(), a.AnnotationID())
	c := x.collection(a.NoteID())
	rows := append(c[a.Kind()], a)
	sortNewestFirst(rows)
	c[a.Kind()] = rows
}

// Get finds a row by kind and id.
func (x *Index) Get(kind models.Kind, id string) (models.Annotation, bool) {
	for _, c := range x.notes {
		for _, r := range c[kind] {
			if r.AnnotationID() == id {
				return r, true
			}
		}
	}
	return nil, false
}

// UpdateQuestion edits a question's text or answer and recomputes IsSolved.
func (x *Index) UpdateQuestion(id string, upd models.QuestionUpdate) (models.Question, bool) {
	a, ok := x.Get(models.KindQuestion, id)
	if !ok {
		return models.Question{}, false
	}
	q := a.(models.Question)
	upd.Apply(&q)
	x.replace(q)
	return q, true
}

// SetDefinition stores the definition of a vocabulary entry.
func (x *Index) SetDefinition(id, definition string) (models.Vocabulary, bool) {
	a, ok := x.Get(models.KindVocabulary, id)
	if !ok {
		return models.Vocabulary{}, false
	}
	v := a.(models.Vocabulary)
	v.Definition = models.StringPtr(definition)
	x.replace(v)
	return v, true
}

// Delete removes a row and returns it. The caller strips the inline mark.
func (x *Index) Delete(kind models.Kind, id string) (models.Annotation, bool) {
	return x.remove(kind, id)
}

// IDs returns the ids of one kind present for a note.
func (x *Index) IDs(nodeID string, kind models.Kind) map[string]bool {
	out := make(map[string]bool)
	for _, r := range x.notes[nodeID][kind] {
		out[r.AnnotationID()] = true
	}
	return out
}

func (x *Index) replace(a models.Annotation) {
	rows := x.notes[a.NoteID()][a.Kind()]
	for i, r := range rows {
		if r.AnnotationID() == a.AnnotationID() {
			rows[i] = a
			return
		}
	}
}

func (x *Index) remove(kind models.Kind, id string) (models.Annotation, bool) {
	for _, c := range x.notes {
		rows := c[kind]
		for i, r := range rows {
			if r.AnnotationID() != id {
				continue
			}
			c[kind] = append(append([]models.Annotation(nil), rows[:i]...), rows[i+1:]...)
			return r, true
		}
	}
	return nil, false
}

func sortNewestFirst(rows []models.Annotation) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Created().After(rows[j].Created())
	})
}
