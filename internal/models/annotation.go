package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the annotation variants.
type Kind string

const (
	KindQuestion   Kind = "question"
	KindImportant  Kind = "important"
	KindVocabulary Kind = "vocabulary"
)

// DefaultQuestionText is used for a typed question with no prompt.
const DefaultQuestionText = "New Question"

// Kinds lists every annotation kind in a stable order.
var Kinds = []Kind{KindQuestion, KindImportant, KindVocabulary}

// ParseKind converts a route or query value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindQuestion, KindImportant, KindVocabulary:
		return k, nil
	case "questions":
		return KindQuestion, nil
	}
	return "", fmt.Errorf("unknown annotation kind %q: %w", s, ErrValidation)
}

// Annotation is one of Question, Important or Vocabulary.
type Annotation interface {
	Kind() Kind
	AnnotationID() string
	NoteID() string
	Created() time.Time
	// Label is the passage or prompt the annotation refers to.
	Label() string

	annotation()
}

// Question is a prompt attached to a note, optionally answered.
type Question struct {
	ID        string    `json:"id" validate:"required"`
	NodeID    string    `json:"nodeId" validate:"required"`
	Question  string    `json:"question" validate:"required"`
	Answer    *string   `json:"answer"`
	IsSolved  bool      `json:"isSolved"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Important is a highlighted passage.
type Important struct {
	ID        string    `json:"id" validate:"required"`
	NodeID    string    `json:"nodeId" validate:"required"`
	Text      string    `json:"text" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
}

// Vocabulary is a term picked from a note, with an optional definition.
type Vocabulary struct {
	ID         string    `json:"id" validate:"required"`
	NodeID     string    `json:"nodeId" validate:"required"`
	Text       string    `json:"text" validate:"required"`
	Definition *string   `json:"definition"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (q Question) Kind() Kind           { return KindQuestion }
func (q Question) AnnotationID() string { return q.ID }
func (q Question) NoteID() string       { return q.NodeID }
func (q Question) Created() time.Time   { return q.CreatedAt }
func (q Question) Label() string        { return q.Question }
func (Question) annotation()            {}

func (i Important) Kind() Kind           { return KindImportant }
func (i Important) AnnotationID() string { return i.ID }
func (i Important) NoteID() string       { return i.NodeID }
func (i Important) Created() time.Time   { return i.CreatedAt }
func (i Important) Label() string        { return i.Text }
func (Important) annotation()            {}

func (v Vocabulary) Kind() Kind           { return KindVocabulary }
func (v Vocabulary) AnnotationID() string { return v.ID }
func (v Vocabulary) NoteID() string       { return v.NodeID }
func (v Vocabulary) Created() time.Time   { return v.CreatedAt }
func (v Vocabulary) Label() string        { return v.Text }
func (Vocabulary) annotation()            {}

// QuestionUpdate carries the editable question fields. Nil fields are left untouched.
type QuestionUpdate struct {
	Question *string `json:"question"`
	Answer   *string `json:"answer"`
}

// Apply copies the set fields onto q and recomputes IsSolved when the answer changes.
func (u QuestionUpdate) Apply(q *Question) {
	if u.Question != nil {
		q.Question = *u.Question
	}
	if u.Answer != nil {
		q.Answer = u.Answer
		q.IsSolved = IsAnswered(u.Answer)
	}
}

// IsAnswered reports whether answer holds non-whitespace text.
func IsAnswered(answer *string) bool {
	return answer != nil && strings.TrimSpace(*answer) != ""
}

// WithNoteID returns a copy of a bound to nodeID.
func WithNoteID(a Annotation, nodeID string) Annotation {
	switch v := a.(type) {
	case Question:
		v.NodeID = nodeID
		return v
	case Important:
		v.NodeID = nodeID
		return v
	case Vocabulary:
		v.NodeID = nodeID
		return v
	}
	return a
}

// WithCreatedAt returns a copy of a stamped with t.
func WithCreatedAt(a Annotation, t time.Time) Annotation {
	switch v := a.(type) {
	case Question:
		v.CreatedAt = t
		v.UpdatedAt = t
		return v
	case Important:
		v.CreatedAt = t
		return v
	case Vocabulary:
		v.CreatedAt = t
		return v
	}
	return a
}

// NewAnnotation builds an annotation of the given kind from a label.
func NewAnnotation(kind Kind, id, nodeID, label string) (Annotation, error) {
	switch kind {
	case KindQuestion:
		return Question{ID: id, NodeID: nodeID, Question: label}, nil
	case KindImportant:
		return Important{ID: id, NodeID: nodeID, Text: label}, nil
	case KindVocabulary:
		return Vocabulary{ID: id, NodeID: nodeID, Text: label}, nil
	}
	return nil, fmt.Errorf("unknown annotation kind %q: %w", kind, ErrValidation)
}
