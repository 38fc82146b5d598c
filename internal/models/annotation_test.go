package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAnswered(t *testing.T) {
	tests := []struct {
		name   string
		answer *string
		want   bool
	}{
		{"nil", nil, false},
		{"empty", StringPtr(""), false},
		{"whitespace", StringPtr(" \t\n"), false},
		{"text", StringPtr("chlorophyll"), true},
		{"padded text", StringPtr("  yes "), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAnswered(tt.answer))
		})
	}
}

func TestQuestionUpdate_Apply(t *testing.T) {
	q := Question{ID: "q1", NodeID: "N", Question: "photosynthesis"}

	QuestionUpdate{Answer: StringPtr("light to sugar")}.Apply(&q)
	assert.True(t, q.IsSolved)
	assert.Equal(t, "photosynthesis", q.Question)

	QuestionUpdate{Question: StringPtr("what is photosynthesis?")}.Apply(&q)
	assert.True(t, q.IsSolved, "question-only update keeps solved state")
	assert.Equal(t, "what is photosynthesis?", q.Question)

	QuestionUpdate{Answer: StringPtr("   ")}.Apply(&q)
	assert.False(t, q.IsSolved)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Questions")
	require.NoError(t, err)
	assert.Equal(t, KindQuestion, k)

	k, err = ParseKind("vocabulary")
	require.NoError(t, err)
	assert.Equal(t, KindVocabulary, k)

	_, err = ParseKind("bookmark")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestNewAnnotation(t *testing.T) {
	a, err := NewAnnotation(KindImportant, "i1", "N", "mitochondria")
	require.NoError(t, err)
	assert.Equal(t, KindImportant, a.Kind())
	assert.Equal(t, "i1", a.AnnotationID())
	assert.Equal(t, "N", a.NoteID())
	assert.Equal(t, "mitochondria", a.Label())

	moved := WithNoteID(a, "M")
	assert.Equal(t, "M", moved.NoteID())
	assert.Equal(t, "N", a.NoteID())
}
