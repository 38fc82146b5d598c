package document

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

const sample = `{"type":"doc","content":[` +
	`{"type":"heading","attrs":{"level":2},"content":[{"type":"text","text":"Biology"}]},` +
	`{"type":"paragraph","content":[` +
	`{"type":"text","text":"Plants do "},` +
	`{"type":"text","marks":[{"type":"bold"}],"text":"photosynthesis"},` +
	`{"type":"text","text":" every day."}]}]}`

// canonical re-encodes content so documents can be compared regardless of
// key order or leaf splitting.
func canonical(t *testing.T, content string) string {
	t.Helper()
	doc, err := Parse(content)
	require.NoError(t, err)
	normalize(doc)
	out, err := Serialize(doc)
	require.NoError(t, err)
	return out
}

func countMarks(t *testing.T, content string, kind models.Kind, id string) int {
	t.Helper()
	refs, err := Marks(content)
	require.NoError(t, err)
	n := 0
	for _, r := range refs {
		if r.Kind == kind && r.ID == id {
			n++
		}
	}
	return n
}

func TestAddMark_QuestionScenario(t *testing.T) {
	text, err := PlainText(sample)
	require.NoError(t, err)
	require.Equal(t, "BiologyPlants do photosynthesis every day.", text)

	// "Plants do " starts after the 7 runes of the heading.
	r := Range{Start: 17, End: 31}
	selected, err := TextBetween(sample, r)
	require.NoError(t, err)
	require.Equal(t, "photosynthesis", selected)

	out, err := AddMark(sample, models.KindQuestion, "q1", r)
	require.NoError(t, err)

	refs, err := Marks(out)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, MarkRef{Kind: models.KindQuestion, ID: "q1", Text: "photosynthesis"}, refs[0])

	after, err := PlainText(out)
	require.NoError(t, err)
	assert.Equal(t, text, after, "marks never change the text")
}

func TestAddMark_SplitsLeaves(t *testing.T) {
	out, err := AddMark(sample, models.KindImportant, "i1", Range{Start: 12, End: 20})
	require.NoError(t, err)

	refs, err := Marks(out)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "s do pho", refs[0].Text)

	doc, err := Parse(out)
	require.NoError(t, err)
	para := doc.Content[1]
	require.Len(t, para.Content, 5)
	assert.Equal(t, "Plant", para.Content[0].Text)
	assert.Equal(t, "s do ", para.Content[1].Text)
	assert.Equal(t, "pho", para.Content[2].Text)
	assert.Len(t, para.Content[2].Marks, 2, "bold is kept next to the new mark")
	assert.Equal(t, "tosynthesis", para.Content[3].Text)
}

func TestAddMark_Errors(t *testing.T) {
	_, err := AddMark(sample, models.KindQuestion, "q1", Range{Start: 5, End: 5})
	assert.ErrorIs(t, err, ErrEmptyRange)
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = AddMark(sample, models.KindQuestion, "q1", Range{Start: 900, End: 1000})
	assert.ErrorIs(t, err, ErrEmptyRange)

	_, err = AddMark("", models.KindVocabulary, "v1", Range{Start: 0, End: 3})
	assert.ErrorIs(t, err, ErrEmptyRange)

	_, err = AddMark("<p>html</p>", models.KindVocabulary, "v1", Range{Start: 0, End: 3})
	assert.ErrorIs(t, err, ErrMalformed)

	once, err := AddMark(sample, models.KindQuestion, "q1", Range{Start: 0, End: 3})
	require.NoError(t, err)
	_, err = AddMark(once, models.KindQuestion, "q1", Range{Start: 10, End: 12})
	assert.ErrorIs(t, err, ErrMarkExists)

	_, err = AddMark(once, models.KindImportant, "q1", Range{Start: 10, End: 12})
	assert.NoError(t, err, "ids are scoped per kind")
}

func TestAddThenRemove_RestoresContent(t *testing.T) {
	ranges := []Range{{0, 7}, {7, 17}, {12, 20}, {0, 42}, {30, 42}, {-4, 3}}
	for _, kind := range models.Kinds {
		for _, r := range ranges {
			marked, err := AddMark(sample, kind, "x-1", r)
			require.NoError(t, err)

			cleaned, n, err := RemoveMark(marked, kind, "x-1")
			require.NoError(t, err)
			assert.Positive(t, n)
			assert.Equal(t, canonical(t, sample), cleaned, "kind %s range %v", kind, r)
		}
	}
}

func TestRemoveMark_QuestionScenario(t *testing.T) {
	marked, err := AddMark(sample, models.KindQuestion, "q1", Range{Start: 17, End: 31})
	require.NoError(t, err)

	out, n, err := RemoveMark(marked, models.KindQuestion, "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, countMarks(t, out, models.KindQuestion, "q1"))
}

func TestRemoveMark_NoMatchLeavesContent(t *testing.T) {
	out, n, err := RemoveMark(sample, models.KindQuestion, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, sample, out)

	out, n, err = RemoveMark("", models.KindQuestion, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "", out)
}

func TestRemoveMark_MatchesNumericIDs(t *testing.T) {
	content := `{"type":"doc","content":[{"type":"paragraph","content":[` +
		`{"type":"text","marks":[{"type":"questionMark","attrs":{"id":123,"isSolved":false}}],"text":"cell"},` +
		`{"type":"text","text":" wall"}]}]}`

	out, n, err := RemoveMark(content, models.KindQuestion, "123")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"cell wall"}]}]}`, out)
}

func TestRemoveMark_KeepsOtherAnnotations(t *testing.T) {
	a, err := AddMark(sample, models.KindQuestion, "q1", Range{Start: 10, End: 25})
	require.NoError(t, err)
	b, err := AddMark(a, models.KindQuestion, "q2", Range{Start: 20, End: 35})
	require.NoError(t, err)

	out, _, err := RemoveMark(b, models.KindQuestion, "q1")
	require.NoError(t, err)
	assert.Zero(t, countMarks(t, out, models.KindQuestion, "q1"))
	assert.Equal(t, 1, countMarks(t, out, models.KindQuestion, "q2"))

	refs, err := Marks(out)
	require.NoError(t, err)
	assert.Equal(t, "tosynthesis eve", refs[0].Text)
}

func TestMarkSolved(t *testing.T) {
	marked, err := AddMark(sample, models.KindQuestion, "q1", Range{Start: 12, End: 20})
	require.NoError(t, err)

	once, n, err := MarkSolved(marked, "q1")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the mark spans a plain and a bold leaf")

	twice, n, err := MarkSolved(once, "q1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, once, twice)

	refs, err := Marks(once)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.True(t, refs[0].Solved)
	assert.Equal(t, "s do pho", refs[0].Text)

	before, _ := PlainText(marked)
	after, _ := PlainText(once)
	assert.Equal(t, before, after)

	untouched, n, err := MarkSolved(sample, "q1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, sample, untouched)
}

func TestMarkSolved_OnlyQuestions(t *testing.T) {
	marked, err := AddMark(sample, models.KindImportant, "shared", Range{Start: 0, End: 7})
	require.NoError(t, err)

	out, n, err := MarkSolved(marked, "shared")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, marked, out)
}

func TestHasMark(t *testing.T) {
	marked, err := AddMark(sample, models.KindVocabulary, "v1", Range{Start: 0, End: 7})
	require.NoError(t, err)

	ok, err := HasMark(marked, models.KindVocabulary, "v1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = HasMark(marked, models.KindQuestion, "v1")
	require.NoError(t, err)
	assert.False(t, ok)
}
