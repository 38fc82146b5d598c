// Package document edits the inline annotation marks of a note's rich-text
// content.
//
// Content is a TipTap/ProseMirror JSON document or the HTML the editor
// saves. Text leaves carry marks; annotation marks are tagged with an "id"
// attribute that matches the id of the annotation row. Every edit returns
// the whole document serialized in the format it was read from.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

const (
	TypeDoc  = "doc"
	TypeText = "text"

	QuestionMark   = "questionMark"
	ImportantMark  = "importantMark"
	VocabularyMark = "vocabularyMark"

	attrID       = "id"
	attrIsSolved = "isSolved"
)

var (
	ErrMalformed  = fmt.Errorf("malformed document: %w", models.ErrValidation)
	ErrEmptyRange = fmt.Errorf("empty selection range: %w", models.ErrValidation)
	ErrMarkExists = fmt.Errorf("mark already present: %w", models.ErrValidation)
)

// Node is a document node. Text nodes have Type "text" and no Content.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`

	// html is set on a root read from HTML content.
	asHTML bool
}

// Mark is an inline mark on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// ID returns the mark's id attribute in canonical string form.
func (m Mark) ID() string {
	return idString(m.Attrs[attrID])
}

// Solved reports whether a question mark is flagged as answered.
func (m Mark) Solved() bool {
	switch v := m.Attrs[attrIsSolved].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// Range is a half-open [Start, End) span of rune offsets into the document's text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// MarkType returns the editor mark name used for an annotation kind.
func MarkType(kind models.Kind) (string, error) {
	switch kind {
	case models.KindQuestion:
		return QuestionMark, nil
	case models.KindImportant:
		return ImportantMark, nil
	case models.KindVocabulary:
		return VocabularyMark, nil
	}
	return "", fmt.Errorf("no mark for annotation kind %q: %w", kind, models.ErrValidation)
}

// KindOf maps a mark name back to its annotation kind.
func KindOf(markType string) (models.Kind, bool) {
	switch markType {
	case QuestionMark:
		return models.KindQuestion, true
	case ImportantMark:
		return models.KindImportant, true
	case VocabularyMark:
		return models.KindVocabulary, true
	}
	return "", false
}

// Parse decodes serialized content. Blank content is an empty document;
// content starting with "<" is read as HTML.
func Parse(content string) (*Node, error) {
	if strings.TrimSpace(content) == "" {
		return &Node{Type: TypeDoc}, nil
	}
	if isHTML(content) {
		return parseHTML(content)
	}
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var doc Node
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Type == "" {
		return nil, fmt.Errorf("%w: missing root type", ErrMalformed)
	}
	return &doc, nil
}

// Serialize encodes a document back to its persisted form.
func Serialize(doc *Node) (string, error) {
	if doc.asHTML {
		return renderHTML(doc), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("error encoding document: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// idString turns an id attribute into its canonical string. Ids may be
// written as JSON strings or numbers depending on the client.
func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	}
	return fmt.Sprint(v)
}

// walk visits every node depth-first, parents before children.
func walk(n *Node, fn func(n *Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Content {
		walk(c, fn)
	}
}

func isText(n *Node) bool {
	return n.Type == TypeText
}

// normalize merges adjacent text siblings that carry identical marks.
func normalize(n *Node) {
	if len(n.Content) == 0 {
		return
	}
	merged := make([]*Node, 0, len(n.Content))
	for _, c := range n.Content {
		if isText(c) && c.Text == "" {
			continue
		}
		if k := len(merged); k > 0 && isText(c) && isText(merged[k-1]) && sameMarks(merged[k-1].Marks, c.Marks) {
			prev := *merged[k-1]
			prev.Text += c.Text
			merged[k-1] = &prev
			continue
		}
		normalize(c)
		merged = append(merged, c)
	}
	n.Content = merged
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

func filterMarks(marks []Mark, drop func(m Mark) bool) ([]Mark, int) {
	var out []Mark
	removed := 0
	for _, m := range marks {
		if drop(m) {
			removed++
			continue
		}
		out = append(out, m)
	}
	return out, removed
}

func matches(m Mark, markType, id string) bool {
	return m.Type == markType && m.ID() == id
}
