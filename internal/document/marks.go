package document

import (
	"strings"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

// MarkRef describes one annotation mark found in a document. Text is the
// concatenation of every leaf carrying the mark.
type MarkRef struct {
	Kind   models.Kind `json:"kind"`
	ID     string      `json:"id"`
	Text   string      `json:"text"`
	Solved bool        `json:"isSolved,omitempty"`
}

// AddMark tags the text inside r with a mark of the given kind and id.
// The range is clamped to the document; an empty range after clamping
// fails with ErrEmptyRange. An id may only be marked once per kind.
func AddMark(content string, kind models.Kind, id string, r Range) (string, error) {
	markType, err := MarkType(kind)
	if err != nil {
		return "", err
	}
	doc, err := Parse(content)
	if err != nil {
		return "", err
	}
	if hasMark(doc, markType, id) {
		return "", ErrMarkExists
	}

	total := textLength(doc)
	start, end := clamp(r.Start, 0, total), clamp(r.End, 0, total)
	if start >= end {
		return "", ErrEmptyRange
	}

	mark := Mark{Type: markType, Attrs: map[string]any{attrID: id}}
	if kind == models.KindQuestion {
		mark.Attrs[attrIsSolved] = false
	}

	pos := 0
	applyRange(doc, start, end, &pos, mark)
	normalize(doc)
	return Serialize(doc)
}

func applyRange(n *Node, start, end int, pos *int, mark Mark) {
	if len(n.Content) == 0 {
		return
	}
	out := make([]*Node, 0, len(n.Content))
	for _, c := range n.Content {
		if !isText(c) {
			applyRange(c, start, end, pos, mark)
			out = append(out, c)
			continue
		}

		runes := []rune(c.Text)
		lo, hi := *pos, *pos+len(runes)
		*pos = hi
		from, to := max(lo, start), min(hi, end)
		if from >= to {
			out = append(out, c)
			continue
		}

		if from > lo {
			out = append(out, textPiece(c, string(runes[:from-lo]), c.Marks))
		}
		marked := append(append([]Mark(nil), c.Marks...), mark)
		out = append(out, textPiece(c, string(runes[from-lo:to-lo]), marked))
		if to < hi {
			out = append(out, textPiece(c, string(runes[to-lo:]), c.Marks))
		}
	}
	n.Content = out
}

func textPiece(src *Node, text string, marks []Mark) *Node {
	return &Node{Type: TypeText, Attrs: src.Attrs, Text: text, Marks: marks}
}

// RemoveMark strips every mark of kind tagged with id across its full span.
// It reports how many text leaves lost a mark; when none matched the content
// is returned unchanged.
func RemoveMark(content string, kind models.Kind, id string) (string, int, error) {
	markType, err := MarkType(kind)
	if err != nil {
		return "", 0, err
	}
	doc, err := Parse(content)
	if err != nil {
		return "", 0, err
	}

	matched := 0
	walk(doc, func(n *Node) {
		if !isText(n) || len(n.Marks) == 0 {
			return
		}
		kept, removed := filterMarks(n.Marks, func(m Mark) bool { return matches(m, markType, id) })
		if removed > 0 {
			n.Marks = kept
			matched++
		}
	})
	if matched == 0 {
		return content, 0, nil
	}

	normalize(doc)
	out, err := Serialize(doc)
	return out, matched, err
}

// MarkSolved flags every question mark tagged with id as solved. Position and
// span are untouched. It reports how many marks changed; marks already solved
// do not count, so a repeated call returns the content unchanged.
func MarkSolved(content, id string) (string, int, error) {
	doc, err := Parse(content)
	if err != nil {
		return "", 0, err
	}

	changed := 0
	walk(doc, func(n *Node) {
		for i, m := range n.Marks {
			if !matches(m, QuestionMark, id) || m.Solved() {
				continue
			}
			attrs := make(map[string]any, len(m.Attrs)+1)
			for k, v := range m.Attrs {
				attrs[k] = v
			}
			attrs[attrIsSolved] = true
			marks := append([]Mark(nil), n.Marks...)
			marks[i] = Mark{Type: m.Type, Attrs: attrs}
			n.Marks = marks
			changed++
		}
	})
	if changed == 0 {
		return content, 0, nil
	}

	normalize(doc)
	out, err := Serialize(doc)
	return out, changed, err
}

// HasMark reports whether the content carries a mark of kind tagged with id.
func HasMark(content string, kind models.Kind, id string) (bool, error) {
	markType, err := MarkType(kind)
	if err != nil {
		return false, err
	}
	doc, err := Parse(content)
	if err != nil {
		return false, err
	}
	return hasMark(doc, markType, id), nil
}

func hasMark(doc *Node, markType, id string) bool {
	found := false
	walk(doc, func(n *Node) {
		for _, m := range n.Marks {
			if matches(m, markType, id) {
				found = true
			}
		}
	})
	return found
}

// Marks lists the annotation marks of a document in reading order.
func Marks(content string) ([]MarkRef, error) {
	doc, err := Parse(content)
	if err != nil {
		return nil, err
	}

	var refs []MarkRef
	index := map[string]int{}
	walk(doc, func(n *Node) {
		if !isText(n) {
			return
		}
		for _, m := range n.Marks {
			kind, ok := KindOf(m.Type)
			if !ok {
				continue
			}
			key := string(kind) + "/" + m.ID()
			if i, seen := index[key]; seen {
				refs[i].Text += n.Text
				refs[i].Solved = refs[i].Solved || m.Solved()
				continue
			}
			index[key] = len(refs)
			refs = append(refs, MarkRef{Kind: kind, ID: m.ID(), Text: n.Text, Solved: m.Solved()})
		}
	})
	return refs, nil
}

// PlainText returns the document text. Block boundaries add no characters,
// matching the offsets used by Range.
func PlainText(content string) (string, error) {
	doc, err := Parse(content)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	walk(doc, func(n *Node) {
		if isText(n) {
			b.WriteString(n.Text)
		}
	})
	return b.String(), nil
}

// TextBetween returns the text covered by r, clamped to the document.
func TextBetween(content string, r Range) (string, error) {
	text, err := PlainText(content)
	if err != nil {
		return "", err
	}
	runes := []rune(text)
	start, end := clamp(r.Start, 0, len(runes)), clamp(r.End, 0, len(runes))
	if start >= end {
		return "", nil
	}
	return string(runes[start:end]), nil
}

func textLength(doc *Node) int {
	total := 0
	walk(doc, func(n *Node) {
		if isText(n) {
			total += len([]rune(n.Text))
		}
	})
	return total
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
