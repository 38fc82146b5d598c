package document

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Node and mark names of the editor's default schema.
const (
	typeParagraph      = "paragraph"
	typeHeading        = "heading"
	typeBulletList     = "bulletList"
	typeOrderedList    = "orderedList"
	typeListItem       = "listItem"
	typeBlockquote     = "blockquote"
	typeCodeBlock      = "codeBlock"
	typeHardBreak      = "hardBreak"
	typeHorizontalRule = "horizontalRule"

	markBold      = "bold"
	markItalic    = "italic"
	markStrike    = "strike"
	markUnderline = "underline"
	markCode      = "code"
	markLink      = "link"

	questionClass  = "question-highlight"
	attrDataID     = "data-id"
	attrDataSolved = "data-is-solved"
	attrImportant  = "data-important-id"
	attrVocabulary = "data-vocab-id"
)

var blockTypes = map[atom.Atom]string{
	atom.P:          typeParagraph,
	atom.Ul:         typeBulletList,
	atom.Ol:         typeOrderedList,
	atom.Li:         typeListItem,
	atom.Blockquote: typeBlockquote,
	atom.Pre:        typeCodeBlock,
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

var simpleMarks = map[atom.Atom]string{
	atom.Strong: markBold,
	atom.B:      markBold,
	atom.Em:     markItalic,
	atom.I:      markItalic,
	atom.S:      markStrike,
	atom.Strike: markStrike,
	atom.Del:    markStrike,
	atom.U:      markUnderline,
	atom.Code:   markCode,
}

var markTags = map[string]string{
	markBold:      "strong",
	markItalic:    "em",
	markStrike:    "s",
	markUnderline: "u",
	markCode:      "code",
}

// isHTML reports whether stored content is editor HTML rather than JSON.
func isHTML(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "<")
}

// parseHTML reads the HTML the editor saves into the document model.
// Annotation spans become annotation marks; unknown elements keep their
// text and drop the wrapper.
func parseHTML(content string) (*Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	doc := &Node{Type: TypeDoc, asHTML: true}
	for _, n := range nodes {
		doc.Content = append(doc.Content, fromHTML(n, nil, false)...)
	}
	return doc, nil
}

func fromHTML(n *html.Node, marks []Mark, inline bool) []*Node {
	switch n.Type {
	case html.TextNode:
		if !inline && strings.TrimSpace(n.Data) == "" {
			return nil
		}
		return []*Node{{Type: TypeText, Text: n.Data, Marks: marks}}
	case html.ElementNode:
	default:
		return nil
	}

	switch n.DataAtom {
	case atom.Br:
		return []*Node{{Type: typeHardBreak}}
	case atom.Hr:
		return []*Node{{Type: typeHorizontalRule}}
	}
	if level, ok := headingLevels[n.DataAtom]; ok {
		return []*Node{{
			Type:    typeHeading,
			Attrs:   map[string]any{"level": level},
			Content: childrenFromHTML(n, nil, true),
		}}
	}
	if typ, ok := blockTypes[n.DataAtom]; ok {
		block := &Node{Type: typ}
		switch typ {
		case typeParagraph, typeCodeBlock:
			block.Content = childrenFromHTML(n, nil, true)
		default:
			block.Content = childrenFromHTML(n, nil, false)
		}
		return []*Node{block}
	}
	if m, ok := markFromHTML(n); ok {
		marks = append(append([]Mark(nil), marks...), m)
	}
	return childrenFromHTML(n, marks, inline)
}

func childrenFromHTML(n *html.Node, marks []Mark, inline bool) []*Node {
	var out []*Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, fromHTML(c, marks, inline)...)
	}
	return out
}

func markFromHTML(n *html.Node) (Mark, bool) {
	if n.DataAtom == atom.Code && n.Parent != nil && n.Parent.DataAtom == atom.Pre {
		return Mark{}, false
	}
	if typ, ok := simpleMarks[n.DataAtom]; ok {
		return Mark{Type: typ}, true
	}
	switch n.DataAtom {
	case atom.A:
		return Mark{Type: markLink, Attrs: map[string]any{"href": attr(n, "href")}}, true
	case atom.Span:
		switch {
		case hasClass(n, questionClass):
			return Mark{Type: QuestionMark, Attrs: map[string]any{
				attrID:       attr(n, attrDataID),
				attrIsSolved: attr(n, attrDataSolved) == "true",
			}}, true
		case hasAttr(n, attrImportant):
			return Mark{Type: ImportantMark, Attrs: map[string]any{attrID: attr(n, attrImportant)}}, true
		case hasAttr(n, attrVocabulary):
			return Mark{Type: VocabularyMark, Attrs: map[string]any{attrID: attr(n, attrVocabulary)}}, true
		}
	}
	return Mark{}, false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// renderHTML writes a document back in the editor's HTML form.
func renderHTML(doc *Node) string {
	var b strings.Builder
	for _, c := range doc.Content {
		renderNode(&b, c)
	}
	return b.String()
}

func renderNode(b *strings.Builder, n *Node) {
	var open, close string
	switch n.Type {
	case TypeText:
		renderText(b, n)
		return
	case typeHardBreak:
		b.WriteString("<br>")
		return
	case typeHorizontalRule:
		b.WriteString("<hr>")
		return
	case typeParagraph:
		open, close = "<p>", "</p>"
	case typeHeading:
		level := idString(n.Attrs["level"])
		if level == "" {
			level = "1"
		}
		open, close = "<h"+level+">", "</h"+level+">"
	case typeBulletList:
		open, close = "<ul>", "</ul>"
	case typeOrderedList:
		open, close = "<ol>", "</ol>"
	case typeListItem:
		open, close = "<li>", "</li>"
	case typeBlockquote:
		open, close = "<blockquote>", "</blockquote>"
	case typeCodeBlock:
		open, close = "<pre><code>", "</code></pre>"
	}
	b.WriteString(open)
	for _, c := range n.Content {
		renderNode(b, c)
	}
	b.WriteString(close)
}

func renderText(b *strings.Builder, n *Node) {
	closers := make([]string, 0, len(n.Marks))
	for _, m := range n.Marks {
		open, close := markHTML(m)
		if open == "" {
			continue
		}
		b.WriteString(open)
		closers = append(closers, close)
	}
	b.WriteString(html.EscapeString(n.Text))
	for i := len(closers) - 1; i >= 0; i-- {
		b.WriteString(closers[i])
	}
}

func markHTML(m Mark) (string, string) {
	if tag, ok := markTags[m.Type]; ok {
		return "<" + tag + ">", "</" + tag + ">"
	}
	esc := func(v any) string { return html.EscapeString(idString(v)) }
	switch m.Type {
	case markLink:
		return `<a href="` + esc(m.Attrs["href"]) + `">`, "</a>"
	case QuestionMark:
		solved := "false"
		if m.Solved() {
			solved = "true"
		}
		return `<span class="` + questionClass + `" ` + attrDataID + `="` + esc(m.Attrs[attrID]) +
			`" ` + attrDataSolved + `="` + solved + `">`, "</span>"
	case ImportantMark:
		return `<span ` + attrImportant + `="` + esc(m.Attrs[attrID]) + `">`, "</span>"
	case VocabularyMark:
		return `<span ` + attrVocabulary + `="` + esc(m.Attrs[attrID]) + `">`, "</span>"
	}
	return "", ""
}
