// Package tree holds the in-memory forest of notes.
//
// A Forest is an arena: a map from note id to an entry holding the note and
// the ordered ids of its children. Every mutation returns a new Forest and
// leaves the receiver untouched, so a session can keep the previous snapshot
// around to roll back a failed save.
package tree

import (
	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

// RootParent is the parent id used to insert a new root.
const RootParent = "root"

type entry struct {
	note     models.Note
	parent   string
	children []string
}

// Forest is an immutable snapshot of a user's note tree.
type Forest struct {
	nodes map[string]*entry
	roots []string
}

// Node is a materialized tree node used for rendering and JSON output.
type Node struct {
	models.Note
	Children []*Node `json:"children"`
}

// BuildTree assembles a forest from flat persisted rows.
//
// Rows keep their input order among siblings. A row without a parent is a
// root, and so is a row whose parent is not part of the input. Rows caught in
// a parent cycle are promoted to roots in input order, so every distinct id in
// the input appears exactly once in the result.
func BuildTree(flat []models.Note) Forest {
	f := Forest{nodes: make(map[string]*entry, len(flat))}
	order := make([]string, 0, len(flat))

	for _, n := range flat {
		if _, dup := f.nodes[n.ID]; dup {
			continue
		}
		f.nodes[n.ID] = &entry{note: n}
		order = append(order, n.ID)
	}

	for _, id := range order {
		e := f.nodes[id]
		if e.note.HasParent() {
			pid := *e.note.ParentID
			if p, ok := f.nodes[pid]; ok && pid != id {
				p.children = append(p.children, id)
				e.parent = pid
				continue
			}
		}
		f.roots = append(f.roots, id)
	}

	reached := make(map[string]bool, len(order))
	for _, id := range f.roots {
		f.mark(id, reached)
	}
	for _, id := range order {
		if reached[id] {
			continue
		}
		e := f.nodes[id]
		p := f.nodes[e.parent]
		p.children = without(p.children, id)
		e.parent = ""
		f.roots = append(f.roots, id)
		f.mark(id, reached)
	}

	return f
}

func (f Forest) mark(id string, seen map[string]bool) {
	if seen[id] {
		return
	}
	seen[id] = true
	for _, c := range f.nodes[id].children {
		f.mark(c, seen)
	}
}

// Len returns the number of notes in the forest.
func (f Forest) Len() int {
	return len(f.nodes)
}

// Contains reports whether id is part of the forest.
func (f Forest) Contains(id string) bool {
	_, ok := f.nodes[id]
	return ok
}

// Get returns the note stored under id.
func (f Forest) Get(id string) (models.Note, bool) {
	e, ok := f.nodes[id]
	if !ok {
		return models.Note{}, false
	}
	return e.note, true
}

// Parent returns the id of the node's parent in the forest. Roots have none.
func (f Forest) Parent(id string) (string, bool) {
	e, ok := f.nodes[id]
	if !ok || e.parent == "" {
		return "", false
	}
	return e.parent, true
}

// RootIDs returns the ids of the roots in order.
func (f Forest) RootIDs() []string {
	return append([]string(nil), f.roots...)
}

// ChildIDs returns the ids of the node's children in order.
func (f Forest) ChildIDs(id string) []string {
	e, ok := f.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), e.children...)
}

// Descendants returns every transitive descendant of id in depth-first order,
// not including id itself.
func (f Forest) Descendants(id string) []string {
	e, ok := f.nodes[id]
	if !ok {
		return nil
	}
	var out []string
	for _, c := range e.children {
		out = append(out, c)
		out = append(out, f.Descendants(c)...)
	}
	return out
}

// Notes returns every note in depth-first order, roots first.
func (f Forest) Notes() []models.Note {
	out := make([]models.Note, 0, len(f.nodes))
	for _, r := range f.roots {
		out = append(out, f.nodes[r].note)
		for _, d := range f.Descendants(r) {
			out = append(out, f.nodes[d].note)
		}
	}
	return out
}

// Roots materializes the nested tree.
func (f Forest) Roots() []*Node {
	out := make([]*Node, 0, len(f.roots))
	for _, id := range f.roots {
		out = append(out, f.materialize(id))
	}
	return out
}

// Subtree materializes the tree rooted at id.
func (f Forest) Subtree(id string) (*Node, bool) {
	if !f.Contains(id) {
		return nil, false
	}
	return f.materialize(id), true
}

func (f Forest) materialize(id string) *Node {
	e := f.nodes[id]
	n := &Node{Note: e.note, Children: make([]*Node, 0, len(e.children))}
	for _, c := range e.children {
		n.Children = append(n.Children, f.materialize(c))
	}
	return n
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
