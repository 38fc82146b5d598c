package tree

import (
	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
)

// clone copies the index so entries can be replaced without touching f.
// Entries themselves are shared and must never be modified in place.
func (f Forest) clone() Forest {
	nodes := make(map[string]*entry, len(f.nodes)+1)
	for k, v := range f.nodes {
		nodes[k] = v
	}
	return Forest{nodes: nodes, roots: append([]string(nil), f.roots...)}
}

func (f Forest) replace(id string, fn func(e *entry)) {
	old := f.nodes[id]
	e := &entry{
		note:     old.note,
		parent:   old.parent,
		children: append([]string(nil), old.children...),
	}
	fn(e)
	f.nodes[id] = e
}

// Insert appends n to the children of parentID, or to the roots when
// parentID is RootParent. Unknown parents and ids already in the forest
// leave the forest unchanged.
func (f Forest) Insert(parentID string, n models.Note) Forest {
	if f.Contains(n.ID) || n.ID == "" {
		return f
	}
	if parentID != RootParent && !f.Contains(parentID) {
		return f
	}

	out := f.clone()
	if parentID == RootParent {
		n.ParentID = nil
		out.nodes[n.ID] = &entry{note: n}
		out.roots = append(out.roots, n.ID)
		return out
	}

	n.ParentID = models.StringPtr(parentID)
	out.nodes[n.ID] = &entry{note: n, parent: parentID}
	out.replace(parentID, func(e *entry) {
		e.children = append(e.children, n.ID)
	})
	return out
}

// UpdateTitle replaces the title of id.
func (f Forest) UpdateTitle(id, title string) Forest {
	return f.update(id, func(n *models.Note) { n.Title = title })
}

// UpdateContent replaces the serialized content of id.
func (f Forest) UpdateContent(id, content string) Forest {
	return f.update(id, func(n *models.Note) { n.Content = content })
}

// UpdateNote replaces the stored note of id, keeping its position.
func (f Forest) UpdateNote(n models.Note) Forest {
	return f.update(n.ID, func(cur *models.Note) {
		parent := cur.ParentID
		*cur = n
		cur.ParentID = parent
	})
}

func (f Forest) update(id string, fn func(n *models.Note)) Forest {
	if !f.Contains(id) {
		return f
	}
	out := f.clone()
	out.replace(id, func(e *entry) { fn(&e.note) })
	return out
}

// Delete removes id and all of its descendants.
func (f Forest) Delete(id string) Forest {
	e, ok := f.nodes[id]
	if !ok {
		return f
	}
	out := f.clone()
	for _, d := range f.Descendants(id) {
		delete(out.nodes, d)
	}
	delete(out.nodes, id)

	if e.parent == "" {
		out.roots = without(out.roots, id)
	} else {
		out.replace(e.parent, func(p *entry) { p.children = without(p.children, id) })
	}
	return out
}

// Move reparents id under newParentID, or makes it a root when newParentID
// is RootParent. Moving a node under itself or one of its descendants, or
// referencing an unknown id, leaves the forest unchanged.
func (f Forest) Move(id, newParentID string) Forest {
	e, ok := f.nodes[id]
	if !ok || id == newParentID {
		return f
	}
	if newParentID != RootParent {
		if !f.Contains(newParentID) {
			return f
		}
		for _, d := range f.Descendants(id) {
			if d == newParentID {
				return f
			}
		}
	}
	if (newParentID == RootParent && e.parent == "") || newParentID == e.parent {
		return f
	}

	out := f.clone()
	if e.parent == "" {
		out.roots = without(out.roots, id)
	} else {
		out.replace(e.parent, func(p *entry) { p.children = without(p.children, id) })
	}

	if newParentID == RootParent {
		out.roots = append(out.roots, id)
		out.replace(id, func(n *entry) {
			n.parent = ""
			n.note.ParentID = nil
		})
		return out
	}

	out.replace(newParentID, func(p *entry) { p.children = append(p.children, id) })
	out.replace(id, func(n *entry) {
		n.parent = newParentID
		n.note.ParentID = models.StringPtr(newParentID)
	})
	return out
}
