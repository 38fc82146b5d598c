package models

import (
	"time"
)

// DefaultNoteTitle is used when a note is created without a title.
const DefaultNoteTitle = "Untitled Note"

// Note is a single node of a user's note tree as it is persisted.
// Content is the serialized rich-text document and is opaque to the tree layer.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ParentID  *string   `json:"parentId"`
	Icon      *string   `json:"icon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteUpdate carries the optional fields of a note patch. Nil fields are left untouched.
type NoteUpdate struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
	Icon    *string `json:"icon,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u NoteUpdate) Empty() bool {
	return u.Title == nil && u.Content == nil && u.Icon == nil
}

// Apply copies the set fields of u onto n.
func (u NoteUpdate) Apply(n *Note) {
	if u.Title != nil {
		n.Title = *u.Title
	}
	if u.Content != nil {
		n.Content = *u.Content
	}
	if u.Icon != nil {
		n.Icon = u.Icon
	}
}

// HasParent reports whether the note declares a parent.
func (n Note) HasParent() bool {
	return n.ParentID != nil && *n.ParentID != ""
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
