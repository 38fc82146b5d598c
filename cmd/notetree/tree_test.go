package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
	"github.com/Velsaravanan-kafka/Second-brain/internal/storage"
	"github.com/Velsaravanan-kafka/Second-brain/internal/tree"
)

func seededStore(t *testing.T) storage.Storage {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.CreateNote(ctx, &models.Note{ID: "bio", OwnerID: "local", Title: "Biology", Icon: models.StringPtr("🌱")}))
	require.NoError(t, store.CreateNote(ctx, &models.Note{ID: "cells", OwnerID: "local", Title: "Cells", ParentID: models.StringPtr("bio")}))
	_, err := store.CreateAnnotation(ctx, "local", models.Question{ID: "q1", NodeID: "bio", Question: "What is ATP?", Answer: models.StringPtr("Energy currency")})
	require.NoError(t, err)
	_, err = store.CreateAnnotation(ctx, "local", models.Important{ID: "i1", NodeID: "cells", Text: "Cells divide"})
	require.NoError(t, err)
	return store
}

func TestPrintTree(t *testing.T) {
	store := seededStore(t)
	notes, err := store.ListNotes(context.Background(), "local")
	require.NoError(t, err)

	var buf bytes.Buffer
	printTree(&buf, tree.BuildTree(notes).Roots(), 0)
	assert.Equal(t, "🌱 Biology (bio)\n  Cells (cells)\n", buf.String())
}

func TestExportTree(t *testing.T) {
	ownerFlag = "local"
	t.Cleanup(func() { ownerFlag = "" })

	ctx := context.Background()
	store := seededStore(t)
	notes, err := store.ListNotes(ctx, "local")
	require.NoError(t, err)

	root, err := exportTree(ctx, store, tree.BuildTree(notes).Roots()[0])
	require.NoError(t, err)

	out, err := yaml.Marshal(root)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, "Biology", back["title"])
	assert.Equal(t, "🌱", back["icon"])
	questions := back["questions"].([]any)
	require.Len(t, questions, 1)
	assert.Equal(t, "Energy currency", questions[0].(map[string]any)["detail"])

	children := back["children"].([]any)
	require.Len(t, children, 1)
	child := children[0].(map[string]any)
	assert.Equal(t, "cells", child["id"])
	assert.Equal(t, []any{"Cells divide"}, child["important"])
}
