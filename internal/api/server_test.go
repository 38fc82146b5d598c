package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Velsaravanan-kafka/Second-brain/internal/auth"
	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
	"github.com/Velsaravanan-kafka/Second-brain/internal/observability"
	"github.com/Velsaravanan-kafka/Second-brain/internal/session"
	"github.com/Velsaravanan-kafka/Second-brain/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const owner1 = "u1"

func doc(text string) string {
	return `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"` + text + `"}]}]}`
}

type harness struct {
	t       *testing.T
	handler http.Handler
	store   *storage.MemoryStorage
	token   string
}

func newHarness(t *testing.T, provider auth.Provider) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := storage.NewMemoryStorage()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	mgr := session.NewManager(store, session.WithLogger(logger), session.WithMetrics(metrics))
	t.Cleanup(func() { mgr.Close() })

	srv := NewServer(Deps{
		Store:    store,
		Sessions: mgr,
		Auth:     provider,
		Metrics:  metrics,
		Gatherer: reg,
		Logger:   logger,
	})
	return &harness{t: t, handler: srv.Handler(), store: store}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (h *harness) seed(id, title, content string, parent *string) {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/nodes", gin.H{"id": id, "title": title, "parentId": parent})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	if content != "" {
		w = h.do(http.MethodPatch, "/api/nodes", gin.H{"id": id, "content": content})
		require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	}
}

func TestHealth_NoAuth(t *testing.T) {
	h := newHarness(t, auth.NewJWTProvider("secret", ""))
	w := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_JWT(t *testing.T) {
	provider := auth.NewJWTProvider("secret", "second-brain")
	h := newHarness(t, provider)

	w := h.do(http.MethodGet, "/api/nodes", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	h.token = "not-a-token"
	w = h.do(http.MethodGet, "/api/nodes", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := provider.Issue(owner1, time.Hour)
	require.NoError(t, err)
	h.token = token
	h.seed("A", "Alpha", "", nil)

	w = h.do(http.MethodGet, "/api/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[[]models.Note](t, w)
	require.Len(t, notes, 1)
	assert.Equal(t, owner1, notes[0].OwnerID)

	other, err := provider.Issue("u2", time.Hour)
	require.NoError(t, err)
	h.token = other
	w = h.do(http.MethodGet, "/api/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]models.Note](t, w))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			c.Request.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(c), tt.header)
	}
}

func TestNodes_CRUD(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.seed("A", "Alpha", "", nil)
	h.seed("B", "Beta", "", models.StringPtr("A"))
	h.seed("C", "Gamma", "", nil)

	w := h.do(http.MethodGet, "/api/tree", nil)
	require.Equal(t, http.StatusOK, w.Code)
	roots := decode[[]map[string]any](t, w)
	require.Len(t, roots, 2)
	assert.Equal(t, "A", roots[0]["id"])
	assert.Len(t, roots[0]["children"], 1)

	w = h.do(http.MethodGet, "/api/tree?id=A", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string]any](t, w)["children"], 1)

	w = h.do(http.MethodGet, "/api/tree?id=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodPatch, "/api/nodes", gin.H{"id": "B", "title": "Beta 2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Beta 2", decode[models.Note](t, w).Title)

	w = h.do(http.MethodPatch, "/api/nodes", gin.H{"id": "B"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPatch, "/api/nodes", gin.H{"id": "missing", "title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodPost, "/api/nodes/move", gin.H{"id": "A", "parentId": "B"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/nodes/move", gin.H{"id": "B", "parentId": "C"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "C", *decode[models.Note](t, w).ParentID)

	w = h.do(http.MethodDelete, "/api/nodes", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodDelete, "/api/nodes?id=C", nil)
	require.Equal(t, http.StatusOK, w.Code)

	notes, err := h.store.ListNotes(context.Background(), owner1)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "A", notes[0].ID)
}

func TestAnnotations_RawRoutes(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.seed("N", "Biology", "", nil)

	w := h.do(http.MethodGet, "/api/questions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/questions", gin.H{"id": "q1", "nodeId": "N", "question": "Why?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.False(t, decode[models.Question](t, w).IsSolved)

	w = h.do(http.MethodPatch, "/api/questions", gin.H{"id": "q1", "answer": "Because."})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.Question](t, w).IsSolved)

	w = h.do(http.MethodPatch, "/api/questions", gin.H{"id": "q1", "question": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/important", gin.H{"nodeId": "N"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/vocabulary", gin.H{"id": "v1", "nodeId": "missing", "text": "chlorophyll"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodPost, "/api/vocabulary", gin.H{"id": "v1", "nodeId": "N", "text": "chlorophyll"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodGet, "/api/vocabulary?nodeId=N", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Vocabulary](t, w), 1)

	w = h.do(http.MethodDelete, "/api/vocabulary?id=v1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/vocabulary?nodeId=N", nil)
	assert.Empty(t, decode[[]models.Vocabulary](t, w))
}

func TestSession_QuestionLifecycle(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.seed("N", "Biology", doc("Plants do photosynthesis every day."), nil)

	w := h.do(http.MethodPost, "/api/session/annotations", gin.H{"kind": "question", "id": "q1"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "no active note")

	w = h.do(http.MethodPost, "/api/session/select", gin.H{"noteId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodPost, "/api/session/select", gin.H{"noteId": "N"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode[map[string]any](t, w)["state"])

	w = h.do(http.MethodPost, "/api/session/annotations", gin.H{
		"kind":  "question",
		"id":    "q1",
		"range": gin.H{"start": 10, "end": 24},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "photosynthesis", decode[models.Question](t, w).Question)

	w = h.do(http.MethodGet, "/api/questions?nodeId=N", nil)
	require.Len(t, decode[[]models.Question](t, w), 1)

	note, err := h.store.GetNote(context.Background(), owner1, "N")
	require.NoError(t, err)
	assert.Contains(t, note.Content, "questionMark")

	w = h.do(http.MethodPatch, "/api/session/questions/q1", gin.H{"answer": "Light to sugar."})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.Question](t, w).IsSolved)

	w = h.do(http.MethodDelete, "/api/session/annotations/question/q1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/questions?nodeId=N", nil)
	assert.Empty(t, decode[[]models.Question](t, w))
	note, err = h.store.GetNote(context.Background(), owner1, "N")
	require.NoError(t, err)
	assert.NotContains(t, note.Content, "questionMark")

	w = h.do(http.MethodDelete, "/api/session/annotations/bogus/q1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSession_EditsAreSavedOnFlush(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.seed("N", "Biology", doc("one"), nil)

	w := h.do(http.MethodPut, "/api/session/content", gin.H{"noteId": "N", "content": doc("two")})
	require.Equal(t, http.StatusAccepted, w.Code)
	w = h.do(http.MethodPut, "/api/session/title", gin.H{"noteId": "N", "title": "Botany"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = h.do(http.MethodPut, "/api/session/content", gin.H{"noteId": "N", "content": "{not json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/session/flush", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, w)["flushed"])

	note, err := h.store.GetNote(context.Background(), owner1, "N")
	require.NoError(t, err)
	assert.Equal(t, "Botany", note.Title)
	assert.Equal(t, doc("two"), note.Content)
}

func TestSession_ClearingContent(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.seed("N", "Biology", doc("one"), nil)

	w := h.do(http.MethodPut, "/api/session/content", gin.H{"noteId": "N", "content": ""})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	w = h.do(http.MethodPut, "/api/session/content", gin.H{"noteId": "N"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "content must be present")

	w = h.do(http.MethodPost, "/api/session/flush", nil)
	require.Equal(t, http.StatusOK, w.Code)
	note, err := h.store.GetNote(context.Background(), owner1, "N")
	require.NoError(t, err)
	assert.Empty(t, note.Content)
}

func TestNodes_CreateIgnoresContent(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})

	w := h.do(http.MethodPost, "/api/nodes", gin.H{"id": "A", "title": "Alpha", "content": doc("smuggled")})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, decode[models.Note](t, w).Content)

	note, err := h.store.GetNote(context.Background(), owner1, "A")
	require.NoError(t, err)
	assert.Empty(t, note.Content)
}

func TestSession_StructuralRoutes(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.seed("A", "Alpha", "", nil)

	w := h.do(http.MethodPost, "/api/session/notes", gin.H{"parentId": "A", "title": "Child"})
	require.Equal(t, http.StatusCreated, w.Code)
	child := decode[models.Note](t, w)
	assert.Equal(t, "A", *child.ParentID)

	w = h.do(http.MethodPost, "/api/session/notes/A/move", gin.H{"parentId": child.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/session/notes/"+child.ID+"/move", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[models.Note](t, w).ParentID)

	w = h.do(http.MethodDelete, "/api/session/notes/"+child.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Len(t, body["tree"], 1)
}

func TestSession_RawMutationReloadsSession(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.seed("N", "Biology", "", nil)

	w := h.do(http.MethodPost, "/api/session/select", gin.H{"noteId": "N"})
	require.Equal(t, http.StatusOK, w.Code)

	h.seed("M", "Chemistry", "", nil)

	w = h.do(http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Len(t, body["tree"], 2)
	assert.Equal(t, "unloaded", body["session"].(map[string]any)["state"])
}

func TestSession_DefineWithoutModel(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.seed("N", "Biology", doc("Chlorophyll is green."), nil)

	w := h.do(http.MethodPost, "/api/session/select", gin.H{"noteId": "N"})
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodPost, "/api/session/annotations", gin.H{
		"kind":  "vocabulary",
		"id":    "v1",
		"range": gin.H{"start": 0, "end": 11},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodPost, "/api/session/vocabulary/v1/define", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = h.do(http.MethodPost, "/api/session/vocabulary/missing/define", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSession_Reconcile(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.seed("N", "Biology", doc("Plants do photosynthesis every day."), nil)

	w := h.do(http.MethodPost, "/api/session/select", gin.H{"noteId": "N"})
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodPost, "/api/session/annotations", gin.H{
		"kind":  "important",
		"id":    "i1",
		"range": gin.H{"start": 0, "end": 6},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Remove the row behind the session's back.
	require.NoError(t, h.store.DeleteAnnotation(context.Background(), owner1, models.KindImportant, "i1"))

	w = h.do(http.MethodPost, "/api/session/reconcile", gin.H{"noteId": "N"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string][]map[string]any](t, w)
	require.Len(t, body["pruned"], 1)
	assert.Equal(t, "i1", body["pruned"][0]["id"])

	note, err := h.store.GetNote(context.Background(), owner1, "N")
	require.NoError(t, err)
	assert.NotContains(t, note.Content, "importantMark")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, auth.StaticProvider{OwnerID: owner1})
	h.do(http.MethodGet, "/api/nodes", nil)

	w := h.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `secondbrain_http_requests_total{method="GET",route="/api/nodes",status="200"} 1`), body)
}
