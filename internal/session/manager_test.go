package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Velsaravanan-kafka/Second-brain/internal/debounce"
	"github.com/Velsaravanan-kafka/Second-brain/internal/models"
	"github.com/Velsaravanan-kafka/Second-brain/internal/observability"
	"github.com/Velsaravanan-kafka/Second-brain/internal/storage"
)

func TestManager(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.CreateNote(ctx, &models.Note{ID: "A", OwnerID: "alice"}))
	require.NoError(t, store.CreateNote(ctx, &models.Note{ID: "B", OwnerID: "bob"}))

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	clock := debounce.NewManualClock()
	m := NewManager(store, WithClock(clock), WithMetrics(metrics), WithDebounce(time.Second))

	alice, err := m.Session(ctx, "alice")
	require.NoError(t, err)
	again, err := m.Session(ctx, "alice")
	require.NoError(t, err)
	assert.Same(t, alice, again)
	assert.Equal(t, []string{"A"}, alice.Forest().RootIDs())

	bob, err := m.Session(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, bob.Forest().RootIDs())
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ActiveSessions))

	_, err = m.Session(ctx, "")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	require.NoError(t, alice.EditTitle("A", "Renamed"))
	m.Drop("alice")
	n, err := store.GetNote(ctx, "alice", "A")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", n.Title, "dropping flushes pending saves")
	assert.Equal(t, 1, m.Len())

	fresh, err := m.Session(ctx, "alice")
	require.NoError(t, err)
	assert.NotSame(t, alice, fresh)

	require.NoError(t, m.Close())
	assert.Zero(t, m.Len())
	assert.Zero(t, testutil.ToFloat64(metrics.ActiveSessions))
}
