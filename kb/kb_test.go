package kb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestPutFactUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutFact(ctx, "conv-1", "place", "Rome", "user"))
	require.NoError(t, store.PutFact(ctx, "conv-1", "place", "Lisbon", "extractor"))

	value, err := store.GetFact(ctx, "conv-1", "place")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", value)

	facts, err := store.ListFacts(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestGetFactNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetFact(context.Background(), "conv-1", "place")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFactValueTypesSurvive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutFact(ctx, "conv-1", "nights", 4, "user"))
	require.NoError(t, store.PutFact(ctx, "conv-1", "pace", map[string]any{"level": "relaxed"}, "user"))

	nights, err := store.GetFact(ctx, "conv-1", "nights")
	require.NoError(t, err)
	assert.Equal(t, float64(4), nights)

	pace, err := store.GetFact(ctx, "conv-1", "pace")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"level": "relaxed"}, pace)
}

func TestFactsAreScopedByConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutFact(ctx, "conv-1", "place", "Rome", "user"))
	require.NoError(t, store.PutFact(ctx, "conv-2", "place", "Lisbon", "user"))

	value, err := store.GetFact(ctx, "conv-2", "place")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", value)
}

func TestOffersOrderedByScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddOffer(ctx, "conv-1", "hotels", map[string]any{"name": "Trevi Inn"}, 0.6))
	require.NoError(t, store.AddOffer(ctx, "conv-1", "hotels", map[string]any{"name": "Forum Suites"}, 0.9))
	require.NoError(t, store.AddOffer(ctx, "conv-1", "flights", map[string]any{"name": "cheap seats"}, 0.2))

	offers, err := store.QueryOffers(ctx, "conv-1", 0.5)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, 0.9, offers[0].Score)
	assert.Equal(t, 0.6, offers[1].Score)
}

func TestEventLogKeepsArrivalOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddEvent(ctx, "conv-1", DirectionIn, "REQUEST", "PING", "bridge@local"))
	require.NoError(t, store.AddEvent(ctx, "conv-1", DirectionOut, "INFORM", "ACK", "bridge@local"))

	events, err := store.ListEvents(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, DirectionIn, events[0].Direction)
	assert.Equal(t, DirectionOut, events[1].Direction)
	assert.Contains(t, events[0].Key, "event_IN_")
	assert.Contains(t, events[1].Key, "event_OUT_")
}

func TestPutMetricsStoresSnapshotAsFacts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutMetrics(ctx, "metrics", map[string]int64{
		"acl_in_total":  3,
		"acl_out_total": 2,
	}))

	value, err := store.GetFact(ctx, "metrics", "metrics.acl_in_total")
	require.NoError(t, err)
	assert.Equal(t, float64(3), value)
}
