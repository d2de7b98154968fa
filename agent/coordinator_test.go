package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
	"github.com/voyagent/voyagent/discovery"
	"github.com/voyagent/voyagent/kb"
	"github.com/voyagent/voyagent/transport"
)

type coordinatorFixture struct {
	coordinator *Coordinator
	store       *kb.Store
	broker      *transport.Broker
	peerBox     transport.Mailbox
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	broker := transport.NewBroker(16, zap.NewNop())
	store, err := kb.Open(kb.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	opts := testOptions(broker)
	return &coordinatorFixture{
		coordinator: NewCoordinator("coordinator@local", store, nil, discovery.ResolverConfig{}, opts),
		store:       store,
		broker:      broker,
		peerBox:     broker.Register("peer@local"),
	}
}

func (f *coordinatorFixture) exchange(t *testing.T, env *acl.Envelope) *acl.Envelope {
	t.Helper()
	deliver(t, f.broker, env, "coordinator@local", "peer@local")
	require.NoError(t, f.coordinator.Runtime().Step(context.Background()))

	raw, err := f.peerBox.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	reply, err := acl.Decode(raw.Body)
	require.NoError(t, err)
	return reply
}

func TestPingYieldsAckEcho(t *testing.T) {
	f := newCoordinatorFixture(t)
	ping, err := acl.NewPing("demo-1")
	require.NoError(t, err)

	reply := f.exchange(t, ping)
	assert.Equal(t, acl.Inform, reply.Performative)
	assert.Equal(t, "demo-1", reply.ConversationID)

	ack, ok := reply.Payload.(acl.AckPayload)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "PING"}, ack.Echo)
}

func TestBudgetFactIsNormalizedAndConfirmed(t *testing.T) {
	f := newCoordinatorFixture(t)
	fact, err := acl.NewFact("demo-2", "budget_total", "12 345.67 PLN")
	require.NoError(t, err)

	reply := f.exchange(t, fact)
	assert.Equal(t, acl.Inform, reply.Performative)
	confirm, ok := reply.Payload.(acl.ConfirmPayload)
	require.True(t, ok)
	assert.Equal(t, "budget_total", confirm.Slot)
	assert.Equal(t, ConfirmSaved, confirm.Status)

	stored, err := f.store.GetFact(context.Background(), "demo-2", "budget_total")
	require.NoError(t, err)
	assert.Equal(t, float64(12345), stored)
}

func TestUnknownSlotFactIsRejectedWithoutStoreWrite(t *testing.T) {
	f := newCoordinatorFixture(t)
	fact, err := acl.NewFact("demo-3", "___unknown___", "whatever")
	require.NoError(t, err)

	reply := f.exchange(t, fact)
	assert.Equal(t, acl.Failure, reply.Performative)
	p, ok := reply.Payload.(acl.ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, string(acl.ErrValidation), p.Code)
	assert.Equal(t, "___unknown___", p.Details["slot"])

	_, err = f.store.GetFact(context.Background(), "demo-3", "___unknown___")
	assert.ErrorIs(t, err, kb.ErrNotFound)
}

func TestInvalidSlotValueIsRejected(t *testing.T) {
	f := newCoordinatorFixture(t)
	fact, err := acl.NewFact("demo-4", "nights", "-3")
	require.NoError(t, err)

	reply := f.exchange(t, fact)
	assert.Equal(t, acl.Failure, reply.Performative)

	_, err = f.store.GetFact(context.Background(), "demo-4", "nights")
	assert.ErrorIs(t, err, kb.ErrNotFound)
}

func TestPassportFactIsNormalizedToBool(t *testing.T) {
	f := newCoordinatorFixture(t)
	fact, err := acl.NewFact("demo-p1", "passport_ok", "tak")
	require.NoError(t, err)

	reply := f.exchange(t, fact)
	confirm, ok := reply.Payload.(acl.ConfirmPayload)
	require.True(t, ok)
	assert.Equal(t, ConfirmSaved, confirm.Status)

	stored, err := f.store.GetFact(context.Background(), "demo-p1", "passport_ok")
	require.NoError(t, err)
	assert.Equal(t, true, stored)
}

func TestInvalidPassportFactIsRejectedWithoutStoreWrite(t *testing.T) {
	f := newCoordinatorFixture(t)
	fact, err := acl.NewFact("demo-p2", "passport_ok", "maybe")
	require.NoError(t, err)

	reply := f.exchange(t, fact)
	assert.Equal(t, acl.Failure, reply.Performative)
	p, ok := reply.Payload.(acl.ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, string(acl.ErrValidation), p.Code)

	_, err = f.store.GetFact(context.Background(), "demo-p2", "passport_ok")
	assert.ErrorIs(t, err, kb.ErrNotFound)
}

func TestChildrenAgesFactIsNormalizedToList(t *testing.T) {
	f := newCoordinatorFixture(t)
	fact, err := acl.NewFact("demo-c1", "party_children_ages", "13,11")
	require.NoError(t, err)

	reply := f.exchange(t, fact)
	confirm, ok := reply.Payload.(acl.ConfirmPayload)
	require.True(t, ok)
	assert.Equal(t, ConfirmSaved, confirm.Status)

	stored, err := f.store.GetFact(context.Background(), "demo-c1", "party_children_ages")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(13), float64(11)}, stored)
}

func TestOutOfRangeChildrenAgesAreRejected(t *testing.T) {
	f := newCoordinatorFixture(t)
	fact, err := acl.NewFact("demo-c2", "party_children_ages", "18, -1")
	require.NoError(t, err)

	reply := f.exchange(t, fact)
	assert.Equal(t, acl.Failure, reply.Performative)

	_, err = f.store.GetFact(context.Background(), "demo-c2", "party_children_ages")
	assert.ErrorIs(t, err, kb.ErrNotFound)
}

func TestAskReturnsStoredFacts(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.PutFact(ctx, "demo-5", "origin_city", "Warsaw", "user"))

	ask, err := acl.NewAsk("demo-5", []string{"origin_city", "nights"})
	require.NoError(t, err)

	reply := f.exchange(t, ask)
	fact, ok := reply.Payload.(acl.FactPayload)
	require.True(t, ok)
	assert.Equal(t, "origin_city", fact.Slot)
	assert.Equal(t, "Warsaw", fact.Value)
	assert.Equal(t, "kb", fact.Source)

	// nights was never asserted, so only one fact comes back
	_, err = f.peerBox.Receive(ctx, 50*time.Millisecond)
	assert.ErrorIs(t, err, transport.ErrReceiveTimeout)
}

func TestOfferIsRecorded(t *testing.T) {
	f := newCoordinatorFixture(t)
	offer, err := acl.NewOffer("demo-6", "hotels", map[string]any{"name": "Trevi Inn"}, 0.8)
	require.NoError(t, err)

	deliver(t, f.broker, offer, "coordinator@local", "peer@local")
	require.NoError(t, f.coordinator.Runtime().Step(context.Background()))

	offers, err := f.store.QueryOffers(context.Background(), "demo-6", 0)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "hotels", offers[0].Provider)
}

func TestMetricsExportDumpsCountersToStore(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	ping, err := acl.NewPing("demo-7")
	require.NoError(t, err)
	f.exchange(t, ping)

	export, err := acl.NewMetricsExport("demo-7")
	require.NoError(t, err)
	reply := f.exchange(t, export)

	ack, ok := reply.Payload.(acl.AckPayload)
	require.True(t, ok)
	assert.Equal(t, "METRICS_EXPORT", ack.Echo["type"])

	inTotal, err := f.store.GetFact(ctx, MetricsConversationID, "metrics.acl_in_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, inTotal, float64(1))
}
