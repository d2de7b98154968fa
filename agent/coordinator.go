package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
	"github.com/voyagent/voyagent/discovery"
	"github.com/voyagent/voyagent/kb"
	"github.com/voyagent/voyagent/metrics"
	"github.com/voyagent/voyagent/slots"
)

// ConfirmSaved is the status reported when a fact lands in the store.
const ConfirmSaved = "saved"

// MetricsConversationID scopes exported counter snapshots in the store.
const MetricsConversationID = "metrics"

// Coordinator is the planning brain: it owns the fact store, confirms or
// rejects slot assertions, serves slot queries, records offers, exports
// metrics, and locates providers through the capability resolver.
type Coordinator struct {
	rt        *Runtime
	store     *kb.Store
	collector *metrics.Collector
	resolver  *discovery.Resolver
}

// NewCoordinator builds the coordinator. rdb may be nil to run the resolver
// without its shared cache tier.
func NewCoordinator(name string, store *kb.Store, rdb *redis.Client, dcfg discovery.ResolverConfig, opts Options) *Coordinator {
	c := &Coordinator{store: store, collector: opts.Collector}
	c.rt = NewRuntime(name, c, opts)
	c.resolver = discovery.NewResolver(c.rt, rdb, dcfg, c.rt.Logger())
	return c
}

// Runtime exposes the runtime for supervision.
func (c *Coordinator) Runtime() *Runtime { return c.rt }

// HandleEnvelope implements Handler.
func (c *Coordinator) HandleEnvelope(ctx context.Context, env *acl.Envelope, from string) error {
	switch p := env.Payload.(type) {
	case acl.PingPayload:
		ack, err := acl.NewAck(env.ConversationID, map[string]any{"type": acl.TypePing},
			acl.WithOntology(env.Ontology))
		if err != nil {
			return err
		}
		return c.rt.Send(ctx, from, ack)

	case acl.FactPayload:
		return c.handleFact(ctx, env, p, from)

	case acl.AskPayload:
		return c.handleAsk(ctx, env, p, from)

	case acl.OfferPayload:
		if err := c.store.AddOffer(ctx, env.ConversationID, p.Provider, p.Offer, p.Score); err != nil {
			return err
		}
		c.rt.Logger().Info("offer recorded",
			zap.String("conversation_id", env.ConversationID),
			zap.String("provider", p.Provider),
			zap.Float64("score", p.Score))
		return nil

	case acl.MetricsExportPayload:
		return c.exportMetrics(ctx, env, from)

	default:
		c.rt.Logger().Debug("unhandled payload",
			zap.String("payload_type", env.PayloadType()),
			zap.String("from", from))
		return nil
	}
}

// handleFact normalizes and stores one slot assertion. Rejections reply
// FAILURE/ERROR and leave the store untouched.
func (c *Coordinator) handleFact(ctx context.Context, env *acl.Envelope, fact acl.FactPayload, from string) error {
	value, err := slots.Normalize(fact.Slot, fact.Value)
	if err != nil {
		details := map[string]any{"slot": fact.Slot, "err": err.Error()}
		var verr *acl.ValidationError
		if errors.As(err, &verr) {
			for k, v := range verr.Details {
				details[k] = v
			}
			details["err"] = verr.Message
		}
		return c.rt.SendFailure(ctx, from, env.ConversationID, acl.ErrValidation, details)
	}

	source := fact.Source
	if source == "" {
		source = from
	}
	if err := c.store.PutFact(ctx, env.ConversationID, fact.Slot, value, source); err != nil {
		return fmt.Errorf("coordinator: store fact: %w", err)
	}

	confirm, err := acl.NewConfirmSlot(env.ConversationID, fact.Slot, ConfirmSaved)
	if err != nil {
		return err
	}
	return c.rt.Send(ctx, from, confirm)
}

// handleAsk answers slot queries from the store: one INFORM/FACT per known
// slot. Capability queries belong to the registry and are ignored here, as
// are slots nobody asserted yet.
func (c *Coordinator) handleAsk(ctx context.Context, env *acl.Envelope, ask acl.AskPayload, from string) error {
	for _, need := range ask.Need {
		if !slots.IsCanonical(need) {
			continue
		}
		value, err := c.store.GetFact(ctx, env.ConversationID, need)
		if errors.Is(err, kb.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("coordinator: read fact: %w", err)
		}
		reply, err := acl.NewFact(env.ConversationID, need, value)
		if err != nil {
			return err
		}
		if p, ok := reply.Payload.(acl.FactPayload); ok {
			p.Source = "kb"
			p.SessionID = ask.SessionID
			reply.Payload = p
		}
		if err := c.rt.Send(ctx, from, reply); err != nil {
			return err
		}
	}
	return nil
}

// exportMetrics dumps the flat counter snapshot into the store and
// acknowledges with the number of counters written.
func (c *Coordinator) exportMetrics(ctx context.Context, env *acl.Envelope, from string) error {
	snapshot := c.collector.Snapshot(false)
	if err := c.store.PutMetrics(ctx, MetricsConversationID, snapshot); err != nil {
		return fmt.Errorf("coordinator: export metrics: %w", err)
	}
	ack, err := acl.NewAck(env.ConversationID, map[string]any{
		"type":     acl.TypeMetricsExport,
		"exported": len(snapshot),
	}, acl.WithOntology(RegistryOntology))
	if err != nil {
		return err
	}
	return c.rt.Send(ctx, from, ack)
}

// WeatherAdvice locates a weather provider through the capability resolver
// and performs the REQUEST/WEATHER_ADVICE exchange.
func (c *Coordinator) WeatherAdvice(ctx context.Context, conversationID, place string, days int) (*acl.WeatherAdvicePayload, error) {
	key := discovery.Key(WeatherOntology, acl.TypeWeatherAdvice)
	providers, err := c.resolver.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("coordinator: no provider for %s", key)
	}

	req, err := acl.NewRequest(conversationID,
		acl.WeatherAdvicePayload{Place: place, Days: days},
		acl.WithOntology(WeatherOntology))
	if err != nil {
		return nil, err
	}
	reply, err := c.rt.Request(ctx, providers[0], req)
	if err != nil {
		return nil, err
	}
	advice, ok := reply.Payload.(acl.WeatherAdvicePayload)
	if !ok {
		return nil, fmt.Errorf("coordinator: unexpected weather reply %s/%s",
			reply.Performative, reply.PayloadType())
	}
	if advice.Err != "" {
		return nil, fmt.Errorf("coordinator: weather provider: %s", advice.Err)
	}
	return &advice, nil
}
