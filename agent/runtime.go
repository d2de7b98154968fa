// Package agent contains the agent runtime and the concrete voyagent
// agents: coordinator, presenter, extractor, registry, weather, and the
// chat-facing bridge. The runtime owns everything message-shaped (receive
// loop, duplicate suppression, counters, request/reply correlation) so the
// agents only implement domain behavior.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
	"github.com/voyagent/voyagent/metrics"
	"github.com/voyagent/voyagent/pipeline"
	"github.com/voyagent/voyagent/transport"
)

// DefaultAwaitTimeout bounds one request/reply exchange.
const DefaultAwaitTimeout = 2 * time.Second

// Handler is the domain side of an agent.
type Handler interface {
	// HandleEnvelope consumes one deduplicated, validated envelope.
	HandleEnvelope(ctx context.Context, env *acl.Envelope, from string) error
}

// Runtime hosts one agent on the broker.
type Runtime struct {
	name      string
	mailbox   transport.Mailbox
	sender    transport.Sender
	collector *metrics.Collector
	events    pipeline.EventSink
	recent    *acl.RecentFilter
	logger    *zap.Logger
	receiver  *pipeline.Receiver

	awaitTimeout time.Duration

	mu      sync.Mutex
	waiters map[string]chan *acl.Envelope
}

// Options carries the shared infrastructure an agent runtime plugs into.
type Options struct {
	Broker    *transport.Broker
	Collector *metrics.Collector
	Events    pipeline.EventSink
	Pipeline  pipeline.Config
	Logger    *zap.Logger
	// AwaitTimeout overrides DefaultAwaitTimeout when positive.
	AwaitTimeout time.Duration
}

// NewRuntime registers name on the broker and wires the receive pipeline
// around handler.
func NewRuntime(name string, handler Handler, opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("agent", name))

	rt := &Runtime{
		name:         name,
		mailbox:      opts.Broker.Register(name),
		sender:       opts.Broker,
		collector:    opts.Collector,
		events:       opts.Events,
		recent:       acl.NewRecentFilter(acl.DefaultRecentCapacity),
		logger:       logger,
		awaitTimeout: opts.AwaitTimeout,
		waiters:      make(map[string]chan *acl.Envelope),
	}
	if rt.awaitTimeout <= 0 {
		rt.awaitTimeout = DefaultAwaitTimeout
	}
	rt.receiver = pipeline.NewReceiver(rt.mailbox, rt.sender,
		pipeline.HandlerFunc(func(ctx context.Context, env *acl.Envelope, from string) error {
			return rt.dispatch(ctx, env, from, handler)
		}),
		opts.Collector, opts.Events, opts.Pipeline, logger)
	return rt
}

// Name returns the agent's mailbox address.
func (rt *Runtime) Name() string { return rt.name }

// Logger returns the agent-scoped logger.
func (rt *Runtime) Logger() *zap.Logger { return rt.logger }

// Run drives the receive loop until the context ends or the idle guard
// trips.
func (rt *Runtime) Run(ctx context.Context) error {
	rt.logger.Info("agent started")
	defer rt.logger.Info("agent stopped")
	return rt.receiver.Run(ctx)
}

// Step processes at most one inbound message; exposed for tests and for
// callers that interleave agent work with other duties.
func (rt *Runtime) Step(ctx context.Context) error {
	return rt.receiver.Step(ctx)
}

// dispatch applies duplicate suppression and request/reply correlation
// before handing the envelope to the domain handler.
func (rt *Runtime) dispatch(ctx context.Context, env *acl.Envelope, from string, handler Handler) error {
	if rt.recent.IsDuplicate(env) {
		rt.logger.Debug("suppressed duplicate",
			zap.String("conversation_id", env.ConversationID),
			zap.String("payload_type", env.PayloadType()))
		return nil
	}
	rt.recent.Remember(env)

	rt.mu.Lock()
	waiter, waiting := rt.waiters[env.ConversationID]
	if waiting {
		delete(rt.waiters, env.ConversationID)
	}
	rt.mu.Unlock()
	if waiting {
		select {
		case waiter <- env:
		default:
		}
		return nil
	}

	if handler == nil {
		return nil
	}
	return handler.HandleEnvelope(ctx, env, from)
}

// Send delivers one envelope, counting it and logging it as outbound
// traffic.
func (rt *Runtime) Send(ctx context.Context, to string, env *acl.Envelope) error {
	raw, err := transport.NewRaw(env, to, rt.name)
	if err != nil {
		return err
	}
	if err := rt.sender.Send(ctx, raw); err != nil {
		return fmt.Errorf("agent %s: send to %s: %w", rt.name, to, err)
	}
	rt.collector.MarkOut(env.Performative.String(), env.PayloadType())
	if rt.events != nil {
		if err := rt.events.AddEvent(ctx, env.ConversationID, "OUT",
			env.Performative.String(), env.PayloadType(), to); err != nil {
			rt.logger.Warn("event log write failed", zap.Error(err))
		}
	}
	return nil
}

// SendFailure builds and delivers a FAILURE/ERROR reply.
func (rt *Runtime) SendFailure(ctx context.Context, to, conversationID string, code acl.ErrorCode, details map[string]any) error {
	reply, err := acl.NewFailure(conversationID, code, "", details)
	if err != nil {
		return err
	}
	return rt.Send(ctx, to, reply)
}

// Request sends env and waits for the next envelope on the same
// conversation. The wait is bounded by the runtime's await timeout; the
// caller must keep the receive loop running (or call Step) so the reply can
// arrive.
func (rt *Runtime) Request(ctx context.Context, to string, env *acl.Envelope) (*acl.Envelope, error) {
	waiter := make(chan *acl.Envelope, 1)
	rt.mu.Lock()
	if _, busy := rt.waiters[env.ConversationID]; busy {
		rt.mu.Unlock()
		return nil, fmt.Errorf("agent %s: conversation %s already awaited", rt.name, env.ConversationID)
	}
	rt.waiters[env.ConversationID] = waiter
	rt.mu.Unlock()

	cleanup := func() {
		rt.mu.Lock()
		delete(rt.waiters, env.ConversationID)
		rt.mu.Unlock()
	}

	if err := rt.Send(ctx, to, env); err != nil {
		cleanup()
		return nil, err
	}

	// Request is usually called from inside a handler, while the receive
	// loop is blocked on that same handler. Pump the loop here so the reply
	// (and unrelated traffic) keeps flowing during the wait.
	deadline := time.Now().Add(rt.awaitTimeout)
	for {
		select {
		case reply := <-waiter:
			return reply, nil
		case <-ctx.Done():
			cleanup()
			return nil, ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			cleanup()
			return nil, fmt.Errorf("agent %s: no reply on %s within %s", rt.name, env.ConversationID, rt.awaitTimeout)
		}
		if err := rt.receiver.Step(ctx); err != nil && !errors.Is(err, pipeline.ErrIdleShutdown) {
			cleanup()
			return nil, err
		}
	}
}

// AnnounceCapability registers what this agent provides with the registry.
// A failure is logged, not fatal: the system works with static fallbacks.
func (rt *Runtime) AnnounceCapability(ctx context.Context, registryAddr string, provides []acl.ProvidesEntry) {
	if registryAddr == "" {
		return
	}
	conv := fmt.Sprintf("cap-%s-%d", rt.name, time.Now().Unix())
	env, err := acl.NewCapability(conv, provides)
	if err != nil {
		rt.logger.Error("building capability announcement", zap.Error(err))
		return
	}
	if err := rt.Send(ctx, registryAddr, env); err != nil {
		rt.logger.Warn("capability announce failed", zap.Error(err))
		return
	}
	rt.logger.Info("capability announced", zap.String("registry", registryAddr))
}
