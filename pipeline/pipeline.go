// Package pipeline runs the inbound message loop shared by all agents:
// receive with a timeout, guard, validate, count, then dispatch to the
// agent's handler. Guards run in a fixed order so rejection behavior is
// identical across agents.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
	"github.com/voyagent/voyagent/metrics"
	"github.com/voyagent/voyagent/transport"
)

// Defaults for Config zero values.
const (
	DefaultReceiveTimeout = time.Second
	DefaultMaxBodyBytes   = 65536
)

// ErrIdleShutdown is returned by Step and Run when the idle guard trips.
var ErrIdleShutdown = errors.New("pipeline: idle limit reached")

// Handler consumes one validated inbound envelope.
type Handler interface {
	HandleEnvelope(ctx context.Context, env *acl.Envelope, from string) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *acl.Envelope, from string) error

func (f HandlerFunc) HandleEnvelope(ctx context.Context, env *acl.Envelope, from string) error {
	return f(ctx, env, from)
}

// EventSink records envelope traffic; satisfied by *kb.Store.
type EventSink interface {
	AddEvent(ctx context.Context, conversationID, direction, performative, payloadType, peer string) error
}

// Config tunes the receive loop.
type Config struct {
	// ReceiveTimeout bounds one blocking receive; an expiry is one idle tick.
	ReceiveTimeout time.Duration `yaml:"receive_timeout" json:"receive_timeout"`
	// MaxBodyBytes rejects larger bodies with a VALIDATION_ERROR failure
	// before decoding.
	MaxBodyBytes int `yaml:"max_body_bytes" json:"max_body_bytes"`
	// MaxIdleTicks terminates the loop after that many consecutive empty
	// ticks. Zero disables the idle guard.
	MaxIdleTicks int `yaml:"max_idle_ticks" json:"max_idle_ticks"`
}

func (c Config) withDefaults() Config {
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

// Receiver drives the inbound loop for one mailbox.
type Receiver struct {
	mailbox   transport.Mailbox
	sender    transport.Sender
	handler   Handler
	collector *metrics.Collector
	events    EventSink
	logger    *zap.Logger
	cfg       Config

	// idleTicks is atomic: Step may be called from several goroutines at
	// once when request/reply exchanges pump the loop concurrently.
	idleTicks atomic.Int64
}

// NewReceiver wires a receive loop. The event sink may be nil.
func NewReceiver(mailbox transport.Mailbox, sender transport.Sender, handler Handler,
	collector *metrics.Collector, events EventSink, cfg Config, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{
		mailbox:   mailbox,
		sender:    sender,
		handler:   handler,
		collector: collector,
		events:    events,
		logger:    logger.With(zap.String("mailbox", mailbox.Address())),
		cfg:       cfg.withDefaults(),
	}
}

// Step processes at most one message. An empty tick returns nil unless the
// idle guard trips, in which case it returns ErrIdleShutdown exactly once
// per quiet period. Handler errors propagate; guard rejections do not.
// Step is safe for concurrent use.
func (r *Receiver) Step(ctx context.Context) error {
	raw, err := r.mailbox.Receive(ctx, r.cfg.ReceiveTimeout)
	if errors.Is(err, transport.ErrReceiveTimeout) {
		if r.cfg.MaxIdleTicks > 0 {
			if r.idleTicks.Add(1) >= int64(r.cfg.MaxIdleTicks) {
				r.idleTicks.Store(0)
				return ErrIdleShutdown
			}
		}
		return nil
	}
	if err != nil {
		return err
	}
	r.idleTicks.Store(0)

	if !raw.MetaLanguageIsJSON() {
		r.logger.Debug("dropping non-json message",
			zap.String("sender", raw.Sender),
			zap.String("language", raw.Metadata[transport.MetaLanguage]))
		return nil
	}

	if len(raw.Body) > r.cfg.MaxBodyBytes {
		r.collector.MarkBodyTooLarge()
		r.replyFailure(ctx, raw, "ACL body too large", map[string]any{
			"size_bytes": len(raw.Body),
			"max_bytes":  r.cfg.MaxBodyBytes,
		})
		return nil
	}

	body := transport.ReconcileConversation(raw, r.logger)
	ok, env := acl.Validate(body, raw.FallbackConversationID())
	if !ok {
		r.collector.MarkValidationError()
		r.logger.Warn("rejected invalid message", zap.String("sender", raw.Sender))
		r.send(ctx, env, raw.Sender)
		return nil
	}

	r.collector.MarkIn(env.Performative.String(), env.PayloadType())
	if r.events != nil {
		if err := r.events.AddEvent(ctx, env.ConversationID, "IN",
			env.Performative.String(), env.PayloadType(), raw.Sender); err != nil {
			r.logger.Warn("event log write failed", zap.Error(err))
		}
	}

	return r.handler.HandleEnvelope(ctx, env, raw.Sender)
}

// Run loops Step until the context ends or the idle guard trips.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		if err := r.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func (r *Receiver) replyFailure(ctx context.Context, raw *transport.Raw, message string, details map[string]any) {
	reply, err := acl.NewFailure(raw.FallbackConversationID(), acl.ErrValidation, message, details)
	if err != nil {
		r.logger.Error("building failure reply", zap.Error(err))
		return
	}
	r.send(ctx, reply, raw.Sender)
}

// send delivers an error reply, counting it as outbound traffic.
func (r *Receiver) send(ctx context.Context, env *acl.Envelope, to string) {
	out, err := transport.NewRaw(env, to, r.mailbox.Address())
	if err != nil {
		r.logger.Error("encoding reply", zap.Error(err))
		return
	}
	if err := r.sender.Send(ctx, out); err != nil {
		r.logger.Warn("sending reply failed", zap.String("to", to), zap.Error(err))
		return
	}
	r.collector.MarkOut(env.Performative.String(), env.PayloadType())
	if r.events != nil {
		if err := r.events.AddEvent(ctx, env.ConversationID, "OUT",
			env.Performative.String(), env.PayloadType(), to); err != nil {
			r.logger.Warn("event log write failed", zap.Error(err))
		}
	}
}
