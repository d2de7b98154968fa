package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
	"github.com/voyagent/voyagent/discovery"
)

// RegistryOntology tags capability traffic.
const RegistryOntology = "system"

// Registry is the capability directory agent. It ingests INFORM/CAPABILITY
// announcements and answers REQUEST/ASK capability queries; anything else
// is ignored.
type Registry struct {
	rt    *Runtime
	index *discovery.Registry
}

// NewRegistry builds the registry agent.
func NewRegistry(name string, opts Options) *Registry {
	r := &Registry{index: discovery.NewRegistry()}
	r.rt = NewRuntime(name, r, opts)
	return r
}

// Runtime exposes the runtime for supervision.
func (r *Registry) Runtime() *Runtime { return r.rt }

// Index exposes the provider index, mainly for tests and diagnostics.
func (r *Registry) Index() *discovery.Registry { return r.index }

// HandleEnvelope implements Handler.
func (r *Registry) HandleEnvelope(ctx context.Context, env *acl.Envelope, from string) error {
	switch p := env.Payload.(type) {
	case acl.CapabilityPayload:
		if env.Performative != acl.Inform {
			return nil
		}
		provider := from
		if p.Agent != "" {
			provider = p.Agent
		}
		added := r.index.ApplyCapability(p, provider)
		if len(added) > 0 {
			r.rt.Logger().Info("capability registered",
				zap.String("provider", provider),
				zap.Strings("keys", added))
		}
		return nil

	case acl.AskPayload:
		if env.Performative != acl.Request {
			return nil
		}
		return r.answerQuery(ctx, env, p, from)

	default:
		return nil
	}
}

// answerQuery serves need=["CAPABILITY", key...] with an INFORM/FACT whose
// slot is capability.providers. Queries without the CAPABILITY marker or
// without dotted keys are not for us and are dropped.
func (r *Registry) answerQuery(ctx context.Context, env *acl.Envelope, ask acl.AskPayload, from string) error {
	wantsCapability := false
	var keys []string
	for _, need := range ask.Need {
		need = strings.TrimSpace(need)
		if strings.EqualFold(need, acl.TypeCapability) {
			wantsCapability = true
			continue
		}
		if strings.Contains(need, ".") {
			keys = append(keys, need)
		}
	}
	if !wantsCapability || len(keys) == 0 {
		return nil
	}

	table := r.index.Lookup(keys)
	value := make(map[string]any, len(table))
	for key, providers := range table {
		entries := make([]any, len(providers))
		for i, p := range providers {
			entries[i] = p
		}
		value[key] = entries
	}

	reply, err := acl.NewInform(env.ConversationID,
		acl.FactPayload{Slot: discovery.CapabilitySlot, Value: value},
		acl.WithOntology(RegistryOntology))
	if err != nil {
		return err
	}
	return r.rt.Send(ctx, from, reply)
}
