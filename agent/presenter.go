package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
	"github.com/voyagent/voyagent/llm"
	"github.com/voyagent/voyagent/slots"
)

// NLUConversationSuffix marks the derived technical conversation a
// presenter opens to call the extraction provider.
const NLUConversationSuffix = "-nlu"

const presenterSystemPrompt = "You are a friendly travel-planning assistant. " +
	"Given what the user just said, which trip details were saved, and which are still missing, " +
	"write one short conversational reply. Confirm what was understood and ask for at most " +
	"two missing details. Plain text only."

// Presenter is the dialogue agent: it takes user utterances from the
// bridge, runs slot extraction, pushes accepted facts to the coordinator,
// and answers with a conversational reply.
type Presenter struct {
	rt              *Runtime
	coordinatorAddr string
	extractorAddr   string
	generator       llm.Generator
}

// NewPresenter builds the presenter. The generator may be nil; replies then
// use the deterministic template.
func NewPresenter(name, coordinatorAddr, extractorAddr string, generator llm.Generator, opts Options) *Presenter {
	p := &Presenter{
		coordinatorAddr: coordinatorAddr,
		extractorAddr:   extractorAddr,
		generator:       generator,
	}
	p.rt = NewRuntime(name, p, opts)
	return p
}

// Runtime exposes the runtime for supervision.
func (p *Presenter) Runtime() *Runtime { return p.rt }

// HandleEnvelope implements Handler.
func (p *Presenter) HandleEnvelope(ctx context.Context, env *acl.Envelope, from string) error {
	msg, ok := env.Payload.(acl.UserMsgPayload)
	if !ok || env.Performative != acl.Request {
		return nil
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = env.ConversationID
	}

	extraction := p.extract(ctx, env.ConversationID, sessionID, msg.Text)
	saved, rejected := p.pushFacts(ctx, env.ConversationID, sessionID, extraction)

	text := p.composeReply(ctx, msg.Text, saved, rejected)
	reply, err := acl.NewPresenterReply(env.ConversationID, text, sessionID)
	if err != nil {
		return err
	}
	return p.rt.Send(ctx, from, reply)
}

// extract calls the NLU provider on a derived "-nlu" conversation. The root
// session id travels explicitly in the payload; it is never derived from
// the technical conversation id.
func (p *Presenter) extract(ctx context.Context, conversationID, sessionID, text string) llm.Extraction {
	none := llm.Extraction{Extracted: map[string]llm.ExtractedSlot{}}
	if p.extractorAddr == "" {
		return none
	}
	need := append([]string{ExtractMarker}, slots.Names()...)
	ask := acl.AskPayload{
		Need:      need,
		Text:      text,
		SessionID: sessionID,
	}
	env, err := acl.NewRequest(conversationID+NLUConversationSuffix, ask, acl.WithOntology(NLUOntology))
	if err != nil {
		p.rt.Logger().Error("building extraction request", zap.Error(err))
		return none
	}
	reply, err := p.rt.Request(ctx, p.extractorAddr, env)
	if err != nil {
		p.rt.Logger().Warn("extraction unavailable", zap.Error(err))
		return none
	}
	fact, ok := reply.Payload.(acl.FactPayload)
	if !ok || fact.Slot != ExtractionSlot {
		p.rt.Logger().Warn("unexpected extraction reply",
			zap.String("payload_type", reply.PayloadType()))
		return none
	}
	data, err := json.Marshal(fact.Value)
	if err != nil {
		return none
	}
	var out llm.Extraction
	if err := json.Unmarshal(data, &out); err != nil {
		return none
	}
	if out.Extracted == nil {
		out.Extracted = map[string]llm.ExtractedSlot{}
	}
	return out
}

// pushFacts forwards each extracted slot to the coordinator and sorts the
// outcomes by the confirmation received.
func (p *Presenter) pushFacts(ctx context.Context, conversationID, sessionID string, x llm.Extraction) (saved map[string]any, rejected []string) {
	saved = make(map[string]any)
	names := make([]string, 0, len(x.Extracted))
	for slot := range x.Extracted {
		names = append(names, slot)
	}
	sort.Strings(names)

	for _, slot := range names {
		entry := x.Extracted[slot]
		env, err := acl.NewInform(conversationID, acl.FactPayload{
			Slot:      slot,
			Value:     entry.Value,
			Source:    "nlu",
			SessionID: sessionID,
		})
		if err != nil {
			rejected = append(rejected, slot)
			continue
		}
		reply, err := p.rt.Request(ctx, p.coordinatorAddr, env)
		if err != nil {
			p.rt.Logger().Warn("fact not confirmed", zap.String("slot", slot), zap.Error(err))
			rejected = append(rejected, slot)
			continue
		}
		if confirm, ok := reply.Payload.(acl.ConfirmPayload); ok && confirm.Status == ConfirmSaved {
			saved[slot] = entry.Value
		} else {
			rejected = append(rejected, slot)
		}
	}
	return saved, rejected
}

// composeReply drafts the user-facing text, via the model when available,
// otherwise from the deterministic template.
func (p *Presenter) composeReply(ctx context.Context, userText string, saved map[string]any, rejected []string) string {
	if p.generator != nil {
		prompt, err := json.Marshal(map[string]any{
			"user_message": userText,
			"saved":        saved,
			"rejected":     rejected,
			"missing":      p.missingSlots(saved),
		})
		if err == nil {
			if text, err := p.generator.Generate(ctx, presenterSystemPrompt, string(prompt)); err == nil && text != "" {
				return text
			}
		}
	}
	return templateReply(saved, rejected, p.missingSlots(saved))
}

func (p *Presenter) missingSlots(saved map[string]any) []string {
	var missing []string
	for _, name := range slots.Names() {
		if _, ok := saved[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// templateReply is the no-model fallback: confirm what was saved, flag what
// was rejected, ask for a couple of missing details.
func templateReply(saved map[string]any, rejected, missing []string) string {
	var b strings.Builder
	if len(saved) > 0 {
		names := make([]string, 0, len(saved))
		for slot := range saved {
			names = append(names, slot)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, slot := range names {
			parts[i] = fmt.Sprintf("%s=%v", slot, saved[slot])
		}
		fmt.Fprintf(&b, "Got it: %s.", strings.Join(parts, ", "))
	} else {
		b.WriteString("Thanks!")
	}
	if len(rejected) > 0 {
		fmt.Fprintf(&b, " I could not use: %s.", strings.Join(rejected, ", "))
	}
	if len(missing) > 0 {
		ask := missing
		if len(ask) > 2 {
			ask = ask[:2]
		}
		fmt.Fprintf(&b, " Could you tell me your %s?", strings.Join(ask, " and "))
	}
	return b.String()
}
