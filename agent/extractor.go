package agent

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
	"github.com/voyagent/voyagent/llm"
	"github.com/voyagent/voyagent/slots"
)

// NLU exchange constants. Extraction requests travel in the "nlu" ontology
// with an ASK whose need list opens with the EXTRACT marker.
const (
	NLUOntology    = "nlu"
	ExtractMarker  = "EXTRACT"
	ExtractionSlot = "nlu.extraction"
)

// Extractor is the NLU provider agent: it turns free text into slot values
// through the language model and answers with an INFORM/FACT carrying the
// structured extraction.
type Extractor struct {
	rt        *Runtime
	extractor *llm.Extractor
}

// NewExtractor builds the extractor agent around a generator; a nil
// generator yields all-missing extractions.
func NewExtractor(name string, generator llm.Generator, opts Options) *Extractor {
	e := &Extractor{extractor: llm.NewExtractor(generator)}
	e.rt = NewRuntime(name, e, opts)
	return e
}

// Runtime exposes the runtime for supervision.
func (e *Extractor) Runtime() *Runtime { return e.rt }

// Announce registers the NLU capability with the registry.
func (e *Extractor) Announce(ctx context.Context, registryAddr string) {
	e.rt.AnnounceCapability(ctx, registryAddr, []acl.ProvidesEntry{
		{Ontology: NLUOntology, Types: []string{"SLOTS"}},
	})
}

// HandleEnvelope implements Handler.
func (e *Extractor) HandleEnvelope(ctx context.Context, env *acl.Envelope, from string) error {
	ask, ok := env.Payload.(acl.AskPayload)
	if !ok || env.Performative != acl.Request {
		return nil
	}

	wantsExtract := false
	var wanted []string
	for _, need := range ask.Need {
		if strings.EqualFold(strings.TrimSpace(need), ExtractMarker) {
			wantsExtract = true
			continue
		}
		if slots.IsCanonical(need) {
			wanted = append(wanted, need)
		}
	}
	if !wantsExtract {
		return nil
	}

	sessionID := ask.SessionID
	if sessionID == "" {
		sessionID = env.ConversationID
	}

	result := e.extractor.Extract(ctx, sessionID, ask.Text, ask.Context, wanted)
	e.rt.Logger().Info("extraction done",
		zap.String("conversation_id", env.ConversationID),
		zap.Int("extracted", len(result.Extracted)),
		zap.Int("missing", len(result.Missing)))

	value, err := extractionValue(result)
	if err != nil {
		return err
	}
	reply, err := acl.NewInform(env.ConversationID, acl.FactPayload{
		Slot:      ExtractionSlot,
		Value:     value,
		Source:    e.rt.Name(),
		SessionID: sessionID,
	}, acl.WithOntology(NLUOntology))
	if err != nil {
		return err
	}
	return e.rt.Send(ctx, from, reply)
}

// extractionValue renders the extraction as plain JSON data so it survives
// the envelope codec unchanged.
func extractionValue(x llm.Extraction) (map[string]any, error) {
	data, err := json.Marshal(x)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
