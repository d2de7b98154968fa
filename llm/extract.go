package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractedSlot is one slot value pulled from a user utterance.
type ExtractedSlot struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	RawSpan    string  `json:"raw_span"`
	Unit       string  `json:"unit,omitempty"`
}

// Extraction is the structured result of one extraction call. Missing lists
// the wanted slots the model could not find; it is never invented.
type Extraction struct {
	Extracted map[string]ExtractedSlot `json:"extracted"`
	Missing   []string                 `json:"missing"`
	Notes     string                   `json:"notes"`
}

func emptyExtraction(wanted []string, notes string) Extraction {
	return Extraction{
		Extracted: map[string]ExtractedSlot{},
		Missing:   append([]string(nil), wanted...),
		Notes:     notes,
	}
}

// Extractor turns free text into slot values via a Generator, with a strict
// JSON contract. Any model failure degrades to an all-missing result so the
// asking agent can fall back to questioning the user.
type Extractor struct {
	generator Generator
}

// NewExtractor wraps a generator.
func NewExtractor(generator Generator) *Extractor {
	return &Extractor{generator: generator}
}

const extractSystemPrompt = "You are an NLU slot extractor. From the user text, extract values for the slots: %s. " +
	"Reply with JSON ONLY, no commentary.\n" +
	`JSON schema: {"extracted": {slot: {"value": any, "confidence": 0..1, "raw_span": str, "unit": str?}}, ` +
	`"missing": [slot], "notes": str}.` + "\n" +
	"Do not hallucinate: anything absent from the text goes into \"missing\". Be brief. No text outside the JSON."

// Extract asks the model for the wanted slots within text. The reply is
// parsed strictly: slots that were not asked for are dropped, confidence is
// clamped to [0,1], and an unparseable reply yields an all-missing result.
func (x *Extractor) Extract(ctx context.Context, sessionID, text, contextText string, wanted []string) Extraction {
	if len(wanted) == 0 {
		return emptyExtraction(nil, "nothing wanted")
	}
	if x == nil || x.generator == nil {
		return emptyExtraction(wanted, "llm disabled")
	}

	userPrompt, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"context":    contextText,
		"message":    text,
		"wanted":     wanted,
	})
	if err != nil {
		return emptyExtraction(wanted, "llm error")
	}

	raw, err := x.generator.Generate(ctx,
		fmt.Sprintf(extractSystemPrompt, strings.Join(wanted, ", ")),
		string(userPrompt))
	if err != nil {
		return emptyExtraction(wanted, "llm error")
	}

	var parsed struct {
		Extracted map[string]json.RawMessage `json:"extracted"`
		Notes     string                     `json:"notes"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return emptyExtraction(wanted, "parse error")
	}

	wantedSet := make(map[string]struct{}, len(wanted))
	for _, slot := range wanted {
		wantedSet[slot] = struct{}{}
	}

	extracted := make(map[string]ExtractedSlot)
	for slot, meta := range parsed.Extracted {
		if _, ok := wantedSet[slot]; !ok {
			continue
		}
		var entry ExtractedSlot
		if err := json.Unmarshal(meta, &entry); err != nil {
			continue
		}
		if entry.Confidence < 0 {
			entry.Confidence = 0
		}
		if entry.Confidence > 1 {
			entry.Confidence = 1
		}
		extracted[slot] = entry
	}

	var missing []string
	for _, slot := range wanted {
		if _, ok := extracted[slot]; !ok {
			missing = append(missing, slot)
		}
	}
	return Extraction{Extracted: extracted, Missing: missing, Notes: parsed.Notes}
}
