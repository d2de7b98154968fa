package acl

import (
	"encoding/json"
	"fmt"
	"strings"
)

// wireEnvelope is the canonical JSON shape of an envelope on the wire.
type wireEnvelope struct {
	Performative   string          `json:"performative"`
	ConversationID string          `json:"conversation_id"`
	Ontology       string          `json:"ontology"`
	Language       string          `json:"language"`
	Payload        json.RawMessage `json:"payload"`
	SchemaVersion  string          `json:"schema_version"`
	TS             string          `json:"ts"`
}

// Encode serializes the envelope to its canonical JSON text form.
func (e *Envelope) Encode() ([]byte, error) {
	payload, err := marshalPayload(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return json.Marshal(wireEnvelope{
		Performative:   string(e.Performative),
		ConversationID: e.ConversationID,
		Ontology:       e.Ontology,
		Language:       e.Language,
		Payload:        payload,
		SchemaVersion:  e.SchemaVersion,
		TS:             e.TS,
	})
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) { return e.Encode() }

// UnmarshalJSON implements json.Unmarshaler via Decode.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	dec, err := Decode(data)
	if err != nil {
		return err
	}
	*e = *dec
	return nil
}

// marshalPayload renders a payload as a JSON object whose "type" field is
// the payload discriminator. Map payloads are passed through untouched so an
// absent discriminator stays absent. encoding/json sorts object keys, which
// makes the output canonical for dedup-key purposes.
func marshalPayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage(`{}`), nil
	}
	if m, ok := p.(MapPayload); ok {
		return json.Marshal(map[string]any(m))
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["type"] = p.PayloadType()
	return json.Marshal(fields)
}

// Decode parses canonical JSON into an Envelope and validates it. Missing
// ontology/language default to "default"/"json"; a missing or empty payload
// decodes as an empty untyped payload.
func Decode(data []byte) (*Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, NewValidationError("malformed envelope JSON").WithDetail("err", err.Error())
	}
	if wire.Ontology == "" {
		wire.Ontology = DefaultOntology
	}
	if wire.Language == "" {
		wire.Language = LanguageJSON
	}
	if wire.SchemaVersion == "" {
		wire.SchemaVersion = SchemaVersion
	}
	payload, err := decodePayload(wire.Payload)
	if err != nil {
		return nil, err
	}
	e := &Envelope{
		Performative:   Performative(wire.Performative),
		ConversationID: wire.ConversationID,
		Ontology:       wire.Ontology,
		Language:       wire.Language,
		Payload:        payload,
		SchemaVersion:  wire.SchemaVersion,
		TS:             wire.TS,
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// decodePayload dispatches on the "type" discriminator. A payload without a
// discriminator is kept as an untyped map (compatibility rule); an unknown
// discriminator is a validation error.
func decodePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return MapPayload{}, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, NewValidationError("payload must be a JSON object").WithDetail("err", err.Error())
	}
	typeVal, present := fields["type"]
	if !present {
		return MapPayload(fields), nil
	}
	name, ok := typeVal.(string)
	if !ok {
		return nil, NewValidationError("payload.type must be a string")
	}

	var (
		p   Payload
		err error
	)
	switch name {
	case TypePing:
		p, err = unmarshalAs[PingPayload](raw)
	case TypeAsk:
		p, err = unmarshalAs[AskPayload](raw)
	case TypeFact:
		p, err = unmarshalAs[FactPayload](raw)
	case TypeAck:
		p, err = unmarshalAs[AckPayload](raw)
	case TypeOffer:
		p, err = unmarshalAs[OfferPayload](raw)
	case TypeConfirm:
		p, err = unmarshalAs[ConfirmPayload](raw)
	case TypeError:
		p, err = unmarshalAs[ErrorPayload](raw)
	case TypeCapability:
		p, err = unmarshalAs[CapabilityPayload](raw)
	case TypeUserMsg:
		p, err = unmarshalAs[UserMsgPayload](raw)
	case TypePresenterReply:
		p, err = unmarshalAs[PresenterReplyPayload](raw)
	case TypeWeatherAdvice:
		p, err = unmarshalAs[WeatherAdvicePayload](raw)
	case TypeMetricsExport:
		p, err = unmarshalAs[MetricsExportPayload](raw)
	default:
		return nil, NewValidationError("unknown payload type").WithDetail("payload_type", name)
	}
	if err != nil {
		return nil, NewValidationError("malformed payload").
			WithDetail("payload_type", name).
			WithDetail("err", err.Error())
	}
	return p, nil
}

func unmarshalAs[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// CanonicalPayloadJSON returns the payload rendered as canonical JSON
// (sorted object keys, "type" discriminator included).
func (e *Envelope) CanonicalPayloadJSON() string {
	data, err := marshalPayload(e.Payload)
	if err != nil {
		return ""
	}
	return string(data)
}

// DedupKey derives the duplicate-suppression key for the envelope:
// conversation id, performative, ontology (or the default) and the canonical
// payload JSON.
func (e *Envelope) DedupKey() string {
	ontology := e.Ontology
	if ontology == "" {
		ontology = DefaultOntology
	}
	return strings.Join([]string{
		e.ConversationID,
		string(e.Performative),
		ontology,
		e.CanonicalPayloadJSON(),
	}, "|")
}
