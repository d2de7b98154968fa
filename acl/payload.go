package acl

// Payload type discriminators. Every typed payload serializes with a "type"
// field holding one of these values.
const (
	TypePing           = "PING"
	TypeAsk            = "ASK"
	TypeFact           = "FACT"
	TypeAck            = "ACK"
	TypeOffer          = "OFFER"
	TypeConfirm        = "CONFIRM"
	TypeError          = "ERROR"
	TypeCapability     = "CAPABILITY"
	TypeUserMsg        = "USER_MSG"
	TypePresenterReply = "PRESENTER_REPLY"
	TypeWeatherAdvice  = "WEATHER_ADVICE"
	TypeMetricsExport  = "METRICS_EXPORT"
)

// allowedPerformatives is the single source of truth for which performatives
// may carry each payload type. FAILURE is handled as a special rule in
// performativeAllowed: it is legal only for ERROR, and ERROR travels only
// under FAILURE.
var allowedPerformatives = map[string][]Performative{
	TypePing:          {Request},
	TypeAsk:           {Request},
	TypeMetricsExport: {Request},
	TypeUserMsg:       {Request},

	TypeFact:           {Inform},
	TypeAck:            {Inform},
	TypeOffer:          {Inform},
	TypeConfirm:        {Inform},
	TypePresenterReply: {Inform},

	TypeWeatherAdvice: {Request, Inform},
	TypeCapability:    {Inform},

	TypeError: {Failure},
}

// performativeAllowed reports whether perf may carry a payload of the given
// type. An empty type is accepted for backward compatibility.
func performativeAllowed(perf Performative, payloadType string) bool {
	if payloadType == "" {
		return true
	}
	if perf == Failure {
		return payloadType == TypeError
	}
	allowed, ok := allowedPerformatives[payloadType]
	if !ok {
		return false
	}
	for _, p := range allowed {
		if p == perf {
			return true
		}
	}
	return false
}

// Payload is the tagged union of message contents. PayloadType returns the
// wire discriminator, empty for an untyped compatibility payload.
type Payload interface {
	PayloadType() string
}

// PingPayload is a liveness/handshake probe.
type PingPayload struct {
	SessionID string `json:"session_id,omitempty"`
}

func (PingPayload) PayloadType() string { return TypePing }

// AskPayload requests values: slot names from a user-facing peer, or
// "CAPABILITY" plus capability keys from the registry, or "EXTRACT" plus
// wanted slots from an NLU provider (Text/Context then carry the utterance).
type AskPayload struct {
	Need      []string `json:"need"`
	SessionID string   `json:"session_id,omitempty"`
	Text      string   `json:"text,omitempty"`
	Context   string   `json:"context,omitempty"`
}

func (AskPayload) PayloadType() string { return TypeAsk }

// FactPayload asserts a slot value for a conversation.
type FactPayload struct {
	Slot      string `json:"slot"`
	Value     any    `json:"value"`
	Source    string `json:"source,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (FactPayload) PayloadType() string { return TypeFact }

// AckPayload acknowledges a request, echoing what was received.
type AckPayload struct {
	Echo map[string]any `json:"echo"`
}

func (AckPayload) PayloadType() string { return TypeAck }

// OfferPayload carries a scored trip offer.
type OfferPayload struct {
	Provider string         `json:"provider"`
	Offer    map[string]any `json:"offer"`
	Score    float64        `json:"score,omitempty"`
}

func (OfferPayload) PayloadType() string { return TypeOffer }

// ConfirmPayload confirms that a slot was accepted and persisted.
type ConfirmPayload struct {
	Slot   string `json:"slot"`
	Status string `json:"status"`
}

func (ConfirmPayload) PayloadType() string { return TypeConfirm }

// ErrorPayload describes a failure; it travels only under FAILURE.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func (ErrorPayload) PayloadType() string { return TypeError }

// ProvidesEntry declares one ontology and the payload types served in it.
type ProvidesEntry struct {
	Ontology string   `json:"ontology"`
	Types    []string `json:"types"`
}

// CapabilityPayload announces the capabilities of a provider agent.
type CapabilityPayload struct {
	Provides []ProvidesEntry `json:"provides"`
	Agent    string          `json:"agent,omitempty"`
}

func (CapabilityPayload) PayloadType() string { return TypeCapability }

// UserMsgPayload carries a free-text user utterance from the chat bridge.
type UserMsgPayload struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

func (UserMsgPayload) PayloadType() string { return TypeUserMsg }

// PresenterReplyPayload carries the assistant's reply text back to the user.
type PresenterReplyPayload struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

func (PresenterReplyPayload) PayloadType() string { return TypePresenterReply }

// WeatherNote is a human-readable weather summary.
type WeatherNote struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// WeatherAdvicePayload is both the request (Place/Days set) and the reply
// (Note/Meta set) of the weather advice exchange.
type WeatherAdvicePayload struct {
	Place string         `json:"place,omitempty"`
	Days  int            `json:"days,omitempty"`
	Lang  string         `json:"lang,omitempty"`
	Units string         `json:"units,omitempty"`
	Note  *WeatherNote   `json:"note,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Err   string         `json:"error,omitempty"`
}

func (WeatherAdvicePayload) PayloadType() string { return TypeWeatherAdvice }

// MetricsExportPayload asks the receiver to dump its counters to the KB.
type MetricsExportPayload struct{}

func (MetricsExportPayload) PayloadType() string { return TypeMetricsExport }

// MapPayload is an untyped payload kept for backward compatibility with
// senders that omit the "type" discriminator. If the map carries a "type"
// string it is reported as the payload type.
type MapPayload map[string]any

func (m MapPayload) PayloadType() string {
	if t, ok := m["type"].(string); ok {
		return t
	}
	return ""
}
