package acl

import (
	"sort"
	"strings"
	"time"
)

// SchemaVersion is the current envelope schema version. Informational only;
// receivers do not reject on mismatch.
const SchemaVersion = "1.0.0"

// DefaultOntology tags envelopes with no explicit domain.
const DefaultOntology = "default"

// LanguageJSON is the only content encoding the system understands.
const LanguageJSON = "json"

// Performative is the pragmatic-intent tag of an envelope, akin to a
// FIPA-ACL speech-act type.
type Performative string

const (
	Request Performative = "REQUEST"
	Inform  Performative = "INFORM"
	Failure Performative = "FAILURE"
	Refuse  Performative = "REFUSE"
	Agree   Performative = "AGREE"
	Confirm Performative = "CONFIRM"
)

// IsValid reports whether p is a known performative.
func (p Performative) IsValid() bool {
	switch p {
	case Request, Inform, Failure, Refuse, Agree, Confirm:
		return true
	default:
		return false
	}
}

func (p Performative) String() string { return string(p) }

// Envelope is the typed message unit exchanged between agents. It is
// constructed once, validated at construction, and immutable thereafter.
type Envelope struct {
	Performative   Performative
	ConversationID string
	Ontology       string
	Language       string
	Payload        Payload
	SchemaVersion  string
	TS             string
}

// Option adjusts optional envelope fields at construction time.
type Option func(*Envelope)

// WithOntology sets the domain ontology tag.
func WithOntology(ontology string) Option {
	return func(e *Envelope) { e.Ontology = ontology }
}

// WithLanguage sets the content-encoding tag.
func WithLanguage(language string) Option {
	return func(e *Envelope) { e.Language = language }
}

// New builds and validates an envelope. All named constructors funnel
// through here so that invariant violations fail identically regardless of
// the construction path.
func New(perf Performative, conversationID string, payload Payload, opts ...Option) (*Envelope, error) {
	e := &Envelope{
		Performative:   perf,
		ConversationID: conversationID,
		Ontology:       DefaultOntology,
		Language:       LanguageJSON,
		Payload:        payload,
		SchemaVersion:  SchemaVersion,
		TS:             time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Envelope) validate() error {
	if !e.Performative.IsValid() {
		return NewValidationError("unknown performative").
			WithDetail("performative", string(e.Performative))
	}
	if e.ConversationID == "" || strings.TrimSpace(e.ConversationID) != e.ConversationID {
		return NewValidationError("conversation_id must be non-empty and trimmed").
			WithDetail("conversation_id", e.ConversationID)
	}
	if e.Ontology == "" {
		return NewValidationError("ontology must be non-empty")
	}
	if e.Language == "" {
		return NewValidationError("language must be non-empty")
	}
	ptype := ""
	if e.Payload != nil {
		ptype = e.Payload.PayloadType()
	}
	if !performativeAllowed(e.Performative, ptype) {
		verr := NewValidationError("performative not allowed for payload type").
			WithDetail("performative", string(e.Performative)).
			WithDetail("payload_type", ptype)
		if allowed, ok := allowedPerformatives[ptype]; ok {
			names := make([]string, 0, len(allowed))
			for _, p := range allowed {
				names = append(names, string(p))
			}
			sort.Strings(names)
			verr = verr.WithDetail("allowed", names)
		}
		return verr
	}
	return nil
}

// PayloadType returns the payload discriminator, empty when the envelope
// carries an untyped payload.
func (e *Envelope) PayloadType() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.PayloadType()
}

// LanguageIsJSON reports whether the envelope's own language tag is "json"
// (case-insensitive). Unlike the transport-metadata guard, an envelope always
// has an explicit language, so there is no missing-value leniency here.
func (e *Envelope) LanguageIsJSON() bool {
	return strings.EqualFold(e.Language, LanguageJSON)
}

// SessionID extracts the end-user session identity from payload types that
// carry one. Empty when the payload has no session affinity.
func (e *Envelope) SessionID() string {
	switch p := e.Payload.(type) {
	case PingPayload:
		return p.SessionID
	case AskPayload:
		return p.SessionID
	case FactPayload:
		return p.SessionID
	case UserMsgPayload:
		return p.SessionID
	case PresenterReplyPayload:
		return p.SessionID
	case MapPayload:
		if s, ok := p["session_id"].(string); ok {
			return s
		}
	}
	return ""
}

// ===== Named constructors =====

// NewRequest builds a REQUEST envelope around an arbitrary payload.
func NewRequest(conversationID string, payload Payload, opts ...Option) (*Envelope, error) {
	return New(Request, conversationID, payload, opts...)
}

// NewInform builds an INFORM envelope around an arbitrary payload.
func NewInform(conversationID string, payload Payload, opts ...Option) (*Envelope, error) {
	return New(Inform, conversationID, payload, opts...)
}

// NewFailure builds a FAILURE/ERROR envelope. Code and message are required.
func NewFailure(conversationID string, code ErrorCode, message string, details map[string]any, opts ...Option) (*Envelope, error) {
	if code == "" {
		return nil, NewValidationError("ERROR payload requires a code")
	}
	if message == "" {
		message = ErrorMessages[code]
	}
	if message == "" {
		return nil, NewValidationError("ERROR payload requires a message")
	}
	if details == nil {
		details = map[string]any{}
	}
	return New(Failure, conversationID, ErrorPayload{
		Code:    string(code),
		Message: message,
		Details: details,
	}, opts...)
}

// NewPing builds the REQUEST/PING handshake probe.
func NewPing(conversationID string, opts ...Option) (*Envelope, error) {
	return New(Request, conversationID, PingPayload{}, opts...)
}

// NewAsk builds a REQUEST/ASK. The need list must be non-empty and free of
// duplicates.
func NewAsk(conversationID string, need []string, opts ...Option) (*Envelope, error) {
	if len(need) == 0 {
		return nil, NewValidationError("ASK.need must be non-empty")
	}
	seen := make(map[string]struct{}, len(need))
	for _, n := range need {
		if _, dup := seen[n]; dup {
			return nil, NewValidationError("ASK.need must not contain duplicates").
				WithDetail("duplicate", n)
		}
		seen[n] = struct{}{}
	}
	return New(Request, conversationID, AskPayload{Need: need}, opts...)
}

// NewFact builds an INFORM/FACT. The slot name must be non-blank.
func NewFact(conversationID, slot string, value any, opts ...Option) (*Envelope, error) {
	if strings.TrimSpace(slot) == "" {
		return nil, NewValidationError("FACT.slot must be non-empty")
	}
	return New(Inform, conversationID, FactPayload{Slot: slot, Value: value}, opts...)
}

// NewAck builds an INFORM/ACK echoing the received payload.
func NewAck(conversationID string, echo map[string]any, opts ...Option) (*Envelope, error) {
	if echo == nil {
		echo = map[string]any{}
	}
	return New(Inform, conversationID, AckPayload{Echo: echo}, opts...)
}

// NewConfirmSlot builds an INFORM/CONFIRM for a persisted slot.
func NewConfirmSlot(conversationID, slot, status string, opts ...Option) (*Envelope, error) {
	if strings.TrimSpace(slot) == "" {
		return nil, NewValidationError("CONFIRM.slot must be non-empty")
	}
	return New(Inform, conversationID, ConfirmPayload{Slot: slot, Status: status}, opts...)
}

// NewUserMsg builds a REQUEST/USER_MSG in the "ui" ontology.
func NewUserMsg(conversationID, text, sessionID string, opts ...Option) (*Envelope, error) {
	base := []Option{WithOntology("ui")}
	return New(Request, conversationID, UserMsgPayload{Text: text, SessionID: sessionID},
		append(base, opts...)...)
}

// NewPresenterReply builds an INFORM/PRESENTER_REPLY in the "ui" ontology.
func NewPresenterReply(conversationID, text, sessionID string, opts ...Option) (*Envelope, error) {
	base := []Option{WithOntology("ui")}
	return New(Inform, conversationID, PresenterReplyPayload{Text: text, SessionID: sessionID},
		append(base, opts...)...)
}

// NewCapability builds the INFORM/CAPABILITY announcement sent to the
// registry, in the "system" ontology.
func NewCapability(conversationID string, provides []ProvidesEntry, opts ...Option) (*Envelope, error) {
	if len(provides) == 0 {
		return nil, NewValidationError("CAPABILITY.provides must be non-empty")
	}
	base := []Option{WithOntology("system")}
	return New(Inform, conversationID, CapabilityPayload{Provides: provides},
		append(base, opts...)...)
}

// NewMetricsExport builds the REQUEST/METRICS_EXPORT in the "system"
// ontology.
func NewMetricsExport(conversationID string, opts ...Option) (*Envelope, error) {
	base := []Option{WithOntology("system")}
	return New(Request, conversationID, MetricsExportPayload{}, append(base, opts...)...)
}

// NewOffer builds an INFORM/OFFER with a scored trip proposal.
func NewOffer(conversationID, provider string, offer map[string]any, score float64, opts ...Option) (*Envelope, error) {
	if provider == "" {
		return nil, NewValidationError("OFFER.provider must be non-empty")
	}
	return New(Inform, conversationID, OfferPayload{Provider: provider, Offer: offer, Score: score}, opts...)
}
