// Package transport maps envelopes onto raw carrier messages and provides
// the in-process broker agents exchange them through. The envelope body is
// authoritative; transport metadata and the thread identifier are advisory
// mirrors kept for interop with carriers that route on them.
package transport

import (
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
)

// Metadata keys mirrored from the envelope onto the carrier message.
const (
	MetaPerformative = "performative"
	MetaOntology     = "ontology"
	MetaLanguage     = "language"
)

// ErrReceiveTimeout is returned by Mailbox.Receive when no message arrives
// within the receive window. It signals an empty tick, not a failure.
var ErrReceiveTimeout = errors.New("transport: receive timeout")

// Raw is one carrier message: an opaque body plus addressing and metadata.
type Raw struct {
	Body     []byte
	Sender   string
	To       string
	Thread   string
	Metadata map[string]string
}

// NewRaw wraps an envelope for sending: the body is the canonical JSON
// encoding, the thread mirrors the conversation id, and performative,
// ontology and language are copied into metadata.
func NewRaw(env *acl.Envelope, to, from string) (*Raw, error) {
	body, err := env.Encode()
	if err != nil {
		return nil, err
	}
	return &Raw{
		Body:   body,
		Sender: from,
		To:     to,
		Thread: env.ConversationID,
		Metadata: map[string]string{
			MetaPerformative: string(env.Performative),
			MetaOntology:     env.Ontology,
			MetaLanguage:     env.Language,
		},
	}, nil
}

// MetaLanguageIsJSON checks the carrier-level language tag. Absent metadata
// passes; an explicit tag must be "json" (case-insensitive). Callers drop
// messages that fail this guard without replying.
func (r *Raw) MetaLanguageIsJSON() bool {
	if r.Metadata == nil {
		return true
	}
	lang, ok := r.Metadata[MetaLanguage]
	if !ok || lang == "" {
		return true
	}
	return strings.EqualFold(lang, acl.LanguageJSON)
}

// ReconcileConversation resolves the body's conversation id against the
// carrier thread. A body without a conversation id inherits the thread; when
// both are present and diverge the body wins and the divergence is logged.
// The returned bytes are safe to hand to acl.Validate.
func ReconcileConversation(r *Raw, logger *zap.Logger) []byte {
	if logger == nil {
		logger = zap.NewNop()
	}
	if r.Thread == "" {
		return r.Body
	}
	var fields map[string]any
	if err := json.Unmarshal(r.Body, &fields); err != nil {
		return r.Body
	}
	conv, _ := fields["conversation_id"].(string)
	switch {
	case conv == "":
		fields["conversation_id"] = r.Thread
	case conv != r.Thread:
		logger.Warn("conversation id diverges from carrier thread",
			zap.String("conversation_id", conv),
			zap.String("thread", r.Thread),
			zap.String("sender", r.Sender))
		return r.Body
	default:
		return r.Body
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return r.Body
	}
	return merged
}

// FallbackConversationID picks the reply address for an unparseable message:
// the carrier thread when present, otherwise the shared fallback constant.
func (r *Raw) FallbackConversationID() string {
	if r.Thread != "" {
		return r.Thread
	}
	return acl.FallbackConversationID
}
