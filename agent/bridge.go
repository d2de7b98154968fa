package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voyagent/voyagent/acl"
)

// Bridge is the chat-facing gateway: it opens a fresh conversation per user
// message, forwards it to the presenter as REQUEST/USER_MSG, and hands the
// PRESENTER_REPLY text back to the caller.
type Bridge struct {
	rt            *Runtime
	presenterAddr string
}

// NewBridge builds the bridge agent.
func NewBridge(name, presenterAddr string, opts Options) *Bridge {
	b := &Bridge{presenterAddr: presenterAddr}
	b.rt = NewRuntime(name, b, opts)
	return b
}

// Runtime exposes the runtime for supervision.
func (b *Bridge) Runtime() *Runtime { return b.rt }

// HandleEnvelope implements Handler. The bridge only ever waits for
// correlated replies; anything unsolicited is logged and dropped.
func (b *Bridge) HandleEnvelope(_ context.Context, env *acl.Envelope, from string) error {
	b.rt.Logger().Debug("unsolicited message",
		zap.String("from", from),
		zap.String("payload_type", env.PayloadType()))
	return nil
}

// Submit sends one user utterance through the system and returns the
// assistant's reply text.
func (b *Bridge) Submit(ctx context.Context, sessionID, text string) (string, error) {
	conversationID := "web-" + uuid.NewString()
	env, err := acl.NewUserMsg(conversationID, text, sessionID)
	if err != nil {
		return "", err
	}
	reply, err := b.rt.Request(ctx, b.presenterAddr, env)
	if err != nil {
		return "", err
	}
	switch p := reply.Payload.(type) {
	case acl.PresenterReplyPayload:
		return p.Text, nil
	case acl.ErrorPayload:
		return "", fmt.Errorf("bridge: %s: %s", p.Code, p.Message)
	default:
		return "", fmt.Errorf("bridge: unexpected reply %s/%s", reply.Performative, reply.PayloadType())
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

// ChatHandler exposes Submit over HTTP: POST {"session_id","text"} ->
// {"reply"}.
func (b *Bridge) ChatHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}
		w.Header().Set("Content-Type", "application/json")
		reply, err := b.Submit(r.Context(), req.SessionID, req.Text)
		if err != nil {
			b.rt.Logger().Warn("chat request failed", zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(chatResponse{Error: err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Reply: reply})
	})
}
