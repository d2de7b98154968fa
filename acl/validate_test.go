package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedBody(t *testing.T) {
	env, err := NewAsk("conv-1", []string{"place"})
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)

	ok, out := Validate(data, "conv-bad")
	assert.True(t, ok)
	require.NotNil(t, out)
	assert.Equal(t, "conv-1", out.ConversationID)
	assert.Equal(t, TypeAsk, out.PayloadType())
}

func TestValidateRepliesFailureOnMalformedJSON(t *testing.T) {
	ok, reply := Validate([]byte("{not-json"), "conv-bad")
	assert.False(t, ok)
	require.NotNil(t, reply)
	assert.Equal(t, Failure, reply.Performative)
	assert.Equal(t, "conv-bad", reply.ConversationID)

	p, isErr := reply.Payload.(ErrorPayload)
	require.True(t, isErr)
	assert.Equal(t, string(ErrValidation), p.Code)
	assert.NotEmpty(t, p.Details["err"])
}

func TestValidateRepliesFailureOnInvariantViolation(t *testing.T) {
	body := []byte(`{"performative":"REQUEST","conversation_id":"conv-7","payload":{"type":"FACT","slot":"place","value":"Rome"}}`)
	ok, reply := Validate(body, "conv-bad")
	assert.False(t, ok)
	require.NotNil(t, reply)
	assert.Equal(t, Failure, reply.Performative)

	p := reply.Payload.(ErrorPayload)
	assert.Equal(t, "FACT", p.Details["payload_type"])
}

func TestValidateUsesFallbackConstantWhenNoIDGiven(t *testing.T) {
	ok, reply := Validate([]byte("not even close"), "")
	assert.False(t, ok)
	require.NotNil(t, reply)
	assert.Equal(t, FallbackConversationID, reply.ConversationID)
}
