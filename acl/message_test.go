package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	env, err := New(Request, "conv-1", PingPayload{})
	require.NoError(t, err)

	assert.Equal(t, Request, env.Performative)
	assert.Equal(t, "conv-1", env.ConversationID)
	assert.Equal(t, DefaultOntology, env.Ontology)
	assert.Equal(t, LanguageJSON, env.Language)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.NotEmpty(t, env.TS)
	assert.Equal(t, TypePing, env.PayloadType())
}

func TestNewRejectsUnknownPerformative(t *testing.T) {
	_, err := New(Performative("SHOUT"), "conv-1", PingPayload{})
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, ErrValidation, verr.Code)
	assert.Equal(t, "SHOUT", verr.Details["performative"])
}

func TestNewRejectsBadConversationID(t *testing.T) {
	for _, conv := range []string{"", "  ", " conv-1", "conv-1 "} {
		_, err := New(Request, conv, PingPayload{})
		assert.Error(t, err, "conversation_id %q should be rejected", conv)
	}
}

func TestPerformativePayloadConsistency(t *testing.T) {
	cases := []struct {
		name    string
		perf    Performative
		payload Payload
		ok      bool
	}{
		{"ping under request", Request, PingPayload{}, true},
		{"ping under inform", Inform, PingPayload{}, false},
		{"fact under inform", Inform, FactPayload{Slot: "place", Value: "Rome"}, true},
		{"fact under request", Request, FactPayload{Slot: "place", Value: "Rome"}, false},
		{"error under failure", Failure, ErrorPayload{Code: "UNKNOWN", Message: "x"}, true},
		{"error under inform", Inform, ErrorPayload{Code: "UNKNOWN", Message: "x"}, false},
		{"fact under failure", Failure, FactPayload{Slot: "place", Value: "Rome"}, false},
		{"weather advice under request", Request, WeatherAdvicePayload{Place: "Rome", Days: 3}, true},
		{"weather advice under inform", Inform, WeatherAdvicePayload{Place: "Rome", Days: 3}, true},
		{"untyped payload under any performative", Agree, MapPayload{"free": "form"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.perf, "conv-1", tc.payload)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConsistencyErrorListsAllowedPerformatives(t *testing.T) {
	_, err := New(Request, "conv-1", FactPayload{Slot: "place", Value: "Rome"})
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, TypeFact, verr.Details["payload_type"])
	assert.Equal(t, []string{"INFORM"}, verr.Details["allowed"])
}

func TestNewAsk(t *testing.T) {
	env, err := NewAsk("conv-1", []string{"place", "nights"})
	require.NoError(t, err)
	assert.Equal(t, Request, env.Performative)

	_, err = NewAsk("conv-1", nil)
	assert.Error(t, err)

	_, err = NewAsk("conv-1", []string{"place", "place"})
	require.Error(t, err)
	verr := err.(*ValidationError)
	assert.Equal(t, "place", verr.Details["duplicate"])
}

func TestNewFact(t *testing.T) {
	env, err := NewFact("conv-1", "budget_total", 2500)
	require.NoError(t, err)
	assert.Equal(t, Inform, env.Performative)

	_, err = NewFact("conv-1", "   ", 2500)
	assert.Error(t, err)
}

func TestNewFailureDefaultsMessageFromCode(t *testing.T) {
	env, err := NewFailure("conv-1", ErrBodyTooLarge, "", nil)
	require.NoError(t, err)

	p, ok := env.Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Equal(t, "BODY_TOO_LARGE", p.Code)
	assert.Equal(t, ErrorMessages[ErrBodyTooLarge], p.Message)
	assert.NotNil(t, p.Details)

	_, err = NewFailure("conv-1", "", "", nil)
	assert.Error(t, err)
}

func TestNewCapability(t *testing.T) {
	env, err := NewCapability("conv-1", []ProvidesEntry{
		{Ontology: "travel", Types: []string{TypeWeatherAdvice}},
	})
	require.NoError(t, err)
	assert.Equal(t, "system", env.Ontology)

	_, err = NewCapability("conv-1", nil)
	assert.Error(t, err)
}

func TestUIConstructorsSetOntology(t *testing.T) {
	um, err := NewUserMsg("conv-1", "3 days in Rome", "sess-9")
	require.NoError(t, err)
	assert.Equal(t, "ui", um.Ontology)
	assert.Equal(t, "sess-9", um.SessionID())

	pr, err := NewPresenterReply("conv-1", "Here is your plan", "sess-9")
	require.NoError(t, err)
	assert.Equal(t, "ui", pr.Ontology)
	assert.Equal(t, "sess-9", pr.SessionID())
}

func TestLanguageIsJSON(t *testing.T) {
	env, err := New(Request, "conv-1", PingPayload{}, WithLanguage("JSON"))
	require.NoError(t, err)
	assert.True(t, env.LanguageIsJSON())

	env, err = New(Request, "conv-1", PingPayload{}, WithLanguage("xml"))
	require.NoError(t, err)
	assert.False(t, env.LanguageIsJSON())
}

func TestSessionIDFromUntypedPayload(t *testing.T) {
	env, err := New(Inform, "conv-1", MapPayload{"session_id": "sess-3", "note": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "sess-3", env.SessionID())
}
