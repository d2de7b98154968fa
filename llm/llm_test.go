package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenAIClientDisabledWithoutKey(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{}, zap.NewNop())
	assert.False(t, client.Enabled())

	_, err := client.Generate(context.Background(), "sys", "user")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestOpenAIClientGenerate(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  hello there \n"}},
			},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"}, zap.NewNop())
	out, err := client.Generate(context.Background(), "be brief", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
}

func TestOpenAIClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited"},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"}, zap.NewNop())
	_, err := client.Generate(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestExtractParsesStrictJSON(t *testing.T) {
	gen := GeneratorFunc(func(_ context.Context, _, _ string) (string, error) {
		return `{"extracted":{
			"budget_total":{"value":"2500 PLN","confidence":1.4,"raw_span":"2500 zl"},
			"favourite_color":{"value":"blue","confidence":0.9,"raw_span":"blue"}
		},"missing":["nights"],"notes":"ok"}`, nil
	})
	x := NewExtractor(gen)

	out := x.Extract(context.Background(), "sess-1", "trip for 2500 zl", "", []string{"budget_total", "nights"})
	require.Contains(t, out.Extracted, "budget_total")
	assert.NotContains(t, out.Extracted, "favourite_color", "unrequested slots are dropped")
	assert.Equal(t, 1.0, out.Extracted["budget_total"].Confidence, "confidence clamps to [0,1]")
	assert.Equal(t, []string{"nights"}, out.Missing)
	assert.Equal(t, "ok", out.Notes)
}

func TestExtractDegradesOnModelFailure(t *testing.T) {
	wanted := []string{"budget_total", "nights"}

	errGen := GeneratorFunc(func(_ context.Context, _, _ string) (string, error) {
		return "", errors.New("boom")
	})
	out := NewExtractor(errGen).Extract(context.Background(), "s", "text", "", wanted)
	assert.Empty(t, out.Extracted)
	assert.Equal(t, wanted, out.Missing)

	junkGen := GeneratorFunc(func(_ context.Context, _, _ string) (string, error) {
		return "sure! here is your JSON:", nil
	})
	out = NewExtractor(junkGen).Extract(context.Background(), "s", "text", "", wanted)
	assert.Equal(t, wanted, out.Missing)
	assert.Equal(t, "parse error", out.Notes)
}

func TestExtractWithoutGenerator(t *testing.T) {
	out := NewExtractor(nil).Extract(context.Background(), "s", "text", "", []string{"nights"})
	assert.Equal(t, []string{"nights"}, out.Missing)
	assert.Equal(t, "llm disabled", out.Notes)
}
