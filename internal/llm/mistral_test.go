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
)

func newTestMistral(t *testing.T, handler http.HandlerFunc) *MistralProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewMistralProvider("mk-test")
	p.baseURL = srv.URL
	return p
}

func TestMistralExecute(t *testing.T) {
	var gotReq mistralChatReq
	var gotAuth string

	p := newTestMistral(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"model": "mistral-small-latest",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "bonjour"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150},
		})
	})

	res, err := p.Execute(context.Background(), "say hello", "mistral-small-latest", Options{})
	require.NoError(t, err)

	assert.Equal(t, "Bearer mk-test", gotAuth)
	assert.Equal(t, "mistral-small-latest", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "say hello", gotReq.Messages[0].Content)

	// Options default when unset.
	assert.InDelta(t, 0.7, gotReq.Temperature, 1e-9)
	assert.Equal(t, 1000, gotReq.MaxTokens)

	assert.Equal(t, "bonjour", res.Text)
	assert.Equal(t, 100, res.PromptTokens)
	assert.Equal(t, 50, res.CompletionTokens)
	assert.Equal(t, 150, res.TotalTokens)
	// 100 in @ $1/M + 50 out @ $3/M.
	assert.InDelta(t, 0.00025, res.Cost, 1e-9)
	assert.Equal(t, "stop", res.Metadata["finish_reason"])
}

func TestMistralExecuteZeroTemperatureSent(t *testing.T) {
	var gotBody map[string]any

	p := newTestMistral(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"model": "mistral-tiny",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ok"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	})

	zero := 0.0
	_, err := p.Execute(context.Background(), "hi", "mistral-tiny", Options{Temperature: &zero})
	require.NoError(t, err)

	// The explicit 0 goes over the wire instead of the 0.7 default.
	temp, ok := gotBody["temperature"]
	require.True(t, ok, "temperature must be present in the request body")
	assert.Zero(t, temp)
}

func TestMistralExecuteAPIError(t *testing.T) {
	p := newTestMistral(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api key"}`))
	})

	_, err := p.Execute(context.Background(), "hi", "mistral-tiny", Options{})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Mistral", pe.Provider)
	assert.Contains(t, pe.Error(), "status 401")
}

func TestMistralExecuteContextCanceled(t *testing.T) {
	p := newTestMistral(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Execute(ctx, "hi", "mistral-tiny", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMistralExecuteEmptyChoices(t *testing.T) {
	p := newTestMistral(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "mistral-tiny",
			"choices": []any{},
			"usage":   map[string]int{"prompt_tokens": 5, "completion_tokens": 0, "total_tokens": 5},
		})
	})

	res, err := p.Execute(context.Background(), "hi", "mistral-tiny", Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Equal(t, 5, res.TotalTokens)
}
