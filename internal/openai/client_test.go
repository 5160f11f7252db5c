package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(reply string) string {
	return `{
		"choices": [{"message": {"content": "` + reply + `"}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
	}`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "test-model",
		MaxRetries: 2,
	})
}

func Test_Client_Complete(t *testing.T) {
	t.Parallel()

	t.Run("successful completion", func(t *testing.T) {
		var gotRequest chatRequest
		var gotAuth string

		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
			_, _ = w.Write([]byte(completionBody("the answer")))
		})

		completion, err := client.Complete(t.Context(), []Message{
			{Role: "system", Content: "be helpful"},
			{Role: "user", Content: "question"},
		})
		require.NoError(t, err)

		assert.Equal(t, "the answer", completion.Reply)
		assert.Equal(t, 19, completion.Usage.TotalTokens)

		assert.Equal(t, "Bearer test-key", gotAuth)
		assert.Equal(t, "test-model", gotRequest.Model)
		require.Len(t, gotRequest.Messages, 2)
		assert.Equal(t, "be helpful", gotRequest.Messages[0].Content)
	})

	t.Run("image message encodes as multimodal parts", func(t *testing.T) {
		var raw map[string]any
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			_, _ = w.Write([]byte(completionBody("a cat")))
		})

		_, err := client.Complete(t.Context(), []Message{
			{Role: "user", Content: "what is this?", ImageDataURL: "data:image/jpeg;base64,AAAA"},
		})
		require.NoError(t, err)

		messages := raw["messages"].([]any)
		parts := messages[0].(map[string]any)["content"].([]any)
		require.Len(t, parts, 2)
		assert.Equal(t, "text", parts[0].(map[string]any)["type"])
		assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
	})

	t.Run("retries 503 until the service recovers", func(t *testing.T) {
		var calls int
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(completionBody("recovered")))
		})

		completion, err := client.Complete(t.Context(), []Message{{Role: "user", Content: "hi"}})
		require.NoError(t, err)
		assert.Equal(t, "recovered", completion.Reply)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		var calls int
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.Complete(t.Context(), []Message{{Role: "user", Content: "hi"}})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.Equal(t, 3, calls, "initial attempt plus two retries")
	})

	t.Run("429 is not retried and carries Retry-After", func(t *testing.T) {
		var calls int
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "rate limited"}}`))
		})

		_, err := client.Complete(t.Context(), []Message{{Role: "user", Content: "hi"}})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, "rate limited", apiErr.Message)
		assert.Equal(t, 30*time.Second, apiErr.RetryAfter)
		assert.Equal(t, 1, calls)
	})

	t.Run("400 surfaces the upstream message without retry", func(t *testing.T) {
		var calls int
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": {"message": "content policy"}}`))
		})

		_, err := client.Complete(t.Context(), []Message{{Role: "user", Content: "hi"}})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "content policy", apiErr.Message)
		assert.Equal(t, 1, calls)
	})

	t.Run("non json error body is used verbatim", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream exploded"))
		})

		_, err := client.Complete(t.Context(), []Message{{Role: "user", Content: "hi"}})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "upstream exploded", apiErr.Message)
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices": [], "usage": {}}`))
		})

		_, err := client.Complete(t.Context(), []Message{{Role: "user", Content: "hi"}})
		require.Error(t, err)
	})
}

func Test_Client_Defaults(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{APIKey: "key"})

	assert.Equal(t, defaultBaseURL, client.baseURL)
	assert.Equal(t, defaultModel, client.model)
	assert.Equal(t, defaultMaxRetries, client.maxRetries)
	assert.Equal(t, defaultTimeout, client.httpClient.Timeout)
}
