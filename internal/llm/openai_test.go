package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, body string, capture *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if capture != nil {
			data, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(data, capture))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const chatOK = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "deepseek-ai/DeepSeek-V3.1",
  "choices": [{
    "index": 0,
    "message": {"role": "assistant", "content": "{\"answer\": \"张一鸣\", \"confidence\": 0.9}"},
    "finish_reason": "stop"
  }]
}`

func TestOpenAIClient_Generate(t *testing.T) {
	var body map[string]interface{}
	srv := chatServer(t, http.StatusOK, chatOK, &body)

	c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1/"})
	out, err := c.Generate(context.Background(), ChatRequest{
		SystemPrompt: SystemPrompt,
		Prompt:       "字节跳动的最大股东是谁？",
		Temperature:  0.1,
		MaxTokens:    1000,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"answer": "张一鸣", "confidence": 0.9}`, out)

	assert.Equal(t, DefaultModel, body["model"])
	assert.EqualValues(t, 1000, body["max_tokens"])
	assert.InDelta(t, 0.1, body["temperature"], 1e-6)

	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "user", messages[1].(map[string]interface{})["role"])
	assert.Equal(t, "字节跳动的最大股东是谁？", messages[1].(map[string]interface{})["content"])
}

func TestOpenAIClient_NoSystemPrompt(t *testing.T) {
	var body map[string]interface{}
	srv := chatServer(t, http.StatusOK, chatOK, &body)

	c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"})
	_, err := c.Generate(context.Background(), ChatRequest{Prompt: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Len(t, body["messages"], 1)
}

func TestOpenAIClient_ServerError(t *testing.T) {
	srv := chatServer(t, http.StatusInternalServerError,
		`{"error": {"message": "upstream overloaded", "type": "server_error"}}`, nil)

	c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	_, err := c.Generate(context.Background(), ChatRequest{Prompt: "hi"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream overloaded")
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"id": "x", "object": "chat.completion", "choices": []}`, nil)

	c := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	_, err := c.Generate(context.Background(), ChatRequest{Prompt: "hi"})

	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

// TestClient_OverHTTP runs the full client stack against a failing server
// and checks the caller still gets a decodable fallback payload.
func TestClient_OverHTTP(t *testing.T) {
	srv := chatServer(t, http.StatusBadGateway, `{"error": {"message": "bad gateway"}}`, nil)

	c := NewClient(NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"}), ClientConfig{}, nil)
	_, err := DecodeAnswer(c.Complete(context.Background(), "q"))

	kind, ok := ParseErrorKindOf(err)
	require.True(t, ok)
	assert.Equal(t, ParseServiceFailure, kind)
}

func TestNewTextGenerator(t *testing.T) {
	gen, err := NewTextGenerator(ProviderConfig{Provider: "openai", APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", gen.GetModel())

	gen, err = NewTextGenerator(ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, gen.GetModel())

	gen, err = NewTextGenerator(ProviderConfig{Provider: "Ollama"})
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaModel, gen.GetModel())
	assert.Equal(t, DefaultOllamaBaseURL, gen.(*OpenAIClient).cfg.BaseURL)

	_, err = NewTextGenerator(ProviderConfig{Provider: "anthropic"})
	assert.Error(t, err)
}

func TestBuildPrompts(t *testing.T) {
	intent := BuildIntentPrompt("字节跳动的最大股东是谁？")
	assert.Contains(t, intent, "字节跳动的最大股东是谁？")
	assert.Contains(t, intent, "control_chain")

	answer := BuildAnswerPrompt(AnswerContext{
		Query:     "q",
		Entity:    "字节跳动",
		QueryType: "shareholder",
		Steps:     []string{"Step 1: intent identified", "Step 2: graph query found 2 paths"},
		Paths:     []PathLine{{Reasoning: "字节跳动 -> HOLDS (20.2%) -> 张一鸣", Confidence: 1}},
	})
	assert.Contains(t, answer, "Step 2: graph query found 2 paths")
	assert.Contains(t, answer, "Path 1: 字节跳动 -> HOLDS (20.2%) -> 张一鸣 (confidence: 1.00)")
	assert.Contains(t, answer, `"confidence"`)
}
