package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wet-coach-go/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "test-model"})
}

func TestStreamChatMessages_WritesDeltasUntilDone(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"I feel", " okay", " today"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	})

	var b strings.Builder
	err := c.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil,
		ChunkWriterFunc(func(s string) error { b.WriteString(s); return nil }))
	require.NoError(t, err)
	assert.Equal(t, "I feel okay today", b.String())
	assert.True(t, got.Stream)
	assert.Equal(t, "test-model", got.Model)
}

func TestStreamChatMessages_SkipsMalformedLines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}")
	})

	var b strings.Builder
	err := c.StreamChatMessages(context.Background(), nil, nil,
		ChunkWriterFunc(func(s string) error { b.WriteString(s); return nil }))
	require.NoError(t, err)
	assert.Equal(t, "ok", b.String())
}

func TestStreamChatMessages_WriterErrorStopsStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
	})

	boom := errors.New("client gone")
	err := c.StreamChatMessages(context.Background(), nil, nil,
		ChunkWriterFunc(func(string) error { return boom }))
	require.ErrorIs(t, err, boom)
}

func TestComplete_ReturnsFirstChoice(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"title\":\"x\"}"}}]}`))
	})

	temp := 0.2
	out, err := c.Complete(context.Background(), []Message{{Role: "system", Content: "s"}},
		&GenerationParams{Temperature: &temp, JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"x"}`, out)
	assert.False(t, got.Stream)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
}

func TestComplete_NonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})

	_, err := c.Complete(context.Background(), nil, nil)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "slow down", statusErr.Body)
}

func TestComplete_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := c.Complete(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNoChoices)
}

func TestDefaultParams_OmitsZeroValues(t *testing.T) {
	gp := DefaultParams(config.LLMConfig{Generation: config.LLMGenerationConfig{MaxTokens: 256}})
	assert.Nil(t, gp.Temperature)
	assert.Nil(t, gp.TopP)
	require.NotNil(t, gp.MaxTokens)
	assert.Equal(t, 256, *gp.MaxTokens)
}
