// Package llm provides a client for OpenAI-compatible chat completion endpoints.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wet-coach-go/internal/config"
)

// ChunkWriter receives streamed text deltas in arrival order.
type ChunkWriter interface {
	WriteChunk(text string) error
}

// ChunkWriterFunc adapts a plain function to ChunkWriter.
type ChunkWriterFunc func(text string) error

func (f ChunkWriterFunc) WriteChunk(text string) error { return f(text) }

// Client defines the interface for an LLM client.
type Client interface {
	// StreamChatMessages 以 role-based 消息调用聊天接口，并将流式分块按顺序写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer ChunkWriter) error
	// Complete 发起一次非流式调用，返回完整文本。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client for the given endpoint config.
func NewClient(cfg config.LLMConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	JSONMode    bool
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chat api returned non-200 status %d: %s", e.StatusCode, e.Body)
}

// ErrNoChoices is returned when a completion response carries no choices.
var ErrNoChoices = errors.New("chat api returned no choices")

// DefaultParams 根据配置构建生成参数，零值字段不下发。
func DefaultParams(cfg config.LLMConfig) *GenerationParams {
	gp := &GenerationParams{JSONMode: cfg.JSONMode}
	if cfg.Generation.Temperature != 0 {
		t := cfg.Generation.Temperature
		gp.Temperature = &t
	}
	if cfg.Generation.TopP != 0 {
		p := cfg.Generation.TopP
		gp.TopP = &p
	}
	if cfg.Generation.MaxTokens != 0 {
		m := cfg.Generation.MaxTokens
		gp.MaxTokens = &m
	}
	return gp
}

func (c *openAICompatibleClient) buildRequest(messages []Message, gen *GenerationParams, stream bool) chatRequest {
	if gen == nil {
		gen = DefaultParams(c.cfg)
	}
	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Stream:      stream,
		Temperature: gen.Temperature,
		TopP:        gen.TopP,
		MaxTokens:   gen.MaxTokens,
	}
	if gen.JSONMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req
}

func (c *openAICompatibleClient) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}
	return resp, nil
}

// StreamChatMessages 读取 SSE 流，直到 [DONE] 或 EOF 才返回。
func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer ChunkWriter) error {
	resp, err := c.post(ctx, c.buildRequest(messages, gen, true))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return nil
			}

			var chunk streamChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
				continue
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if werr := writer.WriteChunk(chunk.Choices[0].Delta.Content); werr != nil {
					return fmt.Errorf("failed to write chunk: %w", werr)
				}
			}
		}
		if err == io.EOF {
			return nil
		}
	}
}

// Complete 发起非流式调用。超时取自配置的 timeout_sec。
func (c *openAICompatibleClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	if c.cfg.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSec)*time.Second)
		defer cancel()
	}

	resp, err := c.post(ctx, c.buildRequest(messages, gen, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload completionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", ErrNoChoices
	}
	return payload.Choices[0].Message.Content, nil
}
