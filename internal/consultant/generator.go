// Package consultant 调用督导模型，为每轮对话生成结构化的反馈草稿。
package consultant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"wet-coach-go/internal/model"
	"wet-coach-go/pkg/llm"
	"wet-coach-go/pkg/log"
)

const (
	defaultTitle   = "Feedback"
	defaultSummary = "General feedback"
)

// Kind 区分解析成功与回退两种结果。
type Kind int

const (
	Parsed Kind = iota
	Fallback
)

func (k Kind) String() string {
	if k == Parsed {
		return "parsed"
	}
	return "fallback"
}

// Result 是一次生成的类型化结果，Draft 在两种情况下都是合法草稿。
type Result struct {
	Kind  Kind
	Draft model.NoteDraft
	Raw   string
	// Cause 仅在 Fallback 时非空。
	Cause error
}

// Completer 是督导模型的非流式调用能力。
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error)
}

// Generator 是反馈生成适配器。只调用一次模型，不做重试。
type Generator struct {
	completer Completer
	params    *llm.GenerationParams
}

// NewGenerator 创建一个新的 Generator。params 为空时使用温度 0.2。
func NewGenerator(completer Completer, params *llm.GenerationParams) *Generator {
	if params == nil {
		t := 0.2
		params = &llm.GenerationParams{Temperature: &t}
	}
	return &Generator{completer: completer, params: params}
}

// BuildMessages 组装发给督导模型的消息列表。
func BuildMessages(transcript []Entry, digest string) []llm.Message {
	msgs := []llm.Message{{Role: "system", Content: systemPrompt}}
	if strings.TrimSpace(digest) != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: "Session memory: " + digest})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userPrompt(transcript)})
	return msgs
}

// Generate 生成一份反馈草稿。任何失败都降级为回退草稿，不会向调用方返回错误。
func (g *Generator) Generate(ctx context.Context, transcript []Entry, digest string) Result {
	raw, err := g.completer.Complete(ctx, BuildMessages(transcript, digest), g.params)
	if err != nil {
		log.Warnw("督导模型调用失败，使用回退反馈", "error", err)
		return fallback("", fmt.Errorf("consultant completion: %w", err))
	}
	res := Parse(raw)
	if res.Kind == Fallback {
		log.Warnw("督导模型输出无法解析，使用回退反馈", "error", res.Cause, "raw", raw)
	}
	return res
}

var fencePattern = regexp.MustCompile("```(?:json)?\\s*")

// StripFences 去掉模型输出中的 markdown 代码围栏。
func StripFences(raw string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))
}

type rawDraft struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Details  string `json:"details"`
	Priority string `json:"priority"`
}

// errEmptyOutput 表示模型返回了空文本。
var errEmptyOutput = errors.New("empty consultant output")

var errNotObject = errors.New("consultant output is not a json object")

// Parse 防御性地解析模型原始输出。
func Parse(raw string) Result {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return fallback(raw, errEmptyOutput)
	}

	var rd *rawDraft
	if err := json.Unmarshal([]byte(cleaned), &rd); err != nil {
		return fallback(raw, fmt.Errorf("decode consultant json: %w", err))
	}
	if rd == nil {
		return fallback(raw, errNotObject)
	}

	priority, _ := model.ParsePriority(rd.Priority)
	draft := model.NoteDraft{
		Title:    firstNonEmpty(rd.Title, defaultTitle),
		Summary:  firstNonEmpty(rd.Summary, defaultSummary),
		Details:  strings.TrimSpace(rd.Details),
		Priority: priority,
	}
	return Result{Kind: Parsed, Draft: draft, Raw: raw}
}

// FallbackDraft 返回回退草稿：summary 取去掉围栏后的原始文本，否则使用默认值。
func FallbackDraft(raw string) model.NoteDraft {
	return model.NoteDraft{
		Title:    defaultTitle,
		Summary:  firstNonEmpty(StripFences(raw), defaultSummary),
		Details:  "",
		Priority: model.PriorityGreen,
	}
}

func fallback(raw string, cause error) Result {
	return Result{Kind: Fallback, Draft: FallbackDraft(raw), Raw: raw, Cause: cause}
}

func firstNonEmpty(s, def string) string {
	if t := strings.TrimSpace(s); t != "" {
		return t
	}
	return def
}
