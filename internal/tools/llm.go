package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// LLMTool hands a step to the language model. Dynamically inserted steps
// have no dedicated tool, so they are usually routed here.
type LLMTool struct {
	Model  llms.Model
	System string
}

func NewLLMTool(model llms.Model, systemPrompt string) *LLMTool {
	return &LLMTool{Model: model, System: systemPrompt}
}

func (l *LLMTool) Name() string {
	return "llm"
}

func (l *LLMTool) Description() string {
	return "Ask the language model to carry out a step (param: prompt). Defaults to the step title and description."
}

func (l *LLMTool) Kind() Kind {
	return KindRemote
}

func (l *LLMTool) Execute(ctx context.Context, params map[string]string) (string, error) {
	prompt := params["prompt"]
	if prompt == "" {
		prompt = stepPrompt(params)
	}
	if prompt == "" {
		return "", fmt.Errorf("llm: empty prompt")
	}

	var messages []llms.MessageContent
	if l.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, l.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	resp, err := l.Model.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices returned")
	}
	return resp.Choices[0].Content, nil
}

func stepPrompt(params map[string]string) string {
	var b strings.Builder
	if t := params["step_title"]; t != "" {
		fmt.Fprintf(&b, "TASK: %s\n", t)
	}
	if q := params["query"]; q != "" {
		fmt.Fprintf(&b, "DETAILS: %s\n", q)
	}
	if b.Len() == 0 {
		return ""
	}
	if p := params["plan_title"]; p != "" {
		fmt.Fprintf(&b, "\nCONTEXT: This is a sub-task of the plan %q.", p)
	}
	return b.String()
}
