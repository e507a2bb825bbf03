package tools

import (
	"context"
	"fmt"
)

// EchoTool returns its input. Plan files use it to feed fixed text through
// the engine, which makes whole runs reproducible.
type EchoTool struct{}

func NewEchoTool() *EchoTool {
	return &EchoTool{}
}

func (e *EchoTool) Name() string {
	return "echo"
}

func (e *EchoTool) Description() string {
	return "Return the given text unchanged (param: text). Falls back to the step query."
}

func (e *EchoTool) Kind() Kind {
	return KindDirect
}

func (e *EchoTool) Execute(ctx context.Context, params map[string]string) (string, error) {
	if text, ok := params["text"]; ok {
		return text, nil
	}
	if q := params["query"]; q != "" {
		return fmt.Sprintf("%s: %s", params["step_title"], q), nil
	}
	return "", fmt.Errorf("echo: nothing to return")
}
