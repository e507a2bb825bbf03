package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type ShellTool struct {
	Dir string
}

func NewShellTool(dir string) *ShellTool {
	return &ShellTool{Dir: dir}
}

func (s *ShellTool) Name() string {
	return "shell"
}

func (s *ShellTool) Description() string {
	return "Execute system shell commands (param: command). Runs inside the workspace."
}

func (s *ShellTool) Kind() Kind {
	return KindDirect
}

func (s *ShellTool) Execute(ctx context.Context, params map[string]string) (string, error) {
	command := strings.TrimSpace(params["command"])
	if command == "" {
		return "", fmt.Errorf("shell: empty command")
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = s.Dir

	output, err := cmd.CombinedOutput()

	result := strings.TrimSpace(string(output))
	if result == "" {
		result = "(no output)"
	}

	if err != nil {
		return "", fmt.Errorf("command failed: %v\nOutput: %s", err, result)
	}

	return result, nil
}
