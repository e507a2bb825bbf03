package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SystemTool drives the local desktop. Screenshots land in Dir.
type SystemTool struct {
	Dir string
}

func NewSystemTool(dir string) *SystemTool {
	return &SystemTool{Dir: dir}
}

func (s *SystemTool) Name() string {
	return "system"
}

func (s *SystemTool) Description() string {
	return "Control the desktop via xdotool (params: action=mouse_move|mouse_click|key_press|type_text|desktop_screenshot, x, y, button, key, text)."
}

func (s *SystemTool) Kind() Kind {
	return KindDirect
}

func (s *SystemTool) Execute(ctx context.Context, params map[string]string) (string, error) {
	action := params["action"]
	if action == "desktop_screenshot" {
		return s.captureDesktop(ctx)
	}

	x, err := intParam(params, "x")
	if err != nil {
		return "", err
	}
	y, err := intParam(params, "y")
	if err != nil {
		return "", err
	}
	return s.executeXdotool(ctx, action, x, y, params["button"], params["key"], params["text"])
}

func intParam(params map[string]string, key string) (int, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", key, err)
	}
	return n, nil
}

func (s *SystemTool) captureDesktop(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create screenshot directory: %w", err)
	}
	filename := fmt.Sprintf("desktop_%d.png", time.Now().Unix())
	path := filepath.Join(s.Dir, filename)

	// ffmpeg first, scrot as fallback
	cmd := exec.CommandContext(ctx, "ffmpeg", "-f", "x11grab", "-i", ":0.0", "-frames:v", "1", path, "-y")
	output, err := cmd.CombinedOutput()
	if err != nil {
		cmd = exec.CommandContext(ctx, "scrot", path)
		output, err = cmd.CombinedOutput()
		if err != nil {
			return "", fmt.Errorf("capture desktop: %v\nOutput: %s", err, string(output))
		}
	}

	absPath, _ := filepath.Abs(path)
	return fmt.Sprintf("Desktop screenshot saved to %s", absPath), nil
}

func (s *SystemTool) executeXdotool(ctx context.Context, action string, x, y int, button, key, text string) (string, error) {
	var cmdArgs []string
	switch action {
	case "mouse_move":
		cmdArgs = []string{"mousemove", strconv.Itoa(x), strconv.Itoa(y)}
	case "mouse_click":
		if button == "" {
			button = "1"
		}
		cmdArgs = []string{"click", button}
	case "key_press":
		if key == "" {
			return "", fmt.Errorf("key is required for key_press")
		}
		cmdArgs = []string{"key", key}
	case "type_text":
		if text == "" {
			return "", fmt.Errorf("text is required for type_text")
		}
		cmdArgs = []string{"type", text}
	default:
		return "", fmt.Errorf("invalid action %q", action)
	}

	cmd := exec.CommandContext(ctx, "xdotool", cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return "", fmt.Errorf("xdotool is not installed")
		}
		return "", fmt.Errorf("xdotool %s: %v\nOutput: %s", action, err, string(output))
	}

	return fmt.Sprintf("Successfully executed action: %s", action), nil
}
