package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/microcosm-cc/bluemonday"
)

// BrowserTool keeps one chromedp session alive across calls until 'close'.
// Calls from concurrent plans are serialized on the session.
type BrowserTool struct {
	Headless      bool
	ScreenshotDir string

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewBrowserTool(headless bool, screenshotDir string) *BrowserTool {
	return &BrowserTool{Headless: headless, ScreenshotDir: screenshotDir}
}

func (b *BrowserTool) Name() string {
	return "browser"
}

func (b *BrowserTool) Description() string {
	return "Control a browser session (params: action=visit|navigate|click|content|type|press|scroll|wait|back|forward|reload|screenshot|close, url, selector, text, wait_seconds)."
}

func (b *BrowserTool) Kind() Kind {
	return KindRemote
}

// initBrowser must be called with b.mu held.
func (b *BrowserTool) initBrowser() error {
	if b.browserCtx != nil {
		select {
		case <-b.browserCtx.Done():
			b.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	return chromedp.Run(b.browserCtx)
}

func (b *BrowserTool) cleanup() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	b.browserCtx = nil
	b.allocCtx = nil
}

// Close releases the browser process.
func (b *BrowserTool) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}

func (b *BrowserTool) Execute(ctx context.Context, params map[string]string) (string, error) {
	action := params["action"]
	if action == "" && params["url"] != "" {
		action = "visit"
	}

	if action == "close" {
		b.Close()
		return "Successfully closed the browser.", nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.initBrowser(); err != nil {
		return "", fmt.Errorf("failed to initialize browser: %w", err)
	}

	// The session outlives the call, so the action is bounded by both the
	// session and the caller's deadline.
	actionCtx, cancel := context.WithTimeout(b.browserCtx, 60*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	url := params["url"]
	selector := params["selector"]
	text := params["text"]

	var result string
	var err error

	switch action {
	case "visit":
		if url == "" {
			return "", fmt.Errorf("url is required for 'visit'")
		}
		var html string
		err = chromedp.Run(actionCtx, chromedp.Navigate(url), outerHTML(&html))
		result = fmt.Sprintf("🌐 %s\n\n%s", url, truncate(bluemonday.StrictPolicy().Sanitize(html), 50000))

	case "navigate":
		if url == "" {
			return "", fmt.Errorf("url is required for 'navigate'")
		}
		err = chromedp.Run(actionCtx, chromedp.Navigate(url))
		result = fmt.Sprintf("Successfully navigated to %s", url)

	case "content":
		var html string
		err = chromedp.Run(actionCtx, outerHTML(&html))
		result = truncate(html, 50000)

	case "click":
		if selector == "" {
			return "", fmt.Errorf("selector is required for 'click'")
		}
		err = chromedp.Run(actionCtx, chromedp.Click(selector, chromedp.ByQuery))
		result = fmt.Sprintf("Clicked %s", selector)

	case "type":
		if selector == "" || text == "" {
			return "", fmt.Errorf("selector and text are required for 'type'")
		}
		err = chromedp.Run(actionCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
		result = fmt.Sprintf("Typed text in %s", selector)

	case "press":
		if text == "" {
			return "", fmt.Errorf("text (key) is required for 'press'")
		}
		err = chromedp.Run(actionCtx, chromedp.KeyEvent(text))
		result = fmt.Sprintf("Pressed key: %s", text)

	case "scroll":
		if selector != "" {
			err = chromedp.Run(actionCtx, chromedp.ScrollIntoView(selector, chromedp.ByQuery))
			result = fmt.Sprintf("Scrolled to %s", selector)
		} else {
			err = chromedp.Run(actionCtx, chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil))
			result = "Scrolled to bottom"
		}

	case "wait":
		if selector != "" {
			err = chromedp.Run(actionCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
			result = fmt.Sprintf("Finished waiting for %s", selector)
			break
		}
		seconds, _ := strconv.Atoi(params["wait_seconds"])
		if seconds <= 0 {
			result = "Nothing to wait for"
			break
		}
		select {
		case <-time.After(time.Duration(seconds) * time.Second):
			result = fmt.Sprintf("Waited for %d seconds", seconds)
		case <-actionCtx.Done():
			err = actionCtx.Err()
		}

	case "back":
		err = chromedp.Run(actionCtx, chromedp.NavigateBack())
		result = "Navigated back"

	case "forward":
		err = chromedp.Run(actionCtx, chromedp.NavigateForward())
		result = "Navigated forward"

	case "reload":
		err = chromedp.Run(actionCtx, chromedp.Reload())
		result = "Page reloaded"

	case "screenshot":
		var buf []byte
		if err = chromedp.Run(actionCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
			break
		}
		if err = os.MkdirAll(b.ScreenshotDir, 0755); err != nil {
			break
		}
		path := filepath.Join(b.ScreenshotDir, fmt.Sprintf("screenshot_%d.png", time.Now().Unix()))
		if err = os.WriteFile(path, buf, 0644); err == nil {
			absPath, _ := filepath.Abs(path)
			result = fmt.Sprintf("Screenshot saved to %s", absPath)
		}

	default:
		return "", fmt.Errorf("invalid browser action %q", action)
	}

	if err != nil {
		return "", fmt.Errorf("browser %s failed: %w", action, err)
	}

	return result, nil
}

func outerHTML(html *string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		*html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
