package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// Rows reserved above the scrolling log region.
const (
	statusRow = 10
	logRow    = 12
)

// termMu serialises all terminal output so a log write can never land
// between the cursor save and restore of the status line.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

type termWriter struct{}

func (termWriter) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer for log.SetOutput that is safe to use
// alongside PrintLiveStatus.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

const banner = `
   _______  ___   _____    ____  _____ ______
  / ___/\ \/ / | / /   |  / __ \/ ___// ____/
  \__ \  \  /  |/ / /| | / /_/ /\__ \/ __/
 ___/ /  / / /|  / ___ |/ ____/___/ / /___
/____/  /_/_/ |_/_/  |_/_/    /____/_____/

        >> PLAN . EXECUTE . EXPAND <<
`

func PrintBanner() {
	fmt.Print("\033[2J\033[H")
	fmt.Print(centered(banner, termWidth()))
}

func centered(text string, width int) string {
	var b strings.Builder
	for _, l := range strings.Split(text, "\n") {
		pad := max((width-len(l))/2, 0)
		fmt.Fprintf(&b, "%s%s%s%s\n", strings.Repeat(" ", pad), colorNeonCyan, l, colorReset)
	}
	return b.String()
}

// InitializeTerminal pins the banner and status line and scrolls logs below.
func InitializeTerminal() {
	fmt.Printf("\033[%d;r\033[%d;1H", logRow, logRow)
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}
