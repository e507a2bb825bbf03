package observability

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

var startTime = time.Now()

var radarFrames = []string{"◜", "◝", "◞", "◟"}

var radarIdx atomic.Uint32

type pulse struct {
	icon, text, color string
}

// health grades the time since the last heartbeat. Heartbeats are sent every
// 30 seconds.
func health(sinceHeartbeat time.Duration) pulse {
	switch {
	case sinceHeartbeat < 40*time.Second:
		return pulse{"🟢", "HEALTHY", colorNeonCyan}
	case sinceHeartbeat < 90*time.Second:
		return pulse{"🟡", "LAGGING", colorPurple}
	default:
		return pulse{"🔴", "OFFLINE", colorNeonMag}
	}
}

func roleStyle(r Role) (icon, color string) {
	switch r {
	case RolePlanner:
		return "🛰️", colorNeonCyan
	case RoleExecutor:
		return "⚙️", colorNeonMag
	default:
		return "💤", colorReset
	}
}

// taskLabel is the short description shown next to the role.
func taskLabel(s Status) string {
	label := s.Task
	if label == "" {
		label = "Waiting..."
	}
	if s.TotalSteps > 0 {
		label = fmt.Sprintf("%d/%d %s", s.CurrentStep, s.TotalSteps, label)
	}
	if s.Plans > 1 {
		label = fmt.Sprintf("+%d %s", s.Plans-1, label)
	}
	if r := []rune(label); len(r) > 28 {
		label = string(r[:25]) + "..."
	}
	return label
}

func memoryBar(alloc, sys uint64, width int) (bar string, color string) {
	ratio := 0.0
	if sys > 0 {
		ratio = float64(alloc) / float64(sys)
	}
	filled := min(max(int(ratio*float64(width)), 0), width)
	color = colorNeonCyan
	if ratio > 0.7 {
		color = colorNeonMag
	}
	return strings.Repeat("█", filled) + strings.Repeat("▒", width-filled), color
}

// statusLine renders the dashboard row without cursor control codes.
func statusLine(s Status, now time.Time, uptime time.Duration, alloc, sys uint64, frame int) string {
	p := health(now.Sub(s.LastHeartbeat))
	icon, roleColor := roleStyle(s.Role)

	radar := " "
	if s.Role != RoleIdle {
		radar = radarFrames[frame%len(radarFrames)]
	}
	bar, barColor := memoryBar(alloc, sys, 20)

	return fmt.Sprintf(
		"%s[%s] %s%s %-10s%s | %s%s %-8s%s [%s] %s%s%s [%v] [%s%s %.1fMB%s]",
		colorReset, s.LastHeartbeat.Format("15:04:05"),
		p.color, p.icon, p.text, colorReset,
		roleColor, icon, s.Role, colorReset,
		taskLabel(s),
		colorPurple, radar, colorReset,
		uptime.Round(time.Second),
		barColor, bar, float64(alloc)/1024/1024, colorReset,
	)
}

// PrintLiveStatus redraws the status row in place.
func PrintLiveStatus() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	frame := int(radarIdx.Add(1))
	line := statusLine(GetStatus(), time.Now(), time.Since(startTime), m.Alloc, m.Sys, frame)
	out := fmt.Sprintf("\033[s\033[%d;1H\033[K%s\033[u", statusRow, line)

	termMu.Lock()
	fmt.Print(out)
	termMu.Unlock()
}
