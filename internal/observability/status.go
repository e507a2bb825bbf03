package observability

import (
	"sort"
	"sync"
	"time"
)

type Role string

const (
	RoleIdle     Role = "IDLE"
	RolePlanner  Role = "PLANNER"
	RoleExecutor Role = "EXECUTOR"
)

type planStatus struct {
	title   string
	current int
	total   int
}

type systemStatus struct {
	mu            sync.RWMutex
	planning      int
	request       string
	lastHeartbeat time.Time
	plans         map[string]*planStatus
}

var globalStatus = &systemStatus{
	lastHeartbeat: time.Now(),
	plans:         make(map[string]*planStatus),
}

// Status is a point-in-time copy of what the process is doing.
type Status struct {
	Role          Role
	Task          string
	Plans         int
	CurrentStep   int
	TotalSteps    int
	LastHeartbeat time.Time
}

// BeginPlanning shows the planner role until the returned func is called.
// Executing plans take precedence on the status line.
func BeginPlanning(request string) (done func()) {
	globalStatus.mu.Lock()
	globalStatus.planning++
	globalStatus.request = request
	globalStatus.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			globalStatus.mu.Lock()
			defer globalStatus.mu.Unlock()
			globalStatus.planning--
			if globalStatus.planning == 0 {
				globalStatus.request = ""
			}
		})
	}
}

// TrackPlan marks a plan as executing.
func TrackPlan(planID, title string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.plans[planID] = &planStatus{title: title}
}

// StepProgress records which step of a tracked plan is running.
func StepProgress(planID string, current, total int) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	if ps, ok := globalStatus.plans[planID]; ok {
		ps.current, ps.total = current, total
	}
}

// UntrackPlan removes a finished plan.
func UntrackPlan(planID string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	delete(globalStatus.plans, planID)
}

// ActivePlans returns how many plans are executing.
func ActivePlans() int {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return len(globalStatus.plans)
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.lastHeartbeat = time.Now()
}

// GetStatus returns a copy of the global status. With several plans running
// the one with the lowest id is reported.
func GetStatus() Status {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()

	s := Status{
		Role:          RoleIdle,
		Plans:         len(globalStatus.plans),
		LastHeartbeat: globalStatus.lastHeartbeat,
	}
	switch {
	case len(globalStatus.plans) > 0:
		ids := make([]string, 0, len(globalStatus.plans))
		for id := range globalStatus.plans {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		ps := globalStatus.plans[ids[0]]
		s.Role = RoleExecutor
		s.Task = ps.title
		s.CurrentStep, s.TotalSteps = ps.current, ps.total
	case globalStatus.planning > 0:
		s.Role = RolePlanner
		s.Task = globalStatus.request
	}
	return s
}
