package plan

import (
	"testing"
)

func threeSteps() *Plan {
	return &Plan{
		ID:    "p1",
		Title: "demo",
		Steps: []Step{
			{ID: "1", Title: "one", Status: StepPending},
			{ID: "2", Title: "two", Status: StepPending},
			{ID: "3", Title: "three", Status: StepPending},
		},
	}
}

func TestInsertAfterPosition(t *testing.T) {
	p := threeSteps()
	p.Insert(1, Step{ID: "2a", Dynamic: true}, Step{ID: "2b", Dynamic: true})

	want := []string{"1", "2", "2a", "2b", "3"}
	if len(p.Steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(p.Steps))
	}
	for i, id := range want {
		if p.Steps[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, p.Steps[i].ID)
		}
	}
	if p.DynamicCount() != 2 {
		t.Errorf("expected 2 dynamic steps, got %d", p.DynamicCount())
	}
}

func TestInsertAtEnd(t *testing.T) {
	p := threeSteps()
	p.Insert(2, Step{ID: "4"})
	if p.Steps[3].ID != "4" {
		t.Errorf("expected appended step, got %s", p.Steps[3].ID)
	}
}

func TestValidate(t *testing.T) {
	p := threeSteps()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	p.Steps[2].ID = "1"
	if err := p.Validate(); err == nil {
		t.Error("expected duplicate id error")
	}

	p = threeSteps()
	p.ID = ""
	if err := p.Validate(); err == nil {
		t.Error("expected missing plan id error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := threeSteps()
	p.Steps[0].Params = map[string]string{"query": "a"}
	p.Steps[0].Tools = []string{"echo"}

	c := p.Clone()
	c.Steps[0].Params["query"] = "b"
	c.Steps[0].Tools[0] = "shell"
	c.Steps[1].Status = StepCompleted

	if p.Steps[0].Params["query"] != "a" {
		t.Error("clone shares params map")
	}
	if p.Steps[0].Tools[0] != "echo" {
		t.Error("clone shares tools slice")
	}
	if p.Steps[1].Status != StepPending {
		t.Error("clone shares steps slice")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := threeSteps()
	p.Steps[0].Status = StepCompleted
	p.Steps[0].Output = "📋 done\n✅ echo (1ms)\nhello"
	p.Steps[1].Status = StepError
	p.Steps[1].Error = "tool failed"

	data, err := p.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	for i := range p.Steps {
		if got.Steps[i].Output != p.Steps[i].Output || got.Steps[i].Status != p.Steps[i].Status {
			t.Errorf("step %d differs after round trip", i)
		}
	}
}
