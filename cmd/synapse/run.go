package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rahul/synapse/internal/engine"
	"github.com/rahul/synapse/internal/plan"
)

func (r *RunCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	p, err := readPlan(r.Plan)
	if err != nil {
		return err
	}
	if r.Chat != "" {
		p.ChatID = r.Chat
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runErr := a.engine.Run(ctx, p, engine.NewJSONObserver(os.Stdout))
	fmt.Fprintln(os.Stderr, p.FinalSummary)
	return runErr
}

// readPlan decodes a YAML or JSON plan file. Missing ids and statuses are
// filled in so hand-written plans only need titles and tools.
func readPlan(path string) (*plan.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p plan.Plan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &p)
	default:
		err = yaml.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Title == "" {
		p.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.ID == "" {
			s.ID = strconv.Itoa(i + 1)
		}
		if s.Status == "" {
			s.Status = plan.StepPending
		}
	}
	if p.Status == "" {
		p.Status = plan.StatusActive
	}
	return &p, p.Validate()
}

func (c *PlansCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	snaps, err := a.memory.List(ctx, c.Limit)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, s := range snaps {
			if err := enc.Encode(s.Plan); err != nil {
				return err
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLAN\tSTATUS\tSTEPS\tDYNAMIC\tSAVED\tTITLE")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			s.PlanID, s.Status, len(s.Plan.Steps), s.Plan.DynamicCount(),
			s.CreatedAt.Format(time.DateTime), s.Title)
	}
	return w.Flush()
}
