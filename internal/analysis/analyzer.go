// Package analysis inspects step output and proposes plan expansions.
//
// The analyzer is data driven: an ordered table of (pattern, priority,
// confidence) entries is compiled once and matched against every output.
// Signals are returned in table order, never in match-position order, and
// carry the entry's base confidence unchanged.
package analysis

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Priority ranks how urgently a signal asks for new steps.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ErrMalformedOutput is returned for output that is not valid UTF-8.
var ErrMalformedOutput = errors.New("malformed step output")

// StepDescriptor is a suggested step, not yet part of any plan.
type StepDescriptor struct {
	Title       string
	Description string
}

// Signal is a candidate expansion proposed from one step's output.
type Signal struct {
	Priority   Priority
	Confidence float64
	Reason     string
	Pattern    string
	Steps      []StepDescriptor
}

// Analyzer turns step output into expansion signals.
type Analyzer interface {
	Analyze(output string) ([]Signal, error)
}

// Entry is one row of the pattern table.
type Entry struct {
	Pattern    string
	Priority   Priority
	Confidence float64
	Reason     string
	// Fallback titles used when no keyword suggestion applies.
	Fallback []string
}

// Suggestion maps a keyword pattern to the title of a follow-up step.
type Suggestion struct {
	Pattern string
	Title   string
}

type compiledEntry struct {
	Entry
	re *regexp.Regexp
}

type compiledSuggestion struct {
	Suggestion
	re *regexp.Regexp
}

// PatternAnalyzer is the table-driven Analyzer. It holds no mutable state
// and is safe for concurrent use.
type PatternAnalyzer struct {
	entries      []compiledEntry
	suggestions  []compiledSuggestion
	maxSuggested int
}

// Option configures a PatternAnalyzer.
type Option func(*PatternAnalyzer)

// WithMaxSuggested caps how many steps a single signal may suggest.
func WithMaxSuggested(n int) Option {
	return func(a *PatternAnalyzer) {
		if n > 0 {
			a.maxSuggested = n
		}
	}
}

// NewPatternAnalyzer compiles the given tables. Pattern errors are reported
// here so that Analyze itself never fails on a bad table.
func NewPatternAnalyzer(entries []Entry, suggestions []Suggestion, opts ...Option) (*PatternAnalyzer, error) {
	a := &PatternAnalyzer{maxSuggested: 3}
	for _, opt := range opts {
		opt(a)
	}

	for i, e := range entries {
		if e.Confidence < 0 || e.Confidence > 1 {
			return nil, fmt.Errorf("entry %d: confidence %.2f out of range", i, e.Confidence)
		}
		switch e.Priority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			return nil, fmt.Errorf("entry %d: unknown priority %q", i, e.Priority)
		}
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		a.entries = append(a.entries, compiledEntry{Entry: e, re: re})
	}

	for i, s := range suggestions {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("suggestion %d: %w", i, err)
		}
		a.suggestions = append(a.suggestions, compiledSuggestion{Suggestion: s, re: re})
	}

	return a, nil
}

// NewDefault returns an analyzer over the built-in tables.
func NewDefault(opts ...Option) *PatternAnalyzer {
	a, err := NewPatternAnalyzer(DefaultEntries(), DefaultSuggestions(), opts...)
	if err != nil {
		panic(fmt.Sprintf("analysis: default table does not compile: %v", err))
	}
	return a
}

// Analyze returns one signal per matching table entry.
func (a *PatternAnalyzer) Analyze(output string) ([]Signal, error) {
	if !utf8.ValidString(output) {
		return nil, ErrMalformedOutput
	}

	var signals []Signal
	var suggested []StepDescriptor
	for _, e := range a.entries {
		if !e.re.MatchString(output) {
			continue
		}
		if suggested == nil {
			suggested = a.suggest(output)
		}
		steps := suggested
		if len(steps) == 0 {
			steps = descriptors(e.Fallback)
		}
		if len(steps) > a.maxSuggested {
			steps = steps[:a.maxSuggested]
		}
		signals = append(signals, Signal{
			Priority:   e.Priority,
			Confidence: e.Confidence,
			Reason:     e.Reason,
			Pattern:    e.Pattern,
			Steps:      append([]StepDescriptor(nil), steps...),
		})
	}
	return signals, nil
}

func (a *PatternAnalyzer) suggest(output string) []StepDescriptor {
	steps := []StepDescriptor{}
	for _, s := range a.suggestions {
		if s.re.MatchString(output) {
			steps = append(steps, descriptor(s.Title))
		}
	}
	return steps
}

func descriptors(titles []string) []StepDescriptor {
	out := make([]StepDescriptor, 0, len(titles))
	for _, t := range titles {
		out = append(out, descriptor(t))
	}
	return out
}

func descriptor(title string) StepDescriptor {
	return StepDescriptor{
		Title:       title,
		Description: "Dynamically generated step: " + title,
	}
}
