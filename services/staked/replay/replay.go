// Package replay applies scripted operation sequences to a stake engine.
package replay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"nhbstake/core/events"
	"nhbstake/crypto"
	"nhbstake/native/stake"
	"nhbstake/services/staked/config"
	"nhbstake/services/staked/ops"
)

// Step is one timestamped operation. At is an absolute unix timestamp and
// Advance moves the clock relative to the previous step; at most one may be
// set. ExpectError names the expected failure class, or "any".
type Step struct {
	ID          string          `yaml:"id"`
	At          int64           `yaml:"at"`
	Advance     config.Duration `yaml:"advance"`
	Height      uint64          `yaml:"height"`
	Sender      string          `yaml:"sender"`
	Op          string          `yaml:"op"`
	Args        ops.Request     `yaml:"args"`
	ExpectError string          `yaml:"expectError"`
}

// Query is evaluated after every step has been applied.
type Query struct {
	Name string        `yaml:"name"`
	Args ops.QueryArgs `yaml:"args"`
}

// Script is the decoded replay file.
type Script struct {
	Start   int64   `yaml:"start"`
	Steps   []Step  `yaml:"steps"`
	Queries []Query `yaml:"queries"`
}

// StepResult records the outcome of one step.
type StepResult struct {
	ID     string      `json:"id"`
	Op     string      `json:"op"`
	Time   int64       `json:"time"`
	Result *ops.Result `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
	Kind   string      `json:"kind,omitempty"`
}

// QueryResult is the output of one final query.
type QueryResult struct {
	Name  string        `json:"name"`
	Args  ops.QueryArgs `json:"args"`
	Value any           `json:"value"`
}

// Report is the full outcome of a replay.
type Report struct {
	Steps   []StepResult  `json:"steps"`
	Queries []QueryResult `json:"queries"`
}

// Load reads a replay script from path.
func Load(path string) (*Script, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode parses a replay script, rejecting unknown fields and operations.
func Decode(r io.Reader) (*Script, error) {
	script := &Script{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(script); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	for i := range script.Steps {
		step := &script.Steps[i]
		if !ops.Known(step.Op) {
			return nil, fmt.Errorf("step %d: unknown operation %q", i, step.Op)
		}
		if step.At != 0 && step.Advance.Duration != 0 {
			return nil, fmt.Errorf("step %d: set at most one of at and advance", i)
		}
		if step.ID == "" {
			step.ID = uuid.NewString()
		} else if _, err := uuid.Parse(step.ID); err != nil {
			return nil, fmt.Errorf("step %d: invalid id %q: %w", i, step.ID, err)
		}
	}
	for i, q := range script.Queries {
		if !ops.KnownQuery(q.Name) {
			return nil, fmt.Errorf("query %d: unknown query %q", i, q.Name)
		}
	}
	return script, nil
}

type fakeClock interface {
	clockwork.Clock
	Advance(time.Duration)
}

// Runner drives an engine with a fake clock owned by the replay.
type Runner struct {
	engine   *stake.Engine
	clock    fakeClock
	height   uint64
	recorder *events.Recorder
	logger   *slog.Logger
}

// NewRunner takes over the time, height and event sources of engine.
func NewRunner(engine *stake.Engine, start time.Time, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		engine:   engine,
		clock:    clockwork.NewFakeClockAt(start),
		recorder: &events.Recorder{},
		logger:   logger,
	}
	engine.SetNowFunc(func() int64 { return r.clock.Now().Unix() })
	engine.SetHeightFunc(func() uint64 { return r.height })
	engine.SetEmitter(r.recorder)
	return r
}

// Now returns the replay clock.
func (r *Runner) Now() time.Time { return r.clock.Now() }

// Run applies every step in order. A step whose outcome does not match its
// expectation aborts the replay.
func (r *Runner) Run(ctx context.Context, script *Script) (*Report, error) {
	report := &Report{Steps: make([]StepResult, 0, len(script.Steps))}
	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.moveClock(step); err != nil {
			return report, fmt.Errorf("step %d (%s): %w", i, step.ID, err)
		}
		if step.Height > 0 {
			r.height = step.Height
		}
		sender, err := ops.ParseAddress("sender", step.Sender)
		if err != nil {
			return report, fmt.Errorf("step %d (%s): %w", i, step.ID, err)
		}

		r.recorder.Drain()
		receipt, applyErr := ops.Apply(r.engine, step.Op, sender, step.Args)
		result := StepResult{ID: step.ID, Op: step.Op, Time: r.clock.Now().Unix()}
		if applyErr != nil {
			result.Error = applyErr.Error()
			result.Kind = ops.KindOf(applyErr)
		} else {
			res := ops.NewResult(receipt, r.recorder.Drain())
			result.Result = &res
		}
		report.Steps = append(report.Steps, result)
		r.logger.Debug("replay step", "step", step.ID, "op", step.Op, "staker", crypto.Format(sender), "error", result.Error)

		if err := checkExpectation(step, applyErr); err != nil {
			return report, fmt.Errorf("step %d (%s): %w", i, step.ID, err)
		}
	}
	for _, q := range script.Queries {
		value, err := ops.Query(r.engine, q.Name, q.Args)
		if err != nil {
			return report, fmt.Errorf("query %s: %w", q.Name, err)
		}
		report.Queries = append(report.Queries, QueryResult{Name: q.Name, Args: q.Args, Value: value})
	}
	return report, nil
}

func (r *Runner) moveClock(step Step) error {
	now := r.clock.Now()
	switch {
	case step.At != 0:
		target := time.Unix(step.At, 0)
		if target.Before(now) {
			return fmt.Errorf("timestamp %d is before the replay clock %d", step.At, now.Unix())
		}
		r.clock.Advance(target.Sub(now))
	case step.Advance.Duration < 0:
		return fmt.Errorf("advance must not be negative")
	case step.Advance.Duration > 0:
		r.clock.Advance(step.Advance.Duration)
	}
	return nil
}

func checkExpectation(step Step, err error) error {
	want := strings.TrimSpace(step.ExpectError)
	switch {
	case want == "" && err != nil:
		return fmt.Errorf("unexpected error: %w", err)
	case want == "":
		return nil
	case err == nil:
		return fmt.Errorf("expected %s error, got success", want)
	case want == "any":
		return nil
	case ops.KindOf(err) != want:
		return fmt.Errorf("expected %s error, got %s: %v", want, ops.KindOf(err), err)
	}
	return nil
}
