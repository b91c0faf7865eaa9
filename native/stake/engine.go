package stake

import (
	"fmt"
	"time"

	"nhbstake/core/events"
	"nhbstake/native/common"
)

const moduleName = "stake"

// ModuleName is the key the engine consults in its pause view.
const ModuleName = moduleName

// Engine wires the staking and reward distribution logic with an external
// state backend and event emitter. Every mutating call runs against a journal
// of the backend and only reaches it when the call succeeds.
type Engine struct {
	state    State
	emitter  events.Emitter
	pauses   common.PauseView
	nowFn    func() int64
	heightFn func() uint64
}

// NewEngine creates a stake engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the pause view consulted before every mutating call.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetHeightFunc overrides the block height source used to mature height based
// claims.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// call carries the working set of one mutating engine call.
type call struct {
	st      *journal
	cfg     *Config
	now     uint64
	height  uint64
	receipt *Receipt
	events  []events.Event
}

func (c *call) emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *call) unbondAll() (bool, error) { return c.st.UnbondAllGet() }

// apply runs fn on a fresh journal of an instantiated engine and commits the
// journal when fn succeeds. Events are only emitted after the commit.
func (e *Engine) apply(fn func(c *call) error) (*Receipt, error) {
	return e.run(true, fn)
}

func (e *Engine) run(needConfig bool, fn func(c *call) error) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModulePaused, err)
	}
	j := newJournal(e.state)
	cfg, ok, err := j.StakeConfigGet()
	if err != nil {
		return nil, err
	}
	if needConfig && !ok {
		return nil, ErrNotInstantiated
	}
	c := &call{st: j, cfg: cfg, now: e.now(), height: e.height(), receipt: &Receipt{}}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := j.commit(); err != nil {
		return nil, err
	}
	for _, evt := range c.events {
		e.emit(evt)
	}
	return c.receipt, nil
}

// view runs a read-only function against the backend.
func (e *Engine) view(fn func(st State, cfg *Config) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	cfg, ok, err := e.state.StakeConfigGet()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInstantiated
	}
	return fn(e.state, cfg)
}
