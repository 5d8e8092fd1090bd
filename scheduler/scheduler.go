// Package scheduler drives the simulation: it activates every agent once per step in
// a fixed order, records a snapshot after each step, and exposes pause, resume and
// stop transitions that take effect only between steps.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/GoCodeAlone/bookstore/agent"
	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/rules"
	"github.com/GoCodeAlone/bookstore/world"
)

// State is the scheduler lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

var ErrInvalidTransition = errors.New("invalid scheduler transition")

// StoreSender is the sender of store-wide event alerts. No agent may use it.
const StoreSender = "store"

const (
	defaultMaintenance = 0.8
	healthEvery        = 50
)

// Config controls a run.
type Config struct {
	Steps    int           // step limit; reaching it stops the run
	Interval time.Duration // minimum wall time between steps; zero runs flat out
	Logger   *slog.Logger
	Meter    metric.Meter // nil uses the global meter provider
	Seed     uint64       // seeds the store event draws
	Events   Events
}

// Events configures the periodic store-wide events. Every step that is a multiple of
// Every draws once: with probability Chance one of rules.StoreEvents is broadcast.
// A zero Every disables them.
type Events struct {
	Every       int
	Chance      float64
	Maintenance float64 // efficiency factor of a maintenance event; zero means 0.8
}

// Scheduler owns the world and the bus for the lifetime of a run.
type Scheduler struct {
	cfg     Config
	world   *world.State
	bus     *comms.Bus
	agents  []agent.Agent
	logger  *slog.Logger
	limiter *rate.Limiter
	metrics *instruments
	events  *rand.Rand

	// stepMu is held for the whole of a step; readers take it through Inspect.
	stepMu sync.Mutex

	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	step      int
	history   []Snapshot
	observers []func(Snapshot)
}

// New registers every agent on the bus and subscribes it to its broadcast kinds.
// Agents are sorted into activation order: employees, customers, books, each by
// identifier.
func New(st *world.State, bus *comms.Bus, agents []agent.Agent, cfg Config) (*Scheduler, error) {
	if cfg.Steps <= 0 {
		return nil, fmt.Errorf("scheduler: step limit must be positive, got %d", cfg.Steps)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	in, err := newInstruments(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("scheduler: instruments: %w", err)
	}

	ordered := slices.Clone(agents)
	slices.SortStableFunc(ordered, func(a, b agent.Agent) int {
		if c := cmp.Compare(kindRank(a.Kind()), kindRank(b.Kind())); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
	seen := make(map[string]bool, len(ordered))
	for _, a := range ordered {
		if a.ID() == StoreSender {
			return nil, fmt.Errorf("scheduler: agent id %q is reserved", StoreSender)
		}
		if seen[a.ID()] {
			return nil, fmt.Errorf("scheduler: agent %s: %w", a.ID(), world.ErrDuplicateID)
		}
		seen[a.ID()] = true
		if err := bus.Register(a.ID()); err != nil {
			return nil, fmt.Errorf("scheduler: %w", err)
		}
		if err := bus.Subscribe(a.ID(), a.Subscriptions()...); err != nil {
			return nil, fmt.Errorf("scheduler: %w", err)
		}
	}

	s := &Scheduler{
		cfg:     cfg,
		world:   st,
		bus:     bus,
		agents:  ordered,
		logger:  logger,
		metrics: in,
		state:   StateIdle,
	}
	if s.cfg.Events.Maintenance <= 0 {
		s.cfg.Events.Maintenance = defaultMaintenance
	}
	s.events = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d))
	s.cond = sync.NewCond(&s.mu)
	if cfg.Interval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.Interval), 1)
	}
	return s, nil
}

func kindRank(k agent.Kind) int {
	for i, known := range agent.ActivationOrder {
		if k == known {
			return i
		}
	}
	return len(agent.ActivationOrder)
}

// Agents returns the agents in activation order.
func (s *Scheduler) Agents() []agent.Agent { return slices.Clone(s.agents) }

// Run moves the scheduler from Idle to Running and steps until the step limit, Stop,
// or ctx cancellation. A cancelled context stops the run at the next step boundary
// and Run returns the context error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("run from %s: %w", st, ErrInvalidTransition)
	}
	s.state = StateRunning
	s.mu.Unlock()
	s.logger.Info("simulation started", "agents", len(s.agents), "steps", s.cfg.Steps)

	initial := Collect(s.world, s.bus, 0, 0)
	s.publish(ctx, initial)

	stopWake := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stopWake()

	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.halt("context done")
				return ctx.Err()
			}
		}
		if !s.awaitRunnable(ctx) {
			if err := ctx.Err(); err != nil {
				s.halt("context done")
				return err
			}
			return nil
		}
		s.runStep(ctx)
	}
}

// awaitRunnable blocks while paused and reports whether another step should run.
func (s *Scheduler) awaitRunnable(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.state == StatePaused && ctx.Err() == nil {
		s.cond.Wait()
	}
	if s.state == StateStopped || ctx.Err() != nil {
		return false
	}
	if s.step >= s.cfg.Steps {
		s.state = StateStopped
		s.logger.Info("simulation finished", "steps", s.step)
		return false
	}
	return true
}

func (s *Scheduler) halt(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		s.state = StateStopped
		s.logger.Info("simulation stopped", "step", s.step, "reason", reason)
	}
}

func (s *Scheduler) runStep(ctx context.Context) {
	s.stepMu.Lock()
	s.mu.Lock()
	s.step++
	n := s.step
	s.mu.Unlock()

	// A step always runs to completion once started.
	turnCtx := context.WithoutCancel(ctx)
	s.bus.BeginStep(n)
	skipped := 0
	for _, a := range s.agents {
		if err := s.activate(turnCtx, a); err != nil {
			skipped++
			s.logger.Warn("agent skipped turn", "agent", a.ID(), "kind", a.Kind(), "step", n, "error", err)
		}
	}
	event, err := s.storeEvent(n)
	if err != nil {
		s.logger.Warn("store event failed", "step", n, "error", err)
	}
	snap := Collect(s.world, s.bus, n, skipped)
	snap.Event = event
	if n%healthEvery == 0 {
		if h := CheckHealth(s.world); h.Degraded() {
			s.logger.Warn("simulation conditions degraded", "step", n,
				"active_customers", h.ActiveCustomers, "stocked_books", h.StockedBooks)
		}
	}
	s.stepMu.Unlock()

	s.publish(ctx, snap)
	s.logger.Debug("step complete", "step", n, "books_sold", snap.BooksSold, "revenue", snap.Revenue, "skipped", skipped)
}

// storeEvent draws the store-wide event for step n when one is due and applies it.
// It returns the event broadcast, or "" for none.
func (s *Scheduler) storeEvent(n int) (comms.AlertType, error) {
	ev := s.cfg.Events
	if ev.Every <= 0 || n%ev.Every != 0 {
		return "", nil
	}
	if s.events.Float64() >= ev.Chance {
		return "", nil
	}
	kind := rules.StoreEvents[s.events.IntN(len(rules.StoreEvents))]
	eff, err := rules.StoreEvent(s.world, StoreSender, kind, ev.Maintenance)
	if err != nil {
		return "", err
	}
	if err := eff.Apply(s.world, s.bus); err != nil {
		return "", err
	}
	s.logger.Info("store event", "step", n, "event", kind)
	return kind, nil
}

// activate runs one agent turn, converting a panic into an error.
func (s *Scheduler) activate(ctx context.Context, a agent.Agent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Step(ctx, s.world, s.bus)
}

func (s *Scheduler) publish(ctx context.Context, snap Snapshot) {
	s.mu.Lock()
	var prev Snapshot
	if len(s.history) > 0 {
		prev = s.history[len(s.history)-1]
	}
	s.history = append(s.history, snap)
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	if snap.Step > 0 {
		s.metrics.record(ctx, prev, snap)
	}
	for _, fn := range observers {
		fn(snap)
	}
}

// Pause suspends the loop after the current step.
func (s *Scheduler) Pause() error {
	return s.transition(StatePaused, StateRunning)
}

// Resume continues a paused run.
func (s *Scheduler) Resume() error {
	return s.transition(StateRunning, StatePaused)
}

// Stop ends the run after the current step. It is terminal.
func (s *Scheduler) Stop() error {
	return s.transition(StateStopped, StateRunning, StatePaused)
}

func (s *Scheduler) transition(to State, from ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(from, s.state) {
		return fmt.Errorf("%s -> %s: %w", s.state, to, ErrInvalidTransition)
	}
	s.logger.Info("simulation state changed", "from", s.state, "to", to, "step", s.step)
	s.state = to
	s.cond.Broadcast()
	return nil
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StepIndex returns the number of completed or in-progress steps.
func (s *Scheduler) StepIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// History returns every snapshot recorded so far, step 0 first.
func (s *Scheduler) History() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Latest returns the most recent snapshot.
func (s *Scheduler) Latest() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Snapshot{}, false
	}
	return s.history[len(s.history)-1], true
}

// OnStep registers fn to receive every snapshot after it is recorded. fn runs on the
// scheduler goroutine between steps.
func (s *Scheduler) OnStep(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Inspect runs fn with the world and bus while no step is in progress.
func (s *Scheduler) Inspect(fn func(st *world.State, bus *comms.Bus)) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	fn(s.world, s.bus)
}

// AgentInfo returns metadata for every agent in activation order.
func (s *Scheduler) AgentInfo() []agent.Info {
	out := make([]agent.Info, 0, len(s.agents))
	s.Inspect(func(st *world.State, _ *comms.Bus) {
		for _, a := range s.agents {
			out = append(out, a.Info(st))
		}
	})
	return out
}

// Summary derives the run summary from the history so far.
func (s *Scheduler) Summary() Summary {
	history := s.History()
	var sum Summary
	s.Inspect(func(st *world.State, _ *comms.Bus) {
		sum = Summarize(history, st)
	})
	return sum
}

// Result is the complete outcome of a run: the snapshot history plus the terminal
// entity tables and the message log.
type Result struct {
	Summary   Summary                 `json:"summary"`
	Snapshots []Snapshot              `json:"snapshots"`
	Genres    []world.Genre           `json:"genres"`
	Authors   []world.Author          `json:"authors"`
	Books     []world.Book            `json:"books"`
	Inventory []world.InventoryRecord `json:"inventory"`
	Customers []world.Customer        `json:"customers"`
	Employees []world.Employee        `json:"employees"`
	Orders    []world.Order           `json:"orders"`
	Messages  []comms.Message         `json:"messages"`
}

// Export captures the current run. It is normally called once the scheduler has
// stopped.
func (s *Scheduler) Export() Result {
	history := s.History()
	var r Result
	s.Inspect(func(st *world.State, bus *comms.Bus) {
		r = Result{
			Summary:   Summarize(history, st),
			Snapshots: history,
			Genres:    st.Genres(),
			Authors:   st.Authors(),
			Books:     st.Books(),
			Inventory: st.InventoryRecords(),
			Customers: st.Customers(),
			Employees: st.Employees(),
			Orders:    st.Orders(),
			Messages:  bus.Log(comms.Filter{}),
		}
	})
	return r
}
