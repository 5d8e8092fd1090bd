// Package agent implements the per-step behavior of customers, employees and books.
// Each agent drains its inbox, evaluates the rules relevant to its kind, applies the
// resulting intents to the world and publishes the resulting messages.
package agent

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/rules"
	"github.com/GoCodeAlone/bookstore/world"
)

// Kind is the agent category. The scheduler activates kinds in the order Employee,
// Customer, Book.
type Kind string

const (
	KindEmployee Kind = "employee"
	KindCustomer Kind = "customer"
	KindBook     Kind = "book"
)

// ActivationOrder lists the kinds in scheduler order.
var ActivationOrder = []Kind{KindEmployee, KindCustomer, KindBook}

// Status represents what an agent did on its most recent turn.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusActive  Status = "active"
	StatusWorking Status = "working"
	StatusBusy    Status = "busy" // employee at capacity
)

// Agent is a participant in the simulation.
type Agent interface {
	ID() string
	Kind() Kind
	// Subscriptions lists the broadcast kinds the agent wants delivered.
	Subscriptions() []comms.Kind
	// Step runs one turn. It is called exactly once per simulation step.
	Step(ctx context.Context, st *world.State, bus *comms.Bus) error
	// Info reports the agent's current metadata for the reporting surface.
	Info(st *world.State) Info
}

// Info provides read-only metadata about an agent.
type Info struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Status   Status `json:"status"`
	Handled  int    `json:"handled"`
	Ignored  int    `json:"ignored"`
	LastStep int    `json:"last_step"`
}

// turn carries the state of a single Step call to message handlers.
type turn struct {
	ctx   context.Context
	st    *world.State
	bus   *comms.Bus
	step  int
	inbox []comms.Message // drained but not yet dispatched
}

func (t *turn) apply(eff rules.Effects) error { return eff.Apply(t.st, t.bus) }

type handler func(t *turn, m comms.Message) error

// base holds bookkeeping shared by every agent kind.
type base struct {
	id       string
	kind     Kind
	status   Status
	handled  int
	ignored  int
	lastStep int
}

func (b *base) ID() string { return b.id }
func (b *base) Kind() Kind { return b.kind }

func (b *base) info(name string) Info {
	return Info{
		ID:       b.id,
		Name:     name,
		Kind:     b.kind,
		Status:   b.status,
		Handled:  b.handled,
		Ignored:  b.ignored,
		LastStep: b.lastStep,
	}
}

// begin starts a turn and drains the inbox.
func (b *base) begin(ctx context.Context, st *world.State, bus *comms.Bus) *turn {
	t := &turn{ctx: ctx, st: st, bus: bus, step: bus.Step()}
	b.lastStep = t.step
	b.status = StatusIdle
	t.inbox = bus.Drain(b.id)
	return t
}

// end closes a turn. When the turn failed, messages it drained but never dispatched
// go back on the bus for the next turn. Only the message whose handler failed is
// dropped.
func (b *base) end(t *turn, err error) {
	if err != nil {
		t.bus.Requeue(b.id, t.inbox)
	}
	t.inbox = nil
}

// dispatch routes each drained message to its handler. Kinds missing from the table
// are counted as ignored. A cancelled context stops dispatch between messages.
func (b *base) dispatch(t *turn, table map[comms.Kind]handler) error {
	for len(t.inbox) > 0 {
		if err := t.ctx.Err(); err != nil {
			return err
		}
		m := t.inbox[0]
		t.inbox = t.inbox[1:]
		h, ok := table[m.Kind]
		if !ok {
			b.ignored++
			continue
		}
		if err := h(t, m); err != nil {
			return fmt.Errorf("%s %s: handle %s #%d: %w", b.kind, b.id, m.Kind, m.Seq, err)
		}
		b.handled++
	}
	return nil
}
