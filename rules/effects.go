package rules

import (
	"fmt"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/world"
)

// Intent is a single WorldState mutation produced by a rule.
type Intent interface {
	Apply(st *world.State) error
}

// Effects is the result of evaluating a rule: mutations to apply, then messages to
// publish. The zero value is a no-op.
type Effects struct {
	Intents  []Intent
	Messages []comms.Message
}

// Empty reports whether evaluating the rule had no effect.
func (e Effects) Empty() bool { return len(e.Intents) == 0 && len(e.Messages) == 0 }

// Merge appends other's intents and messages to e.
func (e *Effects) Merge(other Effects) {
	e.Intents = append(e.Intents, other.Intents...)
	e.Messages = append(e.Messages, other.Messages...)
}

// Apply runs every intent in order, then publishes every message. It stops at the
// first failing intent without publishing anything.
func (e Effects) Apply(st *world.State, bus *comms.Bus) error {
	for _, in := range e.Intents {
		if err := in.Apply(st); err != nil {
			return fmt.Errorf("apply %T: %w", in, err)
		}
	}
	for _, m := range e.Messages {
		if _, err := bus.Publish(m); err != nil {
			return err
		}
	}
	return nil
}

// ApplyPurchase settles a pending order.
type ApplyPurchase struct {
	OrderID string
	Step    int
}

func (i ApplyPurchase) Apply(st *world.State) error {
	return st.ApplyPurchase(i.OrderID, i.Step)
}

// RejectOrder closes a pending order without any other mutation.
type RejectOrder struct {
	OrderID string
	Reason  world.RejectReason
	Step    int
}

func (i RejectOrder) Apply(st *world.State) error {
	return st.RejectOrder(i.OrderID, i.Reason, i.Step)
}

// ReassignOrder moves a pending order to another employee.
type ReassignOrder struct {
	OrderID string
	To      string
}

func (i ReassignOrder) Apply(st *world.State) error {
	return st.AssignOrder(i.OrderID, i.To)
}

// ApplyRestock adds stock and credits the employee who did the work.
type ApplyRestock struct {
	BookID   string
	Quantity int
	Step     int
	By       string
}

func (i ApplyRestock) Apply(st *world.State) error {
	if err := st.ApplyRestock(i.BookID, i.Quantity, i.Step); err != nil {
		return err
	}
	if i.By == "" {
		return nil
	}
	return st.RecordRestock(i.By)
}

type MarkRestockRequested struct {
	BookID string
}

func (i MarkRestockRequested) Apply(st *world.State) error {
	return st.MarkRestockRequested(i.BookID)
}

// ClearRestockRequested withdraws a request that will not be fulfilled.
type ClearRestockRequested struct {
	BookID string
}

func (i ClearRestockRequested) Apply(st *world.State) error {
	return st.ClearRestockRequested(i.BookID)
}

type SetSatisfaction struct {
	CustomerID string
	Value      float64
}

func (i SetSatisfaction) Apply(st *world.State) error {
	return st.SetSatisfaction(i.CustomerID, i.Value)
}

type AdjustWorkload struct {
	EmployeeID string
	Delta      float64
}

func (i AdjustWorkload) Apply(st *world.State) error {
	return st.AdjustWorkload(i.EmployeeID, i.Delta)
}

type ScaleEfficiency struct {
	EmployeeID string
	Factor     float64
}

func (i ScaleEfficiency) Apply(st *world.State) error {
	return st.ScaleEfficiency(i.EmployeeID, i.Factor)
}

type SetPopularity struct {
	BookID string
	Value  float64
}

func (i SetPopularity) Apply(st *world.State) error {
	return st.SetPopularity(i.BookID, i.Value)
}
