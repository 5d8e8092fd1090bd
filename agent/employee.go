package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/rules"
	"github.com/GoCodeAlone/bookstore/world"
)

// DefaultRecovery is the workload an employee of efficiency 1 sheds per step.
const DefaultRecovery = 0.5

// EmployeeConfig holds the private parameters of an employee agent.
type EmployeeConfig struct {
	ID       string
	Role     world.Role
	Recovery float64
	Roster   *Roster
	Params   rules.Params
}

// Employee works the store. What it does depends on its role:
//   - every role recovers workload, then processes the orders assigned to it and
//     hands the ones it has no room for to a free colleague at the counter
//   - inventory specialists fulfil restock requests
//   - managers and inventory specialists watch stock levels
//   - managers turn promotion suggestions into sales, announce new arrivals and
//     fulfil restock requests that were broadcast because no specialist exists
type Employee struct {
	base
	role     world.Role
	recovery float64
	roster   *Roster
	params   rules.Params

	backlog   []comms.RestockRequest // requests deferred for lack of capacity
	announced map[string]bool        // books with a sale running

	table map[comms.Kind]handler
}

// NewEmployee creates an employee agent. The handler table is fixed by role.
func NewEmployee(cfg EmployeeConfig) *Employee {
	if cfg.Recovery <= 0 {
		cfg.Recovery = DefaultRecovery
	}
	if cfg.Roster == nil {
		cfg.Roster = &Roster{}
	}
	e := &Employee{
		base:      base{id: cfg.ID, kind: KindEmployee, status: StatusIdle},
		role:      cfg.Role,
		recovery:  cfg.Recovery,
		roster:    cfg.Roster,
		params:    cfg.Params,
		announced: make(map[string]bool),
	}
	e.table = map[comms.Kind]handler{
		comms.KindPurchaseRequest: e.onPurchaseRequest,
	}
	switch cfg.Role {
	case world.RoleInventorySpecialist:
		e.table[comms.KindRestockRequest] = e.onRestockRequest
	case world.RoleManager:
		e.table[comms.KindRestockRequest] = e.onRestockRequest
		e.table[comms.KindSystemAlert] = e.onAlert
		e.table[comms.KindRestockCompleted] = e.onRestockCompleted
	}
	return e
}

// Role returns the employee's immutable role.
func (e *Employee) Role() world.Role { return e.role }

func (e *Employee) Subscriptions() []comms.Kind {
	switch e.role {
	case world.RoleInventorySpecialist:
		return []comms.Kind{comms.KindRestockRequest}
	case world.RoleManager:
		return []comms.Kind{comms.KindRestockRequest, comms.KindSystemAlert, comms.KindRestockCompleted}
	}
	return nil
}

func (e *Employee) Info(st *world.State) Info {
	emp, _ := st.Employee(e.id)
	info := e.info(emp.Name)
	if !rules.Available(emp, e.params.OrderCost, e.params) {
		info.Status = StatusBusy
	}
	return info
}

// Backlog returns the number of restock requests waiting for capacity.
func (e *Employee) Backlog() int { return len(e.backlog) }

func (e *Employee) Step(ctx context.Context, st *world.State, bus *comms.Bus) (err error) {
	t := e.begin(ctx, st, bus)
	defer func() { e.end(t, err) }()

	emp, ok := st.Employee(e.id)
	if !ok {
		return world.ErrUnknownEmployee
	}
	if err := st.AdjustWorkload(e.id, -e.recovery*emp.Efficiency); err != nil {
		return err
	}

	if err := e.retryBacklog(t); err != nil {
		return err
	}
	if err := e.dispatch(t, e.table); err != nil {
		return err
	}
	if err := e.processOrders(t); err != nil {
		return err
	}
	if e.role.CanMonitorStock() {
		eff := rules.Restock(st, e.id, e.roster.Specialists())
		if err := t.apply(eff); err != nil {
			return err
		}
		e.coverOwnRequests(eff)
	}
	return nil
}

// coverOwnRequests queues a manager's own broadcast requests for its next turn, since
// broadcasts are never delivered back to the sender.
func (e *Employee) coverOwnRequests(eff rules.Effects) {
	if e.role != world.RoleManager {
		return
	}
	for _, m := range eff.Messages {
		if req, ok := m.Payload.(comms.RestockRequest); ok && m.Broadcast() {
			e.backlog = append(e.backlog, req)
		}
	}
}

func (e *Employee) self(t *turn) (world.Employee, error) {
	emp, ok := t.st.Employee(e.id)
	if !ok {
		return world.Employee{}, world.ErrUnknownEmployee
	}
	return emp, nil
}

// processOrders retries every pending order assigned to this employee, oldest first,
// until capacity runs out. What is left is offered to a colleague.
func (e *Employee) processOrders(t *turn) error {
	orders := t.st.PendingOrders(e.id)
	for i, o := range orders {
		emp, err := e.self(t)
		if err != nil {
			return err
		}
		eff, err := rules.ProcessOrder(t.st, o, emp, e.params, t.step)
		if err != nil {
			return err
		}
		if eff.Empty() {
			return e.handOff(t, orders[i:])
		}
		e.status = StatusWorking
		if err := t.apply(eff); err != nil {
			return err
		}
	}
	return nil
}

// handOff reassigns orders that have waited since an earlier step to the counter
// colleague the roster would pick for a new order, provided that colleague has
// capacity now.
func (e *Employee) handOff(t *turn, orders []world.Order) error {
	to := e.roster.Pick(t.st, e.params)
	if to == "" || to == e.id {
		return nil
	}
	colleague, ok := t.st.Employee(to)
	if !ok || !rules.Available(colleague, e.params.OrderCost, e.params) {
		return nil
	}
	for _, o := range orders {
		if o.CreatedStep >= t.step {
			continue
		}
		if err := t.apply(rules.Reassign(o, e.id, to)); err != nil {
			return err
		}
	}
	return nil
}

// onPurchaseRequest settles an order handed to this employee ahead of the rest of
// its queue. Orders the customer's turn already settled need nothing.
func (e *Employee) onPurchaseRequest(t *turn, m comms.Message) error {
	req, ok := m.Payload.(comms.PurchaseRequest)
	if !ok {
		return nil
	}
	o, ok := t.st.Order(req.OrderID)
	if !ok {
		return fmt.Errorf("purchase request %s: %w", req.OrderID, world.ErrUnknownOrder)
	}
	if o.Status != world.OrderPending || o.AssignedTo != e.id {
		return nil
	}
	emp, err := e.self(t)
	if err != nil {
		return err
	}
	eff, err := rules.ProcessOrder(t.st, o, emp, e.params, t.step)
	if err != nil {
		return err
	}
	if !eff.Empty() {
		e.status = StatusWorking
	}
	return t.apply(eff)
}

func (e *Employee) onRestockRequest(t *turn, m comms.Message) error {
	req, ok := m.Payload.(comms.RestockRequest)
	if !ok {
		return nil
	}
	// Managers only cover for a missing specialist.
	if e.role == world.RoleManager && !m.Broadcast() {
		return nil
	}
	if err := e.fulfil(t, req); err != nil {
		return e.withdraw(t, req, err)
	}
	return nil
}

// withdraw gives up on a request whose fulfilment failed. The outstanding flag is
// cleared so the restock rule asks again.
func (e *Employee) withdraw(t *turn, req comms.RestockRequest, cause error) error {
	undo := rules.Effects{Intents: []rules.Intent{rules.ClearRestockRequested{BookID: req.BookID}}}
	if err := t.apply(undo); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (e *Employee) fulfil(t *turn, req comms.RestockRequest) error {
	emp, err := e.self(t)
	if err != nil {
		return err
	}
	eff, done, err := rules.FulfillRestock(t.st, req, emp, e.params, t.step)
	if err != nil {
		return err
	}
	if !done {
		e.backlog = append(e.backlog, req)
		return nil
	}
	if !eff.Empty() {
		e.status = StatusWorking
	}
	return t.apply(eff)
}

func (e *Employee) retryBacklog(t *turn) error {
	pending := e.backlog
	e.backlog = nil
	for i, req := range pending {
		if err := e.fulfil(t, req); err != nil {
			e.backlog = append(e.backlog, pending[i+1:]...)
			return e.withdraw(t, req, err)
		}
	}
	return nil
}

func (e *Employee) onAlert(t *turn, m comms.Message) error {
	a, ok := m.Payload.(comms.SystemAlert)
	if !ok || a.Type != comms.AlertPromotionSuggestion || e.announced[a.BookID] {
		return nil
	}
	e.announced[a.BookID] = true
	return t.apply(rules.SaleAnnouncement(e.id, a))
}

// onRestockCompleted ends any sale on the book and announces the new stock.
func (e *Employee) onRestockCompleted(t *turn, m comms.Message) error {
	done, ok := m.Payload.(comms.RestockCompleted)
	if !ok {
		return nil
	}
	delete(e.announced, done.BookID)
	return t.apply(rules.NewArrivals(e.id, done))
}
