package agent

import (
	"github.com/GoCodeAlone/bookstore/rules"
	"github.com/GoCodeAlone/bookstore/world"
)

// Roster is the fixed list of employees, grouped by what they can do. Role never
// changes, so the groups are computed once.
type Roster struct {
	counter     []string // sales-capable, identifier order
	specialists []string // inventory specialists, identifier order
}

// NewRoster builds a roster from the employees currently in st.
func NewRoster(st *world.State) *Roster {
	r := &Roster{}
	for _, e := range st.Employees() {
		if e.Role.CanSell() {
			r.counter = append(r.counter, e.ID)
		}
		if e.Role == world.RoleInventorySpecialist {
			r.specialists = append(r.specialists, e.ID)
		}
	}
	return r
}

// Counter returns the sales-capable employees.
func (r *Roster) Counter() []string { return r.counter }

// Specialists returns the inventory specialists.
func (r *Roster) Specialists() []string { return r.specialists }

// Pick selects the employee to take a new order. Prefers the first available
// employee in identifier order; falls back to the least-loaded one. Returns "" when
// nobody works the counter.
func (r *Roster) Pick(st *world.State, p rules.Params) string {
	var fallback string
	var fallbackLoad float64
	for _, id := range r.counter {
		e, ok := st.Employee(id)
		if !ok {
			continue
		}
		if rules.Available(e, p.OrderCost, p) {
			return id
		}
		if fallback == "" || e.Workload < fallbackLoad {
			fallback, fallbackLoad = id, e.Workload
		}
	}
	return fallback
}
