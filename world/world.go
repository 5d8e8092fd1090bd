// Package world holds the shared bookstore state: catalog, inventory, customers,
// employees and orders. A State has exactly one writer at any instant (the agent the
// scheduler is currently activating), so it carries no locks of its own.
package world

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is an employee's job. It is fixed at creation and selects which rules the
// employee evaluates.
type Role string

const (
	RoleManager             Role = "manager"
	RoleSalesAssociate      Role = "sales_associate"
	RoleInventorySpecialist Role = "inventory_specialist"
)

// Roles lists every role in the order used when assigning roles round-robin.
var Roles = []Role{RoleManager, RoleSalesAssociate, RoleInventorySpecialist}

// ParseRole accepts the canonical form ("sales_associate") as well as the display
// form ("Sales Associate").
func ParseRole(s string) (Role, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	norm = strings.ReplaceAll(norm, "-", "_")
	r := Role(norm)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleSalesAssociate, RoleInventorySpecialist:
		return true
	}
	return false
}

// CanSell reports whether the role serves customers at the counter.
func (r Role) CanSell() bool { return r == RoleManager || r == RoleSalesAssociate }

// CanMonitorStock reports whether the role evaluates the restock rule.
func (r Role) CanMonitorStock() bool { return r == RoleManager || r == RoleInventorySpecialist }

// DisplayName renders the role for humans, e.g. "Inventory Specialist".
func (r Role) DisplayName() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(r), "_", " "))
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderProcessed OrderStatus = "processed"
	OrderRejected  OrderStatus = "rejected"
)

// RejectReason is the wire reason code attached to a rejected purchase.
type RejectReason string

const (
	ReasonInsufficientBudget RejectReason = "InsufficientBudget"
	ReasonInsufficientStock  RejectReason = "InsufficientStock"
)

// Genre is a catalog category.
type Genre struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Author is a catalog author.
type Author struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Book is a catalog entry. Sales is the cumulative number of units sold through
// processed orders.
type Book struct {
	ID         string  `json:"id"`
	ISBN       string  `json:"isbn,omitempty"`
	Title      string  `json:"title"`
	AuthorID   string  `json:"author_id"`
	GenreID    string  `json:"genre_id"`
	Price      float64 `json:"price"`
	Popularity float64 `json:"popularity"`
	Sales      int     `json:"sales"`
}

// InventoryRecord tracks stock for one book. Quantity is never negative.
type InventoryRecord struct {
	BookID           string `json:"book_id"`
	Quantity         int    `json:"quantity"`
	ReorderLevel     int    `json:"reorder_level"`
	LastRestocked    int    `json:"last_restocked"`
	RestockRequested bool   `json:"restock_requested"`
}

// BelowReorderLevel reports whether the record should trigger a restock request.
func (r InventoryRecord) BelowReorderLevel() bool { return r.Quantity < r.ReorderLevel }

// Customer is a shopper. Budget only ever decreases from InitialBudget and
// Satisfaction stays within [0,1].
type Customer struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Budget         float64  `json:"budget"`
	InitialBudget  float64  `json:"initial_budget"`
	Satisfaction   float64  `json:"satisfaction"`
	Preferences    []string `json:"preferences"` // genre IDs, strongest first
	BooksPurchased int      `json:"books_purchased"`
	TotalSpent     float64  `json:"total_spent"`
}

// PreferenceRank returns the position of genreID in the customer's preference list,
// or -1 when the genre is not preferred.
func (c Customer) PreferenceRank(genreID string) int {
	for i, g := range c.Preferences {
		if g == genreID {
			return i
		}
	}
	return -1
}

// Employee is a staff member. Workload accumulates with work and recovers each step.
type Employee struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Role            Role    `json:"role"`
	Efficiency      float64 `json:"efficiency"`
	Workload        float64 `json:"workload"`
	OrdersProcessed int     `json:"orders_processed"`
	Restocks        int     `json:"restocks"`
}

// Order is a purchase request. It leaves OrderPending exactly once.
type Order struct {
	ID           string       `json:"id"`
	CustomerID   string       `json:"customer_id"`
	BookID       string       `json:"book_id"`
	Quantity     int          `json:"quantity"`
	Status       OrderStatus  `json:"status"`
	CreatedStep  int          `json:"created_step"`
	ResolvedStep int          `json:"resolved_step,omitempty"`
	Total        float64      `json:"total"`
	AssignedTo   string       `json:"assigned_to,omitempty"`
	Reason       RejectReason `json:"reason,omitempty"`
}
