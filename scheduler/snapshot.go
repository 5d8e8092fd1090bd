package scheduler

import (
	"math"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/world"
)

// BookStats is the per-book part of a snapshot.
type BookStats struct {
	BookID     string  `json:"book_id"`
	Title      string  `json:"title"`
	Stock      int     `json:"stock"`
	Sales      int     `json:"sales"`
	Popularity float64 `json:"popularity"`
}

// Snapshot is an immutable summary of the store at the end of a step. It carries no
// wall-clock data, so identical runs produce identical snapshots.
type Snapshot struct {
	Step                int             `json:"step"`
	Revenue             float64         `json:"revenue"`
	BooksSold           int             `json:"books_sold"`
	AvgSatisfaction     float64         `json:"avg_satisfaction"`
	AvgBudget           float64         `json:"avg_budget"`
	TotalStock          int             `json:"total_stock"`
	LowStockItems       int             `json:"low_stock_items"`
	Books               []BookStats     `json:"books"`
	OutstandingMessages int             `json:"outstanding_messages"`
	MessagesPublished   int             `json:"messages_published"`
	PendingOrders       int             `json:"pending_orders"`
	ProcessedOrders     int             `json:"processed_orders"`
	RejectedOrders      int             `json:"rejected_orders"`
	SkippedTurns        int             `json:"skipped_turns"`
	Event               comms.AlertType `json:"event,omitempty"` // store-wide event of this step
}

// Collect builds the snapshot for step from the current world and bus.
func Collect(st *world.State, bus *comms.Bus, step, skipped int) Snapshot {
	snap := Snapshot{
		Step:                step,
		OutstandingMessages: bus.Outstanding(),
		MessagesPublished:   bus.Published(),
		SkippedTurns:        skipped,
	}

	for _, b := range st.Books() {
		inv, _ := st.Inventory(b.ID)
		snap.Books = append(snap.Books, BookStats{
			BookID:     b.ID,
			Title:      b.Title,
			Stock:      inv.Quantity,
			Sales:      b.Sales,
			Popularity: round4(b.Popularity),
		})
		snap.TotalStock += inv.Quantity
		if inv.Quantity <= inv.ReorderLevel {
			snap.LowStockItems++
		}
	}

	customers := st.Customers()
	if n := len(customers); n > 0 {
		var sat, budget float64
		for _, c := range customers {
			sat += c.Satisfaction
			budget += c.Budget
		}
		snap.AvgSatisfaction = round4(sat / float64(n))
		snap.AvgBudget = round2(budget / float64(n))
	}

	for _, o := range st.Orders() {
		switch o.Status {
		case world.OrderPending:
			snap.PendingOrders++
		case world.OrderProcessed:
			snap.ProcessedOrders++
			snap.BooksSold += o.Quantity
			snap.Revenue += o.Total
		case world.OrderRejected:
			snap.RejectedOrders++
		}
	}
	snap.Revenue = round2(snap.Revenue)
	return snap
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

const (
	minActiveBudget = 10.0
	minHealthy      = 2
)

// Health measures whether a run can still make progress.
type Health struct {
	ActiveCustomers int `json:"active_customers"` // budget above 10
	StockedBooks    int `json:"stocked_books"`    // at least one copy on the shelf
}

// Degraded reports fewer than two active customers or fewer than two stocked books.
func (h Health) Degraded() bool {
	return h.ActiveCustomers < minHealthy || h.StockedBooks < minHealthy
}

// CheckHealth measures st.
func CheckHealth(st *world.State) Health {
	var h Health
	for _, c := range st.Customers() {
		if c.Budget > minActiveBudget {
			h.ActiveCustomers++
		}
	}
	for _, inv := range st.InventoryRecords() {
		if inv.Quantity > 0 {
			h.StockedBooks++
		}
	}
	return h
}
