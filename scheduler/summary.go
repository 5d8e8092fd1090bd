package scheduler

import (
	"github.com/GoCodeAlone/bookstore/world"
)

// Summary is the end-of-run report derived from the snapshot history.
type Summary struct {
	Steps             int     `json:"steps"`
	Revenue           float64 `json:"revenue"`
	BooksSold         int     `json:"books_sold"`
	ProcessedOrders   int     `json:"processed_orders"`
	RejectedOrders    int     `json:"rejected_orders"`
	AvgSatisfaction   float64 `json:"avg_satisfaction"`
	FinalStock        int     `json:"final_stock"`
	MessagesPublished int     `json:"messages_published"`
	SkippedTurns      int     `json:"skipped_turns"`

	PurchaseRate      float64 `json:"purchase_rate"`      // books sold per step
	EngagementRate    float64 `json:"engagement_rate"`    // share of customers who bought anything
	InventoryTurnover float64 `json:"inventory_turnover"` // books sold over mean stock
	MessagesPerStep   float64 `json:"messages_per_step"`
	AvgEfficiency     float64 `json:"avg_efficiency"`
}

// Summarize computes the run summary. history must start with the step-0 snapshot.
func Summarize(history []Snapshot, st *world.State) Summary {
	var s Summary
	if len(history) == 0 {
		return s
	}
	last := history[len(history)-1]
	s.Steps = last.Step
	s.Revenue = last.Revenue
	s.BooksSold = last.BooksSold
	s.ProcessedOrders = last.ProcessedOrders
	s.RejectedOrders = last.RejectedOrders
	s.AvgSatisfaction = last.AvgSatisfaction
	s.FinalStock = last.TotalStock
	s.MessagesPublished = last.MessagesPublished

	var stock float64
	for _, snap := range history {
		stock += float64(snap.TotalStock)
		s.SkippedTurns += snap.SkippedTurns
	}
	if mean := stock / float64(len(history)); mean > 0 {
		s.InventoryTurnover = round4(float64(s.BooksSold) / mean)
	}
	if s.Steps > 0 {
		s.PurchaseRate = round4(float64(s.BooksSold) / float64(s.Steps))
		s.MessagesPerStep = round4(float64(s.MessagesPublished) / float64(s.Steps))
	}

	customers := st.Customers()
	if len(customers) > 0 {
		engaged := 0
		for _, c := range customers {
			if c.BooksPurchased > 0 {
				engaged++
			}
		}
		s.EngagementRate = round4(float64(engaged) / float64(len(customers)))
	}
	employees := st.Employees()
	if len(employees) > 0 {
		var eff float64
		for _, e := range employees {
			eff += e.Efficiency
		}
		s.AvgEfficiency = round4(eff / float64(len(employees)))
	}
	return s
}
