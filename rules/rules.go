// Package rules evaluates the bookstore business rules. Every rule is a pure function
// of the world state and its inputs and returns Effects for the caller to apply.
package rules

import (
	"fmt"
	"math"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/world"
)

// Params holds the tunable constants shared by the rules.
type Params struct {
	SatisfactionGain    float64 // fraction of (1 - s) gained on a completed purchase
	SatisfactionPenalty float64 // absolute loss on a rejected purchase
	RestockQuantity     int
	Capacity            float64 // workload ceiling for an employee
	OrderCost           float64
	RestockCost         float64
	TrendBoost          float64
	PopularityDecay     float64
	PopularityFloor     float64
}

// DefaultParams returns the reference constants.
func DefaultParams() Params {
	return Params{
		SatisfactionGain:    0.1,
		SatisfactionPenalty: 0.05,
		RestockQuantity:     20,
		Capacity:            10,
		OrderCost:           1,
		RestockCost:         2,
		TrendBoost:          0.05,
		PopularityDecay:     0.02,
		PopularityFloor:     0.1,
	}
}

// Available reports whether e can take on work of the given cost.
func Available(e world.Employee, cost float64, p Params) bool {
	return e.Workload+cost <= p.Capacity
}

// Purchase decides a pending order. It succeeds iff stock covers the quantity and the
// customer's budget covers the total; stock is checked first. sender signs the reply
// sent to the customer.
func Purchase(st *world.State, o world.Order, sender string, step int) (Effects, error) {
	if o.Status != world.OrderPending {
		return Effects{}, nil
	}
	inv, ok := st.Inventory(o.BookID)
	if !ok {
		return Effects{}, fmt.Errorf("purchase %s: %w", o.ID, world.ErrUnknownBook)
	}
	c, ok := st.Customer(o.CustomerID)
	if !ok {
		return Effects{}, fmt.Errorf("purchase %s: %w", o.ID, world.ErrUnknownCustomer)
	}

	var reason world.RejectReason
	switch {
	case inv.Quantity < o.Quantity:
		reason = world.ReasonInsufficientStock
	case c.Budget < o.Total:
		reason = world.ReasonInsufficientBudget
	}

	if reason != "" {
		return Effects{
			Intents: []Intent{RejectOrder{OrderID: o.ID, Reason: reason, Step: step}},
			Messages: []comms.Message{comms.New(sender, o.CustomerID, comms.PurchaseRejected{
				OrderID: o.ID, BookID: o.BookID, Quantity: o.Quantity, Reason: reason,
			})},
		}, nil
	}
	return Effects{
		Intents: []Intent{ApplyPurchase{OrderID: o.ID, Step: step}},
		Messages: []comms.Message{comms.New(sender, o.CustomerID, comms.PurchaseCompleted{
			OrderID: o.ID, BookID: o.BookID, Quantity: o.Quantity, Total: o.Total,
		})},
	}, nil
}

// ProcessOrder runs the purchase rule for a pending order on behalf of its assigned
// employee. An employee without capacity leaves the order pending.
func ProcessOrder(st *world.State, o world.Order, e world.Employee, p Params, step int) (Effects, error) {
	if o.Status != world.OrderPending || !Available(e, p.OrderCost, p) {
		return Effects{}, nil
	}
	eff, err := Purchase(st, o, e.ID, step)
	if err != nil {
		return Effects{}, err
	}
	eff.Intents = append(eff.Intents, AdjustWorkload{EmployeeID: e.ID, Delta: p.OrderCost})
	return eff, nil
}

// Restock emits one RestockRequest for every book below its reorder level that has
// no request outstanding. Requests go to the first specialist, or are broadcast when
// there is none.
func Restock(st *world.State, sender string, specialists []string) Effects {
	var eff Effects
	for _, inv := range st.InventoryRecords() {
		if !inv.BelowReorderLevel() || inv.RestockRequested {
			continue
		}
		recipient := ""
		if len(specialists) > 0 {
			recipient = specialists[0]
		}
		eff.Intents = append(eff.Intents, MarkRestockRequested{BookID: inv.BookID})
		eff.Messages = append(eff.Messages, comms.New(sender, recipient, comms.RestockRequest{
			BookID: inv.BookID, Quantity: inv.Quantity, ReorderLevel: inv.ReorderLevel,
		}))
	}
	return eff
}

// FulfillRestock restocks the requested book if the request is still outstanding and
// the employee has capacity. ok is false when the employee should retry later.
func FulfillRestock(st *world.State, req comms.RestockRequest, e world.Employee, p Params, step int) (eff Effects, ok bool, err error) {
	inv, found := st.Inventory(req.BookID)
	if !found {
		return Effects{}, false, fmt.Errorf("restock %s: %w", req.BookID, world.ErrUnknownBook)
	}
	if !inv.RestockRequested {
		return Effects{}, true, nil
	}
	if !Available(e, p.RestockCost, p) {
		return Effects{}, false, nil
	}
	return Effects{
		Intents: []Intent{
			ApplyRestock{BookID: req.BookID, Quantity: p.RestockQuantity, Step: step, By: e.ID},
			AdjustWorkload{EmployeeID: e.ID, Delta: p.RestockCost},
		},
		Messages: []comms.Message{comms.New(e.ID, "", comms.RestockCompleted{
			BookID: req.BookID, Added: p.RestockQuantity, NewQuantity: inv.Quantity + p.RestockQuantity,
		})},
	}, true, nil
}

// Satisfaction moves a customer's satisfaction toward 1 on a completed purchase and
// toward 0 on a rejection. Any other message is a no-op.
func Satisfaction(c world.Customer, msg comms.Message, p Params) Effects {
	s := c.Satisfaction
	switch msg.Kind {
	case comms.KindPurchaseCompleted:
		s += p.SatisfactionGain * (1 - s)
	case comms.KindPurchaseRejected:
		s -= p.SatisfactionPenalty
	default:
		return Effects{}
	}
	return Effects{Intents: []Intent{SetSatisfaction{CustomerID: c.ID, Value: clamp01(s)}}}
}

// Popularity boosts a book that sold since its last activation and decays one that
// did not, never decaying below the floor.
func Popularity(b world.Book, soldSinceLast int, p Params) Effects {
	v := b.Popularity
	switch {
	case soldSinceLast > 0:
		v = math.Min(1, v+p.TrendBoost)
	case v > p.PopularityFloor:
		v = math.Max(p.PopularityFloor, v-p.PopularityDecay)
	}
	if v == b.Popularity {
		return Effects{}
	}
	return Effects{Intents: []Intent{SetPopularity{BookID: b.ID, Value: v}}}
}

// SaleAnnouncement turns a promotion suggestion into a store-wide sale alert.
func SaleAnnouncement(managerID string, suggestion comms.SystemAlert) Effects {
	if suggestion.Type != comms.AlertPromotionSuggestion {
		return Effects{}
	}
	return Effects{Messages: []comms.Message{comms.New(managerID, "", comms.SystemAlert{
		Type: comms.AlertSale, BookID: suggestion.BookID, Text: "sale on " + suggestion.BookID,
	})}}
}

// NewArrivals announces a completed restock.
func NewArrivals(managerID string, done comms.RestockCompleted) Effects {
	return Effects{Messages: []comms.Message{comms.New(managerID, "", comms.SystemAlert{
		Type: comms.AlertNewArrivals, BookID: done.BookID, Text: fmt.Sprintf("%d new copies of %s", done.Added, done.BookID),
	})}}
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }
