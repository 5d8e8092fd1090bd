package rules

import (
	"fmt"
	"slices"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/world"
)

// StoreEvents are the periodic store-wide events, in draw order.
var StoreEvents = []comms.AlertType{comms.AlertSale, comms.AlertNewArrivals, comms.AlertMaintenance}

var storeEventText = map[comms.AlertType]string{
	comms.AlertSale:        "store-wide sale",
	comms.AlertNewArrivals: "new arrivals on the shelves",
	comms.AlertMaintenance: "store maintenance in progress",
}

// StoreEvent broadcasts a store-wide event from sender. A maintenance event also
// scales the efficiency of every employee by factor.
func StoreEvent(st *world.State, sender string, event comms.AlertType, factor float64) (Effects, error) {
	if !slices.Contains(StoreEvents, event) {
		return Effects{}, fmt.Errorf("store event %q: not a store event", event)
	}
	var eff Effects
	if event == comms.AlertMaintenance {
		for _, e := range st.Employees() {
			eff.Intents = append(eff.Intents, ScaleEfficiency{EmployeeID: e.ID, Factor: factor})
		}
	}
	eff.Messages = append(eff.Messages, comms.New(sender, "", comms.SystemAlert{
		Type: event, Text: storeEventText[event],
	}))
	return eff, nil
}

// Reassign hands a pending order from one counter employee to another and tells the
// new assignee with a PurchaseRequest.
func Reassign(o world.Order, from, to string) Effects {
	if o.Status != world.OrderPending || to == "" || to == o.AssignedTo {
		return Effects{}
	}
	return Effects{
		Intents: []Intent{ReassignOrder{OrderID: o.ID, To: to}},
		Messages: []comms.Message{comms.New(from, to, comms.PurchaseRequest{
			OrderID: o.ID, CustomerID: o.CustomerID, BookID: o.BookID, Quantity: o.Quantity,
		})},
	}
}
