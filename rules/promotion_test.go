package rules

import (
	"testing"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/world"
)

func TestPromotionRule_Default(t *testing.T) {
	r, err := NewPromotionRule("")
	if err != nil {
		t.Fatalf("NewPromotionRule: %v", err)
	}
	if r.Expr() != DefaultPromotionExpr {
		t.Errorf("Expr = %q", r.Expr())
	}

	cases := []struct {
		stock int
		pop   float64
		want  bool
	}{
		{stock: 5, pop: 0.8, want: true},
		{stock: 6, pop: 0.8, want: false},
		{stock: 2, pop: 0.7, want: false},
		{stock: 0, pop: 1.0, want: true},
	}
	for _, tc := range cases {
		got, err := r.Match(world.Book{Popularity: tc.pop, Price: 9.99}, world.InventoryRecord{Quantity: tc.stock})
		if err != nil {
			t.Fatalf("Match: %v", err)
		}
		if got != tc.want {
			t.Errorf("stock=%d pop=%v: got %v, want %v", tc.stock, tc.pop, got, tc.want)
		}
	}
}

func TestPromotionRule_Custom(t *testing.T) {
	r, err := NewPromotionRule("sales >= 3 && stock < reorder_level && price > 10")
	if err != nil {
		t.Fatalf("NewPromotionRule: %v", err)
	}
	ok, err := r.Match(world.Book{Sales: 3, Price: 12.99}, world.InventoryRecord{Quantity: 1, ReorderLevel: 5})
	if err != nil || !ok {
		t.Errorf("Match = %v, %v; want true", ok, err)
	}
}

func TestPromotionRule_Invalid(t *testing.T) {
	if _, err := NewPromotionRule("stock <="); err == nil {
		t.Error("expected compile error")
	}
	if _, err := NewPromotionRule("unknown_var > 1"); err == nil {
		t.Error("expected error for undeclared variable")
	}
	r, err := NewPromotionRule("stock + 1")
	if err != nil {
		t.Fatalf("NewPromotionRule: %v", err)
	}
	if _, err := r.Match(world.Book{}, world.InventoryRecord{}); err == nil {
		t.Error("expected non-bool result error")
	}
}

func TestSuggestionAndAnnouncements(t *testing.T) {
	eff := Suggestion(world.Book{ID: "b1"})
	alert := eff.Messages[0].Payload.(comms.SystemAlert)
	if alert.Type != comms.AlertPromotionSuggestion || !eff.Messages[0].Broadcast() {
		t.Errorf("suggestion = %+v", eff.Messages[0])
	}

	sale := SaleAnnouncement("mgr", alert)
	if got := sale.Messages[0].Payload.(comms.SystemAlert); got.Type != comms.AlertSale || got.BookID != "b1" {
		t.Errorf("sale = %+v", got)
	}
	if !SaleAnnouncement("mgr", comms.SystemAlert{Type: comms.AlertSale}).Empty() {
		t.Error("sale alert should not be re-announced")
	}

	arr := NewArrivals("mgr", comms.RestockCompleted{BookID: "b1", Added: 20})
	if got := arr.Messages[0].Payload.(comms.SystemAlert); got.Type != comms.AlertNewArrivals {
		t.Errorf("new arrivals = %+v", got)
	}
}
