package rules

import (
	"testing"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/world"
)

// newTestWorld builds a store with one customer (budget 20), a book priced 12.65
// with stock 5, a book priced 10.00 with stock 0, and one of each employee role.
func newTestWorld(t *testing.T) (*world.State, *comms.Bus) {
	t.Helper()
	st := world.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	must(st.AddGenre(world.Genre{ID: "mystery"}))
	must(st.AddAuthor(world.Author{ID: "christie"}))
	must(st.AddBook(world.Book{ID: "book-a", AuthorID: "christie", GenreID: "mystery", Price: 12.65, Popularity: 0.5},
		world.InventoryRecord{Quantity: 5, ReorderLevel: 2}))
	must(st.AddBook(world.Book{ID: "book-b", AuthorID: "christie", GenreID: "mystery", Price: 10.0, Popularity: 0.5},
		world.InventoryRecord{Quantity: 0, ReorderLevel: 0}))
	must(st.AddCustomer(world.Customer{ID: "cust-1", Budget: 20, Satisfaction: 0.5, Preferences: []string{"mystery"}}))
	must(st.AddEmployee(world.Employee{ID: "emp-mgr", Role: world.RoleManager, Efficiency: 1}))
	must(st.AddEmployee(world.Employee{ID: "emp-inv", Role: world.RoleInventorySpecialist, Efficiency: 1}))
	must(st.AddEmployee(world.Employee{ID: "emp-sales", Role: world.RoleSalesAssociate, Efficiency: 1}))

	bus := comms.NewBus()
	for _, id := range []string{"cust-1", "emp-mgr", "emp-inv", "emp-sales", "book-a", "book-b"} {
		must(bus.Register(id))
	}
	return st, bus
}

func customer(t *testing.T, st *world.State) world.Customer {
	t.Helper()
	c, ok := st.Customer("cust-1")
	if !ok {
		t.Fatal("customer missing")
	}
	return c
}

func TestPurchaseScenario(t *testing.T) {
	st, bus := newTestWorld(t)
	p := DefaultParams()
	emp, _ := st.Employee("emp-sales")

	// Budget 20 buys a 12.65 book with stock 5.
	o, err := st.CreateOrder("cust-1", "book-a", 1, "emp-sales", 1)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	eff, err := ProcessOrder(st, o, emp, p, 1)
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if len(eff.Messages) != 1 || eff.Messages[0].Kind != comms.KindPurchaseCompleted {
		t.Fatalf("messages = %+v, want one PurchaseCompleted", eff.Messages)
	}
	if err := eff.Apply(st, bus); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	inv, _ := st.Inventory("book-a")
	if inv.Quantity != 4 {
		t.Errorf("stock = %d, want 4", inv.Quantity)
	}
	if c := customer(t, st); c.Budget != 7.35 {
		t.Errorf("budget = %v, want 7.35", c.Budget)
	}
	if bus.Pending("cust-1") != 1 {
		t.Errorf("customer queue = %d, want 1 PurchaseCompleted", bus.Pending("cust-1"))
	}

	before := customer(t, st).Satisfaction
	bus.BeginStep(2)
	for _, m := range bus.Drain("cust-1") {
		if err := Satisfaction(customer(t, st), m, p).Apply(st, bus); err != nil {
			t.Fatalf("Satisfaction: %v", err)
		}
	}
	after := customer(t, st).Satisfaction
	if after <= before {
		t.Errorf("satisfaction %v -> %v, want increase", before, after)
	}

	// The same customer then asks for a 10.00 book with stock 0.
	o2, _ := st.CreateOrder("cust-1", "book-b", 1, "emp-sales", 2)
	emp, _ = st.Employee("emp-sales")
	eff, err = ProcessOrder(st, o2, emp, p, 2)
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if len(eff.Messages) != 1 {
		t.Fatalf("messages = %+v", eff.Messages)
	}
	rej, ok := eff.Messages[0].Payload.(comms.PurchaseRejected)
	if !ok || rej.Reason != world.ReasonInsufficientStock {
		t.Fatalf("payload = %#v, want PurchaseRejected(InsufficientStock)", eff.Messages[0].Payload)
	}
	if err := eff.Apply(st, bus); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c := customer(t, st); c.Budget != 7.35 {
		t.Errorf("budget = %v, want unchanged 7.35", c.Budget)
	}
	got, _ := st.Order(o2.ID)
	if got.Status != world.OrderRejected {
		t.Errorf("order status = %q, want rejected", got.Status)
	}

	bus.BeginStep(3)
	for _, m := range bus.Drain("cust-1") {
		_ = Satisfaction(customer(t, st), m, p).Apply(st, bus)
	}
	if s := customer(t, st).Satisfaction; s >= after {
		t.Errorf("satisfaction %v -> %v, want decrease", after, s)
	}
}

func TestPurchase_InsufficientBudget(t *testing.T) {
	st, _ := newTestWorld(t)

	o, _ := st.CreateOrder("cust-1", "book-a", 2, "", 1)
	eff, err := Purchase(st, o, "emp-sales", 1)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	rej, ok := eff.Messages[0].Payload.(comms.PurchaseRejected)
	if !ok || rej.Reason != world.ReasonInsufficientBudget {
		t.Errorf("payload = %#v, want InsufficientBudget", eff.Messages[0].Payload)
	}
}

func TestProcessOrder_NoCapacity(t *testing.T) {
	st, _ := newTestWorld(t)
	p := DefaultParams()

	_ = st.AdjustWorkload("emp-sales", p.Capacity)
	emp, _ := st.Employee("emp-sales")
	o, _ := st.CreateOrder("cust-1", "book-a", 1, "emp-sales", 1)
	eff, err := ProcessOrder(st, o, emp, p, 1)
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if !eff.Empty() {
		t.Errorf("busy employee produced effects: %+v", eff)
	}
}

func TestRestockScenario(t *testing.T) {
	_, bus := newTestWorld(t)
	p := DefaultParams()

	// book-a sits at 2 with reorder level 5.
	st := worldWithStock(t, 2, 5)

	eff := Restock(st, "emp-mgr", []string{"emp-inv"})
	if len(eff.Messages) != 1 {
		t.Fatalf("step 1: %d restock requests, want 1", len(eff.Messages))
	}
	if eff.Messages[0].Recipient != "emp-inv" {
		t.Errorf("recipient = %q, want emp-inv", eff.Messages[0].Recipient)
	}
	if err := eff.Apply(st, bus); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for step := 2; step < 5; step++ {
		if again := Restock(st, "emp-mgr", []string{"emp-inv"}); !again.Empty() {
			t.Errorf("step %d: duplicate restock request", step)
		}
	}

	req := comms.RestockRequest{BookID: "book-a"}
	emp, _ := st.Employee("emp-inv")
	done, ok, err := FulfillRestock(st, req, emp, p, 5)
	if err != nil || !ok {
		t.Fatalf("FulfillRestock: ok=%v err=%v", ok, err)
	}
	if err := done.Apply(st, bus); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	inv, _ := st.Inventory("book-a")
	if inv.Quantity != 2+p.RestockQuantity || inv.RestockRequested {
		t.Errorf("inventory = %+v", inv)
	}
	emp, _ = st.Employee("emp-inv")
	if emp.Workload != p.RestockCost || emp.Restocks != 1 {
		t.Errorf("employee = %+v", emp)
	}

	// A second delivery of the same request is a no-op.
	again, ok, _ := FulfillRestock(st, req, emp, p, 6)
	if !ok || !again.Empty() {
		t.Errorf("repeat fulfilment = %+v ok=%v", again, ok)
	}
}

// worldWithStock returns a fresh world whose single book has the given stock and
// reorder level.
func worldWithStock(t *testing.T, stock, level int) *world.State {
	t.Helper()
	st := world.New()
	_ = st.AddGenre(world.Genre{ID: "g"})
	_ = st.AddAuthor(world.Author{ID: "a"})
	if err := st.AddBook(world.Book{ID: "book-a", AuthorID: "a", GenreID: "g", Price: 1},
		world.InventoryRecord{Quantity: stock, ReorderLevel: level}); err != nil {
		t.Fatalf("AddBook: %v", err)
	}
	_ = st.AddEmployee(world.Employee{ID: "emp-inv", Role: world.RoleInventorySpecialist, Efficiency: 1})
	return st
}

func TestRestock_BroadcastWithoutSpecialist(t *testing.T) {
	st := worldWithStock(t, 0, 3)
	eff := Restock(st, "emp-mgr", nil)
	if len(eff.Messages) != 1 || !eff.Messages[0].Broadcast() {
		t.Fatalf("messages = %+v, want one broadcast", eff.Messages)
	}
}

func TestFulfillRestock_Busy(t *testing.T) {
	st := worldWithStock(t, 0, 3)
	p := DefaultParams()
	_ = st.MarkRestockRequested("book-a")
	_ = st.AdjustWorkload("emp-inv", p.Capacity-1)
	emp, _ := st.Employee("emp-inv")

	eff, ok, err := FulfillRestock(st, comms.RestockRequest{BookID: "book-a"}, emp, p, 1)
	if err != nil {
		t.Fatalf("FulfillRestock: %v", err)
	}
	if ok || !eff.Empty() {
		t.Errorf("busy employee: ok=%v eff=%+v, want retry later", ok, eff)
	}
}

func TestSatisfaction_Clamped(t *testing.T) {
	p := DefaultParams()
	c := world.Customer{ID: "c", Satisfaction: 0.01}
	eff := Satisfaction(c, comms.New("e", "c", comms.PurchaseRejected{}), p)
	if got := eff.Intents[0].(SetSatisfaction).Value; got != 0 {
		t.Errorf("satisfaction = %v, want 0", got)
	}
	if !Satisfaction(c, comms.New("e", "c", comms.OrderCreated{}), p).Empty() {
		t.Error("unrelated message changed satisfaction")
	}
}

func TestPopularity(t *testing.T) {
	p := DefaultParams()

	up := Popularity(world.Book{ID: "b", Popularity: 0.98}, 3, p)
	if v := up.Intents[0].(SetPopularity).Value; v != 1 {
		t.Errorf("boost = %v, want capped at 1", v)
	}
	down := Popularity(world.Book{ID: "b", Popularity: 0.11}, 0, p)
	if v := down.Intents[0].(SetPopularity).Value; v != p.PopularityFloor {
		t.Errorf("decay = %v, want floor %v", v, p.PopularityFloor)
	}
	if !Popularity(world.Book{ID: "b", Popularity: p.PopularityFloor}, 0, p).Empty() {
		t.Error("book at floor should not change")
	}
}
