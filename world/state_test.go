package world

import (
	"errors"
	"testing"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	st := New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup: %v", err)
		}
	}
	must(st.AddGenre(Genre{ID: "mystery", Name: "Mystery"}))
	must(st.AddGenre(Genre{ID: "fiction", Name: "Fiction"}))
	must(st.AddAuthor(Author{ID: "christie", Name: "Agatha Christie"}))
	must(st.AddBook(
		Book{ID: "book-a", Title: "A", AuthorID: "christie", GenreID: "mystery", Price: 12.65, Popularity: 0.5},
		InventoryRecord{Quantity: 5, ReorderLevel: 5},
	))
	must(st.AddBook(
		Book{ID: "book-b", Title: "B", AuthorID: "christie", GenreID: "fiction", Price: 10.0, Popularity: 0.5},
		InventoryRecord{Quantity: 0, ReorderLevel: 5},
	))
	must(st.AddCustomer(Customer{ID: "cust-1", Name: "Ann", Budget: 20.0, Satisfaction: 0.5, Preferences: []string{"mystery"}}))
	must(st.AddEmployee(Employee{ID: "emp-1", Name: "Bob", Role: RoleSalesAssociate, Efficiency: 0.9}))
	return st
}

func TestApplyPurchase_Success(t *testing.T) {
	st := newTestState(t)

	o, err := st.CreateOrder("cust-1", "book-a", 1, "emp-1", 1)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.ID != "ord-000001" {
		t.Errorf("order ID = %q, want ord-000001", o.ID)
	}
	if o.Total != 12.65 {
		t.Errorf("Total = %v, want 12.65", o.Total)
	}
	if err := st.ApplyPurchase(o.ID, 1); err != nil {
		t.Fatalf("ApplyPurchase: %v", err)
	}

	inv, _ := st.Inventory("book-a")
	if inv.Quantity != 4 {
		t.Errorf("stock = %d, want 4", inv.Quantity)
	}
	c, _ := st.Customer("cust-1")
	if c.Budget != 7.35 {
		t.Errorf("budget = %v, want 7.35", c.Budget)
	}
	if c.BooksPurchased != 1 || c.TotalSpent != 12.65 {
		t.Errorf("purchased=%d spent=%v, want 1 and 12.65", c.BooksPurchased, c.TotalSpent)
	}
	b, _ := st.Book("book-a")
	if b.Sales != 1 {
		t.Errorf("sales = %d, want 1", b.Sales)
	}
	if b.Popularity <= 0.5 {
		t.Errorf("popularity = %v, want > 0.5", b.Popularity)
	}
	got, _ := st.Order(o.ID)
	if got.Status != OrderProcessed || got.ResolvedStep != 1 {
		t.Errorf("order = %+v, want processed at step 1", got)
	}
	e, _ := st.Employee("emp-1")
	if e.OrdersProcessed != 1 {
		t.Errorf("OrdersProcessed = %d, want 1", e.OrdersProcessed)
	}
}

func TestApplyPurchase_InsufficientStock(t *testing.T) {
	st := newTestState(t)

	o, err := st.CreateOrder("cust-1", "book-b", 1, "", 2)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	err = st.ApplyPurchase(o.ID, 2)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	c, _ := st.Customer("cust-1")
	if c.Budget != 20.0 {
		t.Errorf("budget = %v, want unchanged 20", c.Budget)
	}
	got, _ := st.Order(o.ID)
	if got.Status != OrderRejected || got.Reason != ReasonInsufficientStock {
		t.Errorf("order = %+v, want rejected with InsufficientStock", got)
	}
}

func TestApplyPurchase_StockCheckedBeforeBudget(t *testing.T) {
	st := newTestState(t)

	// 3 units of book-b cost more than the budget and exceed stock.
	o, _ := st.CreateOrder("cust-1", "book-b", 3, "", 1)
	err := st.ApplyPurchase(o.ID, 1)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
}

func TestApplyPurchase_InsufficientBudget(t *testing.T) {
	st := newTestState(t)

	o, _ := st.CreateOrder("cust-1", "book-a", 2, "", 1)
	err := st.ApplyPurchase(o.ID, 1)
	if !errors.Is(err, ErrInsufficientBudget) {
		t.Fatalf("err = %v, want ErrInsufficientBudget", err)
	}
	if ReasonFor(err) != ReasonInsufficientBudget {
		t.Errorf("ReasonFor = %q", ReasonFor(err))
	}
	inv, _ := st.Inventory("book-a")
	if inv.Quantity != 5 {
		t.Errorf("stock = %d, want unchanged 5", inv.Quantity)
	}
}

func TestApplyPurchase_NotPending(t *testing.T) {
	st := newTestState(t)

	o, _ := st.CreateOrder("cust-1", "book-a", 1, "", 1)
	if err := st.ApplyPurchase(o.ID, 1); err != nil {
		t.Fatalf("ApplyPurchase: %v", err)
	}
	if err := st.ApplyPurchase(o.ID, 2); !errors.Is(err, ErrOrderNotPending) {
		t.Errorf("second ApplyPurchase err = %v, want ErrOrderNotPending", err)
	}
	if err := st.RejectOrder(o.ID, ReasonInsufficientStock, 2); !errors.Is(err, ErrOrderNotPending) {
		t.Errorf("RejectOrder err = %v, want ErrOrderNotPending", err)
	}
	if err := st.ApplyPurchase("ord-999999", 2); !errors.Is(err, ErrUnknownOrder) {
		t.Errorf("unknown order err = %v, want ErrUnknownOrder", err)
	}
}

func TestApplyRestock(t *testing.T) {
	st := newTestState(t)

	if err := st.MarkRestockRequested("book-b"); err != nil {
		t.Fatalf("MarkRestockRequested: %v", err)
	}
	if err := st.ApplyRestock("book-b", 20, 7); err != nil {
		t.Fatalf("ApplyRestock: %v", err)
	}
	inv, _ := st.Inventory("book-b")
	if inv.Quantity != 20 || inv.LastRestocked != 7 || inv.RestockRequested {
		t.Errorf("inventory = %+v", inv)
	}
	if err := st.ApplyRestock("book-b", 0, 8); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero restock err = %v, want ErrInvalidQuantity", err)
	}
	if err := st.ApplyRestock("nope", 1, 8); !errors.Is(err, ErrUnknownBook) {
		t.Errorf("unknown book err = %v, want ErrUnknownBook", err)
	}
}

func TestAddBook_References(t *testing.T) {
	st := newTestState(t)

	err := st.AddBook(Book{ID: "x", AuthorID: "christie", GenreID: "poetry", Price: 1}, InventoryRecord{})
	if !errors.Is(err, ErrUnknownGenre) {
		t.Errorf("err = %v, want ErrUnknownGenre", err)
	}
	err = st.AddBook(Book{ID: "x", AuthorID: "nobody", GenreID: "mystery", Price: 1}, InventoryRecord{})
	if !errors.Is(err, ErrUnknownAuthor) {
		t.Errorf("err = %v, want ErrUnknownAuthor", err)
	}
	err = st.AddBook(Book{ID: "book-a", AuthorID: "christie", GenreID: "mystery", Price: 1}, InventoryRecord{})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
	if err := st.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestClampedMutations(t *testing.T) {
	st := newTestState(t)

	_ = st.SetSatisfaction("cust-1", 1.7)
	c, _ := st.Customer("cust-1")
	if c.Satisfaction != 1 {
		t.Errorf("satisfaction = %v, want 1", c.Satisfaction)
	}
	_ = st.AdjustWorkload("emp-1", -3)
	e, _ := st.Employee("emp-1")
	if e.Workload != 0 {
		t.Errorf("workload = %v, want 0", e.Workload)
	}
	_ = st.SetPopularity("book-a", -1)
	b, _ := st.Book("book-a")
	if b.Popularity != 0 {
		t.Errorf("popularity = %v, want 0", b.Popularity)
	}
}

func TestViewsAreCopies(t *testing.T) {
	st := newTestState(t)

	c, _ := st.Customer("cust-1")
	c.Preferences[0] = "fiction"
	c.Budget = 0
	again, _ := st.Customer("cust-1")
	if again.Preferences[0] != "mystery" || again.Budget != 20 {
		t.Errorf("mutating a view changed the state: %+v", again)
	}
	if got := st.ListBooksByGenre("mystery"); len(got) != 1 || got[0].ID != "book-a" {
		t.Errorf("ListBooksByGenre = %+v", got)
	}
}

func TestPendingOrders_CreationOrder(t *testing.T) {
	st := newTestState(t)

	for i := 0; i < 3; i++ {
		if _, err := st.CreateOrder("cust-1", "book-a", 1, "emp-1", 1); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}
	pending := st.PendingOrders("emp-1")
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i-1].ID >= pending[i].ID {
			t.Errorf("pending not in creation order: %s before %s", pending[i-1].ID, pending[i].ID)
		}
	}
	if got := st.PendingOrders(""); len(got) != 0 {
		t.Errorf("unassigned pending = %d, want 0", len(got))
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Inventory Specialist")
	if err != nil || r != RoleInventorySpecialist {
		t.Fatalf("ParseRole = %q, %v", r, err)
	}
	if r.DisplayName() != "Inventory Specialist" {
		t.Errorf("DisplayName = %q", r.DisplayName())
	}
	if _, err := ParseRole("janitor"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestScaleEfficiency(t *testing.T) {
	st := newTestState(t)

	if err := st.ScaleEfficiency("emp-1", 0.8); err != nil {
		t.Fatalf("ScaleEfficiency: %v", err)
	}
	e, _ := st.Employee("emp-1")
	if e.Efficiency < 0.72-1e-9 || e.Efficiency > 0.72+1e-9 {
		t.Errorf("efficiency = %v, want 0.72", e.Efficiency)
	}
	for i := 0; i < 20; i++ {
		_ = st.ScaleEfficiency("emp-1", 0.5)
	}
	if e, _ = st.Employee("emp-1"); e.Efficiency != MinEfficiency {
		t.Errorf("efficiency = %v, want floor %v", e.Efficiency, MinEfficiency)
	}
	_ = st.ScaleEfficiency("emp-1", 100)
	if e, _ = st.Employee("emp-1"); e.Efficiency != 1 {
		t.Errorf("efficiency = %v, want cap 1", e.Efficiency)
	}
	if err := st.ScaleEfficiency("emp-1", 0); err == nil {
		t.Error("expected error for zero factor")
	}
	if err := st.ScaleEfficiency("ghost", 0.8); !errors.Is(err, ErrUnknownEmployee) {
		t.Errorf("unknown employee err = %v", err)
	}
}

func TestClearRestockRequested(t *testing.T) {
	st := newTestState(t)
	_ = st.MarkRestockRequested("book-b")
	if err := st.ClearRestockRequested("book-b"); err != nil {
		t.Fatalf("ClearRestockRequested: %v", err)
	}
	if inv, _ := st.Inventory("book-b"); inv.RestockRequested || inv.Quantity != 0 {
		t.Errorf("inventory = %+v, want request withdrawn and stock untouched", inv)
	}
	if err := st.ClearRestockRequested("nope"); !errors.Is(err, ErrUnknownBook) {
		t.Errorf("unknown book err = %v", err)
	}
}

func TestAssignOrder(t *testing.T) {
	st := newTestState(t)
	_ = st.AddEmployee(Employee{ID: "emp-2", Role: RoleManager, Efficiency: 1})
	o, err := st.CreateOrder("cust-1", "book-a", 1, "emp-1", 1)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := st.AssignOrder(o.ID, "emp-2"); err != nil {
		t.Fatalf("AssignOrder: %v", err)
	}
	if got := st.PendingOrders("emp-2"); len(got) != 1 || got[0].ID != o.ID {
		t.Errorf("emp-2 pending = %+v", got)
	}
	if got := st.PendingOrders("emp-1"); len(got) != 0 {
		t.Errorf("emp-1 still has %d pending", len(got))
	}
	if err := st.AssignOrder(o.ID, "ghost"); !errors.Is(err, ErrUnknownEmployee) {
		t.Errorf("unknown assignee err = %v", err)
	}

	_ = st.ApplyPurchase(o.ID, 2)
	if err := st.AssignOrder(o.ID, "emp-1"); !errors.Is(err, ErrOrderNotPending) {
		t.Errorf("resolved order err = %v, want ErrOrderNotPending", err)
	}
}
