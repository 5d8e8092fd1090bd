package world

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

const (
	// DefaultPopularityPerSale is the popularity gained per unit sold.
	DefaultPopularityPerSale = 0.02
	// MinEfficiency is the lowest efficiency ScaleEfficiency leaves an employee with.
	MinEfficiency = 0.1
)

// State is the bookstore world. It is owned by the scheduler for the lifetime of a
// run and mutated only through the methods below, each of which either applies in
// full or leaves the state untouched.
type State struct {
	genres    map[string]*Genre
	authors   map[string]*Author
	books     map[string]*Book
	inventory map[string]*InventoryRecord
	customers map[string]*Customer
	employees map[string]*Employee
	orders    map[string]*Order
	orderSeq  int

	popularityPerSale float64
}

// Option configures a State.
type Option func(*State)

// WithPopularityPerSale overrides DefaultPopularityPerSale.
func WithPopularityPerSale(v float64) Option {
	return func(s *State) { s.popularityPerSale = v }
}

// New returns an empty State.
func New(opts ...Option) *State {
	s := &State{
		genres:            make(map[string]*Genre),
		authors:           make(map[string]*Author),
		books:             make(map[string]*Book),
		inventory:         make(map[string]*InventoryRecord),
		customers:         make(map[string]*Customer),
		employees:         make(map[string]*Employee),
		orders:            make(map[string]*Order),
		popularityPerSale: DefaultPopularityPerSale,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- population ---

// AddGenre registers a genre.
func (s *State) AddGenre(g Genre) error {
	if g.ID == "" {
		return fmt.Errorf("genre: empty id")
	}
	if _, ok := s.genres[g.ID]; ok {
		return fmt.Errorf("genre %s: %w", g.ID, ErrDuplicateID)
	}
	s.genres[g.ID] = &g
	return nil
}

// AddAuthor registers an author.
func (s *State) AddAuthor(a Author) error {
	if a.ID == "" {
		return fmt.Errorf("author: empty id")
	}
	if _, ok := s.authors[a.ID]; ok {
		return fmt.Errorf("author %s: %w", a.ID, ErrDuplicateID)
	}
	s.authors[a.ID] = &a
	return nil
}

// AddBook registers a book together with its single inventory record.
func (s *State) AddBook(b Book, inv InventoryRecord) error {
	if b.ID == "" {
		return fmt.Errorf("book: empty id")
	}
	if _, ok := s.books[b.ID]; ok {
		return fmt.Errorf("book %s: %w", b.ID, ErrDuplicateID)
	}
	if _, ok := s.genres[b.GenreID]; !ok {
		return fmt.Errorf("book %s genre %s: %w", b.ID, b.GenreID, ErrUnknownGenre)
	}
	if _, ok := s.authors[b.AuthorID]; !ok {
		return fmt.Errorf("book %s author %s: %w", b.ID, b.AuthorID, ErrUnknownAuthor)
	}
	if b.Price <= 0 {
		return fmt.Errorf("book %s: price must be positive", b.ID)
	}
	if inv.Quantity < 0 || inv.ReorderLevel < 0 {
		return fmt.Errorf("book %s: stock and reorder level must be non-negative", b.ID)
	}
	inv.BookID = b.ID
	s.books[b.ID] = &b
	s.inventory[b.ID] = &inv
	return nil
}

// AddCustomer registers a customer. InitialBudget defaults to Budget.
func (s *State) AddCustomer(c Customer) error {
	if c.ID == "" {
		return fmt.Errorf("customer: empty id")
	}
	if _, ok := s.customers[c.ID]; ok {
		return fmt.Errorf("customer %s: %w", c.ID, ErrDuplicateID)
	}
	if c.Budget < 0 {
		return fmt.Errorf("customer %s: budget must be non-negative", c.ID)
	}
	for _, g := range c.Preferences {
		if _, ok := s.genres[g]; !ok {
			return fmt.Errorf("customer %s preference %s: %w", c.ID, g, ErrUnknownGenre)
		}
	}
	c.Preferences = slices.Clone(c.Preferences)
	c.InitialBudget = c.Budget
	c.Satisfaction = clamp01(c.Satisfaction)
	s.customers[c.ID] = &c
	return nil
}

// AddEmployee registers an employee.
func (s *State) AddEmployee(e Employee) error {
	if e.ID == "" {
		return fmt.Errorf("employee: empty id")
	}
	if _, ok := s.employees[e.ID]; ok {
		return fmt.Errorf("employee %s: %w", e.ID, ErrDuplicateID)
	}
	if !e.Role.Valid() {
		return fmt.Errorf("employee %s: unknown role %q", e.ID, e.Role)
	}
	if e.Efficiency <= 0 || e.Efficiency > 1 {
		return fmt.Errorf("employee %s: efficiency %v outside (0,1]", e.ID, e.Efficiency)
	}
	s.employees[e.ID] = &e
	return nil
}

// Validate checks referential integrity across every table.
func (s *State) Validate() error {
	for id, b := range s.books {
		if _, ok := s.inventory[id]; !ok {
			return fmt.Errorf("book %s: missing inventory record", id)
		}
		if _, ok := s.genres[b.GenreID]; !ok {
			return fmt.Errorf("book %s: %w", id, ErrUnknownGenre)
		}
		if _, ok := s.authors[b.AuthorID]; !ok {
			return fmt.Errorf("book %s: %w", id, ErrUnknownAuthor)
		}
	}
	for id := range s.inventory {
		if _, ok := s.books[id]; !ok {
			return fmt.Errorf("inventory %s: %w", id, ErrUnknownBook)
		}
	}
	for id, o := range s.orders {
		if _, ok := s.books[o.BookID]; !ok {
			return fmt.Errorf("order %s: %w", id, ErrUnknownBook)
		}
		if _, ok := s.customers[o.CustomerID]; !ok {
			return fmt.Errorf("order %s: %w", id, ErrUnknownCustomer)
		}
	}
	return nil
}

// --- reads ---

// Book returns a copy of the book with the given id.
func (s *State) Book(id string) (Book, bool) {
	b, ok := s.books[id]
	if !ok {
		return Book{}, false
	}
	return *b, true
}

// Genre returns a copy of the genre with the given id.
func (s *State) Genre(id string) (Genre, bool) {
	g, ok := s.genres[id]
	if !ok {
		return Genre{}, false
	}
	return *g, true
}

// Author returns a copy of the author with the given id.
func (s *State) Author(id string) (Author, bool) {
	a, ok := s.authors[id]
	if !ok {
		return Author{}, false
	}
	return *a, true
}

// Inventory returns a copy of the inventory record for bookID.
func (s *State) Inventory(bookID string) (InventoryRecord, bool) {
	r, ok := s.inventory[bookID]
	if !ok {
		return InventoryRecord{}, false
	}
	return *r, true
}

// Customer returns a copy of the customer with the given id.
func (s *State) Customer(id string) (Customer, bool) {
	c, ok := s.customers[id]
	if !ok {
		return Customer{}, false
	}
	out := *c
	out.Preferences = slices.Clone(c.Preferences)
	return out, true
}

// Employee returns a copy of the employee with the given id.
func (s *State) Employee(id string) (Employee, bool) {
	e, ok := s.employees[id]
	if !ok {
		return Employee{}, false
	}
	return *e, true
}

// Order returns a copy of the order with the given id.
func (s *State) Order(id string) (Order, bool) {
	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// ListBooksByGenre returns the books in genreID ordered by id.
func (s *State) ListBooksByGenre(genreID string) []Book {
	var out []Book
	for _, b := range s.books {
		if b.GenreID == genreID {
			out = append(out, *b)
		}
	}
	slices.SortFunc(out, func(a, b Book) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Genres returns every genre ordered by id.
func (s *State) Genres() []Genre { return sortedValues(s.genres, func(g Genre) string { return g.ID }) }

// Authors returns every author ordered by id.
func (s *State) Authors() []Author {
	return sortedValues(s.authors, func(a Author) string { return a.ID })
}

// Books returns every book ordered by id.
func (s *State) Books() []Book { return sortedValues(s.books, func(b Book) string { return b.ID }) }

// InventoryRecords returns every inventory record ordered by book id.
func (s *State) InventoryRecords() []InventoryRecord {
	return sortedValues(s.inventory, func(r InventoryRecord) string { return r.BookID })
}

// Customers returns every customer ordered by id.
func (s *State) Customers() []Customer {
	out := sortedValues(s.customers, func(c Customer) string { return c.ID })
	for i := range out {
		out[i].Preferences = slices.Clone(out[i].Preferences)
	}
	return out
}

// Employees returns every employee ordered by id.
func (s *State) Employees() []Employee {
	return sortedValues(s.employees, func(e Employee) string { return e.ID })
}

// Orders returns every order ordered by id (which is creation order).
func (s *State) Orders() []Order { return sortedValues(s.orders, func(o Order) string { return o.ID }) }

// PendingOrders returns pending orders assigned to assignee in creation order. An
// empty assignee selects orders that have no assignee.
func (s *State) PendingOrders(assignee string) []Order {
	var out []Order
	for _, o := range s.orders {
		if o.Status == OrderPending && o.AssignedTo == assignee {
			out = append(out, *o)
		}
	}
	slices.SortFunc(out, func(a, b Order) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func sortedValues[T any](m map[string]*T, key func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, *v)
	}
	slices.SortFunc(out, func(a, b T) int { return strings.Compare(key(a), key(b)) })
	return out
}

// --- mutations ---

// CreateOrder opens a pending order. The total is fixed from the current price.
func (s *State) CreateOrder(customerID, bookID string, quantity int, assignee string, step int) (Order, error) {
	if quantity <= 0 {
		return Order{}, ErrInvalidQuantity
	}
	if _, ok := s.customers[customerID]; !ok {
		return Order{}, fmt.Errorf("order for %s: %w", customerID, ErrUnknownCustomer)
	}
	b, ok := s.books[bookID]
	if !ok {
		return Order{}, fmt.Errorf("order for %s: %w", bookID, ErrUnknownBook)
	}
	if assignee != "" {
		if _, ok := s.employees[assignee]; !ok {
			return Order{}, fmt.Errorf("order assignee %s: %w", assignee, ErrUnknownEmployee)
		}
	}
	s.orderSeq++
	o := &Order{
		ID:          fmt.Sprintf("ord-%06d", s.orderSeq),
		CustomerID:  customerID,
		BookID:      bookID,
		Quantity:    quantity,
		Status:      OrderPending,
		CreatedStep: step,
		Total:       roundCents(b.Price * float64(quantity)),
		AssignedTo:  assignee,
	}
	s.orders[o.ID] = o
	return *o, nil
}

// AssignOrder changes the employee responsible for a pending order.
func (s *State) AssignOrder(orderID, assignee string) error {
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrUnknownOrder)
	}
	if o.Status != OrderPending {
		return fmt.Errorf("order %s: %w", orderID, ErrOrderNotPending)
	}
	if _, ok := s.employees[assignee]; !ok {
		return fmt.Errorf("order assignee %s: %w", assignee, ErrUnknownEmployee)
	}
	o.AssignedTo = assignee
	return nil
}

// ApplyPurchase settles a pending order. Stock is checked before budget. On a
// precondition failure the order is marked rejected, nothing else changes, and the
// matching sentinel (ErrInsufficientStock or ErrInsufficientBudget) is returned.
func (s *State) ApplyPurchase(orderID string, step int) error {
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrUnknownOrder)
	}
	if o.Status != OrderPending {
		return fmt.Errorf("order %s: %w", orderID, ErrOrderNotPending)
	}
	b, ok := s.books[o.BookID]
	if !ok {
		return fmt.Errorf("order %s book %s: %w", orderID, o.BookID, ErrUnknownBook)
	}
	inv := s.inventory[o.BookID]
	c, ok := s.customers[o.CustomerID]
	if !ok {
		return fmt.Errorf("order %s customer %s: %w", orderID, o.CustomerID, ErrUnknownCustomer)
	}

	var failure error
	switch {
	case inv.Quantity < o.Quantity:
		failure = ErrInsufficientStock
	case c.Budget < o.Total:
		failure = ErrInsufficientBudget
	}
	if failure != nil {
		s.resolve(o, OrderRejected, ReasonFor(failure), step)
		return fmt.Errorf("order %s: %w", orderID, failure)
	}

	inv.Quantity -= o.Quantity
	b.Sales += o.Quantity
	b.Popularity = math.Min(1, b.Popularity+s.popularityPerSale*float64(o.Quantity))
	c.Budget = math.Max(0, roundCents(c.Budget-o.Total))
	c.BooksPurchased += o.Quantity
	c.TotalSpent = roundCents(c.TotalSpent + o.Total)
	s.resolve(o, OrderProcessed, "", step)
	return nil
}

// RejectOrder marks a pending order rejected without touching stock or budget.
func (s *State) RejectOrder(orderID string, reason RejectReason, step int) error {
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrUnknownOrder)
	}
	if o.Status != OrderPending {
		return fmt.Errorf("order %s: %w", orderID, ErrOrderNotPending)
	}
	s.resolve(o, OrderRejected, reason, step)
	return nil
}

func (s *State) resolve(o *Order, status OrderStatus, reason RejectReason, step int) {
	o.Status = status
	o.Reason = reason
	o.ResolvedStep = step
	if e, ok := s.employees[o.AssignedTo]; ok {
		e.OrdersProcessed++
	}
}

// ApplyRestock adds quantity units to a book's stock and clears any outstanding
// restock request.
func (s *State) ApplyRestock(bookID string, quantity, step int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	inv, ok := s.inventory[bookID]
	if !ok {
		return fmt.Errorf("restock %s: %w", bookID, ErrUnknownBook)
	}
	inv.Quantity += quantity
	inv.LastRestocked = step
	inv.RestockRequested = false
	return nil
}

// MarkRestockRequested flags an outstanding restock request for bookID.
func (s *State) MarkRestockRequested(bookID string) error {
	inv, ok := s.inventory[bookID]
	if !ok {
		return fmt.Errorf("restock request %s: %w", bookID, ErrUnknownBook)
	}
	inv.RestockRequested = true
	return nil
}

// ClearRestockRequested withdraws an outstanding restock request so the restock rule
// may ask again.
func (s *State) ClearRestockRequested(bookID string) error {
	inv, ok := s.inventory[bookID]
	if !ok {
		return fmt.Errorf("restock request %s: %w", bookID, ErrUnknownBook)
	}
	inv.RestockRequested = false
	return nil
}

// SetSatisfaction stores v clamped to [0,1].
func (s *State) SetSatisfaction(customerID string, v float64) error {
	c, ok := s.customers[customerID]
	if !ok {
		return fmt.Errorf("satisfaction %s: %w", customerID, ErrUnknownCustomer)
	}
	c.Satisfaction = clamp01(v)
	return nil
}

// AdjustWorkload adds delta to an employee's workload, never going below zero.
func (s *State) AdjustWorkload(employeeID string, delta float64) error {
	e, ok := s.employees[employeeID]
	if !ok {
		return fmt.Errorf("workload %s: %w", employeeID, ErrUnknownEmployee)
	}
	e.Workload = math.Max(0, e.Workload+delta)
	return nil
}

// ScaleEfficiency multiplies an employee's efficiency by factor. The result stays in
// [MinEfficiency, 1].
func (s *State) ScaleEfficiency(employeeID string, factor float64) error {
	if factor <= 0 {
		return fmt.Errorf("efficiency %s: factor %v must be positive", employeeID, factor)
	}
	e, ok := s.employees[employeeID]
	if !ok {
		return fmt.Errorf("efficiency %s: %w", employeeID, ErrUnknownEmployee)
	}
	e.Efficiency = math.Max(MinEfficiency, math.Min(1, e.Efficiency*factor))
	return nil
}

// RecordRestock increments an employee's restock counter.
func (s *State) RecordRestock(employeeID string) error {
	e, ok := s.employees[employeeID]
	if !ok {
		return fmt.Errorf("restock by %s: %w", employeeID, ErrUnknownEmployee)
	}
	e.Restocks++
	return nil
}

// SetPopularity stores v clamped to [0,1].
func (s *State) SetPopularity(bookID string, v float64) error {
	b, ok := s.books[bookID]
	if !ok {
		return fmt.Errorf("popularity %s: %w", bookID, ErrUnknownBook)
	}
	b.Popularity = clamp01(v)
	return nil
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }
