package agent

import (
	"context"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/rules"
	"github.com/GoCodeAlone/bookstore/world"
)

// BookConfig holds the private parameters of a book agent.
type BookConfig struct {
	ID           string
	InitialSales int
	Promotion    *rules.PromotionRule // nil disables promotion suggestions
	Params       rules.Params
}

// Book tracks demand for one title. Each step it adjusts its popularity from the
// sales made since its previous turn and suggests a promotion when the promotion
// rule starts matching.
type Book struct {
	base
	promotion *rules.PromotionRule
	params    rules.Params
	lastSales int
	promoting bool
	demand    int // orders opened for this book

	table map[comms.Kind]handler
}

func NewBook(cfg BookConfig) *Book {
	b := &Book{
		base:      base{id: cfg.ID, kind: KindBook, status: StatusIdle},
		promotion: cfg.Promotion,
		params:    cfg.Params,
		lastSales: cfg.InitialSales,
	}
	b.table = map[comms.Kind]handler{
		comms.KindOrderCreated: b.onOrderCreated,
	}
	return b
}

func (b *Book) Subscriptions() []comms.Kind { return []comms.Kind{comms.KindOrderCreated} }

// Demand returns the number of orders opened for this book so far.
func (b *Book) Demand() int { return b.demand }

// Promoting reports whether the promotion rule matched on the last turn.
func (b *Book) Promoting() bool { return b.promoting }

func (b *Book) Info(st *world.State) Info {
	bk, _ := st.Book(b.id)
	return b.info(bk.Title)
}

func (b *Book) Step(ctx context.Context, st *world.State, bus *comms.Bus) (err error) {
	t := b.begin(ctx, st, bus)
	defer func() { b.end(t, err) }()
	if err := b.dispatch(t, b.table); err != nil {
		return err
	}

	bk, ok := st.Book(b.id)
	if !ok {
		return world.ErrUnknownBook
	}
	sold := bk.Sales - b.lastSales
	b.lastSales = bk.Sales
	if sold > 0 {
		b.status = StatusActive
	}
	if err := t.apply(rules.Popularity(bk, sold, b.params)); err != nil {
		return err
	}

	if b.promotion == nil {
		return nil
	}
	bk, _ = st.Book(b.id)
	inv, ok := st.Inventory(b.id)
	if !ok {
		return world.ErrUnknownBook
	}
	match, err := b.promotion.Match(bk, inv)
	if err != nil {
		return err
	}
	rising := match && !b.promoting
	b.promoting = match
	if !rising {
		return nil
	}
	return t.apply(rules.Suggestion(bk))
}

func (b *Book) onOrderCreated(_ *turn, m comms.Message) error {
	if oc, ok := m.Payload.(comms.OrderCreated); ok && oc.BookID == b.id {
		b.demand++
	}
	return nil
}
