package agent

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/rules"
	"github.com/GoCodeAlone/bookstore/world"
)

const (
	DefaultPurchaseProbability = 0.4
	DefaultBrowseProbability   = 0.3
	maxPurchaseProbability     = 0.8
	maxBrowseProbability       = 0.6
	saleBoost                  = 1.5 // sale on a single book
	storeSaleBoost             = 1.3 // store-wide sale
	arrivalsBoost              = 1.2
	orderQuantity              = 1
)

// Every adjustEvery turns a customer reconsiders how eagerly it shops, based on the
// budget it has left.
const (
	adjustEvery    = 10
	lowBudget      = 20.0
	highBudget     = 100.0
	frugalFactor   = 0.5
	frugalBrowse   = 0.8
	eagerFactor    = 1.2
	eagerCap       = 0.6
	eagerBrowse    = 1.1
	eagerBrowseCap = 0.5
)

// CustomerConfig holds the private parameters of a customer agent.
type CustomerConfig struct {
	ID                  string
	Seed                uint64
	PurchaseProbability float64
	BrowseProbability   float64 // chance of a visit after hearing of a restock
	Policy              Policy
	Roster              *Roster
	Params              rules.Params
}

// Customer shops for books. Each step it reacts to purchase outcomes, restocks and
// store alerts, then with its purchase probability opens an order at the counter.
type Customer struct {
	base
	policy Policy
	roster *Roster
	params rules.Params
	rng    *rand.Rand
	prob   float64
	browse float64

	visits   int
	browsing bool // a restock drew the customer in this turn

	table map[comms.Kind]handler
}

// NewCustomer creates a customer agent.
func NewCustomer(cfg CustomerConfig) *Customer {
	if cfg.Policy == nil {
		cfg.Policy = PreferencePolicy{}
	}
	if cfg.PurchaseProbability <= 0 {
		cfg.PurchaseProbability = DefaultPurchaseProbability
	}
	if cfg.BrowseProbability <= 0 {
		cfg.BrowseProbability = DefaultBrowseProbability
	}
	c := &Customer{
		base:   base{id: cfg.ID, kind: KindCustomer, status: StatusIdle},
		policy: cfg.Policy,
		roster: cfg.Roster,
		params: cfg.Params,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		prob:   cfg.PurchaseProbability,
		browse: cfg.BrowseProbability,
	}
	c.table = map[comms.Kind]handler{
		comms.KindPurchaseCompleted: c.onOutcome,
		comms.KindPurchaseRejected:  c.onOutcome,
		comms.KindRestockCompleted:  c.onRestockCompleted,
		comms.KindSystemAlert:       c.onAlert,
	}
	return c
}

func (c *Customer) Subscriptions() []comms.Kind {
	return []comms.Kind{comms.KindRestockCompleted, comms.KindSystemAlert}
}

// PurchaseProbability returns the current chance of attempting a purchase per step.
func (c *Customer) PurchaseProbability() float64 { return c.prob }

// BrowseProbability returns the current chance of visiting after a restock.
func (c *Customer) BrowseProbability() float64 { return c.browse }

func (c *Customer) Info(st *world.State) Info {
	cu, _ := st.Customer(c.id)
	return c.info(cu.Name)
}

func (c *Customer) Step(ctx context.Context, st *world.State, bus *comms.Bus) (err error) {
	t := c.begin(ctx, st, bus)
	defer func() { c.end(t, err) }()
	c.browsing = false
	if err := c.dispatch(t, c.table); err != nil {
		return err
	}
	c.visits++

	// The purchase draw happens every step so the stream only depends on inbox
	// contents through restock notices.
	if c.rng.Float64() < c.prob || c.browsing {
		if err := c.shop(t); err != nil {
			return err
		}
	}
	if c.visits%adjustEvery == 0 {
		return c.adjust(t)
	}
	return nil
}

func (c *Customer) onOutcome(t *turn, m comms.Message) error {
	cu, ok := t.st.Customer(c.id)
	if !ok {
		return world.ErrUnknownCustomer
	}
	return t.apply(rules.Satisfaction(cu, m, c.params))
}

func (c *Customer) onRestockCompleted(_ *turn, _ comms.Message) error {
	if c.rng.Float64() < c.browse {
		c.browsing = true
	}
	return nil
}

func (c *Customer) onAlert(_ *turn, m comms.Message) error {
	a, ok := m.Payload.(comms.SystemAlert)
	if !ok {
		return nil
	}
	switch {
	case a.Type == comms.AlertSale && a.BookID != "":
		c.prob = math.Min(maxPurchaseProbability, c.prob*saleBoost)
	case a.Type == comms.AlertSale:
		c.prob = math.Min(maxPurchaseProbability, c.prob*storeSaleBoost)
	case a.Type == comms.AlertNewArrivals && a.BookID == "":
		c.browse = math.Min(maxBrowseProbability, c.browse*arrivalsBoost)
	}
	return nil
}

// adjust makes a customer running out of money shop less, and one with plenty left
// shop more.
func (c *Customer) adjust(t *turn) error {
	cu, ok := t.st.Customer(c.id)
	if !ok {
		return world.ErrUnknownCustomer
	}
	switch {
	case cu.Budget < lowBudget:
		c.prob *= frugalFactor
		c.browse *= frugalBrowse
	case cu.Budget > highBudget:
		c.prob = math.Min(eagerCap, c.prob*eagerFactor)
		c.browse = math.Min(eagerBrowseCap, c.browse*eagerBrowse)
	}
	return nil
}

// shop opens an order for the chosen book and hands it to the counter. The
// order-processing rule runs immediately so the order normally resolves this step.
func (c *Customer) shop(t *turn) error {
	cu, ok := t.st.Customer(c.id)
	if !ok {
		return world.ErrUnknownCustomer
	}
	bookID, ok := c.policy.Choose(cu, t.st, c.rng)
	if !ok || c.roster == nil {
		return nil
	}
	assignee := c.roster.Pick(t.st, c.params)
	if assignee == "" {
		return nil
	}
	o, err := t.st.CreateOrder(c.id, bookID, orderQuantity, assignee, t.step)
	if err != nil {
		return fmt.Errorf("customer %s: %w", c.id, err)
	}
	c.status = StatusActive

	var eff rules.Effects
	eff.Messages = append(eff.Messages,
		comms.New(c.id, assignee, comms.PurchaseRequest{
			OrderID: o.ID, CustomerID: c.id, BookID: bookID, Quantity: o.Quantity,
		}),
		comms.New(c.id, "", comms.OrderCreated{
			OrderID: o.ID, CustomerID: c.id, BookID: bookID, Quantity: o.Quantity, AssignedTo: assignee,
		}),
	)
	emp, ok := t.st.Employee(assignee)
	if !ok {
		return world.ErrUnknownEmployee
	}
	processed, err := rules.ProcessOrder(t.st, o, emp, c.params, t.step)
	if err != nil {
		return err
	}
	eff.Merge(processed)
	return t.apply(eff)
}
