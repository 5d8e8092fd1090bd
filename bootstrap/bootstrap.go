// Package bootstrap builds a runnable simulation from a configuration. Every random
// choice flows from the configured seed, so equal configs build equal simulations.
package bootstrap

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"go.opentelemetry.io/otel/metric"

	"github.com/GoCodeAlone/bookstore/agent"
	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/config"
	"github.com/GoCodeAlone/bookstore/rules"
	"github.com/GoCodeAlone/bookstore/scheduler"
	"github.com/GoCodeAlone/bookstore/world"
)

// Generated population ranges.
const (
	minBudget      = 30.0
	maxBudget      = 150.0
	minEfficiency  = 0.7
	maxEfficiency  = 1.0
	minPopularity  = 0.1
	maxPreferences = 3
)

// Simulation is a built but not yet started run.
type Simulation struct {
	Config *config.Config
	World  *world.State
	Bus    *comms.Bus
	Agents []agent.Agent
}

// Build validates cfg and constructs the world, the bus and every agent.
func Build(cfg *config.Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	st := world.New(world.WithPopularityPerSale(cfg.Rules.PopularityPerSale))
	if err := addCatalog(st, cfg.Catalog, rng); err != nil {
		return nil, err
	}
	if err := addCustomers(st, cfg, rng); err != nil {
		return nil, err
	}
	if err := addEmployees(st, cfg, rng); err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}

	agents, err := buildAgents(st, cfg, rng)
	if err != nil {
		return nil, err
	}
	return &Simulation{Config: cfg, World: st, Bus: comms.NewBus(), Agents: agents}, nil
}

// Scheduler wires the simulation into a scheduler using the configured step limit
// and pacing.
func (s *Simulation) Scheduler(logger *slog.Logger, meter metric.Meter) (*scheduler.Scheduler, error) {
	return scheduler.New(s.World, s.Bus, s.Agents, scheduler.Config{
		Steps:    s.Config.Steps,
		Interval: s.Config.StepInterval,
		Logger:   logger,
		Meter:    meter,
		Seed:     s.Config.Seed,
		Events: scheduler.Events{
			Every:       s.Config.Events.Every,
			Chance:      s.Config.Events.Chance,
			Maintenance: s.Config.Events.Maintenance,
		},
	})
}

func addCatalog(st *world.State, cat config.Catalog, rng *rand.Rand) error {
	for _, g := range cat.Genres {
		if err := st.AddGenre(g); err != nil {
			return err
		}
	}
	for _, a := range cat.Authors {
		if err := st.AddAuthor(a); err != nil {
			return err
		}
	}
	for _, b := range cat.Books {
		pop := b.Popularity
		if pop == 0 {
			pop = round2(minPopularity + rng.Float64()*(1-minPopularity))
		}
		book := world.Book{
			ID:         b.ID,
			ISBN:       b.ISBN,
			Title:      b.Title,
			AuthorID:   b.Author,
			GenreID:    b.Genre,
			Price:      b.Price,
			Popularity: pop,
		}
		inv := world.InventoryRecord{BookID: b.ID, Quantity: b.Stock, ReorderLevel: b.ReorderLevel}
		if err := st.AddBook(book, inv); err != nil {
			return err
		}
	}
	return nil
}

func addCustomers(st *world.State, cfg *config.Config, rng *rand.Rand) error {
	if cfg.Population != nil && len(cfg.Population.Customers) > 0 {
		for _, c := range cfg.Population.Customers {
			err := st.AddCustomer(world.Customer{
				ID:           c.ID,
				Name:         c.Name,
				Budget:       c.Budget,
				Satisfaction: cfg.Rules.InitialSatisfaction,
				Preferences:  slices.Clone(c.Preferences),
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	genres := make([]string, 0, len(cfg.Catalog.Genres))
	for _, g := range cfg.Catalog.Genres {
		genres = append(genres, g.ID)
	}
	slices.Sort(genres)
	for i := range cfg.Customers {
		err := st.AddCustomer(world.Customer{
			ID:           fmt.Sprintf("cust-%02d", i+1),
			Name:         "Customer_" + letters(i),
			Budget:       round2(minBudget + rng.Float64()*(maxBudget-minBudget)),
			Satisfaction: cfg.Rules.InitialSatisfaction,
			Preferences:  preferences(genres, rng),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// preferences draws between one and three distinct genres, strongest first.
func preferences(genres []string, rng *rand.Rand) []string {
	if len(genres) == 0 {
		return nil
	}
	shuffled := slices.Clone(genres)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	n := 1 + rng.IntN(min(maxPreferences, len(shuffled)))
	return shuffled[:n]
}

func addEmployees(st *world.State, cfg *config.Config, rng *rand.Rand) error {
	if cfg.Population != nil && len(cfg.Population.Employees) > 0 {
		for _, e := range cfg.Population.Employees {
			role, err := world.ParseRole(e.Role)
			if err != nil {
				return fmt.Errorf("%w: employee %s: %v", config.ErrInvalidConfiguration, e.ID, err)
			}
			if err := st.AddEmployee(world.Employee{ID: e.ID, Name: e.Name, Role: role, Efficiency: e.Efficiency}); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range cfg.Employees {
		err := st.AddEmployee(world.Employee{
			ID:         fmt.Sprintf("emp-%02d", i+1),
			Name:       "Employee_" + letters(i),
			Role:       world.Roles[i%len(world.Roles)],
			Efficiency: round2(minEfficiency + rng.Float64()*(maxEfficiency-minEfficiency)),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func buildAgents(st *world.State, cfg *config.Config, rng *rand.Rand) ([]agent.Agent, error) {
	params := cfg.Params()
	policy, err := agent.PolicyByName(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	promotion, err := rules.NewPromotionRule(cfg.Rules.Promotion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}
	roster := agent.NewRoster(st)

	var agents []agent.Agent
	for _, e := range st.Employees() {
		agents = append(agents, agent.NewEmployee(agent.EmployeeConfig{
			ID:       e.ID,
			Role:     e.Role,
			Recovery: cfg.Workload.Recovery,
			Roster:   roster,
			Params:   params,
		}))
	}
	for _, c := range st.Customers() {
		agents = append(agents, agent.NewCustomer(agent.CustomerConfig{
			ID:                  c.ID,
			Seed:                rng.Uint64(),
			PurchaseProbability: cfg.Rules.PurchaseProbability,
			Policy:              policy,
			Roster:              roster,
			Params:              params,
		}))
	}
	for _, b := range st.Books() {
		agents = append(agents, agent.NewBook(agent.BookConfig{
			ID:           b.ID,
			InitialSales: b.Sales,
			Promotion:    promotion,
			Params:       params,
		}))
	}
	return agents, nil
}

// letters renders 0, 1, ..., 25, 26 as A, B, ..., Z, AA.
func letters(i int) string {
	var out []byte
	for i >= 0 {
		out = append([]byte{byte('A' + i%26)}, out...)
		i = i/26 - 1
	}
	return string(out)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
