// Package config defines the bookstore run configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/bookstore/rules"
	"github.com/GoCodeAlone/bookstore/world"
)

// Population and run-length bounds.
const (
	MinCustomers = 1
	MaxCustomers = 50
	MinEmployees = 1
	MaxEmployees = 10
	MinSteps     = 10
	MaxSteps     = 1000
)

var ErrInvalidConfiguration = errors.New("invalid configuration")

// Config is the top-level run configuration.
type Config struct {
	Customers    int           `json:"customers" yaml:"customers"`
	Employees    int           `json:"employees" yaml:"employees"`
	Steps        int           `json:"steps" yaml:"steps"`
	Seed         uint64        `json:"seed" yaml:"seed"`
	Policy       string        `json:"policy" yaml:"policy"`               // "preference" or "impulse"
	StepInterval time.Duration `json:"step_interval" yaml:"step_interval"` // pacing only
	LogLevel     string        `json:"log_level" yaml:"log_level"`

	Catalog    Catalog     `json:"catalog" yaml:"catalog"`
	Population *Population `json:"population,omitempty" yaml:"population"`

	Rules    RulesConfig    `json:"rules" yaml:"rules"`
	Workload WorkloadConfig `json:"workload" yaml:"workload"`
	Events   EventsConfig   `json:"events" yaml:"events"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Auth     AuthConfig     `json:"-" yaml:"auth"`
	Export   ExportConfig   `json:"export" yaml:"export"`
}

// Catalog is the initial store stock.
type Catalog struct {
	Genres  []world.Genre  `json:"genres" yaml:"genres"`
	Authors []world.Author `json:"authors" yaml:"authors"`
	Books   []BookConfig   `json:"books" yaml:"books"`
}

// BookConfig defines one catalog entry and its starting inventory.
type BookConfig struct {
	ID           string  `json:"id" yaml:"id"`
	ISBN         string  `json:"isbn,omitempty" yaml:"isbn"`
	Title        string  `json:"title" yaml:"title"`
	Author       string  `json:"author" yaml:"author"` // author ID
	Genre        string  `json:"genre" yaml:"genre"`   // genre ID
	Price        float64 `json:"price" yaml:"price"`
	Stock        int     `json:"stock" yaml:"stock"`
	ReorderLevel int     `json:"reorder_level" yaml:"reorder_level"`
	Popularity   float64 `json:"popularity,omitempty" yaml:"popularity"` // zero draws from the seed
}

// Population lists agents explicitly instead of generating them from the seed.
type Population struct {
	Customers []CustomerConfig `json:"customers,omitempty" yaml:"customers"`
	Employees []EmployeeConfig `json:"employees,omitempty" yaml:"employees"`
}

type CustomerConfig struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Budget      float64  `json:"budget" yaml:"budget"`
	Preferences []string `json:"preferences" yaml:"preferences"`
}

type EmployeeConfig struct {
	ID         string  `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Role       string  `json:"role" yaml:"role"`
	Efficiency float64 `json:"efficiency" yaml:"efficiency"`
}

// RulesConfig tunes the business rules.
type RulesConfig struct {
	InitialSatisfaction float64 `json:"initial_satisfaction" yaml:"initial_satisfaction"`
	SatisfactionGain    float64 `json:"satisfaction_gain" yaml:"satisfaction_gain"`
	SatisfactionPenalty float64 `json:"satisfaction_penalty" yaml:"satisfaction_penalty"`
	PurchaseProbability float64 `json:"purchase_probability" yaml:"purchase_probability"`
	RestockQuantity     int     `json:"restock_quantity" yaml:"restock_quantity"`
	PopularityPerSale   float64 `json:"popularity_per_sale" yaml:"popularity_per_sale"`
	TrendBoost          float64 `json:"trend_boost" yaml:"trend_boost"`
	PopularityDecay     float64 `json:"popularity_decay" yaml:"popularity_decay"`
	PopularityFloor     float64 `json:"popularity_floor" yaml:"popularity_floor"`
	Promotion           string  `json:"promotion" yaml:"promotion"` // CEL expression
}

// WorkloadConfig controls employee capacity.
type WorkloadConfig struct {
	Capacity    float64 `json:"capacity" yaml:"capacity"`
	OrderCost   float64 `json:"order_cost" yaml:"order_cost"`
	RestockCost float64 `json:"restock_cost" yaml:"restock_cost"`
	Recovery    float64 `json:"recovery" yaml:"recovery"`
}

// EventsConfig controls the periodic store-wide events. Every zero disables them.
type EventsConfig struct {
	Every       int     `json:"every" yaml:"every"`             // steps between draws
	Chance      float64 `json:"chance" yaml:"chance"`           // probability per draw
	Maintenance float64 `json:"maintenance" yaml:"maintenance"` // efficiency factor
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":8050"
}

// AuthConfig controls dashboard authentication.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	AdminUser string        `yaml:"admin_user"`
	AdminPass string        `yaml:"admin_pass"` // bcrypt hash
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// ExportConfig selects where a finished run is written. Empty paths are skipped.
type ExportConfig struct {
	JSONPath   string `json:"json_path,omitempty" yaml:"json_path"`
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path"`
}

// Default returns the reference configuration: the four-book sample store with ten
// customers and three employees for one hundred steps.
func Default() *Config {
	p := rules.DefaultParams()
	return &Config{
		Customers: 10,
		Employees: 3,
		Steps:     100,
		Seed:      42,
		Policy:    "preference",
		LogLevel:  "info",
		Catalog:   DefaultCatalog(),
		Rules: RulesConfig{
			InitialSatisfaction: 0.5,
			SatisfactionGain:    p.SatisfactionGain,
			SatisfactionPenalty: p.SatisfactionPenalty,
			PurchaseProbability: 0.4,
			RestockQuantity:     p.RestockQuantity,
			PopularityPerSale:   world.DefaultPopularityPerSale,
			TrendBoost:          p.TrendBoost,
			PopularityDecay:     p.PopularityDecay,
			PopularityFloor:     p.PopularityFloor,
			Promotion:           rules.DefaultPromotionExpr,
		},
		Workload: WorkloadConfig{
			Capacity:    p.Capacity,
			OrderCost:   p.OrderCost,
			RestockCost: p.RestockCost,
			Recovery:    0.5,
		},
		Events: EventsConfig{
			Every:       20,
			Chance:      0.1,
			Maintenance: 0.8,
		},
		Server: ServerConfig{Addr: ":8050"},
		Auth: AuthConfig{
			AdminUser: "admin",
			TokenTTL:  24 * time.Hour,
		},
	}
}

// DefaultCatalog returns the sample store.
func DefaultCatalog() Catalog {
	return Catalog{
		Genres: []world.Genre{
			{ID: "fiction", Name: "Fiction"},
			{ID: "mystery", Name: "Mystery"},
			{ID: "romance", Name: "Romance"},
			{ID: "science_fiction", Name: "Science Fiction"},
		},
		Authors: []world.Author{
			{ID: "agatha-christie", Name: "Agatha Christie"},
			{ID: "isaac-asimov", Name: "Isaac Asimov"},
			{ID: "jane-austen", Name: "Jane Austen"},
			{ID: "stephen-king", Name: "Stephen King"},
		},
		Books: []BookConfig{
			{ID: "orient-express", ISBN: "978-0-00-711931-7", Title: "Murder on the Orient Express",
				Author: "agatha-christie", Genre: "mystery", Price: 15.99, Stock: 25, ReorderLevel: 5},
			{ID: "foundation", ISBN: "978-0-553-29335-0", Title: "Foundation",
				Author: "isaac-asimov", Genre: "science_fiction", Price: 12.99, Stock: 20, ReorderLevel: 5},
			{ID: "pride-and-prejudice", ISBN: "978-0-14-143951-8", Title: "Pride and Prejudice",
				Author: "jane-austen", Genre: "romance", Price: 9.99, Stock: 30, ReorderLevel: 8},
			{ID: "the-shining", ISBN: "978-0-307-74365-9", Title: "The Shining",
				Author: "stephen-king", Genre: "fiction", Price: 13.99, Stock: 15, ReorderLevel: 5},
		},
	}
}

// Load reads a YAML config file over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize derives the population counts from an explicit population.
func (c *Config) Normalize() {
	if c.Population == nil {
		return
	}
	if n := len(c.Population.Customers); n > 0 {
		c.Customers = n
	}
	if n := len(c.Population.Employees); n > 0 {
		c.Employees = n
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Validate checks bounds and catalog references. Every failure wraps
// ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if c.Customers < MinCustomers || c.Customers > MaxCustomers {
		return invalid("customers %d outside [%d,%d]", c.Customers, MinCustomers, MaxCustomers)
	}
	if c.Employees < MinEmployees || c.Employees > MaxEmployees {
		return invalid("employees %d outside [%d,%d]", c.Employees, MinEmployees, MaxEmployees)
	}
	if c.Steps < MinSteps || c.Steps > MaxSteps {
		return invalid("steps %d outside [%d,%d]", c.Steps, MinSteps, MaxSteps)
	}
	switch c.Policy {
	case "", "preference", "impulse":
	default:
		return invalid("policy %q", c.Policy)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return invalid("%v", err)
	}
	if c.StepInterval < 0 {
		return invalid("step_interval %s is negative", c.StepInterval)
	}
	if err := c.Catalog.validate(); err != nil {
		return err
	}
	if err := c.validatePopulation(); err != nil {
		return err
	}
	if err := c.Rules.validate(); err != nil {
		return err
	}
	if err := c.Workload.validate(); err != nil {
		return err
	}
	return c.Events.validate()
}

func (cat Catalog) validate() error {
	if len(cat.Books) == 0 {
		return invalid("catalog has no books")
	}
	genres := make(map[string]bool)
	for _, g := range cat.Genres {
		if g.ID == "" || genres[g.ID] {
			return invalid("genre %q is empty or duplicated", g.ID)
		}
		genres[g.ID] = true
	}
	authors := make(map[string]bool)
	for _, a := range cat.Authors {
		if a.ID == "" || authors[a.ID] {
			return invalid("author %q is empty or duplicated", a.ID)
		}
		authors[a.ID] = true
	}
	books := make(map[string]bool)
	for _, b := range cat.Books {
		switch {
		case b.ID == "" || books[b.ID]:
			return invalid("book %q is empty or duplicated", b.ID)
		case !genres[b.Genre]:
			return invalid("book %s: %v %q", b.ID, world.ErrUnknownGenre, b.Genre)
		case !authors[b.Author]:
			return invalid("book %s: %v %q", b.ID, world.ErrUnknownAuthor, b.Author)
		case b.Price <= 0:
			return invalid("book %s: price must be positive", b.ID)
		case b.Stock < 0 || b.ReorderLevel < 0:
			return invalid("book %s: stock and reorder level must be non-negative", b.ID)
		case b.Popularity < 0 || b.Popularity > 1:
			return invalid("book %s: popularity outside [0,1]", b.ID)
		}
		books[b.ID] = true
	}
	return nil
}

func (c *Config) validatePopulation() error {
	if c.Population == nil {
		return nil
	}
	genres := make(map[string]bool)
	for _, g := range c.Catalog.Genres {
		genres[g.ID] = true
	}
	ids := make(map[string]bool)
	for _, cu := range c.Population.Customers {
		if cu.ID == "" || ids[cu.ID] {
			return invalid("customer %q is empty or duplicated", cu.ID)
		}
		ids[cu.ID] = true
		if cu.Budget < 0 {
			return invalid("customer %s: negative budget", cu.ID)
		}
		for _, g := range cu.Preferences {
			if !genres[g] {
				return invalid("customer %s: %v %q", cu.ID, world.ErrUnknownGenre, g)
			}
		}
	}
	for _, e := range c.Population.Employees {
		if e.ID == "" || ids[e.ID] {
			return invalid("employee %q is empty or duplicated", e.ID)
		}
		ids[e.ID] = true
		if _, err := world.ParseRole(e.Role); err != nil {
			return invalid("employee %s: %v", e.ID, err)
		}
		if e.Efficiency <= 0 || e.Efficiency > 1 {
			return invalid("employee %s: efficiency %v outside (0,1]", e.ID, e.Efficiency)
		}
	}
	return nil
}

func (r RulesConfig) validate() error {
	for name, v := range map[string]float64{
		"initial_satisfaction": r.InitialSatisfaction,
		"satisfaction_gain":    r.SatisfactionGain,
		"satisfaction_penalty": r.SatisfactionPenalty,
		"purchase_probability": r.PurchaseProbability,
		"popularity_floor":     r.PopularityFloor,
	} {
		if v < 0 || v > 1 {
			return invalid("rules.%s %v outside [0,1]", name, v)
		}
	}
	if r.RestockQuantity <= 0 {
		return invalid("rules.restock_quantity must be positive")
	}
	if r.PopularityPerSale < 0 || r.TrendBoost < 0 || r.PopularityDecay < 0 {
		return invalid("rules: popularity adjustments must be non-negative")
	}
	return nil
}

func (w WorkloadConfig) validate() error {
	if w.Capacity <= 0 {
		return invalid("workload.capacity must be positive")
	}
	if w.OrderCost < 0 || w.RestockCost < 0 || w.Recovery < 0 {
		return invalid("workload costs must be non-negative")
	}
	if w.OrderCost > w.Capacity || w.RestockCost > w.Capacity {
		return invalid("workload costs exceed capacity")
	}
	return nil
}

func (e EventsConfig) validate() error {
	switch {
	case e.Every < 0:
		return invalid("events every %d is negative", e.Every)
	case e.Chance < 0 || e.Chance > 1:
		return invalid("events chance %v outside [0,1]", e.Chance)
	case e.Maintenance <= 0 || e.Maintenance > 1:
		return invalid("events maintenance %v outside (0,1]", e.Maintenance)
	}
	return nil
}

// Params converts the rule and workload sections for the rules package.
func (c *Config) Params() rules.Params {
	return rules.Params{
		SatisfactionGain:    c.Rules.SatisfactionGain,
		SatisfactionPenalty: c.Rules.SatisfactionPenalty,
		RestockQuantity:     c.Rules.RestockQuantity,
		Capacity:            c.Workload.Capacity,
		OrderCost:           c.Workload.OrderCost,
		RestockCost:         c.Workload.RestockCost,
		TrendBoost:          c.Rules.TrendBoost,
		PopularityDecay:     c.Rules.PopularityDecay,
		PopularityFloor:     c.Rules.PopularityFloor,
	}
}

// ParseLevel maps a log_level value to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
