package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookstore.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Catalog.Books) != 4 {
		t.Errorf("books = %d, want 4", len(cfg.Catalog.Books))
	}
	p := cfg.Params()
	if p.Capacity != 10 || p.RestockQuantity != 20 {
		t.Errorf("Params = %+v", p)
	}
}

func TestLoad_OverDefaults(t *testing.T) {
	path := writeConfig(t, `
customers: 25
steps: 200
seed: 7
policy: impulse
step_interval: 250ms
log_level: debug
rules:
  promotion: "stock < 3"
events:
  chance: 0.5
auth:
  admin_user: owner
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Customers != 25 || cfg.Steps != 200 || cfg.Seed != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Employees != 3 {
		t.Errorf("Employees = %d, want default 3", cfg.Employees)
	}
	if cfg.StepInterval != 250*time.Millisecond {
		t.Errorf("StepInterval = %v", cfg.StepInterval)
	}
	if cfg.Rules.Promotion != "stock < 3" || cfg.Rules.RestockQuantity != 20 {
		t.Errorf("Rules = %+v", cfg.Rules)
	}
	if cfg.Events != (EventsConfig{Every: 20, Chance: 0.5, Maintenance: 0.8}) {
		t.Errorf("Events = %+v", cfg.Events)
	}
	if cfg.Auth.AdminUser != "owner" || cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
}

func TestLoad_Population(t *testing.T) {
	path := writeConfig(t, `
population:
  customers:
    - {id: c1, name: Ann, budget: 40, preferences: [mystery]}
    - {id: c2, name: Bo, budget: 60, preferences: [romance, fiction]}
  employees:
    - {id: e1, name: Cy, role: Manager, efficiency: 0.9}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Customers != 2 || cfg.Employees != 1 {
		t.Errorf("counts = %d/%d, want 2/1", cfg.Customers, cfg.Employees)
	}
}

func TestValidate_Bounds(t *testing.T) {
	cases := map[string]func(*Config){
		"too many customers": func(c *Config) { c.Customers = 51 },
		"no customers":       func(c *Config) { c.Customers = 0 },
		"too many employees": func(c *Config) { c.Employees = 11 },
		"too few steps":      func(c *Config) { c.Steps = 9 },
		"too many steps":     func(c *Config) { c.Steps = 1001 },
		"policy":             func(c *Config) { c.Policy = "greedy" },
		"log level":          func(c *Config) { c.LogLevel = "loud" },
		"empty catalog":      func(c *Config) { c.Catalog.Books = nil },
		"dangling genre":     func(c *Config) { c.Catalog.Books[0].Genre = "poetry" },
		"free book":          func(c *Config) { c.Catalog.Books[1].Price = 0 },
		"probability":        func(c *Config) { c.Rules.PurchaseProbability = 1.5 },
		"capacity":           func(c *Config) { c.Workload.Capacity = 0 },
		"event chance":       func(c *Config) { c.Events.Chance = 2 },
		"maintenance":        func(c *Config) { c.Events.Maintenance = 0 },
		"bad role": func(c *Config) {
			c.Population = &Population{Employees: []EmployeeConfig{{ID: "e", Role: "janitor", Efficiency: 1}}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("err = %v, want ErrInvalidConfiguration", err)
			}
		})
	}

	edge := Default()
	edge.Customers, edge.Employees, edge.Steps = 50, 10, 1000
	if err := edge.Validate(); err != nil {
		t.Errorf("upper bounds rejected: %v", err)
	}
	edge.Customers, edge.Employees, edge.Steps = 1, 1, 10
	if err := edge.Validate(); err != nil {
		t.Errorf("lower bounds rejected: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "customers: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeConfig(t, "steps: 5")); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("err = %v, want ErrInvalidConfiguration", err)
	}
}
